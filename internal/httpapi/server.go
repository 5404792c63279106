// Package httpapi exposes a collection session over HTTP so a browser
// extension or recorder can push captured traffic and page snapshots, and
// read back collected and ranked jobs.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/amishk599/jobtap/internal/model"
	"github.com/amishk599/jobtap/internal/pipeline"
	"github.com/amishk599/jobtap/internal/rank"
	"github.com/amishk599/jobtap/internal/tap"
)

const maxRequestBytes = 16 << 20

// Options holds the ranking defaults applied when a request leaves them out.
type Options struct {
	TopN        int
	Preferences model.Preferences
}

// Server routes capture, page, job and ranking requests into one session.
type Server struct {
	session   *pipeline.Session
	store     model.JobStore
	ranker    *rank.Service
	notifier  model.Notifier
	opts      Options
	mutations chan tap.Mutation
	logger    *slog.Logger
}

// New returns a Server. Call Observe in its own goroutine so page
// mutations posted to /v1/pages get re-scanned.
func New(session *pipeline.Session, store model.JobStore, ranker *rank.Service, notifier model.Notifier, opts Options, logger *slog.Logger) *Server {
	return &Server{
		session:   session,
		store:     store,
		ranker:    ranker,
		notifier:  notifier,
		opts:      opts,
		mutations: make(chan tap.Mutation, 64),
		logger:    logger,
	}
}

// Observe feeds queued page mutations to the session's DOM tap until ctx
// is done.
func (s *Server) Observe(ctx context.Context) error {
	return s.session.DOM().Observe(ctx, s.mutations)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/capture", s.handleCapture)
		r.Post("/pages", s.handlePage)
		r.Get("/jobs", s.handleListJobs)
		r.Delete("/jobs", s.handleReset)
		r.Post("/batches", s.handleAddBatch)
		r.Post("/rank", s.handleRank)
		r.Get("/stats", s.handleStats)
	})

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type captureRequest struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// handleCapture runs one intercepted response through the network tap.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing 'url'"))
		return
	}
	added := s.session.Inspector().Inspect(req.URL, req.ContentType, []byte(req.Body))
	writeJSON(w, http.StatusOK, map[string]any{"added": added})
}

type pageRequest struct {
	URL   string   `json:"url"`
	HTML  string   `json:"html"`
	Added []string `json:"added"`
}

// handlePage scans a page snapshot right away, or queues it as a mutation
// when the caller lists inserted nodes.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing 'url'"))
		return
	}

	if len(req.Added) == 0 {
		if req.HTML == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("missing 'html'"))
			return
		}
		added := s.session.DOM().ScanHTML(req.HTML, req.URL)
		writeJSON(w, http.StatusOK, map[string]any{"added": added})
		return
	}

	if !tap.MayContainJobs(req.Added) {
		writeJSON(w, http.StatusOK, map[string]any{"queued": false})
		return
	}
	select {
	case s.mutations <- tap.Mutation{PageURL: req.URL, Document: req.HTML, Added: req.Added}:
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
	case <-r.Context().Done():
		writeErr(w, http.StatusServiceUnavailable, r.Context().Err())
	}
}

// handleListJobs returns the records persisted by completed batches.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.GetAll(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []model.JobRecord{}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", raw))
			return
		}
		records = records[:min(limit, len(records))]
	}

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reset(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("session cleared", "session_id", s.session.ID)
	w.WriteHeader(http.StatusNoContent)
}

type batchRequest struct {
	Records []model.JobRecord `json:"records"`
}

// handleAddBatch writes externally collected records straight to the store.
func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	for i, rec := range req.Records {
		if rec.IdentityKey == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("records[%d]: missing 'identityKey'", i))
			return
		}
	}
	res, err := s.store.AddBatch(r.Context(), req.Records)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rankRequest struct {
	TopN        int                `json:"top_n"`
	Preferences *model.Preferences `json:"preferences"`
	Records     []model.JobRecord  `json:"records"`
}

type rankResponse struct {
	Model     string               `json:"model,omitempty"`
	Heuristic bool                 `json:"heuristic"`
	Results   []model.RankedResult `json:"results"`
}

// handleRank ranks the posted records, or everything collected this
// session when none are posted, and forwards the result to the notifier.
func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
	}
	topN := req.TopN
	if topN <= 0 {
		topN = s.opts.TopN
	}
	prefs := s.opts.Preferences
	if req.Preferences != nil {
		prefs = *req.Preferences
	}
	records := req.Records
	if len(records) == 0 {
		records = s.session.Records()
	}

	ranking, err := s.ranker.Rank(r.Context(), records, topN, prefs)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, model.ErrMissingAPIKey) || errors.Is(err, model.ErrInvalidAPIKey) {
			status = http.StatusServiceUnavailable
		}
		writeErr(w, status, err)
		return
	}

	if len(ranking.Results) > 0 {
		if err := s.notifier.NotifyRanking(r.Context(), ranking.Results); err != nil {
			s.logger.Error("ranking notification failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, rankResponse{
		Model:     ranking.Model,
		Heuristic: ranking.Heuristic,
		Results:   ranking.Results,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.session.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": s.session.ID,
		"records":   st.Records,
		"pending":   st.Pending,
		"batches":   st.Batches,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
