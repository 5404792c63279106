package tap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobtap/internal/extract"
	"github.com/amishk599/jobtap/internal/model"
	"github.com/tidwall/gjson"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSubmitter keeps every candidate it is given and counts each as new.
type recordingSubmitter struct {
	mu    sync.Mutex
	got   []model.RawCandidate
	calls chan struct{}
}

func newRecordingSubmitter() *recordingSubmitter {
	return &recordingSubmitter{calls: make(chan struct{}, 16)}
}

func (r *recordingSubmitter) Submit(seq iter.Seq[model.RawCandidate]) int {
	n := 0
	r.mu.Lock()
	for c := range seq {
		r.got = append(r.got, c)
		n++
	}
	r.mu.Unlock()
	r.calls <- struct{}{}
	return n
}

func (r *recordingSubmitter) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.got))
	for i, c := range r.got {
		out[i] = gjson.GetBytes(c.Raw, "title").String()
	}
	return out
}

func jobMatcher(node gjson.Result) bool {
	return node.Get("title").String() != "" && node.Get("description").String() != ""
}

func newTestInspector(sub Submitter) *Inspector {
	return NewInspector(extract.NewJSONExtractor(jobMatcher, 0), sub, InspectorOptions{}, discardLogger())
}

func TestStripHijackPrefix(t *testing.T) {
	plain := `{"data":{"jobs":[]}}`
	tests := []string{
		plain,
		")]}'\n" + plain,
		")]}',\n" + plain,
		")]}'" + plain,
		"  )]}',\r\n" + plain,
		"for(;;);" + plain,
	}
	for _, in := range tests {
		if got := string(StripHijackPrefix([]byte(in))); got != plain {
			t.Errorf("StripHijackPrefix(%q) = %q, want %q", in, got, plain)
		}
	}
}

func TestInspector_Wants(t *testing.T) {
	in := newTestInspector(newRecordingSubmitter())
	tests := []struct {
		url, ct string
		want    bool
	}{
		{"https://x.com/api/graphql", "application/json", true},
		{"https://x.com/nx/search/jobs", "application/json; charset=utf-8", true},
		{"https://x.com/API/v3/feed", "application/json", true},
		{"https://x.com/static/app.js", "application/javascript", false},
		{"https://x.com/profile", "application/json", false},
		{"https://x.com/api/thing", "text/html", false},
	}
	for _, tt := range tests {
		if got := in.Wants(tt.url, tt.ct); got != tt.want {
			t.Errorf("Wants(%q, %q) = %v, want %v", tt.url, tt.ct, got, tt.want)
		}
	}
}

func TestInspector_PrefixedBodyMatchesPlain(t *testing.T) {
	body := `{"data":{"jobs":[{"title":"A","description":"B"}]}}`

	plainSub := newRecordingSubmitter()
	newTestInspector(plainSub).Inspect("https://x/api/graphql", "application/json", []byte(body))

	prefSub := newRecordingSubmitter()
	newTestInspector(prefSub).Inspect("https://x/api/graphql", "application/json", []byte(")]}',\n"+body))

	p, q := plainSub.titles(), prefSub.titles()
	if len(p) != 1 || len(q) != 1 || p[0] != "A" || q[0] != "A" {
		t.Errorf("plain %v, prefixed %v, want [A] for both", p, q)
	}
}

func TestInspector_SkipsNonJSONAndGarbage(t *testing.T) {
	sub := newRecordingSubmitter()
	in := newTestInspector(sub)

	bodies := []string{
		"event: message\ndata: {}\n",
		"<html></html>",
		`{"title":"broken`,
		"",
	}
	for _, b := range bodies {
		if n := in.Inspect("https://x/api/jobs", "application/json", []byte(b)); n != 0 {
			t.Errorf("Inspect(%q) = %d, want 0", b, n)
		}
	}
	if len(sub.titles()) != 0 {
		t.Errorf("got candidates %v, want none", sub.titles())
	}
}

func TestInspector_BodyCap(t *testing.T) {
	sub := newRecordingSubmitter()
	in := NewInspector(extract.NewJSONExtractor(jobMatcher, 0), sub, InspectorOptions{MaxBodyBytes: 16}, discardLogger())
	n := in.Inspect("https://x/api/jobs", "application/json", []byte(`{"title":"A","description":"long enough"}`))
	if n != 0 {
		t.Errorf("got %d, want oversized body skipped", n)
	}
}

const graphqlBody = `)]}'
{"data":{"marketplaceJobPostingsSearch":{"edges":[{"node":{"title":"Scraper","description":"Build it","ciphertext":"~01"}},{"node":{"title":"Bot","description":"Automate"}}]}}}`

func TestTransport_DeliversOriginalAndInspects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, graphqlBody)
	}))
	defer srv.Close()

	sub := newRecordingSubmitter()
	in := newTestInspector(sub)
	client := &http.Client{Transport: Wrap(srv.Client().Transport, in)}

	resp, err := client.Get(srv.URL + "/api/graphql")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != graphqlBody {
		t.Errorf("caller got modified body %q", got)
	}

	in.Wait()
	titles := sub.titles()
	if len(titles) != 2 || titles[0] != "Scraper" || titles[1] != "Bot" {
		t.Errorf("got %v, want [Scraper Bot]", titles)
	}
}

func TestTransport_IgnoresUninterestingResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	sub := newRecordingSubmitter()
	in := newTestInspector(sub)
	client := &http.Client{Transport: Wrap(srv.Client().Transport, in)}

	resp, err := client.Get(srv.URL + "/api/graphql")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	in.Wait()

	select {
	case <-sub.calls:
		t.Error("html response was inspected")
	default:
	}
}

func TestTransport_DecoderStopsBeforeEOF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"jobs":[{"title":"A","description":"B"}]}}`)
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	sub := newRecordingSubmitter()
	in := newTestInspector(sub)
	client := &http.Client{Transport: Wrap(srv.Client().Transport, in)}

	resp, err := client.Get(srv.URL + "/api/graphql")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var decoded struct {
		Data struct {
			Jobs []struct{ Title string }
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(decoded.Data.Jobs) != 1 || decoded.Data.Jobs[0].Title != "A" {
		t.Fatalf("caller decoded %+v", decoded)
	}

	in.Wait()
	if titles := sub.titles(); len(titles) != 1 || titles[0] != "A" {
		t.Errorf("got %v, want [A]", titles)
	}
}

func TestTransport_CloseAfterPartialRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, graphqlBody)
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	sub := newRecordingSubmitter()
	in := newTestInspector(sub)
	client := &http.Client{Transport: Wrap(srv.Client().Transport, in)}

	resp, err := client.Get(srv.URL + "/api/graphql")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	buf := make([]byte, 4)
	resp.Body.Read(buf)
	resp.Body.Close()
	in.Wait()

	if titles := sub.titles(); len(titles) != 2 {
		t.Errorf("got %v, want the rest of the body drained and inspected", titles)
	}
}

func TestTransport_CloseDoesNotDrainPastLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, graphqlBody)
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	sub := newRecordingSubmitter()
	in := NewInspector(extract.NewJSONExtractor(jobMatcher, 0), sub, InspectorOptions{MaxBodyBytes: 32}, discardLogger())
	client := &http.Client{Transport: Wrap(srv.Client().Transport, in)}

	resp, err := client.Get(srv.URL + "/api/graphql")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	buf := make([]byte, 4)
	resp.Body.Read(buf)
	resp.Body.Close()
	in.Wait()

	select {
	case <-sub.calls:
		t.Error("oversized body was inspected")
	default:
	}
}

func TestWrapCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, graphqlBody)
	}))
	defer srv.Close()

	sub := newRecordingSubmitter()
	in := newTestInspector(sub)
	cb := WrapCallback(FromRoundTripper(srv.Client().Transport), in)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/graphql", nil)
	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	cb.Send(req, func(resp *http.Response, err error) {
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		done <- result{body: string(b), err: err}
	})

	var r result
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
	if r.err != nil {
		t.Fatalf("callback error: %v", r.err)
	}
	if r.body != graphqlBody {
		t.Errorf("callback got modified body")
	}

	in.Wait()
	if n := len(sub.titles()); n != 2 {
		t.Errorf("got %d candidates, want 2", n)
	}
}

func TestWrapCallback_PassesErrors(t *testing.T) {
	in := newTestInspector(newRecordingSubmitter())
	want := fmt.Errorf("boom")
	base := CallbackFunc(func(req *http.Request, done Callback) { done(nil, want) })

	req, _ := http.NewRequest(http.MethodGet, "https://x/api/graphql", nil)
	var gotErr error
	WrapCallback(base, in).Send(req, func(resp *http.Response, err error) { gotErr = err })
	if gotErr != want {
		t.Errorf("got %v, want %v", gotErr, want)
	}
}

const searchPage = `<html><body><main>
<article data-test="job-tile">
  <h2><a href="/jobs/~0aa">Scrape product catalogue</a></h2>
  <div data-test="job-description-text">Daily scrape of a large product catalogue into CSV.</div>
  <span data-test="budget">$300</span>
</article>
<article data-test="job-tile">
  <h2><a href="/jobs/~0bb">Chrome extension for data export</a></h2>
  <div data-test="job-description-text">Build an extension that exports table data from any page.</div>
</article>
<div class="up-card"><h3><a href="/jobs/~0cc">Should be ignored</a></h3></div>
</main></body></html>`

func TestDOMTap_FirstMatchingStrategyOnly(t *testing.T) {
	sub := newRecordingSubmitter()
	d := NewDOMTap(sub, DOMOptions{}, discardLogger())

	if n := d.ScanHTML(searchPage, "https://x/search"); n != 2 {
		t.Fatalf("got %d, want 2", n)
	}
	titles := sub.titles()
	if titles[0] != "Scrape product catalogue" || titles[1] != "Chrome extension for data export" {
		t.Errorf("got %v", titles)
	}
}

func TestDOMTap_StructuralFallback(t *testing.T) {
	sub := newRecordingSubmitter()
	d := NewDOMTap(sub, DOMOptions{}, discardLogger())

	page := `<html><body><main><ul>
<li><a href="/jobs/~1">First unusual layout job</a><p>Some description that is long enough.</p></li>
<li><a href="/jobs/~2">Second unusual layout job</a><p>Another description that is long enough.</p></li>
</ul></main></body></html>`
	if n := d.ScanHTML(page, "https://x/search"); n != 2 {
		t.Fatalf("got %d, want 2", n)
	}
	if titles := sub.titles(); titles[1] != "Second unusual layout job" {
		t.Errorf("got %v, want link text as title", titles)
	}
}

func TestMayContainJobs(t *testing.T) {
	tests := []struct {
		added []string
		want  bool
	}{
		{[]string{`<div class="spinner"></div>`}, false},
		{[]string{`<span>job done</span>`}, false},
		{[]string{`<div><article data-test="job-tile"></article></div>`}, true},
		{[]string{`<div class="spinner"></div>`, `<section class="up-card"></section>`}, true},
	}
	for _, tt := range tests {
		if got := MayContainJobs(tt.added); got != tt.want {
			t.Errorf("MayContainJobs(%v) = %v, want %v", tt.added, got, tt.want)
		}
	}
}

func TestDOMTap_ObserveDebouncesRescan(t *testing.T) {
	sub := newRecordingSubmitter()
	d := NewDOMTap(sub, DOMOptions{RescanDelay: 30 * time.Millisecond}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mutations := make(chan Mutation)
	errc := make(chan error, 1)
	go func() { errc <- d.Observe(ctx, mutations) }()

	tile := `<article data-test="job-tile"><h2><a href="/jobs/~0aa">T</a></h2></article>`
	for i := 0; i < 3; i++ {
		mutations <- Mutation{PageURL: "p", Document: searchPage, Added: []string{tile}}
	}
	mutations <- Mutation{PageURL: "p", Added: []string{`<div class="spinner"></div>`}}

	select {
	case <-sub.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no rescan happened")
	}
	time.Sleep(100 * time.Millisecond)
	select {
	case <-sub.calls:
		t.Error("got a second rescan, want one")
	default:
	}

	close(mutations)
	if err := <-errc; err != nil {
		t.Errorf("Observe returned %v", err)
	}
}

func TestReplayHAR(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(graphqlBody))
	har := fmt.Sprintf(`{"log":{"entries":[
		{"request":{"url":"https://x/api/graphql"},"response":{"content":{"mimeType":"application/json","text":%q,"encoding":"base64"}}},
		{"request":{"url":"https://x/static/app.js"},"response":{"content":{"mimeType":"application/javascript","text":"var a;"}}},
		{"request":{"url":"https://x/search"},"response":{"content":{"mimeType":"text/html","text":%q}}},
		{"request":{"url":"https://x/api/empty"},"response":{"content":{"mimeType":"application/json"}}}
	]}}`, encoded, searchPage)

	sub := newRecordingSubmitter()
	in := newTestInspector(sub)
	dom := NewDOMTap(sub, DOMOptions{}, discardLogger())

	stats, err := ReplayHAR(strings.NewReader(har), in, dom)
	if err != nil {
		t.Fatalf("ReplayHAR: %v", err)
	}
	want := ReplayStats{Entries: 4, Inspected: 1, Pages: 1, Added: 4}
	if stats != want {
		t.Errorf("got %+v, want %+v", stats, want)
	}
}

func TestReplayHAR_Invalid(t *testing.T) {
	in := newTestInspector(newRecordingSubmitter())
	if _, err := ReplayHAR(strings.NewReader("nope"), in, nil); err == nil {
		t.Error("expected error for invalid har")
	}
	if _, err := ReplayHAR(strings.NewReader(`{"log":{}}`), in, nil); err == nil {
		t.Error("expected error for har without entries")
	}
}
