package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/amishk599/jobtap/internal/model"
	_ "modernc.org/sqlite"
)

// MemoryDSN keeps the database in process memory so nothing outlives the
// session.
const MemoryDSN = ":memory:"

var _ model.JobStore = (*SQLiteStore)(nil)

// SQLiteStore keeps collected records in a SQLite database, keyed by
// identity key.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dsn and ensures
// the collected_jobs table exists. An empty dsn means MemoryDSN.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS collected_jobs (
		identity_key TEXT PRIMARY KEY,
		record       TEXT NOT NULL,
		collected_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collected_jobs table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// AddBatch inserts records whose identity key is not stored yet.
func (s *SQLiteStore) AddBatch(ctx context.Context, records []model.JobRecord) (model.AddResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AddResult{}, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return model.AddResult{}, fmt.Errorf("encoding record %s: %w", rec.IdentityKey, err)
		}
		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO collected_jobs (identity_key, record, collected_at) VALUES (?, ?, ?)",
			rec.IdentityKey, string(data), rec.CollectedAt)
		if err != nil {
			return model.AddResult{}, fmt.Errorf("inserting record %s: %w", rec.IdentityKey, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return model.AddResult{}, fmt.Errorf("rows affected: %w", err)
		}
		added += int(n)
	}

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM collected_jobs").Scan(&total); err != nil {
		return model.AddResult{}, fmt.Errorf("counting records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.AddResult{}, fmt.Errorf("commit batch: %w", err)
	}
	return model.AddResult{Added: added, Total: total}, nil
}

// GetAll returns every stored record in insertion order.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]model.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT record FROM collected_jobs ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	out := []model.JobRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		var rec model.JobRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Reset deletes every stored record.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM collected_jobs"); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
