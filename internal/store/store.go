// Package store caches certification results in SQLite, keyed by the
// presentation that was certified.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"hypcert/internal/certify"
	"hypcert/internal/logging"
)

// Record is one stored certification.
type Record struct {
	ID int64 `json:"id"`
	// Presentation is the canonical form, e.g. "<a, b | aabb>". It is the key.
	Presentation string            `json:"presentation"`
	Relator      string            `json:"relator"`
	Evaluated    string            `json:"evaluated"`
	Minimal      bool              `json:"minimal"`
	Outcome      certify.Outcome   `json:"outcome"`
	Cause        certify.Cause     `json:"cause,omitempty"`
	Criterion    string            `json:"criterion"`
	Detail       string            `json:"detail,omitempty"`
	Certificate  map[string]string `json:"certificate,omitempty"`
	Trail        certify.Trail     `json:"trail,omitempty"`
	Fingerprint  string            `json:"fingerprint,omitempty"`
	RunID        string            `json:"run_id"`
	BatchID      string            `json:"batch_id,omitempty"`
	Elapsed      time.Duration     `json:"elapsed_ns"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// RecordFromResult flattens a pipeline result. batchID may be empty.
func RecordFromResult(res *certify.Result, batchID string) Record {
	return Record{
		Presentation: res.Input.String(),
		Relator:      res.Input.FormatWord(res.Input.Relator()),
		Evaluated:    res.Evaluated.FormatWord(res.Evaluated.Relator()),
		Minimal:      res.Minimal,
		Outcome:      res.Verdict.Outcome,
		Cause:        res.Verdict.Cause,
		Criterion:    res.Verdict.Reason.Criterion,
		Detail:       res.Verdict.Reason.Detail,
		Certificate:  res.Verdict.Reason.Certificate,
		Trail:        res.Trail,
		Fingerprint:  res.Fingerprint,
		RunID:        res.RunID,
		BatchID:      batchID,
		Elapsed:      res.Elapsed,
	}
}

// NewBatchID returns an identifier grouping the records of one batch.
func NewBatchID() string { return uuid.NewString() }

// Stale reports whether r should be certified again by a pipeline with the
// given fingerprint: its tools were missing or failed, or it was produced
// under different settings.
func (r Record) Stale(fingerprint string) bool {
	if r.Cause == certify.ToolsUnavailable || r.Cause == certify.ToolsFailed {
		return true
	}
	return r.Fingerprint != fingerprint
}

// ListOptions filters List. Zero values match everything.
type ListOptions struct {
	Outcome certify.Outcome
	BatchID string
	Limit   int
}

// ResultStore is the SQLite result cache. It is safe for concurrent use.
type ResultStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*ResultStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &ResultStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Opened result store at %s", path)
	return s, nil
}

func (s *ResultStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		presentation TEXT NOT NULL UNIQUE,
		relator TEXT NOT NULL,
		evaluated TEXT NOT NULL,
		minimal INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		cause TEXT NOT NULL DEFAULT '',
		criterion TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		certificate TEXT NOT NULL DEFAULT '{}',
		trail TEXT NOT NULL DEFAULT '[]',
		fingerprint TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL,
		batch_id TEXT NOT NULL DEFAULT '',
		elapsed_ns INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_outcome ON results(outcome);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if err := RunMigrations(s.db); err != nil {
		return err
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_results_batch ON results(batch_id)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Path returns the database path.
func (s *ResultStore) Path() string { return s.dbPath }

// Close closes the database connection.
func (s *ResultStore) Close() error {
	return s.db.Close()
}

// Save inserts r, or replaces the stored record for the same presentation
// while keeping its creation time. An undetermined record never replaces a
// conclusive one; Save then leaves the stored record as is and reports
// false.
func (s *ResultStore) Save(r Record) (bool, error) {
	if r.Presentation == "" {
		return false, fmt.Errorf("record has no presentation")
	}
	cert, err := json.Marshal(r.Certificate)
	if err != nil {
		return false, fmt.Errorf("failed to marshal certificate: %w", err)
	}
	trail, err := json.Marshal(r.Trail)
	if err != nil {
		return false, fmt.Errorf("failed to marshal trail: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO results (presentation, relator, evaluated, minimal, outcome, cause, criterion,
			detail, certificate, trail, fingerprint, run_id, batch_id, elapsed_ns, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(presentation) DO UPDATE SET
			relator = excluded.relator,
			evaluated = excluded.evaluated,
			minimal = excluded.minimal,
			outcome = excluded.outcome,
			cause = excluded.cause,
			criterion = excluded.criterion,
			detail = excluded.detail,
			certificate = excluded.certificate,
			trail = excluded.trail,
			fingerprint = excluded.fingerprint,
			run_id = excluded.run_id,
			batch_id = excluded.batch_id,
			elapsed_ns = excluded.elapsed_ns,
			updated_at = excluded.updated_at
		WHERE excluded.outcome != ? OR results.outcome = ?`,
		r.Presentation, r.Relator, r.Evaluated, r.Minimal, string(r.Outcome), string(r.Cause),
		r.Criterion, r.Detail, string(cert), string(trail), r.Fingerprint, r.RunID, r.BatchID,
		int64(r.Elapsed), now, now,
		string(certify.Undetermined), string(certify.Undetermined),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save %s: %w", r.Presentation, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to save %s: %w", r.Presentation, err)
	}
	if n == 0 {
		logging.Store("Kept conclusive record for %s over %s", r.Presentation, r.Outcome)
		return false, nil
	}
	logging.StoreDebug("Saved %s -> %s", r.Presentation, r.Outcome)
	return true, nil
}

const selectColumns = `SELECT id, presentation, relator, evaluated, minimal, outcome, cause, criterion,
	detail, certificate, trail, fingerprint, run_id, batch_id, elapsed_ns, created_at, updated_at FROM results`

// Lookup returns the record for a canonical presentation string.
func (s *ResultStore) Lookup(presentation string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(selectColumns+" WHERE presentation = ?", presentation)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// List returns stored records in insertion order.
func (s *ResultStore) List(opts ListOptions) ([]Record, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if opts.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(opts.Outcome))
	}
	if opts.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, opts.BatchID)
	}
	query := selectColumns
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats counts stored records per outcome.
func (s *ResultStore) Stats() (map[certify.Outcome]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT outcome, COUNT(*) FROM results GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}
	defer rows.Close()

	stats := make(map[certify.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		stats[certify.Outcome(outcome)] = n
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r                Record
		outcome, cause   string
		cert, trail      string
		elapsed          int64
		created, updated string
	)
	err := sc.Scan(&r.ID, &r.Presentation, &r.Relator, &r.Evaluated, &r.Minimal, &outcome, &cause,
		&r.Criterion, &r.Detail, &cert, &trail, &r.Fingerprint, &r.RunID, &r.BatchID, &elapsed, &created, &updated)
	if err != nil {
		return Record{}, err
	}
	r.Outcome = certify.Outcome(outcome)
	r.Cause = certify.Cause(cause)
	r.Elapsed = time.Duration(elapsed)
	if err := json.Unmarshal([]byte(cert), &r.Certificate); err != nil {
		return Record{}, fmt.Errorf("record %d: bad certificate: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(trail), &r.Trail); err != nil {
		return Record{}, fmt.Errorf("record %d: bad trail: %w", r.ID, err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return r, nil
}
