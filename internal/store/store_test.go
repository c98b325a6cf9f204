package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypcert/internal/certify"
	"hypcert/internal/criteria"
	"hypcert/internal/presentation"
)

func openTemp(t *testing.T) *ResultStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "hypcert.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func certifyOffline(t *testing.T, relator string) *certify.Result {
	t.Helper()
	opts := certify.DefaultOptions()
	opts.EnableExternalTools = false
	p := certify.New(criteria.Default(), opts)
	res, err := p.Certify(context.Background(), presentation.MustParse(relator, nil))
	require.NoError(t, err)
	return res
}

func save(t *testing.T, s *ResultStore, r Record) bool {
	t.Helper()
	saved, err := s.Save(r)
	require.NoError(t, err)
	return saved
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "results.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
	assert.FileExists(t, path)
}

func TestSaveLookup(t *testing.T) {
	s := openTemp(t)
	res := certifyOffline(t, "cBABCaaBcACbc")
	rec := RecordFromResult(res, "")
	assert.True(t, save(t, s, rec))

	got, ok, err := s.Lookup(res.Input.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, certify.Hyperbolic, got.Outcome)
	assert.Equal(t, criteria.NameSmallCancellation, got.Criterion)
	assert.Equal(t, res.RunID, got.RunID)
	assert.Equal(t, rec.Relator, got.Relator)
	assert.Equal(t, rec.Certificate, got.Certificate)
	assert.Equal(t, res.Trail.Names(), got.Trail.Names())
	assert.Equal(t, res.Elapsed, got.Elapsed)
	assert.Equal(t, res.Fingerprint, got.Fingerprint)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Positive(t, got.ID)
}

func TestLookup_Missing(t *testing.T) {
	s := openTemp(t)
	_, ok, err := s.Lookup("<a, b | abAB>")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSave_UpsertKeepsCreatedAt(t *testing.T) {
	s := openTemp(t)
	rec := Record{
		Presentation: "<a, b | abAB>",
		Relator:      "abAB",
		Evaluated:    "abAB",
		Outcome:      certify.Undetermined,
		Cause:        certify.ToolsUnavailable,
		Criterion:    certify.PipelineName,
		RunID:        "first",
	}
	assert.True(t, save(t, s, rec))
	first, _, err := s.Lookup(rec.Presentation)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	rec.Outcome = certify.NotHyperbolic
	rec.Cause = ""
	rec.Criterion = criteria.NameIvanovSchupp
	rec.RunID = "second"
	assert.True(t, save(t, s, rec))

	second, ok, err := s.Lookup(rec.Presentation)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, certify.NotHyperbolic, second.Outcome)
	assert.Empty(t, second.Cause)
	assert.Equal(t, "second", second.RunID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	all, err := s.List(ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSave_RequiresPresentation(t *testing.T) {
	s := openTemp(t)
	saved, err := s.Save(Record{Outcome: certify.Hyperbolic})
	assert.Error(t, err)
	assert.False(t, saved)
}

func TestListAndStats(t *testing.T) {
	s := openTemp(t)
	batch := NewBatchID()
	for _, w := range []string{"abc", "abAB", "CCBBCAAbbcaa"} {
		assert.True(t, save(t, s, RecordFromResult(certifyOffline(t, w), batch)))
	}
	assert.True(t, save(t, s, RecordFromResult(certifyOffline(t, "bbb"), "")))

	all, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "<a, b, c | abc>", all[0].Presentation, "insertion order")

	hyp, err := s.List(ListOptions{Outcome: certify.Hyperbolic})
	require.NoError(t, err)
	assert.Len(t, hyp, 2)

	inBatch, err := s.List(ListOptions{BatchID: batch})
	require.NoError(t, err)
	assert.Len(t, inBatch, 3)

	limited, err := s.List(ListOptions{BatchID: batch, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	undetermined, err := s.List(ListOptions{Outcome: certify.Undetermined})
	require.NoError(t, err)
	require.Len(t, undetermined, 1)
	assert.Equal(t, certify.MathematicallyInconclusive, undetermined[0].Cause)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, map[certify.Outcome]int{
		certify.Hyperbolic:    2,
		certify.NotHyperbolic: 1,
		certify.Undetermined:  1,
	}, stats)
}

func TestNewBatchID(t *testing.T) {
	a, b := NewBatchID(), NewBatchID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestRunMigrations_AddsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		presentation TEXT NOT NULL UNIQUE,
		relator TEXT NOT NULL,
		evaluated TEXT NOT NULL,
		outcome TEXT NOT NULL,
		criterion TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		certificate TEXT NOT NULL DEFAULT '{}',
		trail TEXT NOT NULL DEFAULT '[]',
		run_id TEXT NOT NULL,
		elapsed_ns INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	require.NoError(t, err)
	assert.False(t, columnExists(db, "results", "batch_id"))
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	for _, m := range pendingMigrations {
		assert.True(t, columnExists(s.db, m.Table, m.Column), m.Column)
	}
	assert.True(t, save(t, s, RecordFromResult(certifyOffline(t, "abAB"), "b1")))
	got, err := s.List(ListOptions{BatchID: "b1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTableExists(t *testing.T) {
	s := openTemp(t)
	assert.True(t, tableExists(s.db, "results"))
	assert.False(t, tableExists(s.db, "nope"))
}

func TestSave_KeepsConclusiveOverUndetermined(t *testing.T) {
	s := openTemp(t)
	conclusive := RecordFromResult(certifyOffline(t, "abAB"), "first")
	require.Equal(t, certify.NotHyperbolic, conclusive.Outcome)
	assert.True(t, save(t, s, conclusive))

	for _, cause := range []certify.Cause{
		certify.MathematicallyInconclusive, certify.ToolsUnavailable, certify.ToolsFailed,
	} {
		t.Run(string(cause), func(t *testing.T) {
			later := conclusive
			later.Outcome = certify.Undetermined
			later.Cause = cause
			later.Criterion = certify.PipelineName
			later.RunID = "later"
			later.BatchID = "second"
			assert.False(t, save(t, s, later))

			got, ok, err := s.Lookup(conclusive.Presentation)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, certify.NotHyperbolic, got.Outcome)
			assert.Empty(t, got.Cause)
			assert.Equal(t, conclusive.RunID, got.RunID)
			assert.Equal(t, "first", got.BatchID)
		})
	}

	other := conclusive
	other.RunID = "again"
	assert.True(t, save(t, s, other), "conclusive replaces conclusive")
}

func TestSave_UndeterminedReplacesUndetermined(t *testing.T) {
	s := openTemp(t)
	rec := RecordFromResult(certifyOffline(t, "CCBBCAAbbcaa"), "")
	require.Equal(t, certify.Undetermined, rec.Outcome)
	assert.True(t, save(t, s, rec))

	rec.Cause = certify.ToolsFailed
	rec.RunID = "retry"
	assert.True(t, save(t, s, rec))
	got, _, err := s.Lookup(rec.Presentation)
	require.NoError(t, err)
	assert.Equal(t, certify.ToolsFailed, got.Cause)
	assert.Equal(t, "retry", got.RunID)
}

func TestRecord_Stale(t *testing.T) {
	const current = "external=true cross_check=false minimize=true criteria=torsion"
	tests := []struct {
		name   string
		record Record
		want   bool
	}{
		{"conclusive same settings", Record{Outcome: certify.Hyperbolic, Fingerprint: current}, false},
		{"inconclusive same settings", Record{Outcome: certify.Undetermined, Cause: certify.MathematicallyInconclusive, Fingerprint: current}, false},
		{"tools unavailable", Record{Outcome: certify.Undetermined, Cause: certify.ToolsUnavailable, Fingerprint: current}, true},
		{"tools failed", Record{Outcome: certify.Undetermined, Cause: certify.ToolsFailed, Fingerprint: current}, true},
		{"other settings", Record{Outcome: certify.Undetermined, Cause: certify.MathematicallyInconclusive, Fingerprint: "external=false"}, true},
		{"conclusive other settings", Record{Outcome: certify.Hyperbolic, Fingerprint: "external=false"}, true},
		{"no fingerprint", Record{Outcome: certify.Hyperbolic}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.Stale(current))
		})
	}
}
