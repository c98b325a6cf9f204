package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"hypcert/internal/certify"
	"hypcert/internal/store"
)

func sampleRecords() []store.Record {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []store.Record{
		{
			Presentation: "<a, b, c | cBABCaaBcACbc>",
			Relator:      "cBABCaaBcACbc",
			Evaluated:    "cBABCaaBcACbc",
			Minimal:      true,
			Outcome:      certify.Hyperbolic,
			Criterion:    "small-cancellation",
			Detail:       "piece ratio 2/13 < 1/6",
			Certificate:  map[string]string{"ratio": "2/13", "max_piece": "2"},
			Trail: certify.Trail{
				{Criterion: "torsion"}, {Criterion: "free"}, {Criterion: "small-cancellation"},
			},
			RunID:     "run-1",
			BatchID:   "batch-1",
			Elapsed:   1500 * time.Microsecond,
			CreatedAt: created,
		},
		{
			Presentation: "<a, b, c | CCBBCAAbbcaa>",
			Relator:      "CCBBCAAbbcaa",
			Evaluated:    "CCBBCAAbbcaa",
			Outcome:      certify.Undetermined,
			Cause:        certify.ToolsUnavailable,
			Criterion:    certify.PipelineName,
			RunID:        "run-2",
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"csv": CSV, " JSON ": JSON, "Xlsx": XLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	f, err := FormatFromPath("/tmp/out/results.xlsx")
	require.NoError(t, err)
	assert.Equal(t, XLSX, f)
	_, err = FormatFromPath("results")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRow(t *testing.T) {
	row := Row(sampleRecords()[0])
	require.Len(t, row, len(Headers))
	assert.Equal(t, "true", row[3])
	assert.Equal(t, "hyperbolic", row[4])
	assert.Equal(t, "", row[5])
	assert.Equal(t, "max_piece=2; ratio=2/13", row[8])
	assert.Equal(t, "torsion > free > small-cancellation", row[9])
	assert.Equal(t, "1.500", row[12])
	assert.Equal(t, "2026-03-01T12:00:00Z", row[13])

	empty := Row(store.Record{})
	assert.Equal(t, "", empty[8])
	assert.Equal(t, "", empty[13])
}

func TestWrite_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, CSV, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, "<a, b, c | cBABCaaBcACbc>", rows[1][0])
	assert.Equal(t, "tools_unavailable", rows[2][5])
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSON, sampleRecords()))

	var decoded []store.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, certify.Hyperbolic, decoded[0].Outcome)
	assert.Equal(t, "2/13", decoded[0].Certificate["ratio"])
	assert.Equal(t, []string{"torsion", "free", "small-cancellation"}, decoded[0].Trail.Names())
	assert.Equal(t, certify.ToolsUnavailable, decoded[1].Cause)

	buf.Reset()
	require.NoError(t, Write(&buf, JSON, nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestWrite_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, XLSX, sampleRecords()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, "small-cancellation", rows[1][6])
	assert.Equal(t, "undetermined", rows[2][4])
}

func TestWrite_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Write(&buf, Format("yaml"), nil), ErrUnknownFormat)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "results.csv")
	require.NoError(t, WriteFile(path, CSV, sampleRecords()))
	assert.FileExists(t, path)

	err := WriteFile(filepath.Join(t.TempDir(), "x.out"), Format("nope"), nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
