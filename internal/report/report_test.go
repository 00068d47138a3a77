// internal/report/report_test.go
package report

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleResults() []Result {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Result{
		{
			Scenario:  "retry-loop",
			Driver:    "remote",
			Passed:    true,
			Attempts:  3,
			Duration:  1500 * time.Millisecond,
			StartedAt: started,
		},
		{
			Scenario:  "chained-conditions",
			Driver:    "remote",
			Passed:    false,
			Fault:     "timeout",
			Locator:   "id=task-table-filter",
			Attempts:  10,
			Duration:  5 * time.Second,
			Message:   "wait timed out",
			StartedAt: started.Add(2 * time.Second),
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResults())
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 6500*time.Millisecond, s.Duration)
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONStreamWriter(&buf)
	require.NoError(t, w.Write(context.Background(), sampleResults()))
	require.NoError(t, w.Close())

	var decoded struct {
		Summary Summary  `json:"summary"`
		Results []Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 1, decoded.Summary.Failed)
	require.Len(t, decoded.Results, 2)
	assert.Equal(t, "id=task-table-filter", decoded.Results[1].Locator)
	assert.Equal(t, "timeout", decoded.Results[1].Fault)
}

func TestJSONWriter_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	w, err := NewWriter(context.Background(), OutputConfig{Format: FormatJSON, File: path})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), nil))
	require.NoError(t, w.Close())
	assert.FileExists(t, path)
}

func TestSQLiteWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "results.db")

	w, err := NewWriter(ctx, OutputConfig{Format: FormatSQLite, File: path, Table: "runs"})
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, sampleResults()))
	require.NoError(t, w.Write(ctx, sampleResults()[:1]))
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count))
	assert.Equal(t, 3, count)

	var fault, locator sql.NullString
	var durationMS int64
	require.NoError(t, db.QueryRow(
		"SELECT fault, locator, duration_ms FROM runs WHERE scenario = ?", "chained-conditions",
	).Scan(&fault, &locator, &durationMS))
	assert.Equal(t, "timeout", fault.String)
	assert.Equal(t, "id=task-table-filter", locator.String)
	assert.Equal(t, int64(5000), durationMS)

	require.NoError(t, db.QueryRow(
		"SELECT fault FROM runs WHERE scenario = ? LIMIT 1", "retry-loop",
	).Scan(&fault))
	assert.False(t, fault.Valid, "empty fault is stored as NULL")
}

func TestExcelWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	w, err := NewWriter(context.Background(), OutputConfig{Format: FormatExcel, File: path})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), sampleResults()))
	require.NoError(t, w.Close())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Scenario", rows[0][0])
	assert.Equal(t, []string{"retry-loop", "remote", "PASS"}, rows[1][:3])
	assert.Equal(t, "FAIL", rows[2][2])
	assert.Equal(t, "id=task-table-filter", rows[2][4])
}

func TestOutputConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  OutputConfig
		wantErr string
	}{
		{"json stdout", OutputConfig{Format: FormatJSON}, ""},
		{"default format", OutputConfig{}, ""},
		{"sqlite without file", OutputConfig{Format: FormatSQLite}, "requires a file"},
		{"excel without file", OutputConfig{Format: FormatExcel}, "requires a file"},
		{"postgres without dsn", OutputConfig{Format: FormatPostgres}, "requires a dsn"},
		{"mysql without dsn", OutputConfig{Format: FormatMySQL}, "requires a dsn"},
		{"unknown format", OutputConfig{Format: "pdf"}, "unsupported output format"},
		{"bad table", OutputConfig{Format: FormatSQLite, File: "x.db", Table: "runs; DROP"}, "invalid table name"},
		{"reserved table", OutputConfig{Format: FormatSQLite, File: "x.db", Table: "select"}, "reserved word"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewMySQLWriter_BadDSN(t *testing.T) {
	_, err := NewMySQLWriter(context.Background(), "not a dsn", DefaultTable)
	assert.ErrorContains(t, err, "invalid MySQL dsn")
}

func TestInsertStatement(t *testing.T) {
	pg := &SQLWriter{dialect: postgresDialect, table: "runs"}
	assert.Equal(t,
		`INSERT INTO "runs" ("scenario", "driver", "passed", "fault", "locator", "attempts", "duration_ms", "message", "started_at") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pg.insertStatement())

	my := &SQLWriter{dialect: mysqlDialect, table: "runs"}
	assert.Contains(t, my.insertStatement(), "INSERT INTO `runs` (`scenario`")
	assert.Contains(t, my.insertStatement(), "VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
}
