// internal/report/sql.go
package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// dialect holds what differs between the SQL backends.
type dialect struct {
	driver      string
	quote       func(string) string
	placeholder func(n int) string
	createTable string
}

var sqliteDialect = dialect{
	driver:      "sqlite3",
	quote:       func(s string) string { return "[" + s + "]" },
	placeholder: func(int) string { return "?" },
	createTable: `CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scenario TEXT NOT NULL,
		driver TEXT NOT NULL,
		passed INTEGER NOT NULL,
		fault TEXT,
		locator TEXT,
		attempts INTEGER,
		duration_ms INTEGER NOT NULL,
		message TEXT,
		started_at DATETIME NOT NULL
	)`,
}

var postgresDialect = dialect{
	driver:      "postgres",
	quote:       pq.QuoteIdentifier,
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	createTable: `CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		scenario TEXT NOT NULL,
		driver TEXT NOT NULL,
		passed BOOLEAN NOT NULL,
		fault TEXT,
		locator TEXT,
		attempts INTEGER,
		duration_ms BIGINT NOT NULL,
		message TEXT,
		started_at TIMESTAMPTZ NOT NULL
	)`,
}

var mysqlDialect = dialect{
	driver:      "mysql",
	quote:       func(s string) string { return "`" + s + "`" },
	placeholder: func(int) string { return "?" },
	createTable: `CREATE TABLE IF NOT EXISTS %s (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		scenario VARCHAR(128) NOT NULL,
		driver VARCHAR(32) NOT NULL,
		passed BOOLEAN NOT NULL,
		fault VARCHAR(32),
		locator TEXT,
		attempts INT,
		duration_ms BIGINT NOT NULL,
		message TEXT,
		started_at DATETIME(3) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

var resultColumns = []string{
	"scenario", "driver", "passed", "fault", "locator", "attempts", "duration_ms", "message", "started_at",
}

// SQLWriter inserts results into a table, creating it if missing.
type SQLWriter struct {
	db      *sql.DB
	dialect dialect
	table   string
}

// NewSQLiteWriter opens (or creates) the database file at path.
func NewSQLiteWriter(ctx context.Context, path, table string) (*SQLWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("SQLite database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	return newSQLWriter(ctx, db, sqliteDialect, table)
}

// NewPostgresWriter connects with a lib/pq connection string or URL.
func NewPostgresWriter(ctx context.Context, dsn, table string) (*SQLWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return newSQLWriter(ctx, db, postgresDialect, table)
}

// NewMySQLWriter connects with a go-sql-driver DSN. parseTime is forced on.
func NewMySQLWriter(ctx context.Context, dsn, table string) (*SQLWriter, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return newSQLWriter(ctx, db, mysqlDialect, table)
}

func newSQLWriter(ctx context.Context, db *sql.DB, d dialect, table string) (*SQLWriter, error) {
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateTableName(table); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.driver, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(d.createTable, d.quote(table))); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return &SQLWriter{db: db, dialect: d, table: table}, nil
}

func (w *SQLWriter) insertStatement() string {
	quoted := make([]string, len(resultColumns))
	marks := make([]string, len(resultColumns))
	for i, column := range resultColumns {
		quoted[i] = w.dialect.quote(column)
		marks[i] = w.dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.dialect.quote(w.table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}

// Write inserts every result in one transaction.
func (w *SQLWriter) Write(ctx context.Context, results []Result) (err error) {
	if len(results) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, w.insertStatement())
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		_, err = stmt.ExecContext(ctx,
			r.Scenario, r.Driver, r.Passed,
			nullString(r.Fault), nullString(r.Locator), r.Attempts,
			r.Duration.Milliseconds(), nullString(r.Message), r.StartedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert result for %s: %w", r.Scenario, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	return nil
}

// Close closes the database handle
func (w *SQLWriter) Close() error {
	return w.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
