// internal/report/types.go

// Package report persists scenario results as JSON, to a SQL database or to
// an Excel workbook.
package report

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Result is the outcome of one scenario run. A failed result carries the
// fault kind and the locator in play when it failed.
type Result struct {
	Scenario  string        `json:"scenario" yaml:"scenario"`
	Driver    string        `json:"driver" yaml:"driver"`
	Passed    bool          `json:"passed" yaml:"passed"`
	Fault     string        `json:"fault,omitempty" yaml:"fault,omitempty"`
	Locator   string        `json:"locator,omitempty" yaml:"locator,omitempty"`
	Attempts  int           `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Message   string        `json:"message,omitempty" yaml:"message,omitempty"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
}

// Status renders the result as PASS or FAIL.
func (r Result) Status() string {
	if r.Passed {
		return "PASS"
	}
	return "FAIL"
}

// Summary counts results.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Summarize counts passed and failed results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		s.Duration += r.Duration
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// Format names an output backend.
type Format string

const (
	FormatJSON     Format = "json"
	FormatSQLite   Format = "sqlite"
	FormatPostgres Format = "postgres"
	FormatMySQL    Format = "mysql"
	FormatExcel    Format = "excel"
)

// ValidFormats returns every supported output format.
func ValidFormats() []Format {
	return []Format{FormatJSON, FormatSQLite, FormatPostgres, FormatMySQL, FormatExcel}
}

// OutputConfig selects and configures the report backend.
type OutputConfig struct {
	Format Format `yaml:"format" json:"format"`
	// File is the JSON, SQLite or Excel path. Empty JSON output goes to stdout.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
	// DSN is the PostgreSQL or MySQL connection string.
	DSN   string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Table string `yaml:"table,omitempty" json:"table,omitempty"`
	Sheet string `yaml:"sheet,omitempty" json:"sheet,omitempty"`
}

// Validate checks that the settings the format needs are present.
func (c OutputConfig) Validate() error {
	switch c.Format {
	case "", FormatJSON:
	case FormatSQLite, FormatExcel:
		if c.File == "" {
			return fmt.Errorf("output format %s requires a file", c.Format)
		}
	case FormatPostgres, FormatMySQL:
		if c.DSN == "" {
			return fmt.Errorf("output format %s requires a dsn", c.Format)
		}
	default:
		return fmt.Errorf("unsupported output format: %s", c.Format)
	}
	if c.Table != "" {
		if err := ValidateTableName(c.Table); err != nil {
			return err
		}
	}
	return nil
}

// Writer persists results.
type Writer interface {
	Write(ctx context.Context, results []Result) error
	Close() error
}

const DefaultTable = "scenario_results"

var sqlIdentifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

var reservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "TABLE": true,
	"FROM": true, "WHERE": true, "GROUP": true, "ORDER": true, "USER": true,
	"INDEX": true, "DROP": true, "CREATE": true,
}

// ValidateTableName rejects names that would need quoting.
func ValidateTableName(name string) error {
	if !sqlIdentifierRegex.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	if reservedWords[strings.ToUpper(name)] {
		return fmt.Errorf("table name %q is a reserved word", name)
	}
	return nil
}

// NewWriter creates the writer for config.Format.
func NewWriter(ctx context.Context, config OutputConfig) (Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Table == "" {
		config.Table = DefaultTable
	}
	switch config.Format {
	case "", FormatJSON:
		return NewJSONWriter(config.File)
	case FormatSQLite:
		return NewSQLiteWriter(ctx, config.File, config.Table)
	case FormatPostgres:
		return NewPostgresWriter(ctx, config.DSN, config.Table)
	case FormatMySQL:
		return NewMySQLWriter(ctx, config.DSN, config.Table)
	case FormatExcel:
		return NewExcelWriter(config.File, config.Sheet)
	}
	return nil, fmt.Errorf("unsupported output format: %s", config.Format)
}
