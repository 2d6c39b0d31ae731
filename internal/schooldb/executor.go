package schooldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aulaflow/aulaflow/internal/models"
)

// ErrNotSelect is returned for any statement that is not a plain SELECT.
// The core never writes to the database.
var ErrNotSelect = errors.New("schooldb: only SELECT statements are allowed")

// Result is the outcome of one query execution.
type Result struct {
	Rows     []models.Row
	RowCount int
	SQL      string
}

// Executor runs read-only queries against the school database. Connections
// are short-lived per call semantics on top of database/sql's pool; every
// query opens, runs and releases with no long transactions. The sqlite
// JSON1 functions (JSON_EACH, JSON_EXTRACT) are required and available with
// the bundled driver.
type Executor struct {
	db *sql.DB
}

// Open opens the sqlite database at path.
func Open(path string) (*Executor, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Executor{db: db}, nil
}

// NewExecutor wraps an existing handle. Used by tests with in-memory
// databases.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Execute runs one SELECT and materializes every row. Any other statement
// type is refused before touching the database.
func (e *Executor) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	if !IsSelect(query) {
		return nil, ErrNotSelect
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []models.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(models.Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return &Result{Rows: out, RowCount: len(out), SQL: query}, nil
}

// Close releases the underlying handle.
func (e *Executor) Close() error {
	return e.db.Close()
}

// IsSelect reports whether the statement is a single SELECT. Leading
// whitespace and SQL comments are skipped before the check.
func IsSelect(query string) bool {
	trimmed := strings.TrimSpace(query)
	for strings.HasPrefix(trimmed, "--") {
		nl := strings.IndexByte(trimmed, '\n')
		if nl == -1 {
			return false
		}
		trimmed = strings.TrimSpace(trimmed[nl+1:])
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") {
		return false
	}
	// Refuse stacked statements.
	if i := strings.IndexByte(trimmed, ';'); i != -1 && strings.TrimSpace(trimmed[i+1:]) != "" {
		return false
	}
	return true
}

// normalizeValue converts driver values to JSON-friendly types.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	default:
		return v
	}
}
