package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"hoopsight/config"
	"hoopsight/models"
	"hoopsight/validation"
)

// Error classes carried by ExecutionError. The SQL engine feeds the class
// and raw message back into its correction loop verbatim.
const (
	ErrClassSyntax        = "syntax"
	ErrClassUnknownColumn = "unknown-column"
	ErrClassUnknownTable  = "unknown-table"
	ErrClassTimeout       = "timeout"
	ErrClassOther         = "other"
)

// ExecutionError is a structured failure from the analytical store.
type ExecutionError struct {
	Class     string
	Message   string
	Statement string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// Store wraps the analytical database behind a read-only query executor.
// The store never retries; all retry policy lives in the caller.
type Store struct {
	db           *sql.DB
	driver       string
	queryTimeout time.Duration
	maxRows      int

	schemaMu    sync.Mutex
	schemaCache []models.TableSchema
}

func New(cfg config.StoreConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	if driver != "sqlite" && driver != "sqlserver" {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytical store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 200
	}

	return &Store{
		db:           db,
		driver:       driver,
		queryTimeout: timeout,
		maxRows:      maxRows,
	}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Driver() string {
	return s.driver
}

// Execute runs a read-only statement with the configured timeout and row
// cap. Results beyond the cap are dropped and the Truncated flag is set.
func (s *Store) Execute(ctx context.Context, statement string) (*models.QueryResult, *ExecutionError) {
	if !validation.IsReadOnlyQuery(statement) {
		return nil, &ExecutionError{
			Class:     ErrClassOther,
			Message:   "read-only session: statement rejected",
			Statement: statement,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, s.classifyError(ctx, err, statement)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, s.classifyError(ctx, err, statement)
	}

	dbTypes := make([]string, len(columns))
	if colTypes, err := rows.ColumnTypes(); err == nil {
		for i, ct := range colTypes {
			dbTypes[i] = ct.DatabaseTypeName()
		}
	}

	var resultRows [][]interface{}
	truncated := false

	for rows.Next() {
		if len(resultRows) >= s.maxRows {
			truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, s.classifyError(ctx, err, statement)
		}

		row := make([]interface{}, len(columns))
		for i, val := range values {
			row[i] = normalizeValue(val)
		}
		resultRows = append(resultRows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, s.classifyError(ctx, err, statement)
	}

	return &models.QueryResult{
		Columns:   columns,
		Types:     inferTypes(dbTypes, resultRows),
		Rows:      resultRows,
		RowCount:  len(resultRows),
		Truncated: truncated,
	}, nil
}

func (s *Store) classifyError(ctx context.Context, err error, statement string) *ExecutionError {
	msg := err.Error()
	class := ErrClassOther

	switch {
	// The sqlite driver surfaces a deadline as an interrupt, so the
	// statement's own context is consulted alongside the error.
	case errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		containsAny(msg, "context deadline exceeded", "interrupted"):
		class = ErrClassTimeout
		msg = fmt.Sprintf("query exceeded timeout of %s", s.queryTimeout)
	case containsAny(msg, "no such column", "Invalid column name", "could not find column"):
		class = ErrClassUnknownColumn
	case containsAny(msg, "no such table", "Invalid object name", "no such view"):
		class = ErrClassUnknownTable
	case containsAny(msg, "syntax error", "incorrect syntax", "parse error", "unrecognized token"):
		class = ErrClassSyntax
	}

	return &ExecutionError{Class: class, Message: msg, Statement: statement}
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func normalizeValue(val interface{}) interface{} {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return v
	}
}

// inferTypes maps driver type names onto the semantic column types, falling
// back to sniffing the first non-nil value of each column.
func inferTypes(dbTypes []string, rows [][]interface{}) []string {
	types := make([]string, len(dbTypes))
	for i, dbType := range dbTypes {
		types[i] = semanticType(dbType)
		if types[i] != "" {
			continue
		}
		types[i] = models.ColString
		for _, row := range rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			types[i] = sniffValueType(row[i])
			break
		}
	}
	return types
}

func semanticType(dbType string) string {
	upper := strings.ToUpper(dbType)
	switch {
	case upper == "":
		return ""
	case strings.Contains(upper, "INT"),
		strings.Contains(upper, "REAL"),
		strings.Contains(upper, "FLOA"),
		strings.Contains(upper, "DOUB"),
		strings.Contains(upper, "DECIMAL"),
		strings.Contains(upper, "NUMERIC"),
		strings.Contains(upper, "MONEY"):
		return models.ColNumber
	case strings.Contains(upper, "BOOL"), upper == "BIT":
		return models.ColBoolean
	case strings.Contains(upper, "DATE"), strings.Contains(upper, "TIME"):
		return models.ColDatetime
	case strings.Contains(upper, "CHAR"), strings.Contains(upper, "TEXT"), strings.Contains(upper, "CLOB"):
		return models.ColString
	}
	return ""
}

func sniffValueType(val interface{}) string {
	switch v := val.(type) {
	case int, int32, int64, float32, float64:
		return models.ColNumber
	case bool:
		return models.ColBoolean
	case string:
		if _, err := time.Parse(time.RFC3339, v); err == nil {
			return models.ColDatetime
		}
		if _, err := time.Parse("2006-01-02", v); err == nil {
			return models.ColDatetime
		}
		return models.ColString
	default:
		return models.ColString
	}
}
