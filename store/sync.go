package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var identifierPattern = regexp.MustCompile(`[^a-z0-9_]+`)

// SyncCSVDir loads every *.csv file in dir into the analytical store, one
// table per file (filename stem = table name). An existing table with the
// same name is replaced. Returns the number of tables loaded.
func (s *Store) SyncCSVDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read data directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".csv") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		table := sanitizeIdentifier(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))

		rowCount, err := s.loadCSVFile(ctx, path, table)
		if err != nil {
			return loaded, fmt.Errorf("failed to load %s: %w", entry.Name(), err)
		}
		log.Printf("Loaded table %s (%d rows) from %s", table, rowCount, entry.Name())
		loaded++
	}

	s.InvalidateSchema()
	return loaded, nil
}

func (s *Store) loadCSVFile(ctx context.Context, path string, table string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return 0, err
	}
	if len(records) < 1 {
		return 0, fmt.Errorf("empty CSV file")
	}

	header := records[0]
	body := records[1:]

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = sanitizeIdentifier(h)
	}
	numeric := inferNumericColumns(body, len(columns))

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return 0, err
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		colType := "TEXT"
		if numeric[i] {
			colType = "REAL"
		}
		if s.driver == "sqlserver" {
			colType = "NVARCHAR(MAX)"
			if numeric[i] {
				colType = "FLOAT"
			}
		}
		defs[i] = fmt.Sprintf("%s %s", col, colType)
	}
	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, createStmt); err != nil {
		return 0, err
	}

	insertStmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), s.placeholders(len(columns)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	inserted := 0
	for _, record := range body {
		args := make([]interface{}, len(columns))
		for i := range columns {
			var raw string
			if i < len(record) {
				raw = strings.TrimSpace(record[i])
			}
			if raw == "" {
				args[i] = nil
				continue
			}
			if numeric[i] {
				n, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					args[i] = nil
					continue
				}
				args[i] = n
			} else {
				args[i] = raw
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			tx.Rollback()
			return 0, err
		}
		inserted++
	}

	stmt.Close()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		if s.driver == "sqlserver" {
			parts[i] = fmt.Sprintf("@p%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// inferNumericColumns marks a column numeric when every non-empty cell
// parses as a float.
func inferNumericColumns(rows [][]string, width int) []bool {
	numeric := make([]bool, width)
	for i := range numeric {
		numeric[i] = true
		seen := false
		for _, row := range rows {
			if i >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				numeric[i] = false
				break
			}
		}
		if !seen {
			numeric[i] = false
		}
	}
	return numeric
}

func sanitizeIdentifier(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	lower = strings.ReplaceAll(lower, " ", "_")
	lower = identifierPattern.ReplaceAllString(lower, "")
	if lower == "" {
		lower = "col"
	}
	if lower[0] >= '0' && lower[0] <= '9' {
		lower = "t_" + lower
	}
	return lower
}
