package store

import (
	"context"
	"fmt"
	"strings"

	"hoopsight/models"
)

// Schema returns the table/column catalog for the analytical store. The
// catalog is cached per process; Invalidate after a sync to refresh it.
func (s *Store) Schema(ctx context.Context) ([]models.TableSchema, error) {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if s.schemaCache != nil {
		return s.schemaCache, nil
	}

	var (
		catalog []models.TableSchema
		err     error
	)
	switch s.driver {
	case "sqlserver":
		catalog, err = s.sqlserverSchema(ctx)
	default:
		catalog, err = s.sqliteSchema(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.schemaCache = catalog
	return catalog, nil
}

// InvalidateSchema drops the cached catalog. Called after a CSV sync.
func (s *Store) InvalidateSchema() {
	s.schemaMu.Lock()
	s.schemaCache = nil
	s.schemaMu.Unlock()
}

func (s *Store) sqliteSchema(ctx context.Context) ([]models.TableSchema, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var catalog []models.TableSchema
	for _, name := range names {
		cols, err := s.db.QueryContext(ctx,
			`SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe table %s: %w", name, err)
		}

		table := models.TableSchema{Name: name}
		for cols.Next() {
			var col models.Column
			if err := cols.Scan(&col.Name, &col.Type); err != nil {
				cols.Close()
				return nil, err
			}
			table.Columns = append(table.Columns, col)
		}
		if err := cols.Err(); err != nil {
			cols.Close()
			return nil, err
		}
		cols.Close()
		catalog = append(catalog, table)
	}

	return catalog, nil
}

func (s *Store) sqlserverSchema(ctx context.Context) ([]models.TableSchema, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		ORDER BY TABLE_NAME, ORDINAL_POSITION`)
	if err != nil {
		return nil, fmt.Errorf("failed to read information schema: %w", err)
	}
	defer rows.Close()

	var catalog []models.TableSchema
	byName := make(map[string]int)

	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return nil, err
		}
		idx, ok := byName[table]
		if !ok {
			catalog = append(catalog, models.TableSchema{Name: table})
			idx = len(catalog) - 1
			byName[table] = idx
		}
		catalog[idx].Columns = append(catalog[idx].Columns, models.Column{Name: column, Type: dataType})
	}

	return catalog, rows.Err()
}

// FormatSchema renders the catalog as plain text for the SQL prompt.
func FormatSchema(catalog []models.TableSchema) string {
	var b strings.Builder
	for _, table := range catalog {
		b.WriteString(fmt.Sprintf("Table: %s\n", table.Name))
		for _, col := range table.Columns {
			b.WriteString(fmt.Sprintf("  %s (%s)\n", col.Name, col.Type))
		}
		b.WriteString("\n")
	}
	return b.String()
}
