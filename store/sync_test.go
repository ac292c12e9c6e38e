package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestSyncCSVDir(t *testing.T) {
	s := newTestStore(t, 200)
	dir := t.TempDir()

	writeCSV(t, dir, "Team Stats.csv", "Team Name,Wins,Losses\nCeltics,64,18\nNuggets,57,25\n")
	writeCSV(t, dir, "players.csv", "name,pts\nTatum,26.9\nJokic,29.7\n")
	writeCSV(t, dir, "notes.txt", "not a csv")

	n, err := s.SyncCSVDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 tables loaded, got %d", n)
	}

	// Filenames and headers are sanitized into identifiers.
	result, execErr := s.Execute(context.Background(), "SELECT team_name, wins FROM team_stats ORDER BY wins DESC")
	if execErr != nil {
		t.Fatalf("query failed: %v", execErr)
	}
	if result.RowCount != 2 || result.Rows[0][0] != "Celtics" {
		t.Errorf("unexpected result %+v", result.Rows)
	}
	if result.Rows[0][1] != 64.0 {
		t.Errorf("numeric column should hold floats, got %T %v", result.Rows[0][1], result.Rows[0][1])
	}
}

func TestSyncReplacesExistingTable(t *testing.T) {
	s := newTestStore(t, 200)
	dir := t.TempDir()

	writeCSV(t, dir, "players.csv", "name,pts\nTatum,26.9\n")
	if _, err := s.SyncCSVDir(context.Background(), dir); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	writeCSV(t, dir, "players.csv", "name,pts\nJokic,29.7\nGiannis,30.4\n")
	if _, err := s.SyncCSVDir(context.Background(), dir); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	result, execErr := s.Execute(context.Background(), "SELECT COUNT(*) AS n FROM players")
	if execErr != nil {
		t.Fatalf("query failed: %v", execErr)
	}
	if result.Rows[0][0] != int64(2) {
		t.Errorf("table should be replaced, count = %v", result.Rows[0][0])
	}
}

func TestSyncRefreshesSchemaCatalog(t *testing.T) {
	s := newTestStore(t, 200)

	if catalog, err := s.Schema(context.Background()); err != nil || len(catalog) != 0 {
		t.Fatalf("expected an empty catalog, got %d tables (err %v)", len(catalog), err)
	}

	dir := t.TempDir()
	writeCSV(t, dir, "games.csv", "date,home_pts\n2024-01-01,110\n")
	if _, err := s.SyncCSVDir(context.Background(), dir); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	catalog, err := s.Schema(context.Background())
	if err != nil {
		t.Fatalf("failed to read schema: %v", err)
	}
	if len(catalog) != 1 || catalog[0].Name != "games" {
		t.Errorf("catalog should see the synced table, got %+v", catalog)
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Team Stats", "team_stats"},
		{"3pt%", "t_3pt"},
		{"  Wins  ", "wins"},
		{"$$$", "col"},
	}
	for _, tt := range tests {
		if got := sanitizeIdentifier(tt.in); got != tt.want {
			t.Errorf("sanitizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
