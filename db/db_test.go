package db

import (
	"testing"
	"time"

	"hoopsight/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSessionRoundTrip(t *testing.T) {
	d := newTestDB(t)

	sess := &models.ConversationSession{
		ID: "conv-abc123",
		Turns: []models.Turn{
			{Role: models.RoleUser, Text: "Who won?", CreatedAt: time.Now().UTC()},
			{Role: models.RoleAssistant, Text: "The Celtics.", CreatedAt: time.Now().UTC()},
		},
		UpdatedAt: time.Now().UTC(),
	}
	if err := d.StoreSession(sess); err != nil {
		t.Fatalf("failed to store: %v", err)
	}

	got, err := d.GetSession("conv-abc123")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if got == nil || len(got.Turns) != 2 || got.Turns[1].Text != "The Celtics." {
		t.Errorf("unexpected session %+v", got)
	}
}

func TestGetSessionMissing(t *testing.T) {
	d := newTestDB(t)

	got, err := d.GetSession("conv-missing")
	if err != nil {
		t.Fatalf("missing session should not be an error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for a missing session, got %+v", got)
	}
}

func TestDeleteSession(t *testing.T) {
	d := newTestDB(t)

	if err := d.StoreSession(&models.ConversationSession{ID: "conv-gone"}); err != nil {
		t.Fatalf("failed to store: %v", err)
	}
	if err := d.DeleteSession("conv-gone"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if got, _ := d.GetSession("conv-gone"); got != nil {
		t.Error("session should be gone")
	}
}

func TestForEachSession(t *testing.T) {
	d := newTestDB(t)

	for _, id := range []string{"conv-a", "conv-b", "conv-c"} {
		if err := d.StoreSession(&models.ConversationSession{ID: id}); err != nil {
			t.Fatalf("failed to store %s: %v", id, err)
		}
	}
	// Usage records must not leak into the session scan.
	if err := d.StoreUsageRecord(&models.UsageRecord{Identity: "10.0.0.1", Tier: models.TierDemo}); err != nil {
		t.Fatalf("failed to store usage record: %v", err)
	}

	seen := map[string]bool{}
	err := d.ForEachSession(func(sess *models.ConversationSession) error {
		seen[sess.ID] = true
		return nil
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(seen) != 3 || !seen["conv-b"] {
		t.Errorf("unexpected scan result %v", seen)
	}
}

func TestUsageRecords(t *testing.T) {
	d := newTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	rec := &models.UsageRecord{
		Identity:    "10.0.0.1",
		Tier:        models.TierDemo,
		Count:       2,
		WindowStart: now,
		Stamps:      []time.Time{now, now.Add(time.Minute)},
	}
	if err := d.StoreUsageRecord(rec); err != nil {
		t.Fatalf("failed to store: %v", err)
	}

	records, err := d.GetUsageRecords()
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	got, ok := records["10.0.0.1"]
	if !ok {
		t.Fatalf("record missing, got %v", records)
	}
	if got.Count != 2 || len(got.Stamps) != 2 {
		t.Errorf("unexpected record %+v", got)
	}
	if !got.Stamps[0].Equal(now) {
		t.Errorf("stamp drifted: %v vs %v", got.Stamps[0], now)
	}
}
