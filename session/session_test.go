package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"hoopsight/db"
	"hoopsight/models"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMint(t *testing.T) {
	id := Mint()
	if !strings.HasPrefix(id, "conv-") {
		t.Errorf("id %q should have conv- prefix", id)
	}
	if len(id) != len("conv-")+12 {
		t.Errorf("id %q should carry a 12-char suffix", id)
	}
	if Mint() == id {
		t.Error("consecutive ids should differ")
	}
}

func TestAcquireAppendsInOrder(t *testing.T) {
	s := NewStore(nil)

	h := s.Acquire("conv-test", nil)
	h.Append(models.Turn{Role: models.RoleUser, Text: "first", CreatedAt: time.Now()})
	h.Append(models.Turn{Role: models.RoleAssistant, Text: "second", CreatedAt: time.Now()})
	h.Release()

	h = s.Acquire("conv-test", nil)
	defer h.Release()
	turns := h.Session().Turns
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Text != "first" || turns[1].Text != "second" {
		t.Errorf("turns out of order: %q, %q", turns[0].Text, turns[1].Text)
	}
}

func TestClientHistoryReconstructsSession(t *testing.T) {
	s := NewStore(nil)

	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "Who won the finals?"},
		{Role: models.RoleAssistant, Content: "The Celtics."},
		{Role: "system", Content: "ignored"},
	}
	h := s.Acquire("conv-replay", history)
	defer h.Release()

	turns := h.Session().Turns
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns (unknown roles dropped), got %d", len(turns))
	}
	if turns[0].Role != models.RoleUser || turns[1].Role != models.RoleAssistant {
		t.Errorf("unexpected roles %q, %q", turns[0].Role, turns[1].Role)
	}
}

func TestClientHistoryReplacesStoredTurns(t *testing.T) {
	s := NewStore(nil)

	h := s.Acquire("conv-a", nil)
	h.Append(models.Turn{Role: models.RoleUser, Text: "stored", CreatedAt: time.Now()})
	h.Release()

	h = s.Acquire("conv-a", []models.ChatMessage{
		{Role: models.RoleUser, Content: "replayed"},
	})
	defer h.Release()

	turns := h.Session().Turns
	if len(turns) != 1 || turns[0].Text != "replayed" {
		t.Errorf("client history should replace stored turns, got %+v", turns)
	}
}

func TestRecentWindow(t *testing.T) {
	s := NewStore(nil)
	h := s.Acquire("conv-window", nil)
	defer h.Release()

	for i := 0; i < 10; i++ {
		h.Append(models.Turn{Role: models.RoleUser, Text: fmt.Sprintf("turn-%d", i), CreatedAt: time.Now()})
	}

	recent := h.Recent(4)
	if len(recent) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(recent))
	}
	if recent[0].Text != "turn-6" || recent[3].Text != "turn-9" {
		t.Errorf("expected the most recent turns oldest-first, got %q..%q", recent[0].Text, recent[3].Text)
	}

	if got := h.Recent(100); len(got) != 10 {
		t.Errorf("oversized window should return all turns, got %d", len(got))
	}
}

func TestTurnsSerializedPerConversation(t *testing.T) {
	s := NewStore(nil)

	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := s.Acquire("conv-serial", nil)
			h.Append(models.Turn{Role: models.RoleUser, Text: "ping", CreatedAt: time.Now()})
			h.Append(models.Turn{Role: models.RoleAssistant, Text: "pong", CreatedAt: time.Now()})
			h.Release()
		}()
	}
	wg.Wait()

	h := s.Acquire("conv-serial", nil)
	defer h.Release()
	got := h.Session().Turns
	if len(got) != 2*turns {
		t.Fatalf("expected %d turns, got %d", 2*turns, len(got))
	}
	// Each turn's pair must be adjacent: no interleaving across goroutines.
	for i := 0; i < len(got); i += 2 {
		if got[i].Role != models.RoleUser || got[i+1].Role != models.RoleAssistant {
			t.Fatalf("interleaved turn pair at %d: %s, %s", i, got[i].Role, got[i+1].Role)
		}
	}
}

func TestSessionPersistsAcrossStores(t *testing.T) {
	database := newTestDB(t)

	s := NewStore(database)
	h := s.Acquire("conv-persist", nil)
	h.Append(models.Turn{Role: models.RoleUser, Text: "hello", CreatedAt: time.Now()})
	h.SetLastResult(&models.QueryResult{Columns: []string{"pts"}, RowCount: 1})
	h.Release()

	fresh := NewStore(database)
	h = fresh.Acquire("conv-persist", nil)
	defer h.Release()

	sess := h.Session()
	if len(sess.Turns) != 1 || sess.Turns[0].Text != "hello" {
		t.Fatalf("expected the persisted turn, got %+v", sess.Turns)
	}
	if sess.LastResult == nil || sess.LastResult.RowCount != 1 {
		t.Error("expected the persisted last result")
	}
}

func TestPrune(t *testing.T) {
	database := newTestDB(t)
	s := NewStore(database)

	h := s.Acquire("conv-stale", nil)
	h.Append(models.Turn{Role: models.RoleUser, Text: "old", CreatedAt: time.Now()})
	h.Release()

	// Backdate the stored session past the horizon.
	stale := &models.ConversationSession{
		ID:        "conv-stale",
		Turns:     []models.Turn{{Role: models.RoleUser, Text: "old"}},
		UpdatedAt: time.Now().Add(-48 * time.Hour),
	}
	if err := database.StoreSession(stale); err != nil {
		t.Fatalf("failed to backdate session: %v", err)
	}
	s.entries["conv-stale"].sess.UpdatedAt = stale.UpdatedAt

	h = s.Acquire("conv-fresh", nil)
	h.Append(models.Turn{Role: models.RoleUser, Text: "new", CreatedAt: time.Now()})
	h.Release()

	if removed := s.Prune(24 * time.Hour); removed != 1 {
		t.Fatalf("expected 1 pruned session, got %d", removed)
	}

	if _, ok := s.entries["conv-stale"]; ok {
		t.Error("stale session should be gone from memory")
	}
	stored, err := database.GetSession("conv-stale")
	if err != nil || stored != nil {
		t.Errorf("stale session should be gone from the store, got %+v (err %v)", stored, err)
	}
	if kept, _ := database.GetSession("conv-fresh"); kept == nil {
		t.Error("fresh session should survive the prune")
	}
}

func TestPruneSkipsInFlightConversations(t *testing.T) {
	s := NewStore(nil)

	h := s.Acquire("conv-busy", nil)
	h.Append(models.Turn{Role: models.RoleUser, Text: "first", CreatedAt: time.Now()})
	// Backdate while holding the conversation lock so only the in-flight
	// guard can keep the entry alive.
	h.entry.sess.UpdatedAt = time.Now().Add(-48 * time.Hour)

	if removed := s.Prune(24 * time.Hour); removed != 0 {
		t.Fatalf("prune removed %d in-flight sessions, want 0", removed)
	}
	s.mu.Lock()
	_, ok := s.entries["conv-busy"]
	s.mu.Unlock()
	if !ok {
		t.Fatal("in-flight conversation should survive the prune")
	}

	// A second turn for the same conversation must still wait for the first.
	done := make(chan struct{})
	go func() {
		h2 := s.Acquire("conv-busy", nil)
		h2.Append(models.Turn{Role: models.RoleAssistant, Text: "second", CreatedAt: time.Now()})
		h2.Release()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second turn for the same conversation ran while the first was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	h.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second turn never ran after the first released")
	}

	h = s.Acquire("conv-busy", nil)
	defer h.Release()
	turns := h.Session().Turns
	if len(turns) != 2 || turns[0].Text != "first" || turns[1].Text != "second" {
		t.Errorf("turns lost or reordered across the prune: %+v", turns)
	}
}
