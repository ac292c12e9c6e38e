package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"hoopsight/db"
	"hoopsight/models"
)

// Store keeps conversation sessions in memory, partitioned by conversation
// id, with write-through persistence to Badger. Each session carries its own
// lock so turns within one conversation are processed in arrival order while
// unrelated conversations never contend.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	persist *db.DB
}

type entry struct {
	mu   sync.Mutex
	sess *models.ConversationSession
}

func NewStore(persist *db.DB) *Store {
	return &Store{
		entries: make(map[string]*entry),
		persist: persist,
	}
}

// Mint creates a fresh conversation id.
func Mint() string {
	return "conv-" + uuid.New().String()[:12]
}

// Handle is an acquired, locked session. Callers must Release when the turn
// is done; Release persists the session and unlocks the conversation.
type Handle struct {
	store *Store
	entry *entry
}

// Acquire locks the session for id and returns it, blocking while another
// turn of the same conversation is in flight.
//
// Resolution order: in-memory entry, then persisted copy, then
// reconstruction from the client-supplied history. When the client sends a
// non-empty history it is authoritative and replaces the stored turn list —
// this is the stateless-client trust boundary: a client can forge its own
// context, but history only ever shapes prompt context, never quota or
// authentication.
func (s *Store) Acquire(id string, history []models.ChatMessage) *Handle {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	s.mu.Unlock()

	e.mu.Lock()

	if e.sess == nil && s.persist != nil {
		stored, err := s.persist.GetSession(id)
		if err != nil {
			log.Printf("Error loading session %s: %v", id, err)
		} else if stored != nil {
			e.sess = stored
		}
	}
	if e.sess == nil {
		e.sess = &models.ConversationSession{ID: id, UpdatedAt: time.Now()}
	}

	if len(history) > 0 {
		e.sess.Turns = turnsFromHistory(history)
	}

	return &Handle{store: s, entry: e}
}

func (h *Handle) Session() *models.ConversationSession {
	return h.entry.sess
}

// Append adds a turn to the session. Turns are immutable once appended.
func (h *Handle) Append(turn models.Turn) {
	sess := h.entry.sess
	sess.Turns = append(sess.Turns, turn)
	sess.UpdatedAt = time.Now()
}

// SetLastResult points the session at the most recent query result.
func (h *Handle) SetLastResult(result *models.QueryResult) {
	h.entry.sess.LastResult = result
	h.entry.sess.UpdatedAt = time.Now()
}

// Recent returns up to n of the most recent turns, oldest first. The window
// is passed by value into generation so prompt growth stays bounded.
func (h *Handle) Recent(n int) []models.Turn {
	turns := h.entry.sess.Turns
	if len(turns) <= n {
		return append([]models.Turn(nil), turns...)
	}
	return append([]models.Turn(nil), turns[len(turns)-n:]...)
}

// Release persists the session and unlocks the conversation.
func (h *Handle) Release() {
	if h.store.persist != nil {
		if err := h.store.persist.StoreSession(h.entry.sess); err != nil {
			log.Printf("Error persisting session %s: %v", h.entry.sess.ID, err)
		}
	}
	h.entry.mu.Unlock()
}

// Prune drops sessions idle for longer than horizon, both from memory and
// from the persistent store. Returns the number of sessions removed.
//
// Each entry's lock is taken non-blockingly before inspection: a conversation
// with a turn in flight is skipped this cycle, so pruning never races an
// active handle or lets a concurrent Acquire bypass the per-conversation
// serialization.
func (s *Store) Prune(horizon time.Duration) int {
	cutoff := time.Now().Add(-horizon)
	removed := 0

	s.mu.Lock()
	for id, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.sess != nil && e.sess.UpdatedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
		e.mu.Unlock()
	}
	s.mu.Unlock()

	if s.persist != nil {
		var stale []string
		err := s.persist.ForEachSession(func(sess *models.ConversationSession) error {
			if sess.UpdatedAt.Before(cutoff) {
				stale = append(stale, sess.ID)
			}
			return nil
		})
		if err != nil {
			log.Printf("Error scanning sessions for prune: %v", err)
			return removed
		}
		for _, id := range stale {
			if err := s.persist.DeleteSession(id); err != nil {
				log.Printf("Error deleting session %s: %v", id, err)
			}
		}
	}

	return removed
}

func turnsFromHistory(history []models.ChatMessage) []models.Turn {
	turns := make([]models.Turn, 0, len(history))
	for _, msg := range history {
		role := msg.Role
		if role != models.RoleUser && role != models.RoleAssistant {
			continue
		}
		turns = append(turns, models.Turn{
			Role:      role,
			Text:      msg.Content,
			CreatedAt: time.Now(),
		})
	}
	return turns
}
