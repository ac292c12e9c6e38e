package ratelimit

import (
	"log"
	"sync"
	"time"

	"hoopsight/db"
	"hoopsight/models"
)

// Limiter enforces per-identity quotas over a rolling window. Demo-tier
// identities (client IPs) get a fixed number of queries per window; admin
// identities are never limited. Counters are partitioned by identity and
// independent of conversation state.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record
	limit   int
	window  time.Duration
	persist *db.DB

	now func() time.Time
}

type record struct {
	stamps []time.Time // send time of every counted query, oldest first
}

// Decision is the outcome of a CheckAndIncrement call.
type Decision struct {
	Allowed    bool
	Unlimited  bool
	Remaining  int
	RetryAfter time.Duration
}

func New(limit int, window time.Duration, persist *db.DB) *Limiter {
	l := &Limiter{
		records: make(map[string]*record),
		limit:   limit,
		window:  window,
		persist: persist,
		now:     time.Now,
	}
	l.rehydrate()
	return l
}

func (l *Limiter) rehydrate() {
	if l.persist == nil {
		return
	}
	stored, err := l.persist.GetUsageRecords()
	if err != nil {
		log.Printf("Error loading usage records: %v", err)
		return
	}
	for identity, rec := range stored {
		l.records[identity] = &record{stamps: rec.Stamps}
	}
}

// CheckAndIncrement consumes one slot for the identity, or denies with the
// time until the oldest counted query ages out of the window. Admin tier is
// always allowed and never counted. The increment happens on every accepted
// attempt, not only on fully successful turns — a failed SQL generation
// still consumed a language-model call.
func (l *Limiter) CheckAndIncrement(identity string, tier string) Decision {
	if tier == models.TierAdmin {
		return Decision{Allowed: true, Unlimited: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[identity]
	if !ok {
		rec = &record{}
		l.records[identity] = rec
	}
	rec.prune(now, l.window)

	if len(rec.stamps) >= l.limit {
		retryAfter := rec.stamps[0].Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
	}

	rec.stamps = append(rec.stamps, now)
	l.snapshot(identity, rec, now)

	return Decision{Allowed: true, Remaining: l.limit - len(rec.stamps)}
}

// Usage reports the current window state without consuming a slot.
func (l *Limiter) Usage(identity string, tier string) models.UsageResponse {
	if tier == models.TierAdmin {
		return models.UsageResponse{Tier: models.TierAdmin}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	used := 0
	if rec, ok := l.records[identity]; ok {
		rec.prune(l.now(), l.window)
		used = len(rec.stamps)
	}
	remaining := l.limit - used
	if remaining < 0 {
		remaining = 0
	}
	limit := l.limit

	return models.UsageResponse{
		Tier:             models.TierDemo,
		QueriesUsed:      &used,
		QueriesRemaining: &remaining,
		QueriesLimit:     &limit,
	}
}

func (l *Limiter) snapshot(identity string, rec *record, now time.Time) {
	if l.persist == nil {
		return
	}
	windowStart := now
	if len(rec.stamps) > 0 {
		windowStart = rec.stamps[0]
	}
	err := l.persist.StoreUsageRecord(&models.UsageRecord{
		Identity:    identity,
		Tier:        models.TierDemo,
		Count:       len(rec.stamps),
		WindowStart: windowStart,
		Stamps:      rec.stamps,
	})
	if err != nil {
		log.Printf("Error persisting usage record for %s: %v", identity, err)
	}
}

// prune drops stamps older than the rolling window. A denied identity
// becomes allowed again exactly window-length after its oldest counted
// query, not at a wall-clock boundary.
func (r *record) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(r.stamps) && !r.stamps[i].After(cutoff) {
		i++
	}
	r.stamps = r.stamps[i:]
}
