package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kanbot-project/kanbot-sync-api/internal/observability"
)

const (
	defaultBackoffMaxWait    = 32 * time.Minute
	defaultBackoffMaxEntries = 10000
)

// BackoffTracker keeps in-memory failure counters and advises how long a
// caller should wait before retrying. The advice is exactly that: the tracker
// never blocks anything itself, and losing its state on restart only means
// offenders start from the shortest wait again.
type BackoffTracker struct {
	mu         sync.Mutex
	entries    map[string]*backoffEntry
	maxWait    time.Duration
	maxEntries int
	logger     zerolog.Logger
	clock      func() time.Time
}

type backoffEntry struct {
	failures    int
	lastFailure time.Time
}

// NewBackoffTracker constructs a tracker. Non-positive arguments fall back to
// the defaults.
func NewBackoffTracker(maxWait time.Duration, maxEntries int, logger zerolog.Logger) *BackoffTracker {
	if maxWait <= 0 {
		maxWait = defaultBackoffMaxWait
	}
	if maxEntries <= 0 {
		maxEntries = defaultBackoffMaxEntries
	}
	return &BackoffTracker{
		entries:    make(map[string]*backoffEntry),
		maxWait:    maxWait,
		maxEntries: maxEntries,
		logger:     logger.With().Str("component", "backoff_tracker").Logger(),
		clock:      time.Now,
	}
}

// Failure records one failed attempt for the key and returns the advised
// wait. Waits double per consecutive failure (1m, 2m, 4m, ...) up to the
// configured cap. A key that stayed quiet for twice its current wait starts
// over from the shortest one.
func (t *BackoffTracker) Failure(key string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	entry, ok := t.entries[key]
	if !ok {
		entry = &backoffEntry{lastFailure: now}
		t.entries[key] = entry
		t.pruneLocked(now)
	} else if t.expiredLocked(entry, now) {
		entry.failures = 0
		observability.BackoffResets().Inc()
	}

	entry.failures++
	entry.lastFailure = now

	return t.waitFor(entry.failures)
}

// Wait returns the currently advised wait for the key without recording an
// attempt. Zero means the key is clear.
func (t *BackoffTracker) Wait(key string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return 0
	}

	now := t.clock()
	if t.expiredLocked(entry, now) {
		delete(t.entries, key)
		observability.BackoffResets().Inc()
		return 0
	}

	wait := t.waitFor(entry.failures)
	if elapsed := now.Sub(entry.lastFailure); elapsed < wait {
		return wait - elapsed
	}
	return 0
}

// Success clears the key after a successful attempt.
func (t *BackoffTracker) Success(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// Size reports how many keys are currently tracked.
func (t *BackoffTracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *BackoffTracker) waitFor(failures int) time.Duration {
	wait := time.Minute
	for i := 1; i < failures; i++ {
		wait *= 2
		if wait >= t.maxWait {
			return t.maxWait
		}
	}
	if wait > t.maxWait {
		return t.maxWait
	}
	return wait
}

// expiredLocked reports whether the key has been quiet long enough for its
// history to be forgiven: twice the wait its failure count currently earns.
func (t *BackoffTracker) expiredLocked(entry *backoffEntry, now time.Time) bool {
	if entry.failures == 0 {
		return false
	}
	return now.Sub(entry.lastFailure) > 2*t.waitFor(entry.failures)
}

// pruneLocked drops stale entries once the map outgrows its bound. Entries
// older than twice the maximum wait can no longer influence any advice.
func (t *BackoffTracker) pruneLocked(now time.Time) {
	if len(t.entries) <= t.maxEntries {
		return
	}

	cutoff := now.Add(-2 * t.maxWait)
	removed := 0
	for key, entry := range t.entries {
		if entry.lastFailure.Before(cutoff) {
			delete(t.entries, key)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug().Int("removed", removed).Msg("pruned stale backoff entries")
	}
}
