package activity

import (
	"math"
	"sync"
	"time"
)

// Tracker keeps the last-seen timestamp for every user who has spoken in the
// channel. A user counts as active while their most recent message is within
// the decay window. Expiry is evaluated lazily against the caller's clock
// reading, so the active set and the vote threshold derived from it are always
// consistent with a single timestamp.
type Tracker struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	decay    time.Duration
	ratio    float64
}

func NewTracker(decay time.Duration, majorityRatio float64) *Tracker {
	return &Tracker{
		lastSeen: make(map[string]time.Time),
		decay:    decay,
		ratio:    majorityRatio,
	}
}

// Touch records now as the user's last activity.
func (t *Tracker) Touch(user string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[user] = now
}

// Forget drops the user immediately (left the channel, was kicked, ...).
func (t *Tracker) Forget(user string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSeen, user)
}

// ActiveCount returns how many users spoke within the decay window before now.
// Entries past the window are pruned while we hold the lock anyway.
func (t *Tracker) ActiveCount(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.decay)
	for user, seen := range t.lastSeen {
		if seen.Before(cutoff) {
			delete(t.lastSeen, user)
		}
	}
	return len(t.lastSeen)
}

// RequiredVotes returns the majority threshold for a round opened at now:
// ceil(active * ratio), never less than 1.
func (t *Tracker) RequiredVotes(now time.Time) int {
	required := int(math.Ceil(float64(t.ActiveCount(now)) * t.ratio))
	if required < 1 {
		required = 1
	}
	return required
}
