package relay

import (
	"iter"
	"time"
)

// Tracker records when each user was last active.
type Tracker struct {
	lastSeen map[int64]time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{lastSeen: make(map[int64]time.Time)}
}

// Touch records activity for userID at the given time. Older timestamps
// never overwrite newer ones.
func (t *Tracker) Touch(userID int64, at time.Time) {
	if prev, ok := t.lastSeen[userID]; ok && prev.After(at) {
		return
	}
	t.lastSeen[userID] = at
}

// LastSeen returns the last recorded activity of userID.
func (t *Tracker) LastSeen(userID int64) (time.Time, bool) {
	at, ok := t.lastSeen[userID]
	return at, ok
}

// Forget drops the activity record of userID.
func (t *Tracker) Forget(userID int64) {
	delete(t.lastSeen, userID)
}

// InactiveSince yields users whose last activity is before cutoff. The
// tracker must not be modified while the sequence is being consumed.
func (t *Tracker) InactiveSince(cutoff time.Time) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		for userID, at := range t.lastSeen {
			if at.Before(cutoff) && !yield(userID) {
				return
			}
		}
	}
}
