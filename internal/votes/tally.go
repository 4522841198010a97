package votes

import (
	"context"
	"sort"
	"sync"

	"github.com/Oshkosh1922/edens-gates/internal/database"
)

// Tally is the in-memory founder vote count, refreshed from the data store
// and adjusted optimistically while votes are in flight.
type Tally struct {
	mu       sync.RWMutex
	founders map[string]database.FounderWithVotes

	// generation changes on every Set.
	generation uint64
}

// Reservation is one applied optimistic increment, undone by Release.
type Reservation struct {
	founderID  string
	generation uint64
}

// NewTally creates an empty tally.
func NewTally() *Tally {
	return &Tally{founders: make(map[string]database.FounderWithVotes)}
}

// Refresh replaces the tally with the data store's counts.
func (t *Tally) Refresh(ctx context.Context, repo database.Repository) error {
	founders, err := repo.ActiveFoundersWithVotes(ctx)
	if err != nil {
		return err
	}
	t.Set(founders)
	return nil
}

// Set replaces the tally.
func (t *Tally) Set(founders []database.FounderWithVotes) {
	next := make(map[string]database.FounderWithVotes, len(founders))
	for _, f := range founders {
		next[f.ID] = f
	}
	t.mu.Lock()
	t.founders = next
	t.generation++
	t.mu.Unlock()
}

// Increment adds one vote to founderID and returns the new count. Founders
// the tally does not list are left alone and reported with false.
func (t *Tally) Increment(founderID string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.incrementLocked(founderID)
}

func (t *Tally) incrementLocked(founderID string) (int64, bool) {
	f, ok := t.founders[founderID]
	if !ok {
		return 0, false
	}
	f.VoteCount++
	t.founders[founderID] = f
	return f.VoteCount, true
}

// Reserve increments founderID like Increment and returns a handle for
// undoing it. The handle is only valid while the tally has not been Set again.
func (t *Tally) Reserve(founderID string) (Reservation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.incrementLocked(founderID); !ok {
		return Reservation{}, false
	}
	return Reservation{founderID: founderID, generation: t.generation}, true
}

// Release undoes r. It does nothing and returns false when the tally was
// replaced since r was taken: the new counts never included it.
func (t *Tally) Release(r Reservation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.founderID == "" || r.generation != t.generation {
		return false
	}
	t.decrementLocked(r.founderID)
	return true
}

// Decrement removes one vote from founderID, never going below zero.
func (t *Tally) Decrement(founderID string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.decrementLocked(founderID)
}

func (t *Tally) decrementLocked(founderID string) int64 {
	f, ok := t.founders[founderID]
	if !ok {
		return 0
	}
	if f.VoteCount > 0 {
		f.VoteCount--
	}
	t.founders[founderID] = f
	return f.VoteCount
}

// Count returns the current count for founderID.
func (t *Tally) Count(founderID string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.founders[founderID].VoteCount
}

// Snapshot returns the founders ordered by vote count, highest first.
func (t *Tally) Snapshot() []database.FounderWithVotes {
	t.mu.RLock()
	out := make([]database.FounderWithVotes, 0, len(t.founders))
	for _, f := range t.founders {
		out = append(out, f)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].VoteCount != out[j].VoteCount {
			return out[i].VoteCount > out[j].VoteCount
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
