package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository for development and tests.
type MemoryRepository struct {
	mu sync.RWMutex

	founders map[string]*Founder
	votes    []Vote
	winners  []Winner
	nextID   int64

	// ErrorOnNextCall is returned (once) by the next repository call.
	ErrorOnNextCall error
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{founders: make(map[string]*Founder)}
}

// checkError returns and clears any injected error.
func (m *MemoryRepository) checkError() error {
	if m.ErrorOnNextCall != nil {
		err := m.ErrorOnNextCall
		m.ErrorOnNextCall = nil
		return err
	}
	return nil
}

// AddFounder stores f, assigning an ID and timestamp when missing.
func (m *MemoryRepository) AddFounder(f Founder) Founder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.Status == "" {
		f.Status = FounderPending
	}
	m.founders[f.ID] = &f
	return f
}

// AddWinner publishes founderID as the winner of week.
func (m *MemoryRepository) AddWinner(founderID string, week int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.winners = append(m.winners, Winner{
		ID:         m.nextID,
		FounderID:  founderID,
		WeekNumber: week,
		CreatedAt:  time.Now().UTC(),
	})
}

// Votes returns a copy of every stored vote.
func (m *MemoryRepository) Votes() []Vote {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Vote(nil), m.votes...)
}

func (m *MemoryRepository) ActiveFoundersWithVotes(ctx context.Context) ([]FounderWithVotes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError(); err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, v := range m.votes {
		counts[v.FounderID]++
	}
	out := make([]FounderWithVotes, 0, len(m.founders))
	for _, f := range m.founders {
		if !f.IsActive || f.Status != FounderApproved {
			continue
		}
		out = append(out, FounderWithVotes{Founder: *f, VoteCount: counts[f.ID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	sortByVotes(out)
	return out, nil
}

func (m *MemoryRepository) InsertVote(ctx context.Context, v NewVote) (*Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError(); err != nil {
		return nil, err
	}
	if _, ok := m.founders[v.FounderID]; !ok {
		return nil, ErrUnknownFounder
	}
	if v.Signature != "" {
		for _, existing := range m.votes {
			if existing.TxSig != nil && *existing.TxSig == v.Signature {
				return nil, ErrDuplicateVote
			}
		}
	}

	row := v.row()
	m.nextID++
	vote := Vote{
		ID:        m.nextID,
		FounderID: row.FounderID,
		Wallet:    row.Wallet,
		IPHash:    row.IPHash,
		TxSig:     row.TxSig,
		CreatedAt: time.Now().UTC(),
	}
	m.votes = append(m.votes, vote)
	return &vote, nil
}

func (m *MemoryRepository) ListWinners(ctx context.Context) ([]Winner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkError(); err != nil {
		return nil, err
	}
	out := make([]Winner, 0, len(m.winners))
	for i := len(m.winners) - 1; i >= 0; i-- {
		w := m.winners[i]
		if f, ok := m.founders[w.FounderID]; ok {
			founder := *f
			w.Founder = &founder
		}
		out = append(out, w)
	}
	return out, nil
}

// Reset clears all data.
func (m *MemoryRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.founders = make(map[string]*Founder)
	m.votes = nil
	m.winners = nil
	m.ErrorOnNextCall = nil
}
