// Package database provides the vote data store: a Supabase implementation
// for hosted deployments, a Postgres implementation for self-hosting and an
// in-memory one for development and tests.
package database

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrDuplicateVote is returned when a vote with the same fee signature
	// has already been stored.
	ErrDuplicateVote = errors.New("vote already recorded for this signature")
	// ErrUnknownFounder is returned when a vote references a missing founder.
	ErrUnknownFounder = errors.New("unknown founder")
)

// Repository is the data store collaborator used by the vote coordinator.
type Repository interface {
	// ActiveFoundersWithVotes returns approved, active founders ordered by
	// vote count descending.
	ActiveFoundersWithVotes(ctx context.Context) ([]FounderWithVotes, error)
	InsertVote(ctx context.Context, v NewVote) (*Vote, error)
	// ListWinners returns published winners, newest first.
	ListWinners(ctx context.Context) ([]Winner, error)
}

func sortByVotes(founders []FounderWithVotes) {
	sort.SliceStable(founders, func(i, j int) bool {
		if founders[i].VoteCount != founders[j].VoteCount {
			return founders[i].VoteCount > founders[j].VoteCount
		}
		return founders[i].CreatedAt.Before(founders[j].CreatedAt)
	})
}
