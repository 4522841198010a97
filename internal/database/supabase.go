package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/Oshkosh1922/edens-gates/supabase/client"
)

// SupabaseRepository stores votes through the Supabase REST API.
type SupabaseRepository struct {
	client *client.Client
}

var _ Repository = (*SupabaseRepository)(nil)

// NewSupabaseRepository creates a repository over c.
func NewSupabaseRepository(c *client.Client) *SupabaseRepository {
	return &SupabaseRepository{client: c}
}

func (r *SupabaseRepository) ActiveFoundersWithVotes(ctx context.Context) ([]FounderWithVotes, error) {
	resp, err := r.client.RPC(client.ReadOnly(ctx), "get_active_founders_with_votes", nil)
	if err != nil {
		return nil, fmt.Errorf("get active founders: %w", err)
	}
	var founders []FounderWithVotes
	if err := resp.JSON(&founders); err != nil {
		return nil, fmt.Errorf("decode founders: %w", err)
	}
	sortByVotes(founders)
	return founders, nil
}

func (r *SupabaseRepository) InsertVote(ctx context.Context, v NewVote) (*Vote, error) {
	resp, err := r.client.From("votes").Insert(ctx, v.row())
	if err != nil {
		if client.IsUniqueViolation(err) {
			return nil, ErrDuplicateVote
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "23503" {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFounder, v.FounderID)
		}
		return nil, fmt.Errorf("insert vote: %w", err)
	}
	var rows []Vote
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode vote: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert vote: empty representation")
	}
	return &rows[0], nil
}

func (r *SupabaseRepository) ListWinners(ctx context.Context) ([]Winner, error) {
	resp, err := r.client.From("winners").
		Select("id, founder_id, week_number, created_at, founders(*)").
		Order("created_at", false).
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	var winners []Winner
	if err := resp.JSON(&winners); err != nil {
		return nil, fmt.Errorf("decode winners: %w", err)
	}
	return winners, nil
}
