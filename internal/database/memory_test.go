package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepositoryFoundersSortedByVotes(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	a := repo.AddFounder(Founder{Name: "Ada", Status: FounderApproved, IsActive: true, CreatedAt: base})
	b := repo.AddFounder(Founder{Name: "Bo", Status: FounderApproved, IsActive: true, CreatedAt: base.Add(time.Hour)})
	repo.AddFounder(Founder{Name: "Inactive", Status: FounderApproved})
	repo.AddFounder(Founder{Name: "Pending", IsActive: true})

	for i := 0; i < 2; i++ {
		if _, err := repo.InsertVote(ctx, NewVote{FounderID: b.ID}); err != nil {
			t.Fatalf("InsertVote: %v", err)
		}
	}
	if _, err := repo.InsertVote(ctx, NewVote{FounderID: a.ID, Wallet: "W", Signature: "sig"}); err != nil {
		t.Fatalf("InsertVote: %v", err)
	}

	founders, err := repo.ActiveFoundersWithVotes(ctx)
	if err != nil {
		t.Fatalf("ActiveFoundersWithVotes: %v", err)
	}
	if len(founders) != 2 {
		t.Fatalf("got %d founders, want 2", len(founders))
	}
	if founders[0].ID != b.ID || founders[0].VoteCount != 2 || founders[1].VoteCount != 1 {
		t.Fatalf("unexpected order: %+v", founders)
	}
}

func TestMemoryRepositoryVoteNulls(t *testing.T) {
	repo := NewMemoryRepository()
	f := repo.AddFounder(Founder{Name: "Ada"})

	v, err := repo.InsertVote(context.Background(), NewVote{FounderID: f.ID, Fingerprint: "abc"})
	if err != nil {
		t.Fatalf("InsertVote: %v", err)
	}
	if v.Wallet != nil || v.TxSig != nil {
		t.Fatalf("wallet and signature should be null: %+v", v)
	}
	if v.IPHash == nil || *v.IPHash != "abc" {
		t.Fatalf("ip_hash = %v", v.IPHash)
	}
}

func TestMemoryRepositoryRejectsDuplicatesAndUnknown(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	f := repo.AddFounder(Founder{Name: "Ada"})

	if _, err := repo.InsertVote(ctx, NewVote{FounderID: "missing"}); !errors.Is(err, ErrUnknownFounder) {
		t.Fatalf("err = %v, want ErrUnknownFounder", err)
	}
	if _, err := repo.InsertVote(ctx, NewVote{FounderID: f.ID, Signature: "s1"}); err != nil {
		t.Fatalf("InsertVote: %v", err)
	}
	if _, err := repo.InsertVote(ctx, NewVote{FounderID: f.ID, Signature: "s1"}); !errors.Is(err, ErrDuplicateVote) {
		t.Fatalf("err = %v, want ErrDuplicateVote", err)
	}
	if len(repo.Votes()) != 1 {
		t.Fatalf("votes = %d", len(repo.Votes()))
	}
}

func TestMemoryRepositoryErrorInjection(t *testing.T) {
	repo := NewMemoryRepository()
	f := repo.AddFounder(Founder{Name: "Ada"})
	repo.ErrorOnNextCall = errors.New("boom")

	if _, err := repo.InsertVote(context.Background(), NewVote{FounderID: f.ID}); err == nil {
		t.Fatal("expected injected error")
	}
	if _, err := repo.InsertVote(context.Background(), NewVote{FounderID: f.ID}); err != nil {
		t.Fatalf("injected error should clear: %v", err)
	}
}

func TestMemoryRepositoryWinnersNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	a := repo.AddFounder(Founder{Name: "Ada"})
	b := repo.AddFounder(Founder{Name: "Bo"})
	repo.AddWinner(a.ID, 1)
	repo.AddWinner(b.ID, 2)

	winners, err := repo.ListWinners(context.Background())
	if err != nil {
		t.Fatalf("ListWinners: %v", err)
	}
	if len(winners) != 2 || winners[0].WeekNumber != 2 || winners[0].Founder == nil || winners[0].Founder.Name != "Bo" {
		t.Fatalf("unexpected winners: %+v", winners)
	}
}
