package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reason says why a spent fee has no stored vote.
type Reason string

const (
	// ReasonPersistFailed: the transfer confirmed but the vote insert failed.
	ReasonPersistFailed Reason = "persist_failed"
	// ReasonUnconfirmed: confirmation timed out, the outcome is unknown.
	ReasonUnconfirmed Reason = "unconfirmed"
)

// Resolutions recorded by MarkResolved.
const (
	ResolutionRecorded = "recorded"
	ResolutionDropped  = "dropped"
	ResolutionAbandon  = "abandoned"
)

// ErrEntryNotFound is returned for an unknown journal entry ID.
var ErrEntryNotFound = errors.New("journal entry not found")

// Entry is one journaled fee.
type Entry struct {
	ID          string
	FounderID   string
	Signature   string
	Wallet      string
	Fingerprint string
	Reason      Reason
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type entryRow struct {
	ID          string `db:"id"`
	FounderID   string `db:"founder_id"`
	Signature   string `db:"signature"`
	Wallet      string `db:"wallet"`
	Fingerprint string `db:"fingerprint"`
	Reason      string `db:"reason"`
	Attempts    int    `db:"attempts"`
	LastError   string `db:"last_error"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

func (r entryRow) entry() Entry {
	return Entry{
		ID:          r.ID,
		FounderID:   r.FounderID,
		Signature:   r.Signature,
		Wallet:      r.Wallet,
		Fingerprint: r.Fingerprint,
		Reason:      Reason(r.Reason),
		Attempts:    r.Attempts,
		LastError:   r.LastError,
		CreatedAt:   time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

const entryColumns = `id, founder_id, signature, wallet, fingerprint, reason, attempts, last_error, created_at, updated_at`

// RecordUnrecorded journals a spent fee. Journaling the same signature twice
// returns the existing entry.
func (s *Store) RecordUnrecorded(ctx context.Context, e Entry) (Entry, error) {
	if e.Signature == "" || e.FounderID == "" {
		return Entry{}, fmt.Errorf("journal entry needs a founder and a signature")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unrecorded_fees (id, founder_id, signature, wallet, fingerprint, reason, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (signature) DO NOTHING
	`, e.ID, e.FounderID, e.Signature, e.Wallet, e.Fingerprint, string(e.Reason), e.LastError, now, now)
	if err != nil {
		return Entry{}, fmt.Errorf("journal fee %s: %w", e.Signature, err)
	}

	var row entryRow
	if err := s.db.GetContext(ctx, &row,
		`SELECT `+entryColumns+` FROM unrecorded_fees WHERE signature = ?`, e.Signature); err != nil {
		return Entry{}, fmt.Errorf("journal fee %s: %w", e.Signature, err)
	}
	s.log.WithField("signature", e.Signature).WithField("founder_id", e.FounderID).
		WithField("reason", row.Reason).Warn("fee journaled for reconciliation")
	return row.entry(), nil
}

// Pending returns unresolved entries, oldest first. limit <= 0 means all.
func (s *Store) Pending(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM unrecorded_fees WHERE resolved_at IS NULL ORDER BY created_at, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list pending fees: %w", err)
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = r.entry()
	}
	return out, nil
}

// Unresolved returns the newest unresolved entry for founderID with the given
// reason. ok is false when there is none.
func (s *Store) Unresolved(ctx context.Context, founderID string, reason Reason) (e Entry, ok bool, err error) {
	var row entryRow
	err = s.db.GetContext(ctx, &row, `SELECT `+entryColumns+` FROM unrecorded_fees
		WHERE founder_id = ? AND reason = ? AND resolved_at IS NULL
		ORDER BY created_at DESC, id DESC LIMIT 1`, founderID, string(reason))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("look up pending fee for %s: %w", founderID, err)
	}
	return row.entry(), true, nil
}

// MarkResolved closes an entry with a resolution label.
func (s *Store) MarkResolved(ctx context.Context, id, resolution string) error {
	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE unrecorded_fees SET resolution = ?, resolved_at = ?, updated_at = ? WHERE id = ? AND resolved_at IS NULL`,
		resolution, now, now, id)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// BumpAttempt increments the attempt counter and returns the new value.
func (s *Store) BumpAttempt(ctx context.Context, id, lastErr string) (int, error) {
	now := time.Now().UnixMilli()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE unrecorded_fees SET attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		lastErr, now, id); err != nil {
		return 0, fmt.Errorf("bump %s: %w", id, err)
	}
	var attempts int
	err := s.db.GetContext(ctx, &attempts, `SELECT attempts FROM unrecorded_fees WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrEntryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("bump %s: %w", id, err)
	}
	return attempts, nil
}
