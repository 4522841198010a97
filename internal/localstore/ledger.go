package localstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// LedgerNamespace keys the founder IDs this device has voted for.
const LedgerNamespace = "edens-gates:voted-founder-ids"

// Ledger is an insert-only set of founder IDs; members are never removed.
type Ledger struct {
	db        *sqlx.DB
	namespace string
}

// Has reports whether founderID is in the ledger.
func (l *Ledger) Has(ctx context.Context, founderID string) (bool, error) {
	var n int
	err := l.db.GetContext(ctx, &n,
		`SELECT COUNT(1) FROM set_members WHERE namespace = ? AND member = ?`, l.namespace, founderID)
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return n > 0, nil
}

// Add inserts founderID. Adding an existing member is a no-op.
func (l *Ledger) Add(ctx context.Context, founderID string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO set_members (namespace, member, added_at) VALUES (?, ?, ?)`,
		l.namespace, founderID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ledger add: %w", err)
	}
	return nil
}

// List returns members in insertion order.
func (l *Ledger) List(ctx context.Context) ([]string, error) {
	var members []string
	err := l.db.SelectContext(ctx, &members,
		`SELECT member FROM set_members WHERE namespace = ? ORDER BY added_at, member`, l.namespace)
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	return members, nil
}
