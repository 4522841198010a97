package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresRepository talks to the schema in internal/platform/migrations
// directly.
type PostgresRepository struct {
	db *sqlx.DB
}

var _ Repository = (*PostgresRepository)(nil)

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// NewPostgresRepository creates a repository over db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ActiveFoundersWithVotes(ctx context.Context) ([]FounderWithVotes, error) {
	var founders []FounderWithVotes
	err := r.db.SelectContext(ctx, &founders, `
		SELECT id, name, handle, description, video_url, site_link, status, is_active, created_at, vote_count
		FROM get_active_founders_with_votes()
	`)
	if err != nil {
		return nil, fmt.Errorf("get active founders: %w", err)
	}
	sortByVotes(founders)
	return founders, nil
}

func (r *PostgresRepository) InsertVote(ctx context.Context, v NewVote) (*Vote, error) {
	row := v.row()
	var out Vote
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO votes (founder_id, wallet, ip_hash, tx_sig)
		VALUES ($1, $2, $3, $4)
		RETURNING id, founder_id, wallet, ip_hash, tx_sig, created_at
	`, row.FounderID, row.Wallet, row.IPHash, row.TxSig).StructScan(&out)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23505":
				return nil, ErrDuplicateVote
			case "23503":
				return nil, fmt.Errorf("%w: %s", ErrUnknownFounder, v.FounderID)
			}
		}
		return nil, fmt.Errorf("insert vote: %w", err)
	}
	return &out, nil
}

type winnerRow struct {
	ID         int64     `db:"id"`
	FounderID  string    `db:"founder_id"`
	WeekNumber int       `db:"week_number"`
	CreatedAt  time.Time `db:"created_at"`
	Founder    Founder   `db:"founder"`
}

func (r *PostgresRepository) ListWinners(ctx context.Context) ([]Winner, error) {
	var rows []winnerRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT w.id, w.founder_id, w.week_number, w.created_at,
		       f.id AS "founder.id", f.name AS "founder.name", f.handle AS "founder.handle",
		       f.description AS "founder.description", f.video_url AS "founder.video_url",
		       f.site_link AS "founder.site_link", f.status AS "founder.status",
		       f.is_active AS "founder.is_active", f.created_at AS "founder.created_at"
		FROM winners w
		JOIN founders f ON f.id = w.founder_id
		ORDER BY w.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	winners := make([]Winner, len(rows))
	for i, row := range rows {
		founder := row.Founder
		winners[i] = Winner{
			ID:         row.ID,
			FounderID:  row.FounderID,
			WeekNumber: row.WeekNumber,
			CreatedAt:  row.CreatedAt,
			Founder:    &founder,
		}
	}
	return winners, nil
}
