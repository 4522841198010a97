package database

import "time"

// FounderStatus is the moderation state of a founder submission.
type FounderStatus string

const (
	FounderPending  FounderStatus = "pending"
	FounderApproved FounderStatus = "approved"
	FounderRejected FounderStatus = "rejected"
)

// Founder is a row of the founders table.
type Founder struct {
	ID          string        `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Handle      *string       `json:"handle" db:"handle"`
	Description *string       `json:"description" db:"description"`
	VideoURL    *string       `json:"video_url" db:"video_url"`
	SiteLink    *string       `json:"site_link" db:"site_link"`
	Status      FounderStatus `json:"status" db:"status"`
	IsActive    bool          `json:"is_active" db:"is_active"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// FounderWithVotes is a founder with its computed vote count.
type FounderWithVotes struct {
	Founder
	VoteCount int64 `json:"vote_count" db:"vote_count"`
}

// Vote is a row of the votes table. Wallet, IPHash and TxSig are null for
// votes cast without a wallet or fingerprint.
type Vote struct {
	ID        int64     `json:"id" db:"id"`
	FounderID string    `json:"founder_id" db:"founder_id"`
	Wallet    *string   `json:"wallet" db:"wallet"`
	IPHash    *string   `json:"ip_hash" db:"ip_hash"`
	TxSig     *string   `json:"tx_sig" db:"tx_sig"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewVote is the input to Repository.InsertVote. Empty strings are stored
// as null.
type NewVote struct {
	FounderID   string
	Wallet      string
	Fingerprint string
	Signature   string
}

type voteRow struct {
	FounderID string  `json:"founder_id"`
	Wallet    *string `json:"wallet"`
	IPHash    *string `json:"ip_hash"`
	TxSig     *string `json:"tx_sig"`
}

func (n NewVote) row() voteRow {
	return voteRow{
		FounderID: n.FounderID,
		Wallet:    nullable(n.Wallet),
		IPHash:    nullable(n.Fingerprint),
		TxSig:     nullable(n.Signature),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Winner is a published round result with its founder joined in.
type Winner struct {
	ID         int64     `json:"id"`
	FounderID  string    `json:"founder_id"`
	WeekNumber int       `json:"week_number"`
	CreatedAt  time.Time `json:"created_at"`
	Founder    *Founder  `json:"founders,omitempty"`
}
