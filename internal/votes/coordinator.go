// Package votes casts votes: it guards against duplicate attempts, pays the
// optional on-chain fee through the wallet session, records the vote and
// keeps the optimistic tally consistent with the outcome.
package votes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
	"github.com/Oshkosh1922/edens-gates/internal/database"
	"github.com/Oshkosh1922/edens-gates/internal/feetx"
	"github.com/Oshkosh1922/edens-gates/internal/localstore"
	"github.com/Oshkosh1922/edens-gates/internal/wallet"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

// FeeBuilder builds the fee instructions for a payer.
type FeeBuilder interface {
	Build(ctx context.Context, payer solana.PublicKey) (*feetx.FeeTransaction, error)
}

// Ledger is the device-local record of founders already voted for.
type Ledger interface {
	Has(ctx context.Context, founderID string) (bool, error)
	Add(ctx context.Context, founderID string) error
}

// Journal keeps spent fees that have no stored vote.
type Journal interface {
	RecordUnrecorded(ctx context.Context, e localstore.Entry) (localstore.Entry, error)
	Unresolved(ctx context.Context, founderID string, reason localstore.Reason) (localstore.Entry, bool, error)
}

// Recorder observes vote outcomes.
type Recorder interface {
	ObserveVote(outcome string, elapsed time.Duration)
}

// Outcome labels passed to Recorder.
const (
	OutcomeRecorded      = "recorded"
	OutcomeRejected      = "rejected"
	OutcomeTransferError = "transfer_failed"
	OutcomeStoreError    = "store_failed"
	OutcomeUnrecorded    = "unrecorded_fee"
	OutcomeIndeterminate = "indeterminate"
)

// Config wires a Coordinator.
type Config struct {
	WalletEnabled bool
	Session       wallet.Session
	Fees          FeeBuilder
	Repo          database.Repository
	Ledger        Ledger
	Journal       Journal
	Tally         *Tally
	Recorder      Recorder
	// Fingerprint overrides the device fingerprint; empty means compute it
	// on first use.
	Fingerprint string
	Logger      *logger.Logger
}

// Receipt describes a successful vote.
type Receipt struct {
	FounderID string         `json:"founder_id"`
	Wallet    string         `json:"wallet,omitempty"`
	Signature string         `json:"signature,omitempty"`
	Message   string         `json:"message"`
	VoteCount int64          `json:"vote_count"`
	Vote      *database.Vote `json:"vote,omitempty"`
}

// Coordinator casts votes.
type Coordinator struct {
	cfg Config
	log *logger.Logger

	mu      sync.Mutex
	pending map[string]bool

	fpOnce      sync.Once
	fingerprint string
}

// NewCoordinator creates a coordinator. Session defaults to the disabled
// session and Tally to an empty one.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("votes")
	}
	if cfg.Session == nil {
		cfg.Session = wallet.NewSession(wallet.SessionConfig{})
	}
	if cfg.Tally == nil {
		cfg.Tally = NewTally()
	}
	return &Coordinator{
		cfg:         cfg,
		log:         cfg.Logger,
		pending:     make(map[string]bool),
		fingerprint: cfg.Fingerprint,
	}
}

// Tally returns the coordinator's tally.
func (c *Coordinator) Tally() *Tally { return c.cfg.Tally }

// Pending reports whether a vote for founderID is in flight.
func (c *Coordinator) Pending(founderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[founderID]
}

func (c *Coordinator) begin(founderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[founderID] {
		return false
	}
	c.pending[founderID] = true
	return true
}

func (c *Coordinator) end(founderID string) {
	c.mu.Lock()
	delete(c.pending, founderID)
	c.mu.Unlock()
}

func (c *Coordinator) deviceFingerprint(ctx context.Context) string {
	c.fpOnce.Do(func() {
		if c.fingerprint == "" {
			c.fingerprint = Fingerprint(ctx)
		}
	})
	return c.fingerprint
}

func (c *Coordinator) observe(outcome string, start time.Time) {
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.ObserveVote(outcome, time.Since(start))
	}
}

// CastVote casts one vote for founderID.
//
// At most one vote per founder is in flight; a concurrent call fails with
// ErrVotePending. A founder already in the device ledger is rejected with
// ErrAlreadyVoted before any network call, and one whose last fee timed out
// unsettled with UnsettledFeeError. The tally is incremented up front and
// rolled back on failure, except when confirmation timed out, where the
// transfer may still land and the vote is journaled instead.
func (c *Coordinator) CastVote(ctx context.Context, founderID string) (*Receipt, error) {
	start := time.Now()
	if founderID == "" {
		return nil, fmt.Errorf("%w: founder id required", database.ErrUnknownFounder)
	}
	if !c.begin(founderID) {
		c.observe(OutcomeRejected, start)
		return nil, ErrVotePending
	}
	defer c.end(founderID)

	log := c.log.WithField("founder_id", founderID)

	voted, err := c.cfg.Ledger.Has(ctx, founderID)
	if err != nil {
		c.observe(OutcomeRejected, start)
		return nil, fmt.Errorf("read vote ledger: %w", err)
	}
	if voted {
		c.observe(OutcomeRejected, start)
		return nil, ErrAlreadyVoted
	}

	if err := c.checkUnsettled(ctx, founderID); err != nil {
		c.observe(OutcomeRejected, start)
		return nil, err
	}

	reservation, reserved := c.cfg.Tally.Reserve(founderID)
	rollback := func() {
		if reserved && !c.cfg.Tally.Release(reservation) {
			log.Debug("tally refreshed during the vote, rollback skipped")
		}
	}

	var (
		payer solana.PublicKey
		sig   solana.Signature
	)
	if c.cfg.WalletEnabled {
		payer, sig, err = c.payFee(ctx, founderID)
		if err != nil {
			var indeterminate *IndeterminateError
			if errors.As(err, &indeterminate) {
				c.observe(OutcomeIndeterminate, start)
				return nil, err
			}
			rollback()
			c.observe(OutcomeTransferError, start)
			return nil, err
		}
	}

	vote, err := c.cfg.Repo.InsertVote(ctx, database.NewVote{
		FounderID:   founderID,
		Wallet:      keyString(payer),
		Fingerprint: c.deviceFingerprint(ctx),
		Signature:   sigString(sig),
	})
	switch {
	case err == nil:
	case errors.Is(err, database.ErrDuplicateVote) && sig != (solana.Signature{}):
		log.WithField("signature", sig.String()).Info("vote for this signature already recorded")
	default:
		rollback()
		if sig == (solana.Signature{}) {
			c.observe(OutcomeStoreError, start)
			return nil, fmt.Errorf("%w: %w", ErrDataStore, err)
		}
		c.journal(ctx, localstore.Entry{
			FounderID:   founderID,
			Signature:   sig.String(),
			Wallet:      payer.String(),
			Fingerprint: c.deviceFingerprint(ctx),
			Reason:      localstore.ReasonPersistFailed,
			LastError:   err.Error(),
		})
		log.WithError(err).WithField("signature", sig.String()).Error("fee spent but vote not recorded")
		c.observe(OutcomeUnrecorded, start)
		return nil, &UnrecordedFeeError{FounderID: founderID, Signature: sig, Err: err}
	}

	if err := c.cfg.Ledger.Add(ctx, founderID); err != nil {
		log.WithError(err).Warn("vote recorded but device ledger not updated")
	}

	receipt := &Receipt{
		FounderID: founderID,
		Wallet:    keyString(payer),
		Signature: sigString(sig),
		VoteCount: c.cfg.Tally.Count(founderID),
		Vote:      vote,
		Message:   "Vote recorded. Thanks for supporting a founder.",
	}
	if receipt.Signature != "" {
		receipt.Message = "Vote sent on-chain. Tx: " + ShortSignature(receipt.Signature)
	}
	log.WithField("signature", receipt.Signature).Info("vote recorded")
	c.observe(OutcomeRecorded, start)
	return receipt, nil
}

func (c *Coordinator) checkUnsettled(ctx context.Context, founderID string) error {
	if c.cfg.Journal == nil {
		return nil
	}
	e, ok, err := c.cfg.Journal.Unresolved(ctx, founderID, localstore.ReasonUnconfirmed)
	if err != nil {
		return fmt.Errorf("read fee journal: %w", err)
	}
	if !ok {
		return nil
	}
	sig, err := solana.SignatureFromBase58(e.Signature)
	if err != nil {
		return fmt.Errorf("journal entry %s: %w", e.ID, err)
	}
	return &UnsettledFeeError{FounderID: founderID, Signature: sig}
}

func (c *Coordinator) payFee(ctx context.Context, founderID string) (solana.PublicKey, solana.Signature, error) {
	session := c.cfg.Session
	if !session.Status().Connected {
		return solana.PublicKey{}, solana.Signature{}, fmt.Errorf("%w: %w", ErrTransfer, wallet.ErrNotConnected)
	}
	payer, ok := session.Address()
	if !ok {
		return solana.PublicKey{}, solana.Signature{}, fmt.Errorf("%w: %w", ErrTransfer, wallet.ErrNotConnected)
	}
	if c.cfg.Fees == nil {
		return payer, solana.Signature{}, fmt.Errorf("%w: no fee builder configured", feetx.ErrInvalidConfiguration)
	}

	fee, err := c.cfg.Fees.Build(ctx, payer)
	if err != nil {
		if errors.Is(err, feetx.ErrInvalidConfiguration) {
			return payer, solana.Signature{}, err
		}
		return payer, solana.Signature{}, fmt.Errorf("%w: %w", ErrTransfer, err)
	}

	sig, err := session.SignAndSend(ctx, fee.Instructions)
	if err == nil {
		return payer, sig, nil
	}
	if errors.Is(err, chain.ErrConfirmationTimeout) && sig != (solana.Signature{}) {
		c.journal(ctx, localstore.Entry{
			FounderID:   founderID,
			Signature:   sig.String(),
			Wallet:      payer.String(),
			Fingerprint: c.deviceFingerprint(ctx),
			Reason:      localstore.ReasonUnconfirmed,
			LastError:   err.Error(),
		})
		return payer, sig, &IndeterminateError{FounderID: founderID, Signature: sig, Err: err}
	}
	return payer, sig, fmt.Errorf("%w: %w", ErrTransfer, err)
}

func (c *Coordinator) journal(ctx context.Context, e localstore.Entry) {
	if c.cfg.Journal == nil {
		return
	}
	// The caller's context may be the one that just expired.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := c.cfg.Journal.RecordUnrecorded(jctx, e); err != nil {
		c.log.WithError(err).WithField("signature", e.Signature).Error("could not journal spent fee")
	}
}

// ShortSignature renders a signature as first8…last8.
func ShortSignature(sig string) string {
	if len(sig) <= 16 {
		return sig
	}
	return sig[:8] + "…" + sig[len(sig)-8:]
}

func keyString(k solana.PublicKey) string {
	if k.IsZero() {
		return ""
	}
	return k.String()
}

func sigString(s solana.Signature) string {
	if s == (solana.Signature{}) {
		return ""
	}
	return s.String()
}
