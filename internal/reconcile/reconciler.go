// Package reconcile settles fees that were spent on-chain but never turned
// into a stored vote. Each journaled signature is re-checked on the ledger:
// confirmed transfers get their vote written, failed ones are dropped and
// unknown ones are retried until MaxAttempts.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/robfig/cron/v3"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
	"github.com/Oshkosh1922/edens-gates/internal/database"
	"github.com/Oshkosh1922/edens-gates/internal/localstore"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

// Journal is the store of spent-but-unrecorded fees.
type Journal interface {
	Pending(ctx context.Context, limit int) ([]localstore.Entry, error)
	MarkResolved(ctx context.Context, id, resolution string) error
	BumpAttempt(ctx context.Context, id, lastErr string) (int, error)
}

// StatusChecker looks up a signature on the ledger.
type StatusChecker interface {
	SignatureStatus(ctx context.Context, sig solana.Signature) (chain.Status, error)
}

// Ledger is the device-local voted-founder set.
type Ledger interface {
	Add(ctx context.Context, founderID string) error
}

// Counter is the live tally, adjusted as entries settle.
type Counter interface {
	Increment(founderID string) (int64, bool)
	Decrement(founderID string) int64
}

// Observer is notified of every settled or retried entry.
type Observer interface {
	ObserveReconcile(resolution string)
}

// Config wires a Reconciler.
type Config struct {
	Journal     Journal
	Chain       StatusChecker
	Repo        database.Repository
	Ledger      Ledger
	Tally       Counter
	Observer    Observer
	MaxAttempts int
	BatchSize   int
	Logger      *logger.Logger
}

// Result summarises one pass.
type Result struct {
	Checked   int `json:"checked"`
	Recorded  int `json:"recorded"`
	Dropped   int `json:"dropped"`
	Abandoned int `json:"abandoned"`
	Retrying  int `json:"retrying"`
}

// Reconciler settles journaled fees.
type Reconciler struct {
	cfg Config
	log *logger.Logger

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
}

// New creates a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Journal == nil || cfg.Chain == nil || cfg.Repo == nil {
		return nil, errors.New("reconcile: journal, chain and repository are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("reconcile")
	}
	return &Reconciler{cfg: cfg, log: cfg.Logger}, nil
}

// RunOnce processes one batch of pending entries.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	entries, err := r.cfg.Journal.Pending(ctx, r.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list journal: %w", err)
	}
	if len(entries) == 0 {
		return res, nil
	}
	r.log.WithField("count", len(entries)).Info("reconciling unrecorded fees")

	for _, e := range entries {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		switch r.settle(ctx, e) {
		case localstore.ResolutionRecorded:
			res.Recorded++
		case localstore.ResolutionDropped:
			res.Dropped++
		case localstore.ResolutionAbandon:
			res.Abandoned++
		default:
			res.Retrying++
		}
	}
	return res, nil
}

// settle handles one entry and returns its resolution, or "" when it stays
// pending.
func (r *Reconciler) settle(ctx context.Context, e localstore.Entry) string {
	log := r.log.WithField("signature", e.Signature).WithField("founder_id", e.FounderID)

	sig, err := solana.SignatureFromBase58(e.Signature)
	if err != nil {
		log.WithError(err).Error("journaled signature is malformed")
		return r.resolve(ctx, e, localstore.ResolutionAbandon)
	}

	status, err := r.cfg.Chain.SignatureStatus(ctx, sig)
	if err != nil {
		return r.retry(ctx, e, fmt.Errorf("signature status: %w", err))
	}

	switch status {
	case chain.StatusConfirmed:
		_, err := r.cfg.Repo.InsertVote(ctx, database.NewVote{
			FounderID:   e.FounderID,
			Wallet:      e.Wallet,
			Fingerprint: e.Fingerprint,
			Signature:   e.Signature,
		})
		switch {
		case err == nil, errors.Is(err, database.ErrDuplicateVote):
		case errors.Is(err, database.ErrUnknownFounder):
			log.WithError(err).Error("founder no longer exists, fee cannot be recorded")
			return r.resolve(ctx, e, localstore.ResolutionAbandon)
		default:
			return r.retry(ctx, e, fmt.Errorf("insert vote: %w", err))
		}
		if r.cfg.Ledger != nil {
			if err := r.cfg.Ledger.Add(ctx, e.FounderID); err != nil {
				log.WithError(err).Warn("vote recorded but device ledger not updated")
			}
		}
		if r.cfg.Tally != nil && e.Reason == localstore.ReasonPersistFailed {
			r.cfg.Tally.Increment(e.FounderID)
		}
		log.Info("journaled vote recorded")
		return r.resolve(ctx, e, localstore.ResolutionRecorded)

	case chain.StatusFailed:
		if r.cfg.Tally != nil && e.Reason == localstore.ReasonUnconfirmed {
			r.cfg.Tally.Decrement(e.FounderID)
		}
		log.Info("transfer failed on-chain, dropping journal entry")
		return r.resolve(ctx, e, localstore.ResolutionDropped)

	default:
		return r.retry(ctx, e, fmt.Errorf("signature %s", status))
	}
}

func (r *Reconciler) retry(ctx context.Context, e localstore.Entry, cause error) string {
	attempts, err := r.cfg.Journal.BumpAttempt(ctx, e.ID, cause.Error())
	if err != nil {
		r.log.WithError(err).WithField("id", e.ID).Warn("could not bump journal attempt")
		return ""
	}
	if attempts >= r.cfg.MaxAttempts {
		r.log.WithField("signature", e.Signature).WithField("attempts", attempts).
			WithError(cause).Error("giving up on journaled fee")
		if e.Reason == localstore.ReasonUnconfirmed && r.cfg.Tally != nil {
			r.cfg.Tally.Decrement(e.FounderID)
		}
		return r.resolve(ctx, e, localstore.ResolutionAbandon)
	}
	r.observe("retry")
	return ""
}

func (r *Reconciler) resolve(ctx context.Context, e localstore.Entry, resolution string) string {
	err := r.cfg.Journal.MarkResolved(ctx, e.ID, resolution)
	if err != nil && !errors.Is(err, localstore.ErrEntryNotFound) {
		r.log.WithError(err).WithField("id", e.ID).Warn("could not resolve journal entry")
		return ""
	}
	r.observe(resolution)
	return resolution
}

func (r *Reconciler) observe(resolution string) {
	if r.cfg.Observer != nil {
		r.cfg.Observer.ObserveReconcile(resolution)
	}
}

// =============================================================================
// Scheduling
// =============================================================================

// Start runs RunOnce on a cron schedule such as "@every 5m" until ctx is
// done or Stop is called. Overlapping runs are skipped.
func (r *Reconciler) Start(ctx context.Context, schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("reconciler already running")
	}

	cronLog := cron.PrintfLogger(r.log)
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	if _, err := c.AddFunc(schedule, func() {
		res, err := r.RunOnce(ctx)
		if err != nil {
			r.log.WithError(err).Warn("reconcile pass failed")
			return
		}
		if res.Checked > 0 {
			r.log.WithField("recorded", res.Recorded).WithField("dropped", res.Dropped).
				WithField("retrying", res.Retrying).Info("reconcile pass finished")
		}
	}); err != nil {
		return fmt.Errorf("reconcile schedule %q: %w", schedule, err)
	}

	c.Start()
	r.cron = c
	r.running = true
	r.log.WithField("schedule", schedule).Info("reconciler started")

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	c := r.cron
	r.running = false
	r.cron = nil
	r.mu.Unlock()

	<-c.Stop().Done()
	r.log.Info("reconciler stopped")
}

// IsRunning reports whether the schedule is active.
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
