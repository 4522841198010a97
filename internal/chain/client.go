// Package chain provides Solana ledger access for the voting portal.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

// Checkpoint is the recent blockhash a transaction must carry, together
// with the last block height at which it is still accepted.
type Checkpoint struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// SendOptions controls raw transaction submission.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
}

// Status is the observed on-chain state of a signature.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RPC is the ledger collaborator used by the wallet session, the fee
// builder and the reconciler.
type RPC interface {
	LatestCheckpoint(ctx context.Context, commitment rpc.CommitmentType) (Checkpoint, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	SendRawTransaction(ctx context.Context, raw []byte, opts SendOptions) (solana.Signature, error)
	AwaitConfirmation(ctx context.Context, sig solana.Signature, cp Checkpoint, commitment rpc.CommitmentType) error
	SignatureStatus(ctx context.Context, sig solana.Signature) (Status, error)
}

// api is the subset of *rpc.Client the Client depends on.
type api interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	SendRawTransactionWithOpts(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

// Config holds client configuration.
type Config struct {
	RPCURL         string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Logger         *logger.Logger
}

// Client implements RPC over Solana JSON-RPC.
type Client struct {
	rpc            api
	confirmTimeout time.Duration
	pollInterval   time.Duration
	log            *logger.Logger
}

var _ RPC = (*Client)(nil)

// NewClient creates a new ledger client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	return newClient(rpc.New(cfg.RPCURL), cfg), nil
}

func newClient(conn api, cfg Config) *Client {
	timeout := cfg.ConfirmTimeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = 2 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("chain")
	}
	return &Client{rpc: conn, confirmTimeout: timeout, pollInterval: poll, log: log}
}

// =============================================================================
// Core RPC Methods
// =============================================================================

// LatestCheckpoint fetches the latest blockhash at the given commitment.
func (c *Client) LatestCheckpoint(ctx context.Context, commitment rpc.CommitmentType) (Checkpoint, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, commitment)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return Checkpoint{}, errors.New("get latest blockhash: empty result")
	}
	return Checkpoint{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// AccountExists reports whether an account is present on-chain.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get account info %s: %w", account, err)
	}
	return out != nil && out.Value != nil, nil
}

// SendRawTransaction submits a signed, serialized transaction.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte, opts SendOptions) (solana.Signature, error) {
	commitment := opts.PreflightCommitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	c.log.WithField("signature", sig.String()).Debug("transaction submitted")
	return sig, nil
}

// SignatureStatus looks a signature up, including transaction history.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (Status, error) {
	return c.signatureStatus(ctx, sig, rpc.CommitmentConfirmed, true)
}

func (c *Client) signatureStatus(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType, history bool) (Status, error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, history, sig)
	if err != nil {
		return StatusUnknown, fmt.Errorf("get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return StatusUnknown, nil
	}
	st := out.Value[0]
	if st.Err != nil {
		return StatusFailed, nil
	}
	if meetsCommitment(st.ConfirmationStatus, commitment) {
		return StatusConfirmed, nil
	}
	return StatusPending, nil
}

func meetsCommitment(got rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case string(rpc.ConfirmationStatusProcessed):
			return 1
		case string(rpc.ConfirmationStatusConfirmed):
			return 2
		case string(rpc.ConfirmationStatusFinalized):
			return 3
		default:
			return 0
		}
	}
	w := rank(string(want))
	if w == 0 {
		w = 2
	}
	return rank(string(got)) >= w
}
