// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
)

// MockLedger is an in-memory chain.RPC.
type MockLedger struct {
	mu sync.Mutex

	Blockhash            solana.Hash
	LastValidBlockHeight uint64

	accounts map[solana.PublicKey]bool
	statuses map[solana.Signature]chain.Status

	// Sent holds every raw transaction submitted, in order.
	Sent [][]byte
	// AccountQueries counts AccountExists calls.
	AccountQueries int
	// CheckpointCalls counts LatestCheckpoint calls.
	CheckpointCalls int

	CheckpointErr error
	AccountErr    error
	SendErr       error
	// ConfirmErr, when set, is returned by AwaitConfirmation.
	ConfirmErr error
}

var _ chain.RPC = (*MockLedger)(nil)

// NewMockLedger creates a ledger with a fixed blockhash and no accounts.
func NewMockLedger() *MockLedger {
	return &MockLedger{
		Blockhash:            solana.Hash(sha256.Sum256([]byte("edens-gates"))),
		LastValidBlockHeight: 1000,
		accounts:             make(map[solana.PublicKey]bool),
		statuses:             make(map[solana.Signature]chain.Status),
	}
}

// AddAccount marks an account as existing.
func (m *MockLedger) AddAccount(key solana.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[key] = true
}

// SetStatus sets the status SignatureStatus reports for sig.
func (m *MockLedger) SetStatus(sig solana.Signature, status chain.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[sig] = status
}

// SentCount returns how many transactions were submitted.
func (m *MockLedger) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

func (m *MockLedger) LatestCheckpoint(context.Context, rpc.CommitmentType) (chain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CheckpointCalls++
	if m.CheckpointErr != nil {
		return chain.Checkpoint{}, m.CheckpointErr
	}
	return chain.Checkpoint{Blockhash: m.Blockhash, LastValidBlockHeight: m.LastValidBlockHeight}, nil
}

func (m *MockLedger) AccountExists(_ context.Context, account solana.PublicKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AccountQueries++
	if m.AccountErr != nil {
		return false, m.AccountErr
	}
	return m.accounts[account], nil
}

// SendRawTransaction records raw and returns a signature derived from it.
func (m *MockLedger) SendRawTransaction(_ context.Context, raw []byte, _ chain.SendOptions) (solana.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return solana.Signature{}, m.SendErr
	}
	m.Sent = append(m.Sent, raw)
	sig := SignatureFor(raw)
	m.statuses[sig] = chain.StatusConfirmed
	return sig, nil
}

func (m *MockLedger) AwaitConfirmation(_ context.Context, sig solana.Signature, _ chain.Checkpoint, _ rpc.CommitmentType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConfirmErr != nil {
		return &chain.ConfirmationError{Signature: sig, Err: m.ConfirmErr}
	}
	return nil
}

func (m *MockLedger) SignatureStatus(_ context.Context, sig solana.Signature) (chain.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[sig], nil
}

// SignatureFor derives a deterministic signature from arbitrary bytes.
func SignatureFor(data []byte) solana.Signature {
	var sig solana.Signature
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	copy(sig[:32], first[:])
	copy(sig[32:], second[:])
	return sig
}

// NewKey returns a fresh random key pair.
func NewKey() solana.PrivateKey {
	return solana.NewWallet().PrivateKey
}
