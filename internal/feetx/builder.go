// Package feetx builds the per-vote fee transfer: compute budget hints,
// associated token accounts created on demand, then a checked transfer.
package feetx

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
)

// ErrInvalidConfiguration means the fee settings cannot produce a transfer.
var ErrInvalidConfiguration = errors.New("invalid fee configuration")

// AccountChecker reports on-chain account existence. chain.Client satisfies it.
type AccountChecker interface {
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
}

// Config describes the fee.
type Config struct {
	Mint             solana.PublicKey
	Recipient        solana.PublicKey
	Amount           decimal.Decimal
	Decimals         int
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
}

// FeeTransaction is the ordered instruction list for one vote fee.
type FeeTransaction struct {
	Instructions []solana.Instruction
	Amount       uint64
	PayerATA     solana.PublicKey
	RecipientATA solana.PublicKey
	// Created lists the token accounts this transaction creates.
	Created []solana.PublicKey
}

// Builder builds fee transactions.
type Builder struct {
	cfg      Config
	accounts AccountChecker
}

// NewBuilder creates a builder. Configuration is validated on every Build.
func NewBuilder(cfg Config, accounts AccountChecker) *Builder {
	return &Builder{cfg: cfg, accounts: accounts}
}

// BaseUnits converts a decimal amount to integer base units, rounding half
// to even.
func BaseUnits(amount decimal.Decimal, decimals int) (uint64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: fee amount must be positive, got %s", ErrInvalidConfiguration, amount)
	}
	if decimals < 0 || decimals > 255 {
		return 0, fmt.Errorf("%w: decimals must be in [0,255], got %d", ErrInvalidConfiguration, decimals)
	}
	units := amount.Shift(int32(decimals)).RoundBank(0)
	if !units.IsPositive() {
		return 0, fmt.Errorf("%w: %s at %d decimals rounds to zero base units", ErrInvalidConfiguration, amount, decimals)
	}
	n := units.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("%w: %s base units overflow", ErrInvalidConfiguration, units)
	}
	return n.Uint64(), nil
}

// Amount returns the configured fee in base units.
func (b *Builder) Amount() (uint64, error) {
	return BaseUnits(b.cfg.Amount, b.cfg.Decimals)
}

func (b *Builder) validate() (uint64, error) {
	amount, err := b.Amount()
	if err != nil {
		return 0, err
	}
	if b.cfg.Mint.IsZero() || b.cfg.Recipient.IsZero() {
		return 0, fmt.Errorf("%w: mint and recipient are required", ErrInvalidConfiguration)
	}
	if b.cfg.ComputeUnitLimit == 0 {
		return 0, fmt.Errorf("%w: compute unit limit must be positive", ErrInvalidConfiguration)
	}
	return amount, nil
}

// Build returns the fee instructions for payer. Configuration errors are
// reported before any account lookup.
func (b *Builder) Build(ctx context.Context, payer solana.PublicKey) (*FeeTransaction, error) {
	amount, err := b.validate()
	if err != nil {
		return nil, err
	}
	if payer.IsZero() {
		return nil, fmt.Errorf("%w: payer is required", ErrInvalidConfiguration)
	}

	payerATA, _, err := solana.FindAssociatedTokenAddress(payer, b.cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive payer token account: %w", err)
	}
	recipientATA, _, err := solana.FindAssociatedTokenAddress(b.cfg.Recipient, b.cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive recipient token account: %w", err)
	}

	out := &FeeTransaction{
		Amount:       amount,
		PayerATA:     payerATA,
		RecipientATA: recipientATA,
		Instructions: []solana.Instruction{
			computebudget.NewSetComputeUnitLimitInstruction(b.cfg.ComputeUnitLimit).Build(),
			computebudget.NewSetComputeUnitPriceInstruction(b.cfg.ComputeUnitPrice).Build(),
		},
	}

	// The payer funds both creations so a first-time voter is never blocked
	// by a missing recipient account.
	for _, acct := range []struct {
		owner solana.PublicKey
		ata   solana.PublicKey
	}{
		{payer, payerATA},
		{b.cfg.Recipient, recipientATA},
	} {
		if len(out.Created) > 0 && out.Created[0] == acct.ata {
			continue
		}
		exists, err := b.accounts.AccountExists(ctx, acct.ata)
		if err != nil {
			return nil, fmt.Errorf("check token account %s: %w", acct.ata, err)
		}
		if exists {
			continue
		}
		out.Instructions = append(out.Instructions,
			associatedtokenaccount.NewCreateInstruction(payer, acct.owner, b.cfg.Mint).Build())
		out.Created = append(out.Created, acct.ata)
	}

	out.Instructions = append(out.Instructions,
		token.NewTransferCheckedInstruction(
			amount,
			uint8(b.cfg.Decimals),
			payerATA,
			b.cfg.Mint,
			recipientATA,
			payer,
			nil,
		).Build())

	return out, nil
}
