package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

// InjectedAdapter wraps an ad-hoc provider found by Detect.
type InjectedAdapter struct {
	emitter
	name     string
	kind     Kind
	provider Provider
	log      *logger.Logger

	mu         sync.Mutex
	connecting bool
	publicKey  *solana.PublicKey
}

var (
	_ Adapter     = (*InjectedAdapter)(nil)
	_ BatchSigner = (*InjectedAdapter)(nil)
)

// NewInjectedAdapter wraps provider, which may be nil when nothing was detected.
func NewInjectedAdapter(name string, provider Provider, log *logger.Logger) *InjectedAdapter {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &InjectedAdapter{
		name:     name,
		kind:     KindInjected,
		provider: provider,
		log:      log.With("adapter", name),
	}
}

// NewPackageAdapter wraps a provider exported by an optional package. It
// behaves like an injected adapter but reports KindPackage.
func NewPackageAdapter(name string, provider Provider, log *logger.Logger) *InjectedAdapter {
	a := NewInjectedAdapter(name, provider, log)
	a.kind = KindPackage
	return a
}

func (a *InjectedAdapter) Name() string { return a.name }

func (a *InjectedAdapter) Kind() Kind { return a.kind }

// ReadyState reports Installed when a provider handle was found.
func (a *InjectedAdapter) ReadyState() ReadyState {
	if a.provider == nil {
		return ReadyNotDetected
	}
	return ReadyInstalled
}

// PublicKey returns the cached address.
func (a *InjectedAdapter) PublicKey() (solana.PublicKey, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.publicKey == nil {
		return solana.PublicKey{}, false
	}
	return *a.publicKey, true
}

// Connect connects the provider. A call made while another connect is in
// flight returns immediately.
func (a *InjectedAdapter) Connect(ctx context.Context) error {
	if a.provider == nil {
		return ErrAdapterUnavailable
	}

	a.mu.Lock()
	if a.connecting {
		a.mu.Unlock()
		return nil
	}
	a.connecting = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.connecting = false
		a.mu.Unlock()
	}()

	var returned solana.PublicKey
	if c, ok := capability[Connector](a.provider, MethodConnect); ok {
		key, err := c.Connect(ctx)
		if err != nil {
			return fmt.Errorf("%s connect: %w", a.name, err)
		}
		returned = key
	}

	key := returned
	if r, ok := capability[AddressReporter](a.provider, MethodPublicKey); ok {
		if live, ok := r.PublicKey(); ok && !live.IsZero() {
			key = live
		}
	}
	if key.IsZero() {
		return ErrMissingAddress
	}

	a.mu.Lock()
	a.publicKey = &key
	a.mu.Unlock()

	a.log.WithField("public_key", key.String()).Info("wallet connected")
	a.emit(Event{Type: EventConnect, Adapter: a.name, PublicKey: key})
	return nil
}

// Disconnect asks the provider to disconnect when it can and always clears
// the cached address.
func (a *InjectedAdapter) Disconnect(ctx context.Context) error {
	if d, ok := capability[Disconnector](a.provider, MethodDisconnect); ok {
		if err := d.Disconnect(ctx); err != nil {
			a.log.WithError(err).Warn("provider disconnect failed")
		}
	}

	a.mu.Lock()
	a.publicKey = nil
	a.mu.Unlock()

	a.emit(Event{Type: EventDisconnect, Adapter: a.name})
	return nil
}

// SignTransaction delegates to the provider's signer.
func (a *InjectedAdapter) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	s, ok := capability[TransactionSigner](a.provider, MethodSignTransaction)
	if !ok {
		return nil, fmt.Errorf("%s signTransaction: %w", a.name, ErrUnsupportedOperation)
	}
	return s.SignTransaction(ctx, tx)
}

// SignAllTransactions uses the provider's batch signer, or signs one by one
// keeping order. Any failure discards every result.
func (a *InjectedAdapter) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	if b, ok := capability[BatchTransactionSigner](a.provider, MethodSignAllTransactions); ok {
		return b.SignAllTransactions(ctx, txs)
	}

	signed := make([]*solana.Transaction, 0, len(txs))
	for i, tx := range txs {
		out, err := a.SignTransaction(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("sign transaction %d: %w", i, err)
		}
		signed = append(signed, out)
	}
	return signed, nil
}

// SendTransaction prefers the provider's own send, then its sign-and-send,
// then signs here and submits through sub.
func (a *InjectedAdapter) SendTransaction(ctx context.Context, tx *solana.Transaction, sub Submitter, opts chain.SendOptions) (solana.Signature, error) {
	if s, ok := capability[TransactionSender](a.provider, MethodSendTransaction); ok {
		return s.SendTransaction(ctx, tx, opts)
	}

	if s, ok := capability[SignAndSender](a.provider, MethodSignAndSendTransaction); ok {
		result, err := s.SignAndSendTransaction(ctx, tx, opts)
		if err != nil {
			return solana.Signature{}, err
		}
		return normalizeSignature(result)
	}

	signed, err := a.SignTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	if sub == nil {
		return solana.Signature{}, fmt.Errorf("%s sendTransaction: no submitter: %w", a.name, ErrUnsupportedOperation)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize transaction: %w", err)
	}
	return sub.SendRawTransaction(ctx, raw, opts)
}
