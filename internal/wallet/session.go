package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

// State is a wallet session state.
type State string

const (
	StateDisabled      State = "disabled"
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// Status is a point-in-time view of the session. Address is set if and
// only if Connected is true.
type Status struct {
	Enabled   bool   `json:"enabled"`
	State     State  `json:"state"`
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	Busy      bool   `json:"busy"`
	Adapter   string `json:"adapter,omitempty"`
}

// Session is the wallet facade the rest of the application uses.
type Session interface {
	Status() Status
	Address() (solana.PublicKey, bool)
	Select(ctx context.Context, adapter string) error
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
	// SignAndSend stamps the instructions with the connected payer and a
	// fresh checkpoint, submits through the adapter and waits for
	// confirmation. On ErrConfirmationTimeout the signature is still returned.
	SignAndSend(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error)
}

// SessionConfig configures NewSession.
type SessionConfig struct {
	Enabled        bool
	Registry       *Registry
	RPC            chain.RPC
	Commitment     rpc.CommitmentType
	DefaultAdapter string
	Logger         *logger.Logger
}

// NewSession returns the disabled stub when wallet support is off.
func NewSession(cfg SessionConfig) Session {
	if !cfg.Enabled {
		return disabledSession{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("wallet-session")
	}
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	s := &activeSession{
		registry:   cfg.Registry,
		rpc:        cfg.RPC,
		commitment: commitment,
		log:        log,
		state:      StateDisconnected,
	}
	if cfg.DefaultAdapter != "" && cfg.Registry != nil {
		if a, err := cfg.Registry.Lookup(cfg.DefaultAdapter); err == nil {
			s.attachLocked(a)
		} else {
			log.WithError(err).Warn("default wallet adapter not found")
		}
	}
	return s
}

// =============================================================================
// Disabled stub
// =============================================================================

type disabledSession struct{}

func (disabledSession) Status() Status {
	return Status{State: StateDisabled}
}

func (disabledSession) Address() (solana.PublicKey, bool) { return solana.PublicKey{}, false }

func (disabledSession) Select(context.Context, string) error { return ErrFeatureDisabled }

func (disabledSession) Connect(context.Context) error { return ErrFeatureDisabled }

func (disabledSession) Disconnect(context.Context) error { return ErrFeatureDisabled }

func (disabledSession) SignTransaction(context.Context, *solana.Transaction) (*solana.Transaction, error) {
	return nil, ErrFeatureDisabled
}

func (disabledSession) SignAndSend(context.Context, []solana.Instruction) (solana.Signature, error) {
	return solana.Signature{}, ErrFeatureDisabled
}

// =============================================================================
// Active session
// =============================================================================

type activeSession struct {
	registry   *Registry
	rpc        chain.RPC
	commitment rpc.CommitmentType
	log        *logger.Logger

	mu          sync.Mutex
	state       State
	adapter     Adapter
	address     *solana.PublicKey
	inflight    int
	unsubscribe func()
}

func (s *activeSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Enabled:   true,
		State:     s.state,
		Connected: s.state == StateConnected,
		Busy:      s.state == StateConnecting || s.state == StateDisconnecting || s.inflight > 0,
	}
	if s.adapter != nil {
		st.Adapter = s.adapter.Name()
	}
	if st.Connected && s.address != nil {
		st.Address = s.address.String()
	}
	return st
}

func (s *activeSession) Address() (solana.PublicKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.address == nil {
		return solana.PublicKey{}, false
	}
	return *s.address, true
}

// Select makes the named adapter current, disconnecting the previous one.
func (s *activeSession) Select(ctx context.Context, name string) error {
	if s.registry == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAdapter, name)
	}
	a, err := s.registry.Lookup(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateDisconnecting {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.adapter == a {
		s.mu.Unlock()
		return nil
	}
	prev := s.adapter
	wasConnected := s.state == StateConnected
	s.attachLocked(a)
	s.state = StateDisconnected
	s.address = nil
	s.mu.Unlock()

	if wasConnected && prev != nil {
		if err := prev.Disconnect(ctx); err != nil {
			s.log.WithError(err).WithField("adapter", prev.Name()).Warn("disconnect of previous adapter failed")
		}
	}
	s.log.WithField("adapter", name).Info("wallet adapter selected")
	return nil
}

func (s *activeSession) attachLocked(a Adapter) {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.adapter = a
	s.unsubscribe = a.Subscribe(func(ev Event) { s.onAdapterEvent(a, ev) })
}

// onAdapterEvent handles disconnects the provider initiated on its own.
func (s *activeSession) onAdapterEvent(a Adapter, ev Event) {
	if ev.Type != EventDisconnect {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == a && s.state == StateConnected {
		s.state = StateDisconnected
		s.address = nil
		s.log.WithField("adapter", a.Name()).Info("wallet disconnected by provider")
	}
}

// Connect is a no-op while a connect is already in flight or the session
// is already connected.
func (s *activeSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateConnected:
		s.mu.Unlock()
		return nil
	case StateDisconnecting:
		s.mu.Unlock()
		return ErrBusy
	}
	a := s.adapter
	if a == nil {
		s.mu.Unlock()
		return fmt.Errorf("no adapter selected: %w", ErrAdapterUnavailable)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	err := a.Connect(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateDisconnected
		s.address = nil
		return err
	}
	key, ok := a.PublicKey()
	if !ok || key.IsZero() {
		s.state = StateDisconnected
		s.address = nil
		return ErrMissingAddress
	}
	s.state = StateConnected
	s.address = &key
	return nil
}

// Disconnect always ends in the disconnected state.
func (s *activeSession) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateDisconnected:
		s.mu.Unlock()
		return nil
	case StateConnecting, StateDisconnecting:
		s.mu.Unlock()
		return ErrBusy
	}
	a := s.adapter
	s.state = StateDisconnecting
	s.mu.Unlock()

	err := a.Disconnect(ctx)

	s.mu.Lock()
	s.state = StateDisconnected
	s.address = nil
	s.mu.Unlock()
	return err
}

func (s *activeSession) connected() (Adapter, solana.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.address == nil {
		return nil, solana.PublicKey{}, ErrNotConnected
	}
	return s.adapter, *s.address, nil
}

func (s *activeSession) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	a, _, err := s.connected()
	if err != nil {
		return nil, err
	}
	return a.SignTransaction(ctx, tx)
}

func (s *activeSession) SignAndSend(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	a, payer, err := s.connected()
	if err != nil {
		return solana.Signature{}, err
	}
	if s.rpc == nil {
		return solana.Signature{}, fmt.Errorf("no ledger RPC configured: %w", ErrUnsupportedOperation)
	}

	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	cp, err := s.rpc.LatestCheckpoint(ctx, s.commitment)
	if err != nil {
		return solana.Signature{}, err
	}
	tx, err := solana.NewTransaction(instructions, cp.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	sig, err := a.SendTransaction(ctx, tx, s.rpc, chain.SendOptions{PreflightCommitment: s.commitment})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("submit transaction: %w", err)
	}

	log := s.log.WithField("signature", sig.String()).WithField("adapter", a.Name())
	if err := s.rpc.AwaitConfirmation(ctx, sig, cp, s.commitment); err != nil {
		log.WithError(err).Warn("transaction not confirmed")
		return sig, err
	}
	log.Info("transaction confirmed")
	return sig, nil
}
