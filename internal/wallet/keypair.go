package wallet

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

// KeypairAdapter is a statically known adapter that signs with a local
// key. The key is loaded on Connect, not at construction.
type KeypairAdapter struct {
	emitter
	name      string
	load      func() (solana.PrivateKey, error)
	available func() bool
	log       *logger.Logger

	mu  sync.Mutex
	key *solana.PrivateKey
}

var (
	_ Adapter     = (*KeypairAdapter)(nil)
	_ BatchSigner = (*KeypairAdapter)(nil)
)

// NewKeypairFileAdapter reads a solana-keygen JSON file.
func NewKeypairFileAdapter(name, path string, log *logger.Logger) *KeypairAdapter {
	return newKeypairAdapter(name, log,
		func() (solana.PrivateKey, error) {
			if path == "" {
				return nil, ErrAdapterUnavailable
			}
			key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
			if err != nil {
				return nil, fmt.Errorf("read keypair file: %w", err)
			}
			return key, nil
		},
		func() bool {
			if path == "" {
				return false
			}
			_, err := os.Stat(path)
			return err == nil
		},
	)
}

// NewEnvKeyAdapter reads a base58 private key from an environment variable.
func NewEnvKeyAdapter(name, envVar string, log *logger.Logger) *KeypairAdapter {
	return newKeypairAdapter(name, log,
		func() (solana.PrivateKey, error) {
			raw := strings.TrimSpace(os.Getenv(envVar))
			if envVar == "" || raw == "" {
				return nil, ErrAdapterUnavailable
			}
			key, err := solana.PrivateKeyFromBase58(raw)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", envVar, err)
			}
			return key, nil
		},
		func() bool {
			if envVar == "" {
				return false
			}
			v, ok := os.LookupEnv(envVar)
			return ok && strings.TrimSpace(v) != ""
		},
	)
}

// NewKeypairAdapter wraps an in-memory key.
func NewKeypairAdapter(name string, key solana.PrivateKey, log *logger.Logger) *KeypairAdapter {
	return newKeypairAdapter(name, log,
		func() (solana.PrivateKey, error) { return key, nil },
		func() bool { return len(key) > 0 },
	)
}

func newKeypairAdapter(name string, log *logger.Logger, load func() (solana.PrivateKey, error), available func() bool) *KeypairAdapter {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &KeypairAdapter{name: name, load: load, available: available, log: log.With("adapter", name)}
}

func (a *KeypairAdapter) Name() string { return a.name }

func (a *KeypairAdapter) Kind() Kind { return KindStatic }

func (a *KeypairAdapter) ReadyState() ReadyState {
	a.mu.Lock()
	loaded := a.key != nil
	a.mu.Unlock()
	switch {
	case loaded:
		return ReadyInstalled
	case a.available():
		return ReadyLoadable
	default:
		return ReadyNotDetected
	}
}

func (a *KeypairAdapter) PublicKey() (solana.PublicKey, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.key == nil {
		return solana.PublicKey{}, false
	}
	return a.key.PublicKey(), true
}

func (a *KeypairAdapter) Connect(context.Context) error {
	key, err := a.load()
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrMissingAddress
	}

	a.mu.Lock()
	a.key = &key
	a.mu.Unlock()

	pub := key.PublicKey()
	a.log.WithField("public_key", pub.String()).Info("wallet connected")
	a.emit(Event{Type: EventConnect, Adapter: a.name, PublicKey: pub})
	return nil
}

func (a *KeypairAdapter) Disconnect(context.Context) error {
	a.mu.Lock()
	a.key = nil
	a.mu.Unlock()
	a.emit(Event{Type: EventDisconnect, Adapter: a.name})
	return nil
}

func (a *KeypairAdapter) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	a.mu.Lock()
	key := a.key
	a.mu.Unlock()
	if key == nil {
		return nil, ErrNotConnected
	}

	pub := key.PublicKey()
	if _, err := tx.Sign(func(signer solana.PublicKey) *solana.PrivateKey {
		if signer.Equals(pub) {
			return key
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

func (a *KeypairAdapter) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
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

func (a *KeypairAdapter) SendTransaction(ctx context.Context, tx *solana.Transaction, sub Submitter, opts chain.SendOptions) (solana.Signature, error) {
	if sub == nil {
		return solana.Signature{}, fmt.Errorf("%s sendTransaction: no submitter: %w", a.name, ErrUnsupportedOperation)
	}
	signed, err := a.SignTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize transaction: %w", err)
	}
	return sub.SendRawTransaction(ctx, raw, opts)
}
