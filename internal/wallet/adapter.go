// Package wallet provides the wallet session facade, the adapter registry
// and the adapters that normalize heterogeneous wallet providers.
package wallet

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
)

// ReadyState describes whether an adapter can be used right now.
type ReadyState string

const (
	ReadyInstalled   ReadyState = "Installed"
	ReadyLoadable    ReadyState = "Loadable"
	ReadyNotDetected ReadyState = "NotDetected"
)

// Kind identifies where an adapter came from.
type Kind string

const (
	KindStatic   Kind = "static"
	KindPackage  Kind = "package"
	KindInjected Kind = "injected"
)

// Submitter submits an already signed transaction. chain.Client satisfies it.
type Submitter interface {
	SendRawTransaction(ctx context.Context, raw []byte, opts chain.SendOptions) (solana.Signature, error)
}

// Adapter is the uniform contract every wallet integration satisfies.
type Adapter interface {
	Name() string
	Kind() Kind
	ReadyState() ReadyState
	PublicKey() (solana.PublicKey, bool)
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction, sub Submitter, opts chain.SendOptions) (solana.Signature, error)
	Subscribe(fn func(Event)) (unsubscribe func())
}

// BatchSigner is implemented by adapters that can sign several
// transactions at once.
type BatchSigner interface {
	SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error)
}

// EventType distinguishes adapter events.
type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
)

// Event is delivered to adapter subscribers.
type Event struct {
	Type      EventType
	Adapter   string
	PublicKey solana.PublicKey
}

type emitter struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func(Event)
}

// Subscribe registers fn for adapter events.
func (e *emitter) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]func(Event))
	}
	id := e.next
	e.next++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	fns := make([]func(Event), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// ShortAddress renders a key as first4…last4 for display.
func ShortAddress(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:4] + "…" + key[len(key)-4:]
}
