package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/tidwall/gjson"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
)

// Provider is a loosely-typed wallet object found in the environment. Each
// capability below is checked for independently.
type Provider any

// Provider method names, as reported through CapabilityReporter.
const (
	MethodPublicKey              = "publicKey"
	MethodConnect                = "connect"
	MethodDisconnect             = "disconnect"
	MethodSignTransaction        = "signTransaction"
	MethodSignAllTransactions    = "signAllTransactions"
	MethodSendTransaction        = "sendTransaction"
	MethodSignAndSendTransaction = "signAndSendTransaction"
)

// AddressReporter exposes the provider's live public key.
type AddressReporter interface {
	PublicKey() (solana.PublicKey, bool)
}

// Connector connects the provider. A zero key means the call itself
// returned no address.
type Connector interface {
	Connect(ctx context.Context) (solana.PublicKey, error)
}

// Disconnector disconnects the provider.
type Disconnector interface {
	Disconnect(ctx context.Context) error
}

// TransactionSigner signs a single transaction.
type TransactionSigner interface {
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// BatchTransactionSigner signs several transactions in one call.
type BatchTransactionSigner interface {
	SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error)
}

// TransactionSender signs and submits, returning the signature.
type TransactionSender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction, opts chain.SendOptions) (solana.Signature, error)
}

// SignAndSender signs and submits but returns a provider-specific result:
// a signature string, a solana.Signature, or an object with a signature field.
type SignAndSender interface {
	SignAndSendTransaction(ctx context.Context, tx *solana.Transaction, opts chain.SendOptions) (any, error)
}

// CapabilityReporter lets a provider whose method set is only known at
// runtime narrow the interfaces it statically implements.
type CapabilityReporter interface {
	Supports(method string) bool
}

func capability[T any](p Provider, method string) (T, bool) {
	var zero T
	if p == nil {
		return zero, false
	}
	c, ok := p.(T)
	if !ok {
		return zero, false
	}
	if r, ok := p.(CapabilityReporter); ok && !r.Supports(method) {
		return zero, false
	}
	return c, true
}

// isWalletShaped reports whether p exposes at least one of the core
// wallet capabilities.
func isWalletShaped(p Provider) bool {
	if _, ok := capability[AddressReporter](p, MethodPublicKey); ok {
		return true
	}
	if _, ok := capability[Connector](p, MethodConnect); ok {
		return true
	}
	if _, ok := capability[TransactionSigner](p, MethodSignTransaction); ok {
		return true
	}
	_, ok := capability[TransactionSender](p, MethodSendTransaction)
	return ok
}

// =============================================================================
// Globals
// =============================================================================

// Globals is a read-only view of objects injected into the environment.
type Globals interface {
	Lookup(key string) (Provider, bool)
}

// MapGlobals is a concurrency-safe Globals backed by a map.
type MapGlobals struct {
	mu      sync.RWMutex
	objects map[string]Provider
}

// NewMapGlobals returns an empty MapGlobals.
func NewMapGlobals() *MapGlobals {
	return &MapGlobals{objects: make(map[string]Provider)}
}

// Set installs or replaces an injected object.
func (g *MapGlobals) Set(key string, p Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = p
}

// Delete removes an injected object.
func (g *MapGlobals) Delete(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.objects, key)
}

// Lookup implements Globals.
func (g *MapGlobals) Lookup(key string) (Provider, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.objects[key]
	return p, ok
}

// Keys lists installed keys in sorted order.
func (g *MapGlobals) Keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	keys := make([]string, 0, len(g.objects))
	for k := range g.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Detect returns the first candidate key whose object looks like a wallet.
// A nil Globals means no environment and yields no provider.
func Detect(globals Globals, keys ...string) (Provider, bool) {
	if globals == nil {
		return nil, false
	}
	for _, key := range keys {
		p, ok := globals.Lookup(key)
		if !ok || p == nil {
			continue
		}
		if isWalletShaped(p) {
			return p, true
		}
	}
	return nil, false
}

// =============================================================================
// Result normalization
// =============================================================================

// normalizeSignature turns a sign-and-send result of any supported shape
// into a signature.
func normalizeSignature(result any) (solana.Signature, error) {
	var raw string
	switch v := result.(type) {
	case nil:
	case solana.Signature:
		if v != (solana.Signature{}) {
			return v, nil
		}
	case *solana.Signature:
		if v != nil && *v != (solana.Signature{}) {
			return *v, nil
		}
	case string:
		raw = v
	case map[string]any:
		raw, _ = v["signature"].(string)
	case map[string]string:
		raw = v["signature"]
	case json.RawMessage:
		raw = signatureFromJSON(v)
	case []byte:
		raw = signatureFromJSON(v)
	case fmt.Stringer:
		raw = v.String()
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return solana.Signature{}, ErrMissingSignature
	}
	sig, err := solana.SignatureFromBase58(raw)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrMissingSignature, err)
	}
	return sig, nil
}

func signatureFromJSON(data []byte) string {
	res := gjson.ParseBytes(data)
	if res.Type == gjson.String {
		return res.String()
	}
	return res.Get("signature").String()
}
