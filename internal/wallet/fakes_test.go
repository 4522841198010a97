package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
)

// connectProvider connects and reports its key. The returned key and the
// live key can be set independently.
type connectProvider struct {
	mu          sync.Mutex
	returned    solana.PublicKey
	live        solana.PublicKey
	connectErr  error
	connects    int
	gate        chan struct{}
	disconnects int
	discErr     error
}

func (p *connectProvider) Connect(context.Context) (solana.PublicKey, error) {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	return p.returned, p.connectErr
}

func (p *connectProvider) PublicKey() (solana.PublicKey, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live, !p.live.IsZero()
}

func (p *connectProvider) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
	return p.discErr
}

func (p *connectProvider) connectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// addressOnly is an always-connected provider.
type addressOnly struct{ key solana.PublicKey }

func (p addressOnly) PublicKey() (solana.PublicKey, bool) { return p.key, true }

// signingProvider signs with a local key.
type signingProvider struct {
	connectProvider
	key      solana.PrivateKey
	failOn   int
	signs    int
	signLock sync.Mutex
}

func newSigningProvider() *signingProvider {
	key := solana.NewWallet().PrivateKey
	return &signingProvider{connectProvider: connectProvider{live: key.PublicKey()}, key: key, failOn: -1}
}

func (p *signingProvider) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	p.signLock.Lock()
	n := p.signs
	p.signs++
	p.signLock.Unlock()
	if n == p.failOn {
		return nil, ErrUserRejected
	}
	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(p.key.PublicKey()) {
			return &p.key
		}
		return nil
	})
	return tx, err
}

// sendingProvider submits on its own.
type sendingProvider struct {
	*signingProvider
	sig   solana.Signature
	sends int
}

func (p *sendingProvider) SendTransaction(context.Context, *solana.Transaction, chain.SendOptions) (solana.Signature, error) {
	p.sends++
	return p.sig, nil
}

// signAndSendProvider returns a provider-shaped result.
type signAndSendProvider struct {
	*signingProvider
	result any
	err    error
}

func (p *signAndSendProvider) SignAndSendTransaction(context.Context, *solana.Transaction, chain.SendOptions) (any, error) {
	return p.result, p.err
}

// restrictedProvider statically implements every capability but reports
// only some of them.
type restrictedProvider struct {
	*sendingProvider
	supported map[string]bool
}

func (p *restrictedProvider) Supports(method string) bool { return p.supported[method] }

// staticAdapter is a minimal pre-registered adapter for registry tests.
type staticAdapter struct {
	emitter
	name string
}

func (a *staticAdapter) Name() string                        { return a.name }
func (a *staticAdapter) Kind() Kind                          { return KindStatic }
func (a *staticAdapter) ReadyState() ReadyState              { return ReadyInstalled }
func (a *staticAdapter) PublicKey() (solana.PublicKey, bool) { return solana.PublicKey{}, false }
func (a *staticAdapter) Connect(context.Context) error       { return errors.New("not implemented") }
func (a *staticAdapter) Disconnect(context.Context) error    { return nil }
func (a *staticAdapter) SignTransaction(context.Context, *solana.Transaction) (*solana.Transaction, error) {
	return nil, ErrUnsupportedOperation
}
func (a *staticAdapter) SendTransaction(context.Context, *solana.Transaction, Submitter, chain.SendOptions) (solana.Signature, error) {
	return solana.Signature{}, ErrUnsupportedOperation
}

func testTransaction(payer solana.PublicKey) *solana.Transaction {
	ix := solana.NewInstruction(
		solana.MemoProgramID,
		solana.AccountMetaSlice{solana.NewAccountMeta(payer, true, true)},
		[]byte("vote"),
	)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{1}, solana.TransactionPayer(payer))
	if err != nil {
		panic(err)
	}
	return tx
}

func memoInstruction(payer solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.MemoProgramID,
		solana.AccountMetaSlice{solana.NewAccountMeta(payer, true, true)},
		[]byte("vote"),
	)
}
