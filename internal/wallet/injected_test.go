package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
	"github.com/Oshkosh1922/edens-gates/pkg/testutil"
)

func TestDetect(t *testing.T) {
	if _, ok := Detect(nil, "phantom"); ok {
		t.Fatal("nil globals must detect nothing")
	}

	key := solana.NewWallet().PublicKey()
	g := NewMapGlobals()
	g.Set("notAWallet", "just a string")
	g.Set("magiceden", addressOnly{key: key})
	g.Set("magicEden", &connectProvider{live: key})

	p, ok := Detect(g, "missing", "notAWallet", "magicEden", "magiceden")
	require.True(t, ok)
	_, isConnector := p.(*connectProvider)
	assert.True(t, isConnector, "first wallet-shaped candidate should win")

	p, ok = Detect(g, "notAWallet", "magiceden")
	require.True(t, ok)
	assert.Equal(t, addressOnly{key: key}, p)

	_, ok = Detect(g, "notAWallet")
	assert.False(t, ok)
}

func TestInjectedConnect(t *testing.T) {
	ctx := context.Background()
	returned := solana.NewWallet().PublicKey()
	live := solana.NewWallet().PublicKey()

	t.Run("no provider", func(t *testing.T) {
		a := NewInjectedAdapter("Ghost", nil, logger.NewNop())
		assert.Equal(t, ReadyNotDetected, a.ReadyState())
		assert.ErrorIs(t, a.Connect(ctx), ErrAdapterUnavailable)
	})

	t.Run("address from return value", func(t *testing.T) {
		a := NewInjectedAdapter("W", &connectProvider{returned: returned}, logger.NewNop())
		require.NoError(t, a.Connect(ctx))
		got, ok := a.PublicKey()
		require.True(t, ok)
		assert.Equal(t, returned, got)
	})

	t.Run("live address preferred", func(t *testing.T) {
		a := NewInjectedAdapter("W", &connectProvider{returned: returned, live: live}, logger.NewNop())
		require.NoError(t, a.Connect(ctx))
		got, _ := a.PublicKey()
		assert.Equal(t, live, got)
	})

	t.Run("always connected provider", func(t *testing.T) {
		a := NewInjectedAdapter("W", addressOnly{key: live}, logger.NewNop())
		require.NoError(t, a.Connect(ctx))
		got, _ := a.PublicKey()
		assert.Equal(t, live, got)
	})

	t.Run("missing address", func(t *testing.T) {
		a := NewInjectedAdapter("W", &connectProvider{}, logger.NewNop())
		assert.ErrorIs(t, a.Connect(ctx), ErrMissingAddress)
		_, ok := a.PublicKey()
		assert.False(t, ok)
	})

	t.Run("provider error", func(t *testing.T) {
		a := NewInjectedAdapter("W", &connectProvider{connectErr: ErrUserRejected}, logger.NewNop())
		assert.ErrorIs(t, a.Connect(ctx), ErrUserRejected)
	})
}

func TestInjectedConnectIsReentrantNoop(t *testing.T) {
	p := &connectProvider{live: solana.NewWallet().PublicKey(), gate: make(chan struct{})}
	a := NewInjectedAdapter("W", p, logger.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.Connect(context.Background())
	}()

	// Wait for the first call to mark itself in flight.
	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.connecting
	}, time.Second, time.Millisecond)

	require.NoError(t, a.Connect(context.Background()))
	close(p.gate)
	wg.Wait()

	assert.Equal(t, 1, p.connectCount())
}

func TestInjectedDisconnectAlwaysClears(t *testing.T) {
	p := &connectProvider{live: solana.NewWallet().PublicKey(), discErr: errors.New("extension crashed")}
	a := NewInjectedAdapter("W", p, logger.NewNop())

	var events []EventType
	a.Subscribe(func(ev Event) { events = append(events, ev.Type) })

	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, a.Disconnect(context.Background()))

	_, ok := a.PublicKey()
	assert.False(t, ok)
	assert.Equal(t, 1, p.disconnects)
	assert.Equal(t, []EventType{EventConnect, EventDisconnect}, events)

	quiet := NewInjectedAdapter("W", addressOnly{key: solana.NewWallet().PublicKey()}, logger.NewNop())
	assert.NoError(t, quiet.Disconnect(context.Background()))
}

func TestInjectedSignTransactionUnsupported(t *testing.T) {
	a := NewInjectedAdapter("W", addressOnly{key: solana.NewWallet().PublicKey()}, logger.NewNop())
	_, err := a.SignTransaction(context.Background(), testTransaction(solana.NewWallet().PublicKey()))
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestInjectedSignAllFallsBackSequentially(t *testing.T) {
	p := newSigningProvider()
	a := NewInjectedAdapter("W", p, logger.NewNop())
	payer := p.key.PublicKey()

	txs := []*solana.Transaction{testTransaction(payer), testTransaction(payer), testTransaction(payer)}
	signed, err := a.SignAllTransactions(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, signed, 3)
	for i := range txs {
		assert.Same(t, txs[i], signed[i], "order must be preserved")
		assert.Len(t, signed[i].Signatures, 1)
	}

	failing := newSigningProvider()
	failing.failOn = 1
	a = NewInjectedAdapter("W", failing, logger.NewNop())
	signed, err = a.SignAllTransactions(context.Background(), []*solana.Transaction{
		testTransaction(failing.key.PublicKey()), testTransaction(failing.key.PublicKey()),
	})
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Nil(t, signed, "partial results must be discarded")
}

func TestInjectedSendTransactionFallbacks(t *testing.T) {
	ctx := context.Background()
	wantSig := solana.Signature{4, 2}

	t.Run("provider send first", func(t *testing.T) {
		sp := &sendingProvider{signingProvider: newSigningProvider(), sig: wantSig}
		ledger := testutil.NewMockLedger()
		a := NewInjectedAdapter("W", sp, logger.NewNop())

		sig, err := a.SendTransaction(ctx, testTransaction(sp.key.PublicKey()), ledger, chain.SendOptions{})
		require.NoError(t, err)
		assert.Equal(t, wantSig, sig)
		assert.Equal(t, 1, sp.sends)
		assert.Equal(t, 0, ledger.SentCount())
	})

	t.Run("sign and send shapes", func(t *testing.T) {
		shapes := []struct {
			name    string
			result  any
			wantErr error
		}{
			{"string", wantSig.String(), nil},
			{"object", map[string]any{"signature": wantSig.String()}, nil},
			{"raw json object", []byte(`{"signature":"` + wantSig.String() + `"}`), nil},
			{"typed", wantSig, nil},
			{"empty object", map[string]any{}, ErrMissingSignature},
			{"nil", nil, ErrMissingSignature},
		}
		for _, tc := range shapes {
			t.Run(tc.name, func(t *testing.T) {
				p := &signAndSendProvider{signingProvider: newSigningProvider(), result: tc.result}
				a := NewInjectedAdapter("W", p, logger.NewNop())
				sig, err := a.SendTransaction(ctx, testTransaction(p.key.PublicKey()), nil, chain.SendOptions{})
				if tc.wantErr != nil {
					assert.ErrorIs(t, err, tc.wantErr)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, wantSig, sig)
			})
		}
	})

	t.Run("sign then submit raw", func(t *testing.T) {
		p := newSigningProvider()
		ledger := testutil.NewMockLedger()
		a := NewInjectedAdapter("W", p, logger.NewNop())

		sig, err := a.SendTransaction(ctx, testTransaction(p.key.PublicKey()), ledger, chain.SendOptions{})
		require.NoError(t, err)
		require.Equal(t, 1, ledger.SentCount())
		assert.Equal(t, testutil.SignatureFor(ledger.Sent[0]), sig)
	})

	t.Run("reported capabilities narrow the fallback", func(t *testing.T) {
		sp := &sendingProvider{signingProvider: newSigningProvider(), sig: wantSig}
		p := &restrictedProvider{sendingProvider: sp, supported: map[string]bool{
			MethodPublicKey: true, MethodSignTransaction: true,
		}}
		ledger := testutil.NewMockLedger()
		a := NewInjectedAdapter("W", p, logger.NewNop())

		_, err := a.SendTransaction(ctx, testTransaction(sp.key.PublicKey()), ledger, chain.SendOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, sp.sends, "unreported sendTransaction must not be used")
		assert.Equal(t, 1, ledger.SentCount())
	})

	t.Run("no signer", func(t *testing.T) {
		a := NewInjectedAdapter("W", addressOnly{key: solana.NewWallet().PublicKey()}, logger.NewNop())
		_, err := a.SendTransaction(ctx, testTransaction(solana.NewWallet().PublicKey()), testutil.NewMockLedger(), chain.SendOptions{})
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
	})
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "9xQe…VFin", ShortAddress("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"))
	assert.Equal(t, "abc", ShortAddress("abc"))
}
