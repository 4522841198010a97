package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oshkosh1922/edens-gates/internal/config"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Chain: config.ChainConfig{
			RPC:            "http://127.0.0.1:8899",
			ConfirmTimeout: time.Second,
			PollInterval:   10 * time.Millisecond,
		},
		Store: config.StoreConfig{
			Driver:    config.DriverMemory,
			StatePath: filepath.Join(t.TempDir(), "state.db"),
		},
		Reconcile: config.ReconcileConfig{MaxAttempts: 3},
	}
}

func TestNewWithMemoryStoreAndSeed(t *testing.T) {
	cfg := baseConfig(t)
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
founders:
  - id: f1
    name: Ada
`), 0o600))
	cfg.Store.SeedFile = seed

	a, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Registry)
	assert.False(t, a.Session.Status().Enabled)

	h := a.Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/founders", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Ada"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/founders/f1/votes", nil))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	select {
	case <-a.Discover(context.Background()):
	case <-time.After(time.Second):
		t.Fatal("discovery should be a no-op without wallets")
	}
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Store.Driver = "redis"
	_, err := New(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
}

func TestNewWithWallet(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Wallet.Enabled = true
	cfg.Wallet.KeyEnv = "EDENS_GATES_TEST_KEY"
	cfg.Fee = config.FeeConfig{
		Mint:             solana.NewWallet().PublicKey().String(),
		Recipient:        solana.NewWallet().PublicKey().String(),
		Amount:           "0.5",
		Decimals:         6,
		ComputeUnitLimit: 300000,
		ComputeUnitPrice: 1000,
	}

	a, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Registry)
	names := []string{}
	for _, ad := range a.Registry.Adapters() {
		names = append(names, ad.Name())
	}
	assert.Equal(t, []string{"Environment Key"}, names)
	assert.True(t, a.Session.Status().Enabled)
}

func TestWalletBrandsAddsUnclaimedInjectedKeys(t *testing.T) {
	brands := []config.Brand{{Name: "Phantom", InjectedKeys: []string{"phantom.solana"}}}
	injected := []config.Endpoint{
		{Name: "phantom.solana", URL: "http://127.0.0.1:1"},
		{Name: "labwallet", URL: "http://127.0.0.1:2"},
	}
	out := walletBrands(brands, injected)
	require.Len(t, out, 2)
	assert.Equal(t, "Phantom", out[0].Name)
	assert.Equal(t, "labwallet", out[1].Name)
	assert.Equal(t, []string{"labwallet"}, out[1].InjectedKeys)

	brandOf := brandForPackage([]config.Brand{{Name: "Solflare", Packages: []string{"solflare-sdk"}}})
	assert.Equal(t, "Solflare", brandOf("solflare-sdk"))
	assert.Empty(t, brandOf("other"))
}
