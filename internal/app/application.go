// Package app composes the voting portal from configuration: ledger client,
// wallet registry and session, fee builder, data store, local state,
// vote coordinator, reconciler and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jmoiron/sqlx"

	"github.com/Oshkosh1922/edens-gates/internal/chain"
	"github.com/Oshkosh1922/edens-gates/internal/config"
	"github.com/Oshkosh1922/edens-gates/internal/database"
	"github.com/Oshkosh1922/edens-gates/internal/feetx"
	"github.com/Oshkosh1922/edens-gates/internal/httpapi"
	"github.com/Oshkosh1922/edens-gates/internal/localstore"
	"github.com/Oshkosh1922/edens-gates/internal/metrics"
	"github.com/Oshkosh1922/edens-gates/internal/reconcile"
	"github.com/Oshkosh1922/edens-gates/internal/votes"
	"github.com/Oshkosh1922/edens-gates/internal/wallet"
	"github.com/Oshkosh1922/edens-gates/internal/wallet/remote"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
	"github.com/Oshkosh1922/edens-gates/supabase/client"
)

// Application holds every wired component and manages their lifecycle.
type Application struct {
	cfg *config.Config
	log *logger.Logger

	Metrics    *metrics.Metrics
	Chain      *chain.Client
	Registry   *wallet.Registry
	Session    wallet.Session
	Repo       database.Repository
	Store      *localstore.Store
	Votes      *votes.Coordinator
	Reconciler *reconcile.Reconciler
	Breaker    *client.Breaker
	Events     *httpapi.Hub

	db *sqlx.DB
}

// New builds an application. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Application{
		cfg:     cfg,
		log:     log,
		Metrics: metrics.New(),
		Events:  httpapi.NewHub(log.Named("events")),
	}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	a.Chain, err = chain.NewClient(chain.Config{
		RPCURL:         cfg.RPCEndpoint(),
		ConfirmTimeout: cfg.Chain.ConfirmTimeout,
		PollInterval:   cfg.Chain.PollInterval,
		Logger:         log.Named("chain"),
	})
	if err != nil {
		return nil, fmt.Errorf("ledger client: %w", err)
	}

	if a.Repo, err = a.openRepository(ctx); err != nil {
		return nil, err
	}

	if a.Store, err = localstore.Open(ctx, cfg.Store.StatePath, log.Named("localstore")); err != nil {
		return nil, err
	}

	var fees votes.FeeBuilder
	if cfg.WalletOn() {
		if err := a.buildWallet(ctx); err != nil {
			return nil, err
		}
		if fees, err = feeBuilder(cfg, a.Chain); err != nil {
			return nil, err
		}
	} else {
		a.Session = wallet.NewSession(wallet.SessionConfig{})
	}

	tally := votes.NewTally()
	if err := tally.Refresh(ctx, a.Repo); err != nil {
		log.WithError(err).Warn("initial founder tally unavailable")
	}

	a.Votes = votes.NewCoordinator(votes.Config{
		WalletEnabled: cfg.WalletOn(),
		Session:       a.Session,
		Fees:          fees,
		Repo:          a.Repo,
		Ledger:        a.Store.Ledger(),
		Journal:       a.Store,
		Tally:         tally,
		Recorder:      a.Metrics,
		Logger:        log.Named("votes"),
	})

	a.Reconciler, err = reconcile.New(reconcile.Config{
		Journal:     a.Store,
		Chain:       a.Chain,
		Repo:        a.Repo,
		Ledger:      a.Store.Ledger(),
		Tally:       tally,
		Observer:    a.Metrics,
		MaxAttempts: cfg.Reconcile.MaxAttempts,
		Logger:      log.Named("reconcile"),
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *Application) openRepository(ctx context.Context) (database.Repository, error) {
	cfg := a.cfg.Store
	switch cfg.Driver {
	case config.DriverSupabase:
		breaker := client.DefaultBreakerConfig()
		breaker.OnStateChange = func(from, to client.BreakerState) {
			a.Metrics.BreakerChanged(from, to)
			a.log.WithField("from", from.String()).WithField("to", to.String()).Warn("data store breaker changed state")
		}
		c, b, err := client.NewResilient(client.ResilientConfig{
			Config:  client.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey},
			Policy:  client.DefaultRetryPolicy(),
			Breaker: breaker,
		})
		if err != nil {
			return nil, fmt.Errorf("supabase client: %w", err)
		}
		a.Breaker = b
		return database.NewSupabaseRepository(c), nil

	case config.DriverPostgres:
		db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.db = db
		return database.NewPostgresRepository(db), nil

	case config.DriverMemory:
		repo := database.NewMemoryRepository()
		if cfg.SeedFile != "" {
			seed, err := database.LoadSeed(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := repo.ApplySeed(seed); err != nil {
				return nil, err
			}
		}
		a.log.Warn("using the in-memory data store; votes are lost on exit")
		return repo, nil
	}
	return nil, fmt.Errorf("unknown data store %q", cfg.Driver)
}

// buildWallet assembles the adapter registry: local keypairs first, then
// optional packages and injected daemons found by discovery.
func (a *Application) buildWallet(ctx context.Context) error {
	cfg := a.cfg
	wlog := a.log.Named("wallet")

	static := []wallet.Adapter{}
	if cfg.Wallet.KeypairPath != "" {
		static = append(static, wallet.NewKeypairFileAdapter("Keypair File", cfg.Wallet.KeypairPath, wlog))
	}
	static = append(static, wallet.NewEnvKeyAdapter("Environment Key", cfg.Wallet.KeyEnv, wlog))

	brands, err := cfg.Brands()
	if err != nil {
		return err
	}
	packages, err := cfg.OptionalPackages()
	if err != nil {
		return err
	}
	injected, err := cfg.InjectedProviders()
	if err != nil {
		return err
	}

	set := wallet.NewPackageSet()
	if err := remote.RegisterPackages(set, packages, brandForPackage(brands), wlog); err != nil {
		return err
	}
	globals := wallet.NewMapGlobals()
	if n := remote.InstallInjected(ctx, globals, injected, wlog); n > 0 {
		wlog.WithField("count", n).Info("injected wallet providers installed")
	}

	a.Registry = wallet.NewRegistry(wallet.RegistryConfig{
		Static:  static,
		Brands:  walletBrands(brands, injected),
		Globals: globals,
		Loader:  set.Load,
		Observer: func(brand, source string) {
			wlog.WithField("brand", brand).WithField("source", source).Debug("wallet brand resolved")
		},
		Logger: wlog,
	})
	a.Session = wallet.NewSession(wallet.SessionConfig{
		Enabled:        true,
		Registry:       a.Registry,
		RPC:            a.Chain,
		DefaultAdapter: cfg.Wallet.DefaultAdapter,
		Logger:         wlog.Named("wallet-session"),
	})
	return nil
}

// walletBrands converts configured brands and adds one brand per injected
// key that no configured brand claims.
func walletBrands(brands []config.Brand, injected []config.Endpoint) []wallet.Brand {
	out := make([]wallet.Brand, 0, len(brands)+len(injected))
	claimed := map[string]bool{}
	for _, b := range brands {
		out = append(out, wallet.Brand{Name: b.Name, Packages: b.Packages, InjectedKeys: b.InjectedKeys})
		for _, k := range b.InjectedKeys {
			claimed[k] = true
		}
	}
	for _, ep := range injected {
		if !claimed[ep.Name] {
			out = append(out, wallet.Brand{Name: ep.Name, InjectedKeys: []string{ep.Name}})
		}
	}
	return out
}

func brandForPackage(brands []config.Brand) func(string) string {
	return func(pkg string) string {
		for _, b := range brands {
			if slices.Contains(b.Packages, pkg) {
				return b.Name
			}
		}
		return ""
	}
}

func feeBuilder(cfg *config.Config, accounts feetx.AccountChecker) (*feetx.Builder, error) {
	mint, err := solana.PublicKeyFromBase58(cfg.Fee.Mint)
	if err != nil {
		return nil, fmt.Errorf("ME_MINT: %w", err)
	}
	recipient, err := solana.PublicKeyFromBase58(cfg.RewardsWallet())
	if err != nil {
		return nil, fmt.Errorf("REWARDS_WALLET: %w", err)
	}
	amount, err := cfg.FeeAmount()
	if err != nil {
		return nil, err
	}
	return feetx.NewBuilder(feetx.Config{
		Mint:             mint,
		Recipient:        recipient,
		Amount:           amount,
		Decimals:         cfg.Fee.Decimals,
		ComputeUnitLimit: uint32(cfg.Fee.ComputeUnitLimit),
		ComputeUnitPrice: uint64(cfg.Fee.ComputeUnitPrice),
	}, accounts), nil
}

// Discover runs wallet discovery in the background and updates the adapter
// gauge when it settles. It returns a closed channel when wallets are off.
func (a *Application) Discover(ctx context.Context) <-chan struct{} {
	if a.Registry == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	a.Metrics.SetAdapters(len(a.Registry.Adapters()))
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-a.Registry.DiscoverAsync(ctx)
		a.Metrics.SetAdapters(len(a.Registry.Adapters()))
	}()
	return done
}

// Handler returns the routed HTTP API.
func (a *Application) Handler() http.Handler {
	return httpapi.NewRouter(httpapi.Config{
		Session:     a.Session,
		Registry:    a.Registry,
		Voter:       a.Votes,
		Repo:        a.Repo,
		Metrics:     a.Metrics,
		Events:      a.Events,
		Logger:      a.log.Named("httpapi"),
		RateLimit:   a.cfg.HTTP.RateLimit,
		Burst:       a.cfg.HTTP.Burst,
		CORSOrigins: a.cfg.CORSOrigins(),
	})
}

// Run discovers wallets, starts the reconciler schedule and serves the API
// until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	a.Discover(ctx)
	if a.Registry != nil {
		go a.Events.WatchSession(ctx, a.Session, 2*time.Second)
	}

	if a.cfg.Reconcile.Schedule != "" {
		if err := a.Reconciler.Start(ctx, a.cfg.Reconcile.Schedule); err != nil {
			return err
		}
		defer a.Reconciler.Stop()
	}

	server := httpapi.NewServer(a.cfg.HTTP.Addr, a.Handler(), a.log.Named("httpapi"))
	return server.Run(ctx)
}

// Close releases every resource. It is safe to call more than once.
func (a *Application) Close() error {
	var errs []error
	if a.Session != nil && a.Session.Status().Connected {
		if err := a.Session.Disconnect(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Registry != nil {
		a.Registry.Dispose()
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
		a.Store = nil
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	return errors.Join(errs...)
}
