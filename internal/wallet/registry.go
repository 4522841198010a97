package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

// Brand is a well-known wallet that may be available as an optional
// package, tried in order, or as an injected provider under one of its keys.
type Brand struct {
	Name         string
	Packages     []string
	InjectedKeys []string
}

// Loader loads an optional adapter package by name.
type Loader func(ctx context.Context, name string) (Adapter, error)

// DiscoveryObserver is told how each brand resolved: source is "package",
// "injected" or "none".
type DiscoveryObserver func(brand, source string)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Static adapters are listed first, in this order, before any discovery.
	Static   []Adapter
	Brands   []Brand
	Globals  Globals
	Loader   Loader
	Observer DiscoveryObserver
	Logger   *logger.Logger
}

// Registry owns the ordered adapter list shown to the user.
type Registry struct {
	brands   []Brand
	globals  Globals
	loader   Loader
	observer DiscoveryObserver
	log      *logger.Logger

	mu       sync.RWMutex
	adapters []Adapter
	names    map[string]bool
	disposed bool
}

// NewRegistry returns a registry holding the static adapters.
func NewRegistry(cfg RegistryConfig) *Registry {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("wallet-registry")
	}
	loader := cfg.Loader
	if loader == nil {
		loader = LoadPackage
	}
	observer := cfg.Observer
	if observer == nil {
		observer = func(string, string) {}
	}

	r := &Registry{
		brands:   append([]Brand(nil), cfg.Brands...),
		globals:  cfg.Globals,
		loader:   loader,
		observer: observer,
		log:      log,
		names:    make(map[string]bool),
	}
	for _, a := range cfg.Static {
		r.appendLocked(a)
	}
	return r
}

func (r *Registry) appendLocked(a Adapter) bool {
	if a == nil || r.names[a.Name()] {
		return false
	}
	r.names[a.Name()] = true
	r.adapters = append(r.adapters, a)
	return true
}

// Adapters returns a snapshot of the current adapter list.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Adapter(nil), r.adapters...)
}

// Lookup finds an adapter by name.
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, name)
}

// Dispose stops the registry from applying further discovery results.
func (r *Registry) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed = true
}

// Disposed reports whether Dispose was called.
func (r *Registry) Disposed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disposed
}

// DiscoverAsync runs Discover in the background. The returned channel is
// closed once discovery settles.
func (r *Registry) DiscoverAsync(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Discover(ctx)
	}()
	return done
}

// Discover loads every brand's packages in parallel, then appends the
// adapters that resolved, then falls back to injected providers for brands
// no package covered. Failures are logged and never returned. It returns
// the adapters it added.
func (r *Registry) Discover(ctx context.Context) []Adapter {
	loaded := make([]Adapter, len(r.brands))

	var g errgroup.Group
	for i, brand := range r.brands {
		g.Go(func() error {
			loaded[i] = r.loadBrand(ctx, brand)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		r.log.Debug("registry disposed, discarding discovery results")
		return nil
	}

	var added []Adapter
	for i, a := range loaded {
		if a == nil {
			continue
		}
		if r.appendLocked(a) {
			added = append(added, a)
			r.observer(r.brands[i].Name, "package")
		}
	}

	for i, brand := range r.brands {
		if loaded[i] != nil || r.names[brand.Name] {
			continue
		}
		provider, ok := Detect(r.globals, brand.InjectedKeys...)
		if !ok {
			r.observer(brand.Name, "none")
			continue
		}
		a := NewInjectedAdapter(brand.Name, provider, r.log)
		if r.appendLocked(a) {
			added = append(added, a)
			r.observer(brand.Name, "injected")
		}
	}

	if len(added) > 0 {
		r.log.WithField("added", len(added)).WithField("total", len(r.adapters)).Info("wallet adapters discovered")
	}
	return added
}

func (r *Registry) loadBrand(ctx context.Context, brand Brand) Adapter {
	for _, pkg := range brand.Packages {
		a, err := r.safeLoad(ctx, pkg)
		if err == nil {
			return a
		}
		entry := r.log.WithError(err).WithField("brand", brand.Name).WithField("package", pkg)
		if errors.Is(err, ErrPackageNotFound) {
			entry.Debug("optional wallet package not available")
		} else {
			entry.Warn("optional wallet package failed to load")
		}
	}
	return nil
}

func (r *Registry) safeLoad(ctx context.Context, pkg string) (a Adapter, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a, err = nil, fmt.Errorf("package %s panicked: %v", pkg, rec)
		}
	}()
	a, err = r.loader(ctx, pkg)
	if err == nil && a == nil {
		err = fmt.Errorf("package %s returned no adapter", pkg)
	}
	return a, err
}
