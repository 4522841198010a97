package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// PackageFactory constructs the adapter exported by an optional package.
type PackageFactory func(ctx context.Context) (Adapter, error)

// PackageSet maps optional package names to adapter factories.
type PackageSet struct {
	mu        sync.RWMutex
	factories map[string]PackageFactory
}

// NewPackageSet returns an empty set.
func NewPackageSet() *PackageSet {
	return &PackageSet{factories: make(map[string]PackageFactory)}
}

// Register adds a factory. Registering a name twice is an error.
func (s *PackageSet) Register(name string, factory PackageFactory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.factories[name]; exists {
		return fmt.Errorf("wallet: package %q already registered", name)
	}
	s.factories[name] = factory
	return nil
}

// Load constructs the adapter from the named package.
func (s *PackageSet) Load(ctx context.Context, name string) (Adapter, error) {
	s.mu.RLock()
	factory, ok := s.factories[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}
	adapter, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("load package %s: %w", name, err)
	}
	if adapter == nil {
		return nil, fmt.Errorf("load package %s: factory returned no adapter", name)
	}
	return adapter, nil
}

// List returns registered package names in sorted order.
func (s *PackageSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.factories))
	for name := range s.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultPackages = NewPackageSet()

// RegisterPackage adds a factory to the process-wide set. It is meant for
// init() functions and panics on duplicates.
func RegisterPackage(name string, factory PackageFactory) {
	if err := defaultPackages.Register(name, factory); err != nil {
		panic(err)
	}
}

// LoadPackage loads from the process-wide set.
func LoadPackage(ctx context.Context, name string) (Adapter, error) {
	return defaultPackages.Load(ctx, name)
}

// Packages lists the process-wide set.
func Packages() []string {
	return defaultPackages.List()
}
