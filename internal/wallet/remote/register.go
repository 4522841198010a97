package remote

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Oshkosh1922/edens-gates/internal/config"
	"github.com/Oshkosh1922/edens-gates/internal/wallet"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

// PackageFactory returns a factory that dials the daemon when the package
// is loaded.
func PackageFactory(cfg Config, log *logger.Logger) wallet.PackageFactory {
	return func(ctx context.Context) (wallet.Adapter, error) {
		p, err := Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return wallet.NewPackageAdapter(cfg.Name, p, log), nil
	}
}

// RegisterPackages registers one optional package per endpoint. The
// endpoint name is the package name; the adapter takes the brand name
// supplied by brandOf, or the package name when brandOf returns "".
func RegisterPackages(set *wallet.PackageSet, endpoints []config.Endpoint, brandOf func(pkg string) string, log *logger.Logger) error {
	for _, ep := range endpoints {
		name := ep.Name
		if brandOf != nil {
			if brand := brandOf(ep.Name); brand != "" {
				name = brand
			}
		}
		if err := set.Register(ep.Name, PackageFactory(Config{Name: name, BaseURL: ep.URL}, log)); err != nil {
			return err
		}
	}
	return nil
}

// InstallInjected dials every endpoint in parallel and installs the ones
// that answer under their key. Unreachable daemons are logged and skipped.
func InstallInjected(ctx context.Context, globals *wallet.MapGlobals, endpoints []config.Endpoint, log *logger.Logger) int {
	if log == nil {
		log = logger.NewDefault("wallet-remote")
	}
	providers := make([]*Provider, len(endpoints))

	var g errgroup.Group
	for i, ep := range endpoints {
		g.Go(func() error {
			p, err := Dial(ctx, Config{Name: ep.Name, BaseURL: ep.URL})
			if err != nil {
				log.WithError(err).WithField("key", ep.Name).Warn("injected wallet daemon unavailable")
				return nil
			}
			providers[i] = p
			return nil
		})
	}
	_ = g.Wait()

	installed := 0
	for i, p := range providers {
		if p == nil {
			continue
		}
		globals.Set(endpoints[i].Name, p)
		installed++
	}
	return installed
}
