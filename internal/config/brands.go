package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Brand is a well-known wallet that may arrive as an optional package or
// as an injected provider.
type Brand struct {
	Name         string   `yaml:"name"`
	Packages     []string `yaml:"packages"`
	InjectedKeys []string `yaml:"injected_keys"`
	URL          string   `yaml:"url,omitempty"`
}

// BrandsFile is the on-disk shape of WALLET_BRANDS_FILE.
type BrandsFile struct {
	Brands []Brand `yaml:"brands"`
}

// LoadBrandsFromPath loads brand definitions from a YAML file.
func LoadBrandsFromPath(path string) ([]Brand, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read brands file: %w", err)
	}

	var file BrandsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse brands file: %w", err)
	}

	for i, b := range file.Brands {
		if b.Name == "" {
			return nil, fmt.Errorf("brand %d: name is required", i)
		}
		if len(b.Packages) == 0 && len(b.InjectedKeys) == 0 {
			return nil, fmt.Errorf("brand %s: packages or injected_keys required", b.Name)
		}
	}
	return file.Brands, nil
}

// DefaultBrands returns the built-in optional wallet brands, in discovery order.
func DefaultBrands() []Brand {
	return []Brand{
		{
			Name:         "Backpack",
			Packages:     []string{"@coral-xyz/wallet-adapter-backpack", "@solana/wallet-adapter-backpack"},
			InjectedKeys: []string{"backpack", "Backpack"},
			URL:          "https://backpack.app",
		},
		{
			Name:         "Magic Eden",
			Packages:     []string{"@magiceden-oss/wallet-adapter"},
			InjectedKeys: []string{"magicEden", "magiceden"},
			URL:          "https://wallet.magiceden.io",
		},
	}
}

// Brands returns the configured brands, or the defaults when no file is set.
func (c *Config) Brands() ([]Brand, error) {
	if c.Wallet.BrandsFile == "" {
		return DefaultBrands(), nil
	}
	return LoadBrandsFromPath(c.Wallet.BrandsFile)
}
