// Package config holds the configuration surface consumed by the
// storage engine: placement thresholds, backend roots and credentials,
// cache budgets and import capabilities. Values are read from a TOML
// file and merged over built-in defaults.
package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
)

// Config is the root configuration.
type Config struct {
	Storage Storage `toml:"storage"`
	Cache   Cache   `toml:"cache"`
	Import  Import  `toml:"import"`
}

// Storage configures the object store tiers.
type Storage struct {
	// BlobThreshold is the payload size, in bytes, at which objects
	// move from the inline tier to the blob tier. Payloads of exactly
	// this size are placed in the blob tier.
	BlobThreshold int64 `toml:"blob-threshold"`

	// ObjectsRoot is the local directory for blob-tier payloads.
	ObjectsRoot string `toml:"objects-root"`

	// RowsRoot is the local directory for the file-backed row store,
	// used when no database collaborator is wired in.
	RowsRoot string `toml:"rows-root"`

	Remote Remote `toml:"remote"`
}

// Remote configures the S3-compatible blob backend. When enabled it
// replaces the local blob tier.
type Remote struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access-key"`
	SecretKey string `toml:"secret-key"`
	UseSSL    bool   `toml:"use-ssl"`
	Prefix    string `toml:"prefix"`
}

// Cache configures the decode cache.
type Cache struct {
	// Budget is the memory budget in bytes.
	Budget int64 `toml:"budget"`

	// SpillDir, when set, receives entries evicted from memory.
	SpillDir string `toml:"spill-dir"`

	// SpillCleanup purges the spill directory at the end of each
	// import session.
	SpillCleanup bool `toml:"spill-cleanup"`
}

// Import configures per-repository import capabilities.
type Import struct {
	// MultiBranchDirs lists the path prefixes whose repositories may
	// import multiple branches and tags. Repositories outside these
	// prefixes are restricted to a single branch.
	MultiBranchDirs []string `toml:"multi-branch-dirs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: Storage{
			BlobThreshold: 512 * 1024,
			ObjectsRoot:   "objects",
			RowsRoot:      "rows",
		},
		Cache: Cache{
			Budget: 96 * 1024 * 1024,
		},
	}
}

// Load reads the configuration file at path and merges it over the
// defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, fmt.Errorf("merging defaults: %w", err)
	}

	return cfg, nil
}
