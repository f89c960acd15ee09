// package svmconfig loads the TOML configuration shared by the shroud commands.
package svmconfig

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"shroudvm.org/shroud/scramble"
	"shroudvm.org/shroud/svm"
)

type Config struct {
	VM       VM       `toml:"vm"`
	Cache    Cache    `toml:"cache"`
	Encoding Encoding `toml:"encoding"`
	Store    Store    `toml:"store"`
	Log      Log      `toml:"log"`
}

type VM struct {
	JIT          bool `toml:"jit"`
	HotThreshold int  `toml:"hot_threshold"`
	JITCacheSize int  `toml:"jit_cache_size"`
	// Trace is the size of the dispatch trace ring. 0 disables tracing.
	Trace int `toml:"trace"`
}

type Cache struct {
	Classes    int `toml:"classes"`
	Members    int `toml:"members"`
	Signatures int `toml:"signatures"`
}

type Encoding struct {
	// Secret makes the KEY and permutations reproducible. Empty means random.
	Secret string `toml:"secret"`
}

type Store struct {
	DB string `toml:"db"`
	// SealSecret, if set, seals images stored in the catalog.
	SealSecret string `toml:"seal_secret"`
}

type Log struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	opts := svm.DefaultOptions()
	return Config{
		VM: VM{
			JIT:          opts.JIT,
			HotThreshold: opts.HotThreshold,
			JITCacheSize: opts.JITCacheSize,
			Trace:        opts.TraceSize,
		},
		Cache: Cache{
			Classes:    opts.ClassCacheSize,
			Members:    opts.MemberCacheSize,
			Signatures: opts.SignatureCacheSize,
		},
		Store: Store{DB: ":memory:"},
		Log:   Log{Level: "info"},
	}
}

// Load reads the file at p on top of Default.
func Load(p string) (*Config, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", p, err)
	}
	return Parse(data)
}

// Parse decodes a TOML document on top of Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.VM.HotThreshold < 1 {
		errs = append(errs, fmt.Errorf("vm.hot_threshold must be at least 1, have %d", c.VM.HotThreshold))
	}
	if c.VM.Trace < 0 {
		errs = append(errs, fmt.Errorf("vm.trace must not be negative, have %d", c.VM.Trace))
	}
	for name, n := range map[string]int{
		"vm.jit_cache_size": c.VM.JITCacheSize,
		"cache.classes":     c.Cache.Classes,
		"cache.members":     c.Cache.Members,
		"cache.signatures":  c.Cache.Signatures,
	} {
		if n < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, have %d", name, n))
		}
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// ScrambleConfig returns the configuration for encoding contexts.
func (c *Config) ScrambleConfig() scramble.Config {
	var sc scramble.Config
	if c.Encoding.Secret != "" {
		sc.Secret = []byte(c.Encoding.Secret)
	}
	return sc
}

// MachineOptions returns the options for a svm.Machine.
func (c *Config) MachineOptions() svm.Options {
	opts := svm.DefaultOptions()
	opts.Scramble = c.ScrambleConfig()
	opts.JIT = c.VM.JIT
	opts.HotThreshold = c.VM.HotThreshold
	opts.JITCacheSize = c.VM.JITCacheSize
	opts.TraceSize = c.VM.Trace
	opts.ClassCacheSize = c.Cache.Classes
	opts.MemberCacheSize = c.Cache.Members
	opts.SignatureCacheSize = c.Cache.Signatures
	return opts
}

// NewLogger builds a zap logger at the configured level.
// Debug builds a development logger.
func (c *Config) NewLogger() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}
