package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"gopkg.in/yaml.v2"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.yaml"
	trustDBName       = "trust"
)

type Config struct {
	Global GlobalConfig         `yaml:"global"`
	Chains []*ChainProverConfig `yaml:"chains"`
	Paths  core.Paths           `yaml:"paths"`

	// ConfigPath is the file the config was loaded from
	ConfigPath string `yaml:"-"`
}

type GlobalConfig struct {
	// Timeout bounds each chain call
	Timeout   string          `yaml:"timeout"`
	Logger    LoggerConfig    `yaml:"logger"`
	Engine    EngineConfig    `yaml:"engine"`
	Retry     RetryConfig     `yaml:"retry"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	// TrustDB is the backend of the trusted state store: "memdb" or "goleveldb"
	TrustDB string `yaml:"trust-db"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type EngineConfig struct {
	RescanInterval  string `yaml:"rescan-interval"`
	InboxSize       int    `yaml:"inbox-size"`
	BlockTimeout    string `yaml:"block-timeout"`
	ShutdownGrace   string `yaml:"shutdown-grace"`
	CallTimeout     string `yaml:"call-timeout"`
	MaxTxSize       uint64 `yaml:"max-tx-size"`
	MaxMsgLength    uint64 `yaml:"max-msg-length"`
	DedupeCacheSize int    `yaml:"dedupe-cache-size"`
}

type RetryConfig struct {
	Base        string `yaml:"base"`
	Max         string `yaml:"max"`
	MaxAttempts uint   `yaml:"max-attempts"`
	Jitter      bool   `yaml:"jitter"`
}

type TelemetryConfig struct {
	Enable bool `yaml:"enable"`
	// MetricsAddr serves a Prometheus endpoint if set
	MetricsAddr string `yaml:"metrics-addr"`
}

// DefaultConfig returns a config with no chains and no paths
func DefaultConfig(configPath string) Config {
	return Config{
		Global:     newDefaultGlobalConfig(),
		Chains:     []*ChainProverConfig{},
		Paths:      core.Paths{},
		ConfigPath: configPath,
	}
}

// newDefaultGlobalConfig returns a global config with defaults set
func newDefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		Timeout: "10s",
		Logger: LoggerConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		Engine: EngineConfig{
			RescanInterval:  "1m",
			InboxSize:       1024,
			BlockTimeout:    "5s",
			ShutdownGrace:   "10s",
			CallTimeout:     "30s",
			MaxMsgLength:    30,
			DedupeCacheSize: 8192,
		},
		Retry: RetryConfig{
			Base:        "1s",
			Max:         "1m",
			MaxAttempts: 8,
			Jitter:      true,
		},
		TrustDB: "goleveldb",
	}
}

// Load reads the config at configPath, resolving the typed sections with registry
func Load(registry *Registry, configPath string) (*Config, error) {
	bz, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", configPath)
	}
	cfg, err := Unmarshal(registry, bz)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", configPath)
	}
	cfg.ConfigPath = configPath
	return cfg, nil
}

// Unmarshal decodes a config and validates it
func Unmarshal(registry *Registry, bz []byte) (*Config, error) {
	cfg := DefaultConfig("")
	if err := yaml.UnmarshalStrict(bz, &cfg); err != nil {
		return nil, err
	}
	for i, cc := range cfg.Chains {
		if err := cc.Init(registry); err != nil {
			return nil, errors.Wrapf(err, "invalid chain #%d", i)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Save writes cfg to its ConfigPath
func Save(cfg *Config) error {
	bz, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.ConfigPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(cfg.ConfigPath, bz, 0o600)
}

// Validate returns every problem found in the config
func (c *Config) Validate() error {
	var errs []error
	for name, d := range map[string]string{
		"timeout":                c.Global.Timeout,
		"engine.rescan-interval": c.Global.Engine.RescanInterval,
		"engine.block-timeout":   c.Global.Engine.BlockTimeout,
		"engine.shutdown-grace":  c.Global.Engine.ShutdownGrace,
		"engine.call-timeout":    c.Global.Engine.CallTimeout,
		"retry.base":             c.Global.Retry.Base,
		"retry.max":              c.Global.Retry.Max,
	} {
		if _, err := parseDuration(d); err != nil {
			errs = append(errs, errors.Wrapf(err, "invalid %s", name))
		}
	}
	switch c.Global.TrustDB {
	case "", string(dbm.MemDBBackend), string(dbm.GoLevelDBBackend):
	default:
		errs = append(errs, errors.Newf("unsupported trust-db %q", c.Global.TrustDB))
	}

	seen := make(map[string]bool)
	for i, cc := range c.Chains {
		if err := cc.Validate(); err != nil {
			errs = append(errs, errors.Wrapf(err, "invalid chain #%d", i))
			continue
		}
		id := cc.ChainID()
		if seen[id] {
			errs = append(errs, errors.Newf("duplicate chain %s", id))
		}
		seen[id] = true
	}
	for name, p := range c.Paths {
		if err := p.Validate(); err != nil {
			errs = append(errs, errors.Wrapf(err, "invalid path %s", name))
			continue
		}
		for _, end := range []*core.PathEnd{p.Src, p.Dst} {
			if len(c.Chains) > 0 && !seen[end.ChainID] {
				errs = append(errs, errors.Newf("path %s refers to unknown chain %s", name, end.ChainID))
			}
		}
	}
	return errors.Join(errs...)
}

// GetChain returns the chain section with the chain ID
func (c *Config) GetChain(chainID string) (*ChainProverConfig, error) {
	for _, cc := range c.Chains {
		if cc.ChainID() == chainID {
			return cc, nil
		}
	}
	return nil, errors.Newf("chain with ID %s is not configured", chainID)
}

// AddChain adds an additional chain to the config
func (c *Config) AddChain(cc *ChainProverConfig) error {
	if err := cc.Validate(); err != nil {
		return err
	}
	if _, err := c.GetChain(cc.ChainID()); err == nil {
		return errors.Newf("chain with ID %s already exists in config", cc.ChainID())
	}
	c.Chains = append(c.Chains, cc)
	return nil
}

// AddPath adds an additional path to the config
func (c *Config) AddPath(name string, path *core.Path) error {
	return c.Paths.Add(name, path)
}

// BuildChains builds every configured chain. homePath holds the key material of the chains.
func (c *Config) BuildChains(homePath string) (Chains, error) {
	timeout, err := c.Global.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	chains := make(Chains, 0, len(c.Chains))
	for _, cc := range c.Chains {
		chain, err := cc.Build(homePath, timeout)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build chain %s", cc.ChainID())
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

// EngineConfig converts the global section into the tunables of core.Engine
func (c *Config) EngineConfig(homePath string) (core.EngineConfig, error) {
	g := c.Global
	durations := make([]time.Duration, 7)
	for i, s := range []string{
		g.Engine.RescanInterval, g.Engine.BlockTimeout, g.Engine.ShutdownGrace, g.Engine.CallTimeout,
		g.Retry.Base, g.Retry.Max, g.Timeout,
	} {
		d, err := parseDuration(s)
		if err != nil {
			return core.EngineConfig{}, err
		}
		durations[i] = d
	}
	db, err := c.OpenTrustDB(homePath)
	if err != nil {
		return core.EngineConfig{}, err
	}
	retryPolicy := &core.ExponentialBackoff{
		Base:        durations[4],
		Max:         durations[5],
		MaxAttempts: g.Retry.MaxAttempts,
		Jitter:      g.Retry.Jitter,
	}
	if retryPolicy.Base == 0 {
		retryPolicy = core.DefaultRetryPolicy()
	}
	return core.EngineConfig{
		Path: core.RelayPathConfig{
			RescanInterval: durations[0],
			InboxSize:      g.Engine.InboxSize,
			BlockTimeout:   durations[1],
			ShutdownGrace:  durations[2],
			CallTimeout:    durations[3],
			RelayMsgs: core.RelayMsgs{
				MaxTxSize:    g.Engine.MaxTxSize,
				MaxMsgLength: g.Engine.MaxMsgLength,
			},
			Retry:   retryPolicy,
			TrustDB: db,
		},
		DedupeCacheSize: g.Engine.DedupeCacheSize,
		Reconnect:       core.ReconnectBackoff(),
	}, nil
}

// OpenTrustDB opens the store of trusted states under homePath
func (c *Config) OpenTrustDB(homePath string) (dbm.DB, error) {
	backend := dbm.BackendType(c.Global.TrustDB)
	if backend == "" || backend == dbm.MemDBBackend {
		return dbm.NewMemDB(), nil
	}
	db, err := dbm.NewDB(trustDBName, backend, filepath.Join(homePath, "data"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open the trust db in %s", homePath)
	}
	return db, nil
}

// TimeoutDuration returns the per-call timeout of chain clients
func (g GlobalConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration(g.Timeout)
}

// parseDuration treats an empty string as zero so that the engine applies its default
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
