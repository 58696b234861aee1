package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/types"
)

// Config is the daemon configuration file. Every field may also be set
// through the BALLOT_* environment variable named in envOverrides; the
// environment wins over the file.
type Config struct {
	Listen    string `yaml:"listen"`
	BasePath  string `yaml:"base_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Owner            string     `yaml:"owner"`
	InitialFee       string     `yaml:"initial_fee"`
	Unit             types.Unit `yaml:"unit"`
	ProjectCacheSize int        `yaml:"project_cache_size"`

	Token      TokenConfig     `yaml:"token"`
	Lock       LockConfig      `yaml:"lock"`
	Signatures SignatureConfig `yaml:"signatures"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	Audit      AuditConfig     `yaml:"audit"`
	Shutdown   time.Duration   `yaml:"shutdown_timeout"`
}

// TokenConfig selects where fees are charged.
type TokenConfig struct {
	// Backend is "memory" or "erc20".
	Backend string `yaml:"backend"`

	// SystemAccount names the fee account of the memory token.
	SystemAccount string `yaml:"system_account"`
	// Genesis seeds balances and allowances of the memory token.
	Genesis []GenesisAccount `yaml:"genesis"`

	RPCURL       string `yaml:"rpc_url"`
	TokenAddress string `yaml:"token_address"`
	PrivateKey   string `yaml:"private_key"`
	ChainID      int64  `yaml:"chain_id"`
}

// GenesisAccount funds an account of the memory token. Amounts are in
// major units. Approve is the allowance granted to the system account.
type GenesisAccount struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
	Approve string `yaml:"approve"`
}

// LockConfig selects how concurrent votes from one voter are serialized.
type LockConfig struct {
	// Backend is "local" or "redis".
	Backend   string        `yaml:"backend"`
	RedisAddr []string      `yaml:"redis_addrs"`
	Password  string        `yaml:"redis_password"`
	Prefix    string        `yaml:"prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// SignatureConfig decides how the X-Caller-Address header is trusted.
// One of Enabled or TrustCallerHeader must be set: owner operations are
// authorized by that header alone.
type SignatureConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxSkew time.Duration `yaml:"max_skew"`
	// TrustCallerHeader accepts unsigned headers. Only for deployments
	// where a proxy in front of ballotd authenticates the caller.
	TrustCallerHeader bool `yaml:"trust_caller_header"`
}

// MetricsConfig exposes Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AuditConfig writes audit events to the log.
type AuditConfig struct {
	Enabled bool     `yaml:"enabled"`
	Disable []string `yaml:"disable"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Listen:           ":8080",
		LogLevel:         "info",
		LogFormat:        "text",
		InitialFee:       "5",
		Unit:             types.DefaultUnit,
		ProjectCacheSize: ballot.DefaultProjectCacheSize,
		Token: TokenConfig{
			Backend:       "memory",
			SystemAccount: "ballot",
		},
		Lock: LockConfig{
			Backend: "local",
			TTL:     30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Shutdown: 10 * time.Second,
	}
}

// LoadConfig reads path over the defaults, then applies the environment.
// An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"BALLOT_LISTEN":              &c.Listen,
		"BALLOT_BASE_PATH":           &c.BasePath,
		"BALLOT_LOG_LEVEL":           &c.LogLevel,
		"BALLOT_LOG_FORMAT":          &c.LogFormat,
		"BALLOT_OWNER":               &c.Owner,
		"BALLOT_INITIAL_FEE":         &c.InitialFee,
		"BALLOT_TOKEN_BACKEND":       &c.Token.Backend,
		"BALLOT_TOKEN_SYSTEM":        &c.Token.SystemAccount,
		"BALLOT_TOKEN_RPC_URL":       &c.Token.RPCURL,
		"BALLOT_TOKEN_ADDRESS":       &c.Token.TokenAddress,
		"BALLOT_TOKEN_PRIVATE_KEY":   &c.Token.PrivateKey,
		"BALLOT_LOCK_BACKEND":        &c.Lock.Backend,
		"BALLOT_LOCK_REDIS_PASSWORD": &c.Lock.Password,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("BALLOT_LOCK_REDIS_ADDR"); ok {
		c.Lock.RedisAddr = []string{v}
	}
	if v, ok := lookup("BALLOT_TOKEN_CHAIN_ID"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BALLOT_TOKEN_CHAIN_ID: %w", err)
		}
		c.Token.ChainID = n
	}
	bools := map[string]*bool{
		"BALLOT_SIGNATURES":          &c.Signatures.Enabled,
		"BALLOT_TRUST_CALLER_HEADER": &c.Signatures.TrustCallerHeader,
	}
	for key, dst := range bools {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	return nil
}

// Validate reports configuration the daemon cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Owner == "" {
		errs = append(errs, errors.New("owner is required"))
	}
	if _, err := c.Unit.Parse(c.InitialFee); err != nil {
		errs = append(errs, fmt.Errorf("initial_fee: %w", err))
	}
	if !c.Signatures.Enabled && !c.Signatures.TrustCallerHeader {
		errs = append(errs, errors.New("signatures: enable signatures, or set trust_caller_header when a proxy authenticates callers"))
	}
	switch c.Token.Backend {
	case "memory":
	case "erc20":
		if c.Token.RPCURL == "" || c.Token.TokenAddress == "" || c.Token.PrivateKey == "" {
			errs = append(errs, errors.New("token: erc20 needs rpc_url, token_address and private_key"))
		}
	default:
		errs = append(errs, fmt.Errorf("token: unknown backend %q", c.Token.Backend))
	}
	switch c.Lock.Backend {
	case "local":
	case "redis":
		if len(c.Lock.RedisAddr) == 0 {
			errs = append(errs, errors.New("lock: redis needs redis_addrs"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock: unknown backend %q", c.Lock.Backend))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

func newLogger(cfg Config) *slog.Logger {
	lvl, _ := parseLevel(cfg.LogLevel) //nolint:errcheck // validated
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
