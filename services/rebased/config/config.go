package config

import (
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MRAlirad/ccip-rebase-token/crypto"
	"github.com/MRAlirad/ccip-rebase-token/native/rebase"
	"github.com/MRAlirad/ccip-rebase-token/observability/logging"
)

const (
	defaultListen = ":8090"
	// SecretEnv overrides auth.hmac_secret so the secret can stay out of the
	// config file.
	SecretEnv = "REBASED_AUTH_SECRET"
)

// Config captures the runtime settings for the rebased daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Env           string          `yaml:"env"`
	TLS           TLSConfig       `yaml:"tls"`
	Storage       StorageConfig   `yaml:"storage"`
	Journal       JournalConfig   `yaml:"journal"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Genesis       GenesisConfig   `yaml:"genesis"`
	Log           LogConfig       `yaml:"log"`
	Stream        StreamConfig    `yaml:"stream"`
}

// TLSConfig describes the TLS material for the HTTP listener.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// StorageConfig selects the ledger key/value backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// JournalConfig selects the event journal database.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	HMACSecret string `yaml:"hmac_secret"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

// RateLimitConfig bounds per-client request rates. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// GenesisConfig initialises an empty ledger on first start.
type GenesisConfig struct {
	Owner       string   `yaml:"owner"`
	Rate        string   `yaml:"rate"`
	Direction   string   `yaml:"direction"`
	MintBurners []string `yaml:"mint_burners"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StreamConfig sizes the live event buffers.
type StreamConfig struct {
	Buffer int `yaml:"buffer"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if secret := strings.TrimSpace(os.Getenv(SecretEnv)); secret != "" {
		cfg.Auth.HMACSecret = secret
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LogAttrs describes the effective configuration with secrets masked.
func (cfg Config) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("listen", cfg.ListenAddress),
		slog.Bool("tls", cfg.TLS.CertPath != ""),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("journal_driver", cfg.Journal.Driver),
		slog.String("journal_dsn", logging.MaskDSN(cfg.Journal.DSN)),
		logging.MaskField("auth_secret", cfg.Auth.HMACSecret),
		slog.String("auth_issuer", cfg.Auth.Issuer),
		slog.Float64("rate_limit_rpm", cfg.RateLimit.RequestsPerMinute),
		slog.String("genesis_owner", cfg.Genesis.Owner),
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Env = strings.TrimSpace(cfg.Env)
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "leveldb"
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	if cfg.Storage.Path == "" && cfg.Storage.Backend != "memory" {
		cfg.Storage.Path = "data/rebase"
	}

	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = "sqlite"
	}
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)

	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)

	if cfg.RateLimit.RequestsPerMinute > 0 && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = int(cfg.RateLimit.RequestsPerMinute)
	}

	cfg.Genesis.Owner = strings.TrimSpace(cfg.Genesis.Owner)
	cfg.Genesis.Rate = strings.TrimSpace(cfg.Genesis.Rate)
	burners := make([]string, 0, len(cfg.Genesis.MintBurners))
	for _, burner := range cfg.Genesis.MintBurners {
		if trimmed := strings.TrimSpace(burner); trimmed != "" {
			burners = append(burners, trimmed)
		}
	}
	cfg.Genesis.MintBurners = burners

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	hasCert := cfg.TLS.CertPath != ""
	if hasCert != (cfg.TLS.KeyPath != "") {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if !cfg.TLS.AllowInsecure && !hasCert {
		return fmt.Errorf("tls: cert and key are required unless allow_insecure=true")
	}
	switch cfg.Storage.Backend {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	switch cfg.Journal.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Journal.DSN == "" {
			return fmt.Errorf("journal: postgres requires a dsn")
		}
	default:
		return fmt.Errorf("journal: unknown driver %q", cfg.Journal.Driver)
	}
	if cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret is required (or set %s)", SecretEnv)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit: requests_per_minute must not be negative")
	}
	if cfg.Stream.Buffer < 0 {
		return fmt.Errorf("stream: buffer must not be negative")
	}
	if cfg.Genesis.Owner != "" {
		if _, err := cfg.Genesis.Build(); err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
	}
	return nil
}

// Build converts the genesis section into ledger genesis parameters.
func (g GenesisConfig) Build() (rebase.Genesis, error) {
	owner, err := crypto.DecodeAddress(g.Owner)
	if err != nil {
		return rebase.Genesis{}, fmt.Errorf("owner: %w", err)
	}
	out := rebase.Genesis{Owner: owner}
	if g.Rate != "" {
		rate, ok := new(big.Int).SetString(g.Rate, 10)
		if !ok || rate.Sign() < 0 {
			return rebase.Genesis{}, fmt.Errorf("rate: must be a non-negative integer scaled by 1e18")
		}
		out.GlobalRate = rate
	}
	direction, err := rebase.ParseRateDirection(g.Direction)
	if err != nil {
		return rebase.Genesis{}, err
	}
	out.Direction = direction
	for _, raw := range g.MintBurners {
		burner, err := crypto.DecodeAddress(raw)
		if err != nil {
			return rebase.Genesis{}, fmt.Errorf("mint_burners: %w", err)
		}
		out.MintBurners = append(out.MintBurners, burner)
	}
	return out, nil
}
