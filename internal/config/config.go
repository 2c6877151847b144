package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/walletbridge/internal/crypto"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WALLETBRIDGE_"

const maskedValue = "***"

// Config is the root configuration, loaded from a JSON5 file.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Reown     ReownConfig     `json:"reown"`
	Wallet    WalletConfig    `json:"wallet"`
	Relay     RelayConfig     `json:"relay"`
	Database  DatabaseConfig  `json:"database"`
	Log       LogConfig       `json:"log"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// GatewayConfig configures the websocket/HTTP gateway UI clients connect to.
type GatewayConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Token        string `json:"token,omitempty"` // admin token; empty = every client is admin
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"`
}

// ReownConfig configures the session-request coordinator.
type ReownConfig struct {
	Enabled              bool   `json:"enabled"`
	NanoContractsEnabled bool   `json:"nano_contracts_enabled"`
	WalletServiceMode    bool   `json:"wallet_service_mode,omitempty"`
	MaxRetries           int    `json:"max_retries,omitempty"`     // 0 = unbounded
	PairTimeoutMs        int    `json:"pair_timeout_ms,omitempty"` // default 10000
	ExtendSchedule       string `json:"extend_schedule,omitempty"` // 5-field cron
	QueueSize            int    `json:"queue_size,omitempty"`
	RefreshDebounceMs    int    `json:"refresh_debounce_ms,omitempty"`
}

// WalletConfig points at the wallet-headless service.
type WalletConfig struct {
	URL         string `json:"url"`
	ID          string `json:"id"`
	APIKey      string `json:"api_key,omitempty"`
	Network     string `json:"network"`
	GenesisHash string `json:"genesis_hash,omitempty"`
	TimeoutMs   int    `json:"timeout_ms,omitempty"`
}

// RelayConfig selects the relay driver.
type RelayConfig struct {
	Driver      string `json:"driver"` // "sidecar" (default) or "memory"
	URL         string `json:"url,omitempty"`
	Token       string `json:"token,omitempty"`
	DialRetries int    `json:"dial_retries,omitempty"` // extra dial attempts at startup
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Mode        string `json:"mode"` // "standalone" (default), "sqlite", "managed"
	PostgresDSN string `json:"postgres_dsn,omitempty"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
	DataDir     string `json:"data_dir,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// TelemetryConfig configures OTLP span export (binaries built with -tags otel).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty"`
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Default returns a config with every default filled in.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "127.0.0.1",
			Port:         18790,
			RateLimitRPM: 120,
		},
		Reown: ReownConfig{
			Enabled:              true,
			NanoContractsEnabled: true,
			PairTimeoutMs:        10000,
			QueueSize:            64,
			RefreshDebounceMs:    250,
		},
		Wallet: WalletConfig{
			URL:       "http://127.0.0.1:8000",
			ID:        "default",
			Network:   "mainnet",
			TimeoutMs: 30000,
		},
		Relay: RelayConfig{
			Driver:      "sidecar",
			URL:         "ws://127.0.0.1:18791/ws",
			DialRetries: 5,
		},
		Database: DatabaseConfig{
			Mode:    "standalone",
			DataDir: "~/.walletbridge/data",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath is the config file used when neither --config nor
// WALLETBRIDGE_CONFIG is set.
func DefaultPath() string {
	return ExpandHome("~/.walletbridge/config.json5")
}

// Load reads the config at path on top of the defaults. A missing file is not
// an error. .env files next to the config and in the working directory are
// loaded before env overrides are applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")
	cfg.ApplyEnvOverrides()
	cfg.normalize()

	if err := cfg.OpenSecrets(os.Getenv(EnvPrefix + "ENCRYPTION_KEY")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads each existing file; variables already set win.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("failed to load .env", "path", p, "error", err)
		}
	}
}

// ApplyEnvOverrides applies WALLETBRIDGE_* variables on top of the file values.
func (c *Config) ApplyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	envStr("GATEWAY_HOST", &c.Gateway.Host)
	envInt("GATEWAY_PORT", &c.Gateway.Port)
	envStr("GATEWAY_TOKEN", &c.Gateway.Token)

	envBool("REOWN_ENABLED", &c.Reown.Enabled)
	envInt("MAX_RETRIES", &c.Reown.MaxRetries)

	envStr("WALLET_URL", &c.Wallet.URL)
	envStr("WALLET_ID", &c.Wallet.ID)
	envStr("WALLET_API_KEY", &c.Wallet.APIKey)
	envStr("WALLET_NETWORK", &c.Wallet.Network)
	envStr("GENESIS_HASH", &c.Wallet.GenesisHash)

	envStr("RELAY_DRIVER", &c.Relay.Driver)
	envStr("RELAY_URL", &c.Relay.URL)
	envStr("RELAY_TOKEN", &c.Relay.Token)

	envStr("DB_MODE", &c.Database.Mode)
	envStr("POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("DATA_DIR", &c.Database.DataDir)

	envStr("LOG_LEVEL", &c.Log.Level)
	envStr("LOG_FORMAT", &c.Log.Format)

	envStr("OTEL_ENDPOINT", &c.Telemetry.Endpoint)
}

func (c *Config) normalize() {
	c.Wallet.Network = NormalizeNetwork(c.Wallet.Network)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Database.Mode = strings.ToLower(strings.TrimSpace(c.Database.Mode))
	c.Relay.Driver = strings.ToLower(strings.TrimSpace(c.Relay.Driver))
}

// Validate reports settings the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway.port %d", c.Gateway.Port)
	}
	switch c.Database.Mode {
	case "", "standalone", "sqlite":
	case "managed":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.mode=managed requires database.postgres_dsn")
		}
	default:
		return fmt.Errorf("unknown database.mode %q", c.Database.Mode)
	}
	switch c.Relay.Driver {
	case "", "sidecar", "memory":
	default:
		return fmt.Errorf("unknown relay.driver %q", c.Relay.Driver)
	}
	if c.Reown.MaxRetries < 0 {
		return fmt.Errorf("reown.max_retries must be >= 0")
	}
	return nil
}

// secretFields lists the values that may be stored sealed.
func (c *Config) secretFields() map[string]*string {
	return map[string]*string{
		"gateway.token":         &c.Gateway.Token,
		"wallet.api_key":        &c.Wallet.APIKey,
		"relay.token":           &c.Relay.Token,
		"database.postgres_dsn": &c.Database.PostgresDSN,
	}
}

// OpenSecrets decrypts every sealed secret in place.
func (c *Config) OpenSecrets(key string) error {
	for name, v := range c.secretFields() {
		plain, err := crypto.Open(*v, key)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*v = plain
	}
	return nil
}

// SealSecrets encrypts every plain secret in place.
func (c *Config) SealSecrets(key string) error {
	for name, v := range c.secretFields() {
		if crypto.IsSealed(*v) {
			continue
		}
		sealed, err := crypto.Seal(*v, key)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*v = sealed
	}
	return nil
}

// Save writes cfg to path as indented JSON (a JSON5 subset).
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Hash returns a stable content hash, used to detect concurrent edits and
// no-op reloads.
func (c *Config) Hash() string {
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// MaskedCopy returns a copy with every secret replaced by "***".
func (c *Config) MaskedCopy() *Config {
	cp := *c
	mask := func(s *string) {
		if *s != "" {
			*s = maskedValue
		}
	}
	mask(&cp.Gateway.Token)
	mask(&cp.Wallet.APIKey)
	mask(&cp.Relay.Token)
	mask(&cp.Database.PostgresDSN)
	if len(c.Telemetry.Headers) > 0 {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = maskedValue
		}
	}
	return &cp
}

// PairTimeout returns the pairing deadline.
func (c *Config) PairTimeout() time.Duration {
	if c.Reown.PairTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Reown.PairTimeoutMs) * time.Millisecond
}

// RefreshDebounce returns the session refresh coalescing window.
func (c *Config) RefreshDebounce() time.Duration {
	return time.Duration(c.Reown.RefreshDebounceMs) * time.Millisecond
}

// CoordinatorEnabled reports whether the coordinator should run at all, and
// if not, why.
func (c *Config) CoordinatorEnabled() (bool, string) {
	switch {
	case !c.Reown.Enabled:
		return false, "reown disabled"
	case !c.Reown.NanoContractsEnabled:
		return false, "nano contracts disabled"
	case c.Reown.WalletServiceMode:
		return false, "wallet-service mode"
	}
	return true, ""
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
