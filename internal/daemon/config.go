// Package daemon manages the tide daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/infra/aggregator"
)

// Config holds all daemon configuration.
type Config struct {
	API       APIConfig            `toml:"api"`
	Logging   LoggingConfig        `toml:"logging"`
	Storage   StorageConfig        `toml:"storage"`
	Solana    SolanaConfig         `toml:"solana"`
	EVM       map[string]EVMConfig `toml:"evm"`
	OneInch   OneInchConfig        `toml:"oneinch"`
	Proxy     ProxyConfig          `toml:"proxy"`
	Events    EventsConfig         `toml:"events"`
	Telemetry TelemetryConfig      `toml:"telemetry"`
	Keystore  KeystoreConfig       `toml:"keystore"`
	Health    HealthConfig         `toml:"health"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json or console
}

// StorageConfig locates the wallet store.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// SolanaConfig configures the Solana executor. An empty RPCURL disables it.
type SolanaConfig struct {
	RPCURL           string `toml:"rpc_url"`
	AggregatorURL    string `toml:"aggregator_url"`
	ComputeUnitLimit uint32 `toml:"compute_unit_limit"`
	PollInterval     string `toml:"poll_interval"`
	ConfirmTimeout   string `toml:"confirm_timeout"`
}

// EVMConfig configures one EVM chain, keyed by chain name ("Base", "Bsc").
type EVMConfig struct {
	RPCURL       string `toml:"rpc_url"`
	ChainID      uint64 `toml:"chain_id"`
	Router       string `toml:"router"`
	NativeSymbol string `toml:"native_symbol"`
}

// OneInchConfig points at the 1inch swap API.
type OneInchConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// ProxyConfig lists outbound proxies for aggregator requests.
type ProxyConfig struct {
	URLs    []string `toml:"urls"`
	Timeout string   `toml:"timeout"`
}

// EventsConfig sizes the event hub and optionally exports to Kafka.
type EventsConfig struct {
	Buffer           int      `toml:"buffer"`
	SubscriberBuffer int      `toml:"subscriber_buffer"`
	KafkaBrokers     []string `toml:"kafka_brokers"`
	KafkaTopic       string   `toml:"kafka_topic"`
}

// TelemetryConfig controls Prometheus exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// KeystoreConfig names the env var holding the keystore passphrase.
type KeystoreConfig struct {
	PassphraseEnv string `toml:"passphrase_env"`
}

// HealthConfig controls the dependency checker.
type HealthConfig struct {
	Interval string `toml:"interval"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7420,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Dir: tideHome(),
		},
		Solana: SolanaConfig{
			AggregatorURL:    aggregator.DefaultJupiterURL,
			ComputeUnitLimit: 600_000,
			PollInterval:     "2s",
			ConfirmTimeout:   "120s",
		},
		EVM: map[string]EVMConfig{},
		OneInch: OneInchConfig{
			URL: aggregator.DefaultOneInchURL,
		},
		Proxy: ProxyConfig{
			Timeout: "30s",
		},
		Events: EventsConfig{
			Buffer:           1024,
			SubscriberBuffer: 256,
			KafkaTopic:       "tide.task-events",
		},
		Keystore: KeystoreConfig{
			PassphraseEnv: "TIDE_PASSPHRASE",
		},
		Health: HealthConfig{
			Interval: "60s",
		},
	}
}

// LoadConfig reads config from ~/.tide/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(tideHome(), "config.toml"))
}

// LoadConfigFile reads config from path, falling back to defaults when the
// file does not exist.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints toml cannot express.
func (c Config) Validate() error {
	for _, name := range c.EVMChains() {
		ec := c.EVM[name]
		if !domain.Chain(name).IsEVM() {
			return fmt.Errorf("config: [evm.%s] is not a supported EVM chain (want Base or Bsc)", name)
		}
		if ec.RPCURL == "" || ec.ChainID == 0 || ec.Router == "" {
			return fmt.Errorf("config: [evm.%s] needs rpc_url, chain_id and router", name)
		}
	}
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		return fmt.Errorf("config: [events] kafka_brokers set without kafka_topic")
	}
	return nil
}

// EVMChains returns the configured EVM chain names in stable order.
func (c Config) EVMChains() []string {
	names := make([]string, 0, len(c.EVM))
	for name := range c.EVM {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SaveConfig writes the config to ~/.tide/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(tideHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// tideHome returns the tide data directory.
func tideHome() string {
	if env := os.Getenv("TIDE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tide")
}

// TideHome is exported for use by other packages.
func TideHome() string {
	return tideHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
