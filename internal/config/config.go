package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LedgerMode selects where pool state lives.
type LedgerMode string

const (
	// LedgerModeEmbedded runs the in-process pool engine. Development and
	// test deployments.
	LedgerModeEmbedded LedgerMode = "embedded"
	// LedgerModeChain talks to the deployed pool contract over JSON-RPC.
	LedgerModeChain LedgerMode = "chain"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// AuthConfig holds authentication configuration for the admin surface
type AuthConfig struct {
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// LedgerConfig holds pool ledger configuration
type LedgerConfig struct {
	Mode LedgerMode `mapstructure:"mode"`
	// AuthorityKey is the hex-encoded private key that signs relayed claims
	// and fallback tickets.
	AuthorityKey string `mapstructure:"authority_key"`
	// OwnerAddress is the pool owner, used as the admin caller in embedded
	// mode.
	OwnerAddress string `mapstructure:"owner_address"`
}

// EthereumConfig holds chain-mode configuration
type EthereumConfig struct {
	RPCURL       string        `mapstructure:"rpc_url"`
	Contract     string        `mapstructure:"contract"`
	DeployBlock  uint64        `mapstructure:"deploy_block"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// EvaluatorConfig holds observation scoring configuration
type EvaluatorConfig struct {
	URL              string        `mapstructure:"url"`
	APIKey           string        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ApproveThreshold int           `mapstructure:"approve_threshold"`
	HardFloor        int           `mapstructure:"hard_floor"`
}

// TrustGateConfig holds abuse-throttling configuration
type TrustGateConfig struct {
	Threshold     int           `mapstructure:"threshold"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

// RelayConfig holds relay executor configuration
type RelayConfig struct {
	// Mode is "optimistic" or "confirmed".
	Mode string `mapstructure:"mode"`
}

// RateLimitConfig holds HTTP rate limiting configuration. RedisURL enables
// the distributed limiter; when empty the local in-process limiter is used.
type RateLimitConfig struct {
	RedisURL      string        `mapstructure:"redis_url"`
	GeneralLimit  int           `mapstructure:"general_limit"`
	GeneralWindow time.Duration `mapstructure:"general_window"`
	ClaimLimit    int           `mapstructure:"claim_limit"`
	ClaimWindow   time.Duration `mapstructure:"claim_window"`
}

// CacheConfig holds observation index cache configuration
type CacheConfig struct {
	ObservationTTL time.Duration `mapstructure:"observation_ttl"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ExplorerConfig holds block explorer link configuration
type ExplorerConfig struct {
	TxURLPrefix string `mapstructure:"tx_url_prefix"`
}

// APIConfig holds configuration for the API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig    `mapstructure:"server"`
	Auth       AuthConfig      `mapstructure:"auth"`
	Ledger     LedgerConfig    `mapstructure:"ledger"`
	Ethereum   EthereumConfig  `mapstructure:"ethereum"`
	Evaluator  EvaluatorConfig `mapstructure:"evaluator"`
	TrustGate  TrustGateConfig `mapstructure:"trust_gate"`
	Relay      RelayConfig     `mapstructure:"relay"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Cache      CacheConfig     `mapstructure:"cache"`
	CORS       CORSConfig      `mapstructure:"cors"`
	Explorer   ExplorerConfig  `mapstructure:"explorer"`
}

// AdminConfig holds configuration for adminctl
type AdminConfig struct {
	BaseConfig `mapstructure:",squash"`
	Ledger     LedgerConfig   `mapstructure:"ledger"`
	Ethereum   EthereumConfig `mapstructure:"ethereum"`
	// OwnerKey is the hex-encoded owner private key used to sign admin
	// transactions in chain mode.
	OwnerKey string `mapstructure:"owner_key"`
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("ledger.mode", "embedded")
	v.SetDefault("ethereum.poll_interval", "3s")
	v.SetDefault("evaluator.timeout", "15s")
	v.SetDefault("evaluator.approve_threshold", 6)
	v.SetDefault("evaluator.hard_floor", 4)
	v.SetDefault("trust_gate.threshold", 3)
	v.SetDefault("trust_gate.block_duration", "1h")
	v.SetDefault("relay.mode", "optimistic")
	v.SetDefault("rate_limit.general_limit", 100)
	v.SetDefault("rate_limit.general_window", "15m")
	v.SetDefault("rate_limit.claim_limit", 5)
	v.SetDefault("rate_limit.claim_window", "1h")
	v.SetDefault("cache.observation_ttl", "30s")
	v.SetDefault("explorer.tx_url_prefix", "https://etherscan.io/tx/")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateLedger(config.Ledger, config.Ethereum); err != nil {
		return nil, err
	}
	if err := validateRelayMode(config.Relay.Mode); err != nil {
		return nil, err
	}
	if config.Evaluator.URL == "" {
		return nil, errors.New("evaluator.url is required")
	}

	return &config, nil
}

// LoadAdminConfig loads configuration for adminctl
func LoadAdminConfig(configFile string, envPath string) (*AdminConfig, error) {
	v := configureViper("adminctl", configFile, envPath)

	v.SetDefault("ledger.mode", "chain")
	v.SetDefault("ethereum.poll_interval", "3s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config AdminConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateLedger(config.Ledger, config.Ethereum); err != nil {
		return nil, err
	}
	if config.Ledger.Mode == LedgerModeChain && config.OwnerKey == "" {
		return nil, errors.New("owner_key is required in chain mode")
	}

	return &config, nil
}

func validateRelayMode(mode string) error {
	switch mode {
	case "optimistic", "confirmed":
		return nil
	default:
		return fmt.Errorf("unknown relay mode: %q", mode)
	}
}

func validateLedger(ledger LedgerConfig, eth EthereumConfig) error {
	switch ledger.Mode {
	case LedgerModeEmbedded:
		return nil
	case LedgerModeChain:
		if eth.RPCURL == "" {
			return errors.New("ethereum.rpc_url is required in chain mode")
		}
		if eth.Contract == "" {
			return errors.New("ethereum.contract is required in chain mode")
		}
		return nil
	default:
		return fmt.Errorf("unknown ledger mode: %q", ledger.Mode)
	}
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/api/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("APERTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		"owner_key",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Auth
		"auth.jwt_public_key",
		"auth.api_keys",
		// Ledger
		"ledger.mode",
		"ledger.authority_key",
		"ledger.owner_address",
		// Ethereum
		"ethereum.rpc_url",
		"ethereum.contract",
		"ethereum.deploy_block",
		"ethereum.poll_interval",
		// Evaluator
		"evaluator.url",
		"evaluator.api_key",
		"evaluator.timeout",
		"evaluator.approve_threshold",
		"evaluator.hard_floor",
		// Trust gate
		"trust_gate.threshold",
		"trust_gate.block_duration",
		// Relay
		"relay.mode",
		// Rate limiting
		"rate_limit.redis_url",
		"rate_limit.general_limit",
		"rate_limit.general_window",
		"rate_limit.claim_limit",
		"rate_limit.claim_window",
		// Cache
		"cache.observation_ttl",
		// CORS
		"cors.allowed_origins",
		// Explorer
		"explorer.tx_url_prefix",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}
