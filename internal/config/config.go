package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables.
// These are populated at startup by LoadConfig.
var (
	// ChainID is the EVM chain ID the engine operates on (8453 for Base).
	ChainID uint64

	// RPCNodeURL is the JSON-RPC endpoint for chain reads and broadcasts.
	RPCNodeURL string

	// ZeroxAPIKey authenticates against the 0x swap quote API.
	ZeroxAPIKey string

	// PythBaseURL is the hermes endpoint for USD price feeds.
	PythBaseURL string

	// PositionManagerAddress is the Uniswap V3 nonfungible position manager.
	PositionManagerAddress string

	// SchedulerInterval is how often the rebalance scheduler wakes up.
	SchedulerInterval time.Duration

	// WorkflowDeadline bounds a single rebalance workflow end to end.
	WorkflowDeadline time.Duration

	// VolatilityCacheTTL bounds how long computed pool statistics are served
	// before a fresh external query is made.
	VolatilityCacheTTL time.Duration

	// ZeroxBaseURL is the 0x API root for swap quotes.
	ZeroxBaseURL string

	// WebListenAddr is the bind address for the admin web server.
	WebListenAddr string

	// AgentPrivateKeys holds the hex signing keys for agent wallets,
	// comma-separated in the environment.
	AgentPrivateKeys []string

	// PostgreSQL connection parameters.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

const (
	defaultPythBaseURL        = "https://hermes.pyth.network"
	defaultZeroxBaseURL       = "https://api.0x.org"
	defaultWebListenAddr      = ":8080"
	defaultDBPort             = 5432
	defaultDBSSLMode          = "disable"
	defaultSchedulerInterval  = 15 * time.Minute
	defaultWorkflowDeadline   = 10 * time.Minute
	defaultVolatilityCacheTTL = 10 * time.Minute
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Chain and API settings are required; tuning knobs fall back to defaults.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	ChainID, err = getEnvAsUint64("CHAIN_ID")
	if err != nil {
		return err
	}

	RPCNodeURL, err = getEnv("RPC_NODE_URL")
	if err != nil {
		return err
	}

	ZeroxAPIKey, err = getEnv("ZEROX_API_KEY")
	if err != nil {
		return err
	}

	PositionManagerAddress, err = getEnv("POSITION_MANAGER_ADDRESS")
	if err != nil {
		return err
	}

	keys, err := getEnv("AGENT_PRIVATE_KEYS")
	if err != nil {
		return err
	}
	AgentPrivateKeys = strings.Split(keys, ",")

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}

	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}

	DBPort = getEnvAsInt("DB_PORT", defaultDBPort)
	DBSSLMode = getEnvWithDefault("DB_SSLMODE", defaultDBSSLMode)

	PythBaseURL = getEnvWithDefault("PYTH_BASE_URL", defaultPythBaseURL)
	ZeroxBaseURL = getEnvWithDefault("ZEROX_BASE_URL", defaultZeroxBaseURL)
	WebListenAddr = getEnvWithDefault("WEB_LISTEN_ADDR", defaultWebListenAddr)
	SchedulerInterval = getEnvAsDuration("SCHEDULER_INTERVAL", defaultSchedulerInterval)
	WorkflowDeadline = getEnvAsDuration("WORKFLOW_DEADLINE", defaultWorkflowDeadline)
	VolatilityCacheTTL = getEnvAsDuration("VOLATILITY_CACHE_TTL", defaultVolatilityCacheTTL)

	log.Debug().
		Uint64("ChainID", ChainID).
		Str("RPCNodeURL", RPCNodeURL).
		Str("PositionManager", PositionManagerAddress).
		Dur("SchedulerInterval", SchedulerInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvWithDefault retrieves a string environment variable with a fallback.
func getEnvWithDefault(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an int, falling back to
// the provided default when unset or unparseable.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid integer, using default")
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a duration, falling
// back to the provided default when unset or unparseable.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid duration, using default")
		return defaultValue
	}
	return value
}
