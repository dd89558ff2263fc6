package config

import (
	"encoding/hex"
	"os"
	"strconv"
	"time"

	"privalytics/internal/errors"
)

// Config represents the complete platform configuration
type Config struct {
	Database      DatabaseConfig
	Anonymization AnonymizationConfig
	Consent       ConsentConfig
	Query         QueryConfig
	Discovery     DiscoveryConfig
	Evidence      EvidenceConfig
	Server        ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// AnonymizationConfig holds privacy pipeline settings
type AnonymizationConfig struct {
	KAnonymity        int     // minimum partition size
	Epsilon           float64 // DP budget for sensitive measures
	TemporalEpsilon   float64 // separate budget for timestamp/duration noise
	Sensitivity       float64 // query sensitivity for the Laplace scale
	EncryptFields     bool
	EncryptionKeyHex  string // 32-byte key, hex encoded
	NoiseSeed         int64  // 0 means derive from time
}

// ConsentConfig holds consent ledger settings
type ConsentConfig struct {
	WithdrawalGracePeriod time.Duration
	ConsentValidity       time.Duration // default expiry horizon for new consent
	AuditRetention        time.Duration
}

// QueryConfig holds query engine settings
type QueryConfig struct {
	ComplexityCeiling int
	CacheTTL          time.Duration
	CacheCapacity     int
	QueryTimeout      time.Duration
}

// DiscoveryConfig holds pattern discovery thresholds
type DiscoveryConfig struct {
	MinSampleSize        int
	MinConfidence        float64
	SignificanceLevel    float64
	AnomalyZThreshold    float64
	ClusterK             int
	ClusterMaxIterations int
	ClusterConvergence   float64
	MaxPatterns          int
}

// EvidenceConfig holds evidence generation settings
type EvidenceConfig struct {
	SignificanceLevel float64
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
		},
		Anonymization: AnonymizationConfig{
			KAnonymity:       getEnvIntOrDefault("K_ANONYMITY", 5),
			Epsilon:          getEnvFloatOrDefault("DP_EPSILON", 1.0),
			TemporalEpsilon:  getEnvFloatOrDefault("DP_TEMPORAL_EPSILON", 0.5),
			Sensitivity:      getEnvFloatOrDefault("DP_SENSITIVITY", 1.0),
			EncryptFields:    getEnvBoolOrDefault("ENCRYPT_FIELDS", true),
			EncryptionKeyHex: os.Getenv("ENCRYPTION_KEY"),
			NoiseSeed:        int64(getEnvIntOrDefault("NOISE_SEED", 0)),
		},
		Consent: ConsentConfig{
			WithdrawalGracePeriod: getEnvDurationOrDefault("WITHDRAWAL_GRACE_PERIOD", 72*time.Hour),
			ConsentValidity:       getEnvDurationOrDefault("CONSENT_VALIDITY", 365*24*time.Hour),
			AuditRetention:        getEnvDurationOrDefault("AUDIT_RETENTION", 7*365*24*time.Hour),
		},
		Query: QueryConfig{
			ComplexityCeiling: getEnvIntOrDefault("QUERY_COMPLEXITY_CEILING", 100),
			CacheTTL:          getEnvDurationOrDefault("QUERY_CACHE_TTL", 15*time.Minute),
			CacheCapacity:     getEnvIntOrDefault("QUERY_CACHE_CAPACITY", 256),
			QueryTimeout:      getEnvDurationOrDefault("QUERY_TIMEOUT", 30*time.Second),
		},
		Discovery: DiscoveryConfig{
			MinSampleSize:        getEnvIntOrDefault("DISCOVERY_MIN_SAMPLE", 10),
			MinConfidence:        getEnvFloatOrDefault("DISCOVERY_MIN_CONFIDENCE", 0.7),
			SignificanceLevel:    getEnvFloatOrDefault("DISCOVERY_ALPHA", 0.05),
			AnomalyZThreshold:    getEnvFloatOrDefault("ANOMALY_Z_THRESHOLD", 2.0),
			ClusterK:             getEnvIntOrDefault("CLUSTER_K", 4),
			ClusterMaxIterations: getEnvIntOrDefault("CLUSTER_MAX_ITER", 100),
			ClusterConvergence:   getEnvFloatOrDefault("CLUSTER_CONVERGENCE", 1e-4),
			MaxPatterns:          getEnvIntOrDefault("MAX_PATTERNS", 50),
		},
		Evidence: EvidenceConfig{
			SignificanceLevel: getEnvFloatOrDefault("EVIDENCE_ALPHA", 0.05),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
	}

	if err := Validate(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Validate enforces the fatal-at-startup configuration invariants.
func Validate(config *Config) error {
	if config.Anonymization.KAnonymity < 2 {
		return errors.ConfigInvalid("K_ANONYMITY must be at least 2")
	}
	if config.Anonymization.Epsilon <= 0 {
		return errors.ConfigInvalid("DP_EPSILON must be positive")
	}
	if config.Anonymization.TemporalEpsilon <= 0 {
		return errors.ConfigInvalid("DP_TEMPORAL_EPSILON must be positive")
	}
	if config.Anonymization.EncryptFields {
		key, err := hex.DecodeString(config.Anonymization.EncryptionKeyHex)
		if err != nil || len(key) != 32 {
			return errors.ConfigInvalid("ENCRYPTION_KEY must be 32 bytes hex-encoded when ENCRYPT_FIELDS is on")
		}
	}
	if config.Query.ComplexityCeiling <= 0 {
		return errors.ConfigInvalid("QUERY_COMPLEXITY_CEILING must be positive")
	}
	if config.Query.CacheCapacity <= 0 {
		return errors.ConfigInvalid("QUERY_CACHE_CAPACITY must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
