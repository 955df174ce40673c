package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Work record attachment policies for inbound messages (see WorkRecordPolicy).
const (
	WorkRecordReuseOpen = "reuse_open"
	WorkRecordAlwaysNew = "always_new"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	PublicBaseURL string

	// Telnyx webhook verification
	TelnyxPublicKey          string
	TelnyxRequireSignature   bool
	TelnyxSignatureTolerance time.Duration

	// Entity resolution
	WorkRecordPolicy string
	SenderLockTTL    time.Duration

	// Redis (sender locks)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS / event fan-out
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	MessageEventQueueURL string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		TelnyxPublicKey:          getEnv("TELNYX_PUBLIC_KEY", ""),
		TelnyxRequireSignature:   getEnvAsBool("TELNYX_REQUIRE_SIGNATURE", true),
		TelnyxSignatureTolerance: getEnvAsDuration("TELNYX_SIGNATURE_TOLERANCE", 30*time.Second),

		WorkRecordPolicy: normalizePolicy(getEnv("WORK_RECORD_POLICY", WorkRecordReuseOpen)),
		SenderLockTTL:    getEnvAsDuration("SENDER_LOCK_TTL", 15*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		MessageEventQueueURL: getEnv("MESSAGE_EVENT_QUEUE_URL", ""),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
}

func normalizePolicy(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case WorkRecordAlwaysNew:
		return WorkRecordAlwaysNew
	default:
		return WorkRecordReuseOpen
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
