// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint used by probes.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "24h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31) used to hash the admin national ID at startup.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// AdminPhone and AdminNationalID are the fixed bootstrap credentials for admin login.
	AdminPhone      string `mapstructure:"ADMIN_PHONE"`
	AdminNationalID string `mapstructure:"ADMIN_NATIONAL_ID"`

	// KavenegarAPIKey enables SMS delivery through Kavenegar. Empty means codes are only logged.
	KavenegarAPIKey  string `mapstructure:"KAVENEGAR_API_KEY"`
	KavenegarSender  string `mapstructure:"KAVENEGAR_SENDER"`
	KavenegarBaseURL string `mapstructure:"KAVENEGAR_BASE_URL"`
	// OTPReturnToClient echoes verification codes in the send-sms response and enables
	// GET /dev/verification-code. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// RedisURL enables the per-phone verification code rate limit (redis://host:port/db).
	RedisURL              string `mapstructure:"REDIS_URL"`
	OTPRateLimitPerWindow int    `mapstructure:"OTP_RATE_LIMIT_PER_WINDOW"`
	OTPRateLimitWindow    string `mapstructure:"OTP_RATE_LIMIT_WINDOW"`

	// BlobBackend selects document storage: "local" or "s3".
	BlobBackend  string `mapstructure:"BLOB_BACKEND"`
	BlobLocalDir string `mapstructure:"BLOB_LOCAL_DIR"`
	S3Bucket     string `mapstructure:"S3_BUCKET"`
	S3Region     string `mapstructure:"S3_REGION"`
	// S3Endpoint overrides the S3 endpoint (e.g. MinIO); path-style addressing is used when set.
	S3Endpoint string `mapstructure:"S3_ENDPOINT"`

	// AuditPolicyEngine selects the audit-requirement evaluator: "threshold" or "opa".
	AuditPolicyEngine string `mapstructure:"AUDIT_POLICY_ENGINE"`

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// EventsKafkaBrokers is a comma-separated list of Kafka brokers for domain events.
	EventsKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	EventsKafkaTopic   string `mapstructure:"EVENTS_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL      string `mapstructure:"LOKI_URL"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// CORSAllowedOrigins is a comma-separated list of origins allowed by the HTTP API.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	// Every key needs a default so Unmarshal sees it through AutomaticEnv.
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "union-registry")
	v.SetDefault("JWT_AUDIENCE", "union-registry-api")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("JWT_REFRESH_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("ADMIN_PHONE", "09000000000")
	v.SetDefault("ADMIN_NATIONAL_ID", "0000000000")
	v.SetDefault("KAVENEGAR_API_KEY", "")
	v.SetDefault("KAVENEGAR_SENDER", "")
	v.SetDefault("KAVENEGAR_BASE_URL", "https://api.kavenegar.com/v1")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("OTP_RATE_LIMIT_PER_WINDOW", 5)
	v.SetDefault("OTP_RATE_LIMIT_WINDOW", "10m")
	v.SetDefault("BLOB_BACKEND", "local")
	v.SetDefault("BLOB_LOCAL_DIR", "./data/blobs")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("AUDIT_POLICY_ENGINE", "threshold")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "union-registry-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "union-registry-event-worker")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.AdminPhone == "" || cfg.AdminNationalID == "" {
		return nil, errors.New("config: ADMIN_PHONE and ADMIN_NATIONAL_ID must be set")
	}

	switch cfg.BlobBackend {
	case "local":
		if cfg.BlobLocalDir == "" {
			return nil, errors.New("config: BLOB_LOCAL_DIR must be set when BLOB_BACKEND=local")
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("config: S3_BUCKET must be set when BLOB_BACKEND=s3")
		}
	default:
		return nil, errors.New("config: BLOB_BACKEND must be local or s3")
	}

	switch cfg.AuditPolicyEngine {
	case "threshold", "opa":
	default:
		return nil, errors.New("config: AUDIT_POLICY_ENGINE must be threshold or opa")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// RateLimitWindow parses OTPRateLimitWindow. Returns 10m if unset or invalid.
func (c *Config) RateLimitWindow() time.Duration {
	d, err := time.ParseDuration(c.OTPRateLimitWindow)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// EventsKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables event publishing to Kafka.
func (c *Config) EventsKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.EventsKafkaBrokers)
}

// CORSOrigins returns the allowed CORS origins.
func (c *Config) CORSOrigins() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
