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
	// GRPCAddr is the address of the gRPC health endpoint (e.g. :9090). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production"). Selects the zap config.
	Env string `mapstructure:"APP_ENV"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "helpdesk-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "helpdesk-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// ADURL is the directory server URL (ldap:// or ldaps://). Empty disables directory lookups.
	ADURL string `mapstructure:"AD_URL"`
	// ADBaseDN is the search base for user lookups (e.g. DC=corp,DC=local).
	ADBaseDN string `mapstructure:"AD_BASE_DN"`
	// ADDomain is appended to usernames for UPN binds (user@domain).
	ADDomain string `mapstructure:"AD_DOMAIN"`
	// ADBindUsername and ADBindPassword are the service account used for searches.
	ADBindUsername string `mapstructure:"AD_BIND_USERNAME"`
	ADBindPassword string `mapstructure:"AD_BIND_PASSWORD"`
	// ADTimeout bounds every directory round trip (default "10s").
	ADTimeout string `mapstructure:"AD_TIMEOUT"`
	// ADInsecureSkipVerify disables TLS verification for ldaps:// (lab directories only).
	ADInsecureSkipVerify bool `mapstructure:"AD_INSECURE_SKIP_VERIFY"`
	// ADRefreshThreshold is how old a domain user's last_seen may be before it is refreshed (default "24h").
	ADRefreshThreshold string `mapstructure:"AD_REFRESH_THRESHOLD"`

	// VersionPolicyEnforceEnabled is the master switch for rejecting logins by client version.
	// platform_settings rows override these three values at runtime.
	VersionPolicyEnforceEnabled bool `mapstructure:"VERSION_POLICY_ENFORCE_ENABLED"`
	// VersionPolicyRejectOutdatedEnforced rejects OUTDATED_ENFORCED clients when enforcement is on.
	VersionPolicyRejectOutdatedEnforced bool `mapstructure:"VERSION_POLICY_REJECT_OUTDATED_ENFORCED"`
	// VersionPolicyRejectUnknown rejects UNKNOWN clients when enforcement is on.
	VersionPolicyRejectUnknown bool `mapstructure:"VERSION_POLICY_REJECT_UNKNOWN"`
	// VersionPolicyRegoFile optionally points at a Rego module that replaces the built-in enforcement rule.
	VersionPolicyRegoFile string `mapstructure:"VERSION_POLICY_REGO_FILE"`

	// TokenRetentionDays is how long expired/revoked rows are kept for audit before the reaper deletes them.
	TokenRetentionDays int `mapstructure:"TOKEN_RETENTION_DAYS"`
	// ReaperInterval is how often the worker runs the retention reaper (default "1h").
	ReaperInterval string `mapstructure:"REAPER_INTERVAL"`
	// DesktopStaleTimeout terminates desktop sessions without a heartbeat for this long. "0" disables.
	DesktopStaleTimeout string `mapstructure:"DESKTOP_STALE_TIMEOUT"`

	// LoginRatePerMinute is the per-IP budget for login endpoints. 0 disables rate limiting.
	LoginRatePerMinute int `mapstructure:"LOGIN_RATE_PER_MINUTE"`

	// RedisURL (optional) enables the reaper's distributed lock and the Redis health check.
	RedisURL string `mapstructure:"REDIS_URL"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. When set, auth events are published.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuthEventsTopic is the Kafka topic for auth events (default auth-events).
	AuthEventsTopic string `mapstructure:"AUTH_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group ID for the worker's event forwarder.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where the worker forwards auth events (e.g. http://localhost:3100). Empty disables forwarding.
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTelEndpoint is the OTLP gRPC collector endpoint. Empty installs no-op providers.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure forces plaintext OTLP even for https endpoints.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// OTelServiceName is the service.name resource attribute.
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "helpdesk-auth")
	v.SetDefault("JWT_AUDIENCE", "helpdesk-api")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("AD_URL", "")
	v.SetDefault("AD_BASE_DN", "")
	v.SetDefault("AD_DOMAIN", "")
	v.SetDefault("AD_BIND_USERNAME", "")
	v.SetDefault("AD_BIND_PASSWORD", "")
	v.SetDefault("AD_TIMEOUT", "10s")
	v.SetDefault("AD_INSECURE_SKIP_VERIFY", false)
	v.SetDefault("AD_REFRESH_THRESHOLD", "24h")
	v.SetDefault("VERSION_POLICY_ENFORCE_ENABLED", false)
	v.SetDefault("VERSION_POLICY_REJECT_OUTDATED_ENFORCED", true)
	v.SetDefault("VERSION_POLICY_REJECT_UNKNOWN", false)
	v.SetDefault("VERSION_POLICY_REGO_FILE", "")
	v.SetDefault("TOKEN_RETENTION_DAYS", 7)
	v.SetDefault("REAPER_INTERVAL", "1h")
	v.SetDefault("DESKTOP_STALE_TIMEOUT", "0")
	v.SetDefault("LOGIN_RATE_PER_MINUTE", 60)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_TOPIC", "auth-events")
	v.SetDefault("KAFKA_GROUP_ID", "helpdesk-auth-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "helpdesk-auth")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.TokenRetentionDays < 0 {
		return nil, errors.New("config: TOKEN_RETENTION_DAYS must not be negative")
	}

	if cfg.ADURL != "" && cfg.ADBaseDN == "" {
		return nil, errors.New("config: AD_BASE_DN must be set when AD_URL is set")
	}

	return &cfg, nil
}

// DirectoryTimeout parses ADTimeout. Returns 10s if unset or invalid.
func (c *Config) DirectoryTimeout() time.Duration {
	return parseDuration(c.ADTimeout, 10*time.Second)
}

// RefreshThreshold parses ADRefreshThreshold. Returns 24h if unset or invalid.
func (c *Config) RefreshThreshold() time.Duration {
	return parseDuration(c.ADRefreshThreshold, 24*time.Hour)
}

// ReaperEvery parses ReaperInterval. Returns 1h if unset or invalid.
func (c *Config) ReaperEvery() time.Duration {
	return parseDuration(c.ReaperInterval, time.Hour)
}

// StaleTimeout parses DesktopStaleTimeout. Returns 0 (disabled) if unset or invalid.
func (c *Config) StaleTimeout() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.DesktopStaleTimeout))
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// DirectoryEnabled reports whether an AD server is configured.
func (c *Config) DirectoryEnabled() bool {
	return c != nil && strings.TrimSpace(c.ADURL) != ""
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event publishing is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
