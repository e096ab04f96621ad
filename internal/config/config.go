// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tenant-iam/backend/internal/loginattempt/service"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// MetricsAddr serves /metrics, /healthz and /readyz. Empty disables the server.
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is required when LoginAttemptStore is "redis".
	RedisURL string `mapstructure:"REDIS_URL"`
	// LoginAttemptStore selects the login attempt backend: "postgres" or "redis".
	LoginAttemptStore string `mapstructure:"LOGIN_ATTEMPT_STORE"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path to it.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or a path to it.
	JWTPublicKey  string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL  string `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31).
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// MaxSessionsPerUser caps concurrent ACTIVE sessions per user. Zero means no cap.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`

	MaxFailedPerEmail   int `mapstructure:"SECURITY_MAX_FAILED_PER_EMAIL"`
	MaxFailedPerIP      int `mapstructure:"SECURITY_MAX_FAILED_PER_IP"`
	LockoutMinutes      int `mapstructure:"SECURITY_LOCKOUT_MINUTES"`
	SuspiciousThreshold int `mapstructure:"SECURITY_SUSPICIOUS_THRESHOLD"`
	CaptchaAfter        int `mapstructure:"SECURITY_CAPTCHA_AFTER"`

	// PasswordResetTTL is how long a reset token stays usable (e.g. "1h").
	PasswordResetTTL string `mapstructure:"PASSWORD_RESET_TTL"`
	// TOTPIssuer is shown by authenticator apps next to the account name.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`

	// EmailProvider is "log" or "ses".
	EmailProvider string `mapstructure:"EMAIL_PROVIDER"`
	EmailFrom     string `mapstructure:"EMAIL_FROM"`
	AWSRegion     string `mapstructure:"AWS_REGION"`

	// OTLPEndpoint enables OpenTelemetry export when set.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// LogFormat is "json" or "text".
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Worker-only.
	CleanupInterval           string `mapstructure:"CLEANUP_INTERVAL"`
	LoginAttemptRetentionDays int    `mapstructure:"LOGIN_ATTEMPT_RETENTION_DAYS"`

	// KafkaBrokers is a comma-separated broker list; with KafkaEventsTopic it enables the Kafka event publisher.
	KafkaBrokers     string `mapstructure:"KAFKA_BROKERS"`
	KafkaEventsTopic string `mapstructure:"KAFKA_EVENTS_TOPIC"`
}

var defaults = map[string]any{
	"GRPC_ADDR":                     ":8080",
	"METRICS_ADDR":                  ":9090",
	"DATABASE_URL":                  "",
	"REDIS_URL":                     "",
	"LOGIN_ATTEMPT_STORE":           "postgres",
	"JWT_PRIVATE_KEY":               "",
	"JWT_PUBLIC_KEY":                "",
	"JWT_ISSUER":                    "tenant-iam",
	"JWT_AUDIENCE":                  "tenant-iam-api",
	"JWT_ACCESS_TTL":                "15m",
	"JWT_REFRESH_TTL":               "168h",
	"BCRYPT_COST":                   12,
	"MAX_SESSIONS_PER_USER":         5,
	"SECURITY_MAX_FAILED_PER_EMAIL": 5,
	"SECURITY_MAX_FAILED_PER_IP":    20,
	"SECURITY_LOCKOUT_MINUTES":      30,
	"SECURITY_SUSPICIOUS_THRESHOLD": 10,
	"SECURITY_CAPTCHA_AFTER":        3,
	"PASSWORD_RESET_TTL":            "1h",
	"TOTP_ISSUER":                   "tenant-iam",
	"EMAIL_PROVIDER":                "log",
	"EMAIL_FROM":                    "",
	"AWS_REGION":                    "",
	"OTEL_EXPORTER_OTLP_ENDPOINT":   "",
	"OTEL_EXPORTER_OTLP_INSECURE":   false,
	"LOG_FORMAT":                    "json",
	"APP_ENV":                       "",
	"CLEANUP_INTERVAL":              "1h",
	"LOGIN_ATTEMPT_RETENTION_DAYS":  30,
	"KAFKA_BROKERS":                 "",
	"KAFKA_EVENTS_TOPIC":            "",
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	c.LoginAttemptStore = strings.ToLower(strings.TrimSpace(c.LoginAttemptStore))
	switch c.LoginAttemptStore {
	case "postgres":
	case "redis":
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when LOGIN_ATTEMPT_STORE=redis")
		}
	default:
		return fmt.Errorf("config: unknown LOGIN_ATTEMPT_STORE %q", c.LoginAttemptStore)
	}
	c.EmailProvider = strings.ToLower(strings.TrimSpace(c.EmailProvider))
	switch c.EmailProvider {
	case "log":
	case "ses":
		if c.EmailFrom == "" {
			return errors.New("config: EMAIL_FROM must be set when EMAIL_PROVIDER=ses")
		}
	default:
		return fmt.Errorf("config: unknown EMAIL_PROVIDER %q", c.EmailProvider)
	}
	for name, n := range map[string]int{
		"MAX_SESSIONS_PER_USER":         c.MaxSessionsPerUser,
		"SECURITY_MAX_FAILED_PER_EMAIL": c.MaxFailedPerEmail,
		"SECURITY_MAX_FAILED_PER_IP":    c.MaxFailedPerIP,
		"SECURITY_LOCKOUT_MINUTES":      c.LockoutMinutes,
		"SECURITY_SUSPICIOUS_THRESHOLD": c.SuspiciousThreshold,
		"SECURITY_CAPTCHA_AFTER":        c.CaptchaAfter,
		"LOGIN_ATTEMPT_RETENTION_DAYS":  c.LoginAttemptRetentionDays,
	} {
		if n < 0 {
			return fmt.Errorf("config: %s must not be negative", name)
		}
	}
	return nil
}

// AccessTTL parses JWTAccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration { return parseDuration(c.JWTAccessTTL, 15*time.Minute) }

// RefreshTTL parses JWTRefreshTTL. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration { return parseDuration(c.JWTRefreshTTL, 168*time.Hour) }

// ResetTTL parses PasswordResetTTL. Returns 1h if unset or invalid.
func (c *Config) ResetTTL() time.Duration { return parseDuration(c.PasswordResetTTL, time.Hour) }

// CleanupEvery parses CleanupInterval. Returns 1h if unset or invalid.
func (c *Config) CleanupEvery() time.Duration { return parseDuration(c.CleanupInterval, time.Hour) }

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SecurityPolicy is the login security policy handed to LoginSecurityService.
func (c *Config) SecurityPolicy() service.SecurityPolicy {
	return service.SecurityPolicy{
		MaxFailedAttemptsPerEmail:   c.MaxFailedPerEmail,
		MaxFailedAttemptsPerIP:      c.MaxFailedPerIP,
		LockoutDurationMinutes:      c.LockoutMinutes,
		SuspiciousActivityThreshold: c.SuspiciousThreshold,
		RequireCaptchaAfterAttempts: c.CaptchaAfter,
	}
}

// KafkaBrokerList splits KafkaBrokers on commas, dropping blanks.
func (c *Config) KafkaBrokerList() []string {
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

// IsProduction reports APP_ENV=production.
func (c *Config) IsProduction() bool { return strings.EqualFold(c.Env, "production") }
