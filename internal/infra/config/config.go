package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App         AppSettings         `mapstructure:"app"`
	Postgres    PostgresSettings    `mapstructure:"postgres"`
	Redis       RedisSettings       `mapstructure:"redis"`
	Kafka       KafkaSettings       `mapstructure:"kafka"`
	JWT         JWTSettings         `mapstructure:"jwt"`
	Argon2      Argon2Settings      `mapstructure:"argon2"`
	Passkey     PasskeySettings     `mapstructure:"passkey"`
	TOTP        TOTPSettings        `mapstructure:"totp"`
	Session     SessionSettings     `mapstructure:"session"`
	AntiForgery AntiForgerySettings `mapstructure:"antiforgery"`
	Challenge   ChallengeSettings   `mapstructure:"challenge"`
	RateLimit   RateLimitSettings   `mapstructure:"rate_limit"`
	Telemetry   TelemetrySettings   `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection used by the shared challenge
// and anti-forgery stores in multi-instance deployments.
type RedisSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the security-event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type JWTSettings struct {
	KeyDirectory      string        `mapstructure:"key_directory"`
	SessionTokenTTL   time.Duration `mapstructure:"session_token_ttl"`
	TemporaryTokenTTL time.Duration `mapstructure:"temporary_token_ttl"`
}

// Argon2Settings configures Argon2id password hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// PasskeySettings scope passkey ceremonies to the relying party.
type PasskeySettings struct {
	RelyingPartyID   string `mapstructure:"relying_party_id"`
	RelyingPartyName string `mapstructure:"relying_party_name"`
	Origin           string `mapstructure:"origin"`
}

type TOTPSettings struct {
	Issuer string `mapstructure:"issuer"`
}

// SessionSettings bound session growth and history retention.
type SessionSettings struct {
	StalenessHorizon time.Duration `mapstructure:"staleness_horizon"`
	HistoryLimit     int           `mapstructure:"history_limit"`
}

type AntiForgerySettings struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	CookieName    string        `mapstructure:"cookie_name"`
	HeaderName    string        `mapstructure:"header_name"`
}

type ChallengeSettings struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// RateLimitSettings configures the opaque fixed-window gate in front of the
// login endpoints. Policy tuning beyond these knobs is external.
type RateLimitSettings struct {
	Enabled          bool          `mapstructure:"enabled"`
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTH")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.key_directory",
		"jwt.session_token_ttl",
		"jwt.temporary_token_ttl",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"passkey.relying_party_id",
		"passkey.relying_party_name",
		"passkey.origin",
		"totp.issuer",
		"session.staleness_horizon",
		"session.history_limit",
		"antiforgery.ttl",
		"antiforgery.sweep_interval",
		"antiforgery.cookie_name",
		"antiforgery.header_name",
		"challenge.ttl",
		"rate_limit.enabled",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Passkey.RelyingPartyID) == "" {
		return fmt.Errorf("config: passkey.relying_party_id is required")
	}
	if strings.TrimSpace(c.Passkey.Origin) == "" {
		return fmt.Errorf("config: passkey.origin is required")
	}
	if c.Session.HistoryLimit <= 0 {
		return fmt.Errorf("config: session.history_limit must be positive")
	}
	if c.Session.StalenessHorizon <= 0 {
		return fmt.Errorf("config: session.staleness_horizon must be positive")
	}
	if c.Challenge.TTL <= 0 {
		return fmt.Errorf("config: challenge.ttl must be positive")
	}
	if c.AntiForgery.TTL <= 0 {
		return fmt.Errorf("config: antiforgery.ttl must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "auth-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "auth")
	v.SetDefault("postgres.password", "auth_password")
	v.SetDefault("postgres.database", "auth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "auth")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "auth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.session_token_ttl", "72h")
	v.SetDefault("jwt.temporary_token_ttl", "10m")

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("passkey.relying_party_id", "localhost")
	v.SetDefault("passkey.relying_party_name", "Social Platform")
	v.SetDefault("passkey.origin", "http://localhost:8080")

	v.SetDefault("totp.issuer", "Social Platform")

	v.SetDefault("session.staleness_horizon", "720h") // 30 days
	v.SetDefault("session.history_limit", 20)

	v.SetDefault("antiforgery.ttl", "1h")
	v.SetDefault("antiforgery.sweep_interval", "1h")
	v.SetDefault("antiforgery.cookie_name", "xsrf_token")
	v.SetDefault("antiforgery.header_name", "X-CSRF-Token")

	v.SetDefault("challenge.ttl", "5m")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)

	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "auth-service")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTH_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
