package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Session   SessionSettings   `mapstructure:"session"`
	Cookie    CookieSettings    `mapstructure:"cookie"`
	CSRF      CSRFSettings      `mapstructure:"csrf"`
	Directory DirectorySettings `mapstructure:"directory"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// IsProduction reports whether cookies must carry the Secure attribute.
func (a AppSettings) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

// SessionSettings configures the signed session container lifetimes and the
// shared signing secret.
type SessionSettings struct {
	Secret                string        `mapstructure:"secret"`
	Issuer                string        `mapstructure:"issuer"`
	StandardTTL           time.Duration `mapstructure:"standard_ttl"`
	RememberMeTTL         time.Duration `mapstructure:"remember_me_ttl"`
	StandardIdleCeiling   time.Duration `mapstructure:"standard_idle_ceiling"`
	RememberMeIdleCeiling time.Duration `mapstructure:"remember_me_idle_ceiling"`
}

type CookieSettings struct {
	Name   string `mapstructure:"name"`
	Domain string `mapstructure:"domain"`
	Path   string `mapstructure:"path"`
}

type CSRFSettings struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// DirectorySettings configures the upstream Directory Service client.
type DirectorySettings struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
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

// RedisSettings configures Redis connection and key prefixes.
type RedisSettings struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	DB                  int    `mapstructure:"db"`
	Password            string `mapstructure:"password"`
	TLSEnabled          bool   `mapstructure:"tls_enabled"`
	ProvisionLockPrefix string `mapstructure:"provision_lock_prefix"`
	RateLimitPrefix     string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the Kafka producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// RateLimitSettings configures sliding-window limits per endpoint group.
type RateLimitSettings struct {
	WindowDuration     time.Duration `mapstructure:"window_duration"`
	AuthMaxAttempts    int           `mapstructure:"auth_max_attempts"`
	SessionMaxAttempts int           `mapstructure:"session_max_attempts"`
	CSRFMaxAttempts    int           `mapstructure:"csrf_max_attempts"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("TEAMGATE")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"session.secret",
		"session.issuer",
		"session.standard_ttl",
		"session.remember_me_ttl",
		"session.standard_idle_ceiling",
		"session.remember_me_idle_ceiling",
		"cookie.name",
		"cookie.domain",
		"cookie.path",
		"csrf.ttl",
		"directory.base_url",
		"directory.api_key",
		"directory.timeout",
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
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.provision_lock_prefix",
		"redis.rate_limit_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"rate_limit.window_duration",
		"rate_limit.auth_max_attempts",
		"rate_limit.session_max_attempts",
		"rate_limit.csrf_max_attempts",
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

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "teamgate")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("session.secret", "")
	v.SetDefault("session.issuer", "teamgate")
	v.SetDefault("session.standard_ttl", "168h")
	v.SetDefault("session.remember_me_ttl", "720h")
	v.SetDefault("session.standard_idle_ceiling", "2h")
	v.SetDefault("session.remember_me_idle_ceiling", "168h")

	v.SetDefault("cookie.name", "tg_session")
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.path", "/")

	v.SetDefault("csrf.ttl", "1h")

	v.SetDefault("directory.base_url", "http://localhost:9000")
	v.SetDefault("directory.api_key", "")
	v.SetDefault("directory.timeout", "10s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "teamgate")
	v.SetDefault("postgres.password", "teamgate_password")
	v.SetDefault("postgres.database", "teamgate")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.provision_lock_prefix", "teamgate:provision")
	v.SetDefault("redis.rate_limit_prefix", "teamgate:ratelimit")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "teamgate")
	v.SetDefault("kafka.async", true)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.auth_max_attempts", 10)
	v.SetDefault("rate_limit.session_max_attempts", 60)
	v.SetDefault("rate_limit.csrf_max_attempts", 30)

	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "teamgate")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "TEAMGATE_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
