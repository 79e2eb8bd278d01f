package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// HTTP captures HTTP server level configuration.
type HTTP struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DB captures connection pool configuration for Postgres.
type DB struct {
	URL             string        `env:"DATABASE_URL,required"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"16"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
	MigrationsPath  string        `env:"DB_MIGRATIONS_PATH" envDefault:"migrations"`
}

// Redis captures the optional facet-cache backend. Empty URL disables it.
type Redis struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"8"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"1"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka captures the optional security-event sink. Empty brokers disable it.
type Kafka struct {
	Brokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	SecurityTopic string   `env:"KAFKA_SECURITY_TOPIC" envDefault:"veritrail.security"`
}

// Auth captures session verification configuration. The operator token
// guards platform provisioning endpoints; when empty they are disabled.
type Auth struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY,required"`
	OperatorToken string `env:"OPERATOR_TOKEN"`
}

// Audit captures retention policy. The horizon is informational only; no
// component deletes based on it.
type Audit struct {
	RetentionYears int `env:"AUDIT_RETENTION_YEARS" envDefault:"10"`
}

// Config is the full application configuration.
type Config struct {
	HTTP  HTTP
	DB    DB
	Redis Redis
	Kafka Kafka
	Auth  Auth
	Audit Audit
}

// Load builds the configuration from environment variables so main stays lean.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
