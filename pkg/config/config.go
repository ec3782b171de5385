package config

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Lifecycle    LifecycleConfig
	Idempotency  IdempotencyConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.DB.Isolation(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BRINDES_APP_ENV" required:"true"`
	Port         string `envconfig:"BRINDES_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BRINDES_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BRINDES_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"BRINDES_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"BRINDES_DB_DSN"`

	LegacyHost     string `envconfig:"BRINDES_DB_HOST"`
	LegacyPort     int    `envconfig:"BRINDES_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BRINDES_DB_USER"`
	LegacyPassword string `envconfig:"BRINDES_DB_PASSWORD"`
	LegacyName     string `envconfig:"BRINDES_DB_NAME"`
	LegacySSLMode  string `envconfig:"BRINDES_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BRINDES_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BRINDES_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BRINDES_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BRINDES_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Lifecycle transactions run with these bounds.
	TxIsolation string        `envconfig:"BRINDES_DB_TX_ISOLATION" default:"serializable"`
	TxTimeout   time.Duration `envconfig:"BRINDES_DB_TX_TIMEOUT" default:"20s"`
	TxMaxWait   time.Duration `envconfig:"BRINDES_DB_TX_MAX_WAIT" default:"3s"`
}

// Isolation maps the configured isolation name onto database/sql levels.
func (db DBConfig) Isolation() (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(db.TxIsolation)) {
	case "", "default":
		return sql.LevelDefault, nil
	case "read_committed", "read committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read", "repeatable read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("invalid %s %q", EnvDBTxIsolation, db.TxIsolation)
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"BRINDES_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BRINDES_REDIS_ADDR"`
	Password     string        `envconfig:"BRINDES_REDIS_PASSWORD"`
	DB           int           `envconfig:"BRINDES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BRINDES_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BRINDES_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BRINDES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BRINDES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BRINDES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BRINDES_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BRINDES_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BRINDES_JWT_EXPIRATION_MINUTES" default:"60"`
	// LeewaySeconds absorbs clock skew with the identity provider.
	LeewaySeconds int `envconfig:"BRINDES_JWT_LEEWAY_SECONDS" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BRINDES_AUTO_MIGRATE" default:"false"`
}

// LifecycleConfig bounds the request lifecycle engine.
type LifecycleConfig struct {
	MaxTxAttempts        int  `envconfig:"BRINDES_LIFECYCLE_MAX_TX_ATTEMPTS" default:"3"`
	NumberAttempts       int  `envconfig:"BRINDES_LIFECYCLE_NUMBER_ATTEMPTS" default:"5"`
	RestoreStockOnCancel bool `envconfig:"BRINDES_LIFECYCLE_RESTORE_STOCK_ON_CANCEL" default:"false"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"BRINDES_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"BRINDES_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"BRINDES_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	LifecycleTopic string `envconfig:"BRINDES_PUBSUB_LIFECYCLE_TOPIC" default:"brindes-lifecycle-events"`
	DLQTopic       string `envconfig:"BRINDES_PUBSUB_DLQ_TOPIC"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"BRINDES_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"BRINDES_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"BRINDES_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"BRINDES_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"BRINDES_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"BRINDES_CRON_LOCK_TTL" default:"10m"`

	// MetricsAddr serves /metrics for the worker; empty disables the listener.
	MetricsAddr string `envconfig:"BRINDES_CRON_METRICS_ADDR" default:":9102"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
