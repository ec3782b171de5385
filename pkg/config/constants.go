package config

// EnvPrefix is handed to envconfig; every field carries an explicit tag so it is informational only.
const EnvPrefix = "BRINDES"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "BRINDES_APP_ENV"
	EnvPort     = "BRINDES_APP_PORT"
	EnvLogLevel = "BRINDES_LOG_LEVEL"

	EnvDBDSN         = "BRINDES_DB_DSN"
	EnvDBHost        = "BRINDES_DB_HOST"
	EnvDBUser        = "BRINDES_DB_USER"
	EnvDBName        = "BRINDES_DB_NAME"
	EnvDBTxIsolation = "BRINDES_DB_TX_ISOLATION"
	EnvDBTxTimeout   = "BRINDES_DB_TX_TIMEOUT"

	EnvRedisURL = "BRINDES_REDIS_URL"

	EnvJWTSecret = "BRINDES_JWT_SECRET"
	EnvJWTIssuer = "BRINDES_JWT_ISSUER"

	EnvLifecycleMaxTxAttempts   = "BRINDES_LIFECYCLE_MAX_TX_ATTEMPTS"
	EnvLifecycleRestoreOnCancel = "BRINDES_LIFECYCLE_RESTORE_STOCK_ON_CANCEL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
