package config

const EnvPrefix = "COFFEEFUND"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "COFFEEFUND_APP_ENV"
	EnvPort     = "COFFEEFUND_APP_PORT"
	EnvLogLevel = "COFFEEFUND_LOG_LEVEL"

	EnvDBDSN    = "COFFEEFUND_DB_DSN"
	EnvDBDriver = "COFFEEFUND_DB_DRIVER"
	EnvDBHost   = "COFFEEFUND_DB_HOST"
	EnvDBPort   = "COFFEEFUND_DB_PORT"
	EnvDBUser   = "COFFEEFUND_DB_USER"
	EnvDBName   = "COFFEEFUND_DB_NAME"

	EnvRedisURL = "COFFEEFUND_REDIS_URL"

	EnvReconcileInterval = "COFFEEFUND_LEDGER_RECONCILE_INTERVAL"
	EnvCORSOrigins       = "COFFEEFUND_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
