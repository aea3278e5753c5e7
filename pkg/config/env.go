package config

const (
	EnvPrefix = "LIBRARY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultMaxLoanDays = 30
)

const (
	EnvAppEnv       = "LIBRARY_APP_ENV"
	EnvPort         = "LIBRARY_APP_PORT"
	EnvLogLevel     = "LIBRARY_LOG_LEVEL"
	EnvUseSQLite    = "LIBRARY_USE_SQLITE"
	EnvAutoMigrate  = "LIBRARY_AUTO_MIGRATE"
	EnvDBDSN        = "LIBRARY_DB_DSN"
	EnvDBSQLitePath = "LIBRARY_DB_SQLITE_PATH"
	EnvDBHost       = "LIBRARY_DB_HOST"
	EnvDBPort       = "LIBRARY_DB_PORT"
	EnvDBUser       = "LIBRARY_DB_USER"
	EnvDBPassword   = "LIBRARY_DB_PASSWORD"
	EnvDBName       = "LIBRARY_DB_NAME"
	EnvDBSSLMode    = "LIBRARY_DB_SSLMODE"
	EnvRedisURL     = "LIBRARY_REDIS_URL"
	EnvMaxLoanDays  = "LIBRARY_LENDING_MAX_LOAN_DAYS"
	EnvLoansTopic   = "LIBRARY_PUBSUB_LOANS_TOPIC"
	EnvWorkerID     = "LIBRARY_WORKER_ID"
	EnvGCPProjectID = "LIBRARY_GCP_PROJECT_ID"

	EnvLendingTimeZone = "LIBRARY_LENDING_TIMEZONE"
)
