package config

const EnvPrefix = "BACKOFFICE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "BACKOFFICE_APP_ENV"
	EnvPort     = "BACKOFFICE_APP_PORT"
	EnvLogLevel = "BACKOFFICE_LOG_LEVEL"

	EnvDBDSN  = "BACKOFFICE_DB_DSN"
	EnvDBHost = "BACKOFFICE_DB_HOST"
	EnvDBUser = "BACKOFFICE_DB_USER"
	EnvDBName = "BACKOFFICE_DB_NAME"

	EnvRedisURL = "BACKOFFICE_REDIS_URL"

	EnvUseSQLite = "BACKOFFICE_USE_SQLITE"

	EnvReconcileAutoAccept = "BACKOFFICE_RECONCILE_AUTO_ACCEPT"
	EnvReconcileSuggest    = "BACKOFFICE_RECONCILE_SUGGEST"
	EnvReconcileBatchSize  = "BACKOFFICE_RECONCILE_BATCH_SIZE"
	EnvReconcileBatchDelay = "BACKOFFICE_RECONCILE_BATCH_DELAY"

	EnvWorkerInterval = "BACKOFFICE_WORKER_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
