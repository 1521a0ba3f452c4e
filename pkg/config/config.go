package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Reconcile    ReconcileConfig
	Worker       WorkerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.useSQLite()
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Reconcile.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BACKOFFICE_APP_ENV" required:"true"`
	Port         string `envconfig:"BACKOFFICE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BACKOFFICE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BACKOFFICE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BACKOFFICE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BACKOFFICE_DB_DSN"`
	Driver string `envconfig:"BACKOFFICE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BACKOFFICE_DB_HOST"`
	LegacyPort     int    `envconfig:"BACKOFFICE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BACKOFFICE_DB_USER"`
	LegacyPassword string `envconfig:"BACKOFFICE_DB_PASSWORD"`
	LegacyName     string `envconfig:"BACKOFFICE_DB_NAME"`
	LegacySSLMode  string `envconfig:"BACKOFFICE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BACKOFFICE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BACKOFFICE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BACKOFFICE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BACKOFFICE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"BACKOFFICE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BACKOFFICE_REDIS_URL"`
	Address      string        `envconfig:"BACKOFFICE_REDIS_ADDR"`
	Password     string        `envconfig:"BACKOFFICE_REDIS_PASSWORD"`
	DB           int           `envconfig:"BACKOFFICE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BACKOFFICE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BACKOFFICE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BACKOFFICE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BACKOFFICE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BACKOFFICE_REDIS_WRITE_TIMEOUT" default:"5s"`
	AliasTTL     time.Duration `envconfig:"BACKOFFICE_REDIS_ALIAS_TTL" default:"24h"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BACKOFFICE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BACKOFFICE_AUTO_MIGRATE" default:"false"`
}

// ReconcileConfig tunes the invoice line resolution engine.
type ReconcileConfig struct {
	AutoAcceptThreshold float64       `envconfig:"BACKOFFICE_RECONCILE_AUTO_ACCEPT" default:"0.95"`
	SuggestThreshold    float64       `envconfig:"BACKOFFICE_RECONCILE_SUGGEST" default:"0.80"`
	MaxCandidates       int           `envconfig:"BACKOFFICE_RECONCILE_MAX_CANDIDATES" default:"20"`
	AutoConfirm         bool          `envconfig:"BACKOFFICE_RECONCILE_AUTO_CONFIRM" default:"true"`
	CreateMissing       bool          `envconfig:"BACKOFFICE_RECONCILE_CREATE_MISSING" default:"false"`
	BatchSize           int           `envconfig:"BACKOFFICE_RECONCILE_BATCH_SIZE" default:"25"`
	BatchDelay          time.Duration `envconfig:"BACKOFFICE_RECONCILE_BATCH_DELAY" default:"0s"`
	Concurrency         int           `envconfig:"BACKOFFICE_RECONCILE_CONCURRENCY" default:"4"`
}

func (r ReconcileConfig) validate() error {
	if r.SuggestThreshold < 0 || r.AutoAcceptThreshold > 1 {
		return fmt.Errorf("reconcile thresholds must be within [0,1]")
	}
	if r.SuggestThreshold > r.AutoAcceptThreshold {
		return fmt.Errorf("%s must not exceed %s", EnvReconcileSuggest, EnvReconcileAutoAccept)
	}
	return nil
}

// WorkerConfig configures the scheduled unmapped-line sweep.
type WorkerConfig struct {
	Interval   time.Duration `envconfig:"BACKOFFICE_WORKER_INTERVAL" default:"15m"`
	SweepLimit int           `envconfig:"BACKOFFICE_WORKER_SWEEP_LIMIT" default:"500"`
	BatchDelay time.Duration `envconfig:"BACKOFFICE_WORKER_BATCH_DELAY" default:"2s"`
	LockTTL    time.Duration `envconfig:"BACKOFFICE_WORKER_LOCK_TTL" default:"1h"`
	MinAge     time.Duration `envconfig:"BACKOFFICE_WORKER_MIN_AGE" default:"1h"`
	Retries    int           `envconfig:"BACKOFFICE_WORKER_RETRIES" default:"2"`
	RetryDelay time.Duration `envconfig:"BACKOFFICE_WORKER_RETRY_DELAY" default:"30s"`
}

// DefaultSQLiteDSN is the local file used when sqlite is enabled without a DSN.
const DefaultSQLiteDSN = "file:backoffice.db?_foreign_keys=on"

func (db *DBConfig) useSQLite() {
	db.Driver = "sqlite"
	if db.DSN == "" || strings.HasPrefix(db.DSN, "postgres") {
		db.DSN = DefaultSQLiteDSN
	}
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
