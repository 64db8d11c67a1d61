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
	Ledger       LedgerConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"COFFEEFUND_APP_ENV" required:"true"`
	Port         string `envconfig:"COFFEEFUND_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"COFFEEFUND_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COFFEEFUND_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COFFEEFUND_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COFFEEFUND_DB_DSN"`
	Driver string `envconfig:"COFFEEFUND_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COFFEEFUND_DB_HOST"`
	LegacyPort     int    `envconfig:"COFFEEFUND_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COFFEEFUND_DB_USER"`
	LegacyPassword string `envconfig:"COFFEEFUND_DB_PASSWORD"`
	LegacyName     string `envconfig:"COFFEEFUND_DB_NAME"`
	LegacySSLMode  string `envconfig:"COFFEEFUND_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COFFEEFUND_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COFFEEFUND_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COFFEEFUND_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COFFEEFUND_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver targets SQLite (local dev only).
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"COFFEEFUND_REDIS_URL"`
	Address      string        `envconfig:"COFFEEFUND_REDIS_ADDR"`
	Password     string        `envconfig:"COFFEEFUND_REDIS_PASSWORD"`
	DB           int           `envconfig:"COFFEEFUND_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COFFEEFUND_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COFFEEFUND_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COFFEEFUND_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COFFEEFUND_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COFFEEFUND_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"COFFEEFUND_AUTO_MIGRATE" default:"false"`
}

type LedgerConfig struct {
	ReconcileInterval time.Duration `envconfig:"COFFEEFUND_LEDGER_RECONCILE_INTERVAL" default:"1h"`
	CronLockTTL       time.Duration `envconfig:"COFFEEFUND_LEDGER_CRON_LOCK_TTL" default:"55m"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"COFFEEFUND_CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
