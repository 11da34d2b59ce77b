// Package config builds the runtime configuration from defaults, an optional
// .env file and KESTREL_* environment variables.
package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Env maps KESTREL_* variables. Only variables that are set override a default.
type Env struct {
	Host string `env:"KESTREL_HOST"`
	Port int    `env:"KESTREL_PORT"`

	DatasetSource    string `env:"KESTREL_DATASET_SOURCE"`
	DataDir          string `env:"KESTREL_DATA_DIR"`
	TransactionsFile string `env:"KESTREL_TRANSACTIONS_FILE"`
	LabelsFile       string `env:"KESTREL_LABELS_FILE"`
	UsersFile        string `env:"KESTREL_USERS_FILE"`
	MCCFile          string `env:"KESTREL_MCC_FILE"`

	SQLitePath       string `env:"KESTREL_SQLITE_PATH"`
	PostgresHost     string `env:"KESTREL_POSTGRES_HOST"`
	PostgresPort     int    `env:"KESTREL_POSTGRES_PORT"`
	PostgresUser     string `env:"KESTREL_POSTGRES_USER"`
	PostgresPassword string `env:"KESTREL_POSTGRES_PASSWORD"`
	PostgresDB       string `env:"KESTREL_POSTGRES_DB"`
	PostgresSSLMode  string `env:"KESTREL_POSTGRES_SSLMODE"`

	CacheType     string        `env:"KESTREL_CACHE"`
	CacheSize     int           `env:"KESTREL_CACHE_SIZE"`
	CacheMaxBytes int           `env:"KESTREL_CACHE_MAX_BYTES"`
	CacheTTL      time.Duration `env:"KESTREL_CACHE_TTL"`
	RedisAddr     string        `env:"KESTREL_REDIS_ADDR"`
	RedisPassword string        `env:"KESTREL_REDIS_PASSWORD"`
	RedisDB       int           `env:"KESTREL_REDIS_DB"`
	TwoPhase      bool          `env:"KESTREL_CACHE_TWO_PHASE"`

	BusType   string `env:"KESTREL_BUS"`
	NATSUrl   string `env:"KESTREL_NATS_URL"`
	NATSToken string `env:"KESTREL_NATS_TOKEN"`
	NATSQueue string `env:"KESTREL_NATS_QUEUE"`

	DefaultPolicy       string  `env:"KESTREL_DEFAULT_POLICY"`
	SuspiciousThreshold float64 `env:"KESTREL_SUSPICIOUS_THRESHOLD"`

	Debug   bool `env:"KESTREL_DEBUG"`
	Tracing bool `env:"KESTREL_TRACING"`
}

// Load returns DefaultConfig with environment overrides applied.
// When path is non-empty the file is loaded into the environment first;
// variables already present in the environment win over the file.
func Load(path string) (*domain.Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	var e Env
	set, err := env.UnmarshalFromEnviron(&e)
	if err != nil {
		return nil, fmt.Errorf("failed to map environment: %w", err)
	}

	cfg := domain.DefaultConfig()
	apply(cfg, &e, set)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func apply(cfg *domain.Config, e *Env, set env.EnvSet) {
	has := func(key string) bool {
		_, ok := set[key]
		return ok
	}
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	str(&cfg.Server.Host, e.Host)
	num(&cfg.Server.Port, e.Port)

	str(&cfg.Dataset.Source, e.DatasetSource)
	str(&cfg.Dataset.Dir, e.DataDir)
	str(&cfg.Dataset.TransactionsFile, e.TransactionsFile)
	str(&cfg.Dataset.LabelsFile, e.LabelsFile)
	str(&cfg.Dataset.UsersFile, e.UsersFile)
	str(&cfg.Dataset.MCCFile, e.MCCFile)

	switch cfg.Dataset.Source {
	case domain.SourceSQLite, domain.SourcePostgres:
		cfg.Repository.Driver = cfg.Dataset.Source
	}
	str(&cfg.Repository.SQLitePath, e.SQLitePath)
	str(&cfg.Repository.PostgresHost, e.PostgresHost)
	num(&cfg.Repository.PostgresPort, e.PostgresPort)
	str(&cfg.Repository.PostgresUser, e.PostgresUser)
	str(&cfg.Repository.PostgresPassword, e.PostgresPassword)
	str(&cfg.Repository.PostgresDB, e.PostgresDB)
	str(&cfg.Repository.PostgresSSLMode, e.PostgresSSLMode)

	str(&cfg.Cache.Type, e.CacheType)
	num(&cfg.Cache.LocalMaxSize, e.CacheSize)
	num(&cfg.Cache.LocalMaxBytes, e.CacheMaxBytes)
	if e.CacheTTL > 0 {
		cfg.Cache.LocalTTL = e.CacheTTL
	}
	str(&cfg.Cache.RedisAddr, e.RedisAddr)
	str(&cfg.Cache.RedisPassword, e.RedisPassword)
	num(&cfg.Cache.RedisDB, e.RedisDB)
	if has("KESTREL_CACHE_TWO_PHASE") {
		cfg.Cache.EnableTwoPhase = e.TwoPhase
	}

	str(&cfg.EventBus.Type, e.BusType)
	str(&cfg.EventBus.NATSUrl, e.NATSUrl)
	str(&cfg.EventBus.NATSToken, e.NATSToken)
	str(&cfg.EventBus.NATSQueueGroup, e.NATSQueue)

	str(&cfg.Scoring.DefaultPolicy, e.DefaultPolicy)
	if e.SuspiciousThreshold > 0 {
		cfg.Scoring.SuspiciousThreshold = e.SuspiciousThreshold
	}

	if has("KESTREL_DEBUG") && e.Debug {
		cfg.Logging.Level = "debug"
	}
	if has("KESTREL_TRACING") {
		cfg.Tracing.Enabled = e.Tracing
	}
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	switch cfg.Dataset.Source {
	case domain.SourceFiles, domain.SourceSQLite, domain.SourcePostgres:
	default:
		return fmt.Errorf("unsupported dataset source: %s", cfg.Dataset.Source)
	}

	switch cfg.Cache.Type {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %s", cfg.Cache.Type)
	}

	switch cfg.EventBus.Type {
	case "none", "channel", "nats":
	default:
		return fmt.Errorf("unsupported event bus type: %s", cfg.EventBus.Type)
	}

	switch cfg.Scoring.DefaultPolicy {
	case domain.PolicyFull, domain.PolicySimple:
	default:
		return fmt.Errorf("unknown scoring policy: %s", cfg.Scoring.DefaultPolicy)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	return nil
}
