package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Dataset determines where the snapshot is loaded from
	Dataset DatasetConfig `json:"dataset"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Scoring    ScoringConfig    `json:"scoring"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// Dataset source kinds.
const (
	SourceFiles    = "files"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// DatasetConfig locates the dataset tables.
type DatasetConfig struct {
	// Source is "files", "sqlite" or "postgres"
	Source string `json:"source"`

	// Flat file locations, relative to Dir unless absolute
	Dir              string `json:"dir"`
	TransactionsFile string `json:"transactionsFile"`
	LabelsFile       string `json:"labelsFile"`
	UsersFile        string `json:"usersFile"`
	MCCFile          string `json:"mccFile"`
}

// ScoringConfig holds scoring and fraud-query defaults.
type ScoringConfig struct {
	// DefaultPolicy answers /api/fraud/predict without a policy parameter
	DefaultPolicy string `json:"defaultPolicy"`

	// SuspiciousThreshold is the default amount for /api/fraud/suspicious
	SuspiciousThreshold float64 `json:"suspiciousThreshold"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DefaultConfig returns a configuration that serves the flat files in ./data
// with an in-process cache and channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Dataset: DatasetConfig{
			Source:           SourceFiles,
			Dir:              "./data",
			TransactionsFile: "transactions_data.csv",
			LabelsFile:       "train_fraud_labels.json",
			UsersFile:        "users_data.csv",
			MCCFile:          "mcc_codes.json",
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize:  1000,
			LocalMaxBytes: 64 << 20,
			LocalTTL:      10 * time.Minute,
			KeyPrefix:     "kestrel",
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			DefaultPolicy:       PolicySimple,
			SuspiciousThreshold: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}
