// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// DatasetStore is a SQL-backed copy of the dataset tables.
// It is written once by the import tool and read back as a DatasetSource.
type DatasetStore interface {
	DatasetSource

	// Import replaces the stored tables with the contents of snap.
	Import(ctx context.Context, snap *Snapshot) (*ImportStats, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ImportStats reports the rows written by an import.
type ImportStats struct {
	Transactions int           `json:"transactions"`
	Labels       int           `json:"labels"`
	Users        int           `json:"users"`
	MCCCodes     int           `json:"mccCodes"`
	Duration     time.Duration `json:"duration"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
