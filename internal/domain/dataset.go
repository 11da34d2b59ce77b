package domain

import (
	"context"
	"time"
)

// Dataset table names.
const (
	TableTransactions = "transactions"
	TableLabels       = "fraud_labels"
	TableUsers        = "users"
	TableMCC          = "mcc_codes"
)

// Snapshot is an immutable, fully loaded copy of every dataset table.
// Nothing mutates a snapshot after its source returns it.
type Snapshot struct {
	ID       string    `json:"id"`
	LoadedAt time.Time `json:"loadedAt"`

	Transactions []Transaction
	Labels       *LabelTable
	Users        []User
	MCCCodes     map[string]string

	// Modified maps table name to the modification time of its source.
	Modified map[string]time.Time

	// Missing lists the tables the source could not provide.
	Missing []string
}

// EmptySnapshot returns a snapshot with no rows in any table.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		ID:           "empty",
		Transactions: []Transaction{},
		Labels:       &LabelTable{},
		Users:        []User{},
		MCCCodes:     map[string]string{},
		Modified:     map[string]time.Time{},
		Missing:      []string{TableTransactions, TableLabels, TableUsers, TableMCC},
	}
}

// Counts returns the row count per table.
func (s *Snapshot) Counts() map[string]int {
	return map[string]int{
		TableTransactions: len(s.Transactions),
		TableLabels:       s.Labels.Len(),
		TableUsers:        len(s.Users),
		TableMCC:          len(s.MCCCodes),
	}
}

// LastUpdate returns the newest source modification time.
func (s *Snapshot) LastUpdate() time.Time {
	var last time.Time
	for _, t := range s.Modified {
		if t.After(last) {
			last = t
		}
	}
	return last
}

// DatasetSource loads a complete snapshot from its backing storage.
type DatasetSource interface {
	// Name identifies the source in logs and health output.
	Name() string

	// Load reads every table. Missing optional tables are recorded in
	// Snapshot.Missing; a missing transaction table is an error.
	Load(ctx context.Context) (*Snapshot, error)
}

// SnapshotProvider exposes the current read-only snapshot.
// Current never returns nil.
type SnapshotProvider interface {
	Current() *Snapshot
}
