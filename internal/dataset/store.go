// Package dataset loads the transaction, label, user and MCC tables into an
// immutable snapshot, exactly once per process.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrNotLoaded is returned by Load callers that need a loaded snapshot.
var ErrNotLoaded = errors.New("dataset not loaded")

// Store holds the process-wide snapshot behind a load-once gate.
// Current is safe for concurrent use and never returns nil.
type Store struct {
	source domain.DatasetSource
	once   sync.Once
	err    error

	snap  atomic.Pointer[domain.Snapshot]
	empty *domain.Snapshot
}

// NewStore creates a store that will load from source.
func NewStore(source domain.DatasetSource) *Store {
	return &Store{
		source: source,
		empty:  domain.EmptySnapshot(),
	}
}

// NewStaticStore wraps an already built snapshot.
func NewStaticStore(snap *domain.Snapshot) *Store {
	s := &Store{empty: domain.EmptySnapshot()}
	s.once.Do(func() {})
	if snap != nil {
		normalize(snap)
		s.snap.Store(snap)
	}
	return s
}

// Load reads the snapshot from the source. Only the first call does any work;
// later calls return the first call's error.
func (s *Store) Load(ctx context.Context) error {
	s.once.Do(func() {
		if s.source == nil {
			s.err = fmt.Errorf("%w: no source configured", ErrNotLoaded)
			return
		}

		start := time.Now()
		snap, err := s.source.Load(ctx)
		if err != nil {
			s.err = fmt.Errorf("failed to load dataset from %s: %w", s.source.Name(), err)
			return
		}
		normalize(snap)
		s.snap.Store(snap)

		slog.Info("dataset snapshot ready",
			"snapshot_id", snap.ID,
			"source", s.source.Name(),
			"transactions", len(snap.Transactions),
			"labels", snap.Labels.Len(),
			"users", len(snap.Users),
			"missing", snap.Missing,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
	return s.err
}

// Current returns the loaded snapshot, or an empty one before loading.
func (s *Store) Current() *domain.Snapshot {
	if snap := s.snap.Load(); snap != nil {
		return snap
	}
	return s.empty
}

// Loaded reports whether a snapshot is available.
func (s *Store) Loaded() bool {
	return s.snap.Load() != nil
}

// normalize fills identity fields and replaces nil tables with empty ones.
func normalize(snap *domain.Snapshot) {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.LoadedAt.IsZero() {
		snap.LoadedAt = time.Now().UTC()
	}
	if snap.Transactions == nil {
		snap.Transactions = []domain.Transaction{}
	}
	if snap.Labels == nil {
		snap.Labels = &domain.LabelTable{}
	}
	if snap.Users == nil {
		snap.Users = []domain.User{}
	}
	if snap.MCCCodes == nil {
		snap.MCCCodes = map[string]string{}
	}
	if snap.Modified == nil {
		snap.Modified = map[string]time.Time{}
	}
}
