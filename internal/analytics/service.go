package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/reconcile"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Labelled is the reconciliation of one snapshot with lookup indexes.
type Labelled struct {
	SnapshotID string
	*reconcile.Result

	byID map[int64]int
}

// Find returns the reconciled row of a transaction id.
func (l *Labelled) Find(id int64) (*domain.ReconciledRecord, bool) {
	i, ok := l.byID[id]
	if !ok {
		return nil, false
	}
	return &l.Records[i], true
}

// Verdicts maps each labelled transaction id to its fraud label.
func (l *Labelled) Verdicts() map[int64]bool {
	out := make(map[int64]bool, len(l.Records))
	for i := range l.Records {
		out[l.Records[i].Transaction.ID] = l.Records[i].IsFraud()
	}
	return out
}

// Service reconciles the current snapshot at most once and hands the result
// to the aggregation functions. The snapshot is immutable, so the memoized
// join is identical to a fresh one.
type Service struct {
	provider domain.SnapshotProvider

	mu       sync.Mutex
	labelled *Labelled
}

// NewService creates an analytics service over a snapshot provider.
func NewService(provider domain.SnapshotProvider) *Service {
	return &Service{provider: provider}
}

// Snapshot returns the current snapshot.
func (s *Service) Snapshot() *domain.Snapshot {
	return s.provider.Current()
}

// Labelled returns the reconciled table of the current snapshot.
func (s *Service) Labelled(ctx context.Context) *Labelled {
	snap := s.provider.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.labelled != nil && s.labelled.SnapshotID == snap.ID {
		return s.labelled
	}

	_, span := otel.Tracer("kestrel/analytics").Start(ctx, "reconcile")
	defer span.End()

	start := time.Now()
	res := reconcile.Snapshot(snap)
	l := &Labelled{
		SnapshotID: snap.ID,
		Result:     res,
		byID:       make(map[int64]int, len(res.Records)),
	}
	for i := range res.Records {
		l.byID[res.Records[i].Transaction.ID] = i
	}

	span.SetAttributes(
		attribute.String("snapshot.id", snap.ID),
		attribute.Int("reconcile.rows", res.Len()),
		attribute.Int("reconcile.unmatched", res.Unmatched),
	)
	slog.Debug("snapshot reconciled",
		"snapshot_id", snap.ID,
		"rows", res.Len(),
		"transactions", res.TransactionCount,
		"labels", res.LabelCount,
		"unmatched", res.Unmatched,
		"duplicate_labels", res.DuplicateLabels,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	s.labelled = l
	return l
}
