package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// SnapshotStore is the read side of the dataset store.
type SnapshotStore interface {
	domain.SnapshotProvider
	Loaded() bool
}

// Dependencies are the collaborators of the API handlers. Store and Scorer
// are required; the rest fall back to no-op implementations.
type Dependencies struct {
	Store  SnapshotStore
	Scorer *scoring.Scorer

	// Repository is pinged by the health checks when the snapshot came from SQL.
	Repository domain.DatasetStore

	Cache    domain.Cache
	CacheTTL time.Duration
	Bus      domain.EventBus
	Worker   *worker.Worker
	Metrics  *metrics.Metrics

	Version             string
	SuspiciousThreshold float64
}

// Handler holds dependencies for API handlers.
type Handler struct {
	store     SnapshotStore
	analytics *analytics.Service
	scorer    *scoring.Scorer
	repo      domain.DatasetStore
	cache     domain.Cache
	cacheTTL  time.Duration
	bus       domain.EventBus
	worker    *worker.Worker
	metrics   *metrics.Metrics

	version             string
	suspiciousThreshold float64
	startedAt           time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	h := &Handler{
		store:               deps.Store,
		analytics:           analytics.NewService(deps.Store),
		scorer:              deps.Scorer,
		repo:                deps.Repository,
		cache:               deps.Cache,
		cacheTTL:            deps.CacheTTL,
		bus:                 deps.Bus,
		worker:              deps.Worker,
		metrics:             deps.Metrics,
		version:             deps.Version,
		suspiciousThreshold: deps.SuspiciousThreshold,
		startedAt:           time.Now(),
	}
	if h.cache == nil {
		h.cache = cache.NoopCache{}
	}
	if h.bus == nil {
		h.bus = bus.NoopBus{}
	}
	if h.metrics == nil {
		h.metrics = metrics.New()
	}
	if h.store.Loaded() {
		h.metrics.SetSnapshot(h.store.Current())
	}
	if h.version == "" {
		h.version = "0.0.0"
	}
	if h.suspiciousThreshold <= 0 {
		h.suspiciousThreshold = 1000
	}
	return h
}

// cached writes the JSON payload of compute, served from the cache when the
// same key was rendered before. Keys carry the snapshot id, so a payload
// is never stale.
func (h *Handler) cached(w http.ResponseWriter, r *http.Request, name string, compute func() (any, error), params ...string) {
	key := name + ":" + h.store.Current().ID
	if len(params) > 0 {
		key += ":" + strings.Join(params, ":")
	}

	payload, hit, err := cache.Remember(r.Context(), h.cache, key, h.cacheTTL, compute)
	if err != nil {
		slog.Error("failed to render payload", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.metrics.ObserveCache(hit)

	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	for _, err := range h.pingAll(r.Context()) {
		if err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the dataset has been loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.store.Loaded() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) pingAll(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out := map[string]error{
		"cache": h.cache.Ping(ctx),
		"bus":   h.bus.Ping(ctx),
	}
	if h.repo != nil {
		out["repository"] = h.repo.Ping(ctx)
	}
	return out
}

// datasetTables lists the tables reported by the system health check.
var datasetTables = []string{
	domain.TableTransactions,
	domain.TableLabels,
	domain.TableUsers,
	domain.TableMCC,
}

// SystemHealth reports uptime, dataset counts and the state of each
// collaborator. A table that is absent or empty counts as missing.
func (h *Handler) SystemHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap := h.store.Current()
	counts := snap.Counts()

	missing := []string{}
	for _, table := range datasetTables {
		if counts[table] == 0 {
			missing = append(missing, table)
		}
	}
	loaded := h.store.Loaded() && len(missing) == 0

	components := make(map[string]string)
	for name, err := range h.pingAll(r.Context()) {
		if err != nil {
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	details := map[string]any{
		"counts":           counts,
		"missing_datasets": missing,
		"snapshot_id":      snap.ID,
		"components":       components,
	}
	if h.worker != nil {
		details["events"] = h.worker.GetStats()
	}
	if u, ok := h.cache.(interface{ Usage() cache.Usage }); ok {
		details["cache"] = u.Usage()
	}

	status := "ok"
	if !loaded {
		status = "degraded"
	}

	latency := time.Since(start)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"uptime":         formatUptime(time.Since(h.startedAt)),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"latency":        fmt.Sprintf("%.4fms", float64(latency.Microseconds())/1000),
		"latency_ms":     float64(latency.Microseconds()) / 1000,
		"dataset_loaded": loaded,
		"details":        details,
	})
}

// SystemMetadata returns the service version, the newest source
// modification time and the scoring policies with their rules.
func (h *Handler) SystemMetadata(w http.ResponseWriter, r *http.Request) {
	lastUpdate := "unknown"
	if t := h.store.Current().LastUpdate(); !t.IsZero() {
		lastUpdate = t.UTC().Format("2006-01-02T15:04:05Z")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version":     h.version,
		"last_update": lastUpdate,
		"scoring": map[string]any{
			"default_policy": h.scorer.DefaultPolicy(),
			"policies":       h.scorer.Describe(),
		},
	})
}

// formatUptime renders d as H:MM:SS, prefixed with whole days.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	clock := fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)

	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeValidation reports rejected fields as 422.
func writeValidation(w http.ResponseWriter, msg string, fields []scoring.FieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":  msg,
		"fields": fields,
	})
}
