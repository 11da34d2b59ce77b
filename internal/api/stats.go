package api

import (
	"net/http"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/analytics"
)

// StatsOverview handles GET /api/stats/overview.
func (h *Handler) StatsOverview(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, "stats-overview", func() (any, error) {
		snap := h.store.Current()
		return analytics.Overview(snap.Transactions, snap.Labels), nil
	})
}

// AmountDistribution handles GET /api/stats/amount-distribution.
func (h *Handler) AmountDistribution(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, "stats-amounts", func() (any, error) {
		return analytics.AmountDistribution(h.store.Current().Transactions), nil
	})
}

// StatsByType handles GET /api/stats/by-type.
func (h *Handler) StatsByType(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, "stats-by-type", func() (any, error) {
		return analytics.StatsByType(h.store.Current().Transactions), nil
	})
}

// DailyStats handles GET /api/stats/daily.
func (h *Handler) DailyStats(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, "stats-daily", func() (any, error) {
		return analytics.Daily(h.store.Current().Transactions), nil
	})
}

// GetClient handles GET /api/client/{id}.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	users := analytics.FindUsers(h.store.Current().Users, id)
	if len(users) == 0 {
		writeError(w, http.StatusNotFound, "Client not found or no cards available.")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// TopCustomers handles GET /api/customers/top.
func (h *Handler) TopCustomers(w http.ResponseWriter, r *http.Request) {
	q := params(r)
	n := q.atLeast("n", 10, 1)
	if !q.ok(w) {
		return
	}

	h.cached(w, r, "customers-top", func() (any, error) {
		snap := h.store.Current()
		return analytics.TopCustomers(snap.Transactions, snap.Users, n), nil
	}, strconv.Itoa(n))
}

// ListCustomers handles GET /api/customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	q := params(r)
	page := q.atLeast("page", 1, 1)
	limit := q.intIn("limit", 20, 1, 200)
	if !q.ok(w) {
		return
	}

	writeJSON(w, http.StatusOK, analytics.ListCustomers(h.store.Current().Transactions, page, limit))
}
