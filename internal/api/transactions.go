package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// ListTransactions handles GET /api/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := params(r)
	limit := q.intIn("limit", 100, 1, 1000)
	offset := q.atLeast("offset", 0, 0)
	filter := analytics.TransactionFilter{
		ClientID:  q.optInt64("client_id"),
		MinAmount: q.optFloat("min_amount"),
		MaxAmount: q.optFloat("max_amount"),
		StartDate: q.optDate("start_date"),
		EndDate:   q.optDate("end_date"),
	}
	if !q.ok(w) {
		return
	}

	writeJSON(w, http.StatusOK, analytics.ListTransactions(h.store.Current().Transactions, filter, offset, limit))
}

// TransactionTypes handles GET /api/transactions/types.
func (h *Handler) TransactionTypes(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, "transaction-types", func() (any, error) {
		return map[string][]string{
			"types": analytics.TransactionTypes(h.store.Current().Transactions),
		}, nil
	})
}

// RecentTransactions handles GET /api/transactions/recent.
func (h *Handler) RecentTransactions(w http.ResponseWriter, r *http.Request) {
	q := params(r)
	n := q.intIn("n", 10, 1, 100)
	if !q.ok(w) {
		return
	}

	writeJSON(w, http.StatusOK, analytics.Recent(h.store.Current().Transactions, n))
}

// SearchTransactions handles POST /api/transactions/search.
func (h *Handler) SearchTransactions(w http.ResponseWriter, r *http.Request) {
	var query analytics.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil && !errors.Is(err, io.EOF) {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			writeValidation(w, "invalid search query", []scoring.FieldError{
				{Field: typeErr.Field, Message: "expected " + typeErr.Type.String()},
			})
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON request body")
		return
	}
	if n := len(query.AmountRange); n != 0 && n != 2 {
		writeValidation(w, "invalid search query", []scoring.FieldError{
			{Field: "amount_range", Message: "expected [min, max]"},
		})
		return
	}

	var labels map[int64]bool
	if query.IsFraud != nil {
		labels = h.analytics.Labelled(r.Context()).Verdicts()
	}

	writeJSON(w, http.StatusOK, analytics.Search(h.store.Current().Transactions, labels, query))
}

// GetTransaction handles GET /api/transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	tx, found := analytics.FindTransaction(h.store.Current().Transactions, id)
	if !found {
		writeError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, tx.View())
}

// TransactionsByCustomer handles GET /api/transactions/by-customer/{clientID}.
func (h *Handler) TransactionsByCustomer(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r, "clientID")
	if !ok {
		return
	}
	q := params(r)
	limit := q.intIn("limit", 100, 1, 1000)
	offset := q.atLeast("offset", 0, 0)
	if !q.ok(w) {
		return
	}

	filter := analytics.TransactionFilter{ClientID: &clientID}
	writeJSON(w, http.StatusOK, analytics.ListTransactions(h.store.Current().Transactions, filter, offset, limit))
}
