package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// FraudSummary handles GET /api/fraud/summary.
func (h *Handler) FraudSummary(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, "fraud-summary", func() (any, error) {
		return analytics.Summary(h.analytics.Labelled(r.Context()).Records), nil
	})
}

// FraudByType handles GET /api/fraud/by-type.
func (h *Handler) FraudByType(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, "fraud-by-type", func() (any, error) {
		return analytics.FraudRateByType(h.analytics.Labelled(r.Context()).Records), nil
	})
}

// FraudBreakdown handles GET /api/fraud/by-type/breakdown.
func (h *Handler) FraudBreakdown(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, "fraud-breakdown", func() (any, error) {
		return analytics.FraudBreakdownByType(h.analytics.Labelled(r.Context()).Records), nil
	})
}

// FraudStatistics handles GET /api/fraud/statistics.
func (h *Handler) FraudStatistics(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, "fraud-statistics", func() (any, error) {
		return analytics.Statistics(h.analytics.Labelled(r.Context()).Records), nil
	})
}

// SuspiciousResponse is a page of labelled transactions at or above a threshold.
type SuspiciousResponse struct {
	Threshold float64                      `json:"threshold"`
	Total     int                          `json:"total"`
	Offset    int                          `json:"offset"`
	Limit     int                          `json:"limit"`
	Data      []domain.LabelledTransaction `json:"data"`
}

// Suspicious handles GET /api/fraud/suspicious.
func (h *Handler) Suspicious(w http.ResponseWriter, r *http.Request) {
	q := params(r)
	threshold := h.suspiciousThreshold
	if t := q.optFloat("threshold"); t != nil {
		threshold = *t
	}
	limit := q.intIn("limit", 100, 1, 1000)
	offset := q.atLeast("offset", 0, 0)
	if !q.ok(w) {
		return
	}

	key := strconv.FormatFloat(threshold, 'g', -1, 64)
	h.cached(w, r, "fraud-suspicious", func() (any, error) {
		data, total := analytics.Suspicious(h.analytics.Labelled(r.Context()).Records, threshold, offset, limit)
		return SuspiciousResponse{
			Threshold: threshold,
			Total:     total,
			Offset:    offset,
			Limit:     limit,
			Data:      data,
		}, nil
	}, key, strconv.Itoa(offset), strconv.Itoa(limit))
}

// DetectFraud handles GET /api/fraud/transactions/{id}.
func (h *Handler) DetectFraud(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	rec, found := h.analytics.Labelled(r.Context()).Find(id)
	if !found {
		writeError(w, http.StatusNotFound, "Transaction not found or not labelled.")
		return
	}
	writeJSON(w, http.StatusOK, analytics.Detection(rec))
}

// Predict handles POST /api/fraud/predict. The policy query parameter
// selects a policy; without it the configured default applies.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	h.predict(w, r, r.URL.Query().Get("policy"))
}

// PredictFull handles POST /api/fraud/predict/full.
func (h *Handler) PredictFull(w http.ResponseWriter, r *http.Request) {
	h.predict(w, r, domain.PolicyFull)
}

// PredictSimple handles POST /api/fraud/predict/simple.
func (h *Handler) PredictSimple(w http.ResponseWriter, r *http.Request) {
	h.predict(w, r, domain.PolicySimple)
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request, policy string) {
	ctx := r.Context()

	var req domain.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr):
			writeValidation(w, "invalid prediction request", []scoring.FieldError{
				{Field: typeErr.Field, Message: "expected " + typeErr.Type.String()},
			})
		case errors.Is(err, io.EOF):
			writeValidation(w, "invalid prediction request", []scoring.FieldError{
				{Field: "body", Message: "request body is required"},
			})
		default:
			writeError(w, http.StatusUnprocessableEntity, "invalid JSON request body")
		}
		return
	}

	pred, err := h.scorer.Predict(ctx, policy, &req)
	if err != nil {
		var verr *scoring.ValidationError
		switch {
		case errors.As(err, &verr):
			writeValidation(w, "invalid prediction request", verr.Fields)
		case errors.Is(err, scoring.ErrUnknownPolicy):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			slog.Warn("prediction abandoned", "policy", policy, "error", err)
			writeError(w, http.StatusServiceUnavailable, "prediction cancelled")
		default:
			slog.Error("prediction failed", "policy", policy, "error", err)
			writeError(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}

	h.metrics.ObservePrediction(pred)
	if err := worker.PublishPrediction(ctx, h.bus, GetRequestID(ctx), req.ToInput(), pred); err != nil {
		slog.Warn("failed to publish prediction",
			"prediction_id", pred.ID,
			"error", err,
		)
	}

	writeJSON(w, http.StatusOK, pred.ToResponse())
}
