// Package worker consumes prediction events from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tadp"
)

// PredictionEvent is the payload published for every scored prediction.
type PredictionEvent struct {
	RequestID  string              `json:"requestId,omitempty"`
	Input      domain.ScoringInput `json:"input"`
	Prediction *domain.Prediction  `json:"prediction"`
}

// PublishPrediction emits the scored event and, for fraud verdicts, the alert
// event.
func PublishPrediction(ctx context.Context, bus domain.EventBus, requestID string, in domain.ScoringInput, p *domain.Prediction) error {
	payload, err := json.Marshal(PredictionEvent{RequestID: requestID, Input: in, Prediction: p})
	if err != nil {
		return fmt.Errorf("failed to marshal prediction event: %w", err)
	}
	if err := bus.Publish(ctx, domain.TopicPredictionScored, payload); err != nil {
		return fmt.Errorf("failed to publish scored event: %w", err)
	}
	if tadp.ShouldAlert(p) {
		if err := bus.Publish(ctx, domain.TopicPredictionAlert, payload); err != nil {
			return fmt.Errorf("failed to publish alert: %w", err)
		}
	}
	return nil
}

// Worker follows the prediction topics and keeps running totals. Alerts are
// logged at warn level.
type Worker struct {
	bus domain.EventBus

	mu            sync.Mutex
	subscriptions []domain.Subscription
	scored        map[string]int64
	alerts        int64
	failures      int64
	lastAlert     time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorker creates a worker reading from bus.
func NewWorker(bus domain.EventBus) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		scored: make(map[string]int64),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the scored and alert topics.
func (w *Worker) Start() error {
	handlers := []struct {
		topic   string
		handler domain.MessageHandler
	}{
		{domain.TopicPredictionScored, w.handleScored},
		{domain.TopicPredictionAlert, w.handleAlert},
	}

	for _, h := range handlers {
		sub, err := w.bus.Subscribe(w.ctx, h.topic, h.handler)
		if err != nil {
			w.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", h.topic, err)
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	slog.Info("prediction worker started",
		"topics", []string{domain.TopicPredictionScored, domain.TopicPredictionAlert},
	)
	return nil
}

func (w *Worker) decode(msg *domain.Message) (*PredictionEvent, error) {
	var ev PredictionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		w.mu.Lock()
		w.failures++
		w.mu.Unlock()
		return nil, fmt.Errorf("failed to parse prediction event %s: %w", msg.ID, err)
	}
	if ev.Prediction == nil {
		w.mu.Lock()
		w.failures++
		w.mu.Unlock()
		return nil, fmt.Errorf("prediction event %s has no prediction", msg.ID)
	}
	return &ev, nil
}

func (w *Worker) handleScored(ctx context.Context, msg *domain.Message) error {
	ev, err := w.decode(msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.scored[ev.Prediction.Policy]++
	w.mu.Unlock()

	slog.Debug("prediction scored",
		"prediction_id", ev.Prediction.ID,
		"request_id", ev.RequestID,
		"policy", ev.Prediction.Policy,
		"probability", ev.Prediction.Probability,
	)
	return nil
}

func (w *Worker) handleAlert(ctx context.Context, msg *domain.Message) error {
	ev, err := w.decode(msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.alerts++
	w.lastAlert = ev.Prediction.ScoredAt
	w.mu.Unlock()

	fired := make([]string, 0, len(ev.Prediction.Contributions))
	for _, c := range ev.Prediction.Contributions {
		if c.Fired {
			fired = append(fired, c.RuleID)
		}
	}

	slog.Warn("fraud alert",
		"prediction_id", ev.Prediction.ID,
		"request_id", ev.RequestID,
		"policy", ev.Prediction.Policy,
		"probability", domain.Round(ev.Prediction.Probability, 2),
		"amount", ev.Input.Amount,
		"type", ev.Input.Type,
		"rules", fired,
		"reasons", tadp.GetReasons(ev.Prediction),
	)
	return nil
}

// Stop unsubscribes from every topic.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	slog.Info("prediction worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int              `json:"subscriptionCount"`
	Topics            []string         `json:"topics"`
	Scored            map[string]int64 `json:"scored"`
	Alerts            int64            `json:"alerts"`
	Failures          int64            `json:"failures"`
	LastAlert         *time.Time       `json:"lastAlert,omitempty"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	scored := make(map[string]int64, len(w.scored))
	for k, v := range w.scored {
		scored[k] = v
	}

	st := Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Scored:            scored,
		Alerts:            w.alerts,
		Failures:          w.failures,
	}
	if !w.lastAlert.IsZero() {
		last := w.lastAlert
		st.LastAlert = &last
	}
	return st
}
