// Package tadp implements the Transaction Aggregated Decision Processor.
// TADP folds ordered rule contributions into a bounded probability and a verdict.
package tadp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Processor aggregates rule results under one scoring policy.
type Processor struct {
	Policy string

	// BaseRate is the starting probability.
	BaseRate float64

	Floor float64
	Cap   float64

	// AlertThreshold is exclusive: a probability equal to it is not fraud.
	AlertThreshold float64
}

// NewProcessor creates a processor carrying the decision parameters of a policy.
func NewProcessor(policy *domain.ScoringPolicy) *Processor {
	return &Processor{
		Policy:         policy.Name,
		BaseRate:       policy.BaseRate,
		Floor:          policy.Floor,
		Cap:            policy.Cap,
		AlertThreshold: policy.Threshold,
	}
}

// DecisionInput contains all data needed for a decision.
type DecisionInput struct {
	RuleResults []domain.RuleResult
	StartTime   time.Time
}

// Process sums the rule contributions onto the base rate in order, clamps the
// total and applies the threshold.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Prediction {
	probability := p.aggregate(input.RuleResults)

	pred := &domain.Prediction{
		ID:            uuid.New().String(),
		Policy:        p.Policy,
		Probability:   probability,
		IsFraud:       probability > p.AlertThreshold,
		Contributions: input.RuleResults,
		ScoredAt:      time.Now().UTC(),
	}
	if !input.StartTime.IsZero() {
		pred.ProcessMs = time.Since(input.StartTime).Milliseconds()
	}

	return pred
}

// aggregate adds contributions left to right. The order matters for the
// floating point result.
func (p *Processor) aggregate(results []domain.RuleResult) float64 {
	score := p.BaseRate
	for _, r := range results {
		score += r.Score
	}
	return clamp(score, p.Floor, p.Cap)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ShouldAlert returns true if the prediction is a fraud verdict.
func ShouldAlert(pred *domain.Prediction) bool {
	return pred.IsFraud
}

// GetReasons extracts human-readable reasons from the rules that fired.
func GetReasons(pred *domain.Prediction) []string {
	var reasons []string
	for _, r := range pred.Contributions {
		if r.Fired && r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}
