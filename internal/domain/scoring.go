package domain

import "time"

// Scoring policy names.
const (
	PolicyFull   = "full"
	PolicySimple = "simple"
)

// ScoringInput is a single transaction presented for heuristic scoring.
type ScoringInput struct {
	Amount     float64
	Type       string
	OldBalance float64
	NewBalance float64
}

// BalanceDiff is the observed movement on the originating account.
func (in ScoringInput) BalanceDiff() float64 {
	return in.OldBalance - in.NewBalance
}

// PredictionRequest is the API request payload for fraud scoring.
// Fields are pointers so that an absent field is distinguishable from zero.
type PredictionRequest struct {
	Amount         *float64 `json:"amount" validate:"required"`
	Type           *string  `json:"type" validate:"required"`
	OldBalanceOrg  *float64 `json:"oldbalanceOrg" validate:"required"`
	NewBalanceOrig *float64 `json:"newbalanceOrig" validate:"required"`
}

// ToInput converts a validated request to a scoring input.
func (r *PredictionRequest) ToInput() ScoringInput {
	return ScoringInput{
		Amount:     *r.Amount,
		Type:       *r.Type,
		OldBalance: *r.OldBalanceOrg,
		NewBalance: *r.NewBalanceOrig,
	}
}

// PredictionResponse is the API response for fraud scoring.
type PredictionResponse struct {
	IsFraud     bool    `json:"isFraud"`
	Probability float64 `json:"probability"`
}

// Prediction is the full outcome of scoring one input under one policy.
type Prediction struct {
	ID            string       `json:"id"`
	Policy        string       `json:"policy"`
	Probability   float64      `json:"probability"`
	IsFraud       bool         `json:"isFraud"`
	Contributions []RuleResult `json:"contributions"`
	ScoredAt      time.Time    `json:"scoredAt"`
	ProcessMs     int64        `json:"processMs"`
}

// ToResponse converts a prediction to the API response, rounding the probability.
func (p *Prediction) ToResponse() *PredictionResponse {
	return &PredictionResponse{
		IsFraud:     p.IsFraud,
		Probability: Round(p.Probability, 2),
	}
}

// RuleConfig defines one additive scoring rule.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// CEL expression yielding the rule's contribution (double) or a bool.
	Expression string `json:"expression"`

	// Weight is the contribution of a rule whose expression yields a bool.
	Weight float64 `json:"weight"`

	Enabled bool `json:"enabled"`
}

// RuleResult is the output of a rule evaluation.
type RuleResult struct {
	RuleID string  `json:"ruleId"`
	Score  float64 `json:"score"`
	Fired  bool    `json:"fired"`
	Reason string  `json:"reason,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// ScoringPolicy is a named, ordered rule set with its decision parameters.
type ScoringPolicy struct {
	Name string `json:"name"`

	// BaseRate is the probability before any rule contributes.
	BaseRate float64 `json:"baseRate"`

	// Floor and Cap bound the final probability.
	Floor float64 `json:"floor"`
	Cap   float64 `json:"cap"`

	// Threshold is the strict lower bound for a fraud verdict.
	Threshold float64 `json:"threshold"`

	Rules []*RuleConfig `json:"rules"`
}
