// Package scoring runs a transaction through a named heuristic policy.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/tadp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnknownPolicy is returned for a policy name that is not registered.
var ErrUnknownPolicy = errors.New("unknown scoring policy")

type pipeline struct {
	engine    *rules.Engine
	processor *tadp.Processor
}

// PolicyInfo describes a compiled policy and the rules it evaluates, in order.
type PolicyInfo struct {
	Name      string               `json:"name"`
	Default   bool                 `json:"default"`
	BaseRate  float64              `json:"baseRate"`
	Cap       float64              `json:"cap"`
	Threshold float64              `json:"threshold"`
	Rules     []*domain.RuleConfig `json:"rules"`
}

// Scorer holds one compiled pipeline per policy. It is safe for concurrent use.
type Scorer struct {
	pipelines     map[string]*pipeline
	defaultPolicy string
}

// NewScorer compiles every policy. defaultPolicy must be one of them.
func NewScorer(policies map[string]*domain.ScoringPolicy, defaultPolicy string) (*Scorer, error) {
	s := &Scorer{
		pipelines:     make(map[string]*pipeline, len(policies)),
		defaultPolicy: defaultPolicy,
	}

	for name, policy := range policies {
		engine, err := rules.NewEngine()
		if err != nil {
			return nil, err
		}
		if err := engine.LoadRules(policy.Rules); err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		s.pipelines[name] = &pipeline{
			engine:    engine,
			processor: tadp.NewProcessor(policy),
		}
	}

	if _, ok := s.pipelines[defaultPolicy]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownPolicy, defaultPolicy)
	}
	return s, nil
}

// NewBuiltinScorer creates a scorer with the full and simple policies.
func NewBuiltinScorer(defaultPolicy string) (*Scorer, error) {
	return NewScorer(rules.BuiltinPolicies(), defaultPolicy)
}

// DefaultPolicy returns the policy used when none is named.
func (s *Scorer) DefaultPolicy() string {
	return s.defaultPolicy
}

// Policies returns the registered policy names, sorted.
func (s *Scorer) Policies() []string {
	names := make([]string, 0, len(s.pipelines))
	for name := range s.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe lists every policy with its loaded rules, sorted by name.
func (s *Scorer) Describe() []PolicyInfo {
	out := make([]PolicyInfo, 0, len(s.pipelines))
	for _, name := range s.Policies() {
		p := s.pipelines[name]
		out = append(out, PolicyInfo{
			Name:      name,
			Default:   name == s.defaultPolicy,
			BaseRate:  p.processor.BaseRate,
			Cap:       p.processor.Cap,
			Threshold: p.processor.AlertThreshold,
			Rules:     p.engine.GetLoadedRules(),
		})
	}
	return out
}

// Score evaluates the input under the named policy. An empty name selects
// the default policy.
func (s *Scorer) Score(ctx context.Context, policy string, in domain.ScoringInput) (*domain.Prediction, error) {
	if policy == "" {
		policy = s.defaultPolicy
	}
	p, ok := s.pipelines[policy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	ctx, span := otel.Tracer("kestrel/scoring").Start(ctx, "score")
	defer span.End()

	start := time.Now()
	results, err := p.engine.Evaluate(ctx, in)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("policy %s: %w", policy, err)
	}
	pred := p.processor.Process(ctx, &tadp.DecisionInput{
		RuleResults: results,
		StartTime:   start,
	})

	span.SetAttributes(
		attribute.String("scoring.policy", policy),
		attribute.Float64("scoring.probability", pred.Probability),
		attribute.Bool("scoring.is_fraud", pred.IsFraud),
	)
	return pred, nil
}

// Predict validates a request and scores it.
func (s *Scorer) Predict(ctx context.Context, policy string, req *domain.PredictionRequest) (*domain.Prediction, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	return s.Score(ctx, policy, req.ToInput())
}

// Close releases the compiled programs.
func (s *Scorer) Close() error {
	for _, p := range s.pipelines {
		p.engine.Close()
	}
	return nil
}
