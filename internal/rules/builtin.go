package rules

import "github.com/opensource-finance/kestrel/internal/domain"

// FullHeuristic is the primary scoring policy. Contributions are added to a
// base rate of 0.1 in rule order and the sum is clamped to [0, 1].
func FullHeuristic() *domain.ScoringPolicy {
	return &domain.ScoringPolicy{
		Name:      domain.PolicyFull,
		BaseRate:  0.1,
		Floor:     0.0,
		Cap:       1.0,
		Threshold: 0.5,
		Rules: []*domain.RuleConfig{
			{
				ID:          "full-amount-tier",
				Name:        "Amount tier",
				Description: "Exclusive tiers above 1000, 2000 and 5000",
				Expression:  `amount > 5000.0 ? 0.4 : (amount > 2000.0 ? 0.3 : (amount > 1000.0 ? 0.2 : 0.0))`,
				Enabled:     true,
			},
			{
				ID:          "full-very-high-amount",
				Name:        "Very high amount",
				Description: "Amount above 10000, cumulative with the tier",
				Expression:  `amount > 10000.0`,
				Weight:      0.3,
				Enabled:     true,
			},
			{
				ID:          "full-balance-mismatch",
				Name:        "Balance inconsistency",
				Description: "Origin balance movement differs from the amount by more than 0.01",
				Expression:  `balance_diff - amount > 0.01 || amount - balance_diff > 0.01`,
				Weight:      0.3,
				Enabled:     true,
			},
			{
				ID:          "full-type-risk",
				Name:        "Risky transaction type",
				Description: "TRANSFER above 1000, otherwise CASH_OUT above 500",
				Expression: `(tx_type.upperAscii() == "TRANSFER" && amount > 1000.0) ? 0.2 :
					((tx_type.upperAscii() == "CASH_OUT" && amount > 500.0) ? 0.15 : 0.0)`,
				Enabled: true,
			},
		},
	}
}

// SimpleHeuristic is the legacy two-rule policy. The type match is exact and
// the result is capped at 0.99.
func SimpleHeuristic() *domain.ScoringPolicy {
	return &domain.ScoringPolicy{
		Name:      domain.PolicySimple,
		BaseRate:  0.0,
		Floor:     0.0,
		Cap:       0.99,
		Threshold: 0.5,
		Rules: []*domain.RuleConfig{
			{
				ID:         "simple-large-transfer",
				Name:       "Large transfer",
				Expression: `tx_type == "TRANSFER" && amount > 1000.0`,
				Weight:     0.4,
				Enabled:    true,
			},
			{
				ID:         "simple-balance-mismatch",
				Name:       "Balance inconsistency",
				Expression: `balance_diff - amount > 0.1 || amount - balance_diff > 0.1`,
				Weight:     0.5,
				Enabled:    true,
			},
		},
	}
}

// BuiltinPolicies returns every policy shipped with the service, keyed by name.
func BuiltinPolicies() map[string]*domain.ScoringPolicy {
	full, simple := FullHeuristic(), SimpleHeuristic()
	return map[string]*domain.ScoringPolicy{
		full.Name:   full,
		simple.Name: simple,
	}
}
