// Package analytics derives fraud ratios and descriptive statistics from the
// reconciled and raw dataset tables. Every function is a pure computation
// over immutable input and degrades to zero values on empty data.
package analytics

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// SummaryCounts are the raw tallies behind a FraudSummary.
type SummaryCounts struct {
	Rows          int
	TotalFrauds   int
	Flagged       int
	TruePositives int
}

// CountSummary tallies positive labels and flagged rows.
// "Flagged" means a non-empty error annotation: a crude proxy for a
// system-detected anomaly, not a real detector output.
func CountSummary(records []domain.ReconciledRecord) SummaryCounts {
	c := SummaryCounts{Rows: len(records)}
	for i := range records {
		fraud := records[i].IsFraud()
		flagged := records[i].Transaction.Flagged()
		if fraud {
			c.TotalFrauds++
		}
		if flagged {
			c.Flagged++
		}
		if fraud && flagged {
			c.TruePositives++
		}
	}
	return c
}

// Precision is true positives over flagged rows, 0 when nothing is flagged.
func (c SummaryCounts) Precision() float64 {
	return ratio(c.TruePositives, c.Flagged)
}

// Recall is true positives over positive labels, 0 when there are none.
func (c SummaryCounts) Recall() float64 {
	return ratio(c.TruePositives, c.TotalFrauds)
}

// Summary computes the fraud summary of a reconciled table.
// Ratios are rounded to two places only here, at the presentation step.
func Summary(records []domain.ReconciledRecord) domain.FraudSummary {
	c := CountSummary(records)
	return domain.FraudSummary{
		TotalFrauds: c.TotalFrauds,
		Flagged:     c.Flagged,
		Precision:   domain.Round(c.Precision(), 2),
		Recall:      domain.Round(c.Recall(), 2),
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
