package analytics

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type typeTally struct {
	total  int
	frauds int
}

// tallyByType groups reconciled rows by usage channel, skipping rows
// without one. order lists channels by first appearance.
func tallyByType(records []domain.ReconciledRecord) (order []string, tallies map[string]*typeTally) {
	tallies = make(map[string]*typeTally)
	for i := range records {
		channel, ok := records[i].Transaction.Channel()
		if !ok {
			continue
		}
		t, seen := tallies[channel]
		if !seen {
			t = &typeTally{}
			tallies[channel] = t
			order = append(order, channel)
		}
		t.total++
		if records[i].IsFraud() {
			t.frauds++
		}
	}
	return order, tallies
}

// FraudRateByType returns the fraud rate of each usage channel, sorted by
// channel name. Rates are rounded to four places.
func FraudRateByType(records []domain.ReconciledRecord) []domain.TypeFraudRate {
	order, tallies := tallyByType(records)
	sort.Strings(order)

	out := make([]domain.TypeFraudRate, 0, len(order))
	for _, channel := range order {
		t := tallies[channel]
		out = append(out, domain.TypeFraudRate{
			Type:              channel,
			FraudRate:         domain.Round(ratio(t.frauds, t.total), 4),
			TotalTransactions: t.total,
		})
	}
	return out
}

// FraudBreakdownByType returns the percent variant of the per-channel fraud
// rate, in order of first appearance. Percentages are rounded to two places.
func FraudBreakdownByType(records []domain.ReconciledRecord) []domain.TypeFraudBreakdown {
	order, tallies := tallyByType(records)

	out := make([]domain.TypeFraudBreakdown, 0, len(order))
	for _, channel := range order {
		t := tallies[channel]
		out = append(out, domain.TypeFraudBreakdown{
			Type:                   channel,
			TotalTransactions:      t.total,
			FraudulentTransactions: t.frauds,
			FraudRatePercent:       domain.Round(ratio(t.frauds, t.total)*100, 2),
		})
	}
	return out
}
