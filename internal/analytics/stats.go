package analytics

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// amountBins are closed on the right; the first bin also includes its lower edge.
var amountBins = []struct {
	label    string
	low, top decimal.Decimal
}{
	{"0-100", decimal.NewFromInt(0), decimal.NewFromInt(100)},
	{"100-500", decimal.NewFromInt(100), decimal.NewFromInt(500)},
	{"500-1000", decimal.NewFromInt(500), decimal.NewFromInt(1000)},
	{"1000-5000", decimal.NewFromInt(1000), decimal.NewFromInt(5000)},
}

// Overview computes headline statistics over the raw transaction table.
// fraud_rate is positive labels over all transactions, not over the
// reconciled set.
func Overview(txs []domain.Transaction, labels *domain.LabelTable) domain.Overview {
	ov := domain.Overview{TotalTransactions: len(txs)}
	if len(txs) == 0 {
		return ov
	}

	positives := 0
	if labels != nil {
		for _, row := range labels.Rows {
			if row.Label == domain.LabelPositive {
				positives++
			}
		}
	}
	ov.FraudRate = domain.Round(ratio(positives, len(txs)), 5)
	ov.AvgAmount = mean(sumAmounts(txs), len(txs))

	counts := make(map[string]int)
	for i := range txs {
		if channel, ok := txs[i].Channel(); ok {
			counts[channel]++
		}
	}
	if mode, ok := modeOf(counts); ok {
		ov.MostCommonType = &mode
	}
	return ov
}

// AmountDistribution counts transactions per amount bin. Amounts outside
// [0, 5000] fall in no bin.
func AmountDistribution(txs []domain.Transaction) domain.AmountDistribution {
	dist := domain.AmountDistribution{
		Bins:   make([]string, len(amountBins)),
		Counts: make([]int, len(amountBins)),
	}
	for i, b := range amountBins {
		dist.Bins[i] = b.label
	}

	for i := range txs {
		amt := txs[i].Amount
		for j, b := range amountBins {
			lowOK := amt.GreaterThan(b.low) || (j == 0 && amt.Equal(b.low))
			if lowOK && amt.LessThanOrEqual(b.top) {
				dist.Counts[j]++
				break
			}
		}
	}
	return dist
}

// StatsByType returns volume and mean amount per usage channel, sorted by channel.
func StatsByType(txs []domain.Transaction) []domain.TypeStats {
	type acc struct {
		count int
		sum   decimal.Decimal
	}
	groups := make(map[string]*acc)
	for i := range txs {
		channel, ok := txs[i].Channel()
		if !ok {
			continue
		}
		g, seen := groups[channel]
		if !seen {
			g = &acc{sum: decimal.Zero}
			groups[channel] = g
		}
		g.count++
		g.sum = g.sum.Add(txs[i].Amount)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.TypeStats, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		out = append(out, domain.TypeStats{Type: k, Count: g.count, AvgAmount: mean(g.sum, g.count)})
	}
	return out
}

// Daily returns volume and mean amount per calendar day, oldest first.
// Transactions without a timestamp are skipped.
func Daily(txs []domain.Transaction) []domain.DailyStats {
	type acc struct {
		count int
		sum   decimal.Decimal
	}
	days := make(map[string]*acc)
	for i := range txs {
		if txs[i].Date == nil {
			continue
		}
		day := txs[i].Date.Format("2006-01-02")
		d, seen := days[day]
		if !seen {
			d = &acc{sum: decimal.Zero}
			days[day] = d
		}
		d.count++
		d.sum = d.sum.Add(txs[i].Amount)
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.DailyStats, 0, len(keys))
	for _, k := range keys {
		d := days[k]
		out = append(out, domain.DailyStats{Date: k, Volume: d.count, AvgAmount: mean(d.sum, d.count)})
	}
	return out
}

func sumAmounts(txs []domain.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for i := range txs {
		sum = sum.Add(txs[i].Amount)
	}
	return sum
}

// mean divides in decimal and rounds to cents.
func mean(sum decimal.Decimal, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(2).InexactFloat64()
}

// modeOf returns the most frequent key; ties go to the smallest key.
func modeOf(counts map[string]int) (string, bool) {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best, bestN > 0
}
