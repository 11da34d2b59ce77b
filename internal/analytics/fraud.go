package analytics

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Statistics summarizes the labelled set: size, positives and the amount
// carried by positive rows.
func Statistics(records []domain.ReconciledRecord) domain.FraudStatistics {
	stats := domain.FraudStatistics{TotalTransactions: len(records)}

	fraudAmount := decimal.Zero
	for i := range records {
		if records[i].IsFraud() {
			stats.FraudulentTransactions++
			fraudAmount = fraudAmount.Add(records[i].Transaction.Amount)
		}
	}

	stats.FraudPercentage = domain.Round(ratio(stats.FraudulentTransactions, stats.TotalTransactions)*100, 2)
	stats.TotalFraudAmount = fraudAmount.Round(2).InexactFloat64()
	return stats
}

// Suspicious returns labelled rows whose amount is at least threshold, in
// table order, starting at offset and capped at limit (limit <= 0 means no cap).
// total is the number of matching rows before paging.
func Suspicious(records []domain.ReconciledRecord, threshold float64, offset, limit int) (out []domain.LabelledTransaction, total int) {
	floor := decimal.NewFromFloat(threshold)
	out = []domain.LabelledTransaction{}

	for i := range records {
		if records[i].Transaction.Amount.LessThan(floor) {
			continue
		}
		total++
		if total <= offset || (limit > 0 && len(out) >= limit) {
			continue
		}
		out = append(out, domain.LabelledTransaction{
			TransactionView: records[i].Transaction.View(),
			IsFraud:         records[i].IsFraud(),
		})
	}
	return out, total
}

// Detection builds the labelled outcome of one reconciled row.
func Detection(rec *domain.ReconciledRecord) domain.FraudDetection {
	return domain.FraudDetection{
		TransactionID: rec.Transaction.ID,
		IsFraud:       rec.IsFraud(),
		Amount:        rec.Transaction.AmountValue(),
		ClientID:      rec.Transaction.ClientID,
	}
}
