package analytics

import (
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionFilter selects transactions for a listing. Nil fields do not filter.
type TransactionFilter struct {
	ClientID  *int64
	MinAmount *float64
	MaxAmount *float64
	StartDate *time.Time
	EndDate   *time.Time
}

// Match reports whether tx passes every set filter. Date filters exclude
// rows without a timestamp.
func (f *TransactionFilter) Match(tx *domain.Transaction) bool {
	if f.ClientID != nil && tx.ClientID != *f.ClientID {
		return false
	}
	if f.MinAmount != nil && tx.Amount.LessThan(decimal.NewFromFloat(*f.MinAmount)) {
		return false
	}
	if f.MaxAmount != nil && tx.Amount.GreaterThan(decimal.NewFromFloat(*f.MaxAmount)) {
		return false
	}
	if f.StartDate != nil && (tx.Date == nil || tx.Date.Before(*f.StartDate)) {
		return false
	}
	if f.EndDate != nil && (tx.Date == nil || tx.Date.After(*f.EndDate)) {
		return false
	}
	return true
}

// ListTransactions pages through the transactions matching f.
func ListTransactions(txs []domain.Transaction, f TransactionFilter, offset, limit int) domain.TransactionPage {
	page := domain.TransactionPage{Offset: offset, Limit: limit, Data: []domain.TransactionView{}}
	for i := range txs {
		if !f.Match(&txs[i]) {
			continue
		}
		if page.Total >= offset && len(page.Data) < limit {
			page.Data = append(page.Data, txs[i].View())
		}
		page.Total++
	}
	return page
}

// SearchQuery is the body of a transaction search.
type SearchQuery struct {
	// Type matches the usage channel exactly.
	Type *string `json:"type"`

	// IsFraud restricts results to labelled rows with the given verdict.
	IsFraud *bool `json:"isFraud"`

	// AmountRange is an inclusive [min, max] pair.
	AmountRange []float64 `json:"amount_range"`
}

// Search returns every transaction matching q. When IsFraud is set,
// unlabelled transactions never match.
func Search(txs []domain.Transaction, labels map[int64]bool, q SearchQuery) domain.TransactionPage {
	var lo, hi *decimal.Decimal
	if len(q.AmountRange) == 2 {
		l, h := decimal.NewFromFloat(q.AmountRange[0]), decimal.NewFromFloat(q.AmountRange[1])
		lo, hi = &l, &h
	}

	data := []domain.TransactionView{}
	for i := range txs {
		tx := &txs[i]
		if q.Type != nil {
			if channel, ok := tx.Channel(); !ok || channel != *q.Type {
				continue
			}
		}
		if q.IsFraud != nil {
			fraud, labelled := labels[tx.ID]
			if !labelled || fraud != *q.IsFraud {
				continue
			}
		}
		if lo != nil && (tx.Amount.LessThan(*lo) || tx.Amount.GreaterThan(*hi)) {
			continue
		}
		data = append(data, tx.View())
	}
	return domain.TransactionPage{Total: len(data), Offset: 0, Limit: len(data), Data: data}
}

// Recent returns the n newest transactions. Undated rows sort last and ties
// keep table order.
func Recent(txs []domain.Transaction, n int) domain.TransactionPage {
	idx := make([]int, len(txs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		da, db := txs[idx[a]].Date, txs[idx[b]].Date
		switch {
		case da == nil:
			return false
		case db == nil:
			return true
		default:
			return da.After(*db)
		}
	})

	limit := n
	if n < 0 {
		n = 0
	}
	if n > len(idx) {
		n = len(idx)
	}
	data := make([]domain.TransactionView, 0, n)
	for _, i := range idx[:n] {
		data = append(data, txs[i].View())
	}
	return domain.TransactionPage{Total: len(data), Offset: 0, Limit: limit, Data: data}
}

// FindTransaction returns the transaction with the given id.
func FindTransaction(txs []domain.Transaction, id int64) (*domain.Transaction, bool) {
	for i := range txs {
		if txs[i].ID == id {
			return &txs[i], true
		}
	}
	return nil, false
}

// TransactionTypes lists the distinct usage channels in first-appearance order.
func TransactionTypes(txs []domain.Transaction) []string {
	seen := make(map[string]struct{})
	types := []string{}
	for i := range txs {
		channel, ok := txs[i].Channel()
		if !ok {
			continue
		}
		if _, dup := seen[channel]; dup {
			continue
		}
		seen[channel] = struct{}{}
		types = append(types, channel)
	}
	return types
}
