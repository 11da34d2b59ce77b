// Package reconcile joins the transaction table with the fraud-label table
// on a canonical string identifier.
package reconcile

import (
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Result is the reconciled table plus the counts needed to see what the
// inner join dropped.
type Result struct {
	Records []domain.ReconciledRecord

	// TransactionCount and LabelCount are the raw input sizes.
	TransactionCount int
	LabelCount       int

	// Unmatched counts transactions that had no label.
	Unmatched int

	// DuplicateLabels counts label rows ignored because an earlier row
	// already claimed the same key.
	DuplicateLabels int
}

// Len returns the number of reconciled rows.
func (r *Result) Len() int {
	return len(r.Records)
}

// NormalizeLabels applies the label-side normalization steps in order:
// promote a positional index to an identifier column, rename the label
// column to its canonical name, then key every row by its canonical id.
// The input table is not modified.
func NormalizeLabels(table *domain.LabelTable) (keys []string, labels *domain.LabelTable) {
	if table == nil {
		return nil, &domain.LabelTable{IDColumn: domain.IDColumn, LabelColumn: domain.LabelColumn}
	}

	out := &domain.LabelTable{
		IDColumn:    table.IDColumn,
		LabelColumn: table.LabelColumn,
		Rows:        table.Rows,
	}

	positional := out.IDColumn == ""
	if positional {
		out.IDColumn = domain.IDColumn
	}
	if out.LabelColumn != domain.LabelColumn {
		out.LabelColumn = domain.LabelColumn
	}

	keys = make([]string, len(out.Rows))
	for i := range out.Rows {
		if positional {
			keys[i] = CanonicalKey(out.Rows[i].Index)
		} else {
			keys[i] = CanonicalKey(out.Rows[i].ID)
		}
	}
	return keys, out
}

// Join inner-joins transactions with labels on the canonical identifier.
// Output rows follow transaction order. Empty or missing inputs give an
// empty result.
func Join(txs []domain.Transaction, labels *domain.LabelTable) *Result {
	res := &Result{
		Records:          []domain.ReconciledRecord{},
		TransactionCount: len(txs),
		LabelCount:       labels.Len(),
	}

	keys, normalized := NormalizeLabels(labels)

	byKey := make(map[string]string, len(keys))
	for i, key := range keys {
		if key == "" {
			continue
		}
		if _, dup := byKey[key]; dup {
			res.DuplicateLabels++
			continue
		}
		byKey[key] = normalized.Rows[i].Label
	}

	if len(byKey) > 0 {
		res.Records = make([]domain.ReconciledRecord, 0, min(len(txs), len(byKey)))
	}
	for i := range txs {
		key := strconv.FormatInt(txs[i].ID, 10)
		label, ok := byKey[key]
		if !ok {
			res.Unmatched++
			continue
		}
		res.Records = append(res.Records, domain.ReconciledRecord{
			Key:         key,
			Transaction: &txs[i],
			Label:       label,
		})
	}
	return res
}

// Snapshot reconciles the tables of a snapshot.
func Snapshot(snap *domain.Snapshot) *Result {
	if snap == nil {
		return Join(nil, nil)
	}
	return Join(snap.Transactions, snap.Labels)
}
