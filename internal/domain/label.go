package domain

// Canonical column names and label values of the reconciled table.
const (
	IDColumn    = "id"
	LabelColumn = "is_fraud"

	LabelPositive = "Yes"
	LabelNegative = "No"
)

// LabelRow is one fraud label as it appeared in its source.
type LabelRow struct {
	// Index is the row key: the JSON object key for index-keyed sources,
	// or the ordinal position for record-oriented sources.
	Index string

	// ID is the raw identifier value (int64, float64, string or json.Number).
	// Nil when the source has no explicit identifier column.
	ID any

	// Label is the categorical fraud indicator, normally "Yes" or "No".
	Label string
}

// LabelTable is the fraud-label source before reconciliation.
type LabelTable struct {
	// IDColumn names the explicit identifier column.
	// Empty when labels are keyed by row position.
	IDColumn string

	// LabelColumn names the fraud indicator column (e.g. "target").
	LabelColumn string

	Rows []LabelRow
}

// Len returns the number of label rows. A nil table has none.
func (t *LabelTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ReconciledRecord is a transaction joined with exactly one fraud label.
type ReconciledRecord struct {
	// Key is the canonical string identifier both sides were joined on.
	Key         string
	Transaction *Transaction
	Label       string
}

// IsFraud reports whether the label is the positive category.
func (r *ReconciledRecord) IsFraud() bool {
	return r.Label == LabelPositive
}
