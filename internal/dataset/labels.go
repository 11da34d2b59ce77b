package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Recognized identifier and label column names, in preference order.
var (
	idColumns    = []string{"id", "transaction_id"}
	labelColumns = []string{domain.LabelColumn, "target", "isFraud", "label"}
)

// ReadLabels decodes a fraud-label document. Two layouts are accepted:
//
//	{"target": {"10649266": "No", ...}}        index-keyed column
//	[{"transaction_id": 1, "is_fraud": "Yes"}] record list
//
// Index-keyed documents produce a table without an identifier column;
// reconciliation promotes the index. Row order follows the document.
func ReadLabels(r io.Reader) (*domain.LabelTable, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &domain.LabelTable{}, nil
		}
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}

	switch tok {
	case json.Delim('{'):
		return readIndexedLabels(dec)
	case json.Delim('['):
		return readRecordLabels(dec)
	default:
		return nil, fmt.Errorf("unexpected labels document start %v", tok)
	}
}

func readIndexedLabels(dec *json.Decoder) (*domain.LabelTable, error) {
	table := &domain.LabelTable{}
	var idColumn string
	var idByIndex map[string]any

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read column name: %w", err)
		}
		column, _ := tok.(string)

		if idByIndex == nil && contains(idColumns, column) {
			if err := dec.Decode(&idByIndex); err != nil {
				return nil, fmt.Errorf("failed to read column %q: %w", column, err)
			}
			idColumn = column
			continue
		}

		if table.LabelColumn != "" || !contains(labelColumns, column) {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("failed to skip column %q: %w", column, err)
			}
			continue
		}
		table.LabelColumn = column

		if tok, err = dec.Token(); err != nil || tok != json.Delim('{') {
			return nil, fmt.Errorf("column %q is not an object", column)
		}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("failed to read label key: %w", err)
			}
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("failed to read label value: %w", err)
			}
			table.Rows = append(table.Rows, domain.LabelRow{
				Index: fmt.Sprint(keyTok),
				Label: labelString(v),
			})
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("failed to close column %q: %w", column, err)
		}
	}

	if table.LabelColumn == "" {
		return nil, errors.New("labels document has no fraud indicator column")
	}

	// A column-oriented frame with an explicit identifier column.
	if idByIndex != nil {
		table.IDColumn = idColumn
		for i := range table.Rows {
			table.Rows[i].ID = idByIndex[table.Rows[i].Index]
		}
	}
	return table, nil
}

func readRecordLabels(dec *json.Decoder) (*domain.LabelTable, error) {
	table := &domain.LabelTable{}

	for pos := 0; dec.More(); pos++ {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", pos, err)
		}

		if table.LabelColumn == "" {
			table.LabelColumn = firstPresent(rec, labelColumns)
			table.IDColumn = firstPresent(rec, idColumns)
			if table.LabelColumn == "" {
				return nil, fmt.Errorf("record %d has no fraud indicator column", pos)
			}
		}

		labelRow := domain.LabelRow{
			Index: strconv.Itoa(pos),
			Label: labelString(rec[table.LabelColumn]),
		}
		if table.IDColumn != "" {
			labelRow.ID = rec[table.IDColumn]
		}
		table.Rows = append(table.Rows, labelRow)
	}
	return table, nil
}

// labelString keeps categorical labels as-is and maps boolean or 0/1
// indicators onto the Yes/No categories.
func labelString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return domain.LabelPositive
		}
		return domain.LabelNegative
	case json.Number:
		if f, err := x.Float64(); err == nil {
			if f == 1 {
				return domain.LabelPositive
			}
			if f == 0 {
				return domain.LabelNegative
			}
		}
		return x.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func contains(names []string, name string) bool {
	for _, c := range names {
		if c == name {
			return true
		}
	}
	return false
}

func firstPresent(rec map[string]any, names []string) string {
	for _, n := range names {
		if _, ok := rec[n]; ok {
			return n
		}
	}
	return ""
}

// ReadMCCCodes decodes the {"<code>": "<description>"} merchant category map.
func ReadMCCCodes(r io.Reader) (map[string]string, error) {
	codes := make(map[string]string)
	if err := json.NewDecoder(r).Decode(&codes); err != nil {
		if errors.Is(err, io.EOF) {
			return codes, nil
		}
		return nil, fmt.Errorf("failed to decode mcc codes: %w", err)
	}
	return codes, nil
}
