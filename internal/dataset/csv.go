package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// row gives header-addressed access to one CSV record.
type row struct {
	cols   map[string]int
	values []string
	line   int
}

func (r row) get(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

func (r row) optString(name string) *string {
	v := r.get(name)
	if v == "" || strings.EqualFold(v, "nan") {
		return nil
	}
	return &v
}

// rawString keeps the cell untrimmed. Only an empty cell or a NaN marker is
// absent, so a whitespace-only annotation still counts as present.
func (r row) rawString(name string) *string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.values) {
		return nil
	}
	v := r.values[i]
	if v == "" || strings.EqualFold(strings.TrimSpace(v), "nan") {
		return nil
	}
	return &v
}

func (r row) requiredInt(name string) (int64, error) {
	v := r.get(name)
	n, err := parseInt(v)
	if err != nil {
		return 0, fmt.Errorf("line %d: column %s: %w", r.line, name, err)
	}
	return n, nil
}

func (r row) optInt64(name string) *int64 {
	n, err := parseInt(r.get(name))
	if err != nil {
		return nil
	}
	return &n
}

func (r row) intOrZero(name string) int {
	n, _ := parseInt(r.get(name))
	return int(n)
}

func (r row) floatOrZero(name string) float64 {
	f, _ := strconv.ParseFloat(r.get(name), 64)
	return f
}

// parseInt accepts integral values written as floats ("58523.0").
func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty value")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("non-integral value %q", s)
	}
	return int64(f), nil
}

var dateLayouts = []string{
	domain.DateLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDate returns nil for values that match no known layout.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// readCSV streams records to fn with header-based column lookup.
func readCSV(r io.Reader, required []string, fn func(row) error) error {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return fmt.Errorf("missing required column %q", name)
		}
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(row{cols: cols, values: rec, line: line}); err != nil {
			return err
		}
	}
}

// ReadTransactions parses the transaction CSV.
// id, client_id, card_id and amount are required on every row.
func ReadTransactions(r io.Reader) ([]domain.Transaction, error) {
	txs := make([]domain.Transaction, 0, 1024)
	err := readCSV(r, []string{"id", "client_id", "card_id", "amount"}, func(rw row) error {
		var tx domain.Transaction
		var err error

		if tx.ID, err = rw.requiredInt("id"); err != nil {
			return err
		}
		if tx.ClientID, err = rw.requiredInt("client_id"); err != nil {
			return err
		}
		if tx.CardID, err = rw.requiredInt("card_id"); err != nil {
			return err
		}
		if tx.Amount, err = ParseAmount(rw.get("amount")); err != nil {
			return fmt.Errorf("line %d: %w", rw.line, err)
		}

		tx.Date = parseDate(rw.get("date"))
		tx.UseChip = rw.optString("use_chip")
		tx.MerchantID = rw.optInt64("merchant_id")
		tx.MerchantCity = rw.optString("merchant_city")
		tx.MerchantState = rw.optString("merchant_state")
		tx.Zip = rw.optString("zip")
		if mcc := rw.optInt64("mcc"); mcc != nil {
			v := int(*mcc)
			tx.MCC = &v
		}
		tx.Errors = rw.rawString("errors")

		txs = append(txs, tx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// ReadUsers parses the user CSV.
func ReadUsers(r io.Reader) ([]domain.User, error) {
	users := make([]domain.User, 0, 256)
	err := readCSV(r, []string{"id"}, func(rw row) error {
		id, err := rw.requiredInt("id")
		if err != nil {
			return err
		}
		users = append(users, domain.User{
			ID:              id,
			CurrentAge:      rw.intOrZero("current_age"),
			RetirementAge:   rw.intOrZero("retirement_age"),
			BirthYear:       rw.intOrZero("birth_year"),
			BirthMonth:      rw.intOrZero("birth_month"),
			Gender:          rw.get("gender"),
			Address:         rw.get("address"),
			Latitude:        rw.floatOrZero("latitude"),
			Longitude:       rw.floatOrZero("longitude"),
			PerCapitaIncome: rw.get("per_capita_income"),
			YearlyIncome:    rw.get("yearly_income"),
			TotalDebt:       rw.get("total_debt"),
			CreditScore:     rw.intOrZero("credit_score"),
			NumCreditCards:  rw.intOrZero("num_credit_cards"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}
