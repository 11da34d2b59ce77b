package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the timestamp layout used by the transaction source and API payloads.
const DateLayout = "2006-01-02 15:04:05"

// Transaction is one row of the card transaction table.
// Optional columns are pointers; nil means the source cell was empty.
type Transaction struct {
	ID       int64           `json:"id"`
	Date     *time.Time      `json:"date"`
	ClientID int64           `json:"client_id"`
	CardID   int64           `json:"card_id"`
	Amount   decimal.Decimal `json:"amount"`

	// UseChip is the usage channel (e.g. "Chip Transaction", "Swipe Transaction").
	UseChip *string `json:"use_chip"`

	MerchantID    *int64  `json:"merchant_id"`
	MerchantCity  *string `json:"merchant_city"`
	MerchantState *string `json:"merchant_state"`
	Zip           *string `json:"zip"`
	MCC           *int    `json:"mcc"`

	// Errors is the error annotation attached by the card network.
	Errors *string `json:"errors"`
}

// Flagged reports whether the row carries a non-empty error annotation.
// This is a crude stand-in for a system-detected anomaly, not a detector output.
func (t *Transaction) Flagged() bool {
	return t.Errors != nil && len(*t.Errors) > 0
}

// Channel returns the usage channel and whether it is present.
func (t *Transaction) Channel() (string, bool) {
	if t.UseChip == nil {
		return "", false
	}
	return *t.UseChip, true
}

// AmountValue returns the amount as a float64 for ratio and scoring math.
func (t *Transaction) AmountValue() float64 {
	return t.Amount.InexactFloat64()
}

// View converts the transaction to its API representation.
func (t *Transaction) View() TransactionView {
	v := TransactionView{
		ID:            t.ID,
		ClientID:      t.ClientID,
		CardID:        t.CardID,
		Amount:        t.AmountValue(),
		UseChip:       t.UseChip,
		MerchantID:    t.MerchantID,
		MerchantCity:  t.MerchantCity,
		MerchantState: t.MerchantState,
		Zip:           t.Zip,
		MCC:           t.MCC,
		Errors:        t.Errors,
	}
	if t.Date != nil {
		s := t.Date.Format(DateLayout)
		v.Date = &s
	}
	return v
}

// TransactionView is the JSON shape of a transaction returned by the API.
type TransactionView struct {
	ID            int64   `json:"id"`
	Date          *string `json:"date"`
	ClientID      int64   `json:"client_id"`
	CardID        int64   `json:"card_id"`
	Amount        float64 `json:"amount"`
	UseChip       *string `json:"use_chip"`
	MerchantID    *int64  `json:"merchant_id"`
	MerchantCity  *string `json:"merchant_city"`
	MerchantState *string `json:"merchant_state"`
	Zip           *string `json:"zip"`
	MCC           *int    `json:"mcc"`
	Errors        *string `json:"errors"`
}

// User is one row of the customer table.
// Income and debt columns stay in their source currency format.
type User struct {
	ID              int64   `json:"id"`
	CurrentAge      int     `json:"current_age"`
	RetirementAge   int     `json:"retirement_age"`
	BirthYear       int     `json:"birth_year"`
	BirthMonth      int     `json:"birth_month"`
	Gender          string  `json:"gender"`
	Address         string  `json:"address"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	PerCapitaIncome string  `json:"per_capita_income"`
	YearlyIncome    string  `json:"yearly_income"`
	TotalDebt       string  `json:"total_debt"`
	CreditScore     int     `json:"credit_score"`
	NumCreditCards  int     `json:"num_credit_cards"`
}
