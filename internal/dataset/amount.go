package dataset

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var amountReplacer = strings.NewReplacer("$", "", ",", "", " ", "")

// ParseAmount normalizes a currency-formatted amount such as "$1,234.50"
// or "$-77.00" into a decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := amountReplacer.Replace(strings.TrimSpace(s))
	if clean == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}
