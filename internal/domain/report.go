package domain

import "math"

// Round rounds x to the given number of decimal places.
// Exact binary ties round to even.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	p := math.Pow(10, float64(places))
	return math.RoundToEven(x*p) / p
}

// FraudSummary measures how well the "flagged" proxy predicts ground-truth labels.
type FraudSummary struct {
	TotalFrauds int     `json:"total_frauds"`
	Flagged     int     `json:"flagged"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
}

// TypeFraudRate is the fraud rate of one usage channel.
type TypeFraudRate struct {
	Type              string  `json:"type"`
	FraudRate         float64 `json:"fraud_rate"`
	TotalTransactions int     `json:"total_transactions"`
}

// TypeFraudBreakdown is the percent variant of the per-channel fraud rate.
type TypeFraudBreakdown struct {
	Type                   string  `json:"type"`
	TotalTransactions      int     `json:"total_transactions"`
	FraudulentTransactions int     `json:"fraudulent_transactions"`
	FraudRatePercent       float64 `json:"fraud_rate_percent"`
}

// FraudStatistics summarizes the labelled set.
type FraudStatistics struct {
	TotalTransactions      int     `json:"total_transactions"`
	FraudulentTransactions int     `json:"fraudulent_transactions"`
	FraudPercentage        float64 `json:"fraud_percentage"`
	TotalFraudAmount       float64 `json:"total_fraud_amount"`
}

// FraudDetection is the labelled outcome of a single transaction.
type FraudDetection struct {
	TransactionID int64   `json:"transaction_id"`
	IsFraud       bool    `json:"is_fraud"`
	Amount        float64 `json:"amount"`
	ClientID      int64   `json:"client_id"`
}

// Overview is the headline statistics block of the transaction table.
type Overview struct {
	TotalTransactions int     `json:"total_transactions"`
	FraudRate         float64 `json:"fraud_rate"`
	AvgAmount         float64 `json:"avg_amount"`
	MostCommonType    *string `json:"most_common_type"`
}

// TypeStats is the volume and mean amount of one usage channel.
type TypeStats struct {
	Type      string  `json:"type"`
	Count     int     `json:"count"`
	AvgAmount float64 `json:"avg_amount"`
}

// DailyStats is the volume and mean amount of one calendar day.
type DailyStats struct {
	Date      string  `json:"date"`
	Volume    int     `json:"volume"`
	AvgAmount float64 `json:"avg_amount"`
}

// AmountDistribution is a histogram of transaction amounts.
type AmountDistribution struct {
	Bins   []string `json:"bins"`
	Counts []int    `json:"counts"`
}

// CustomerProfile is the user summary attached to a top customer.
type CustomerProfile struct {
	CurrentAge   int    `json:"current_age"`
	Gender       string `json:"gender"`
	YearlyIncome string `json:"yearly_income"`
	CreditScore  int    `json:"credit_score"`
	Address      string `json:"address"`
}

// TopCustomer is a customer ranked by total spend.
type TopCustomer struct {
	ClientID   int64           `json:"client_id"`
	TotalSpent float64         `json:"total_spent"`
	Profile    CustomerProfile `json:"profile"`
}

// CustomerPage is one page of distinct client identifiers.
type CustomerPage struct {
	Page           int     `json:"page"`
	Limit          int     `json:"limit"`
	TotalCustomers int     `json:"total_customers"`
	TotalPages     int     `json:"total_pages"`
	Customers      []int64 `json:"customers"`
}

// TransactionPage is a window over a filtered transaction list.
type TransactionPage struct {
	Total  int               `json:"total"`
	Offset int               `json:"offset"`
	Limit  int               `json:"limit"`
	Data   []TransactionView `json:"data"`
}

// LabelledTransaction is a transaction with its ground-truth label.
type LabelledTransaction struct {
	TransactionView
	IsFraud bool `json:"is_fraud"`
}
