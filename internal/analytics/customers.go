package analytics

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// FindUsers returns every user row with the given id.
func FindUsers(users []domain.User, id int64) []domain.User {
	out := []domain.User{}
	for i := range users {
		if users[i].ID == id {
			out = append(out, users[i])
		}
	}
	return out
}

// TopCustomers ranks clients by total spend and returns the n highest that
// also appear in the user table.
func TopCustomers(txs []domain.Transaction, users []domain.User, n int) []domain.TopCustomer {
	spent := make(map[int64]decimal.Decimal)
	for i := range txs {
		spent[txs[i].ClientID] = spent[txs[i].ClientID].Add(txs[i].Amount)
	}

	type total struct {
		client int64
		amount decimal.Decimal
	}
	ranked := make([]total, 0, len(spent))
	for client, amount := range spent {
		ranked = append(ranked, total{client, amount})
	}
	sort.Slice(ranked, func(a, b int) bool {
		if c := ranked[a].amount.Cmp(ranked[b].amount); c != 0 {
			return c > 0
		}
		return ranked[a].client < ranked[b].client
	})
	if n < len(ranked) {
		ranked = ranked[:max(n, 0)]
	}

	byID := make(map[int64]*domain.User, len(users))
	for i := range users {
		if _, dup := byID[users[i].ID]; !dup {
			byID[users[i].ID] = &users[i]
		}
	}

	out := []domain.TopCustomer{}
	for _, r := range ranked {
		u, ok := byID[r.client]
		if !ok {
			continue
		}
		out = append(out, domain.TopCustomer{
			ClientID:   r.client,
			TotalSpent: r.amount.Round(2).InexactFloat64(),
			Profile: domain.CustomerProfile{
				CurrentAge:   u.CurrentAge,
				Gender:       u.Gender,
				YearlyIncome: u.YearlyIncome,
				CreditScore:  u.CreditScore,
				Address:      u.Address,
			},
		})
	}
	return out
}

// ListCustomers pages through distinct client ids in first-appearance order.
func ListCustomers(txs []domain.Transaction, page, limit int) domain.CustomerPage {
	seen := make(map[int64]struct{})
	var clients []int64
	for i := range txs {
		id := txs[i].ClientID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		clients = append(clients, id)
	}

	res := domain.CustomerPage{
		Page:           page,
		Limit:          limit,
		TotalCustomers: len(clients),
		Customers:      []int64{},
	}
	if limit <= 0 {
		return res
	}
	res.TotalPages = (len(clients) + limit - 1) / limit

	start := (page - 1) * limit
	if start < 0 || start >= len(clients) {
		return res
	}
	end := min(start+limit, len(clients))
	res.Customers = append(res.Customers, clients[start:end]...)
	return res
}
