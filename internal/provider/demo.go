package provider

import (
	"encoding/json"
	"fmt"
	"time"
)

// DemoSimpleFIN builds a deterministic SimpleFIN payload anchored at the
// given instant. It exists so the sync command can be exercised end to end
// without provider credentials; the same anchor always produces the same
// payload, so repeated demo syncs reconcile to no-ops.
func DemoSimpleFIN(now time.Time) []byte {
	anchor := now.UTC().Truncate(24 * time.Hour)

	txn := func(id string, daysAgo int, amount, description string) SimpleFINTransaction {
		posted := anchor.AddDate(0, 0, -daysAgo).Unix()
		return SimpleFINTransaction{
			ID:          fmt.Sprintf("demo-txn-%s", id),
			Posted:      posted,
			Amount:      amount,
			Description: description,
		}
	}

	set := SimpleFINAccountSet{
		Accounts: []SimpleFINAccount{
			{
				Org:         SimpleFINOrg{Name: "Demo Bank", Domain: "demo.bank", URL: "https://demo.bank"},
				ID:          "demo-checking",
				Name:        "Demo Checking",
				Currency:    "USD",
				Balance:     "2741.35",
				BalanceDate: anchor.Unix(),
				Transactions: []SimpleFINTransaction{
					txn("001", 1, "-4.50", "BLUE BOTTLE COFFEE"),
					txn("002", 2, "-86.20", "WHOLE FOODS MARKET"),
					txn("003", 3, "-15.00", "NETFLIX.COM"),
					txn("004", 5, "2150.00", "PAYROLL ACME CORP"),
					txn("005", 8, "-1200.00", "RENT TRANSFER"),
				},
			},
			{
				Org:         SimpleFINOrg{Name: "Demo Bank", Domain: "demo.bank", URL: "https://demo.bank"},
				ID:          "demo-credit",
				Name:        "Demo Credit Card",
				Currency:    "USD",
				Balance:     "-412.90",
				BalanceDate: anchor.Unix(),
				Transactions: []SimpleFINTransaction{
					txn("101", 1, "-32.40", "SHELL GASOLINE"),
					txn("102", 4, "-128.50", "AMAZON MARKETPLACE"),
					txn("103", 6, "-52.00", "RESTAURANT LUNA"),
				},
			},
		},
	}

	payload, _ := json.Marshal(set)
	return payload
}
