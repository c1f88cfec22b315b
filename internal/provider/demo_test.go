package provider

import (
	"bytes"
	"testing"
	"time"
)

func TestDemoSimpleFINDeterministic(t *testing.T) {
	anchor := time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC)
	a := DemoSimpleFIN(anchor)
	b := DemoSimpleFIN(anchor.Add(3 * time.Hour)) // same day, same payload
	if !bytes.Equal(a, b) {
		t.Error("Expected identical payloads for the same anchor day")
	}

	batch, err := ParseSimpleFIN(a)
	if err != nil {
		t.Fatalf("ParseSimpleFIN: %v", err)
	}
	if len(batch.Accounts) != 2 || len(batch.Transactions) != 8 {
		t.Errorf("Unexpected demo shape: %d accounts, %d transactions",
			len(batch.Accounts), len(batch.Transactions))
	}
	for _, acct := range batch.Accounts {
		if acct.Key.NativeID == "demo-credit" && acct.Account.AccountType != "credit" {
			t.Errorf("Expected credit type for demo card, got %s", acct.Account.AccountType)
		}
	}
}

func TestInferAccountType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Everyday Checking", "depository"},
		{"Platinum Credit Card", "credit"},
		{"Auto Loan", "loan"},
		{"Home Mortgage", "loan"},
		{"Brokerage Account", "investment"},
	}
	for _, tt := range tests {
		if got := InferAccountType(tt.name); got != tt.want {
			t.Errorf("InferAccountType(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}
