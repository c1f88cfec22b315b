package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestComputeClassification(t *testing.T) {
	tests := []struct {
		accountType string
		want        string
	}{
		{"credit", ClassificationLiability},
		{"loan", ClassificationLiability},
		{"CREDIT", ClassificationLiability},
		{"  Loan  ", ClassificationLiability},
		{"depository", ClassificationAsset},
		{"investment", ClassificationAsset},
		{"other", ClassificationAsset},
		{"", ClassificationAsset},
	}

	for _, tt := range tests {
		t.Run(tt.accountType, func(t *testing.T) {
			if got := ComputeClassification(tt.accountType); got != tt.want {
				t.Errorf("ComputeClassification(%q) = %q, want %q", tt.accountType, got, tt.want)
			}
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	if got := NormalizeCurrency("usd"); got != "USD" {
		t.Errorf("NormalizeCurrency(usd) = %q, want USD", got)
	}
	if got := NormalizeCurrency(" eur "); got != "EUR" {
		t.Errorf("NormalizeCurrency( eur ) = %q, want EUR", got)
	}
}

func TestAccountValidate(t *testing.T) {
	a := NewAccount(uuid.New(), "Checking")
	a.IsManual = true
	if err := a.Validate(); err != nil {
		t.Fatalf("valid account rejected: %v", err)
	}

	a.Name = ""
	if err := a.Validate(); err == nil {
		t.Error("empty name accepted")
	}

	b := NewAccount(uuid.New(), "External")
	if err := b.Validate(); err == nil {
		t.Error("external account with no provider identity accepted")
	}
	b.SimpleFIN = &SimpleFINAccountFields{ID: "act-1"}
	if err := b.Validate(); err != nil {
		t.Errorf("provider-backed account rejected: %v", err)
	}
}

func TestFingerprintStable(t *testing.T) {
	accountID := "12345678-1234-1234-1234-123456789abc"
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	amount := decimal.New(-5000, -2) // -50.00

	fp1 := Fingerprint(accountID, date, amount, "ACME STORE")
	fp2 := Fingerprint(accountID, date, amount, "acme store")

	if len(fp1) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(fp1))
	}
	if fp1 != fp2 {
		t.Error("fingerprint is case sensitive, want case insensitive")
	}

	// A different amount must produce a different fingerprint.
	fp3 := Fingerprint(accountID, date, decimal.New(-5001, -2), "ACME STORE")
	if fp1 == fp3 {
		t.Error("distinct amounts produced identical fingerprints")
	}

	// -0 and 0 normalize to the same identity.
	z1 := Fingerprint(accountID, date, decimal.Zero, "x")
	z2 := Fingerprint(accountID, date, decimal.Zero.Neg(), "x")
	if z1 != z2 {
		t.Error("-0 and 0 produced different fingerprints")
	}
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, got string)
	}{
		{
			name:  "card mask removed",
			input: "PURCHASE XXXXXXXXXXXX1234 STORE",
			check: func(t *testing.T, got string) {
				if strings.Contains(got, "xxxx") {
					t.Errorf("card mask survived: %q", got)
				}
			},
		},
		{
			name:  "literal null removed",
			input: "null PAYMENT null",
			check: func(t *testing.T, got string) {
				if strings.Contains(got, "null") {
					t.Errorf("null survived: %q", got)
				}
			},
		},
		{
			name:  "account number collapsed to last 4",
			input: "PAYMENT 7208987070",
			check: func(t *testing.T, got string) {
				if !strings.Contains(got, "7070") {
					t.Errorf("last 4 digits missing: %q", got)
				}
				if strings.Contains(got, "7208987070") {
					t.Errorf("full account number survived: %q", got)
				}
			},
		},
		{
			name:  "special characters stripped",
			input: "Food & Drink / Cafe*",
			check: func(t *testing.T, got string) {
				for _, c := range got {
					if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') {
						t.Errorf("non-alphanumeric %q survived in %q", c, got)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, NormalizeDescription(tt.input))
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	tags := []string{"food", "  groceries ", "food", ""}
	got := NormalizeTags(tags)
	want := []string{"food", "groceries"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeTags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NormalizeTags[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSourcePrecedence(t *testing.T) {
	parent := uuid.New()
	tests := []struct {
		name string
		tx   Transaction
		want Source
	}{
		{
			name: "simplefin id wins over everything",
			tx: Transaction{
				SimpleFIN:           &SimpleFINTransactionFields{ID: "sf-1"},
				Lunchflow:           &LunchflowTransactionFields{ID: "lf-1"},
				CSVBatchID:          "import_20250101_000000",
				ParentTransactionID: &parent,
				IsManual:            true,
			},
			want: SourceSimpleFIN,
		},
		{
			name: "lunchflow over csv",
			tx: Transaction{
				Lunchflow:  &LunchflowTransactionFields{ID: "lf-1"},
				CSVBatchID: "import_20250101_000000",
			},
			want: SourceLunchflow,
		},
		{
			name: "csv over split",
			tx: Transaction{
				CSVBatchID:          "import_20250101_000000",
				ParentTransactionID: &parent,
			},
			want: SourceCSVImport,
		},
		{
			name: "split over manual",
			tx: Transaction{
				ParentTransactionID: &parent,
				IsManual:            true,
			},
			want: SourceSplit,
		},
		{
			name: "provider id wins over manual flag",
			tx: Transaction{
				SimpleFIN: &SimpleFINTransactionFields{ID: "sf-1"},
				IsManual:  true,
			},
			want: SourceSimpleFIN,
		},
		{
			name: "manual",
			tx:   Transaction{IsManual: true},
			want: SourceManual,
		},
		{
			name: "unknown",
			tx:   Transaction{},
			want: SourceUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SourceOf(&tt.tx); got != tt.want {
				t.Errorf("SourceOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
