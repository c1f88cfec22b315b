package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is one economic event, canonical across all ingestion paths.
//
// The amount sign convention is uniform regardless of source: expenses are
// negative. Identity for deduplication is either a provider-native id (kept
// in the provider field family) or, for CSV imports, the
// (CSVFingerprint, CSVBatchID) pair.
type Transaction struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	Amount          decimal.Decimal
	Description     string
	TransactionDate time.Time
	PostedDate      time.Time
	Tags            []string
	AutoTagged      bool
	// ParentTransactionID references the original row for user-initiated
	// splits. Splits never mutate the parent's amount.
	ParentTransactionID *uuid.UUID
	DeletedAt           *time.Time
	IsManual            bool

	CSVFingerprint string
	CSVBatchID     string

	SimpleFIN *SimpleFINTransactionFields
	Lunchflow *LunchflowTransactionFields

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SimpleFINTransactionFields is the lossless passthrough of a SimpleFIN
// transaction record. Posted and TransactedAt are UNIX timestamps; Amount is
// the raw protocol string.
type SimpleFINTransactionFields struct {
	ID           string
	Posted       int64
	Amount       string
	Description  string
	TransactedAt *int64
	Pending      *bool
	Extra        json.RawMessage
}

// LunchflowTransactionFields is the lossless passthrough of a Lunchflow
// transaction record.
type LunchflowTransactionFields struct {
	ID          string
	AccountID   string
	Amount      decimal.Decimal
	Currency    string
	Date        time.Time
	Merchant    string
	Description string
	IsPending   *bool
}

// NewTransaction creates a transaction with required fields. The posted date
// defaults to the transaction date.
func NewTransaction(id, accountID uuid.UUID, amount decimal.Decimal, date time.Time) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:              id,
		AccountID:       accountID,
		Amount:          amount,
		TransactionDate: date,
		PostedDate:      date,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// EnsureFingerprint sets the content fingerprint if it is not already set.
func (t *Transaction) EnsureFingerprint() {
	if t.CSVFingerprint == "" {
		t.CSVFingerprint = Fingerprint(t.AccountID.String(), t.TransactionDate, t.Amount, t.Description)
	}
}

// NormalizeTags deduplicates, trims, and drops empty tags, preserving order
// of first occurrence.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		result = append(result, trimmed)
	}
	return result
}
