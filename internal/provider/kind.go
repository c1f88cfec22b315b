// Package provider normalizes provider-native payloads into canonical
// partial records. Adapters consume payloads that were already fetched;
// nothing here talks to a network.
package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledgerstore/internal/domain"
)

// Kind names an ingestion path.
type Kind string

const (
	KindSimpleFIN Kind = "simplefin"
	KindLunchflow Kind = "lunchflow"
	KindCSVImport Kind = "csv_import"
	KindManual    Kind = "manual"
)

// IdentityKey is the deduplication identity of a record. External providers
// key on (kind, native id). CSV imports have no native id and key on
// (fingerprint, batch): the same row content in two different import batches
// is two records.
type IdentityKey struct {
	Kind        Kind
	NativeID    string
	Fingerprint string
	BatchID     string
}

func (k IdentityKey) String() string {
	if k.Kind == KindCSVImport {
		return fmt.Sprintf("%s:%s:%s", k.Kind, k.Fingerprint, k.BatchID)
	}
	return fmt.Sprintf("%s:%s", k.Kind, k.NativeID)
}

// Batch is one normalized provider payload: the partial records to
// reconcile, plus the records that could not be normalized. A bad record
// never aborts the batch.
type Batch struct {
	Provider     Kind
	Accounts     []AccountRecord
	Transactions []TransactionRecord
	Snapshots    []SnapshotRecord
	Errors       []RecordError
}

// AccountRecord is a normalized account. The canonical id is assigned at
// reconcile time; the record carries only the provider identity.
type AccountRecord struct {
	Key     IdentityKey
	Account *domain.Account
}

// TransactionRecord is a normalized transaction. ProviderAccountID names the
// owning account in the provider's id space; reconciliation maps it to a
// canonical account id.
type TransactionRecord struct {
	Key               IdentityKey
	ProviderAccountID string
	Transaction       *domain.Transaction
}

// SnapshotRecord is a normalized balance observation.
type SnapshotRecord struct {
	ProviderAccountID string
	Balance           decimal.Decimal
	AvailableBalance  *decimal.Decimal
	At                time.Time
	Source            string
}

// InferAccountType guesses a Plaid-style account type from the display name
// for providers that do not deliver one.
func InferAccountType(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "credit"):
		return "credit"
	case strings.Contains(n, "loan") || strings.Contains(n, "mortgage"):
		return "loan"
	case strings.Contains(n, "invest") || strings.Contains(n, "brokerage"):
		return "investment"
	default:
		return "depository"
	}
}

// RecordError describes one record that was skipped during normalization.
type RecordError struct {
	Index  int
	Record string
	Err    error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.Record, e.Err)
}
