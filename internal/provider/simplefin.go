package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledgerstore/internal/domain"
)

// Wire shapes of the SimpleFIN account set
// (https://www.simplefin.org/protocol.html). Balance values stay strings;
// they are kept verbatim in the sf_* family and parsed only for snapshots.

type SimpleFINAccountSet struct {
	Errors   []string           `json:"errors"`
	Accounts []SimpleFINAccount `json:"accounts"`
}

type SimpleFINOrg struct {
	Domain  string `json:"domain"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	SfinURL string `json:"sfin-url"`
	ID      string `json:"id"`
}

type SimpleFINAccount struct {
	Org              SimpleFINOrg           `json:"org"`
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Currency         string                 `json:"currency"`
	Balance          string                 `json:"balance"`
	AvailableBalance string                 `json:"available-balance"`
	BalanceDate      int64                  `json:"balance-date"`
	Transactions     []SimpleFINTransaction `json:"transactions"`
	Extra            json.RawMessage        `json:"extra,omitempty"`
}

type SimpleFINTransaction struct {
	ID           string          `json:"id"`
	Posted       int64           `json:"posted"`
	Amount       string          `json:"amount"`
	Description  string          `json:"description"`
	TransactedAt *int64          `json:"transacted_at,omitempty"`
	Pending      *bool           `json:"pending,omitempty"`
	Extra        json.RawMessage `json:"extra,omitempty"`
}

// ParseSimpleFIN normalizes a SimpleFIN account-set payload. Protocol-level
// errors (the payload's errors array) fail the whole parse; individual
// malformed records are skipped and collected.
func ParseSimpleFIN(payload []byte) (*Batch, error) {
	var set SimpleFINAccountSet
	if err := json.Unmarshal(payload, &set); err != nil {
		return nil, fmt.Errorf("ParseSimpleFIN: decoding payload: %w", err)
	}
	if len(set.Errors) > 0 {
		return nil, fmt.Errorf("ParseSimpleFIN: provider reported errors: %v", set.Errors)
	}

	batch := &Batch{Provider: KindSimpleFIN}
	for i, acct := range set.Accounts {
		if acct.ID == "" {
			batch.Errors = append(batch.Errors, RecordError{
				Index: i, Record: "account", Err: fmt.Errorf("missing account id"),
			})
			continue
		}

		a := &domain.Account{
			Name:              acct.Name,
			AccountType:       InferAccountType(acct.Name),
			Currency:          domain.NormalizeCurrency(acct.Currency),
			InstitutionName:   acct.Org.Name,
			InstitutionURL:    acct.Org.URL,
			InstitutionDomain: acct.Org.Domain,
			SimpleFIN: &domain.SimpleFINAccountFields{
				ID:               acct.ID,
				Name:             acct.Name,
				Currency:         acct.Currency,
				Balance:          acct.Balance,
				AvailableBalance: acct.AvailableBalance,
				BalanceDate:      acct.BalanceDate,
				OrgName:          acct.Org.Name,
				OrgURL:           acct.Org.URL,
				OrgDomain:        acct.Org.Domain,
				Extra:            acct.Extra,
			},
		}
		batch.Accounts = append(batch.Accounts, AccountRecord{
			Key:     IdentityKey{Kind: KindSimpleFIN, NativeID: acct.ID},
			Account: a,
		})

		if acct.Balance != "" {
			balance, err := decimal.NewFromString(acct.Balance)
			if err != nil {
				batch.Errors = append(batch.Errors, RecordError{
					Index: i, Record: "balance", Err: fmt.Errorf("parsing balance %q: %w", acct.Balance, err),
				})
			} else {
				snap := SnapshotRecord{
					ProviderAccountID: acct.ID,
					Balance:           balance,
					At:                time.Unix(acct.BalanceDate, 0).UTC(),
					Source:            string(KindSimpleFIN),
				}
				if acct.AvailableBalance != "" {
					if avail, err := decimal.NewFromString(acct.AvailableBalance); err == nil {
						snap.AvailableBalance = &avail
					}
				}
				batch.Snapshots = append(batch.Snapshots, snap)
			}
		}

		for j, txn := range acct.Transactions {
			rec, err := normalizeSimpleFINTransaction(acct.ID, txn)
			if err != nil {
				batch.Errors = append(batch.Errors, RecordError{Index: j, Record: "transaction", Err: err})
				continue
			}
			batch.Transactions = append(batch.Transactions, rec)
		}
	}
	return batch, nil
}

func normalizeSimpleFINTransaction(accountID string, txn SimpleFINTransaction) (TransactionRecord, error) {
	if txn.ID == "" {
		return TransactionRecord{}, fmt.Errorf("missing transaction id")
	}
	amount, err := decimal.NewFromString(txn.Amount)
	if err != nil {
		return TransactionRecord{}, fmt.Errorf("parsing amount %q: %w", txn.Amount, err)
	}

	// The transacted instant, when present, is the economic date; posted is
	// when the bank settled it.
	txTime := time.Unix(txn.Posted, 0).UTC()
	if txn.TransactedAt != nil && *txn.TransactedAt > 0 {
		txTime = time.Unix(*txn.TransactedAt, 0).UTC()
	}
	txDate := txTime.Truncate(24 * time.Hour)
	postedDate := time.Unix(txn.Posted, 0).UTC().Truncate(24 * time.Hour)

	t := &domain.Transaction{
		Amount:          amount,
		Description:     txn.Description,
		TransactionDate: txDate,
		PostedDate:      postedDate,
		SimpleFIN: &domain.SimpleFINTransactionFields{
			ID:           txn.ID,
			Posted:       txn.Posted,
			Amount:       txn.Amount,
			Description:  txn.Description,
			TransactedAt: txn.TransactedAt,
			Pending:      txn.Pending,
			Extra:        txn.Extra,
		},
	}
	return TransactionRecord{
		Key:               IdentityKey{Kind: KindSimpleFIN, NativeID: txn.ID},
		ProviderAccountID: accountID,
		Transaction:       t,
	}, nil
}
