package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledgerstore/internal/domain"
)

// Wire shapes of a Lunchflow export. Numeric ids arrive as numbers or
// strings depending on the endpoint, so ids decode through json.Number.

type LunchflowPayload struct {
	Accounts     []LunchflowAccount     `json:"accounts"`
	Transactions []LunchflowTransaction `json:"transactions"`
}

type LunchflowAccount struct {
	ID              json.Number `json:"id"`
	Name            string      `json:"name"`
	Balance         json.Number `json:"balance"`
	Currency        string      `json:"currency"`
	InstitutionName string      `json:"institution_name"`
	InstitutionLogo string      `json:"institution_logo"`
	Provider        string      `json:"provider"`
	Status          string      `json:"status"`
}

type LunchflowTransaction struct {
	ID          json.Number `json:"id"`
	AccountID   json.Number `json:"account_id"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	Date        string      `json:"date"`
	Merchant    string      `json:"merchant"`
	Description string      `json:"description"`
	IsPending   *bool       `json:"is_pending,omitempty"`
}

// ParseLunchflow normalizes a Lunchflow payload. Malformed records are
// skipped and collected; the batch never aborts on one bad record.
func ParseLunchflow(payload []byte) (*Batch, error) {
	var p LunchflowPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("ParseLunchflow: decoding payload: %w", err)
	}

	batch := &Batch{Provider: KindLunchflow}
	now := time.Now().UTC()

	for i, acct := range p.Accounts {
		id := acct.ID.String()
		if id == "" {
			batch.Errors = append(batch.Errors, RecordError{
				Index: i, Record: "account", Err: fmt.Errorf("missing account id"),
			})
			continue
		}

		a := &domain.Account{
			Name:            acct.Name,
			AccountType:     InferAccountType(acct.Name),
			Currency:        domain.NormalizeCurrency(acct.Currency),
			InstitutionName: acct.InstitutionName,
			Lunchflow: &domain.LunchflowAccountFields{
				ID:              id,
				Name:            acct.Name,
				InstitutionName: acct.InstitutionName,
				InstitutionLogo: acct.InstitutionLogo,
				Provider:        acct.Provider,
				Currency:        acct.Currency,
				Status:          acct.Status,
			},
		}
		batch.Accounts = append(batch.Accounts, AccountRecord{
			Key:     IdentityKey{Kind: KindLunchflow, NativeID: id},
			Account: a,
		})

		if acct.Balance.String() != "" {
			balance, err := decimal.NewFromString(acct.Balance.String())
			if err != nil {
				batch.Errors = append(batch.Errors, RecordError{
					Index: i, Record: "balance", Err: fmt.Errorf("parsing balance %q: %w", acct.Balance, err),
				})
			} else {
				batch.Snapshots = append(batch.Snapshots, SnapshotRecord{
					ProviderAccountID: id,
					Balance:           balance,
					At:                now,
					Source:            string(KindLunchflow),
				})
			}
		}
	}

	for i, txn := range p.Transactions {
		rec, err := normalizeLunchflowTransaction(txn)
		if err != nil {
			batch.Errors = append(batch.Errors, RecordError{Index: i, Record: "transaction", Err: err})
			continue
		}
		batch.Transactions = append(batch.Transactions, rec)
	}
	return batch, nil
}

func normalizeLunchflowTransaction(txn LunchflowTransaction) (TransactionRecord, error) {
	id := txn.ID.String()
	if id == "" {
		return TransactionRecord{}, fmt.Errorf("missing transaction id")
	}
	amount, err := decimal.NewFromString(txn.Amount.String())
	if err != nil {
		return TransactionRecord{}, fmt.Errorf("parsing amount %q: %w", txn.Amount, err)
	}
	date, err := time.Parse("2006-01-02", txn.Date)
	if err != nil {
		return TransactionRecord{}, fmt.Errorf("parsing date %q: %w", txn.Date, err)
	}

	description := txn.Description
	if description == "" {
		description = txn.Merchant
	}

	t := &domain.Transaction{
		Amount:          amount,
		Description:     description,
		TransactionDate: date,
		PostedDate:      date,
		Lunchflow: &domain.LunchflowTransactionFields{
			ID:          id,
			AccountID:   txn.AccountID.String(),
			Amount:      amount,
			Currency:    txn.Currency,
			Date:        date,
			Merchant:    txn.Merchant,
			Description: txn.Description,
			IsPending:   txn.IsPending,
		},
	}
	return TransactionRecord{
		Key:               IdentityKey{Kind: KindLunchflow, NativeID: id},
		ProviderAccountID: txn.AccountID.String(),
		Transaction:       t,
	}, nil
}
