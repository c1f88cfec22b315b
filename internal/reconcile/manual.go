package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledgerstore/internal/domain"
)

// CreateManualAccount creates a user-entered account. Classification is
// materialized from the account type at creation time.
func (e *Engine) CreateManualAccount(ctx context.Context, name, accountType, currency string) (*domain.Account, error) {
	a := domain.NewAccount(uuid.New(), name)
	a.AccountType = accountType
	a.Classification = domain.ComputeClassification(accountType)
	a.IsManual = true
	if currency != "" {
		a.Currency = domain.NormalizeCurrency(currency)
	}
	if err := e.store.InsertAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("CreateManualAccount: %w", err)
	}
	return a, nil
}

// CreateManualTransaction creates a user-entered transaction.
func (e *Engine) CreateManualTransaction(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, date time.Time, description string, tags []string) (*domain.Transaction, error) {
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("CreateManualTransaction: %w", err)
	}
	t := domain.NewTransaction(uuid.New(), accountID, amount, date)
	t.Description = description
	t.Tags = domain.NormalizeTags(tags)
	t.IsManual = true
	if err := e.store.InsertTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("CreateManualTransaction: %w", err)
	}
	return t, nil
}

// RecordManualBalance appends a user-observed balance snapshot.
func (e *Engine) RecordManualBalance(ctx context.Context, accountID uuid.UUID, balance decimal.Decimal, at time.Time) error {
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return fmt.Errorf("RecordManualBalance: %w", err)
	}
	snap := domain.NewBalanceSnapshot(accountID, balance, at, string(domain.SourceManual))
	if err := e.store.AppendSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("RecordManualBalance: %w", err)
	}
	return nil
}
