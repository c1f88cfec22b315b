package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceSnapshot is a point-in-time balance observation for one account.
// Snapshots are append-only and ordered by SnapshotTime; they are never
// mutated, only pruned by explicit compaction.
type BalanceSnapshot struct {
	ID               uuid.UUID
	AccountID        uuid.UUID
	Balance          decimal.Decimal
	AvailableBalance *decimal.Decimal
	SnapshotTime     time.Time
	// Source names the provider or path that observed the balance
	// (simplefin, lunchflow, csv_import, manual).
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBalanceSnapshot creates a snapshot observed now.
func NewBalanceSnapshot(accountID uuid.UUID, balance decimal.Decimal, at time.Time, source string) *BalanceSnapshot {
	now := time.Now().UTC()
	return &BalanceSnapshot{
		ID:           uuid.New(),
		AccountID:    accountID,
		Balance:      balance,
		SnapshotTime: at,
		Source:       source,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
