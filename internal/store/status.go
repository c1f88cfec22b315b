package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"
)

// Status summarizes the database for the status command.
type Status struct {
	Accounts      int
	Transactions  int
	Deleted       int
	Snapshots     int
	OldestTxDate  *time.Time
	NewestTxDate  *time.Time
	DatabaseBytes int64
}

// CollectStatus gathers row counts, the transaction date range and the
// on-disk size. Size is zero for an in-memory database.
func (s *Store) CollectStatus(ctx context.Context) (*Status, error) {
	st := &Status{}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT count(*) FROM sys_accounts`, &st.Accounts},
		{`SELECT count(*) FROM sys_transactions WHERE deleted_at IS NULL`, &st.Transactions},
		{`SELECT count(*) FROM sys_transactions WHERE deleted_at IS NOT NULL`, &st.Deleted},
		{`SELECT count(*) FROM sys_balance_snapshots`, &st.Snapshots},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("CollectStatus: %w", err)
		}
	}

	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT min(transaction_date)::VARCHAR, max(transaction_date)::VARCHAR
		FROM sys_transactions WHERE deleted_at IS NULL`).Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("CollectStatus: date range: %w", err)
	}
	if oldest.Valid {
		d, err := parseDate(oldest.String)
		if err != nil {
			return nil, fmt.Errorf("CollectStatus: %w", err)
		}
		st.OldestTxDate = &d
	}
	if newest.Valid {
		d, err := parseDate(newest.String)
		if err != nil {
			return nil, fmt.Errorf("CollectStatus: %w", err)
		}
		st.NewestTxDate = &d
	}

	if s.path != "" {
		if info, err := os.Stat(s.path); err == nil {
			st.DatabaseBytes = info.Size()
		}
	}
	return st, nil
}
