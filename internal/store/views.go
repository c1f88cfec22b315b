package store

import (
	"context"
	"fmt"
)

// SplitSourceMode controls what the source column of a split child reports.
type SplitSourceMode int

const (
	// SplitAsSplit reports split children as source 'split'.
	SplitAsSplit SplitSourceMode = iota
	// SplitInheritsProvider reports split children with the parent
	// transaction's source.
	SplitInheritsProvider
)

// RebuildViews recreates the read views over the canonical tables. Views are
// never migrated in place: every view is derived state, recompiled from the
// current column set after each migration pass and on mode change.
//
// The transactions view excludes soft-deleted rows, joins display fields from
// the owning account, and computes the source column from the populated
// identity columns. Provider ids win over the manual flag, so a manually
// created account later matched to a provider keeps one consistent answer.
func (s *Store) RebuildViews(ctx context.Context, mode SplitSourceMode) error {
	ownSource := `
		CASE
			WHEN t.sf_id IS NOT NULL THEN 'simplefin'
			WHEN t.lf_id IS NOT NULL THEN 'lunchflow'
			WHEN t.csv_batch_id IS NOT NULL THEN 'csv_import'
			WHEN t.parent_transaction_id IS NOT NULL THEN 'split'
			WHEN t.is_manual THEN 'manual'
			ELSE 'unknown'
		END`

	source := ownSource
	if mode == SplitInheritsProvider {
		source = `
		CASE
			WHEN t.sf_id IS NOT NULL THEN 'simplefin'
			WHEN t.lf_id IS NOT NULL THEN 'lunchflow'
			WHEN t.csv_batch_id IS NOT NULL THEN 'csv_import'
			WHEN t.parent_transaction_id IS NOT NULL THEN
				CASE
					WHEN p.sf_id IS NOT NULL THEN 'simplefin'
					WHEN p.lf_id IS NOT NULL THEN 'lunchflow'
					WHEN p.csv_batch_id IS NOT NULL THEN 'csv_import'
					WHEN p.is_manual THEN 'manual'
					ELSE 'split'
				END
			WHEN t.is_manual THEN 'manual'
			ELSE 'unknown'
		END`
	}

	transactionsView := fmt.Sprintf(`
		CREATE OR REPLACE VIEW transactions AS
		SELECT
			t.id,
			t.account_id,
			coalesce(a.nickname, a.name) AS account_name,
			a.account_type,
			a.currency,
			a.institution_name,
			t.amount,
			t.description,
			t.transaction_date,
			t.posted_date,
			t.tags,
			t.auto_tagged,
			t.parent_transaction_id,
			t.is_manual,
			%s AS source,
			t.created_at,
			t.updated_at
		FROM sys_transactions t
		JOIN sys_accounts a ON a.id = t.account_id
		LEFT JOIN sys_transactions p ON p.id = t.parent_transaction_id
		WHERE t.deleted_at IS NULL`, source)

	if _, err := s.db.ExecContext(ctx, transactionsView); err != nil {
		return fmt.Errorf("RebuildViews: transactions: %w", err)
	}

	accountsView := `
		CREATE OR REPLACE VIEW accounts AS
		SELECT
			a.id,
			a.name,
			a.nickname,
			coalesce(a.nickname, a.name) AS display_name,
			a.account_type,
			a.classification,
			a.currency,
			a.is_manual,
			a.institution_name,
			a.institution_url,
			a.institution_domain,
			CASE
				WHEN a.sf_id IS NOT NULL THEN 'simplefin'
				WHEN a.lf_id IS NOT NULL THEN 'lunchflow'
				WHEN a.is_manual THEN 'manual'
				ELSE 'unknown'
			END AS source,
			latest.balance AS latest_balance,
			latest.snapshot_time AS latest_balance_time,
			a.created_at,
			a.updated_at
		FROM sys_accounts a
		LEFT JOIN (
			SELECT account_id, balance, snapshot_time,
			       row_number() OVER (PARTITION BY account_id ORDER BY snapshot_time DESC) AS rn
			FROM sys_balance_snapshots
		) latest ON latest.account_id = a.id AND latest.rn = 1`

	if _, err := s.db.ExecContext(ctx, accountsView); err != nil {
		return fmt.Errorf("RebuildViews: accounts: %w", err)
	}
	return nil
}
