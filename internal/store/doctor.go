package store

import (
	"context"
	"fmt"
)

// DoctorReport is the result of consistency checks over the canonical
// tables. Zero values everywhere means a healthy database.
type DoctorReport struct {
	OrphanedTransactions int
	OrphanedSnapshots    int
	OrphanedSplits       int
	DuplicateCSVRows     int
	FutureDated          int
	MissingFingerprints  int
	Untagged             int
}

// Healthy reports whether every check came back clean. Untagged rows are
// informational, not a defect.
func (r *DoctorReport) Healthy() bool {
	return r.OrphanedTransactions == 0 && r.OrphanedSnapshots == 0 &&
		r.OrphanedSplits == 0 && r.DuplicateCSVRows == 0 &&
		r.FutureDated == 0 && r.MissingFingerprints == 0
}

// Doctor runs consistency checks: referential orphans, duplicate CSV
// identities, implausible dates, CSV rows missing a fingerprint.
func (s *Store) Doctor(ctx context.Context) (*DoctorReport, error) {
	report := &DoctorReport{}

	checks := []struct {
		name  string
		query string
		dest  *int
	}{
		{
			"orphaned transactions",
			`SELECT count(*) FROM sys_transactions t
			 WHERE NOT EXISTS (SELECT 1 FROM sys_accounts a WHERE a.id = t.account_id)`,
			&report.OrphanedTransactions,
		},
		{
			"orphaned snapshots",
			`SELECT count(*) FROM sys_balance_snapshots s
			 WHERE NOT EXISTS (SELECT 1 FROM sys_accounts a WHERE a.id = s.account_id)`,
			&report.OrphanedSnapshots,
		},
		{
			"orphaned splits",
			`SELECT count(*) FROM sys_transactions t
			 WHERE t.parent_transaction_id IS NOT NULL
			   AND NOT EXISTS (SELECT 1 FROM sys_transactions p WHERE p.id = t.parent_transaction_id)`,
			&report.OrphanedSplits,
		},
		{
			"duplicate csv identities",
			`SELECT coalesce(sum(n - 1), 0) FROM (
				SELECT count(*) AS n FROM sys_transactions
				WHERE csv_fingerprint IS NOT NULL AND deleted_at IS NULL
				GROUP BY csv_fingerprint, csv_batch_id HAVING count(*) > 1)`,
			&report.DuplicateCSVRows,
		},
		{
			"future dated",
			`SELECT count(*) FROM sys_transactions
			 WHERE deleted_at IS NULL AND transaction_date > current_date + INTERVAL 1 DAY`,
			&report.FutureDated,
		},
		{
			"missing fingerprints",
			`SELECT count(*) FROM sys_transactions
			 WHERE csv_batch_id IS NOT NULL AND csv_fingerprint IS NULL`,
			&report.MissingFingerprints,
		},
		{
			"untagged",
			`SELECT count(*) FROM sys_transactions
			 WHERE deleted_at IS NULL AND (tags IS NULL OR len(tags) = 0)`,
			&report.Untagged,
		},
	}

	for _, check := range checks {
		if err := s.db.QueryRowContext(ctx, check.query).Scan(check.dest); err != nil {
			return nil, fmt.Errorf("Doctor: %s: %w", check.name, err)
		}
	}
	return report, nil
}
