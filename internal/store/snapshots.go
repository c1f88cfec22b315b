package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dvloznov/ledgerstore/internal/domain"
)

// AppendSnapshot records a balance observation. The history is append-only
// with one exception: a second observation from the same source at the same
// instant overwrites the first (last write wins), so replaying a provider
// payload does not duplicate history.
func (s *Store) AppendSnapshot(ctx context.Context, snap *domain.BalanceSnapshot) error {
	var available any
	if snap.AvailableBalance != nil {
		available = snap.AvailableBalance.StringFixed(2)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sys_balance_snapshots
		SET balance = ?, available_balance = ?, updated_at = current_timestamp
		WHERE account_id = ? AND source = ? AND snapshot_time = ?`,
		snap.Balance.StringFixed(2), available,
		snap.AccountID.String(), snap.Source, formatTimestamp(snap.SnapshotTime))
	if err != nil {
		return fmt.Errorf("AppendSnapshot: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sys_balance_snapshots
			(id, account_id, balance, available_balance, snapshot_time, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.AccountID.String(),
		snap.Balance.StringFixed(2), available,
		formatTimestamp(snap.SnapshotTime), snap.Source,
		formatTimestamp(snap.CreatedAt), formatTimestamp(snap.UpdatedAt))
	if err != nil {
		return fmt.Errorf("AppendSnapshot: insert: %w", err)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot for an account across all
// sources, or nil when the account has none.
func (s *Store) LatestSnapshot(ctx context.Context, accountID uuid.UUID) (*domain.BalanceSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id::VARCHAR, account_id::VARCHAR, balance::VARCHAR,
		       available_balance::VARCHAR, snapshot_time::VARCHAR, source,
		       created_at::VARCHAR, updated_at::VARCHAR
		FROM sys_balance_snapshots
		WHERE account_id = ?
		ORDER BY snapshot_time DESC LIMIT 1`, accountID.String())
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestSnapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns an account's snapshots in time order.
func (s *Store) ListSnapshots(ctx context.Context, accountID uuid.UUID) ([]*domain.BalanceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::VARCHAR, account_id::VARCHAR, balance::VARCHAR,
		       available_balance::VARCHAR, snapshot_time::VARCHAR, source,
		       created_at::VARCHAR, updated_at::VARCHAR
		FROM sys_balance_snapshots
		WHERE account_id = ?
		ORDER BY snapshot_time ASC`, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("ListSnapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.BalanceSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("ListSnapshots: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListSnapshots: %w", err)
	}
	return snaps, nil
}

func scanSnapshot(row rowScanner) (*domain.BalanceSnapshot, error) {
	var (
		snap                      domain.BalanceSnapshot
		idStr, accountIDStr       string
		balanceStr, snapTimeStr   string
		createdAt, updatedAt      string
		available                 sql.NullString
	)
	err := row.Scan(&idStr, &accountIDStr, &balanceStr, &available,
		&snapTimeStr, &snap.Source, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if snap.ID, err = parseUUID(idStr); err != nil {
		return nil, err
	}
	if snap.AccountID, err = parseUUID(accountIDStr); err != nil {
		return nil, err
	}
	if snap.Balance, err = parseDecimal(balanceStr); err != nil {
		return nil, err
	}
	if available.Valid {
		d, err := parseDecimal(available.String)
		if err != nil {
			return nil, err
		}
		snap.AvailableBalance = &d
	}
	if snap.SnapshotTime, err = parseTimestamp(snapTimeStr); err != nil {
		return nil, err
	}
	if snap.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if snap.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &snap, nil
}
