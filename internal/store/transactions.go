package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledgerstore/internal/domain"
)

// transactionColumns is the shared SELECT list for transaction scans. Order
// must match scanTransaction. tags travel as a unit-separator joined string.
const transactionColumns = `
	t.id::VARCHAR, t.account_id::VARCHAR, t.amount::VARCHAR, t.description,
	t.transaction_date::VARCHAR, t.posted_date::VARCHAR,
	coalesce(array_to_string(t.tags, chr(31)), ''), t.auto_tagged,
	t.parent_transaction_id::VARCHAR, t.deleted_at::VARCHAR, t.is_manual,
	t.csv_fingerprint, t.csv_batch_id,
	t.sf_id, t.sf_posted, t.sf_amount, t.sf_description, t.sf_transacted_at,
	t.sf_pending, t.sf_extra,
	t.lf_id, t.lf_account_id, t.lf_amount::VARCHAR, t.lf_currency,
	t.lf_date::VARCHAR, t.lf_merchant, t.lf_description, t.lf_is_pending,
	t.created_at::VARCHAR, t.updated_at::VARCHAR`

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	AccountID      *uuid.UUID
	From           *time.Time
	To             *time.Time
	IncludeDeleted bool
}

// InsertTransaction writes a new transaction row.
func (s *Store) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	return s.insertTransaction(ctx, s.db, t)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insertTransaction(ctx context.Context, db execer, t *domain.Transaction) error {
	var (
		parentID, deletedAt                        any
		sfID, sfPosted, sfAmount, sfDesc           any
		sfTransactedAt, sfPending, sfExtra         any
		lfID, lfAccountID, lfAmount, lfCurrency    any
		lfDate, lfMerchant, lfDesc, lfPending      any
	)
	if t.ParentTransactionID != nil {
		parentID = t.ParentTransactionID.String()
	}
	if t.DeletedAt != nil {
		deletedAt = formatTimestamp(*t.DeletedAt)
	}
	if sf := t.SimpleFIN; sf != nil {
		sfID, sfPosted, sfAmount = nullable(sf.ID), sf.Posted, nullable(sf.Amount)
		sfDesc = nullable(sf.Description)
		sfTransactedAt = nullableInt64(sf.TransactedAt)
		sfPending = nullableBool(sf.Pending)
		if len(sf.Extra) > 0 {
			sfExtra = string(sf.Extra)
		}
	}
	if lf := t.Lunchflow; lf != nil {
		lfID, lfAccountID = nullable(lf.ID), nullable(lf.AccountID)
		lfAmount, lfCurrency = lf.Amount.StringFixed(2), nullable(lf.Currency)
		if !lf.Date.IsZero() {
			lfDate = formatDate(lf.Date)
		}
		lfMerchant, lfDesc = nullable(lf.Merchant), nullable(lf.Description)
		lfPending = nullableBool(lf.IsPending)
	}

	// tags is a list literal, the driver does not bind slices
	query := fmt.Sprintf(`
		INSERT INTO sys_transactions (
			id, account_id, amount, description, transaction_date, posted_date,
			tags, auto_tagged, parent_transaction_id, deleted_at, is_manual,
			csv_fingerprint, csv_batch_id,
			sf_id, sf_posted, sf_amount, sf_description, sf_transacted_at,
			sf_pending, sf_extra,
			lf_id, lf_account_id, lf_amount, lf_currency, lf_date, lf_merchant,
			lf_description, lf_is_pending,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, %s, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tagsLiteral(t.Tags))

	_, err := db.ExecContext(ctx, query,
		t.ID.String(), t.AccountID.String(), t.Amount.StringFixed(2),
		nullable(t.Description), formatDate(t.TransactionDate), formatDate(t.PostedDate),
		t.AutoTagged, parentID, deletedAt, t.IsManual,
		nullable(t.CSVFingerprint), nullable(t.CSVBatchID),
		sfID, sfPosted, sfAmount, sfDesc, sfTransactedAt, sfPending, sfExtra,
		lfID, lfAccountID, lfAmount, lfCurrency, lfDate, lfMerchant, lfDesc, lfPending,
		formatTimestamp(t.CreatedAt), formatTimestamp(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("InsertTransaction: %w", err)
	}
	return nil
}

// UpdateTransactionFromProvider refreshes the provider-owned subset: amount,
// description, dates, and the provider raw field family. Tags, splits, the
// manual flag and soft-delete state are user-owned and untouched.
func (s *Store) UpdateTransactionFromProvider(ctx context.Context, t *domain.Transaction) error {
	set := `amount = ?, description = ?, transaction_date = ?, posted_date = ?`
	args := []any{t.Amount.StringFixed(2), nullable(t.Description),
		formatDate(t.TransactionDate), formatDate(t.PostedDate)}

	if sf := t.SimpleFIN; sf != nil {
		set += `, sf_posted = ?, sf_amount = ?, sf_description = ?,
			sf_transacted_at = ?, sf_pending = ?, sf_extra = ?`
		var extra any
		if len(sf.Extra) > 0 {
			extra = string(sf.Extra)
		}
		args = append(args, sf.Posted, nullable(sf.Amount), nullable(sf.Description),
			nullableInt64(sf.TransactedAt), nullableBool(sf.Pending), extra)
	}
	if lf := t.Lunchflow; lf != nil {
		set += `, lf_amount = ?, lf_currency = ?, lf_date = ?, lf_merchant = ?,
			lf_description = ?, lf_is_pending = ?`
		var lfDate any
		if !lf.Date.IsZero() {
			lfDate = formatDate(lf.Date)
		}
		args = append(args, lf.Amount.StringFixed(2), nullable(lf.Currency), lfDate,
			nullable(lf.Merchant), nullable(lf.Description), nullableBool(lf.IsPending))
	}

	set += `, updated_at = current_timestamp`
	args = append(args, t.ID.String())

	res, err := s.db.ExecContext(ctx, `UPDATE sys_transactions SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("UpdateTransactionFromProvider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateTransactionFromProvider: %w", ErrTransactionNotFound)
	}
	return nil
}

// SetTransactionTags replaces a transaction's tags.
func (s *Store) SetTransactionTags(ctx context.Context, id uuid.UUID, tags []string, autoTagged bool) error {
	query := fmt.Sprintf(
		`UPDATE sys_transactions SET tags = %s, auto_tagged = ?, updated_at = current_timestamp WHERE id = ?`,
		tagsLiteral(domain.NormalizeTags(tags)))
	res, err := s.db.ExecContext(ctx, query, autoTagged, id.String())
	if err != nil {
		return fmt.Errorf("SetTransactionTags: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("SetTransactionTags: %w", ErrTransactionNotFound)
	}
	return nil
}

// SoftDeleteTransaction marks a transaction deleted. The row stays for
// identity lookups so a later sync does not resurrect it as new.
func (s *Store) SoftDeleteTransaction(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sys_transactions SET deleted_at = current_timestamp, updated_at = current_timestamp
		 WHERE id = ? AND deleted_at IS NULL`, id.String())
	if err != nil {
		return fmt.Errorf("SoftDeleteTransaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("SoftDeleteTransaction: %w", ErrTransactionNotFound)
	}
	return nil
}

// SplitPart describes one child of a split.
type SplitPart struct {
	Amount      decimal.Decimal
	Description string
	Tags        []string
}

// CreateSplit inserts child transactions referencing the parent. The parent
// row is kept as is: its amount never changes and it stays visible. A child
// cannot itself be split.
func (s *Store) CreateSplit(ctx context.Context, parentID uuid.UUID, parts []SplitPart) ([]*domain.Transaction, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("CreateSplit: no parts")
	}

	parent, err := s.GetTransaction(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("CreateSplit: %w", err)
	}
	if parent.DeletedAt != nil {
		return nil, fmt.Errorf("CreateSplit: transaction %s is deleted", parentID)
	}
	if parent.ParentTransactionID != nil {
		return nil, fmt.Errorf("CreateSplit: transaction %s is itself a split child", parentID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateSplit: begin: %w", err)
	}
	defer tx.Rollback()

	children := make([]*domain.Transaction, 0, len(parts))
	for _, part := range parts {
		child := domain.NewTransaction(uuid.New(), parent.AccountID, part.Amount, parent.TransactionDate)
		child.PostedDate = parent.PostedDate
		child.Description = part.Description
		if child.Description == "" {
			child.Description = parent.Description
		}
		child.Tags = domain.NormalizeTags(part.Tags)
		pid := parentID
		child.ParentTransactionID = &pid
		if err := s.insertTransaction(ctx, tx, child); err != nil {
			return nil, fmt.Errorf("CreateSplit: %w", err)
		}
		children = append(children, child)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateSplit: commit: %w", err)
	}
	return children, nil
}

// GetTransaction fetches one transaction by id, deleted or not.
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM sys_transactions t WHERE t.id = ?`, id.String())
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("GetTransaction: %w", ErrTransactionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return t, nil
}

// FindTransactionBySimpleFINID looks a transaction up by SimpleFIN native id.
// Soft-deleted rows are included so syncs do not resurrect them.
func (s *Store) FindTransactionBySimpleFINID(ctx context.Context, providerID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM sys_transactions t WHERE t.sf_id = ?`, providerID)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("FindTransactionBySimpleFINID: %w", ErrTransactionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("FindTransactionBySimpleFINID: %w", err)
	}
	return t, nil
}

// FindTransactionByLunchflowID looks a transaction up by Lunchflow native id.
func (s *Store) FindTransactionByLunchflowID(ctx context.Context, providerID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM sys_transactions t WHERE t.lf_id = ?`, providerID)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("FindTransactionByLunchflowID: %w", ErrTransactionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("FindTransactionByLunchflowID: %w", err)
	}
	return t, nil
}

// FindTransactionByCSVIdentity looks a transaction up by its
// (fingerprint, batch) pair. The pair is the identity: the same row content
// imported in two different batches is two transactions.
func (s *Store) FindTransactionByCSVIdentity(ctx context.Context, fingerprint, batchID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM sys_transactions t
		 WHERE t.csv_fingerprint = ? AND t.csv_batch_id = ?`, fingerprint, batchID)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("FindTransactionByCSVIdentity: %w", ErrTransactionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("FindTransactionByCSVIdentity: %w", err)
	}
	return t, nil
}

// ListTransactions returns transactions matching the filter, newest first.
// Soft-deleted rows are excluded unless IncludeDeleted is set.
func (s *Store) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM sys_transactions t WHERE 1=1`
	var args []any
	if !filter.IncludeDeleted {
		query += ` AND t.deleted_at IS NULL`
	}
	if filter.AccountID != nil {
		query += ` AND t.account_id = ?`
		args = append(args, filter.AccountID.String())
	}
	if filter.From != nil {
		query += ` AND t.transaction_date >= ?`
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		query += ` AND t.transaction_date <= ?`
		args = append(args, formatDate(*filter.To))
	}
	query += ` ORDER BY t.transaction_date DESC, t.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return txs, nil
}

// MaxTransactionDate returns the newest non-deleted transaction date for an
// account, or nil when the account has none. Drives the incremental sync
// window.
func (s *Store) MaxTransactionDate(ctx context.Context, accountID uuid.UUID) (*time.Time, error) {
	var ds sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT max(transaction_date)::VARCHAR FROM sys_transactions
		 WHERE account_id = ? AND deleted_at IS NULL`, accountID.String()).Scan(&ds)
	if err != nil {
		return nil, fmt.Errorf("MaxTransactionDate: %w", err)
	}
	if !ds.Valid {
		return nil, nil
	}
	d, err := parseDate(ds.String)
	if err != nil {
		return nil, fmt.Errorf("MaxTransactionDate: %w", err)
	}
	return &d, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t                                  domain.Transaction
		idStr, accountIDStr, amountStr     string
		txDateStr, tagsJoined              string
		createdAt, updatedAt               string
		description, postedDateStr         sql.NullString
		parentIDStr, deletedAtStr          sql.NullString
		csvFingerprint, csvBatchID         sql.NullString
		sfID, sfAmount, sfDesc, sfExtra    sql.NullString
		sfPosted, sfTransactedAt           sql.NullInt64
		sfPending                          sql.NullBool
		lfID, lfAccountID, lfAmount        sql.NullString
		lfCurrency, lfDate, lfMerchant     sql.NullString
		lfDesc                             sql.NullString
		lfPending                          sql.NullBool
	)

	err := row.Scan(
		&idStr, &accountIDStr, &amountStr, &description,
		&txDateStr, &postedDateStr, &tagsJoined, &t.AutoTagged,
		&parentIDStr, &deletedAtStr, &t.IsManual,
		&csvFingerprint, &csvBatchID,
		&sfID, &sfPosted, &sfAmount, &sfDesc, &sfTransactedAt, &sfPending, &sfExtra,
		&lfID, &lfAccountID, &lfAmount, &lfCurrency, &lfDate, &lfMerchant, &lfDesc, &lfPending,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.ID, err = parseUUID(idStr); err != nil {
		return nil, err
	}
	if t.AccountID, err = parseUUID(accountIDStr); err != nil {
		return nil, err
	}
	if t.Amount, err = parseDecimal(amountStr); err != nil {
		return nil, err
	}
	t.Description = stringOrEmpty(description)
	if t.TransactionDate, err = parseDate(txDateStr); err != nil {
		return nil, err
	}
	if postedDateStr.Valid {
		if t.PostedDate, err = parseDate(postedDateStr.String); err != nil {
			return nil, err
		}
	} else {
		t.PostedDate = t.TransactionDate
	}
	t.Tags = splitTags(tagsJoined)
	if parentIDStr.Valid {
		pid, err := parseUUID(parentIDStr.String)
		if err != nil {
			return nil, err
		}
		t.ParentTransactionID = &pid
	}
	if deletedAtStr.Valid {
		ts, err := parseTimestamp(deletedAtStr.String)
		if err != nil {
			return nil, err
		}
		t.DeletedAt = &ts
	}
	t.CSVFingerprint = stringOrEmpty(csvFingerprint)
	t.CSVBatchID = stringOrEmpty(csvBatchID)

	if sfID.Valid {
		sf := &domain.SimpleFINTransactionFields{
			ID:          sfID.String,
			Posted:      sfPosted.Int64,
			Amount:      stringOrEmpty(sfAmount),
			Description: stringOrEmpty(sfDesc),
		}
		if sfTransactedAt.Valid {
			v := sfTransactedAt.Int64
			sf.TransactedAt = &v
		}
		if sfPending.Valid {
			v := sfPending.Bool
			sf.Pending = &v
		}
		if sfExtra.Valid {
			sf.Extra = json.RawMessage(sfExtra.String)
		}
		t.SimpleFIN = sf
	}
	if lfID.Valid {
		lf := &domain.LunchflowTransactionFields{
			ID:          lfID.String,
			AccountID:   stringOrEmpty(lfAccountID),
			Currency:    stringOrEmpty(lfCurrency),
			Merchant:    stringOrEmpty(lfMerchant),
			Description: stringOrEmpty(lfDesc),
		}
		if lfAmount.Valid {
			if lf.Amount, err = parseDecimal(lfAmount.String); err != nil {
				return nil, err
			}
		}
		if lfDate.Valid {
			if lf.Date, err = parseDate(lfDate.String); err != nil {
				return nil, err
			}
		}
		if lfPending.Valid {
			v := lfPending.Bool
			lf.IsPending = &v
		}
		t.Lunchflow = lf
	}

	if t.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
