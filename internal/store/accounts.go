package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dvloznov/ledgerstore/internal/domain"
)

// accountColumns is the shared SELECT list for account scans. Order must
// match scanAccount.
const accountColumns = `
	a.id::VARCHAR, a.name, a.nickname, a.account_type, a.classification,
	a.currency, a.is_manual, a.institution_name, a.institution_url, a.institution_domain,
	a.sf_id, a.sf_name, a.sf_currency, a.sf_balance, a.sf_available_balance,
	a.sf_balance_date, a.sf_org_name, a.sf_org_url, a.sf_org_domain, a.sf_extra,
	a.lf_id, a.lf_name, a.lf_institution_name, a.lf_institution_logo,
	a.lf_provider, a.lf_currency, a.lf_status,
	a.created_at::VARCHAR, a.updated_at::VARCHAR,
	(SELECT s.balance::VARCHAR FROM sys_balance_snapshots s
	 WHERE s.account_id = a.id ORDER BY s.snapshot_time DESC LIMIT 1)`

// InsertAccount writes a new account row. Classification must already be
// materialized by the caller.
func (s *Store) InsertAccount(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("InsertAccount: %w", err)
	}

	var (
		sfID, sfName, sfCurrency, sfBalance, sfAvailable       any
		sfBalanceDate                                          any
		sfOrgName, sfOrgURL, sfOrgDomain, sfExtra              any
		lfID, lfName, lfInstName, lfInstLogo, lfProv, lfCur, lfStatus any
	)
	if sf := a.SimpleFIN; sf != nil {
		sfID, sfName, sfCurrency = nullable(sf.ID), nullable(sf.Name), nullable(sf.Currency)
		sfBalance, sfAvailable = nullable(sf.Balance), nullable(sf.AvailableBalance)
		sfBalanceDate = sf.BalanceDate
		sfOrgName, sfOrgURL, sfOrgDomain = nullable(sf.OrgName), nullable(sf.OrgURL), nullable(sf.OrgDomain)
		if len(sf.Extra) > 0 {
			sfExtra = string(sf.Extra)
		}
	}
	if lf := a.Lunchflow; lf != nil {
		lfID, lfName = nullable(lf.ID), nullable(lf.Name)
		lfInstName, lfInstLogo = nullable(lf.InstitutionName), nullable(lf.InstitutionLogo)
		lfProv, lfCur, lfStatus = nullable(lf.Provider), nullable(lf.Currency), nullable(lf.Status)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sys_accounts (
			id, name, nickname, account_type, classification, currency, is_manual,
			institution_name, institution_url, institution_domain,
			sf_id, sf_name, sf_currency, sf_balance, sf_available_balance,
			sf_balance_date, sf_org_name, sf_org_url, sf_org_domain, sf_extra,
			lf_id, lf_name, lf_institution_name, lf_institution_logo,
			lf_provider, lf_currency, lf_status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Name, nullable(a.Nickname), nullable(a.AccountType),
		a.Classification, a.Currency, a.IsManual,
		nullable(a.InstitutionName), nullable(a.InstitutionURL), nullable(a.InstitutionDomain),
		sfID, sfName, sfCurrency, sfBalance, sfAvailable,
		sfBalanceDate, sfOrgName, sfOrgURL, sfOrgDomain, sfExtra,
		lfID, lfName, lfInstName, lfInstLogo, lfProv, lfCur, lfStatus,
		formatTimestamp(a.CreatedAt), formatTimestamp(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("InsertAccount: %w", err)
	}
	return nil
}

// UpdateAccountFromProvider refreshes the provider-owned subset of an
// account: display name, type, currency, institution, and the provider raw
// field family. Nickname and classification are user-owned and untouched.
func (s *Store) UpdateAccountFromProvider(ctx context.Context, a *domain.Account) error {
	args := []any{a.Name, nullable(a.AccountType), a.Currency,
		nullable(a.InstitutionName), nullable(a.InstitutionURL), nullable(a.InstitutionDomain)}
	set := `name = ?, account_type = ?, currency = ?,
		institution_name = ?, institution_url = ?, institution_domain = ?`

	if sf := a.SimpleFIN; sf != nil {
		set += `, sf_name = ?, sf_currency = ?, sf_balance = ?, sf_available_balance = ?,
			sf_balance_date = ?, sf_org_name = ?, sf_org_url = ?, sf_org_domain = ?, sf_extra = ?`
		var extra any
		if len(sf.Extra) > 0 {
			extra = string(sf.Extra)
		}
		args = append(args, nullable(sf.Name), nullable(sf.Currency),
			nullable(sf.Balance), nullable(sf.AvailableBalance), sf.BalanceDate,
			nullable(sf.OrgName), nullable(sf.OrgURL), nullable(sf.OrgDomain), extra)
	}
	if lf := a.Lunchflow; lf != nil {
		set += `, lf_name = ?, lf_institution_name = ?, lf_institution_logo = ?,
			lf_provider = ?, lf_currency = ?, lf_status = ?`
		args = append(args, nullable(lf.Name), nullable(lf.InstitutionName),
			nullable(lf.InstitutionLogo), nullable(lf.Provider),
			nullable(lf.Currency), nullable(lf.Status))
	}

	set += `, updated_at = current_timestamp`
	args = append(args, a.ID.String())

	res, err := s.db.ExecContext(ctx, `UPDATE sys_accounts SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("UpdateAccountFromProvider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateAccountFromProvider: %w", ErrAccountNotFound)
	}
	return nil
}

// SetAccountNickname sets the user-owned display nickname.
func (s *Store) SetAccountNickname(ctx context.Context, id uuid.UUID, nickname string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sys_accounts SET nickname = ?, updated_at = current_timestamp WHERE id = ?`,
		nullable(nickname), id.String())
	if err != nil {
		return fmt.Errorf("SetAccountNickname: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("SetAccountNickname: %w", ErrAccountNotFound)
	}
	return nil
}

// SetAccountClassification overrides the materialized classification. The
// override sticks: provider updates never touch classification again.
func (s *Store) SetAccountClassification(ctx context.Context, id uuid.UUID, classification string) error {
	if classification != domain.ClassificationAsset && classification != domain.ClassificationLiability {
		return fmt.Errorf("SetAccountClassification: invalid classification %q", classification)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sys_accounts SET classification = ?, updated_at = current_timestamp WHERE id = ?`,
		classification, id.String())
	if err != nil {
		return fmt.Errorf("SetAccountClassification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("SetAccountClassification: %w", ErrAccountNotFound)
	}
	return nil
}

// GetAccount fetches one account by id.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM sys_accounts a WHERE a.id = ?`, id.String())
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("GetAccount: %w", ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return a, nil
}

// FindAccountBySimpleFINID looks an account up by its SimpleFIN native id.
func (s *Store) FindAccountBySimpleFINID(ctx context.Context, providerID string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM sys_accounts a WHERE a.sf_id = ?`, providerID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("FindAccountBySimpleFINID: %w", ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("FindAccountBySimpleFINID: %w", err)
	}
	return a, nil
}

// FindAccountByLunchflowID looks an account up by its Lunchflow native id.
func (s *Store) FindAccountByLunchflowID(ctx context.Context, providerID string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM sys_accounts a WHERE a.lf_id = ?`, providerID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("FindAccountByLunchflowID: %w", ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("FindAccountByLunchflowID: %w", err)
	}
	return a, nil
}

// ListAccounts returns all accounts ordered by name, with latest balances
// attached.
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM sys_accounts a ORDER BY a.name, a.id`)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return accounts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a                                     domain.Account
		idStr, createdAt, updatedAt           string
		nickname, accountType                 sql.NullString
		instName, instURL, instDomain         sql.NullString
		sfID, sfName, sfCurrency              sql.NullString
		sfBalance, sfAvailable                sql.NullString
		sfBalanceDate                         sql.NullInt64
		sfOrgName, sfOrgURL, sfOrgDomain      sql.NullString
		sfExtra                               sql.NullString
		lfID, lfName, lfInstName, lfInstLogo  sql.NullString
		lfProv, lfCur, lfStatus               sql.NullString
		latestBalance                         sql.NullString
	)

	err := row.Scan(
		&idStr, &a.Name, &nickname, &accountType, &a.Classification,
		&a.Currency, &a.IsManual, &instName, &instURL, &instDomain,
		&sfID, &sfName, &sfCurrency, &sfBalance, &sfAvailable,
		&sfBalanceDate, &sfOrgName, &sfOrgURL, &sfOrgDomain, &sfExtra,
		&lfID, &lfName, &lfInstName, &lfInstLogo, &lfProv, &lfCur, &lfStatus,
		&createdAt, &updatedAt, &latestBalance,
	)
	if err != nil {
		return nil, err
	}

	if a.ID, err = parseUUID(idStr); err != nil {
		return nil, err
	}
	a.Nickname = stringOrEmpty(nickname)
	a.AccountType = stringOrEmpty(accountType)
	a.InstitutionName = stringOrEmpty(instName)
	a.InstitutionURL = stringOrEmpty(instURL)
	a.InstitutionDomain = stringOrEmpty(instDomain)

	if sfID.Valid {
		sf := &domain.SimpleFINAccountFields{
			ID:               sfID.String,
			Name:             stringOrEmpty(sfName),
			Currency:         stringOrEmpty(sfCurrency),
			Balance:          stringOrEmpty(sfBalance),
			AvailableBalance: stringOrEmpty(sfAvailable),
			BalanceDate:      sfBalanceDate.Int64,
			OrgName:          stringOrEmpty(sfOrgName),
			OrgURL:           stringOrEmpty(sfOrgURL),
			OrgDomain:        stringOrEmpty(sfOrgDomain),
		}
		if sfExtra.Valid {
			sf.Extra = json.RawMessage(sfExtra.String)
		}
		a.SimpleFIN = sf
	}
	if lfID.Valid {
		a.Lunchflow = &domain.LunchflowAccountFields{
			ID:              lfID.String,
			Name:            stringOrEmpty(lfName),
			InstitutionName: stringOrEmpty(lfInstName),
			InstitutionLogo: stringOrEmpty(lfInstLogo),
			Provider:        stringOrEmpty(lfProv),
			Currency:        stringOrEmpty(lfCur),
			Status:          stringOrEmpty(lfStatus),
		}
	}

	if a.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	if latestBalance.Valid {
		d, err := parseDecimal(latestBalance.String)
		if err != nil {
			return nil, err
		}
		a.LatestBalance = &d
	}
	return &a, nil
}
