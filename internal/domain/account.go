package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Classification values for an account. Classification determines how an
// account's balance contributes to net worth.
const (
	ClassificationAsset     = "asset"
	ClassificationLiability = "liability"
)

// Account is a financial account known to the system.
//
// Core fields are normalized across every ingestion path. Each external
// provider additionally gets its own raw-field family (SimpleFIN, Lunchflow),
// kept verbatim as delivered; a family pointer is non-nil exactly when that
// provider supplied the account. account_type follows Plaid nomenclature:
// common values are "depository", "credit", "investment", "loan", "other",
// but any string is accepted.
type Account struct {
	ID          uuid.UUID
	Name        string
	Nickname    string
	AccountType string
	// Classification is "asset" or "liability". It is materialized on first
	// insert (from AccountType unless explicitly set) and not recomputed per
	// query, so later changes to the mapping rule leave historical accounts
	// untouched.
	Classification    string
	Currency          string
	IsManual          bool
	InstitutionName   string
	InstitutionURL    string
	InstitutionDomain string
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// LatestBalance is populated on reads from the most recent balance
	// snapshot. It is never written back to sys_accounts.
	LatestBalance *decimal.Decimal

	SimpleFIN *SimpleFINAccountFields
	Lunchflow *LunchflowAccountFields
}

// SimpleFINAccountFields is the lossless passthrough of a SimpleFIN account
// record (https://www.simplefin.org/protocol.html). Balance values stay raw
// strings exactly as the protocol delivers them.
type SimpleFINAccountFields struct {
	ID               string
	Name             string
	Currency         string
	Balance          string
	AvailableBalance string
	BalanceDate      int64
	OrgName          string
	OrgURL           string
	OrgDomain        string
	Extra            json.RawMessage
}

// LunchflowAccountFields is the lossless passthrough of a Lunchflow account
// record.
type LunchflowAccountFields struct {
	ID              string
	Name            string
	InstitutionName string
	InstitutionLogo string
	Provider        string
	Currency        string
	Status          string
}

// NewAccount creates an account with defaults matching a manual creation.
func NewAccount(id uuid.UUID, name string) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:             id,
		Name:           name,
		Classification: ClassificationAsset,
		Currency:       "USD",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ComputeClassification derives the default classification from an account
// type: credit and loan are liabilities, everything else is an asset.
func ComputeClassification(accountType string) string {
	switch strings.ToLower(strings.TrimSpace(accountType)) {
	case "credit", "loan":
		return ClassificationLiability
	default:
		return ClassificationAsset
	}
}

// NormalizeCurrency normalizes an ISO 4217 currency code to uppercase.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// Validate reports structural problems that must block a write.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("account name cannot be empty")
	}
	if strings.TrimSpace(a.Currency) == "" {
		return errors.New("currency cannot be empty")
	}
	if a.Classification != ClassificationAsset && a.Classification != ClassificationLiability {
		return errors.New("classification must be asset or liability")
	}
	if !a.IsManual && a.SimpleFIN == nil && a.Lunchflow == nil {
		return errors.New("externally sourced account must carry a provider identity")
	}
	return nil
}
