// Package reconcile merges normalized provider records into the canonical
// store: insert when the identity is new, update the provider-owned subset
// when it changed, and otherwise leave the row alone.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/ledgerstore/internal/domain"
	"github.com/dvloznov/ledgerstore/internal/provider"
	"github.com/dvloznov/ledgerstore/internal/store"
)

// Outcome is the reconciliation decision for one record.
type Outcome int

const (
	NoOp Outcome = iota
	Inserted
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "noop"
	}
}

// Engine reconciles provider records. Work on the same identity key is
// serialized through a keyed lock, so two concurrent syncs of the same
// provider cannot both insert the same record.
type Engine struct {
	store *store.Store
	locks keyedMutex
}

func New(st *store.Store) *Engine {
	return &Engine{store: st}
}

// Store exposes the underlying store for operations that bypass
// reconciliation (tags, splits, deletes).
func (e *Engine) Store() *store.Store {
	return e.store
}

// ReconcileAccount merges one account record and returns the canonical
// account id together with the decision.
func (e *Engine) ReconcileAccount(ctx context.Context, rec provider.AccountRecord) (uuid.UUID, Outcome, error) {
	return e.reconcileAccount(ctx, rec, false)
}

func (e *Engine) reconcileAccount(ctx context.Context, rec provider.AccountRecord, dryRun bool) (uuid.UUID, Outcome, error) {
	unlock := e.locks.lock(rec.Key.String())
	defer unlock()

	existing, err := e.findAccount(ctx, rec.Key)
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		incoming := rec.Account
		incoming.ID = uuid.New()
		if incoming.Currency == "" {
			incoming.Currency = "USD"
		}
		if incoming.Classification == "" {
			incoming.Classification = domain.ComputeClassification(incoming.AccountType)
		}
		now := time.Now().UTC()
		incoming.CreatedAt, incoming.UpdatedAt = now, now
		if dryRun {
			return incoming.ID, Inserted, nil
		}
		if err := e.store.InsertAccount(ctx, incoming); err != nil {
			return uuid.Nil, NoOp, fmt.Errorf("ReconcileAccount: %w", err)
		}
		return incoming.ID, Inserted, nil

	case err != nil:
		return uuid.Nil, NoOp, fmt.Errorf("ReconcileAccount: %w", err)
	}

	if accountSubsetEqual(existing, rec.Account) {
		return existing.ID, NoOp, nil
	}
	if dryRun {
		return existing.ID, Updated, nil
	}
	incoming := rec.Account
	incoming.ID = existing.ID
	if incoming.Currency == "" {
		incoming.Currency = existing.Currency
	}
	if err := e.store.UpdateAccountFromProvider(ctx, incoming); err != nil {
		return uuid.Nil, NoOp, fmt.Errorf("ReconcileAccount: %w", err)
	}
	return existing.ID, Updated, nil
}

// ReconcileTransaction merges one transaction record into the given
// canonical account. Soft-deleted rows match their identity but are never
// updated or resurrected.
func (e *Engine) ReconcileTransaction(ctx context.Context, accountID uuid.UUID, rec provider.TransactionRecord) (Outcome, error) {
	return e.reconcileTransaction(ctx, accountID, rec, false)
}

func (e *Engine) reconcileTransaction(ctx context.Context, accountID uuid.UUID, rec provider.TransactionRecord, dryRun bool) (Outcome, error) {
	unlock := e.locks.lock(rec.Key.String())
	defer unlock()

	existing, err := e.findTransaction(ctx, rec.Key)
	switch {
	case errors.Is(err, store.ErrTransactionNotFound):
		incoming := rec.Transaction
		incoming.ID = uuid.New()
		incoming.AccountID = accountID
		now := time.Now().UTC()
		incoming.CreatedAt, incoming.UpdatedAt = now, now
		if dryRun {
			return Inserted, nil
		}
		if err := e.store.InsertTransaction(ctx, incoming); err != nil {
			return NoOp, fmt.Errorf("ReconcileTransaction: %w", err)
		}
		return Inserted, nil

	case err != nil:
		return NoOp, fmt.Errorf("ReconcileTransaction: %w", err)
	}

	if existing.DeletedAt != nil {
		return NoOp, nil
	}
	if transactionSubsetEqual(existing, rec.Transaction) {
		return NoOp, nil
	}
	if dryRun {
		return Updated, nil
	}
	incoming := rec.Transaction
	incoming.ID = existing.ID
	if err := e.store.UpdateTransactionFromProvider(ctx, incoming); err != nil {
		return NoOp, fmt.Errorf("ReconcileTransaction: %w", err)
	}
	return Updated, nil
}

func (e *Engine) findAccount(ctx context.Context, key provider.IdentityKey) (*domain.Account, error) {
	switch key.Kind {
	case provider.KindSimpleFIN:
		return e.store.FindAccountBySimpleFINID(ctx, key.NativeID)
	case provider.KindLunchflow:
		return e.store.FindAccountByLunchflowID(ctx, key.NativeID)
	default:
		return nil, fmt.Errorf("findAccount: no identity lookup for kind %q", key.Kind)
	}
}

func (e *Engine) findTransaction(ctx context.Context, key provider.IdentityKey) (*domain.Transaction, error) {
	switch key.Kind {
	case provider.KindSimpleFIN:
		return e.store.FindTransactionBySimpleFINID(ctx, key.NativeID)
	case provider.KindLunchflow:
		return e.store.FindTransactionByLunchflowID(ctx, key.NativeID)
	case provider.KindCSVImport:
		return e.store.FindTransactionByCSVIdentity(ctx, key.Fingerprint, key.BatchID)
	default:
		return nil, fmt.Errorf("findTransaction: no identity lookup for kind %q", key.Kind)
	}
}

// accountSubsetEqual compares only the provider-owned subset. User-owned
// fields (nickname, classification) never make a record "changed".
func accountSubsetEqual(existing, incoming *domain.Account) bool {
	if existing.Name != incoming.Name ||
		existing.InstitutionName != incoming.InstitutionName ||
		existing.InstitutionURL != incoming.InstitutionURL ||
		existing.InstitutionDomain != incoming.InstitutionDomain {
		return false
	}
	if incoming.Currency != "" && existing.Currency != incoming.Currency {
		return false
	}
	if !reflect.DeepEqual(existing.SimpleFIN, incoming.SimpleFIN) {
		return false
	}
	return reflect.DeepEqual(existing.Lunchflow, incoming.Lunchflow)
}

// transactionSubsetEqual compares the provider-owned subset. Tags, splits
// and the manual flag are user-owned.
func transactionSubsetEqual(existing, incoming *domain.Transaction) bool {
	if !existing.Amount.Equal(incoming.Amount) ||
		existing.Description != incoming.Description ||
		!existing.TransactionDate.Equal(incoming.TransactionDate) ||
		!existing.PostedDate.Equal(incoming.PostedDate) {
		return false
	}
	if !simpleFINTxEqual(existing.SimpleFIN, incoming.SimpleFIN) {
		return false
	}
	return lunchflowTxEqual(existing.Lunchflow, incoming.Lunchflow)
}

func simpleFINTxEqual(a, b *domain.SimpleFINTransactionFields) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.ID == b.ID && a.Posted == b.Posted && a.Amount == b.Amount &&
		a.Description == b.Description &&
		int64PtrEqual(a.TransactedAt, b.TransactedAt) &&
		boolPtrEqual(a.Pending, b.Pending) &&
		string(a.Extra) == string(b.Extra)
}

func lunchflowTxEqual(a, b *domain.LunchflowTransactionFields) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.ID == b.ID && a.AccountID == b.AccountID &&
		a.Amount.Equal(b.Amount) && a.Currency == b.Currency &&
		a.Date.Equal(b.Date) && a.Merchant == b.Merchant &&
		a.Description == b.Description && boolPtrEqual(a.IsPending, b.IsPending)
}

func int64PtrEqual(a, b *int64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func boolPtrEqual(a, b *bool) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// keyedMutex serializes work per identity key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*entry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
