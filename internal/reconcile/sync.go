package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledgerstore/internal/domain"
	"github.com/dvloznov/ledgerstore/internal/provider"
	"github.com/dvloznov/ledgerstore/internal/store"
)

const (
	// initialSyncDays is how far back a first sync reaches.
	initialSyncDays = 90
	// overlapDays is re-fetched on every incremental sync so recently
	// pending transactions get their posted state.
	overlapDays = 7
)

// SyncType distinguishes a first sync from an incremental one.
type SyncType string

const (
	SyncInitial     SyncType = "initial"
	SyncIncremental SyncType = "incremental"
)

// Window is the date range an incremental sync considers.
type Window struct {
	Type SyncType
	From time.Time
}

// SyncOptions controls one sync run.
type SyncOptions struct {
	// DryRun decides every record but writes nothing.
	DryRun bool
	// Now anchors window calculation; zero means the current time.
	Now time.Time
}

// SyncResult summarizes one batch reconciliation.
type SyncResult struct {
	Provider             provider.Kind
	DryRun               bool
	AccountsInserted     int
	AccountsUpdated      int
	AccountsNoOp         int
	TransactionsInserted int
	TransactionsUpdated  int
	TransactionsNoOp     int
	TransactionsSkipped  int
	Snapshots            int
	Errors               []provider.RecordError
}

// WindowFor computes the sync window for an account: from the newest known
// transaction minus an overlap, or the initial lookback when the account has
// no history yet.
func (e *Engine) WindowFor(ctx context.Context, accountID uuid.UUID, now time.Time) (Window, error) {
	maxDate, err := e.store.MaxTransactionDate(ctx, accountID)
	if err != nil {
		return Window{}, fmt.Errorf("WindowFor: %w", err)
	}
	if maxDate == nil {
		return Window{Type: SyncInitial, From: now.AddDate(0, 0, -initialSyncDays)}, nil
	}
	return Window{Type: SyncIncremental, From: maxDate.AddDate(0, 0, -overlapDays)}, nil
}

// SyncBatch reconciles a whole normalized payload: accounts first, then
// balance snapshots, then transactions. Per-record failures are collected,
// never fatal. Transactions older than an account's incremental window are
// skipped; an initial sync takes everything the payload carries.
func (e *Engine) SyncBatch(ctx context.Context, batch *provider.Batch, opts SyncOptions) (*SyncResult, error) {
	log := zerolog.Ctx(ctx)
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result := &SyncResult{Provider: batch.Provider, DryRun: opts.DryRun}
	result.Errors = append(result.Errors, batch.Errors...)

	// provider account id -> canonical id
	accountIDs := make(map[string]uuid.UUID, len(batch.Accounts))
	windows := make(map[uuid.UUID]Window)

	for i, rec := range batch.Accounts {
		id, outcome, err := e.reconcileAccount(ctx, rec, opts.DryRun)
		if err != nil {
			result.Errors = append(result.Errors, provider.RecordError{Index: i, Record: "account", Err: err})
			continue
		}
		accountIDs[rec.Key.NativeID] = id
		switch outcome {
		case Inserted:
			result.AccountsInserted++
			windows[id] = Window{Type: SyncInitial, From: now.AddDate(0, 0, -initialSyncDays)}
		case Updated:
			result.AccountsUpdated++
		default:
			result.AccountsNoOp++
		}
		if _, ok := windows[id]; !ok {
			w, err := e.WindowFor(ctx, id, now)
			if err != nil {
				result.Errors = append(result.Errors, provider.RecordError{Index: i, Record: "account", Err: err})
				continue
			}
			windows[id] = w
		}
	}

	for i, snap := range batch.Snapshots {
		accountID, ok := accountIDs[snap.ProviderAccountID]
		if !ok {
			result.Errors = append(result.Errors, provider.RecordError{
				Index: i, Record: "snapshot",
				Err: fmt.Errorf("unknown provider account %q", snap.ProviderAccountID),
			})
			continue
		}
		if opts.DryRun {
			result.Snapshots++
			continue
		}
		rec := domain.NewBalanceSnapshot(accountID, snap.Balance, snap.At, snap.Source)
		rec.AvailableBalance = snap.AvailableBalance
		if err := e.store.AppendSnapshot(ctx, rec); err != nil {
			result.Errors = append(result.Errors, provider.RecordError{Index: i, Record: "snapshot", Err: err})
			continue
		}
		result.Snapshots++
	}

	for i, rec := range batch.Transactions {
		accountID, ok := accountIDs[rec.ProviderAccountID]
		if !ok {
			result.Errors = append(result.Errors, provider.RecordError{
				Index: i, Record: "transaction",
				Err: fmt.Errorf("unknown provider account %q", rec.ProviderAccountID),
			})
			continue
		}
		if w, ok := windows[accountID]; ok && w.Type == SyncIncremental &&
			rec.Transaction.TransactionDate.Before(w.From) {
			result.TransactionsSkipped++
			continue
		}

		outcome, err := e.reconcileTransaction(ctx, accountID, rec, opts.DryRun)
		if err != nil {
			result.Errors = append(result.Errors, provider.RecordError{Index: i, Record: "transaction", Err: err})
			continue
		}
		switch outcome {
		case Inserted:
			result.TransactionsInserted++
		case Updated:
			result.TransactionsUpdated++
		default:
			result.TransactionsNoOp++
		}
	}

	log.Info().
		Str("provider", string(batch.Provider)).
		Bool("dry_run", opts.DryRun).
		Int("accounts_inserted", result.AccountsInserted).
		Int("tx_inserted", result.TransactionsInserted).
		Int("tx_updated", result.TransactionsUpdated).
		Int("tx_noop", result.TransactionsNoOp).
		Int("errors", len(result.Errors)).
		Msg("sync batch reconciled")

	if !opts.DryRun {
		if err := e.store.AppendLog(ctx, "info", "sync_completed", "", map[string]any{
			"provider":     string(batch.Provider),
			"accounts":     result.AccountsInserted + result.AccountsUpdated + result.AccountsNoOp,
			"tx_inserted":  result.TransactionsInserted,
			"tx_updated":   result.TransactionsUpdated,
			"tx_noop":      result.TransactionsNoOp,
			"tx_skipped":   result.TransactionsSkipped,
			"snapshots":    result.Snapshots,
			"error_count":  len(result.Errors),
		}); err != nil {
			log.Warn().Err(err).Msg("recording sync event")
		}
	}
	return result, nil
}

// ImportCSVBatch reconciles a CSV batch into one known account. CSV batches
// carry no provider account mapping; the caller names the account.
func (e *Engine) ImportCSVBatch(ctx context.Context, accountID uuid.UUID, batch *provider.Batch, opts SyncOptions) (*SyncResult, error) {
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, fmt.Errorf("ImportCSVBatch: %w", err)
		}
		return nil, fmt.Errorf("ImportCSVBatch: %w", err)
	}

	result := &SyncResult{Provider: batch.Provider, DryRun: opts.DryRun}
	result.Errors = append(result.Errors, batch.Errors...)

	for i, rec := range batch.Transactions {
		outcome, err := e.reconcileTransaction(ctx, accountID, rec, opts.DryRun)
		if err != nil {
			result.Errors = append(result.Errors, provider.RecordError{Index: i, Record: "transaction", Err: err})
			continue
		}
		switch outcome {
		case Inserted:
			result.TransactionsInserted++
		case Updated:
			result.TransactionsUpdated++
		default:
			result.TransactionsNoOp++
		}
	}

	for i, snap := range batch.Snapshots {
		if opts.DryRun {
			result.Snapshots++
			continue
		}
		rec := domain.NewBalanceSnapshot(accountID, snap.Balance, snap.At, snap.Source)
		rec.AvailableBalance = snap.AvailableBalance
		if err := e.store.AppendSnapshot(ctx, rec); err != nil {
			result.Errors = append(result.Errors, provider.RecordError{Index: i, Record: "snapshot", Err: err})
			continue
		}
		result.Snapshots++
	}

	if !opts.DryRun {
		if err := e.store.AppendLog(ctx, "info", "import_completed", "", map[string]any{
			"tx_inserted": result.TransactionsInserted,
			"tx_noop":     result.TransactionsNoOp,
			"error_count": len(result.Errors),
		}); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("recording import event")
		}
	}
	return result, nil
}
