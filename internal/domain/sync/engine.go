// Package sync pulls account and transaction state from the provider and
// reconciles the local store with it.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ledgerlink/internal/domain/item"
	"ledgerlink/internal/infrastructure/provider"
)

// ErrSyncFailed wraps transient provider failures during the critical
// account phase. The item's status is left untouched; a later run retries.
var ErrSyncFailed = errors.New("sync failed")

// Result summarizes one sync run.
type Result struct {
	ItemID               string
	AccountsSynced       int
	AccountsRemoved      int64
	TransactionsAdded    int
	TransactionsModified int
	TransactionsRemoved  int
}

// Engine runs the two-phase sync: accounts first, as the critical phase,
// then the incremental transaction feed, which tolerates failure because the
// cursor lets the next run pick up where this one stopped.
type Engine struct {
	gateway      provider.Gateway
	vault        item.Vault
	items        item.Repository
	accounts     item.AccountRepository
	transactions item.TransactionStore

	now func() time.Time
}

// NewEngine creates a sync engine.
func NewEngine(
	gateway provider.Gateway,
	vault item.Vault,
	items item.Repository,
	accounts item.AccountRepository,
	transactions item.TransactionStore,
) *Engine {
	return &Engine{
		gateway:      gateway,
		vault:        vault,
		items:        items,
		accounts:     accounts,
		transactions: transactions,
		now:          time.Now,
	}
}

// Run satisfies the lifecycle manager's SyncRunner dependency.
func (e *Engine) Run(ctx context.Context, itemID string) error {
	_, err := e.SyncItem(ctx, itemID)
	return err
}

// SyncItem syncs one item. Account failures abort the run: auth-class
// provider errors demote the item to error status, anything else leaves the
// status untouched and returns ErrSyncFailed. Transaction failures are
// logged and absorbed; the unadvanced cursor makes the next run retry the
// same page.
func (e *Engine) SyncItem(ctx context.Context, itemID string) (*Result, error) {
	it, err := e.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item: %w", err)
	}
	if it == nil || it.DeletedAt != nil {
		return nil, item.ErrItemNotFound
	}

	accessToken, err := e.vault.Decrypt(it.AccessTokenEncrypted)
	if err != nil {
		return nil, err
	}

	result := &Result{ItemID: it.ID}

	if err := e.syncAccounts(ctx, it, accessToken, result); err != nil {
		return nil, err
	}

	if it.Status != item.StatusActive {
		if err := e.items.SetStatusActive(ctx, it.ID); err != nil {
			return nil, fmt.Errorf("failed to activate item: %w", err)
		}
	}

	e.syncTransactions(ctx, it, accessToken, result)

	return result, nil
}

func (e *Engine) syncAccounts(ctx context.Context, it *item.Item, accessToken string, result *Result) error {
	providerAccounts, err := e.gateway.GetAccounts(ctx, accessToken)
	if err != nil {
		var perr *provider.Error
		if errors.As(err, &perr) && perr.AuthClass() {
			if serr := e.items.SetStatusError(ctx, it.ID, perr.Code, perr.Message); serr != nil {
				log.Printf("Item %s: failed to mark errored: %v", it.ID, serr)
			}
			return fmt.Errorf("provider rejected credentials: %w", err)
		}
		return fmt.Errorf("%w: failed to fetch accounts: %v", ErrSyncFailed, err)
	}

	keepIDs := make([]string, 0, len(providerAccounts))
	for _, acct := range providerAccounts {
		keepIDs = append(keepIDs, acct.ID)
		if _, err := e.accounts.Upsert(ctx, item.UpsertAccountParams{
			ID:               acct.ID,
			ItemID:           it.ID,
			UserID:           it.UserID,
			Name:             acct.Name,
			Mask:             acct.Mask,
			Type:             acct.Type,
			Subtype:          acct.Subtype,
			CurrentBalance:   acct.CurrentBalance,
			AvailableBalance: acct.AvailableBalance,
			CreditLimit:      acct.CreditLimit,
			CurrencyCode:     acct.CurrencyCode,
		}); err != nil {
			return fmt.Errorf("%w: failed to upsert account %s: %v", ErrSyncFailed, acct.ID, err)
		}
	}

	removed, err := e.accounts.SoftDeleteMissing(ctx, it.ID, keepIDs, e.now())
	if err != nil {
		return fmt.Errorf("%w: failed to tombstone missing accounts: %v", ErrSyncFailed, err)
	}

	result.AccountsSynced = len(providerAccounts)
	result.AccountsRemoved = removed
	return nil
}

// syncTransactions walks the cursor feed page by page. Each page is applied
// together with its next cursor in one store transaction, so a crash between
// pages replays at most one page and the upserts keep that harmless.
func (e *Engine) syncTransactions(ctx context.Context, it *item.Item, accessToken string, result *Result) {
	cursor := it.Cursor
	for {
		page, err := e.gateway.SyncTransactions(ctx, accessToken, cursor)
		if err != nil {
			var perr *provider.Error
			if errors.As(err, &perr) && perr.AuthClass() {
				if serr := e.items.SetStatusError(ctx, it.ID, perr.Code, perr.Message); serr != nil {
					log.Printf("Item %s: failed to mark errored: %v", it.ID, serr)
				}
			}
			log.Printf("Item %s: transaction sync stopped at cursor %q: %v", it.ID, cursor, err)
			return
		}

		apply := item.TransactionsPageApply{
			Upserts:    make([]item.UpsertTransactionParams, 0, len(page.Added)+len(page.Modified)),
			RemovedIDs: page.RemovedIDs,
			NextCursor: page.NextCursor,
		}
		for _, txn := range page.Added {
			apply.Upserts = append(apply.Upserts, e.toUpsert(it, txn))
		}
		for _, txn := range page.Modified {
			apply.Upserts = append(apply.Upserts, e.toUpsert(it, txn))
		}

		if err := e.transactions.ApplyPage(ctx, it.ID, apply); err != nil {
			log.Printf("Item %s: failed to apply transaction page at cursor %q: %v", it.ID, cursor, err)
			return
		}

		result.TransactionsAdded += len(page.Added)
		result.TransactionsModified += len(page.Modified)
		result.TransactionsRemoved += len(page.RemovedIDs)

		cursor = page.NextCursor
		if !page.HasMore {
			return
		}
	}
}

func (e *Engine) toUpsert(it *item.Item, txn provider.Transaction) item.UpsertTransactionParams {
	return item.UpsertTransactionParams{
		ID:               txn.ID,
		AccountID:        txn.AccountID,
		UserID:           it.UserID,
		Amount:           txn.Amount,
		CurrencyCode:     txn.CurrencyCode,
		Date:             txn.Date,
		AuthorizedDate:   txn.AuthorizedDate,
		Name:             txn.Name,
		MerchantName:     txn.MerchantName,
		CategoryPrimary:  txn.CategoryPrimary,
		CategoryDetailed: txn.CategoryDetailed,
		Pending:          txn.Pending,
		LogoURL:          txn.LogoURL,
		Website:          txn.Website,
		PaymentChannel:   txn.PaymentChannel,
	}
}
