package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ledgerlink/internal/domain/item"
)

// TransactionRepository implements the item.TransactionStore interface for PostgreSQL
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, account_id, user_id, amount, currency_code, date, authorized_date,
	name, merchant_name, category_primary, category_detailed,
	pending, logo_url, website, payment_channel, created_at, updated_at
`

func scanTransaction(row rowScanner) (*item.Transaction, error) {
	var txn item.Transaction
	var authorizedDate sql.NullTime

	err := row.Scan(
		&txn.ID, &txn.AccountID, &txn.UserID, &txn.Amount, &txn.CurrencyCode,
		&txn.Date, &authorizedDate,
		&txn.Name, &txn.MerchantName, &txn.CategoryPrimary, &txn.CategoryDetailed,
		&txn.Pending, &txn.LogoURL, &txn.Website, &txn.PaymentChannel,
		&txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if authorizedDate.Valid {
		txn.AuthorizedDate = &authorizedDate.Time
	}
	return &txn, nil
}

// ApplyPage applies one page of the provider feed and advances the item's
// cursor in the same database transaction. Removed transactions are deleted
// outright: the provider retracting an entry means it never settled.
func (r *TransactionRepository) ApplyPage(ctx context.Context, itemID string, page item.TransactionsPageApply) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsertQuery := `
		INSERT INTO transactions (id, account_id, user_id, amount, currency_code, date, authorized_date,
		                          name, merchant_name, category_primary, category_detailed,
		                          pending, logo_url, website, payment_channel)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			amount = EXCLUDED.amount,
			currency_code = EXCLUDED.currency_code,
			date = EXCLUDED.date,
			authorized_date = EXCLUDED.authorized_date,
			name = EXCLUDED.name,
			merchant_name = EXCLUDED.merchant_name,
			category_primary = EXCLUDED.category_primary,
			category_detailed = EXCLUDED.category_detailed,
			pending = EXCLUDED.pending,
			logo_url = EXCLUDED.logo_url,
			website = EXCLUDED.website,
			payment_channel = EXCLUDED.payment_channel,
			deleted_at = NULL,
			updated_at = now()
	`
	for _, params := range page.Upserts {
		var authorizedDate sql.NullTime
		if params.AuthorizedDate != nil {
			authorizedDate = sql.NullTime{Time: *params.AuthorizedDate, Valid: true}
		}
		if _, err := tx.ExecContext(
			ctx, upsertQuery,
			params.ID, params.AccountID, params.UserID, params.Amount, params.CurrencyCode,
			params.Date, authorizedDate,
			params.Name, params.MerchantName, params.CategoryPrimary, params.CategoryDetailed,
			params.Pending, params.LogoURL, params.Website, params.PaymentChannel,
		); err != nil {
			return fmt.Errorf("failed to upsert transaction %s: %w", params.ID, err)
		}
	}

	for _, id := range page.RemovedIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to remove transaction %s: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE items SET cursor = $2, updated_at = now() WHERE id = $1`, itemID, page.NextCursor); err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction page: %w", err)
	}
	return nil
}

// ListByAccountID retrieves live transactions for an account, newest first
func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*item.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1 AND deleted_at IS NULL
		ORDER BY date DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*item.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

// SoftDeleteByItemID tombstones every live transaction under an item's accounts
func (r *TransactionRepository) SoftDeleteByItemID(ctx context.Context, itemID string, deletedAt time.Time) error {
	query := `
		UPDATE transactions
		SET deleted_at = $2, updated_at = now()
		WHERE deleted_at IS NULL
		  AND account_id IN (SELECT id FROM accounts WHERE item_id = $1)
	`
	if _, err := r.db.ExecContext(ctx, query, itemID, deletedAt); err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	return nil
}
