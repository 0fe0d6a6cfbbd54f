package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"ledgerlink/internal/domain/item"
)

// AccountRepository implements the item.AccountRepository interface for PostgreSQL
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	id, item_id, user_id, name, mask, account_type, account_subtype,
	current_balance, available_balance, credit_limit, currency_code,
	created_at, updated_at, deleted_at
`

func scanAccount(row rowScanner) (*item.Account, error) {
	var acc item.Account
	var availableBalance, creditLimit decimal.NullDecimal
	var deletedAt sql.NullTime

	err := row.Scan(
		&acc.ID, &acc.ItemID, &acc.UserID, &acc.Name, &acc.Mask, &acc.Type, &acc.Subtype,
		&acc.CurrentBalance, &availableBalance, &creditLimit, &acc.CurrencyCode,
		&acc.CreatedAt, &acc.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if availableBalance.Valid {
		acc.AvailableBalance = &availableBalance.Decimal
	}
	if creditLimit.Valid {
		acc.CreditLimit = &creditLimit.Decimal
	}
	if deletedAt.Valid {
		acc.DeletedAt = &deletedAt.Time
	}
	return &acc, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// Upsert inserts or refreshes an account row. A re-appearing account loses
// its tombstone: the provider reporting it again means it is live.
func (r *AccountRepository) Upsert(ctx context.Context, params item.UpsertAccountParams) (*item.Account, error) {
	query := `
		INSERT INTO accounts (id, item_id, user_id, name, mask, account_type, account_subtype,
		                      current_balance, available_balance, credit_limit, currency_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			mask = EXCLUDED.mask,
			account_type = EXCLUDED.account_type,
			account_subtype = EXCLUDED.account_subtype,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			credit_limit = EXCLUDED.credit_limit,
			currency_code = EXCLUDED.currency_code,
			deleted_at = NULL,
			updated_at = now()
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRowContext(
		ctx, query,
		params.ID, params.ItemID, params.UserID, params.Name, params.Mask, params.Type, params.Subtype,
		params.CurrentBalance, nullDecimal(params.AvailableBalance), nullDecimal(params.CreditLimit), params.CurrencyCode,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return acc, nil
}

// ListByItemID retrieves all live accounts under an item
func (r *AccountRepository) ListByItemID(ctx context.Context, itemID string) ([]*item.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE item_id = $1 AND deleted_at IS NULL ORDER BY name`
	return r.list(ctx, query, itemID)
}

// ListByUserID retrieves all live accounts for a user
func (r *AccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*item.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 AND deleted_at IS NULL ORDER BY name`
	return r.list(ctx, query, userID)
}

func (r *AccountRepository) list(ctx context.Context, query string, arg any) ([]*item.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*item.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// SoftDeleteMissing tombstones the item's accounts absent from keepIDs
func (r *AccountRepository) SoftDeleteMissing(ctx context.Context, itemID string, keepIDs []string, deletedAt time.Time) (int64, error) {
	query := `
		UPDATE accounts
		SET deleted_at = $3, updated_at = now()
		WHERE item_id = $1 AND deleted_at IS NULL AND NOT (id = ANY($2))
	`
	result, err := r.db.ExecContext(ctx, query, itemID, pq.Array(keepIDs), deletedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to tombstone missing accounts: %w", err)
	}
	return result.RowsAffected()
}

// SoftDeleteByItemID tombstones every live account under an item
func (r *AccountRepository) SoftDeleteByItemID(ctx context.Context, itemID string, deletedAt time.Time) error {
	query := `UPDATE accounts SET deleted_at = $2, updated_at = now() WHERE item_id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, itemID, deletedAt); err != nil {
		return fmt.Errorf("failed to delete accounts: %w", err)
	}
	return nil
}
