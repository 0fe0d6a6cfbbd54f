package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledgerlink/internal/domain/item"
)

// ItemRepository implements the item.Repository interface for PostgreSQL
type ItemRepository struct {
	db *DB
}

// NewItemRepository creates a new PostgreSQL item repository
func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `
	id, user_id, provider_item_id, access_token_encrypted,
	institution_id, institution_name, institution_logo,
	status, error_code, error_message, cursor,
	consent_expires_at, new_accounts_detected_at, new_accounts_dismissed,
	created_at, updated_at, deleted_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*item.Item, error) {
	var it item.Item
	var logo []byte
	var consentExpiresAt, newAccountsDetectedAt, deletedAt sql.NullTime

	err := row.Scan(
		&it.ID, &it.UserID, &it.ProviderItemID, &it.AccessTokenEncrypted,
		&it.InstitutionID, &it.InstitutionName, &logo,
		&it.Status, &it.ErrorCode, &it.ErrorMessage, &it.Cursor,
		&consentExpiresAt, &newAccountsDetectedAt, &it.NewAccountsDismissed,
		&it.CreatedAt, &it.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	it.InstitutionLogo = logo
	if consentExpiresAt.Valid {
		it.ConsentExpiresAt = &consentExpiresAt.Time
	}
	if newAccountsDetectedAt.Valid {
		it.NewAccountsDetectedAt = &newAccountsDetectedAt.Time
	}
	if deletedAt.Valid {
		it.DeletedAt = &deletedAt.Time
	}
	return &it, nil
}

// Create inserts a new pending item
func (r *ItemRepository) Create(ctx context.Context, params item.CreateParams) (*item.Item, error) {
	query := `
		INSERT INTO items (id, user_id, provider_item_id, access_token_encrypted, institution_id, institution_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + itemColumns

	it, err := scanItem(r.db.QueryRowContext(
		ctx, query,
		params.ID, params.UserID, params.ProviderItemID, params.AccessTokenEncrypted,
		params.InstitutionID, params.InstitutionName,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	return it, nil
}

// GetByID retrieves an item by its ID, including soft-deleted rows so the
// caller can distinguish "gone" from "never existed".
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	it, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return it, nil
}

// GetByProviderItemID retrieves the live item for a provider item ID
func (r *ItemRepository) GetByProviderItemID(ctx context.Context, providerItemID string) (*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE provider_item_id = $1 AND deleted_at IS NULL`

	it, err := scanItem(r.db.QueryRowContext(ctx, query, providerItemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item by provider id: %w", err)
	}
	return it, nil
}

// ListByUserID retrieves all live items for a user
func (r *ItemRepository) ListByUserID(ctx context.Context, userID int64) ([]*item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountByUserID counts live items regardless of status
func (r *ItemRepository) CountByUserID(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM items WHERE user_id = $1 AND deleted_at IS NULL`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

// LastDeletedAt returns the user's most recent item removal time
func (r *ItemRepository) LastDeletedAt(ctx context.Context, userID int64) (*time.Time, error) {
	query := `SELECT MAX(deleted_at) FROM items WHERE user_id = $1 AND deleted_at IS NOT NULL`

	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read deletion history: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// SetStatusActive transitions to active and clears error detail
func (r *ItemRepository) SetStatusActive(ctx context.Context, id string) error {
	query := `
		UPDATE items
		SET status = $2, error_code = '', error_message = '', updated_at = now()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, item.StatusActive); err != nil {
		return fmt.Errorf("failed to activate item: %w", err)
	}
	return nil
}

// SetStatusError transitions to error with the provider's code and message
func (r *ItemRepository) SetStatusError(ctx context.Context, id, code, message string) error {
	query := `
		UPDATE items
		SET status = $2, error_code = $3, error_message = $4, updated_at = now()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, item.StatusError, code, message); err != nil {
		return fmt.Errorf("failed to mark item errored: %w", err)
	}
	return nil
}

// UpdateAccessToken replaces the stored encrypted access token
func (r *ItemRepository) UpdateAccessToken(ctx context.Context, id, encrypted string) error {
	query := `UPDATE items SET access_token_encrypted = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, encrypted); err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}
	return nil
}

// UpdateInstitutionLogo stores the institution logo bytes
func (r *ItemRepository) UpdateInstitutionLogo(ctx context.Context, id string, logo []byte) error {
	query := `UPDATE items SET institution_logo = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, logo); err != nil {
		return fmt.Errorf("failed to update institution logo: %w", err)
	}
	return nil
}

// SetConsentExpiresAt records the upcoming consent expiration
func (r *ItemRepository) SetConsentExpiresAt(ctx context.Context, id string, expiresAt time.Time) error {
	query := `UPDATE items SET consent_expires_at = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, expiresAt); err != nil {
		return fmt.Errorf("failed to set consent expiration: %w", err)
	}
	return nil
}

// SetNewAccountsDetected records newly discovered accounts and resets any
// previous dismissal
func (r *ItemRepository) SetNewAccountsDetected(ctx context.Context, id string, detectedAt time.Time) error {
	query := `
		UPDATE items
		SET new_accounts_detected_at = $2, new_accounts_dismissed = FALSE, updated_at = now()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, detectedAt); err != nil {
		return fmt.Errorf("failed to record new accounts: %w", err)
	}
	return nil
}

// ClearNewAccounts removes the new-accounts notice entirely
func (r *ItemRepository) ClearNewAccounts(ctx context.Context, id string) error {
	query := `
		UPDATE items
		SET new_accounts_detected_at = NULL, new_accounts_dismissed = FALSE, updated_at = now()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to clear new accounts: %w", err)
	}
	return nil
}

// SoftDelete tombstones the item
func (r *ItemRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	query := `UPDATE items SET deleted_at = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, deletedAt); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// ListSyncable returns live items eligible for a scheduled sync
func (r *ItemRepository) ListSyncable(ctx context.Context) ([]*item.Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE deleted_at IS NULL AND status != $1
		ORDER BY updated_at`

	rows, err := r.db.QueryContext(ctx, query, item.StatusError)
	if err != nil {
		return nil, fmt.Errorf("failed to list syncable items: %w", err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
