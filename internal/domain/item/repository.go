package item

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CreateParams carries everything persisted when a link completes.
type CreateParams struct {
	ID                   string
	UserID               int64
	ProviderItemID       string
	AccessTokenEncrypted string
	InstitutionID        string
	InstitutionName      string
}

// Repository is the persisted view of items. Exactly one non-deleted row
// exists per (user, provider item id); the store enforces it with a
// partial unique index.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Item, error)
	GetByID(ctx context.Context, id string) (*Item, error)
	GetByProviderItemID(ctx context.Context, providerItemID string) (*Item, error)
	ListByUserID(ctx context.Context, userID int64) ([]*Item, error)

	// CountByUserID counts non-deleted items regardless of status, so
	// in-flight pending links count against the plan limit.
	CountByUserID(ctx context.Context, userID int64) (int, error)

	// LastDeletedAt returns the most recent soft-deletion timestamp for the
	// user, or nil if the user never removed an item.
	LastDeletedAt(ctx context.Context, userID int64) (*time.Time, error)

	// SetStatusActive transitions to active and clears error detail.
	SetStatusActive(ctx context.Context, id string) error

	// SetStatusError transitions to error with the provider's code and
	// message. A plain overwrite, so webhook replays are harmless.
	SetStatusError(ctx context.Context, id, code, message string) error

	UpdateAccessToken(ctx context.Context, id, encrypted string) error
	UpdateInstitutionLogo(ctx context.Context, id string, logo []byte) error
	SetConsentExpiresAt(ctx context.Context, id string, expiresAt time.Time) error

	SetNewAccountsDetected(ctx context.Context, id string, detectedAt time.Time) error
	ClearNewAccounts(ctx context.Context, id string) error

	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error

	// ListSyncable returns every non-deleted item eligible for a scheduled
	// sync (pending and active; error items wait for a re-link).
	ListSyncable(ctx context.Context) ([]*Item, error)
}

// UpsertAccountParams is the full mutable state of one account row.
type UpsertAccountParams struct {
	ID               string
	ItemID           string
	UserID           int64
	Name             string
	Mask             string
	Type             string
	Subtype          string
	CurrentBalance   decimal.Decimal
	AvailableBalance *decimal.Decimal
	CreditLimit      *decimal.Decimal
	CurrencyCode     string
}

// AccountRepository is the persisted view of accounts.
type AccountRepository interface {
	Upsert(ctx context.Context, params UpsertAccountParams) (*Account, error)
	ListByItemID(ctx context.Context, itemID string) ([]*Account, error)
	ListByUserID(ctx context.Context, userID int64) ([]*Account, error)

	// SoftDeleteMissing tombstones the item's accounts the provider stopped
	// reporting. Returns the number of rows affected.
	SoftDeleteMissing(ctx context.Context, itemID string, keepIDs []string, deletedAt time.Time) (int64, error)

	SoftDeleteByItemID(ctx context.Context, itemID string, deletedAt time.Time) error
}

// UpsertTransactionParams is the full mutable state of one transaction row.
type UpsertTransactionParams struct {
	ID               string
	AccountID        string
	UserID           int64
	Amount           decimal.Decimal
	CurrencyCode     string
	Date             time.Time
	AuthorizedDate   *time.Time
	Name             string
	MerchantName     string
	CategoryPrimary  string
	CategoryDetailed string
	Pending          bool
	LogoURL          string
	Website          string
	PaymentChannel   string
}

// TransactionsPageApply is one page of the provider feed plus the cursor
// that supersedes it. The store applies all of it in a single transaction:
// the cursor must never advance past writes that did not commit.
type TransactionsPageApply struct {
	Upserts    []UpsertTransactionParams
	RemovedIDs []string
	NextCursor string
}

// TransactionStore is the persisted view of transactions.
type TransactionStore interface {
	ApplyPage(ctx context.Context, itemID string, page TransactionsPageApply) error
	ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, error)
	SoftDeleteByItemID(ctx context.Context, itemID string, deletedAt time.Time) error
}
