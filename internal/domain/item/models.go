// Package item owns the lifecycle of a linked institution connection and
// the locally cached accounts and transactions under it.
package item

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the connection state of an item. Error detail fields on Item
// are populated only while the status is StatusError; the repository
// clears them on every transition back to StatusActive.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusError   Status = "error"
)

// Item is one provider connection (one institution for one user). Items are
// soft-deleted so removal timestamps stay available for rate-limit
// accounting.
type Item struct {
	ID                   string
	UserID               int64
	ProviderItemID       string
	AccessTokenEncrypted string

	InstitutionID   string
	InstitutionName string
	InstitutionLogo []byte

	Status       Status
	ErrorCode    string
	ErrorMessage string

	// Cursor is the opaque provider sync cursor; empty before the first
	// transaction sync.
	Cursor string

	ConsentExpiresAt      *time.Time
	NewAccountsDetectedAt *time.Time
	NewAccountsDismissed  bool

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// NewAccountsAvailable reports whether the item has undismissed newly
// discovered accounts.
func (i *Item) NewAccountsAvailable() bool {
	return i.NewAccountsDetectedAt != nil && !i.NewAccountsDismissed
}

// Account is one financial account under an item. The user id is
// denormalized for query convenience.
type Account struct {
	ID     string // provider account id
	ItemID string
	UserID int64

	Name    string
	Mask    string
	Type    string
	Subtype string

	CurrentBalance   decimal.Decimal
	AvailableBalance *decimal.Decimal
	CreditLimit      *decimal.Decimal
	CurrencyCode     string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Transaction is one ledger entry. Positive amounts mean money leaving the
// account. Rows are written only by the sync engine; the provider is the
// system of record.
type Transaction struct {
	ID        string // provider transaction id
	AccountID string
	UserID    int64

	Amount       decimal.Decimal
	CurrencyCode string

	Date           time.Time
	AuthorizedDate *time.Time

	Name         string
	MerchantName string

	CategoryPrimary  string
	CategoryDetailed string

	Pending        bool
	LogoURL        string
	Website        string
	PaymentChannel string

	CreatedAt time.Time
	UpdatedAt time.Time
}
