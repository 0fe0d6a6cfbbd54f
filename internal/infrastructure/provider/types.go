package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the typed surface of the aggregation provider. The client does
// not interpret provider error codes beyond normalizing them into *Error;
// interpreting codes is the item lifecycle manager's job.
type Gateway interface {
	CreateLinkToken(ctx context.Context, userID int64, opts LinkTokenOptions) (*LinkToken, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error)
	GetAccounts(ctx context.Context, accessToken string) ([]Account, error)
	SyncTransactions(ctx context.Context, accessToken, cursor string) (*TransactionsPage, error)
	GetItem(ctx context.Context, accessToken string) (*ItemMeta, error)
	RemoveItem(ctx context.Context, accessToken string) error
	GetInstitutionLogo(ctx context.Context, institutionID string) ([]byte, error)
}

// LinkTokenOptions selects between the two link flows: a plain new
// connection, or update mode against an existing access token (optionally
// scoped to selecting newly discovered accounts).
type LinkTokenOptions struct {
	UpdateMode           bool
	AccessToken          string
	NewAccountsSelection bool
}

// LinkToken is a short-lived token the client-side Link widget consumes.
type LinkToken struct {
	Token      string
	Expiration time.Time
}

// ExchangeResult is the outcome of trading a public token for a long-lived
// access token.
type ExchangeResult struct {
	AccessToken string
	ItemID      string
}

// Account is one financial account as reported by the provider.
type Account struct {
	ID               string
	Name             string
	Mask             string
	Type             string
	Subtype          string
	CurrentBalance   decimal.Decimal
	AvailableBalance *decimal.Decimal
	CreditLimit      *decimal.Decimal
	CurrencyCode     string
}

// Transaction is one ledger entry. Amount follows the provider's sign
// convention: positive means money leaving the account.
type Transaction struct {
	ID               string
	AccountID        string
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

// TransactionsPage is one page of the incremental transaction feed.
type TransactionsPage struct {
	Added      []Transaction
	Modified   []Transaction
	RemovedIDs []string
	NextCursor string
	HasMore    bool
}

// ItemMeta is the provider's view of a linked item.
type ItemMeta struct {
	ItemID           string
	InstitutionID    string
	InstitutionName  string
	ConsentExpiresAt *time.Time
}
