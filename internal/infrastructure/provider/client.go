// Package provider wraps the account aggregation API behind a typed client.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultTimeout = 30 * time.Second

	linkTokenPath     = "/link/token/create"
	exchangePath      = "/item/public_token/exchange"
	accountsPath      = "/accounts/get"
	txSyncPath        = "/transactions/sync"
	itemGetPath       = "/item/get"
	itemRemovePath    = "/item/remove"
	institutionPath   = "/institutions/get_by_id"
	transactionsLimit = 500

	dateLayout = "2006-01-02"
)

// Config carries the provider API credentials and endpoint.
type Config struct {
	BaseURL  string
	ClientID string
	Secret   string
	Timeout  time.Duration
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
	timeout    time.Duration
}

var _ Gateway = (*Client)(nil)

// NewClient creates a provider client. A zero Timeout falls back to the
// default per-call upper bound.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		clientID:   cfg.ClientID,
		secret:     cfg.Secret,
		timeout:    timeout,
	}
}

type apiErrorBody struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// post sends a JSON request and decodes the response, normalizing every
// failure mode into *Error.
func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return &Error{Type: TypeTransport, Code: CodeMalformedBody, Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &Error{Type: TypeTransport, Code: CodeNetwork, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LEDGERLINK-CLIENT-ID", c.clientID)
	req.Header.Set("LEDGERLINK-SECRET", c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		code := CodeNetwork
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = CodeTimeout
		}
		return &Error{Type: TypeTransport, Code: code, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Type: TypeTransport, Code: CodeNetwork, Message: fmt.Sprintf("failed to read response body: %v", err), StatusCode: resp.StatusCode}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorBody
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.ErrorCode == "" {
			return &Error{
				Type:       TypeAPIError,
				Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
				Message:    string(body),
				StatusCode: resp.StatusCode,
			}
		}
		return &Error{
			Type:       apiErr.ErrorType,
			Code:       apiErr.ErrorCode,
			Message:    apiErr.ErrorMessage,
			StatusCode: resp.StatusCode,
		}
	}

	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return &Error{Type: TypeTransport, Code: CodeMalformedBody, Message: fmt.Sprintf("failed to unmarshal response: %v", err), StatusCode: resp.StatusCode}
	}

	return nil
}

// CreateLinkToken issues a token for the client-side Link widget. New
// connections request the standard product set with multi-item linking;
// update mode passes the existing access token instead, optionally scoped
// to new-accounts selection.
func (c *Client) CreateLinkToken(ctx context.Context, userID int64, opts LinkTokenOptions) (*LinkToken, error) {
	type linkUser struct {
		ClientUserID string `json:"client_user_id"`
	}
	type accountSelection struct {
		AccountSelectionEnabled bool `json:"account_selection_enabled"`
	}
	reqBody := struct {
		User             linkUser          `json:"user"`
		Products         []string          `json:"products,omitempty"`
		OptionalProducts []string          `json:"optional_products,omitempty"`
		AccessToken      string            `json:"access_token,omitempty"`
		EnableMultiItem  bool              `json:"enable_multi_item_link,omitempty"`
		Update           *accountSelection `json:"update,omitempty"`
	}{
		User: linkUser{ClientUserID: fmt.Sprintf("%d", userID)},
	}

	if opts.UpdateMode {
		reqBody.AccessToken = opts.AccessToken
		if opts.NewAccountsSelection {
			reqBody.Update = &accountSelection{AccountSelectionEnabled: true}
		}
	} else {
		reqBody.Products = []string{"transactions"}
		reqBody.OptionalProducts = []string{"investments", "liabilities"}
		reqBody.EnableMultiItem = true
	}

	var respBody struct {
		LinkToken  string    `json:"link_token"`
		Expiration time.Time `json:"expiration"`
	}
	if err := c.post(ctx, linkTokenPath, reqBody, &respBody); err != nil {
		return nil, err
	}

	return &LinkToken{Token: respBody.LinkToken, Expiration: respBody.Expiration}, nil
}

// ExchangePublicToken trades the Link widget's public token for a
// long-lived access token and the provider item id.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error) {
	reqBody := struct {
		PublicToken string `json:"public_token"`
	}{PublicToken: publicToken}

	var respBody struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	if err := c.post(ctx, exchangePath, reqBody, &respBody); err != nil {
		return nil, err
	}

	return &ExchangeResult{AccessToken: respBody.AccessToken, ItemID: respBody.ItemID}, nil
}

type wireAccount struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Mask      string `json:"mask"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Balances  struct {
		Current         decimal.Decimal  `json:"current"`
		Available       *decimal.Decimal `json:"available"`
		Limit           *decimal.Decimal `json:"limit"`
		IsoCurrencyCode string           `json:"iso_currency_code"`
	} `json:"balances"`
}

func (w wireAccount) toAccount() Account {
	return Account{
		ID:               w.AccountID,
		Name:             w.Name,
		Mask:             w.Mask,
		Type:             w.Type,
		Subtype:          w.Subtype,
		CurrentBalance:   w.Balances.Current,
		AvailableBalance: w.Balances.Available,
		CreditLimit:      w.Balances.Limit,
		CurrencyCode:     w.Balances.IsoCurrencyCode,
	}
}

// GetAccounts fetches the current account set for an item.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	reqBody := struct {
		AccessToken string `json:"access_token"`
	}{AccessToken: accessToken}

	var respBody struct {
		Accounts []wireAccount `json:"accounts"`
	}
	if err := c.post(ctx, accountsPath, reqBody, &respBody); err != nil {
		return nil, err
	}

	accounts := make([]Account, 0, len(respBody.Accounts))
	for _, wa := range respBody.Accounts {
		accounts = append(accounts, wa.toAccount())
	}
	return accounts, nil
}

type wireTransaction struct {
	TransactionID   string          `json:"transaction_id"`
	AccountID       string          `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	IsoCurrencyCode string          `json:"iso_currency_code"`
	Date            string          `json:"date"`
	AuthorizedDate  *string         `json:"authorized_date"`
	Name            string          `json:"name"`
	MerchantName    string          `json:"merchant_name"`
	Pending         bool            `json:"pending"`
	LogoURL         string          `json:"logo_url"`
	Website         string          `json:"website"`
	PaymentChannel  string          `json:"payment_channel"`
	Category        struct {
		Primary  string `json:"primary"`
		Detailed string `json:"detailed"`
	} `json:"personal_finance_category"`
}

func (w wireTransaction) toTransaction() (Transaction, error) {
	date, err := time.Parse(dateLayout, w.Date)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to parse date %q: %w", w.Date, err)
	}

	var authorized *time.Time
	if w.AuthorizedDate != nil && *w.AuthorizedDate != "" {
		t, err := time.Parse(dateLayout, *w.AuthorizedDate)
		if err != nil {
			return Transaction{}, fmt.Errorf("failed to parse authorized_date %q: %w", *w.AuthorizedDate, err)
		}
		authorized = &t
	}

	return Transaction{
		ID:               w.TransactionID,
		AccountID:        w.AccountID,
		Amount:           w.Amount,
		CurrencyCode:     w.IsoCurrencyCode,
		Date:             date,
		AuthorizedDate:   authorized,
		Name:             w.Name,
		MerchantName:     w.MerchantName,
		CategoryPrimary:  w.Category.Primary,
		CategoryDetailed: w.Category.Detailed,
		Pending:          w.Pending,
		LogoURL:          w.LogoURL,
		Website:          w.Website,
		PaymentChannel:   w.PaymentChannel,
	}, nil
}

// SyncTransactions fetches one page of the incremental feed. An empty
// cursor means "from the beginning"; the caller persists NextCursor and
// loops while HasMore.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (*TransactionsPage, error) {
	reqBody := struct {
		AccessToken string `json:"access_token"`
		Cursor      string `json:"cursor,omitempty"`
		Count       int    `json:"count"`
	}{AccessToken: accessToken, Cursor: cursor, Count: transactionsLimit}

	var respBody struct {
		Added    []wireTransaction `json:"added"`
		Modified []wireTransaction `json:"modified"`
		Removed  []struct {
			TransactionID string `json:"transaction_id"`
		} `json:"removed"`
		NextCursor string `json:"next_cursor"`
		HasMore    bool   `json:"has_more"`
	}
	if err := c.post(ctx, txSyncPath, reqBody, &respBody); err != nil {
		return nil, err
	}

	page := &TransactionsPage{
		NextCursor: respBody.NextCursor,
		HasMore:    respBody.HasMore,
	}
	for _, wt := range respBody.Added {
		tx, err := wt.toTransaction()
		if err != nil {
			return nil, &Error{Type: TypeTransport, Code: CodeMalformedBody, Message: err.Error()}
		}
		page.Added = append(page.Added, tx)
	}
	for _, wt := range respBody.Modified {
		tx, err := wt.toTransaction()
		if err != nil {
			return nil, &Error{Type: TypeTransport, Code: CodeMalformedBody, Message: err.Error()}
		}
		page.Modified = append(page.Modified, tx)
	}
	for _, r := range respBody.Removed {
		page.RemovedIDs = append(page.RemovedIDs, r.TransactionID)
	}

	return page, nil
}

// GetItem introspects a linked item.
func (c *Client) GetItem(ctx context.Context, accessToken string) (*ItemMeta, error) {
	reqBody := struct {
		AccessToken string `json:"access_token"`
	}{AccessToken: accessToken}

	var respBody struct {
		Item struct {
			ItemID                string     `json:"item_id"`
			InstitutionID         string     `json:"institution_id"`
			InstitutionName       string     `json:"institution_name"`
			ConsentExpirationTime *time.Time `json:"consent_expiration_time"`
		} `json:"item"`
	}
	if err := c.post(ctx, itemGetPath, reqBody, &respBody); err != nil {
		return nil, err
	}

	return &ItemMeta{
		ItemID:           respBody.Item.ItemID,
		InstitutionID:    respBody.Item.InstitutionID,
		InstitutionName:  respBody.Item.InstitutionName,
		ConsentExpiresAt: respBody.Item.ConsentExpirationTime,
	}, nil
}

// RemoveItem invalidates the access token on the provider side.
func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	reqBody := struct {
		AccessToken string `json:"access_token"`
	}{AccessToken: accessToken}

	return c.post(ctx, itemRemovePath, reqBody, nil)
}

// GetInstitutionLogo fetches the institution's logo. Callers treat any
// failure as non-fatal; logos are cosmetic.
func (c *Client) GetInstitutionLogo(ctx context.Context, institutionID string) ([]byte, error) {
	reqBody := struct {
		InstitutionID  string `json:"institution_id"`
		IncludeOptions struct {
			IncludeLogo bool `json:"include_logo"`
		} `json:"options"`
	}{InstitutionID: institutionID}
	reqBody.IncludeOptions.IncludeLogo = true

	var respBody struct {
		Institution struct {
			Logo []byte `json:"logo"` // base64 in JSON, decoded by encoding/json
		} `json:"institution"`
	}
	if err := c.post(ctx, institutionPath, reqBody, &respBody); err != nil {
		return nil, err
	}

	return respBody.Institution.Logo, nil
}
