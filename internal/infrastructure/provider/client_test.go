package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL:  server.URL,
		ClientID: "client-id",
		Secret:   "secret",
		Timeout:  2 * time.Second,
	})
}

func TestClientSendsCredentialHeaders(t *testing.T) {
	var gotClientID, gotSecret, gotContentType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotClientID = r.Header.Get("LEDGERLINK-CLIENT-ID")
		gotSecret = r.Header.Get("LEDGERLINK-SECRET")
		gotContentType = r.Header.Get("Content-Type")
		json.NewEncoder(w).Encode(map[string]any{"link_token": "lt-1", "expiration": time.Now().Add(time.Hour)})
	})

	_, err := client.CreateLinkToken(context.Background(), 1, LinkTokenOptions{})
	require.NoError(t, err)
	assert.Equal(t, "client-id", gotClientID)
	assert.Equal(t, "secret", gotSecret)
	assert.Equal(t, "application/json", gotContentType)
}

func TestCreateLinkTokenNewConnection(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/link/token/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"link_token": "link-sandbox-abc",
			"expiration": "2026-03-10T12:00:00Z",
		})
	})

	token, err := client.CreateLinkToken(context.Background(), 42, LinkTokenOptions{})
	require.NoError(t, err)
	assert.Equal(t, "link-sandbox-abc", token.Token)

	user, ok := gotBody["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "42", user["client_user_id"])
	assert.Equal(t, []any{"transactions"}, gotBody["products"])
	assert.Equal(t, true, gotBody["enable_multi_item_link"])
	assert.NotContains(t, gotBody, "access_token")
}

func TestCreateLinkTokenUpdateMode(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{"link_token": "lt-update", "expiration": "2026-03-10T12:00:00Z"})
	})

	_, err := client.CreateLinkToken(context.Background(), 42, LinkTokenOptions{
		UpdateMode:           true,
		AccessToken:          "access-token-1",
		NewAccountsSelection: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "access-token-1", gotBody["access_token"])
	assert.NotContains(t, gotBody, "products")
	update, ok := gotBody["update"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, update["account_selection_enabled"])
}

func TestExchangePublicToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item/public_token/exchange", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-token-1",
			"item_id":      "provider-item-1",
		})
	})

	result, err := client.ExchangePublicToken(context.Background(), "public-token-1")
	require.NoError(t, err)
	assert.Equal(t, "access-token-1", result.AccessToken)
	assert.Equal(t, "provider-item-1", result.ItemID)
}

func TestGetAccountsMapsBalances(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"accounts": []map[string]any{
				{
					"account_id": "acc-1",
					"name":       "Checking",
					"mask":       "0000",
					"type":       "depository",
					"subtype":    "checking",
					"balances": map[string]any{
						"current":           110.25,
						"available":         100.50,
						"iso_currency_code": "USD",
					},
				},
				{
					"account_id": "acc-2",
					"name":       "Credit Card",
					"type":       "credit",
					"subtype":    "credit card",
					"balances": map[string]any{
						"current":           -250,
						"limit":             5000,
						"iso_currency_code": "USD",
					},
				},
			},
		})
	})

	accounts, err := client.GetAccounts(context.Background(), "access-token-1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "acc-1", accounts[0].ID)
	assert.True(t, accounts[0].CurrentBalance.Equal(decimal.RequireFromString("110.25")))
	require.NotNil(t, accounts[0].AvailableBalance)
	assert.True(t, accounts[0].AvailableBalance.Equal(decimal.RequireFromString("100.50")))
	assert.Nil(t, accounts[0].CreditLimit)

	assert.Equal(t, "credit", accounts[1].Type)
	require.NotNil(t, accounts[1].CreditLimit)
	assert.True(t, accounts[1].CreditLimit.Equal(decimal.NewFromInt(5000)))
	assert.Nil(t, accounts[1].AvailableBalance)
}

func TestSyncTransactionsPage(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/sync", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"added": []map[string]any{
				{
					"transaction_id":    "txn-1",
					"account_id":        "acc-1",
					"amount":            12.34,
					"iso_currency_code": "USD",
					"date":              "2026-03-09",
					"authorized_date":   "2026-03-08",
					"name":              "Coffee Shop",
					"pending":           false,
					"personal_finance_category": map[string]any{
						"primary":  "FOOD_AND_DRINK",
						"detailed": "FOOD_AND_DRINK_COFFEE",
					},
				},
			},
			"modified":    []map[string]any{},
			"removed":     []map[string]any{{"transaction_id": "txn-gone"}},
			"next_cursor": "cursor-2",
			"has_more":    true,
		})
	})

	page, err := client.SyncTransactions(context.Background(), "access-token-1", "cursor-1")
	require.NoError(t, err)

	assert.Equal(t, "cursor-1", gotBody["cursor"])
	assert.Equal(t, float64(500), gotBody["count"])

	require.Len(t, page.Added, 1)
	tx := page.Added[0]
	assert.Equal(t, "txn-1", tx.ID)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("12.34")))
	assert.Equal(t, "2026-03-09", tx.Date.Format("2006-01-02"))
	require.NotNil(t, tx.AuthorizedDate)
	assert.Equal(t, "2026-03-08", tx.AuthorizedDate.Format("2006-01-02"))
	assert.Equal(t, "FOOD_AND_DRINK", tx.CategoryPrimary)

	assert.Equal(t, []string{"txn-gone"}, page.RemovedIDs)
	assert.Equal(t, "cursor-2", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestSyncTransactionsBadDate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"added": []map[string]any{
				{"transaction_id": "txn-1", "account_id": "acc-1", "amount": 1, "date": "not-a-date"},
			},
		})
	})

	_, err := client.SyncTransactions(context.Background(), "access-token-1", "")
	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, TypeTransport, provErr.Type)
	assert.Equal(t, CodeMalformedBody, provErr.Code)
}

func TestAPIErrorBodyIsDecoded(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error_type":    "ITEM_ERROR",
			"error_code":    "ITEM_LOGIN_REQUIRED",
			"error_message": "the login details of this item have changed",
		})
	})

	_, err := client.GetAccounts(context.Background(), "access-token-1")
	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, TypeItemError, provErr.Type)
	assert.Equal(t, "ITEM_LOGIN_REQUIRED", provErr.Code)
	assert.Equal(t, http.StatusBadRequest, provErr.StatusCode)
	assert.True(t, provErr.AuthClass())
	assert.False(t, provErr.Transient())
}

func TestNonJSONErrorBodyFallsBackToStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	})

	_, err := client.GetAccounts(context.Background(), "access-token-1")
	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, TypeAPIError, provErr.Type)
	assert.Equal(t, "HTTP_502", provErr.Code)
	assert.True(t, provErr.Transient())
	assert.False(t, provErr.AuthClass())
}

func TestTimeoutIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL, Timeout: 20 * time.Millisecond})

	_, err := client.GetAccounts(context.Background(), "access-token-1")
	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, TypeTransport, provErr.Type)
	assert.Equal(t, CodeTimeout, provErr.Code)
	assert.True(t, provErr.Transient())
}

func TestRemoveItem(t *testing.T) {
	var called bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/item/remove", r.URL.Path)
		w.Write([]byte(`{"removed": true}`))
	})

	require.NoError(t, client.RemoveItem(context.Background(), "access-token-1"))
	assert.True(t, called)
}

func TestGetInstitutionLogoDecodesBase64(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/institutions/get_by_id", r.URL.Path)
		// "logo" is base64 of "PNG"
		w.Write([]byte(`{"institution": {"logo": "UE5H"}}`))
	})

	logo, err := client.GetInstitutionLogo(context.Background(), "ins_1")
	require.NoError(t, err)
	assert.Equal(t, []byte("PNG"), logo)
}

func TestAuthClassCode(t *testing.T) {
	assert.True(t, AuthClassCode("ITEM_LOGIN_REQUIRED"))
	assert.True(t, AuthClassCode("USER_PERMISSION_REVOKED"))
	assert.False(t, AuthClassCode("PRODUCT_NOT_READY"))
	assert.False(t, AuthClassCode(""))
}

func TestErrorString(t *testing.T) {
	err := &Error{Type: TypeRateLimit, Code: "RATE_LIMIT", Message: "slow down"}
	assert.True(t, err.Transient())
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "RATE_LIMIT")
}
