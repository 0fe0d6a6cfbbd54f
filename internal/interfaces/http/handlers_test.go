package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledgerlink/internal/domain/item"
	"ledgerlink/internal/domain/plan"
	"ledgerlink/internal/infrastructure/provider"
	"ledgerlink/internal/shared/middleware"
)

// MockItemRepo implements item.Repository for testing
type MockItemRepo struct {
	CreateFunc              func(ctx context.Context, params item.CreateParams) (*item.Item, error)
	GetByIDFunc             func(ctx context.Context, id string) (*item.Item, error)
	GetByProviderItemIDFunc func(ctx context.Context, providerItemID string) (*item.Item, error)
	ListByUserIDFunc        func(ctx context.Context, userID int64) ([]*item.Item, error)
	CountByUserIDFunc       func(ctx context.Context, userID int64) (int, error)
	LastDeletedAtFunc       func(ctx context.Context, userID int64) (*time.Time, error)
	SoftDeleteFunc          func(ctx context.Context, id string, deletedAt time.Time) error
	ClearNewAccountsFunc    func(ctx context.Context, id string) error
}

func (m *MockItemRepo) Create(ctx context.Context, params item.CreateParams) (*item.Item, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return &item.Item{ID: params.ID, UserID: params.UserID, Status: item.StatusPending}, nil
}

func (m *MockItemRepo) GetByID(ctx context.Context, id string) (*item.Item, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockItemRepo) GetByProviderItemID(ctx context.Context, providerItemID string) (*item.Item, error) {
	if m.GetByProviderItemIDFunc != nil {
		return m.GetByProviderItemIDFunc(ctx, providerItemID)
	}
	return nil, nil
}

func (m *MockItemRepo) ListByUserID(ctx context.Context, userID int64) ([]*item.Item, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockItemRepo) CountByUserID(ctx context.Context, userID int64) (int, error) {
	if m.CountByUserIDFunc != nil {
		return m.CountByUserIDFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockItemRepo) LastDeletedAt(ctx context.Context, userID int64) (*time.Time, error) {
	if m.LastDeletedAtFunc != nil {
		return m.LastDeletedAtFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockItemRepo) SetStatusActive(ctx context.Context, id string) error { return nil }

func (m *MockItemRepo) SetStatusError(ctx context.Context, id, code, message string) error {
	return nil
}

func (m *MockItemRepo) UpdateAccessToken(ctx context.Context, id, encrypted string) error {
	return nil
}

func (m *MockItemRepo) UpdateInstitutionLogo(ctx context.Context, id string, logo []byte) error {
	return nil
}

func (m *MockItemRepo) SetConsentExpiresAt(ctx context.Context, id string, expiresAt time.Time) error {
	return nil
}

func (m *MockItemRepo) SetNewAccountsDetected(ctx context.Context, id string, detectedAt time.Time) error {
	return nil
}

func (m *MockItemRepo) ClearNewAccounts(ctx context.Context, id string) error {
	if m.ClearNewAccountsFunc != nil {
		return m.ClearNewAccountsFunc(ctx, id)
	}
	return nil
}

func (m *MockItemRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	if m.SoftDeleteFunc != nil {
		return m.SoftDeleteFunc(ctx, id, deletedAt)
	}
	return nil
}

func (m *MockItemRepo) ListSyncable(ctx context.Context) ([]*item.Item, error) { return nil, nil }

// MockAccountRepo implements item.AccountRepository for testing
type MockAccountRepo struct{}

func (m *MockAccountRepo) Upsert(ctx context.Context, params item.UpsertAccountParams) (*item.Account, error) {
	return nil, nil
}

func (m *MockAccountRepo) ListByItemID(ctx context.Context, itemID string) ([]*item.Account, error) {
	return nil, nil
}

func (m *MockAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*item.Account, error) {
	return nil, nil
}

func (m *MockAccountRepo) SoftDeleteMissing(ctx context.Context, itemID string, keepIDs []string, deletedAt time.Time) (int64, error) {
	return 0, nil
}

func (m *MockAccountRepo) SoftDeleteByItemID(ctx context.Context, itemID string, deletedAt time.Time) error {
	return nil
}

// MockTransactionStore implements item.TransactionStore for testing
type MockTransactionStore struct{}

func (m *MockTransactionStore) ApplyPage(ctx context.Context, itemID string, page item.TransactionsPageApply) error {
	return nil
}

func (m *MockTransactionStore) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*item.Transaction, error) {
	return nil, nil
}

func (m *MockTransactionStore) SoftDeleteByItemID(ctx context.Context, itemID string, deletedAt time.Time) error {
	return nil
}

// MockGateway implements provider.Gateway for testing
type MockGateway struct{}

func (m *MockGateway) CreateLinkToken(ctx context.Context, userID int64, opts provider.LinkTokenOptions) (*provider.LinkToken, error) {
	return &provider.LinkToken{Token: "link-token", Expiration: time.Now().Add(30 * time.Minute)}, nil
}

func (m *MockGateway) ExchangePublicToken(ctx context.Context, publicToken string) (*provider.ExchangeResult, error) {
	return &provider.ExchangeResult{AccessToken: "access-token", ItemID: "prov-item-1"}, nil
}

func (m *MockGateway) GetAccounts(ctx context.Context, accessToken string) ([]provider.Account, error) {
	return nil, nil
}

func (m *MockGateway) SyncTransactions(ctx context.Context, accessToken, cursor string) (*provider.TransactionsPage, error) {
	return &provider.TransactionsPage{}, nil
}

func (m *MockGateway) GetItem(ctx context.Context, accessToken string) (*provider.ItemMeta, error) {
	return nil, nil
}

func (m *MockGateway) RemoveItem(ctx context.Context, accessToken string) error { return nil }

func (m *MockGateway) GetInstitutionLogo(ctx context.Context, institutionID string) ([]byte, error) {
	return nil, nil
}

type mockVault struct{}

func (mockVault) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }

func (mockVault) Decrypt(blob string) (string, error) { return strings.TrimPrefix(blob, "enc:"), nil }

type mockAuth struct{}

func (mockAuth) HasSecondFactor(ctx context.Context, userID int64) (bool, error) { return true, nil }

type mockSubs struct{ p plan.Plan }

func (m mockSubs) EffectivePlan(ctx context.Context, userID int64) (plan.Plan, bool, error) {
	return m.p, true, nil
}

type mockSyncer struct{}

func (mockSyncer) Run(ctx context.Context, itemID string) error { return nil }

func newHandlersService(repo *MockItemRepo, p plan.Plan) *item.Service {
	return item.NewService(
		repo, &MockAccountRepo{}, &MockTransactionStore{}, &MockGateway{}, mockVault{},
		mockAuth{}, mockSubs{p: p}, nil, nil, mockSyncer{}, false,
	)
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, int64(1))
	return req.WithContext(ctx)
}

func TestHandleCreateLinkToken(t *testing.T) {
	repo := &MockItemRepo{}
	handler := NewLinkHandler(newHandlersService(repo, plan.Plus))

	req := authedRequest("POST", "/api/link/token", "")
	rr := httptest.NewRecorder()
	handler.HandleCreateLinkToken(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp LinkTokenResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.LinkToken != "link-token" {
		t.Errorf("expected link token, got %q", resp.LinkToken)
	}
}

func TestHandleCreateLinkToken_LimitReached(t *testing.T) {
	repo := &MockItemRepo{
		CountByUserIDFunc: func(ctx context.Context, userID int64) (int, error) { return 1, nil },
	}
	handler := NewLinkHandler(newHandlersService(repo, plan.Free))

	req := authedRequest("POST", "/api/link/token", "")
	rr := httptest.NewRecorder()
	handler.HandleCreateLinkToken(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	var resp errorResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Error != "connection_limit_reached" {
		t.Errorf("expected connection_limit_reached, got %q", resp.Error)
	}
}

func TestHandleCreateLinkToken_Unauthenticated(t *testing.T) {
	handler := NewLinkHandler(newHandlersService(&MockItemRepo{}, plan.Free))

	req := httptest.NewRequest("POST", "/api/link/token", nil)
	rr := httptest.NewRecorder()
	handler.HandleCreateLinkToken(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestHandleExchange(t *testing.T) {
	created := make(map[string]*item.Item)
	repo := &MockItemRepo{
		CreateFunc: func(ctx context.Context, params item.CreateParams) (*item.Item, error) {
			it := &item.Item{ID: params.ID, UserID: params.UserID, InstitutionName: params.InstitutionName, Status: item.StatusPending}
			created[params.ID] = it
			return it, nil
		},
		GetByIDFunc: func(ctx context.Context, id string) (*item.Item, error) {
			return created[id], nil
		},
	}
	handler := NewLinkHandler(newHandlersService(repo, plan.Plus))

	body := `{"publicToken":"public-token","institutionId":"ins_1","institutionName":"First Bank"}`
	req := authedRequest("POST", "/api/link/exchange", body)
	rr := httptest.NewRecorder()
	handler.HandleExchange(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ItemResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != string(item.StatusPending) {
		t.Errorf("expected pending status, got %q", resp.Status)
	}
}

func TestHandleExchange_MissingPublicToken(t *testing.T) {
	handler := NewLinkHandler(newHandlersService(&MockItemRepo{}, plan.Plus))

	req := authedRequest("POST", "/api/link/exchange", `{"institutionId":"ins_1"}`)
	rr := httptest.NewRecorder()
	handler.HandleExchange(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestHandleLinkLimit(t *testing.T) {
	repo := &MockItemRepo{
		CountByUserIDFunc: func(ctx context.Context, userID int64) (int, error) { return 1, nil },
	}
	handler := NewLinkHandler(newHandlersService(repo, plan.Free))

	req := authedRequest("GET", "/api/link/limit", "")
	rr := httptest.NewRecorder()
	handler.HandleLinkLimit(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp LinkLimitResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp.LimitReached {
		t.Error("expected limitReached=true at the free plan limit")
	}
	if resp.ItemCount != 1 {
		t.Errorf("expected itemCount 1, got %d", resp.ItemCount)
	}
	if resp.MaxConnections == nil || *resp.MaxConnections != 1 {
		t.Errorf("expected maxConnections 1, got %v", resp.MaxConnections)
	}
}

func TestHandleItemByID_Delete(t *testing.T) {
	var deleted string
	repo := &MockItemRepo{
		GetByIDFunc: func(ctx context.Context, id string) (*item.Item, error) {
			return &item.Item{ID: id, UserID: 1, AccessTokenEncrypted: "enc:token", Status: item.StatusActive}, nil
		},
		SoftDeleteFunc: func(ctx context.Context, id string, deletedAt time.Time) error {
			deleted = id
			return nil
		},
	}
	handler := NewItemHandler(newHandlersService(repo, plan.Plus))

	req := authedRequest("DELETE", "/api/items/item-1", "")
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()
	handler.HandleItemByID(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if deleted != "item-1" {
		t.Errorf("expected item-1 deleted, got %q", deleted)
	}
}

func TestHandleItemByID_DeleteRateLimited(t *testing.T) {
	last := time.Now().Add(-2 * 24 * time.Hour)
	repo := &MockItemRepo{
		GetByIDFunc: func(ctx context.Context, id string) (*item.Item, error) {
			return &item.Item{ID: id, UserID: 1, AccessTokenEncrypted: "enc:token", Status: item.StatusActive}, nil
		},
		LastDeletedAtFunc: func(ctx context.Context, userID int64) (*time.Time, error) {
			return &last, nil
		},
	}
	handler := NewItemHandler(newHandlersService(repo, plan.Free))

	req := authedRequest("DELETE", "/api/items/item-1", "")
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()
	handler.HandleItemByID(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	var resp errorResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.DaysUntilNext != 5 {
		t.Errorf("expected daysUntilNext=5, got %d", resp.DaysUntilNext)
	}
}

func TestHandleItemByID_DeleteForeign(t *testing.T) {
	repo := &MockItemRepo{
		GetByIDFunc: func(ctx context.Context, id string) (*item.Item, error) {
			return &item.Item{ID: id, UserID: 99, Status: item.StatusActive}, nil
		},
	}
	handler := NewItemHandler(newHandlersService(repo, plan.Plus))

	req := authedRequest("DELETE", "/api/items/item-1", "")
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()
	handler.HandleItemByID(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

func TestHandleDismissNewAccounts(t *testing.T) {
	var cleared bool
	repo := &MockItemRepo{
		GetByIDFunc: func(ctx context.Context, id string) (*item.Item, error) {
			return &item.Item{ID: id, UserID: 1, Status: item.StatusActive}, nil
		},
		ClearNewAccountsFunc: func(ctx context.Context, id string) error {
			cleared = true
			return nil
		},
	}
	handler := NewItemHandler(newHandlersService(repo, plan.Plus))

	req := authedRequest("POST", "/api/items/item-1/dismiss-new-accounts", "")
	req.SetPathValue("id", "item-1")
	rr := httptest.NewRecorder()
	handler.HandleDismissNewAccounts(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if !cleared {
		t.Error("expected new-accounts notice cleared")
	}
}

func TestHandleListItems(t *testing.T) {
	repo := &MockItemRepo{
		ListByUserIDFunc: func(ctx context.Context, userID int64) ([]*item.Item, error) {
			return []*item.Item{
				{ID: "item-1", UserID: 1, InstitutionName: "First Bank", Status: item.StatusActive},
			}, nil
		},
	}
	handler := NewItemHandler(newHandlersService(repo, plan.Basic))

	req := authedRequest("GET", "/api/items/", "")
	rr := httptest.NewRecorder()
	handler.HandleListItems(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Items []ItemResponse `json:"items"`
		Plan  item.PlanInfo  `json:"plan"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Errorf("expected 1 item, got %d", len(resp.Items))
	}
	if resp.Plan.MaxConnections == nil || *resp.Plan.MaxConnections != 3 {
		t.Errorf("expected basic limit of 3, got %v", resp.Plan.MaxConnections)
	}
}

func TestHandleProviderWebhook(t *testing.T) {
	repo := &MockItemRepo{
		GetByProviderItemIDFunc: func(ctx context.Context, providerItemID string) (*item.Item, error) {
			return &item.Item{ID: "item-1", UserID: 1, ProviderItemID: providerItemID, Status: item.StatusActive}, nil
		},
	}
	handler := NewWebhookHandler(newHandlersService(repo, plan.Plus))

	body := `{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"prov-item-1"}`
	req := httptest.NewRequest("POST", "/webhooks/provider", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.HandleProviderWebhook(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestHandleProviderWebhook_UnknownItemStays200(t *testing.T) {
	handler := NewWebhookHandler(newHandlersService(&MockItemRepo{}, plan.Plus))

	body := `{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"prov-gone","error":{"error_code":"ITEM_LOGIN_REQUIRED"}}`
	req := httptest.NewRequest("POST", "/webhooks/provider", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.HandleProviderWebhook(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 for unknown item, got %d", rr.Code)
	}
}

func TestHandleProviderWebhook_Malformed(t *testing.T) {
	handler := NewWebhookHandler(newHandlersService(&MockItemRepo{}, plan.Plus))

	req := httptest.NewRequest("POST", "/webhooks/provider", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	handler.HandleProviderWebhook(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed payload, got %d", rr.Code)
	}
}
