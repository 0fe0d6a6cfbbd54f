// Package item contains the connection lifecycle rules: linking new
// institutions, re-linking broken ones, webhook handling and removal.
package item

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"ledgerlink/internal/domain/plan"
	"ledgerlink/internal/infrastructure/provider"
)

// Webhook codes sent by the provider.
const (
	WebhookTypeItem         = "ITEM"
	WebhookTypeTransactions = "TRANSACTIONS"

	WebhookCodeError                = "ERROR"
	WebhookCodeSyncUpdatesAvailable = "SYNC_UPDATES_AVAILABLE"
	WebhookCodeInitialUpdate        = "INITIAL_UPDATE"
	WebhookCodeHistoricalUpdate     = "HISTORICAL_UPDATE"
	WebhookCodeDefaultUpdate        = "DEFAULT_UPDATE"
	WebhookCodeNewAccounts          = "NEW_ACCOUNTS_AVAILABLE"
	WebhookCodePendingExpiration    = "PENDING_EXPIRATION"
)

// WebhookEvent is a provider webhook after JSON decoding.
type WebhookEvent struct {
	Type             string
	Code             string
	ProviderItemID   string
	ErrorCode        string
	ErrorMessage     string
	ConsentExpiresAt *time.Time
}

// PlanInfo describes the user's plan as it applies to connections.
type PlanInfo struct {
	Plan              plan.Plan `json:"plan"`
	MaxConnections    *int      `json:"maxConnections"`
	ActiveConnections int       `json:"activeConnections"`
}

// DeletionInfo reports whether the user may remove a connection right now.
type DeletionInfo struct {
	CanDelete     bool `json:"canDelete"`
	DaysUntilNext int  `json:"daysUntilNext,omitempty"`
}

// ConnectionsOverview is the payload for the connections listing.
type ConnectionsOverview struct {
	Items    []*Item      `json:"items"`
	Plan     PlanInfo     `json:"plan"`
	Deletion DeletionInfo `json:"deletion"`
}

// Service implements the connection lifecycle.
type Service struct {
	repo         Repository
	accounts     AccountRepository
	transactions TransactionStore
	gateway      provider.Gateway
	vault        Vault
	auth         AuthProvider
	subs         SubscriptionProvider
	email        EmailSender
	push         PushNotifier
	syncer       SyncRunner

	requireSecondFactor bool
	now                 func() time.Time
}

// NewService creates a new lifecycle service.
func NewService(
	repo Repository,
	accounts AccountRepository,
	transactions TransactionStore,
	gateway provider.Gateway,
	vault Vault,
	auth AuthProvider,
	subs SubscriptionProvider,
	email EmailSender,
	push PushNotifier,
	syncer SyncRunner,
	requireSecondFactor bool,
) *Service {
	return &Service{
		repo:                repo,
		accounts:            accounts,
		transactions:        transactions,
		gateway:             gateway,
		vault:               vault,
		auth:                auth,
		subs:                subs,
		email:               email,
		push:                push,
		syncer:              syncer,
		requireSecondFactor: requireSecondFactor,
		now:                 time.Now,
	}
}

// RequestLink creates a provider link token. With an empty itemID it starts a
// new connection, enforcing the plan's connection limit. With an itemID it
// starts update mode for an existing connection owned by the user.
func (s *Service) RequestLink(ctx context.Context, userID int64, itemID string) (*provider.LinkToken, error) {
	if itemID != "" {
		return s.requestRelink(ctx, userID, itemID)
	}

	if s.requireSecondFactor {
		ok, err := s.auth.HasSecondFactor(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check second factor: %w", err)
		}
		if !ok {
			return nil, ErrSecurityFactorRequired
		}
	}

	if _, err := s.checkLimit(ctx, userID); err != nil {
		return nil, err
	}

	token, err := s.gateway.CreateLinkToken(ctx, userID, provider.LinkTokenOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create link token: %w", err)
	}
	return token, nil
}

func (s *Service) requestRelink(ctx context.Context, userID int64, itemID string) (*provider.LinkToken, error) {
	it, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.vault.Decrypt(it.AccessTokenEncrypted)
	if err != nil {
		return nil, err
	}

	token, err := s.gateway.CreateLinkToken(ctx, userID, provider.LinkTokenOptions{
		UpdateMode:           true,
		AccessToken:          accessToken,
		NewAccountsSelection: it.NewAccountsAvailable(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create update link token: %w", err)
	}
	return token, nil
}

// CheckPlanLimit reports whether the user may open another connection.
func (s *Service) CheckPlanLimit(ctx context.Context, userID int64) (*PlanInfo, bool, error) {
	info, err := s.checkLimit(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrConnectionLimitReached) {
			return info, false, nil
		}
		return nil, false, err
	}
	return info, true, nil
}

// checkLimit resolves the plan and compares the live connection count against
// its allowance. Pending connections count toward the limit.
func (s *Service) checkLimit(ctx context.Context, userID int64) (*PlanInfo, error) {
	p, active, err := s.subs.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan: %w", err)
	}
	if !active {
		return nil, ErrSubscriptionRequired
	}

	count, err := s.repo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count connections: %w", err)
	}

	info := &PlanInfo{
		Plan:              p,
		MaxConnections:    plan.MaxConnections(p),
		ActiveConnections: count,
	}
	if info.MaxConnections != nil && count >= *info.MaxConnections {
		return info, ErrConnectionLimitReached
	}
	return info, nil
}

// CompleteLink exchanges a public token for an access token and either
// creates a new pending connection or refreshes an existing one. The first
// sync runs synchronously so accounts are visible when the call returns.
func (s *Service) CompleteLink(ctx context.Context, userID int64, publicToken, institutionID, institutionName string) (*Item, error) {
	result, err := s.gateway.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange public token: %w", err)
	}

	encrypted, err := s.vault.Encrypt(result.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	existing, err := s.repo.GetByProviderItemID(ctx, result.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up connection: %w", err)
	}

	var it *Item
	isNew := existing == nil || existing.DeletedAt != nil
	if !isNew {
		if existing.UserID != userID {
			return nil, ErrForbidden
		}
		if err := s.repo.UpdateAccessToken(ctx, existing.ID, encrypted); err != nil {
			return nil, fmt.Errorf("failed to update access token: %w", err)
		}
		if err := s.repo.ClearNewAccounts(ctx, existing.ID); err != nil {
			log.Printf("Item %s: failed to clear new-accounts flag: %v", existing.ID, err)
		}
		it = existing
	} else {
		if _, err := s.checkLimit(ctx, userID); err != nil {
			return nil, err
		}
		it, err = s.repo.Create(ctx, CreateParams{
			ID:                   uuid.New().String(),
			UserID:               userID,
			ProviderItemID:       result.ItemID,
			AccessTokenEncrypted: encrypted,
			InstitutionID:        institutionID,
			InstitutionName:      institutionName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create connection: %w", err)
		}
	}

	s.fetchLogo(ctx, it, institutionID)

	if err := s.syncer.Run(ctx, it.ID); err != nil {
		log.Printf("Item %s: initial sync failed: %v", it.ID, err)
	}

	if isNew {
		s.notifyConnected(ctx, userID, it.ID, institutionName)
	}

	refreshed, err := s.repo.GetByID(ctx, it.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload connection: %w", err)
	}
	if refreshed == nil {
		return nil, ErrItemNotFound
	}
	return refreshed, nil
}

// fetchLogo stores the institution logo if the provider serves one. Failures
// only cost us the picture.
func (s *Service) fetchLogo(ctx context.Context, it *Item, institutionID string) {
	if institutionID == "" || len(it.InstitutionLogo) > 0 {
		return
	}
	logo, err := s.gateway.GetInstitutionLogo(ctx, institutionID)
	if err != nil {
		log.Printf("Item %s: failed to fetch institution logo: %v", it.ID, err)
		return
	}
	if len(logo) == 0 {
		return
	}
	if err := s.repo.UpdateInstitutionLogo(ctx, it.ID, logo); err != nil {
		log.Printf("Item %s: failed to store institution logo: %v", it.ID, err)
	}
	it.InstitutionLogo = logo
}

func (s *Service) notifyConnected(ctx context.Context, userID int64, itemID, institutionName string) {
	count, err := s.repo.CountByUserID(ctx, userID)
	if err != nil {
		log.Printf("Item %s: failed to count connections for confirmation: %v", itemID, err)
		count = 0
	}
	first := count == 1

	if s.email != nil {
		if err := s.email.SendConnectionConfirmation(ctx, userID, institutionName, first); err != nil {
			log.Printf("Item %s: failed to send confirmation email: %v", itemID, err)
		}
	}
	if s.push != nil {
		s.push.SendConnectionConfirmed(ctx, userID, institutionName)
	}
}

// ApplyWebhook processes a provider webhook. Events for unknown items are
// logged and dropped so replays after removal stay harmless.
func (s *Service) ApplyWebhook(ctx context.Context, event WebhookEvent) error {
	it, err := s.repo.GetByProviderItemID(ctx, event.ProviderItemID)
	if err != nil {
		return fmt.Errorf("failed to look up connection: %w", err)
	}
	if it == nil || it.DeletedAt != nil {
		log.Printf("Webhook %s/%s for unknown item %s, ignoring", event.Type, event.Code, event.ProviderItemID)
		return nil
	}

	switch {
	case event.Type == WebhookTypeItem && event.Code == WebhookCodeError:
		return s.applyItemError(ctx, it, event)
	case event.Type == WebhookTypeItem && event.Code == WebhookCodeNewAccounts:
		return s.repo.SetNewAccountsDetected(ctx, it.ID, s.now())
	case event.Type == WebhookTypeItem && event.Code == WebhookCodePendingExpiration:
		if event.ConsentExpiresAt == nil {
			log.Printf("Item %s: pending expiration without a timestamp, ignoring", it.ID)
			return nil
		}
		return s.repo.SetConsentExpiresAt(ctx, it.ID, *event.ConsentExpiresAt)
	case event.Type == WebhookTypeTransactions:
		switch event.Code {
		case WebhookCodeSyncUpdatesAvailable, WebhookCodeInitialUpdate, WebhookCodeHistoricalUpdate, WebhookCodeDefaultUpdate:
			if err := s.syncer.Run(ctx, it.ID); err != nil {
				log.Printf("Item %s: webhook sync failed: %v", it.ID, err)
			}
			return nil
		}
	}

	log.Printf("Webhook %s/%s for item %s not handled", event.Type, event.Code, it.ID)
	return nil
}

func (s *Service) applyItemError(ctx context.Context, it *Item, event WebhookEvent) error {
	if !provider.AuthClassCode(event.ErrorCode) {
		log.Printf("Item %s: non-auth provider error %s: %s", it.ID, event.ErrorCode, event.ErrorMessage)
		return nil
	}
	if err := s.repo.SetStatusError(ctx, it.ID, event.ErrorCode, event.ErrorMessage); err != nil {
		return fmt.Errorf("failed to mark connection errored: %w", err)
	}
	if s.push != nil {
		s.push.SendRelinkRequired(ctx, it.UserID, it.InstitutionName)
	}
	return nil
}

// RemoveItem removes a connection and all its synced data, subject to the
// plan's deletion cooldown. Provider-side removal is best effort.
func (s *Service) RemoveItem(ctx context.Context, userID int64, itemID string) error {
	it, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}

	p, _, err := s.subs.EffectivePlan(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve plan: %w", err)
	}
	lastDeleted, err := s.repo.LastDeletedAt(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to read deletion history: %w", err)
	}
	check := plan.CheckDeletion(p, lastDeleted, s.now())
	if !check.CanDelete {
		return &DeletionRateLimitedError{DaysUntilNext: check.DaysUntilNext}
	}

	if accessToken, err := s.vault.Decrypt(it.AccessTokenEncrypted); err != nil {
		log.Printf("Item %s: cannot decrypt token for provider removal: %v", it.ID, err)
	} else if err := s.gateway.RemoveItem(ctx, accessToken); err != nil {
		log.Printf("Item %s: provider removal failed: %v", it.ID, err)
	}

	deletedAt := s.now()
	if err := s.transactions.SoftDeleteByItemID(ctx, it.ID, deletedAt); err != nil {
		return fmt.Errorf("failed to remove transactions: %w", err)
	}
	if err := s.accounts.SoftDeleteByItemID(ctx, it.ID, deletedAt); err != nil {
		return fmt.Errorf("failed to remove accounts: %w", err)
	}
	if err := s.repo.SoftDelete(ctx, it.ID, deletedAt); err != nil {
		return fmt.Errorf("failed to remove connection: %w", err)
	}
	return nil
}

// DismissNewAccounts clears the new-accounts notice for a connection.
func (s *Service) DismissNewAccounts(ctx context.Context, userID int64, itemID string) error {
	it, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	return s.repo.ClearNewAccounts(ctx, it.ID)
}

// ListItems returns the user's connections with plan and deletion context.
func (s *Service) ListItems(ctx context.Context, userID int64) (*ConnectionsOverview, error) {
	items, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	p, _, err := s.subs.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan: %w", err)
	}
	lastDeleted, err := s.repo.LastDeletedAt(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read deletion history: %w", err)
	}
	check := plan.CheckDeletion(p, lastDeleted, s.now())

	return &ConnectionsOverview{
		Items: items,
		Plan: PlanInfo{
			Plan:              p,
			MaxConnections:    plan.MaxConnections(p),
			ActiveConnections: len(items),
		},
		Deletion: DeletionInfo{
			CanDelete:     check.CanDelete,
			DaysUntilNext: check.DaysUntilNext,
		},
	}, nil
}

// ownedItem loads an item and verifies the caller owns it. Deleted and
// unknown items look the same to the caller.
func (s *Service) ownedItem(ctx context.Context, userID int64, itemID string) (*Item, error) {
	it, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if it == nil || it.DeletedAt != nil {
		return nil, ErrItemNotFound
	}
	if it.UserID != userID {
		return nil, ErrForbidden
	}
	return it, nil
}
