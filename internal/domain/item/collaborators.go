package item

import (
	"context"

	"ledgerlink/internal/domain/plan"
)

// AuthProvider answers questions about the authenticated user that the
// lifecycle rules depend on.
type AuthProvider interface {
	// HasSecondFactor reports whether the user completed a second
	// authentication factor in the current session.
	HasSecondFactor(ctx context.Context, userID int64) (bool, error)
}

// SubscriptionProvider resolves the user's effective plan. The second
// return value reports whether the subscription is active.
type SubscriptionProvider interface {
	EffectivePlan(ctx context.Context, userID int64) (plan.Plan, bool, error)
}

// EmailSender sends connection-related emails. Implementations resolve the
// recipient address from the user ID.
type EmailSender interface {
	SendConnectionConfirmation(ctx context.Context, userID int64, institutionName string, isFirstConnection bool) error
}

// PushNotifier delivers push notifications about connection events.
type PushNotifier interface {
	SendConnectionConfirmed(ctx context.Context, userID int64, institutionName string)
	SendRelinkRequired(ctx context.Context, userID int64, institutionName string)
}

// SyncRunner triggers a synchronization for a single item.
type SyncRunner interface {
	Run(ctx context.Context, itemID string) error
}

// Vault encrypts and decrypts provider access tokens at rest.
type Vault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}
