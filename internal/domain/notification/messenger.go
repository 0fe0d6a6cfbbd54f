package notification

import "context"

// Messenger defines the interface for sending push notifications.
// Implemented by the Firebase FCM client in the infrastructure layer.
// Each user subscribes their devices to a per-user topic, so delivery
// needs no token bookkeeping on this side.
type Messenger interface {
	SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error
}
