// Package notification pushes connection events to the user's devices.
package notification

import (
	"context"
	"fmt"
	"log"

	"ledgerlink/internal/shared/messages"
)

// Service sends connection-related push notifications. All sends are best
// effort: a push that never arrives must not fail the operation behind it.
type Service struct {
	messenger Messenger
	texts     *messages.Messages
}

// NewService creates a new notification service. messenger may be nil, in
// which case every send is a no-op. texts may be nil to use the defaults.
func NewService(messenger Messenger, texts *messages.Messages) *Service {
	if texts == nil {
		texts = messages.Default()
	}
	return &Service{messenger: messenger, texts: texts}
}

func userTopic(userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

// SendConnectionConfirmed notifies the user that an institution was linked.
func (s *Service) SendConnectionConfirmed(ctx context.Context, userID int64, institutionName string) {
	msg := s.texts.ConnectionConfirmed
	s.send(ctx, userID, msg.Title, fmt.Sprintf(msg.Body, institutionName), map[string]string{"route": "connections"})
}

// SendRelinkRequired notifies the user that a connection needs attention.
func (s *Service) SendRelinkRequired(ctx context.Context, userID int64, institutionName string) {
	msg := s.texts.RelinkRequired
	s.send(ctx, userID, msg.Title, fmt.Sprintf(msg.Body, institutionName), map[string]string{"route": "connections"})
}

func (s *Service) send(ctx context.Context, userID int64, title, body string, data map[string]string) {
	if s.messenger == nil {
		return
	}
	if err := s.messenger.SendToTopic(ctx, userTopic(userID), title, body, data); err != nil {
		log.Printf("Error sending notification to user %d: %v", userID, err)
	}
}
