package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/safesite/ptw-service/internal/permit"
)

// NotificationService fans planned notifications out to the in-app feed and
// the event publisher. Everything here is best-effort: the state transition
// that produced the notes has already committed, so failures are logged and
// swallowed, never returned.
type NotificationService struct {
	store     NotificationStore
	publisher EventPublisher
	log       zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(store NotificationStore, publisher EventPublisher, log zerolog.Logger) *NotificationService {
	return &NotificationService{store: store, publisher: publisher, log: log}
}

// Send delivers the planned notes for a permit.
func (s *NotificationService) Send(ctx context.Context, permitID string, notes []permit.Note) {
	for _, note := range notes {
		n := &permit.Notification{
			UserID:   note.UserID,
			PermitID: permitID,
			Category: note.Category,
			Message:  note.Message,
		}
		if err := s.store.Insert(ctx, n); err != nil {
			s.log.Warn().Err(err).
				Str("permit_id", permitID).
				Str("category", note.Category).
				Msg("failed to record notification (non-fatal)")
		}
		if s.publisher != nil {
			s.publisher.Publish(ctx, note.Category, permitID, note.UserID, note.Message)
		}
	}
}

// ListForUser returns a user's notification feed.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]*permit.Notification, error) {
	return s.store.ListByUser(ctx, userID, unreadOnly)
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.store.MarkRead(ctx, id, userID)
}
