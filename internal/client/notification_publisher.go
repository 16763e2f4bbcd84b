// Package client holds outbound collaborators: the NATS event publisher.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes permit lifecycle events to NATS for
// consumption by downstream delivery services (email, push).
//
// Subject convention: notifications.ptw.<category>
// Categories: approval_request, approval, rejection, extension_request,
//             extension_decision, closure
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so a slow or failing sink can never block or roll back a
// committed state transition.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventID   string `json:"event_id"`
	Category  string `json:"category"`
	PermitID  string `json:"permit_id"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// Publish emits one permit notification event. Subject:
// notifications.ptw.<category>.
func (p *NotificationPublisher) Publish(ctx context.Context, category, permitID, recipient, message string) {
	if p.conn == nil {
		return
	}

	event := &NotificationEvent{
		EventID:   uuid.NewString(),
		Category:  category,
		PermitID:  permitID,
		Recipient: recipient,
		Message:   message,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("category", category).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.ptw.%s", category)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("permit_id", permitID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("permit_id", permitID).
		Str("recipient", recipient).
		Msg("notification: event published")
}
