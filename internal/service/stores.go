package service

import (
	"context"
	"time"

	"github.com/safesite/ptw-service/internal/permit"
	"github.com/safesite/ptw-service/internal/repository"
)

// Store interfaces over the repositories. The concrete pgx repositories
// satisfy these; tests substitute in-memory fakes.

// PermitStore persists permits and applies their conditional state
// transitions.
type PermitStore interface {
	Create(ctx context.Context, p *permit.Permit) error
	GetByID(ctx context.Context, id string) (*permit.Permit, error)
	List(ctx context.Context, f repository.PermitFilter) ([]*permit.Permit, error)
	RecordDecision(ctx context.Context, permitID string, role permit.Role, d repository.SlotDecision) (newStatus string, err error)
	TransitionStatus(ctx context.Context, id, from, to, creatorID string) error
	Close(ctx context.Context, id, creatorID string, c *permit.Closure) error
	Delete(ctx context.Context, id string) error
}

// ExtensionStore persists extension requests together with their permit
// transitions.
type ExtensionStore interface {
	CreateWithTransition(ctx context.Context, ext *permit.ExtensionRequest) error
	GetPending(ctx context.Context, permitID string) (*permit.ExtensionRequest, error)
	ListByPermit(ctx context.Context, permitID string) ([]*permit.ExtensionRequest, error)
	Decide(ctx context.Context, ext *permit.ExtensionRequest, approve bool, decidedBy, reason string, decidedAt time.Time) error
}

// NotificationStore persists the in-app notification feed.
type NotificationStore interface {
	Insert(ctx context.Context, n *permit.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*permit.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, u *repository.User) error
	GetByEmail(ctx context.Context, email string) (*repository.User, error)
	GetByID(ctx context.Context, id string) (*repository.User, error)
}

// EventPublisher pushes notification events to the external sink.
type EventPublisher interface {
	Publish(ctx context.Context, category, permitID, recipient, message string)
}
