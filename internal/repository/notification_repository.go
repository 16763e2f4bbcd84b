package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/safesite/ptw-service/internal/database"
	"github.com/safesite/ptw-service/internal/errors"
	"github.com/safesite/ptw-service/internal/permit"
)

// NotificationRepository stores the in-app notification feed. Rows are
// write-once except for the read flag.
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert appends one notification.
func (r *NotificationRepository) Insert(ctx context.Context, n *permit.Notification) error {
	query := `
		INSERT INTO notifications (user_id, permit_id, category, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query, n.UserID, n.PermitID, n.Category, n.Message).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert notification")
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*permit.Notification, error) {
	query := `
		SELECT id, user_id, permit_id, category, message, read, created_at
		FROM notifications
		WHERE user_id = $1
	`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list notifications")
	}
	defer rows.Close()

	var notes []*permit.Notification
	for rows.Next() {
		n := &permit.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.PermitID, &n.Category, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan notification")
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// MarkRead flips the read flag. The user filter stops users marking each
// other's notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	query := `
		UPDATE notifications
		SET read = TRUE
		WHERE id = $1
		  AND user_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, userID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("notification", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to mark notification read")
	}
	return nil
}
