package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safesite/ptw-service/internal/database"
	"github.com/safesite/ptw-service/internal/errors"
	"github.com/safesite/ptw-service/internal/permit"
)

// ExtensionRepository manages extension requests. Requesting and deciding
// an extension each pair the extension row with the permit's status
// transition inside one transaction.
type ExtensionRepository struct {
	db *database.DB
}

// NewExtensionRepository creates a new ExtensionRepository.
func NewExtensionRepository(db *database.DB) *ExtensionRepository {
	return &ExtensionRepository{db: db}
}

// CreateWithTransition inserts a pending extension request and moves the
// permit from active to extension_requested atomically. The conditional
// permit update guarantees at most one outstanding request per permit.
func (r *ExtensionRepository) CreateWithTransition(ctx context.Context, ext *permit.ExtensionRequest) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var permitID string
		err := tx.QueryRow(ctx, `
			UPDATE permits
			SET status     = 'extension_requested'::permit_status,
			    updated_at = NOW()
			WHERE id = $1
			  AND status = 'active'
			  AND created_by = $2
			RETURNING id
		`, ext.PermitID, ext.RequestedBy).Scan(&permitID)
		if err == pgx.ErrNoRows {
			return ErrPreconditionMiss
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to mark permit extension_requested")
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO extension_requests
			    (permit_id, requested_end_time, justification, requested_by, status)
			VALUES ($1, $2, $3, $4, 'pending'::extension_status)
			RETURNING id, created_at
		`, ext.PermitID, ext.RequestedEndTime, ext.Justification, ext.RequestedBy).Scan(&ext.ID, &ext.CreatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create extension request")
		}
		ext.Status = permit.ExtensionPending
		return nil
	})
}

// GetPending returns the outstanding extension request for a permit, or nil
// when none exists.
func (r *ExtensionRepository) GetPending(ctx context.Context, permitID string) (*permit.ExtensionRequest, error) {
	ext, err := r.scanExtension(r.db.QueryRow(ctx, `
		SELECT id, permit_id, requested_end_time, justification, requested_by,
		       status, decision_reason, decided_by, decided_at, created_at
		FROM extension_requests
		WHERE permit_id = $1
		  AND status = 'pending'
	`, permitID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending extension")
	}
	return ext, nil
}

// ListByPermit returns all extension requests for a permit, oldest first.
func (r *ExtensionRepository) ListByPermit(ctx context.Context, permitID string) ([]*permit.ExtensionRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, permit_id, requested_end_time, justification, requested_by,
		       status, decision_reason, decided_by, decided_at, created_at
		FROM extension_requests
		WHERE permit_id = $1
		ORDER BY created_at ASC
	`, permitID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list extension requests")
	}
	defer rows.Close()

	var exts []*permit.ExtensionRequest
	for rows.Next() {
		ext, err := r.scanExtension(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan extension request")
		}
		exts = append(exts, ext)
	}
	return exts, rows.Err()
}

// Decide closes a pending extension request and returns the permit to
// active in the same transaction. On approval the permit's end time moves
// to the requested value and the permit is tagged extended; on rejection
// the original end time stands.
func (r *ExtensionRepository) Decide(ctx context.Context, ext *permit.ExtensionRequest, approve bool, decidedBy, reason string, decidedAt time.Time) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		status := permit.ExtensionRejected
		var reasonPtr *string
		if approve {
			status = permit.ExtensionApproved
		} else {
			reasonPtr = &reason
		}

		var extID string
		err := tx.QueryRow(ctx, `
			UPDATE extension_requests
			SET status          = $2::extension_status,
			    decided_by      = $3,
			    decided_at      = $4,
			    decision_reason = $5
			WHERE id = $1
			  AND status = 'pending'
			RETURNING id
		`, ext.ID, status, decidedBy, decidedAt, reasonPtr).Scan(&extID)
		if err == pgx.ErrNoRows {
			return ErrPreconditionMiss
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to decide extension request")
		}

		var permitID string
		if approve {
			err = tx.QueryRow(ctx, `
				UPDATE permits
				SET status     = 'active'::permit_status,
				    end_time   = $2,
				    extended   = TRUE,
				    updated_at = NOW()
				WHERE id = $1
				  AND status = 'extension_requested'
				RETURNING id
			`, ext.PermitID, ext.RequestedEndTime).Scan(&permitID)
		} else {
			err = tx.QueryRow(ctx, `
				UPDATE permits
				SET status     = 'active'::permit_status,
				    updated_at = NOW()
				WHERE id = $1
				  AND status = 'extension_requested'
				RETURNING id
			`, ext.PermitID).Scan(&permitID)
		}
		if err == pgx.ErrNoRows {
			return ErrPreconditionMiss
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to return permit to active")
		}
		return nil
	})
}

type extensionScanner interface {
	Scan(dest ...any) error
}

func (r *ExtensionRepository) scanExtension(row extensionScanner) (*permit.ExtensionRequest, error) {
	ext := &permit.ExtensionRequest{}
	err := row.Scan(
		&ext.ID,
		&ext.PermitID,
		&ext.RequestedEndTime,
		&ext.Justification,
		&ext.RequestedBy,
		&ext.Status,
		&ext.DecisionReason,
		&ext.DecidedBy,
		&ext.DecidedAt,
		&ext.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ext, nil
}
