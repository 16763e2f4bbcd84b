package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safesite/ptw-service/internal/database"
	"github.com/safesite/ptw-service/internal/errors"
	"github.com/safesite/ptw-service/internal/permit"
)

// ErrPreconditionMiss is returned when a conditional update matched no row:
// either the permit is gone or it was not in the expected state. Callers
// re-read the permit to produce the precise error.
var ErrPreconditionMiss = errors.New(errors.ErrCodeConflict, "permit was not in the expected state")

// serialLockKey is the advisory lock key guarding serial allocation.
const serialLockKey = 734001

// PermitRepository handles permit data operations.
type PermitRepository struct {
	db *database.DB
}

// NewPermitRepository creates a new PermitRepository.
func NewPermitRepository(db *database.DB) *PermitRepository {
	return &PermitRepository{db: db}
}

// slotPrefix maps an approver role to its column prefix. The three slots
// are fixed columns, never dynamic field lookups.
func slotPrefix(role permit.Role) (string, error) {
	switch role {
	case permit.RoleAreaManager:
		return "am", nil
	case permit.RoleSafetyOfficer:
		return "so", nil
	case permit.RoleSiteLeader:
		return "sl", nil
	}
	return "", errors.NotFound("approver slot", string(role))
}

func otherPrefixes(pfx string) [2]string {
	switch pfx {
	case "am":
		return [2]string{"so", "sl"}
	case "so":
		return [2]string{"am", "sl"}
	default:
		return [2]string{"am", "so"}
	}
}

// Create inserts a permit header and all child rows in one transaction,
// allocating the next serial number under an advisory lock so concurrent
// creations cannot collide.
func (r *PermitRepository) Create(ctx context.Context, p *permit.Permit) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, serialLockKey); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to acquire serial lock")
		}

		var maxSerial int
		err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(CAST(SUBSTRING(serial_number FROM 5) AS INTEGER)), 0)
			FROM permits
		`).Scan(&maxSerial)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to allocate serial number")
		}
		p.SerialNumber = permit.FormatSerial(maxSerial + 1)

		query := `
			INSERT INTO permits
			    (serial_number, title, description, location, status,
			     start_time, end_time, created_by,
			     am_user_id, am_status,
			     so_user_id, so_status,
			     sl_user_id, sl_status)
			VALUES ($1, $2, $3, $4, $5::permit_status,
			        $6, $7, $8,
			        $9, $10,
			        $11, $12,
			        $13, $14)
			RETURNING id, created_at, updated_at
		`

		err = tx.QueryRow(ctx, query,
			p.SerialNumber,
			p.Title,
			p.Description,
			p.Location,
			p.Status,
			p.StartTime,
			p.EndTime,
			p.CreatedBy,
			p.AreaManager.UserID,
			nullIfEmpty(p.AreaManager.Status),
			p.SafetyOfficer.UserID,
			nullIfEmpty(p.SafetyOfficer.Status),
			p.SiteLeader.UserID,
			nullIfEmpty(p.SiteLeader.Status),
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create permit")
		}

		for _, m := range p.TeamMembers {
			m.PermitID = p.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO permit_team_members (permit_id, name, trade, company)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, p.ID, m.Name, m.Trade, m.Company).Scan(&m.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create team member")
			}
		}

		for _, h := range p.Hazards {
			h.PermitID = p.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO permit_hazards (permit_id, category, description, control_measure)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, p.ID, h.Category, h.Description, h.ControlMeasure).Scan(&h.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create hazard")
			}
		}

		for _, item := range p.PPE {
			item.PermitID = p.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO permit_ppe (permit_id, name)
				VALUES ($1, $2)
				RETURNING id
			`, p.ID, item.Name).Scan(&item.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create ppe item")
			}
		}

		for _, a := range p.ChecklistAnswers {
			a.PermitID = p.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO permit_checklist_answers (permit_id, question, answer)
				VALUES ($1, $2, $3)
				RETURNING id
			`, p.ID, a.Question, a.Answer).Scan(&a.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create checklist answer")
			}
		}

		return nil
	})
}

const permitColumns = `
	id, serial_number, title, description, location, status,
	start_time, end_time, extended, rejection_reason, created_by, closed_at,
	am_user_id, am_status, am_signature, am_decided_at,
	so_user_id, so_status, so_signature, so_decided_at,
	sl_user_id, sl_status, sl_signature, sl_decided_at,
	created_at, updated_at`

// GetByID retrieves a permit with all child rows.
func (r *PermitRepository) GetByID(ctx context.Context, id string) (*permit.Permit, error) {
	query := `SELECT ` + permitColumns + ` FROM permits WHERE id = $1`

	p, err := scanPermit(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("permit", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get permit")
	}

	if err := r.loadChildren(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// PermitFilter narrows List results.
type PermitFilter struct {
	Status          *string
	CreatedBy       *string
	PendingApprover *string // permits awaiting a decision from this user
}

// List returns permit headers (no child rows) matching the filter, newest
// first.
func (r *PermitRepository) List(ctx context.Context, f PermitFilter) ([]*permit.Permit, error) {
	query := `SELECT ` + permitColumns + ` FROM permits WHERE 1=1`
	args := []any{}

	if f.Status != nil {
		args = append(args, *f.Status)
		query += fmt.Sprintf(" AND status = $%d::permit_status", len(args))
	}
	if f.CreatedBy != nil {
		args = append(args, *f.CreatedBy)
		query += fmt.Sprintf(" AND created_by = $%d", len(args))
	}
	if f.PendingApprover != nil {
		args = append(args, *f.PendingApprover)
		n := len(args)
		query += fmt.Sprintf(` AND status = 'initiated' AND (
			(am_user_id = $%d AND am_status = 'pending') OR
			(so_user_id = $%d AND so_status = 'pending') OR
			(sl_user_id = $%d AND sl_status = 'pending'))`, n, n, n)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list permits")
	}
	defer rows.Close()

	var permits []*permit.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan permit")
		}
		permits = append(permits, p)
	}
	return permits, rows.Err()
}

// SlotDecision is one approver's approve/reject action.
type SlotDecision struct {
	Approve   bool
	ActorID   string
	Signature string // approve only
	Reason    string // reject only
	DecidedAt time.Time
}

// RecordDecision applies an approver's decision as a single conditional
// update. The WHERE clause enforces permit state, slot binding and slot
// sub-status against the freshest committed row; the aggregate status is
// recomputed in-row so two concurrent approvals on different slots both
// land without a lost update. Returns the new aggregate status.
func (r *PermitRepository) RecordDecision(ctx context.Context, permitID string, role permit.Role, d SlotDecision) (string, error) {
	pfx, err := slotPrefix(role)
	if err != nil {
		return "", err
	}
	others := otherPrefixes(pfx)

	var query string
	var args []any
	if d.Approve {
		// The CASE mirrors permit.AggregateStatus: this slot becomes
		// approved, so the aggregate flips only if both other slots are
		// unassigned or already approved.
		query = fmt.Sprintf(`
			UPDATE permits
			SET %[1]s_status     = 'approved',
			    %[1]s_signature  = $3,
			    %[1]s_decided_at = $4,
			    status = CASE
			        WHEN (%[2]s_user_id IS NULL OR %[2]s_status = 'approved')
			         AND (%[3]s_user_id IS NULL OR %[3]s_status = 'approved')
			        THEN 'approved'::permit_status
			        ELSE status
			    END,
			    updated_at = NOW()
			WHERE id = $1
			  AND status = 'initiated'
			  AND %[1]s_user_id = $2
			  AND %[1]s_status = 'pending'
			RETURNING status
		`, pfx, others[0], others[1])
		args = []any{permitID, d.ActorID, d.Signature, d.DecidedAt}
	} else {
		query = fmt.Sprintf(`
			UPDATE permits
			SET %[1]s_status     = 'rejected',
			    %[1]s_decided_at = $4,
			    status           = 'rejected'::permit_status,
			    rejection_reason = $3,
			    updated_at       = NOW()
			WHERE id = $1
			  AND status = 'initiated'
			  AND %[1]s_user_id = $2
			  AND %[1]s_status = 'pending'
			RETURNING status
		`, pfx)
		args = []any{permitID, d.ActorID, d.Reason, d.DecidedAt}
	}

	var status string
	err = r.db.QueryRow(ctx, query, args...).Scan(&status)
	if err == pgx.ErrNoRows {
		return "", ErrPreconditionMiss
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to record approval decision")
	}
	return status, nil
}

// TransitionStatus moves a permit between two statuses, conditional on the
// current status and on the acting user being the creator.
func (r *PermitRepository) TransitionStatus(ctx context.Context, id, from, to, creatorID string) error {
	query := `
		UPDATE permits
		SET status     = $3::permit_status,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = $2::permit_status
		  AND created_by = $4
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, from, to, creatorID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return ErrPreconditionMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to transition permit status")
	}
	return nil
}

// Close moves an active permit to closed and records the closure checklist
// in the same transaction.
func (r *PermitRepository) Close(ctx context.Context, id, creatorID string, c *permit.Closure) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var returnedID string
		err := tx.QueryRow(ctx, `
			UPDATE permits
			SET status     = 'closed'::permit_status,
			    closed_at  = $3,
			    updated_at = NOW()
			WHERE id = $1
			  AND status = 'active'
			  AND created_by = $2
			RETURNING id
		`, id, creatorID, c.ClosedAt).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return ErrPreconditionMiss
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to close permit")
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO permit_closures
			    (permit_id, housekeeping, tools_removed, locks_removed, area_restored, closed_by, closed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, id, c.Housekeeping, c.ToolsRemoved, c.LocksRemoved, c.AreaRestored, c.ClosedBy, c.ClosedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record closure checklist")
		}
		return nil
	})
}

// Delete removes a permit and all dependent rows in one transaction.
func (r *PermitRepository) Delete(ctx context.Context, id string) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		for _, table := range []string{
			"permit_team_members",
			"permit_hazards",
			"permit_ppe",
			"permit_checklist_answers",
			"permit_closures",
			"extension_requests",
			"notifications",
		} {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE permit_id = $1`, table), id); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete permit dependents")
			}
		}

		tag, err := tx.Exec(ctx, `DELETE FROM permits WHERE id = $1`, id)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete permit")
		}
		if tag.RowsAffected() == 0 {
			return errors.NotFound("permit", id)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermit(row rowScanner) (*permit.Permit, error) {
	p := &permit.Permit{}
	var amStatus, soStatus, slStatus *string

	err := row.Scan(
		&p.ID,
		&p.SerialNumber,
		&p.Title,
		&p.Description,
		&p.Location,
		&p.Status,
		&p.StartTime,
		&p.EndTime,
		&p.Extended,
		&p.RejectionReason,
		&p.CreatedBy,
		&p.ClosedAt,
		&p.AreaManager.UserID,
		&amStatus,
		&p.AreaManager.Signature,
		&p.AreaManager.DecidedAt,
		&p.SafetyOfficer.UserID,
		&soStatus,
		&p.SafetyOfficer.Signature,
		&p.SafetyOfficer.DecidedAt,
		&p.SiteLeader.UserID,
		&slStatus,
		&p.SiteLeader.Signature,
		&p.SiteLeader.DecidedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if amStatus != nil {
		p.AreaManager.Status = *amStatus
	}
	if soStatus != nil {
		p.SafetyOfficer.Status = *soStatus
	}
	if slStatus != nil {
		p.SiteLeader.Status = *slStatus
	}
	return p, nil
}

func (r *PermitRepository) loadChildren(ctx context.Context, p *permit.Permit) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, permit_id, name, trade, company
		FROM permit_team_members
		WHERE permit_id = $1
		ORDER BY id
	`, p.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load team members")
	}
	defer rows.Close()
	for rows.Next() {
		m := &permit.TeamMember{}
		if err := rows.Scan(&m.ID, &m.PermitID, &m.Name, &m.Trade, &m.Company); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to scan team member")
		}
		p.TeamMembers = append(p.TeamMembers, m)
	}
	rows.Close()

	rows, err = r.db.Query(ctx, `
		SELECT id, permit_id, category, description, control_measure
		FROM permit_hazards
		WHERE permit_id = $1
		ORDER BY id
	`, p.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load hazards")
	}
	defer rows.Close()
	for rows.Next() {
		h := &permit.Hazard{}
		if err := rows.Scan(&h.ID, &h.PermitID, &h.Category, &h.Description, &h.ControlMeasure); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to scan hazard")
		}
		p.Hazards = append(p.Hazards, h)
	}
	rows.Close()

	rows, err = r.db.Query(ctx, `
		SELECT id, permit_id, name
		FROM permit_ppe
		WHERE permit_id = $1
		ORDER BY id
	`, p.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load ppe")
	}
	defer rows.Close()
	for rows.Next() {
		item := &permit.PPEItem{}
		if err := rows.Scan(&item.ID, &item.PermitID, &item.Name); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to scan ppe item")
		}
		p.PPE = append(p.PPE, item)
	}
	rows.Close()

	rows, err = r.db.Query(ctx, `
		SELECT id, permit_id, question, answer
		FROM permit_checklist_answers
		WHERE permit_id = $1
		ORDER BY id
	`, p.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load checklist answers")
	}
	defer rows.Close()
	for rows.Next() {
		a := &permit.ChecklistAnswer{}
		if err := rows.Scan(&a.ID, &a.PermitID, &a.Question, &a.Answer); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to scan checklist answer")
		}
		p.ChecklistAnswers = append(p.ChecklistAnswers, a)
	}
	rows.Close()

	c := &permit.Closure{}
	err = r.db.QueryRow(ctx, `
		SELECT permit_id, housekeeping, tools_removed, locks_removed, area_restored, closed_by, closed_at
		FROM permit_closures
		WHERE permit_id = $1
	`, p.ID).Scan(&c.PermitID, &c.Housekeeping, &c.ToolsRemoved, &c.LocksRemoved, &c.AreaRestored, &c.ClosedBy, &c.ClosedAt)
	switch err {
	case nil:
		p.Closure = c
	case pgx.ErrNoRows:
		// not closed yet
	default:
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to load closure")
	}

	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
