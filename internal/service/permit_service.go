package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/safesite/ptw-service/internal/errors"
	"github.com/safesite/ptw-service/internal/permit"
	"github.com/safesite/ptw-service/internal/repository"
)

// PermitService handles permit authoring: assembling a new permit with its
// team, hazards, PPE and checklist, seeding the approval state, and the
// read/delete paths.
type PermitService struct {
	permits    PermitStore
	extensions ExtensionStore
	notifier   *NotificationService
	log        zerolog.Logger
}

// NewPermitService creates a new PermitService.
func NewPermitService(
	permits PermitStore,
	extensions ExtensionStore,
	notifier *NotificationService,
	log zerolog.Logger,
) *PermitService {
	return &PermitService{
		permits:    permits,
		extensions: extensions,
		notifier:   notifier,
		log:        log,
	}
}

// CreatePermitRequest carries everything needed to author a permit.
type CreatePermitRequest struct {
	Title       string
	Description *string
	Location    string
	StartTime   time.Time
	EndTime     time.Time

	AreaManagerID   *string
	SafetyOfficerID *string
	SiteLeaderID    *string

	TeamMembers      []TeamMemberRequest
	Hazards          []HazardRequest
	PPE              []string
	ChecklistAnswers []ChecklistAnswerRequest

	CreatedBy string
}

type TeamMemberRequest struct {
	Name    string
	Trade   string
	Company string
}

type HazardRequest struct {
	Category       string
	Description    string
	ControlMeasure string
}

type ChecklistAnswerRequest struct {
	Question string
	Answer   bool
}

// CreatePermit validates and persists a new permit as one atomic multi-row
// write: header, approver seeding, team, hazards, PPE and checklist answers
// commit together or not at all. Assigned approvers are notified after the
// commit.
func (s *PermitService) CreatePermit(ctx context.Context, req *CreatePermitRequest) (*permit.Permit, error) {
	if req.Title == "" {
		return nil, errors.InvalidInput("title", "a title is required")
	}
	if req.Location == "" {
		return nil, errors.InvalidInput("location", "a work location is required")
	}

	p := &permit.Permit{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		CreatedBy:   req.CreatedBy,
		AreaManager:   permit.Slot{UserID: req.AreaManagerID},
		SafetyOfficer: permit.Slot{UserID: req.SafetyOfficerID},
		SiteLeader:    permit.Slot{UserID: req.SiteLeaderID},
	}

	// Seeding rejects a permit with zero approvers outright; it never
	// defaults to approved.
	if err := permit.SeedApprovals(p); err != nil {
		return nil, err
	}

	for _, m := range req.TeamMembers {
		p.TeamMembers = append(p.TeamMembers, &permit.TeamMember{
			Name:    m.Name,
			Trade:   m.Trade,
			Company: m.Company,
		})
	}
	for _, h := range req.Hazards {
		p.Hazards = append(p.Hazards, &permit.Hazard{
			Category:       h.Category,
			Description:    h.Description,
			ControlMeasure: h.ControlMeasure,
		})
	}
	for _, name := range req.PPE {
		p.PPE = append(p.PPE, &permit.PPEItem{Name: name})
	}
	for _, a := range req.ChecklistAnswers {
		p.ChecklistAnswers = append(p.ChecklistAnswers, &permit.ChecklistAnswer{
			Question: a.Question,
			Answer:   a.Answer,
		})
	}

	if err := s.permits.Create(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("permit_id", p.ID).
		Str("serial", p.SerialNumber).
		Int("approvers", len(p.AssignedRoles())).
		Msg("permit created")

	s.notifier.Send(ctx, p.ID, permit.CreationNotes(p))
	return p, nil
}

// GetPermit returns a permit with its child rows and extension history.
func (s *PermitService) GetPermit(ctx context.Context, id string) (*permit.Permit, []*permit.ExtensionRequest, error) {
	p, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	exts, err := s.extensions.ListByPermit(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, exts, nil
}

// ListPermits returns permit headers matching the filter.
func (s *PermitService) ListPermits(ctx context.Context, f repository.PermitFilter) ([]*permit.Permit, error) {
	return s.permits.List(ctx, f)
}

// DeletePermit removes a permit and all dependent rows. Creator only.
func (s *PermitService) DeletePermit(ctx context.Context, id, actorID string) error {
	p, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.CreatedBy != actorID {
		return errors.Unauthorized("only the creator can delete a permit")
	}
	return s.permits.Delete(ctx, id)
}
