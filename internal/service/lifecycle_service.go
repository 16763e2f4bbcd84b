package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/safesite/ptw-service/internal/errors"
	"github.com/safesite/ptw-service/internal/permit"
	"github.com/safesite/ptw-service/internal/repository"
)

// LifecycleService drives permits through the approval state machine. Each
// operation is one atomic unit against the store: the permit is read fresh,
// the engine validates the actor against the current slot bindings, and the
// write is a conditional update that only lands if the row is still in the
// expected state. Notifications go out only after the write committed.
type LifecycleService struct {
	permits    PermitStore
	extensions ExtensionStore
	notifier   *NotificationService
	log        zerolog.Logger
	now        func() time.Time
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(
	permits PermitStore,
	extensions ExtensionStore,
	notifier *NotificationService,
	log zerolog.Logger,
) *LifecycleService {
	return &LifecycleService{
		permits:    permits,
		extensions: extensions,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
	}
}

// Approve records an approver's approval on their slot. Returns the new
// aggregate status and whether this decision completed the approval chain.
func (s *LifecycleService) Approve(ctx context.Context, permitID string, role permit.Role, actorID, signature string) (string, bool, error) {
	p, err := s.permits.GetByID(ctx, permitID)
	if err != nil {
		return "", false, err
	}
	if err := permit.ValidateDecision(p, role, actorID); err != nil {
		return "", false, err
	}
	if signature == "" {
		return "", false, errors.InvalidInput("signature", "a signature is required to approve")
	}

	newStatus, err := s.permits.RecordDecision(ctx, permitID, role, repository.SlotDecision{
		Approve:   true,
		ActorID:   actorID,
		Signature: signature,
		DecidedAt: s.now(),
	})
	if err == repository.ErrPreconditionMiss {
		return "", false, s.classifyMiss(ctx, permitID, func(fresh *permit.Permit) error {
			return permit.ValidateDecision(fresh, role, actorID)
		})
	}
	if err != nil {
		return "", false, err
	}

	allApproved := newStatus == permit.StatusApproved
	s.log.Info().
		Str("permit_id", permitID).
		Str("serial", p.SerialNumber).
		Str("role", string(role)).
		Bool("all_approved", allApproved).
		Msg("permit approval recorded")

	s.notifier.Send(ctx, permitID, permit.ApprovalNotes(p, role, allApproved))
	return newStatus, allApproved, nil
}

// Reject records an approver's rejection. A single rejection is decisive:
// the permit goes terminal and no further slot mutation is accepted.
func (s *LifecycleService) Reject(ctx context.Context, permitID string, role permit.Role, actorID, reason string) (string, error) {
	p, err := s.permits.GetByID(ctx, permitID)
	if err != nil {
		return "", err
	}
	if err := permit.ValidateDecision(p, role, actorID); err != nil {
		return "", err
	}
	if reason == "" {
		return "", errors.InvalidInput("reason", "a rejection reason is required")
	}

	newStatus, err := s.permits.RecordDecision(ctx, permitID, role, repository.SlotDecision{
		Approve:   false,
		ActorID:   actorID,
		Reason:    reason,
		DecidedAt: s.now(),
	})
	if err == repository.ErrPreconditionMiss {
		return "", s.classifyMiss(ctx, permitID, func(fresh *permit.Permit) error {
			return permit.ValidateDecision(fresh, role, actorID)
		})
	}
	if err != nil {
		return "", err
	}

	s.log.Info().
		Str("permit_id", permitID).
		Str("serial", p.SerialNumber).
		Str("role", string(role)).
		Msg("permit rejected")

	s.notifier.Send(ctx, permitID, permit.RejectionNotes(p, role, reason))
	return newStatus, nil
}

// FinalSubmit moves a fully approved permit to ready_to_start. Creator only.
func (s *LifecycleService) FinalSubmit(ctx context.Context, permitID, actorID string) (string, error) {
	p, err := s.permits.GetByID(ctx, permitID)
	if err != nil {
		return "", err
	}
	if err := permit.FinalSubmit(p, actorID); err != nil {
		return "", err
	}

	err = s.permits.TransitionStatus(ctx, permitID, permit.StatusApproved, permit.StatusReadyToStart, actorID)
	if err == repository.ErrPreconditionMiss {
		return "", s.classifyMiss(ctx, permitID, func(fresh *permit.Permit) error {
			return permit.FinalSubmit(fresh, actorID)
		})
	}
	if err != nil {
		return "", err
	}
	return permit.StatusReadyToStart, nil
}

// Start moves a ready permit to active. Creator only.
func (s *LifecycleService) Start(ctx context.Context, permitID, actorID string) (string, error) {
	p, err := s.permits.GetByID(ctx, permitID)
	if err != nil {
		return "", err
	}
	if err := permit.Start(p, actorID); err != nil {
		return "", err
	}

	err = s.permits.TransitionStatus(ctx, permitID, permit.StatusReadyToStart, permit.StatusActive, actorID)
	if err == repository.ErrPreconditionMiss {
		return "", s.classifyMiss(ctx, permitID, func(fresh *permit.Permit) error {
			return permit.Start(fresh, actorID)
		})
	}
	if err != nil {
		return "", err
	}
	return permit.StatusActive, nil
}

// RequestExtension opens an extension request on an active permit and
// notifies the assigned approvers.
func (s *LifecycleService) RequestExtension(ctx context.Context, permitID, actorID string, newEnd time.Time, justification string) (*permit.ExtensionRequest, error) {
	p, err := s.permits.GetByID(ctx, permitID)
	if err != nil {
		return nil, err
	}
	if err := permit.ValidateExtensionRequest(p, actorID, newEnd, justification); err != nil {
		return nil, err
	}

	ext := &permit.ExtensionRequest{
		PermitID:         permitID,
		RequestedEndTime: newEnd,
		Justification:    justification,
		RequestedBy:      actorID,
	}
	err = s.extensions.CreateWithTransition(ctx, ext)
	if err == repository.ErrPreconditionMiss {
		return nil, s.classifyMiss(ctx, permitID, func(fresh *permit.Permit) error {
			return permit.ValidateExtensionRequest(fresh, actorID, newEnd, justification)
		})
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("permit_id", permitID).
		Str("serial", p.SerialNumber).
		Time("requested_end", newEnd).
		Msg("extension requested")

	s.notifier.Send(ctx, permitID, permit.ExtensionRequestNotes(p, newEnd))
	return ext, nil
}

// DecideExtension resolves a pending extension request. Any assigned
// approver may decide; the permit returns to active either way.
func (s *LifecycleService) DecideExtension(ctx context.Context, permitID, actorID string, approve bool, reason string) (string, error) {
	p, err := s.permits.GetByID(ctx, permitID)
	if err != nil {
		return "", err
	}
	ext, err := s.extensions.GetPending(ctx, permitID)
	if err != nil {
		return "", err
	}
	if ext == nil {
		return "", errors.InvalidState(fmt.Sprintf("permit %s has no extension awaiting a decision", p.SerialNumber))
	}

	if err := permit.DecideExtension(p, ext, actorID, approve, reason, s.now()); err != nil {
		return "", err
	}

	err = s.extensions.Decide(ctx, ext, approve, actorID, reason, *ext.DecidedAt)
	if err == repository.ErrPreconditionMiss {
		return "", errors.AlreadyDecided(fmt.Sprintf("the extension on permit %s has already been decided", p.SerialNumber))
	}
	if err != nil {
		return "", err
	}

	s.log.Info().
		Str("permit_id", permitID).
		Str("serial", p.SerialNumber).
		Bool("approved", approve).
		Msg("extension decided")

	s.notifier.Send(ctx, permitID, permit.ExtensionDecisionNotes(p, approve, reason))
	return p.Status, nil
}

// ClosePermit closes out active work with the closure checklist. Creator
// only; all four checklist flags must be explicitly supplied.
func (s *LifecycleService) ClosePermit(ctx context.Context, permitID, actorID string, in permit.ClosureInput) (string, error) {
	p, err := s.permits.GetByID(ctx, permitID)
	if err != nil {
		return "", err
	}
	closure, err := permit.Close(p, actorID, in, s.now())
	if err != nil {
		return "", err
	}

	err = s.permits.Close(ctx, permitID, actorID, closure)
	if err == repository.ErrPreconditionMiss {
		return "", s.classifyMiss(ctx, permitID, func(fresh *permit.Permit) error {
			return permit.ValidateClosure(fresh, actorID, in)
		})
	}
	if err != nil {
		return "", err
	}

	s.log.Info().
		Str("permit_id", permitID).
		Str("serial", p.SerialNumber).
		Msg("permit closed")

	s.notifier.Send(ctx, permitID, permit.ClosureNotes(p))
	return permit.StatusClosed, nil
}

// classifyMiss turns a conditional-update miss into the precise error: the
// permit is re-read and re-validated so the caller learns whether it is
// gone, not theirs, already decided, or in the wrong state. When the fresh
// row would validate (the race resolved between read and write), a retryable
// conflict is reported.
func (s *LifecycleService) classifyMiss(ctx context.Context, permitID string, validate func(fresh *permit.Permit) error) error {
	fresh, err := s.permits.GetByID(ctx, permitID)
	if err != nil {
		return err
	}
	if verr := validate(fresh); verr != nil {
		return verr
	}
	return errors.New(errors.ErrCodeConflict, "permit changed concurrently, please retry")
}
