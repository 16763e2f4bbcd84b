package permit

import (
	"fmt"
	"time"

	"github.com/safesite/ptw-service/internal/errors"
)

// The approval engine: pure decision logic over a permit's approver slots.
// Nothing here touches storage or clocks beyond the timestamps passed in;
// callers wrap these functions in a transactional boundary.

// AggregateStatus computes the permit-level status implied by the current
// approver sub-statuses. Only meaningful while the permit is in its approval
// phase: a single rejected slot is decisive, all assigned slots approved
// means approved, anything else stays initiated. Unassigned slots contribute
// nothing.
func AggregateStatus(p *Permit) string {
	assigned := p.AssignedRoles()
	if len(assigned) == 0 {
		return StatusInitiated
	}

	allApproved := true
	for _, role := range assigned {
		switch p.Slot(role).Status {
		case SlotRejected:
			return StatusRejected
		case SlotApproved:
		default:
			allApproved = false
		}
	}
	if allApproved {
		return StatusApproved
	}
	return StatusInitiated
}

// SeedApprovals validates a new permit and initializes its approval state:
// every assigned slot goes to pending and the aggregate to initiated. A
// permit with no approvers at all is rejected, not silently defaulted.
func SeedApprovals(p *Permit) error {
	if !p.EndTime.After(p.StartTime) {
		return errors.InvalidInput("end_time", "work window end must be after start")
	}

	assigned := p.AssignedRoles()
	if len(assigned) == 0 {
		return errors.InvalidInput("approvers", "at least one approver must be assigned")
	}

	for _, role := range assigned {
		slot := p.Slot(role)
		slot.Status = SlotPending
		slot.Signature = nil
		slot.DecidedAt = nil
	}
	p.Status = StatusInitiated
	return nil
}

// ValidateDecision checks whether actorID may approve or reject the given
// role's slot right now. Each failure mode is distinct: missing slot,
// wrong actor, wrong permit state, slot already decided.
func ValidateDecision(p *Permit, role Role, actorID string) error {
	if !role.Valid() {
		return errors.NotFound("approver slot", string(role))
	}
	slot := p.Slot(role)
	if !slot.Assigned() {
		return errors.NotFound("approver slot", fmt.Sprintf("%s on permit %s", role.Display(), p.SerialNumber))
	}
	if *slot.UserID != actorID {
		return errors.Unauthorized(fmt.Sprintf("permit %s is not assigned to you for %s approval", p.SerialNumber, role.Display()))
	}
	if p.Status != StatusInitiated {
		return errors.InvalidState(fmt.Sprintf("permit %s is %s; approval decisions are only accepted while initiated", p.SerialNumber, p.Status))
	}
	if slot.Status != SlotPending {
		return errors.AlreadyDecided(fmt.Sprintf("you have already %s permit %s", slot.Status, p.SerialNumber))
	}
	return nil
}

// Approve records an approval on the role's slot and recomputes the
// aggregate. Returns true when every assigned slot is now approved.
func Approve(p *Permit, role Role, actorID, signature string, now time.Time) (allApproved bool, err error) {
	if err := ValidateDecision(p, role, actorID); err != nil {
		return false, err
	}
	if signature == "" {
		return false, errors.InvalidInput("signature", "a signature is required to approve")
	}

	slot := p.Slot(role)
	slot.Status = SlotApproved
	slot.Signature = &signature
	slot.DecidedAt = &now

	p.Status = AggregateStatus(p)
	return p.Status == StatusApproved, nil
}

// Reject records a rejection on the role's slot. A single rejection is
// decisive: the aggregate goes straight to rejected and freezes.
func Reject(p *Permit, role Role, actorID, reason string, now time.Time) error {
	if err := ValidateDecision(p, role, actorID); err != nil {
		return err
	}
	if reason == "" {
		return errors.InvalidInput("reason", "a rejection reason is required")
	}

	slot := p.Slot(role)
	slot.Status = SlotRejected
	slot.DecidedAt = &now

	p.Status = StatusRejected
	p.RejectionReason = &reason
	return nil
}

// FinalSubmit moves a fully approved permit to ready_to_start. Only the
// creating user may submit.
func FinalSubmit(p *Permit, actorID string) error {
	if p.CreatedBy != actorID {
		return errors.Unauthorized(fmt.Sprintf("only the creator of permit %s can submit it", p.SerialNumber))
	}
	if p.Status != StatusApproved {
		return errors.InvalidState(fmt.Sprintf("permit %s is %s; final submit requires all approvals", p.SerialNumber, p.Status))
	}
	p.Status = StatusReadyToStart
	return nil
}

// Start moves a ready permit to active. Only the creating user may start.
func Start(p *Permit, actorID string) error {
	if p.CreatedBy != actorID {
		return errors.Unauthorized(fmt.Sprintf("only the creator of permit %s can start work", p.SerialNumber))
	}
	if p.Status != StatusReadyToStart {
		return errors.InvalidState(fmt.Sprintf("permit %s is %s; work can only start from ready_to_start", p.SerialNumber, p.Status))
	}
	p.Status = StatusActive
	return nil
}

// ValidateExtensionRequest checks an extension request against the current
// permit: only the creator, only while active, and only for a strictly
// later end time.
func ValidateExtensionRequest(p *Permit, actorID string, newEnd time.Time, justification string) error {
	if p.CreatedBy != actorID {
		return errors.Unauthorized(fmt.Sprintf("only the creator of permit %s can request an extension", p.SerialNumber))
	}
	if p.Status != StatusActive {
		return errors.InvalidState(fmt.Sprintf("permit %s is %s; extensions can only be requested while active", p.SerialNumber, p.Status))
	}
	if !newEnd.After(p.EndTime) {
		return errors.InvalidInput("new_end_time", "requested end time must be later than the current end time")
	}
	if justification == "" {
		return errors.InvalidInput("justification", "a justification is required")
	}
	return nil
}

// DecideExtension resolves a pending extension request. Any of the permit's
// assigned approvers may decide; a rejection returns the permit to active
// with its original end time, an approval moves the end time and tags the
// permit as extended.
func DecideExtension(p *Permit, ext *ExtensionRequest, actorID string, approve bool, reason string, now time.Time) error {
	if _, ok := p.RoleOf(actorID); !ok {
		return errors.Unauthorized(fmt.Sprintf("you are not an assigned approver on permit %s", p.SerialNumber))
	}
	if p.Status != StatusExtensionRequested {
		return errors.InvalidState(fmt.Sprintf("permit %s has no extension awaiting a decision", p.SerialNumber))
	}
	if ext.Status != ExtensionPending {
		return errors.AlreadyDecided(fmt.Sprintf("the extension on permit %s has already been %s", p.SerialNumber, ext.Status))
	}
	if !approve && reason == "" {
		return errors.InvalidInput("reason", "a reason is required to reject an extension")
	}

	ext.DecidedBy = &actorID
	ext.DecidedAt = &now
	p.Status = StatusActive

	if approve {
		ext.Status = ExtensionApproved
		p.EndTime = ext.RequestedEndTime
		p.Extended = true
	} else {
		ext.Status = ExtensionRejected
		ext.DecisionReason = &reason
	}
	return nil
}

// ValidateClosure checks that a close request comes from the creator, while
// active, with every checklist flag explicitly supplied.
func ValidateClosure(p *Permit, actorID string, in ClosureInput) error {
	if p.CreatedBy != actorID {
		return errors.Unauthorized(fmt.Sprintf("only the creator of permit %s can close it", p.SerialNumber))
	}
	if p.Status != StatusActive {
		return errors.InvalidState(fmt.Sprintf("permit %s is %s; only active permits can be closed", p.SerialNumber, p.Status))
	}

	missing := ""
	switch {
	case in.Housekeeping == nil:
		missing = "housekeeping"
	case in.ToolsRemoved == nil:
		missing = "tools_removed"
	case in.LocksRemoved == nil:
		missing = "locks_removed"
	case in.AreaRestored == nil:
		missing = "area_restored"
	}
	if missing != "" {
		return errors.InvalidInput(missing, "closure checklist flag must be explicitly supplied")
	}
	return nil
}

// Close applies a validated closure: the permit becomes closed (terminal)
// and the checklist evidence is attached.
func Close(p *Permit, actorID string, in ClosureInput, now time.Time) (*Closure, error) {
	if err := ValidateClosure(p, actorID, in); err != nil {
		return nil, err
	}

	closure := &Closure{
		PermitID:     p.ID,
		Housekeeping: *in.Housekeeping,
		ToolsRemoved: *in.ToolsRemoved,
		LocksRemoved: *in.LocksRemoved,
		AreaRestored: *in.AreaRestored,
		ClosedBy:     actorID,
		ClosedAt:     now,
	}
	p.Status = StatusClosed
	p.ClosedAt = &now
	p.Closure = closure
	return closure, nil
}
