package permit

import (
	"fmt"
	"time"
)

// Notification categories.
const (
	CategoryApprovalRequest   = "approval_request"
	CategoryApproval          = "approval"
	CategoryRejection         = "rejection"
	CategoryExtensionRequest  = "extension_request"
	CategoryExtensionDecision = "extension_decision"
	CategoryClosure           = "closure"
)

// Note is one planned notification: who to tell, and what. The engine
// computes these deterministically from a transition; delivery is the
// caller's concern.
type Note struct {
	UserID   string
	Category string
	Message  string
}

// CreationNotes tells every assigned approver that a new permit awaits
// their decision.
func CreationNotes(p *Permit) []Note {
	var notes []Note
	for _, role := range p.AssignedRoles() {
		notes = append(notes, Note{
			UserID:   *p.Slot(role).UserID,
			Category: CategoryApprovalRequest,
			Message:  fmt.Sprintf("Permit %s awaits your approval as %s", p.SerialNumber, role.Display()),
		})
	}
	return notes
}

// ApprovalNotes tells the requester about an approval; the message changes
// when the decision completed the approval chain.
func ApprovalNotes(p *Permit, role Role, allApproved bool) []Note {
	msg := fmt.Sprintf("Permit %s was approved by the %s", p.SerialNumber, role.Display())
	if allApproved {
		msg = fmt.Sprintf("Permit %s is fully approved and can be submitted", p.SerialNumber)
	}
	return []Note{{UserID: p.CreatedBy, Category: CategoryApproval, Message: msg}}
}

// RejectionNotes tells the requester that a single approver rejected the
// permit, which is decisive.
func RejectionNotes(p *Permit, role Role, reason string) []Note {
	return []Note{{
		UserID:   p.CreatedBy,
		Category: CategoryRejection,
		Message:  fmt.Sprintf("Permit %s was rejected by the %s: %s", p.SerialNumber, role.Display(), reason),
	}}
}

// ExtensionRequestNotes tells every assigned approver about a pending
// extension request.
func ExtensionRequestNotes(p *Permit, requestedEnd time.Time) []Note {
	var notes []Note
	for _, role := range p.AssignedRoles() {
		notes = append(notes, Note{
			UserID:   *p.Slot(role).UserID,
			Category: CategoryExtensionRequest,
			Message:  fmt.Sprintf("Permit %s requests an extension until %s", p.SerialNumber, requestedEnd.Format(time.RFC3339)),
		})
	}
	return notes
}

// ExtensionDecisionNotes tells the requester how their extension was decided.
func ExtensionDecisionNotes(p *Permit, approved bool, reason string) []Note {
	var msg string
	if approved {
		msg = fmt.Sprintf("Extension for permit %s was granted; new end time %s", p.SerialNumber, p.EndTime.Format(time.RFC3339))
	} else {
		msg = fmt.Sprintf("Extension for permit %s was denied: %s", p.SerialNumber, reason)
	}
	return []Note{{UserID: p.CreatedBy, Category: CategoryExtensionDecision, Message: msg}}
}

// ClosureNotes tells every assigned approver that work under the permit has
// been closed out.
func ClosureNotes(p *Permit) []Note {
	var notes []Note
	for _, role := range p.AssignedRoles() {
		notes = append(notes, Note{
			UserID:   *p.Slot(role).UserID,
			Category: CategoryClosure,
			Message:  fmt.Sprintf("Permit %s has been closed", p.SerialNumber),
		})
	}
	return notes
}
