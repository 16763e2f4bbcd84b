// Package permit holds the permit-to-work domain model and the pure
// approval state machine that governs its lifecycle.
package permit

import "time"

// Role identifies one of the three fixed approver slots on a permit.
type Role string

const (
	RoleAreaManager   Role = "area_manager"
	RoleSafetyOfficer Role = "safety_officer"
	RoleSiteLeader    Role = "site_leader"
)

// AllRoles returns the approver roles in canonical order.
func AllRoles() []Role {
	return []Role{RoleAreaManager, RoleSafetyOfficer, RoleSiteLeader}
}

// Display returns the human-readable role name.
func (r Role) Display() string {
	switch r {
	case RoleAreaManager:
		return "Area Manager"
	case RoleSafetyOfficer:
		return "Safety Officer"
	case RoleSiteLeader:
		return "Site Leader"
	}
	return string(r)
}

// Valid reports whether r is one of the three approver roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAreaManager, RoleSafetyOfficer, RoleSiteLeader:
		return true
	}
	return false
}

// Permit lifecycle statuses. This vocabulary is canonical: the engine, the
// SQL layer and the API all use exactly these strings.
const (
	StatusInitiated          = "initiated"
	StatusApproved           = "approved"
	StatusReadyToStart       = "ready_to_start"
	StatusActive             = "active"
	StatusExtensionRequested = "extension_requested"
	StatusRejected           = "rejected"
	StatusClosed             = "closed"
)

// Approver slot sub-statuses. An unassigned slot has the empty string.
const (
	SlotPending  = "pending"
	SlotApproved = "approved"
	SlotRejected = "rejected"
)

// Extension request statuses.
const (
	ExtensionPending  = "pending"
	ExtensionApproved = "approved"
	ExtensionRejected = "rejected"
)

// Slot is one approver-role binding on a permit. UserID nil means the slot
// is unassigned and contributes nothing to the aggregate status.
type Slot struct {
	UserID    *string    `json:"user_id"`
	Status    string     `json:"status"`
	Signature *string    `json:"signature,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// Assigned reports whether the slot is bound to a user.
func (s *Slot) Assigned() bool {
	return s.UserID != nil
}

// Permit is the central work-authorization document.
type Permit struct {
	ID              string     `json:"id"`
	SerialNumber    string     `json:"serial_number"`
	Title           string     `json:"title"`
	Description     *string    `json:"description,omitempty"`
	Location        string     `json:"location"`
	Status          string     `json:"status"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	Extended        bool       `json:"extended"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	CreatedBy       string     `json:"created_by"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	AreaManager   Slot `json:"area_manager"`
	SafetyOfficer Slot `json:"safety_officer"`
	SiteLeader    Slot `json:"site_leader"`

	TeamMembers      []*TeamMember      `json:"team_members,omitempty"`
	Hazards          []*Hazard          `json:"hazards,omitempty"`
	PPE              []*PPEItem         `json:"ppe,omitempty"`
	ChecklistAnswers []*ChecklistAnswer `json:"checklist_answers,omitempty"`
	Closure          *Closure           `json:"closure,omitempty"`
}

// Slot returns the approver slot for a role. Returns nil for unknown roles.
func (p *Permit) Slot(role Role) *Slot {
	switch role {
	case RoleAreaManager:
		return &p.AreaManager
	case RoleSafetyOfficer:
		return &p.SafetyOfficer
	case RoleSiteLeader:
		return &p.SiteLeader
	}
	return nil
}

// AssignedRoles returns the roles that have a bound approver, in canonical
// order.
func (p *Permit) AssignedRoles() []Role {
	var roles []Role
	for _, role := range AllRoles() {
		if p.Slot(role).Assigned() {
			roles = append(roles, role)
		}
	}
	return roles
}

// RoleOf returns the approver role bound to userID, if any.
func (p *Permit) RoleOf(userID string) (Role, bool) {
	for _, role := range AllRoles() {
		slot := p.Slot(role)
		if slot.Assigned() && *slot.UserID == userID {
			return role, true
		}
	}
	return "", false
}

// Terminal reports whether the permit is in a state from which no further
// approver mutation is permitted.
func Terminal(status string) bool {
	return status == StatusRejected || status == StatusClosed
}

// TeamMember is one worker listed on the permit.
type TeamMember struct {
	ID       string `json:"id"`
	PermitID string `json:"permit_id"`
	Name     string `json:"name"`
	Trade    string `json:"trade"`
	Company  string `json:"company,omitempty"`
}

// Hazard is one identified hazard with its control measure.
type Hazard struct {
	ID             string `json:"id"`
	PermitID       string `json:"permit_id"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	ControlMeasure string `json:"control_measure"`
}

// PPEItem is one required piece of personal protective equipment.
type PPEItem struct {
	ID       string `json:"id"`
	PermitID string `json:"permit_id"`
	Name     string `json:"name"`
}

// ChecklistAnswer is one pre-work checklist answer captured at creation.
type ChecklistAnswer struct {
	ID       string `json:"id"`
	PermitID string `json:"permit_id"`
	Question string `json:"question"`
	Answer   bool   `json:"answer"`
}

// Closure is the evidence captured when a permit is closed. All four flags
// must be explicitly supplied by the caller; none default.
type Closure struct {
	PermitID     string    `json:"permit_id"`
	Housekeeping bool      `json:"housekeeping"`
	ToolsRemoved bool      `json:"tools_removed"`
	LocksRemoved bool      `json:"locks_removed"`
	AreaRestored bool      `json:"area_restored"`
	ClosedBy     string    `json:"closed_by"`
	ClosedAt     time.Time `json:"closed_at"`
}

// ClosureInput carries the closure checklist as submitted. Pointer fields
// distinguish "false" from "not supplied".
type ClosureInput struct {
	Housekeeping *bool
	ToolsRemoved *bool
	LocksRemoved *bool
	AreaRestored *bool
}

// ExtensionRequest asks to move a permit's end time later. At most one
// pending request exists per permit.
type ExtensionRequest struct {
	ID               string     `json:"id"`
	PermitID         string     `json:"permit_id"`
	RequestedEndTime time.Time  `json:"requested_end_time"`
	Justification    string     `json:"justification"`
	RequestedBy      string     `json:"requested_by"`
	Status           string     `json:"status"`
	DecisionReason   *string    `json:"decision_reason,omitempty"`
	DecidedBy        *string    `json:"decided_by,omitempty"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Notification is one event record for a user's dashboard feed. Write-once
// except for the read flag.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	PermitID  string    `json:"permit_id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
