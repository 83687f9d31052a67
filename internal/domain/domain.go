package domain

// Role of a portal member.
type Role string

const (
	RoleClient        Role = "client"
	RoleSupervisor    Role = "supervisor"
	RoleTeammate      Role = "teammate"
	RoleAdministrator Role = "administrator"
	RoleGuest         Role = "guest"
)

// Assignment statuses.
const (
	StatusPendingReview = "pending_review"
	StatusNeedsRevision = "needs_revision"
	StatusDeclined      = "declined"
	StatusApproved      = "approved"
	StatusInProgress    = "in_progress"
	StatusDelivered     = "delivered"
	StatusCompleted     = "completed"
	StatusCancelled     = "cancelled"
	StatusDeleted       = "deleted"
)

// Attachment is a name+location pair; locations are opaque URLs.
type Attachment struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type Assignment struct {
	ID          string   `json:"id"`
	PortalID    string   `json:"portal_id"`
	ClientID    string   `json:"client_id"`
	Title       string   `json:"title"`
	Brief       string   `json:"brief,omitempty"`
	Steps       string   `json:"steps,omitempty"`
	StartDate   string   `json:"start_date,omitempty" format:"date"`
	DueDate     string   `json:"due_date" format:"date"`
	Status      string   `json:"status" enum:"pending_review,needs_revision,declined,approved,in_progress,delivered,completed,cancelled,deleted"`
	Teammates   []string `json:"teammates"`
	Supervisors []string `json:"supervisors"`
	// Attachments are split by who provided them.
	ClientFiles     []Attachment `json:"client_files,omitempty"`
	SupervisorFiles []Attachment `json:"supervisor_files,omitempty"`
	CreatedAt       string       `json:"created_at" format:"date-time"`
	UpdatedAt       string       `json:"updated_at" format:"date-time"`
}

// ActivityEvent is one immutable log entry attached to an assignment.
// ID is synthetic; the (TS, Author, Type, Note) tuple doubles as the legacy
// deletion key for records imported without ids.
type ActivityEvent struct {
	ID           int64  `json:"id"`
	AssignmentID string `json:"assignment_id"`
	TS           string `json:"ts" format:"date-time"`
	Author       string `json:"author"`
	Type         string `json:"type"`
	Note         string `json:"note,omitempty"`
	Urgent       bool   `json:"urgent,omitempty"`
}

// Message is a directed reply between roles, mirrored into the activity log.
type Message struct {
	ID           string `json:"id"`
	AssignmentID string `json:"assignment_id"`
	TS           string `json:"ts" format:"date-time"`
	SenderRole   Role   `json:"sender_role"`
	SenderName   string `json:"sender_name"`
	TargetRole   Role   `json:"target_role"`
	TargetID     string `json:"target_id"`
	TargetName   string `json:"target_name,omitempty"`
	Text         string `json:"text"`
}

// Delivery is a teammate's submission of completed work. Re-delivery appends
// a new record; deliveries are never mutated.
type Delivery struct {
	ID           string       `json:"id"`
	AssignmentID string       `json:"assignment_id"`
	Teammate     string       `json:"teammate"`
	TS           string       `json:"ts" format:"date-time"`
	Note         string       `json:"note,omitempty"`
	Files        []Attachment `json:"files,omitempty"`
	Status       string       `json:"status" enum:"submitted"`
}

// Acceptance records a teammate's accept/decline answer per assignment.
type Acceptance struct {
	AssignmentID string `json:"assignment_id"`
	Teammate     string `json:"teammate"`
	State        string `json:"state" enum:"accepted,declined"`
	Note         string `json:"note,omitempty"`
	TS           string `json:"ts" format:"date-time"`
}

// Member maps an actor id to an effective role and display identity.
type Member struct {
	ActorID     string   `json:"actor_id"`
	PortalID    string   `json:"portal_id"`
	Role        Role     `json:"role"`
	DisplayName string   `json:"display_name"`
	Aliases     []string `json:"aliases,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

// RosterEntry routes a teammate display name to a responsible supervisor.
type RosterEntry struct {
	ID           string `json:"id"`
	PortalID     string `json:"portal_id"`
	TeammateName string `json:"teammate_name"`
	SupervisorID string `json:"supervisor_id"`
	Company      string `json:"company,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// Notification is a persisted delivery intent. Emission is part of the
// transition transaction; delivery happens later and best-effort.
type Notification struct {
	ID            string `json:"id"`
	PortalID      string `json:"portal_id"`
	AssignmentID  string `json:"assignment_id"`
	Recipient     string `json:"recipient"`
	RecipientRole Role   `json:"recipient_role"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	DeliveredAt   string `json:"delivered_at,omitempty" format:"date-time"`
	ReadAt        string `json:"read_at,omitempty" format:"date-time"`
	Attempts      int    `json:"attempts"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Portal struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Terminal reports whether no further transitions are defined from status.
func Terminal(status string) bool {
	switch status {
	case StatusDeclined, StatusCancelled, StatusDeleted:
		return true
	}
	return false
}

// TeammateVisible reports whether a teammate may see an assignment in status.
func TeammateVisible(status string) bool {
	switch status {
	case StatusApproved, StatusInProgress, StatusDelivered, StatusCompleted:
		return true
	}
	return false
}
