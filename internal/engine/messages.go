package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"teamline/internal/domain"
	"teamline/internal/engine/auth"
)

// MessageOptions parameterizes one directed reply.
type MessageOptions struct {
	Text       string
	TargetRole domain.Role
	TargetID   string
	TargetName string
	Urgent     bool
}

// SendMessage appends a reply and mirrors it into the activity log. The
// caller must be a party to the assignment.
func (e Engine) SendMessage(ctx context.Context, actorID, assignmentID string, opts MessageOptions) (domain.Assignment, error) {
	if strings.TrimSpace(opts.Text) == "" {
		return domain.Assignment{}, ValidationError{Reason: "text is required"}
	}
	ident, err := e.Auth.Resolve(ctx, e.PortalID, actorID)
	if err != nil {
		return domain.Assignment{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetAssignmentTx(ctx, tx, assignmentID)
	if err != nil {
		return domain.Assignment{}, err
	}
	senderName := authorName(ident)
	senderRole := ident.Role
	if !ident.Admin && !isParty(a, ident) {
		return domain.Assignment{}, auth.ForbiddenError{Action: "reply on this assignment"}
	}
	if ident.Role == domain.RoleTeammate {
		if alias := matchAlias(a.Teammates, ident); alias != "" {
			senderName = alias
		}
	}

	m := domain.Message{
		ID:           uuid.NewString(),
		AssignmentID: a.ID,
		TS:           e.timestamp(),
		SenderRole:   senderRole,
		SenderName:   senderName,
		TargetRole:   opts.TargetRole,
		TargetID:     opts.TargetID,
		TargetName:   opts.TargetName,
		Text:         opts.Text,
	}
	if err := e.Repo.InsertMessage(ctx, tx, m); err != nil {
		return domain.Assignment{}, fmt.Errorf("insert message: %w", err)
	}
	target := []recipient{{id: opts.TargetID, role: opts.TargetRole}}
	if err := e.record(ctx, tx, a, "message", "Reply", senderName, opts.Text, opts.Urgent, target); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

// EventKey identifies an activity event: by synthetic id, or by the legacy
// content tuple for records imported without ids.
type EventKey struct {
	ID     int64
	TS     string
	Author string
	Type   string
	Note   string
}

// DeleteActivityEvent removes one event. Allowed for administrators, and for
// a teammate who answers to the event's author name; events are recorded
// under the assignment's teammate-list name, which may be an alias. Clients
// and supervisors are always refused.
func (e Engine) DeleteActivityEvent(ctx context.Context, actorID, assignmentID string, key EventKey) (domain.ActivityEvent, error) {
	ident, err := e.Auth.Resolve(ctx, e.PortalID, actorID)
	if err != nil {
		return domain.ActivityEvent{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActivityEvent{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetAssignmentTx(ctx, tx, assignmentID); err != nil {
		return domain.ActivityEvent{}, err
	}
	var ev domain.ActivityEvent
	if key.ID != 0 {
		ev, err = e.Repo.GetActivityByID(ctx, tx, assignmentID, key.ID)
	} else {
		ev, err = e.Repo.GetActivityByTuple(ctx, tx, assignmentID, key.TS, key.Author, key.Type, key.Note)
	}
	if err != nil {
		return domain.ActivityEvent{}, err
	}
	if !ident.Admin {
		if ident.Role != domain.RoleTeammate {
			return domain.ActivityEvent{}, auth.ForbiddenError{Action: "delete activity events"}
		}
		if !ident.AnswersTo(ev.Author) {
			return domain.ActivityEvent{}, auth.ForbiddenError{Action: "delete another author's event"}
		}
	}
	if err := e.Repo.DeleteActivity(ctx, tx, ev.ID); err != nil {
		return domain.ActivityEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActivityEvent{}, err
	}
	return ev, nil
}

func isParty(a domain.Assignment, ident auth.Identity) bool {
	switch ident.Role {
	case domain.RoleClient:
		return a.ClientID == ident.ActorID
	case domain.RoleSupervisor:
		return contains(a.Supervisors, ident.ActorID)
	case domain.RoleTeammate:
		return matchAlias(a.Teammates, ident) != ""
	}
	return false
}
