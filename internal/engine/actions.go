package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"teamline/internal/domain"
	"teamline/internal/engine/auth"
)

// SupervisorOptions parameterizes one supervisor action.
type SupervisorOptions struct {
	Action     string // approve, decline, request_revision, approve_extension
	Note       string
	NewDueDate string
	Files      []domain.Attachment
}

// SupervisorAct applies a review decision. The caller must be one of the
// assignment's responsible supervisors; an administrator bypasses ownership
// but not transition legality.
func (e Engine) SupervisorAct(ctx context.Context, actorID, assignmentID string, opts SupervisorOptions) (domain.Assignment, error) {
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
	if !ident.Admin {
		if ident.Role != domain.RoleSupervisor || !contains(a.Supervisors, ident.ActorID) {
			return domain.Assignment{}, auth.ForbiddenError{Action: "review this assignment"}
		}
	}

	var eventType string
	var recipients []recipient
	switch opts.Action {
	case "approve":
		if a.Status != domain.StatusPendingReview && a.Status != domain.StatusNeedsRevision {
			return domain.Assignment{}, TransitionError{Action: opts.Action, Status: a.Status}
		}
		a.Status = domain.StatusApproved
		eventType = "Approved"
		recipients = append(clientRecipient(a), teammateRecipients(a)...)
	case "decline":
		if a.Status != domain.StatusPendingReview && a.Status != domain.StatusNeedsRevision {
			return domain.Assignment{}, TransitionError{Action: opts.Action, Status: a.Status}
		}
		a.Status = domain.StatusDeclined
		eventType = "Declined"
		recipients = clientRecipient(a)
	case "request_revision":
		if a.Status != domain.StatusPendingReview && a.Status != domain.StatusNeedsRevision {
			return domain.Assignment{}, TransitionError{Action: opts.Action, Status: a.Status}
		}
		a.Status = domain.StatusNeedsRevision
		eventType = "Update requested"
		recipients = clientRecipient(a)
	case "approve_extension":
		if domain.Terminal(a.Status) {
			return domain.Assignment{}, TransitionError{Action: opts.Action, Status: a.Status}
		}
		if err := e.validateDates(a.StartDate, opts.NewDueDate); err != nil {
			return domain.Assignment{}, err
		}
		a.DueDate = opts.NewDueDate
		a.Status = domain.StatusInProgress
		eventType = "Deadline updated"
		recipients = clientRecipient(a)
	default:
		return domain.Assignment{}, ValidationError{Reason: fmt.Sprintf("unknown supervisor action %q", opts.Action)}
	}

	if len(opts.Files) > 0 {
		a.SupervisorFiles = append(a.SupervisorFiles, opts.Files...)
	}
	a.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, fmt.Errorf("update assignment: %w", err)
	}
	if err := e.record(ctx, tx, a, opts.Action, eventType, authorName(ident), opts.Note, false, recipients); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

// TeammateOptions parameterizes one teammate action.
type TeammateOptions struct {
	Action string // accept, decline, request_extension, request_cancel, request_update, deliver
	Note   string
	Urgent bool
	Files  []domain.Attachment
}

// TeammateAct applies a teammate response. The caller's names must intersect
// the assignment's teammate list, and the assignment must be in a
// teammate-visible state.
func (e Engine) TeammateAct(ctx context.Context, actorID, assignmentID string, opts TeammateOptions) (domain.Assignment, error) {
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
	alias := matchAlias(a.Teammates, ident)
	if !ident.Admin {
		if ident.Role != domain.RoleTeammate || alias == "" {
			return domain.Assignment{}, auth.ForbiddenError{Action: "act on this assignment"}
		}
	}
	if alias == "" {
		alias = authorName(ident)
	}
	if !domain.TeammateVisible(a.Status) {
		return domain.Assignment{}, TransitionError{Action: opts.Action, Status: a.Status}
	}

	ts := e.timestamp()
	var eventType string
	switch opts.Action {
	case "accept":
		a.Status = domain.StatusInProgress
		eventType = "Accepted"
		if err := e.Repo.UpsertAcceptance(ctx, tx, domain.Acceptance{
			AssignmentID: a.ID, Teammate: alias, State: "accepted", Note: opts.Note, TS: ts,
		}); err != nil {
			return domain.Assignment{}, fmt.Errorf("upsert acceptance: %w", err)
		}
	case "decline":
		// Status unchanged; only the acceptance record flips.
		eventType = "Declined"
		if err := e.Repo.UpsertAcceptance(ctx, tx, domain.Acceptance{
			AssignmentID: a.ID, Teammate: alias, State: "declined", Note: opts.Note, TS: ts,
		}); err != nil {
			return domain.Assignment{}, fmt.Errorf("upsert acceptance: %w", err)
		}
	case "request_extension":
		eventType = "Extension requested"
	case "request_cancel":
		eventType = "Cancel requested"
	case "request_update":
		eventType = "Request"
	case "deliver":
		a.Status = domain.StatusDelivered
		eventType = "Submitted-delivery"
		if err := e.Repo.InsertDelivery(ctx, tx, domain.Delivery{
			ID:           uuid.NewString(),
			AssignmentID: a.ID,
			Teammate:     alias,
			TS:           ts,
			Note:         opts.Note,
			Files:        opts.Files,
			Status:       "submitted",
		}); err != nil {
			return domain.Assignment{}, fmt.Errorf("insert delivery: %w", err)
		}
	default:
		return domain.Assignment{}, ValidationError{Reason: fmt.Sprintf("unknown teammate action %q", opts.Action)}
	}

	a.UpdatedAt = ts
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, fmt.Errorf("update assignment: %w", err)
	}
	recipients := append(clientRecipient(a), supervisorRecipients(a)...)
	if err := e.record(ctx, tx, a, opts.Action, eventType, alias, opts.Note, opts.Urgent, recipients); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

// MarkComplete closes an assignment. Administrator only; legal from delivered
// or in_progress.
func (e Engine) MarkComplete(ctx context.Context, actorID, assignmentID, note string) (domain.Assignment, error) {
	ident, err := e.Auth.Resolve(ctx, e.PortalID, actorID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if !ident.Admin {
		return domain.Assignment{}, auth.ForbiddenError{Action: "mark assignments complete"}
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
	if a.Status != domain.StatusDelivered && a.Status != domain.StatusInProgress {
		return domain.Assignment{}, TransitionError{Action: "mark_complete", Status: a.Status}
	}
	a.Status = domain.StatusCompleted
	a.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, fmt.Errorf("update assignment: %w", err)
	}
	recipients := append(clientRecipient(a), teammateRecipients(a)...)
	if err := e.record(ctx, tx, a, "mark_complete", "Completed", authorName(ident), note, false, recipients); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

// matchAlias returns the first assignment teammate name the identity answers
// to, compared post-trim.
func matchAlias(teammates []string, ident auth.Identity) string {
	for _, t := range teammates {
		if ident.AnswersTo(t) {
			return t
		}
	}
	return ""
}

func contains(in []string, want string) bool {
	for _, s := range in {
		if s == want {
			return true
		}
	}
	return false
}
