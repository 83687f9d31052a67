package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/engine/auth"
	"teamline/internal/repo"
	"teamline/internal/routing"
)

const dateLayout = "2006-01-02"

// Engine is the assignment workflow core: the single authorization gate and
// the only writer of assignment state. Every mutation runs as one SQLite
// transaction covering the status change, the activity append and the
// notification intents.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Auth     auth.Service
	Router   routing.Resolver
	Config   *config.Config
	PortalID string
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, portalID string, router routing.Resolver) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		Auth:     auth.Service{Repo: r, Config: cfg},
		Router:   router,
		Config:   cfg,
		PortalID: portalID,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// validateDates enforces the calendar invariants: well-formed dates, neither
// in the past, due on or after start.
func (e Engine) validateDates(startDate, dueDate string) error {
	if strings.TrimSpace(dueDate) == "" {
		return ValidationError{Reason: "due_date is required"}
	}
	due, err := time.Parse(dateLayout, dueDate)
	if err != nil {
		return ValidationError{Reason: fmt.Sprintf("due_date %q is not a valid date", dueDate)}
	}
	today := dateOnly(e.now())
	if due.Before(today) {
		return ValidationError{Reason: fmt.Sprintf("due_date %s is before today", dueDate)}
	}
	if startDate != "" {
		start, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return ValidationError{Reason: fmt.Sprintf("start_date %q is not a valid date", startDate)}
		}
		if start.Before(today) {
			return ValidationError{Reason: fmt.Sprintf("start_date %s is before today", startDate)}
		}
		if due.Before(start) {
			return ValidationError{Reason: "due_date is before start_date"}
		}
	}
	return nil
}

func authorName(ident auth.Identity) string {
	if ident.DisplayName != "" {
		return ident.DisplayName
	}
	return ident.ActorID
}

// recipient is one notification target inside a transition.
type recipient struct {
	id   string
	role domain.Role
}

func supervisorRecipients(a domain.Assignment) []recipient {
	var out []recipient
	for _, s := range a.Supervisors {
		out = append(out, recipient{id: s, role: domain.RoleSupervisor})
	}
	return out
}

func teammateRecipients(a domain.Assignment) []recipient {
	var out []recipient
	for _, t := range a.Teammates {
		out = append(out, recipient{id: t, role: domain.RoleTeammate})
	}
	return out
}

func clientRecipient(a domain.Assignment) []recipient {
	return []recipient{{id: a.ClientID, role: domain.RoleClient}}
}

// record appends the transition's single activity event and persists one
// notification intent per deduplicated recipient, all inside tx.
func (e Engine) record(ctx context.Context, tx *sql.Tx, a domain.Assignment, action, eventType, author, note string, urgent bool, recipients []recipient) error {
	ts := e.timestamp()
	if _, err := e.Repo.AppendActivity(ctx, tx, domain.ActivityEvent{
		AssignmentID: a.ID,
		TS:           ts,
		Author:       author,
		Type:         eventType,
		Note:         note,
		Urgent:       urgent,
	}); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	subject := e.Config.Subject(action, eventType)
	body := fmt.Sprintf("%s on %q by %s", eventType, a.Title, author)
	if note != "" {
		body += ": " + note
	}
	seen := map[string]struct{}{}
	for _, r := range recipients {
		if r.id == "" {
			continue
		}
		if _, ok := seen[r.id]; ok {
			continue
		}
		seen[r.id] = struct{}{}
		n := domain.Notification{
			ID:            uuid.NewString(),
			PortalID:      a.PortalID,
			AssignmentID:  a.ID,
			Recipient:     r.id,
			RecipientRole: r.role,
			Subject:       subject,
			Body:          body,
			CreatedAt:     ts,
		}
		if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

// CreateOptions are the client-supplied fields for a new assignment.
type CreateOptions struct {
	Title     string
	Brief     string
	Steps     string
	StartDate string
	DueDate   string
	Teammates []string
	Files     []domain.Attachment
}

// CreateAssignment routes the requested teammates to their supervisors and
// persists the assignment in pending_review. When no supervisor resolves for
// any teammate, nothing is persisted.
func (e Engine) CreateAssignment(ctx context.Context, actorID string, opts CreateOptions) (domain.Assignment, error) {
	ident, err := e.Auth.Resolve(ctx, e.PortalID, actorID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if !ident.Admin && ident.Role != domain.RoleClient {
		return domain.Assignment{}, auth.ForbiddenError{Action: "create assignments"}
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Assignment{}, ValidationError{Reason: "title is required"}
	}
	teammates := trimAll(opts.Teammates)
	if len(teammates) == 0 {
		return domain.Assignment{}, ValidationError{Reason: "at least one teammate is required"}
	}
	if err := e.validateDates(opts.StartDate, opts.DueDate); err != nil {
		return domain.Assignment{}, err
	}

	supervisors, err := e.routeSupervisors(ctx, teammates)
	if err != nil {
		return domain.Assignment{}, err
	}

	now := e.timestamp()
	a := domain.Assignment{
		ID:          uuid.NewString(),
		PortalID:    e.PortalID,
		ClientID:    actorID,
		Title:       strings.TrimSpace(opts.Title),
		Brief:       opts.Brief,
		Steps:       opts.Steps,
		StartDate:   opts.StartDate,
		DueDate:     opts.DueDate,
		Status:      domain.StatusPendingReview,
		Teammates:   teammates,
		Supervisors: supervisors,
		ClientFiles: opts.Files,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}
	if err := e.record(ctx, tx, a, "create", "Submitted", authorName(ident), "", false, supervisorRecipients(a)); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

// routeSupervisors unions the resolved supervisors for every teammate name.
// A name with no roster entry is tolerated as long as the union is non-empty.
func (e Engine) routeSupervisors(ctx context.Context, teammates []string) ([]string, error) {
	var union []string
	seen := map[string]struct{}{}
	for _, name := range teammates {
		ids, err := e.Router.Resolve(ctx, name)
		if err != nil {
			var unrouted routing.UnroutedError
			if errors.As(err, &unrouted) {
				continue
			}
			return nil, fmt.Errorf("resolve supervisors for %q: %w", name, err)
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			union = append(union, id)
		}
	}
	if len(union) == 0 {
		return nil, RoutingError{Teammates: teammates}
	}
	return union, nil
}

// EditOptions carries optional field replacements; nil means keep.
type EditOptions struct {
	Title     *string
	Brief     *string
	Steps     *string
	StartDate *string
	DueDate   *string
	Teammates []string
	Files     []domain.Attachment
}

// EditAssignment applies client edits and sends the assignment back to
// pending_review. Responsible supervisors are fixed at creation.
func (e Engine) EditAssignment(ctx context.Context, actorID, assignmentID string, opts EditOptions) (domain.Assignment, error) {
	return e.clientMutate(ctx, actorID, assignmentID, "edit", func(a *domain.Assignment) (string, string, error) {
		if opts.Title != nil {
			if strings.TrimSpace(*opts.Title) == "" {
				return "", "", ValidationError{Reason: "title is required"}
			}
			a.Title = strings.TrimSpace(*opts.Title)
		}
		if opts.Brief != nil {
			a.Brief = *opts.Brief
		}
		if opts.Steps != nil {
			a.Steps = *opts.Steps
		}
		if opts.StartDate != nil {
			a.StartDate = *opts.StartDate
		}
		if opts.DueDate != nil {
			a.DueDate = *opts.DueDate
		}
		if opts.Teammates != nil {
			teammates := trimAll(opts.Teammates)
			if len(teammates) == 0 {
				return "", "", ValidationError{Reason: "at least one teammate is required"}
			}
			a.Teammates = teammates
		}
		if opts.Files != nil {
			a.ClientFiles = opts.Files
		}
		if err := e.validateDates(a.StartDate, a.DueDate); err != nil {
			return "", "", err
		}
		a.Status = domain.StatusPendingReview
		return "Updated", "", nil
	})
}

// ExtendDueDate replaces the due date and sends the assignment back to
// pending_review. The stored start date is re-checked against the new due.
func (e Engine) ExtendDueDate(ctx context.Context, actorID, assignmentID, newDueDate string) (domain.Assignment, error) {
	return e.clientMutate(ctx, actorID, assignmentID, "extend", func(a *domain.Assignment) (string, string, error) {
		if err := e.validateDates(a.StartDate, newDueDate); err != nil {
			return "", "", err
		}
		a.DueDate = newDueDate
		a.Status = domain.StatusPendingReview
		return "Extension requested", "new due date " + newDueDate, nil
	})
}

// CancelAssignment moves a non-terminal assignment to cancelled.
func (e Engine) CancelAssignment(ctx context.Context, actorID, assignmentID, note string) (domain.Assignment, error) {
	return e.clientMutate(ctx, actorID, assignmentID, "cancel", func(a *domain.Assignment) (string, string, error) {
		a.Status = domain.StatusCancelled
		return "Cancelled", note, nil
	})
}

// DeleteAssignment soft-deletes: the row stays, every listing excludes it.
func (e Engine) DeleteAssignment(ctx context.Context, actorID, assignmentID string) (domain.Assignment, error) {
	return e.clientMutate(ctx, actorID, assignmentID, "delete", func(a *domain.Assignment) (string, string, error) {
		a.Status = domain.StatusDeleted
		return "Deleted", "", nil
	})
}

// clientMutate is the shared shape of every client action: resolve caller,
// check ownership, check legality, apply, record, commit.
func (e Engine) clientMutate(ctx context.Context, actorID, assignmentID, action string, apply func(*domain.Assignment) (eventType, note string, err error)) (domain.Assignment, error) {
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
		if ident.Role != domain.RoleClient || a.ClientID != ident.ActorID {
			return domain.Assignment{}, auth.ForbiddenError{Action: action + " this assignment"}
		}
	}
	if action != "delete" && domain.Terminal(a.Status) {
		return domain.Assignment{}, TransitionError{Action: action, Status: a.Status}
	}

	eventType, note, err := apply(&a)
	if err != nil {
		return domain.Assignment{}, err
	}
	a.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, fmt.Errorf("update assignment: %w", err)
	}
	if err := e.record(ctx, tx, a, action, eventType, authorName(ident), note, false, supervisorRecipients(a)); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
