package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamline/internal/domain"
	"teamline/internal/engine/auth"
)

// Directory and roster management. Administrator only; these feed the
// authorization gate and the routing resolver.

type cacheInvalidator interface {
	Invalidate(teammateName string)
}

func (e Engine) requireAdmin(ctx context.Context, actorID, action string) error {
	ident, err := e.Auth.Resolve(ctx, e.PortalID, actorID)
	if err != nil {
		return err
	}
	if !ident.Admin {
		return auth.ForbiddenError{Action: action}
	}
	return nil
}

func (e Engine) UpsertMember(ctx context.Context, actorID string, m domain.Member) (domain.Member, error) {
	if err := e.requireAdmin(ctx, actorID, "manage members"); err != nil {
		return domain.Member{}, err
	}
	if strings.TrimSpace(m.ActorID) == "" {
		return domain.Member{}, ValidationError{Reason: "actor_id is required"}
	}
	switch m.Role {
	case domain.RoleClient, domain.RoleSupervisor, domain.RoleTeammate, domain.RoleAdministrator:
	default:
		return domain.Member{}, ValidationError{Reason: "role must be client, supervisor, teammate or administrator"}
	}
	m.PortalID = e.PortalID
	m.CreatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpsertMember(ctx, m); err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

func (e Engine) ListMembers(ctx context.Context, actorID string) ([]domain.Member, error) {
	if err := e.requireAdmin(ctx, actorID, "list members"); err != nil {
		return nil, err
	}
	return e.Repo.ListMembers(ctx, e.PortalID)
}

func (e Engine) AddRosterEntry(ctx context.Context, actorID string, entry domain.RosterEntry) (domain.RosterEntry, error) {
	if err := e.requireAdmin(ctx, actorID, "manage the roster"); err != nil {
		return domain.RosterEntry{}, err
	}
	if strings.TrimSpace(entry.TeammateName) == "" {
		return domain.RosterEntry{}, ValidationError{Reason: "teammate_name is required"}
	}
	if strings.TrimSpace(entry.SupervisorID) == "" {
		return domain.RosterEntry{}, ValidationError{Reason: "supervisor_id is required"}
	}
	entry.ID = uuid.NewString()
	entry.PortalID = e.PortalID
	entry.TeammateName = strings.TrimSpace(entry.TeammateName)
	entry.CreatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.InsertRosterEntry(ctx, entry); err != nil {
		return domain.RosterEntry{}, err
	}
	if inv, ok := e.Router.(cacheInvalidator); ok {
		inv.Invalidate(entry.TeammateName)
	}
	return entry, nil
}

func (e Engine) RemoveRosterEntry(ctx context.Context, actorID, entryID, teammateName string) error {
	if err := e.requireAdmin(ctx, actorID, "manage the roster"); err != nil {
		return err
	}
	if err := e.Repo.DeleteRosterEntry(ctx, entryID); err != nil {
		return err
	}
	if inv, ok := e.Router.(cacheInvalidator); ok {
		inv.Invalidate(teammateName)
	}
	return nil
}

func (e Engine) ListRoster(ctx context.Context, actorID string) ([]domain.RosterEntry, error) {
	if err := e.requireAdmin(ctx, actorID, "list the roster"); err != nil {
		return nil, err
	}
	return e.Repo.ListRoster(ctx, e.PortalID)
}
