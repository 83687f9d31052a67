package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/repo"
)

// ForbiddenError indicates the caller lacks authority for an action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// Identity is the resolved caller: directory role plus the admin override
// from config. Guests resolve with RoleGuest and no names.
type Identity struct {
	ActorID     string
	Role        domain.Role
	DisplayName string
	Aliases     []string
	Admin       bool
}

// Names returns every name the identity answers to, display name first.
func (id Identity) Names() []string {
	if id.DisplayName == "" {
		return id.Aliases
	}
	return append([]string{id.DisplayName}, id.Aliases...)
}

// AnswersTo reports whether name matches the identity's display name or an
// alias, after trimming.
func (id Identity) AnswersTo(name string) bool {
	name = strings.TrimSpace(name)
	for _, n := range id.Names() {
		if strings.TrimSpace(n) == name {
			return true
		}
	}
	return false
}

// Service resolves actor ids to identities via the member directory.
type Service struct {
	Repo   repo.Repo
	Config *config.Config
}

// Resolve looks up the actor in the directory. Unknown actors become guests;
// configured admins keep their directory role but gain the admin override.
func (s Service) Resolve(ctx context.Context, portalID, actorID string) (Identity, error) {
	id := Identity{ActorID: actorID, Role: domain.RoleGuest}
	if actorID == "" {
		return id, nil
	}
	if s.Config != nil && s.Config.IsAdmin(actorID) {
		id.Admin = true
		id.Role = domain.RoleAdministrator
	}
	m, err := s.Repo.GetMember(ctx, portalID, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return id, nil
	}
	if err != nil {
		return Identity{}, err
	}
	if !id.Admin {
		id.Role = m.Role
	}
	if m.Role == domain.RoleAdministrator {
		id.Admin = true
	}
	id.DisplayName = m.DisplayName
	id.Aliases = m.Aliases
	return id, nil
}
