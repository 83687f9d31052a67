package engine

import (
	"context"
	"errors"
	"sort"

	"teamline/internal/domain"
	"teamline/internal/repo"
)

// ListForCaller returns the caller's role-scoped view, newest first. Teammates
// only see teammate-visible states; guests see nothing; deleted assignments
// never appear.
func (e Engine) ListForCaller(ctx context.Context, actorID string) ([]domain.Assignment, error) {
	ident, err := e.Auth.Resolve(ctx, e.PortalID, actorID)
	if err != nil {
		return nil, err
	}
	if ident.Admin {
		return e.Repo.ListByPortal(ctx, e.PortalID)
	}
	switch ident.Role {
	case domain.RoleClient:
		return e.Repo.ListByClient(ctx, e.PortalID, ident.ActorID)
	case domain.RoleSupervisor:
		return e.Repo.ListBySupervisor(ctx, e.PortalID, ident.ActorID)
	case domain.RoleTeammate:
		return e.Repo.ListByTeammateAliases(ctx, e.PortalID, ident.Names())
	}
	return nil, nil
}

// GetForCaller returns one assignment subject to the same visibility rules as
// listing. Anything the caller may not see reads as not found.
func (e Engine) GetForCaller(ctx context.Context, actorID, assignmentID string) (domain.Assignment, error) {
	ident, err := e.Auth.Resolve(ctx, e.PortalID, actorID)
	if err != nil {
		return domain.Assignment{}, err
	}
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if ident.Admin {
		return a, nil
	}
	if a.Status == domain.StatusDeleted {
		return domain.Assignment{}, repo.ErrNotFound
	}
	if !isParty(a, ident) {
		return domain.Assignment{}, repo.ErrNotFound
	}
	if ident.Role == domain.RoleTeammate && !domain.TeammateVisible(a.Status) {
		return domain.Assignment{}, repo.ErrNotFound
	}
	return a, nil
}

// ListActivity returns the assignment's activity trail in insertion order,
// gated by the same visibility rules as GetForCaller.
func (e Engine) ListActivity(ctx context.Context, actorID, assignmentID string) ([]domain.ActivityEvent, error) {
	if _, err := e.GetForCaller(ctx, actorID, assignmentID); err != nil {
		return nil, err
	}
	return e.Repo.ListActivity(ctx, assignmentID)
}

// ListMessages returns the assignment's replies in insertion order.
func (e Engine) ListMessages(ctx context.Context, actorID, assignmentID string) ([]domain.Message, error) {
	if _, err := e.GetForCaller(ctx, actorID, assignmentID); err != nil {
		return nil, err
	}
	return e.Repo.ListMessages(ctx, assignmentID)
}

// ListDeliveries returns the assignment's delivery records in insertion order.
func (e Engine) ListDeliveries(ctx context.Context, actorID, assignmentID string) ([]domain.Delivery, error) {
	if _, err := e.GetForCaller(ctx, actorID, assignmentID); err != nil {
		return nil, err
	}
	return e.Repo.ListDeliveries(ctx, assignmentID)
}

// ListNotifications returns the caller's own notification feed, newest first.
func (e Engine) ListNotifications(ctx context.Context, actorID string) ([]domain.Notification, error) {
	ident, err := e.Auth.Resolve(ctx, e.PortalID, actorID)
	if err != nil {
		return nil, err
	}
	recipients := append([]string{ident.ActorID}, ident.Aliases...)
	if ident.DisplayName != "" {
		recipients = append(recipients, ident.DisplayName)
	}
	var out []domain.Notification
	seen := map[string]struct{}{}
	for _, rec := range recipients {
		list, err := e.Repo.ListNotificationsForRecipient(ctx, e.PortalID, rec)
		if err != nil {
			return nil, err
		}
		for _, n := range list {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// MarkNotificationRead marks one of the caller's notifications as read.
func (e Engine) MarkNotificationRead(ctx context.Context, actorID, notificationID string) error {
	ident, err := e.Auth.Resolve(ctx, e.PortalID, actorID)
	if err != nil {
		return err
	}
	recipients := append([]string{ident.ActorID}, ident.Names()...)
	for _, rec := range recipients {
		err := e.Repo.MarkNotificationRead(ctx, notificationID, rec, e.now())
		if err == nil {
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
	}
	return repo.ErrNotFound
}
