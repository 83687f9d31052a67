// Package routing maps teammate display names to the supervisors responsible
// for them, via the portal roster.
package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"teamline/internal/repo"
)

// Resolver answers "which supervisors own this teammate name".
type Resolver interface {
	Resolve(ctx context.Context, teammateName string) ([]string, error)
}

// UnroutedError means a teammate name has no roster entry. Creation fails
// before anything is persisted when routing cannot complete.
type UnroutedError struct {
	TeammateName string
}

func (e UnroutedError) Error() string {
	return fmt.Sprintf("no supervisor registered for teammate %q", e.TeammateName)
}

type cacheEntry struct {
	supervisors []string
	expires     time.Time
}

// RosterResolver resolves through roster_entries with a small TTL cache keyed
// by normalized name. TTL <= 0 disables caching.
type RosterResolver struct {
	Repo     repo.Repo
	PortalID string
	TTL      time.Duration
	Now      func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewRosterResolver(r repo.Repo, portalID string, ttlSeconds int) *RosterResolver {
	return &RosterResolver{
		Repo:     r,
		PortalID: portalID,
		TTL:      time.Duration(ttlSeconds) * time.Second,
		Now:      time.Now,
		cache:    map[string]cacheEntry{},
	}
}

func (r *RosterResolver) Resolve(ctx context.Context, teammateName string) ([]string, error) {
	key := repo.NormalizeName(teammateName)
	if key == "" {
		return nil, UnroutedError{TeammateName: teammateName}
	}
	now := r.Now()
	if r.TTL > 0 {
		r.mu.Lock()
		entry, ok := r.cache[key]
		r.mu.Unlock()
		if ok && now.Before(entry.expires) {
			return entry.supervisors, nil
		}
	}
	supervisors, err := r.Repo.SupervisorsForName(ctx, r.PortalID, teammateName)
	if err != nil {
		return nil, err
	}
	if len(supervisors) == 0 {
		return nil, UnroutedError{TeammateName: teammateName}
	}
	if r.TTL > 0 {
		r.mu.Lock()
		r.cache[key] = cacheEntry{supervisors: supervisors, expires: now.Add(r.TTL)}
		r.mu.Unlock()
	}
	return supervisors, nil
}

// Invalidate drops a cached name, for roster edits.
func (r *RosterResolver) Invalidate(teammateName string) {
	r.mu.Lock()
	delete(r.cache, repo.NormalizeName(teammateName))
	r.mu.Unlock()
}
