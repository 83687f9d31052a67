package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"teamline/internal/config"
	"teamline/internal/domain"
	"teamline/internal/repo"
)

// ResolvePortalAndConfig picks the active portal and ensures a portal + config
// exist in DB, seeding defaults if missing. It prefers overrides, then
// single-portal DB. If the portal does not exist, it is created on the fly.
func ResolvePortalAndConfig(ctx context.Context, portalOverride string, r repo.Repo) (string, *config.Config, error) {
	portalID := portalOverride
	if portalID == "" {
		p, err := r.SinglePortal(ctx)
		switch {
		case err == nil:
			portalID = p.ID
		case errors.Is(err, repo.ErrNotFound):
			// Fresh workspace: bootstrap a default portal.
			portalID = "default"
		default:
			return "", nil, fmt.Errorf("portal not specified; use --portal: %w", err)
		}
	}
	seedCfg := config.Default(portalID)

	if _, err := r.GetPortal(ctx, portalID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createPortal(ctx, r, portalID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetPortalConfig(ctx, portalID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertPortalConfig(ctx, portalID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed portal config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Portal.ID = portalID
	return portalID, cfg, nil
}

func createPortal(ctx context.Context, r repo.Repo, portalID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(portalID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p := domain.Portal{
		ID:        portalID,
		Name:      seedCfg.Portal.Name,
		Status:    "active",
		CreatedAt: now,
	}
	if p.Name == "" {
		p.Name = portalID
	}
	if err := r.InsertPortal(ctx, tx, p); err != nil {
		return fmt.Errorf("insert portal: %w", err)
	}
	if err := r.UpsertPortalConfigTx(ctx, tx, portalID, seedCfg); err != nil {
		return fmt.Errorf("insert portal config: %w", err)
	}
	return tx.Commit()
}
