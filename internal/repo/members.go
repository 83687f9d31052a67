package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"teamline/internal/domain"
)

func (r Repo) UpsertMember(ctx context.Context, m domain.Member) error {
	if m.ActorID == "" {
		return errors.New("actor_id required")
	}
	if m.PortalID == "" {
		return errors.New("portal_id required")
	}
	aliases, err := json.Marshal(m.Aliases)
	if err != nil {
		return err
	}
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO members(actor_id,portal_id,role,display_name,aliases_json,created_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(portal_id, actor_id) DO UPDATE SET role=excluded.role, display_name=excluded.display_name, aliases_json=excluded.aliases_json`,
		m.ActorID, m.PortalID, string(m.Role), m.DisplayName, string(aliases), m.CreatedAt)
	return err
}

func (r Repo) GetMember(ctx context.Context, portalID, actorID string) (domain.Member, error) {
	var m domain.Member
	var role string
	var aliases sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT actor_id,portal_id,role,display_name,aliases_json,created_at FROM members WHERE portal_id=? AND actor_id=?`,
		portalID, actorID).Scan(&m.ActorID, &m.PortalID, &role, &m.DisplayName, &aliases, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Role = domain.Role(role)
	if aliases.Valid && aliases.String != "" {
		_ = json.Unmarshal([]byte(aliases.String), &m.Aliases)
	}
	return m, nil
}

func (r Repo) ListMembers(ctx context.Context, portalID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id,portal_id,role,display_name,COALESCE(aliases_json,'[]'),created_at FROM members WHERE portal_id=? ORDER BY created_at DESC`, portalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		var role, aliases string
		if err := rows.Scan(&m.ActorID, &m.PortalID, &role, &m.DisplayName, &aliases, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		_ = json.Unmarshal([]byte(aliases), &m.Aliases)
		res = append(res, m)
	}
	return res, rows.Err()
}
