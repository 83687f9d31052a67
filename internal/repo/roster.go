package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"teamline/internal/domain"
)

// NormalizeName folds a display name into the roster lookup key: trimmed,
// lowercased, inner whitespace collapsed.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func (r Repo) InsertRosterEntry(ctx context.Context, e domain.RosterEntry) error {
	if e.TeammateName == "" {
		return errors.New("teammate_name required")
	}
	if e.SupervisorID == "" {
		return errors.New("supervisor_id required")
	}
	if e.CreatedAt == "" {
		e.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO roster_entries(id,portal_id,teammate_name,normalized_name,supervisor_id,company,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.PortalID, e.TeammateName, NormalizeName(e.TeammateName), e.SupervisorID, nullable(e.Company), e.CreatedAt)
	return err
}

func (r Repo) DeleteRosterEntry(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM roster_entries WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListRoster(ctx context.Context, portalID string) ([]domain.RosterEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,portal_id,teammate_name,supervisor_id,COALESCE(company,''),created_at FROM roster_entries WHERE portal_id=? ORDER BY teammate_name ASC, id ASC`, portalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoster(rows)
}

// SupervisorsForName returns supervisor ids registered for the normalized
// teammate name, deduplicated.
func (r Repo) SupervisorsForName(ctx context.Context, portalID, teammateName string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT supervisor_id FROM roster_entries WHERE portal_id=? AND normalized_name=?`,
		portalID, NormalizeName(teammateName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func collectRoster(rows *sql.Rows) ([]domain.RosterEntry, error) {
	var res []domain.RosterEntry
	for rows.Next() {
		var e domain.RosterEntry
		if err := rows.Scan(&e.ID, &e.PortalID, &e.TeammateName, &e.SupervisorID, &e.Company, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
