package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"teamline/internal/config"
	"teamline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertPortal(ctx context.Context, tx *sql.Tx, p domain.Portal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO portals(id,name,status,description,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, p.Status, nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) GetPortal(ctx context.Context, id string) (domain.Portal, error) {
	var p domain.Portal
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,description,created_at FROM portals WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Status, &desc, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) ListPortals(ctx context.Context) ([]domain.Portal, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,COALESCE(description,''),created_at FROM portals ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Portal
	for rows.Next() {
		var p domain.Portal
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SinglePortal returns the only portal in the workspace, erroring when the
// workspace holds more than one.
func (r Repo) SinglePortal(ctx context.Context) (domain.Portal, error) {
	portals, err := r.ListPortals(ctx)
	if err != nil {
		return domain.Portal{}, err
	}
	if len(portals) == 0 {
		return domain.Portal{}, ErrNotFound
	}
	if len(portals) > 1 {
		return domain.Portal{}, fmt.Errorf("multiple portals exist; specify --portal")
	}
	return portals[0], nil
}

func (r Repo) UpsertPortalConfig(ctx context.Context, portalID string, cfg *config.Config) error {
	return upsertPortalConfig(ctx, r.DB, nil, portalID, cfg)
}

func (r Repo) UpsertPortalConfigTx(ctx context.Context, tx *sql.Tx, portalID string, cfg *config.Config) error {
	return upsertPortalConfig(ctx, nil, tx, portalID, cfg)
}

func upsertPortalConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, portalID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Portal.ID = portalID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO portal_configs(portal_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(portal_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, portalID, string(payload), now, now)
	return err
}

func (r Repo) GetPortalConfig(ctx context.Context, portalID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM portal_configs WHERE portal_id=?`, portalID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Portal.ID == "" {
		cfg.Portal.ID = portalID
	}
	return &cfg, cfg.Validate()
}

// --- assignments ---

const assignmentCols = `id,portal_id,client_id,title,brief,steps,start_date,due_date,status,teammates_json,supervisors_json,client_files_json,supervisor_files_json,created_at,updated_at`

func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	teammates, err := json.Marshal(a.Teammates)
	if err != nil {
		return err
	}
	supervisors, err := json.Marshal(a.Supervisors)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO assignments(`+assignmentCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.PortalID, a.ClientID, a.Title, nullable(a.Brief), nullable(a.Steps), nullable(a.StartDate), a.DueDate,
		a.Status, string(teammates), string(supervisors), marshalAttachments(a.ClientFiles), marshalAttachments(a.SupervisorFiles),
		a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	teammates, err := json.Marshal(a.Teammates)
	if err != nil {
		return err
	}
	supervisors, err := json.Marshal(a.Supervisors)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET title=?, brief=?, steps=?, start_date=?, due_date=?, status=?, teammates_json=?, supervisors_json=?, client_files_json=?, supervisor_files_json=?, updated_at=? WHERE id=?`,
		a.Title, nullable(a.Brief), nullable(a.Steps), nullable(a.StartDate), a.DueDate, a.Status,
		string(teammates), string(supervisors), marshalAttachments(a.ClientFiles), marshalAttachments(a.SupervisorFiles),
		a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	return scanAssignment(r.DB.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id=?`, id))
}

// GetAssignmentTx reads inside the mutation transaction so concurrent writers
// to the same row serialize on the read-modify-write.
func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Assignment, error) {
	return scanAssignment(tx.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id=?`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var a domain.Assignment
	var brief, steps, startDate, clientFiles, supervisorFiles sql.NullString
	var teammates, supervisors string
	err := row.Scan(&a.ID, &a.PortalID, &a.ClientID, &a.Title, &brief, &steps, &startDate, &a.DueDate,
		&a.Status, &teammates, &supervisors, &clientFiles, &supervisorFiles, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if brief.Valid {
		a.Brief = brief.String
	}
	if steps.Valid {
		a.Steps = steps.String
	}
	if startDate.Valid {
		a.StartDate = startDate.String
	}
	if err := json.Unmarshal([]byte(teammates), &a.Teammates); err != nil {
		return a, fmt.Errorf("teammates_json: %w", err)
	}
	if err := json.Unmarshal([]byte(supervisors), &a.Supervisors); err != nil {
		return a, fmt.Errorf("supervisors_json: %w", err)
	}
	a.ClientFiles = unmarshalAttachments(clientFiles)
	a.SupervisorFiles = unmarshalAttachments(supervisorFiles)
	return a, nil
}

func (r Repo) listAssignments(ctx context.Context, where string, args ...any) ([]domain.Assignment, error) {
	query := `SELECT ` + assignmentCols + ` FROM assignments ` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListByClient returns a client's assignments, newest first, excluding deleted.
func (r Repo) ListByClient(ctx context.Context, portalID, clientID string) ([]domain.Assignment, error) {
	return r.listAssignments(ctx, `WHERE portal_id=? AND client_id=? AND status != 'deleted'`, portalID, clientID)
}

// ListBySupervisor returns assignments whose responsible supervisors include
// supervisorID, excluding deleted. Membership is checked against the JSON
// array column.
func (r Repo) ListBySupervisor(ctx context.Context, portalID, supervisorID string) ([]domain.Assignment, error) {
	all, err := r.listAssignments(ctx, `WHERE portal_id=? AND status != 'deleted'`, portalID)
	if err != nil {
		return nil, err
	}
	var res []domain.Assignment
	for _, a := range all {
		if containsString(a.Supervisors, supervisorID) {
			res = append(res, a)
		}
	}
	return res, nil
}

// ListByTeammateAliases returns assignments whose teammate list intersects
// any of the given aliases, restricted to teammate-visible states.
func (r Repo) ListByTeammateAliases(ctx context.Context, portalID string, aliases []string) ([]domain.Assignment, error) {
	all, err := r.listAssignments(ctx, `WHERE portal_id=? AND status != 'deleted'`, portalID)
	if err != nil {
		return nil, err
	}
	var res []domain.Assignment
	for _, a := range all {
		if !domain.TeammateVisible(a.Status) {
			continue
		}
		if intersects(a.Teammates, aliases) {
			res = append(res, a)
		}
	}
	return res, nil
}

// ListByPortal returns every non-deleted assignment (administrator view).
func (r Repo) ListByPortal(ctx context.Context, portalID string) ([]domain.Assignment, error) {
	return r.listAssignments(ctx, `WHERE portal_id=? AND status != 'deleted'`, portalID)
}

func (r Repo) CountAssignmentsByStatus(ctx context.Context, portalID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM assignments WHERE portal_id=? GROUP BY status`, portalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// --- helpers ---

func marshalAttachments(files []domain.Attachment) any {
	if len(files) == 0 {
		return nil
	}
	b, err := json.Marshal(files)
	if err != nil {
		return nil
	}
	return string(b)
}

func unmarshalAttachments(raw sql.NullString) []domain.Attachment {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var files []domain.Attachment
	if err := json.Unmarshal([]byte(raw.String), &files); err != nil {
		return nil
	}
	return files
}

func containsString(in []string, want string) bool {
	for _, s := range in {
		if s == want {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
