package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"teamline/internal/domain"
)

// Messages, deliveries and acceptances are owned by the assignment aggregate;
// all writes happen inside the aggregate's mutation transaction.

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO messages(id,assignment_id,ts,sender_role,sender_name,target_role,target_id,target_name,text) VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ID, m.AssignmentID, m.TS, string(m.SenderRole), m.SenderName, string(m.TargetRole), m.TargetID, nullable(m.TargetName), m.Text)
	return err
}

func (r Repo) ListMessages(ctx context.Context, assignmentID string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,assignment_id,ts,sender_role,sender_name,target_role,target_id,COALESCE(target_name,''),text FROM messages WHERE assignment_id=? ORDER BY ts ASC, id ASC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		var senderRole, targetRole string
		if err := rows.Scan(&m.ID, &m.AssignmentID, &m.TS, &senderRole, &m.SenderName, &targetRole, &m.TargetID, &m.TargetName, &m.Text); err != nil {
			return nil, err
		}
		m.SenderRole = domain.Role(senderRole)
		m.TargetRole = domain.Role(targetRole)
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertDelivery(ctx context.Context, tx *sql.Tx, d domain.Delivery) error {
	files, err := json.Marshal(d.Files)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO deliveries(id,assignment_id,teammate,ts,note,files_json,status) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.AssignmentID, d.Teammate, d.TS, nullable(d.Note), string(files), d.Status)
	return err
}

func (r Repo) ListDeliveries(ctx context.Context, assignmentID string) ([]domain.Delivery, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,assignment_id,teammate,ts,COALESCE(note,''),COALESCE(files_json,'[]'),status FROM deliveries WHERE assignment_id=? ORDER BY ts ASC, id ASC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		var files string
		if err := rows.Scan(&d.ID, &d.AssignmentID, &d.Teammate, &d.TS, &d.Note, &files, &d.Status); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(files), &d.Files)
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) UpsertAcceptance(ctx context.Context, tx *sql.Tx, a domain.Acceptance) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO acceptances(assignment_id,teammate,state,note,ts) VALUES (?,?,?,?,?)
ON CONFLICT(assignment_id, teammate) DO UPDATE SET state=excluded.state, note=excluded.note, ts=excluded.ts`,
		a.AssignmentID, a.Teammate, a.State, nullable(a.Note), a.TS)
	return err
}

func (r Repo) ListAcceptances(ctx context.Context, assignmentID string) ([]domain.Acceptance, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT assignment_id,teammate,state,COALESCE(note,''),ts FROM acceptances WHERE assignment_id=? ORDER BY teammate ASC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Acceptance
	for rows.Next() {
		var a domain.Acceptance
		if err := rows.Scan(&a.AssignmentID, &a.Teammate, &a.State, &a.Note, &a.TS); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
