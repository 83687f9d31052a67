package repo

import (
	"context"
	"database/sql"

	"teamline/internal/domain"
)

// Activity events are ordered by insertion (autoincrement id), never by
// timestamp alone: two events can share a timestamp at RFC3339 granularity.

func (r Repo) AppendActivity(ctx context.Context, tx *sql.Tx, ev domain.ActivityEvent) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO activity_events(assignment_id,ts,author,type,note,urgent) VALUES (?,?,?,?,?,?)`,
		ev.AssignmentID, ev.TS, ev.Author, ev.Type, nullable(ev.Note), boolToInt(ev.Urgent))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListActivity(ctx context.Context, assignmentID string) ([]domain.ActivityEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,assignment_id,ts,author,type,COALESCE(note,''),urgent FROM activity_events WHERE assignment_id=? ORDER BY id ASC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityEvent
	for rows.Next() {
		var ev domain.ActivityEvent
		var urgent int
		if err := rows.Scan(&ev.ID, &ev.AssignmentID, &ev.TS, &ev.Author, &ev.Type, &ev.Note, &urgent); err != nil {
			return nil, err
		}
		ev.Urgent = urgent != 0
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (r Repo) CountActivity(ctx context.Context, assignmentID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM activity_events WHERE assignment_id=?`, assignmentID).Scan(&n)
	return n, err
}

// GetActivityByID looks an event up inside the deletion transaction.
func (r Repo) GetActivityByID(ctx context.Context, tx *sql.Tx, assignmentID string, id int64) (domain.ActivityEvent, error) {
	return scanActivity(tx.QueryRowContext(ctx, `SELECT id,assignment_id,ts,author,type,COALESCE(note,''),urgent FROM activity_events WHERE assignment_id=? AND id=?`, assignmentID, id))
}

// GetActivityByTuple matches the legacy content key (ts, author, type, note).
// When duplicates exist the earliest inserted event wins.
func (r Repo) GetActivityByTuple(ctx context.Context, tx *sql.Tx, assignmentID, ts, author, evType, note string) (domain.ActivityEvent, error) {
	return scanActivity(tx.QueryRowContext(ctx, `SELECT id,assignment_id,ts,author,type,COALESCE(note,''),urgent FROM activity_events
WHERE assignment_id=? AND ts=? AND author=? AND type=? AND COALESCE(note,'')=? ORDER BY id ASC LIMIT 1`,
		assignmentID, ts, author, evType, note))
}

func scanActivity(row *sql.Row) (domain.ActivityEvent, error) {
	var ev domain.ActivityEvent
	var urgent int
	err := row.Scan(&ev.ID, &ev.AssignmentID, &ev.TS, &ev.Author, &ev.Type, &ev.Note, &urgent)
	if err == sql.ErrNoRows {
		return ev, ErrNotFound
	}
	if err != nil {
		return ev, err
	}
	ev.Urgent = urgent != 0
	return ev, nil
}

func (r Repo) DeleteActivity(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM activity_events WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
