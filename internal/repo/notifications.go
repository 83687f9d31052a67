package repo

import (
	"context"
	"database/sql"
	"time"

	"teamline/internal/domain"
)

// InsertNotification records a delivery intent inside the transition
// transaction. Delivery status is updated later by the dispatcher.
func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,portal_id,assignment_id,recipient,recipient_role,subject,body,created_at,attempts) VALUES (?,?,?,?,?,?,?,?,0)`,
		n.ID, n.PortalID, n.AssignmentID, n.Recipient, string(n.RecipientRole), n.Subject, n.Body, n.CreatedAt)
	return err
}

func (r Repo) ListNotificationsForRecipient(ctx context.Context, portalID, recipient string) ([]domain.Notification, error) {
	return r.queryNotifications(ctx, `SELECT `+notificationCols+` FROM notifications WHERE portal_id=? AND recipient=? ORDER BY created_at DESC, id DESC`, portalID, recipient)
}

// PendingNotifications returns undelivered intents, oldest first.
func (r Repo) PendingNotifications(ctx context.Context, portalID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryNotifications(ctx, `SELECT `+notificationCols+` FROM notifications WHERE portal_id=? AND delivered_at IS NULL ORDER BY created_at ASC, id ASC LIMIT ?`, portalID, limit)
}

func (r Repo) MarkNotificationDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET delivered_at=?, attempts=attempts+1 WHERE id=?`, at.UTC().Format(time.RFC3339), id)
	return err
}

func (r Repo) BumpNotificationAttempts(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET attempts=attempts+1 WHERE id=?`, id)
	return err
}

// MarkNotificationRead flips the in-app read marker for the recipient's own
// notification.
func (r Repo) MarkNotificationRead(ctx context.Context, id, recipient string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE id=? AND recipient=?`, at.UTC().Format(time.RFC3339), id, recipient)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const notificationCols = `id,portal_id,assignment_id,recipient,recipient_role,subject,body,created_at,delivered_at,read_at,attempts`

func (r Repo) queryNotifications(ctx context.Context, query string, args ...any) ([]domain.Notification, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var role string
		var delivered, read sql.NullString
		if err := rows.Scan(&n.ID, &n.PortalID, &n.AssignmentID, &n.Recipient, &role, &n.Subject, &n.Body, &n.CreatedAt, &delivered, &read, &n.Attempts); err != nil {
			return nil, err
		}
		n.RecipientRole = domain.Role(role)
		if delivered.Valid {
			n.DeliveredAt = delivered.String
		}
		if read.Valid {
			n.ReadAt = read.String
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
