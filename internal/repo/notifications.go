package repo

import (
	"context"
	"database/sql"

	"ouvidor/internal/domain"
)

const notificationColumns = `id,user_id,kind,title,message,link,read,read_at,created_at`

func scanNotification(scan func(dest ...any) error) (domain.Notification, error) {
	var n domain.Notification
	var link sql.NullString
	var read int
	err := scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &link, &read, &n.ReadAt, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	n.Link = link.String
	n.Read = read != 0
	return n, nil
}

func (r Repo) InsertNotificationTx(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(`+notificationColumns+`)
VALUES (?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Kind, n.Title, n.Message, nullable(n.Link), boolInt(n.Read), n.ReadAt, n.CreatedAt)
	return err
}

func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, id, userID, readAt string) (domain.Notification, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1, read_at=? WHERE id=? AND user_id=?`,
		readAt, id, userID)
	if err != nil {
		return domain.Notification{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Notification{}, ErrNotFound
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id)
	return scanNotification(row.Scan)
}
