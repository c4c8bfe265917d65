package pgshipdesk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/models"
)

const notificationColumns = `id::text, user_id, type, title, message, link, is_read, created_at`

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Storage) CreateNotification(ctx context.Context, in models.NotificationCreateInput) (*models.Notification, error) {
	n, err := scanNotification(s.db.QueryRow(ctx, `
INSERT INTO notifications (id, user_id, type, title, message, link, is_read, created_at)
VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7)
RETURNING `+notificationColumns,
		uuid.New(), in.UserID, in.Type, in.Title, in.Message, in.Link, time.Now().UTC(),
	))
	if err != nil {
		return nil, errors.Wrap(err, "insert notification")
	}
	return n, nil
}

func (s *Storage) ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	out := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// MarkNotificationRead: чужое уведомление неотличимо от несуществующего.
func (s *Storage) MarkNotificationRead(ctx context.Context, id, userID string) error {
	nid, err := uuid.Parse(id)
	if err != nil {
		return models.NotFound("notification " + id)
	}
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, nid, userID)
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	if tag.RowsAffected() == 0 {
		return models.NotFound("notification " + id)
	}
	return nil
}

func (s *Storage) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "mark all notifications read")
	}
	return tag.RowsAffected(), nil
}
