package notify

import (
	"context"
	"log/slog"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/realtime"
)

const inboxLimit = 50

type InboxRepository interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// Inbox: уведомления текущего пользователя. При имперсонации это ящик
// пользователя, от имени которого действует админ.
type Inbox struct {
	repo InboxRepository
	feed Publisher
}

func NewInbox(repo InboxRepository, feed Publisher) *Inbox {
	return &Inbox{repo: repo, feed: feed}
}

func owner(ctx context.Context) (string, error) {
	a := auth.FromContext(ctx)
	if !a.IsAuthenticated() || a.EffectiveUserID == "" {
		return "", models.ErrUnauthorized
	}
	return a.EffectiveUserID, nil
}

func (i *Inbox) List(ctx context.Context) ([]*models.Notification, error) {
	uid, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	out, err := i.repo.ListNotifications(ctx, uid, inboxLimit)
	if err != nil {
		return nil, models.Persistence("list notifications", err)
	}
	return out, nil
}

func (i *Inbox) MarkRead(ctx context.Context, id string) error {
	uid, err := owner(ctx)
	if err != nil {
		return err
	}
	if err := i.repo.MarkNotificationRead(ctx, id, uid); err != nil {
		if models.IsNotFound(err) {
			return err
		}
		return models.Persistence("mark notification read", err)
	}
	i.publish(ctx, uid, map[string]any{"id": id, "is_read": true})
	return nil
}

func (i *Inbox) MarkAllRead(ctx context.Context) (int64, error) {
	uid, err := owner(ctx)
	if err != nil {
		return 0, err
	}
	n, err := i.repo.MarkAllNotificationsRead(ctx, uid)
	if err != nil {
		return 0, models.Persistence("mark all notifications read", err)
	}
	if n > 0 {
		i.publish(ctx, uid, map[string]any{"all": true, "is_read": true})
	}
	return n, nil
}

func (i *Inbox) publish(ctx context.Context, uid string, row any) {
	if i.feed == nil {
		return
	}
	ch, err := realtime.NewChange(realtime.TableNotifications, realtime.EventUpdate, uid, row)
	if err == nil {
		err = i.feed.Publish(ctx, ch)
	}
	if err != nil {
		slog.Warn("notification change not published", "user_id", uid, "error", err.Error())
	}
}
