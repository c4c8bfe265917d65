package shipments

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/services/notify"
	"github.com/BearBump/ShipDesk/internal/storage/pgshipdesk"
)

// AppendResult: при Appended == false запись совпала с последней и была пропущена.
type AppendResult struct {
	Shipment *models.Shipment
	Appended bool
}

// AppendEvent добавляет событие в историю отправления.
//
// Повтор пары (status, location) последней записи ничего не меняет и считается успехом.
// Запись условная (по длине истории на момент чтения): при гонке с другим
// AppendEvent история перечитывается, до maxAttempts раз.
// Переход в confirmed выставляет оплату в той же записи.
func (s *Service) AppendEvent(ctx context.Context, ref, status, location, note string) (*AppendResult, error) {
	if !auth.FromContext(ctx).IsAdmin() {
		return nil, models.ErrForbidden
	}
	ref = normalizeRef(ref)
	if !models.IsShipmentStatus(status) {
		return nil, models.InvalidInput("unknown status " + status)
	}
	location = strings.TrimSpace(location)
	note = strings.TrimSpace(note)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		sh, err := s.repo.GetShipment(ctx, ref)
		if err != nil {
			if models.IsNotFound(err) {
				return nil, err
			}
			return nil, models.Unreadable("shipment "+ref, err)
		}

		if last := sh.LastEvent(); last != nil && sameStop(last.Status, status) && sameStop(last.Location, location) {
			s.metrics.LedgerDedups.Inc()
			slog.Debug("duplicate history entry skipped", "tracking_number", ref, "status", status, "location", location)
			return &AppendResult{Shipment: sh}, nil
		}

		now := s.now()
		if last := sh.LastEvent(); last != nil && now.Before(last.Timestamp) {
			now = last.Timestamp
		}
		history := make([]models.ShipmentEvent, len(sh.History), len(sh.History)+1)
		copy(history, sh.History)
		history = append(history, models.ShipmentEvent{
			Status:    status,
			Location:  location,
			Note:      note,
			Timestamp: now,
		})

		saved, err := s.repo.SaveHistory(ctx, pgshipdesk.HistoryUpdate{
			TrackingNumber: ref,
			PrevLen:        len(sh.History),
			Status:         status,
			Location:       location,
			History:        history,
			MarkPaid:       status == models.ShipmentStatusConfirmed,
			UpdatedAt:      now,
		})
		if errors.Is(err, models.ErrConflict) {
			s.metrics.LedgerConflicts.Inc()
			slog.Warn("history write conflict, retrying", "tracking_number", ref, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, models.Persistence("append event "+ref, err)
		}

		s.metrics.LedgerAppends.Inc()
		s.afterWrite(ctx, saved)
		s.notifier.NotifyShipmentChange(ctx, saved, notify.ChangeMovement)
		return &AppendResult{Shipment: saved, Appended: true}, nil
	}

	return nil, models.Persistence("append event "+ref, models.ErrConflict)
}

// sameStop сравнивает без учёта регистра и пробелов.
func sameStop(a, b string) bool {
	return normalizeStop(a) == normalizeStop(b)
}

func normalizeStop(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
