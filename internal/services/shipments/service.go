package shipments

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/cache"
	"github.com/BearBump/ShipDesk/internal/format"
	"github.com/BearBump/ShipDesk/internal/metrics"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/realtime"
	"github.com/BearBump/ShipDesk/internal/refs"
	"github.com/BearBump/ShipDesk/internal/services/notify"
	"github.com/BearBump/ShipDesk/internal/storage/pgshipdesk"
)

const createdNote = "Shipment created and processing at origin facility."

type Repository interface {
	CreateShipment(ctx context.Context, sh *models.Shipment) (*models.Shipment, error)
	GetShipment(ctx context.Context, trackingNumber string) (*models.Shipment, error)
	ListShipments(ctx context.Context, f pgshipdesk.ShipmentFilter) ([]*models.Shipment, error)
	SaveHistory(ctx context.Context, upd pgshipdesk.HistoryUpdate) (*models.Shipment, error)
	PatchShipment(ctx context.Context, trackingNumber string, p models.ShipmentPatch, at time.Time) (*models.Shipment, error)
	DeleteShipment(ctx context.Context, trackingNumber string) error
}

type Notifier interface {
	NotifyShipmentChange(ctx context.Context, sh *models.Shipment, kind notify.ChangeKind)
	NotifyNewShipment(ctx context.Context, sh *models.Shipment)
}

type Publisher interface {
	Publish(ctx context.Context, ch realtime.Change) error
}

type Service struct {
	repo       Repository
	notifier   Notifier
	cache      cache.BytesCache
	currentTTL time.Duration

	feed    Publisher
	metrics *metrics.Metrics
	refs    *refs.Generator
	now     func() time.Time

	maxAttempts int
}

func New(repo Repository, notifier Notifier, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{
		repo:        repo,
		notifier:    notifier,
		cache:       c,
		currentTTL:  currentTTL,
		metrics:     metrics.NewDiscard(),
		refs:        refs.NewGenerator(nil),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: 3,
	}
}

func (s *Service) WithFeed(feed Publisher) *Service {
	s.feed = feed
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	if m != nil {
		s.metrics = m
	}
	return s
}

func (s *Service) WithRefs(g *refs.Generator) *Service {
	if g != nil {
		s.refs = g
	}
	return s
}

// CreateShipment регистрирует отправление от имени текущего пользователя.
// Ошибка вставки (в том числе коллизия номера) жёсткая, уведомления не отправляются.
func (s *Service) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}

	now := s.now()
	origin := format.OriginLocation(in.Sender.Address)
	sh := &models.Shipment{
		TrackingNumber:  s.refs.TrackingNumber(),
		UserID:          actor.EffectiveUserID,
		Status:          models.ShipmentStatusPending,
		PaymentStatus:   models.PaymentStatusUnpaid,
		CurrentLocation: origin,
		Sender:          in.Sender,
		Receiver:        in.Receiver,
		Parcel:          in.Parcel,
		History: []models.ShipmentEvent{{
			Status:    models.ShipmentStatusPending,
			Location:  origin,
			Note:      createdNote,
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repo.CreateShipment(ctx, sh)
	if err != nil {
		return nil, models.Persistence("insert shipment", err)
	}
	slog.Info("shipment created", "tracking_number", created.TrackingNumber, "user_id", created.UserID)

	s.publish(ctx, realtime.EventInsert, created)
	s.notifier.NotifyNewShipment(ctx, created)
	return created, nil
}

// GetShipment: публичный просмотр по номеру, через кэш.
func (s *Service) GetShipment(ctx context.Context, ref string) (*models.Shipment, error) {
	ref = normalizeRef(ref)
	if ref == "" {
		return nil, models.InvalidInput("tracking number is required")
	}

	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(ref)); err == nil && ok {
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return &sh, nil
			}
		}
	}

	sh, err := s.repo.GetShipment(ctx, ref)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, err
		}
		return nil, models.Unreadable("shipment "+ref, err)
	}
	s.remember(ctx, sh)
	return sh, nil
}

// ListShipments: админ видит всё, клиент — только свои (с учётом имперсонации).
func (s *Service) ListShipments(ctx context.Context, limit int) ([]*models.Shipment, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	f := pgshipdesk.ShipmentFilter{Limit: limit}
	if !actor.IsAdmin() || actor.Impersonating {
		f.UserID = actor.EffectiveUserID
	}
	out, err := s.repo.ListShipments(ctx, f)
	if err != nil {
		return nil, models.Persistence("list shipments", err)
	}
	return out, nil
}

// UpdateShipment применяет частичное обновление полей. Переход в confirmed
// всегда выставляет оплату. Историю не трогает, для движения есть AppendEvent.
func (s *Service) UpdateShipment(ctx context.Context, ref string, p models.ShipmentPatch) (*models.Shipment, error) {
	if !auth.FromContext(ctx).IsAdmin() {
		return nil, models.ErrForbidden
	}
	ref = normalizeRef(ref)
	if p.IsEmpty() {
		return nil, models.InvalidInput("nothing to update")
	}
	if p.Status != nil && !models.IsShipmentStatus(*p.Status) {
		return nil, models.InvalidInput("unknown status " + *p.Status)
	}
	if p.PaymentStatus != nil && !models.IsPaymentStatus(*p.PaymentStatus) {
		return nil, models.InvalidInput("unknown payment status " + *p.PaymentStatus)
	}
	if p.Status != nil && *p.Status == models.ShipmentStatusConfirmed {
		paid := models.PaymentStatusPaid
		p.PaymentStatus = &paid
	}

	saved, err := s.repo.PatchShipment(ctx, ref, p, s.now())
	if err != nil {
		if models.IsNotFound(err) {
			return nil, err
		}
		return nil, models.Persistence("update shipment "+ref, err)
	}

	s.afterWrite(ctx, saved)
	switch {
	case p.Status != nil:
		s.notifier.NotifyShipmentChange(ctx, saved, notify.ChangeStatus)
	case p.PaymentStatus != nil:
		s.notifier.NotifyShipmentChange(ctx, saved, notify.ChangePayment)
	}
	return saved, nil
}

func (s *Service) TogglePayment(ctx context.Context, ref string) (*models.Shipment, error) {
	if !auth.FromContext(ctx).IsAdmin() {
		return nil, models.ErrForbidden
	}
	ref = normalizeRef(ref)
	sh, err := s.repo.GetShipment(ctx, ref)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, err
		}
		return nil, models.Unreadable("shipment "+ref, err)
	}
	next := models.PaymentStatusPaid
	if sh.PaymentStatus == models.PaymentStatusPaid {
		next = models.PaymentStatusUnpaid
	}
	return s.UpdateShipment(ctx, ref, models.ShipmentPatch{PaymentStatus: &next})
}

func (s *Service) DeleteShipment(ctx context.Context, ref string) error {
	actor := auth.FromContext(ctx)
	if !actor.IsAdmin() {
		return models.ErrForbidden
	}
	ref = normalizeRef(ref)
	if err := s.repo.DeleteShipment(ctx, ref); err != nil {
		if models.IsNotFound(err) {
			return err
		}
		return models.Persistence("delete shipment "+ref, err)
	}
	slog.Info("shipment deleted", "tracking_number", ref, "actor_id", actor.ActingUserID)

	s.forget(ctx, ref)
	s.publish(ctx, realtime.EventDelete, &models.Shipment{TrackingNumber: ref})
	return nil
}

func (s *Service) afterWrite(ctx context.Context, sh *models.Shipment) {
	s.forget(ctx, sh.TrackingNumber)
	s.publish(ctx, realtime.EventUpdate, sh)
}

func (s *Service) remember(ctx context.Context, sh *models.Shipment) {
	if s.cache == nil || s.currentTTL <= 0 {
		return
	}
	b, err := json.Marshal(sh)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, currentKey(sh.TrackingNumber), b, s.currentTTL)
}

func (s *Service) forget(ctx context.Context, ref string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, currentKey(ref)); err != nil {
		slog.Warn("cache invalidation failed", "tracking_number", ref, "error", err.Error())
	}
}

func (s *Service) publish(ctx context.Context, ev realtime.Event, sh *models.Shipment) {
	if s.feed == nil {
		return
	}
	ch, err := realtime.NewChange(realtime.TableShipments, ev, sh.TrackingNumber, sh)
	if err == nil {
		err = s.feed.Publish(ctx, ch)
	}
	if err != nil {
		slog.Warn("shipment change not published", "tracking_number", sh.TrackingNumber, "error", err.Error())
	}
}

func normalizeRef(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

func currentKey(ref string) string {
	return "shipment:" + ref + ":current"
}
