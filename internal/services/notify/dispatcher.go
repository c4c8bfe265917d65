package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/integrations/email"
	"github.com/BearBump/ShipDesk/internal/metrics"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/realtime"
)

type Repository interface {
	CreateNotification(ctx context.Context, in models.NotificationCreateInput) (*models.Notification, error)
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.UserProfile, error)
	ListProfilesByRole(ctx context.Context, role string) ([]*models.UserProfile, error)
}

type Mailer interface {
	Enqueue(m email.Message) bool
}

type Publisher interface {
	Publish(ctx context.Context, ch realtime.Change) error
}

// ChangeKind: что изменилось в отправлении, определяет текст уведомления.
type ChangeKind string

const (
	ChangeStatus   ChangeKind = "status"
	ChangePayment  ChangeKind = "payment"
	ChangeMovement ChangeKind = "movement"
)

// Dispatcher пишет in-app уведомления и ставит письма в очередь.
// Все ошибки здесь мягкие: логируются и считаются в метриках, наружу не уходят.
type Dispatcher struct {
	repo    Repository
	mailer  Mailer
	feed    Publisher
	metrics *metrics.Metrics
}

func New(repo Repository, mailer Mailer, feed Publisher, m *metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.NewDiscard()
	}
	return &Dispatcher{repo: repo, mailer: mailer, feed: feed, metrics: m}
}

// NotifyShipmentChange уведомляет владельца отправления. Актор берётся из ctx.
// Событие: последняя запись истории sh (для ChangeMovement).
func (d *Dispatcher) NotifyShipmentChange(ctx context.Context, sh *models.Shipment, kind ChangeKind) {
	actor := auth.FromContext(ctx)
	owner := sh.UserID
	if !actor.ShouldNotify(owner) {
		d.suppressed(string(kind), "self-update", owner, actor)
		return
	}

	ref := sh.TrackingNumber
	in := models.NotificationCreateInput{
		UserID: owner,
		Type:   models.NotificationTypeShipmentUpdate,
		Link:   trackLink(ref),
	}
	switch kind {
	case ChangeStatus:
		in.Title = "Shipment Updated"
		in.Message = fmt.Sprintf("Your shipment %s is now %s.", ref, strings.ToUpper(sh.Status))
	case ChangePayment:
		in.Title = "Payment Received"
		in.Message = fmt.Sprintf("Payment for shipment %s has been verified.", ref)
	default:
		status, location := sh.Status, sh.CurrentLocation
		if ev := sh.LastEvent(); ev != nil {
			status, location = ev.Status, ev.Location
		}
		in.Title = "Shipment Movement"
		in.Message = fmt.Sprintf("New update for %s: %s at %s.", ref, strings.ToUpper(status), location)
	}
	d.create(ctx, string(kind), in)

	if kind == ChangePayment {
		return
	}
	if addr := d.profileEmail(ctx, owner); addr != "" {
		d.send(to(statusUpdate(ref, sh.Status), addr))
	}
}

// NotifyTicketReply: ответ админа уходит владельцу тикета, ответ клиента — всем админам.
func (d *Dispatcher) NotifyTicketReply(ctx context.Context, t *models.SupportTicket, r *models.TicketReply) {
	actor := auth.FromContext(ctx)
	link := ticketLink(t.ID)

	if r.SenderType != models.SenderTypeAdmin {
		d.NotifyAdmins(ctx, models.NotificationTypeTicketReply,
			"Customer Response",
			fmt.Sprintf("%s replied to ticket %s.", r.SenderName, t.TicketNumber),
			link,
			supportReply(t.TicketNumber, r.Message),
		)
		return
	}

	if t.UserID == nil || *t.UserID == "" {
		// гостевой тикет: in-app некому, только письмо на адрес из тикета
		if t.Email != "" {
			d.send(to(supportReply(t.TicketNumber, r.Message), t.Email))
		}
		return
	}
	owner := *t.UserID
	if !actor.ShouldNotify(owner) {
		d.suppressed("ticket_reply", "self-reply", owner, actor)
		return
	}

	d.create(ctx, "ticket_reply", models.NotificationCreateInput{
		UserID:  owner,
		Type:    models.NotificationTypeTicketReply,
		Title:   "New Support Signal",
		Message: fmt.Sprintf("Agent %s replied to ticket %s.", r.SenderName, t.TicketNumber),
		Link:    link,
	})
	addr := d.profileEmail(ctx, owner)
	if addr == "" {
		addr = t.Email
	}
	if addr != "" {
		d.send(to(supportReply(t.TicketNumber, r.Message), addr))
	}
}

func (d *Dispatcher) NotifyTicketStatus(ctx context.Context, t *models.SupportTicket) {
	if t.UserID == nil || *t.UserID == "" {
		return
	}
	owner := *t.UserID
	if actor := auth.FromContext(ctx); !actor.ShouldNotify(owner) {
		d.suppressed("ticket_status", "self-update", owner, actor)
		return
	}
	d.create(ctx, "ticket_status", models.NotificationCreateInput{
		UserID:  owner,
		Type:    models.NotificationTypeTicketReply,
		Title:   "Ticket Status Update",
		Message: fmt.Sprintf("Ticket %s status changed to %s.", t.TicketNumber, strings.ToUpper(strings.ReplaceAll(t.Status, "_", " "))),
		Link:    ticketLink(t.ID),
	})
}

// NotifyNewTicket: оповещение админов о новом тикете.
func (d *Dispatcher) NotifyNewTicket(ctx context.Context, t *models.SupportTicket) {
	d.NotifyAdmins(ctx, models.NotificationTypeSystem,
		"New Support Ticket",
		fmt.Sprintf("A new ticket (%s) has been created by %s: %s", t.TicketNumber, t.Name, t.Subject),
		"/dashboard?tab=support",
		adminNewTicketAlert(t.TicketNumber, t.Name, t.Subject),
	)
}

// NotifyNewShipment: три независимых адресата: отправитель, получатель (если он
// известный пользователь с другим email) и все админы.
func (d *Dispatcher) NotifyNewShipment(ctx context.Context, sh *models.Shipment) {
	d.notifyCreator(ctx, sh)
	d.notifyReceiver(ctx, sh)

	creator := sh.Sender.Name
	if creator == "" {
		creator = auth.FromContext(ctx).DisplayName()
	}
	d.NotifyAdmins(ctx, models.NotificationTypeSystem,
		"New Shipment Alert",
		fmt.Sprintf("A new shipment (%s) has been submitted. Check details.", sh.TrackingNumber),
		"/dashboard?tab=shipments",
		adminNewShipmentAlert(sh.TrackingNumber, creator),
	)
}

func (d *Dispatcher) notifyCreator(ctx context.Context, sh *models.Shipment) {
	if sh.UserID == "" {
		return
	}
	ref := sh.TrackingNumber
	d.create(ctx, "shipment_created", models.NotificationCreateInput{
		UserID:  sh.UserID,
		Type:    models.NotificationTypeShipmentUpdate,
		Title:   "Shipment Registered",
		Message: fmt.Sprintf("Your shipment %s has been successfully created.", ref),
		Link:    trackLink(ref),
	})

	name, addr := sh.Sender.Name, sh.Sender.Email
	p, err := d.repo.GetProfile(ctx, sh.UserID)
	if err != nil {
		slog.Warn("sender profile lookup failed", "tracking_number", ref, "user_id", sh.UserID, "error", err.Error())
	} else {
		if p.FullName != "" {
			name = p.FullName
		}
		if p.Email != "" {
			addr = p.Email
		}
	}
	if addr != "" {
		d.send(to(shipmentConfirmation(ref, name), addr))
	}
}

func (d *Dispatcher) notifyReceiver(ctx context.Context, sh *models.Shipment) {
	rcv := strings.TrimSpace(sh.Receiver.Email)
	if rcv == "" || strings.EqualFold(rcv, strings.TrimSpace(sh.Sender.Email)) {
		return
	}
	p, err := d.repo.GetProfileByEmail(ctx, rcv)
	if err != nil {
		slog.Debug("receiver is not a known user", "tracking_number", sh.TrackingNumber, "error", err.Error())
		return
	}
	if p.ID == sh.UserID {
		return
	}

	ref := sh.TrackingNumber
	sender := sh.Sender.Name
	if sender == "" {
		sender = "A Customer"
	}
	receiver := p.FullName
	if receiver == "" {
		receiver = sh.Receiver.Name
	}
	d.create(ctx, "shipment_incoming", models.NotificationCreateInput{
		UserID:  p.ID,
		Type:    models.NotificationTypeShipmentUpdate,
		Title:   "Incoming Shipment",
		Message: fmt.Sprintf("%s has created a shipment to you. Track it with %s.", sender, ref),
		Link:    trackLink(ref),
	})
	d.send(to(receiverShipmentNotification(ref, receiver, sender), p.Email))
}

// NotifyAdmins рассылает уведомление и письмо каждому админу по очереди.
// O(число админов), без батчей. Возвращает число записанных уведомлений.
func (d *Dispatcher) NotifyAdmins(ctx context.Context, typ, title, message, link string, mail email.Message) int {
	admins, err := d.repo.ListProfilesByRole(ctx, models.RoleAdmin)
	if err != nil {
		d.metrics.NotificationsFailed.WithLabelValues("admin_fanout").Inc()
		slog.Error("list admins failed", "title", title, "error", err.Error())
		return 0
	}

	n := 0
	for _, a := range admins {
		if d.create(ctx, "admin", models.NotificationCreateInput{
			UserID:  a.ID,
			Type:    typ,
			Title:   title,
			Message: message,
			Link:    link,
		}) {
			n++
		}
		if a.Email != "" && mail.Subject != "" {
			d.send(to(mail, a.Email))
		}
	}
	return n
}

func (d *Dispatcher) create(ctx context.Context, kind string, in models.NotificationCreateInput) bool {
	n, err := d.repo.CreateNotification(ctx, in)
	if err != nil {
		d.metrics.NotificationsFailed.WithLabelValues(kind).Inc()
		slog.Error("notification write failed", "user_id", in.UserID, "title", in.Title, "error", err.Error())
		return false
	}
	d.metrics.NotificationsCreated.WithLabelValues(kind).Inc()

	if d.feed != nil {
		ch, err := realtime.NewChange(realtime.TableNotifications, realtime.EventInsert, n.UserID, n)
		if err == nil {
			err = d.feed.Publish(ctx, ch)
		}
		if err != nil {
			slog.Warn("notification change not published", "user_id", n.UserID, "error", err.Error())
		}
	}
	return true
}

func (d *Dispatcher) send(m email.Message) {
	if d.mailer == nil || m.To == "" {
		return
	}
	if !d.mailer.Enqueue(m) {
		slog.Warn("email not queued", "to", m.To, "template", m.Template)
	}
}

func (d *Dispatcher) profileEmail(ctx context.Context, userID string) string {
	p, err := d.repo.GetProfile(ctx, userID)
	if err != nil {
		slog.Warn("recipient profile lookup failed", "user_id", userID, "error", err.Error())
		return ""
	}
	return p.Email
}

func (d *Dispatcher) suppressed(kind, reason, owner string, actor auth.Actor) {
	if owner == "" {
		reason = "no-owner"
	}
	d.metrics.NotificationsSuppressed.WithLabelValues(kind).Inc()
	slog.Debug("notification suppressed", "reason", reason, "owner_id", owner, "actor_id", actor.ActingUserID)
}
