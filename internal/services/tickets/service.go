package tickets

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/realtime"
	"github.com/BearBump/ShipDesk/internal/refs"
)

const reopenWarning = "reply saved, but the ticket could not be reopened"

type Repository interface {
	CreateTicket(ctx context.Context, t *models.SupportTicket) (*models.SupportTicket, error)
	GetTicket(ctx context.Context, id string) (*models.SupportTicket, error)
	ListTickets(ctx context.Context, userID *string, limit int) ([]*models.SupportTicket, error)
	UpdateTicketStatus(ctx context.Context, id, status string) (*models.SupportTicket, error)
	CreateReply(ctx context.Context, r *models.TicketReply) (*models.TicketReply, error)
	ListReplies(ctx context.Context, ticketID string) ([]*models.TicketReply, error)
}

type Notifier interface {
	NotifyTicketReply(ctx context.Context, t *models.SupportTicket, r *models.TicketReply)
	NotifyTicketStatus(ctx context.Context, t *models.SupportTicket)
	NotifyNewTicket(ctx context.Context, t *models.SupportTicket)
}

type Publisher interface {
	Publish(ctx context.Context, ch realtime.Change) error
}

// ReplyResult. Warning не пуст, если ответ сохранён, а переоткрыть тикет не удалось.
type ReplyResult struct {
	Reply   *models.TicketReply
	Ticket  *models.SupportTicket
	Warning string
}

// Thread: тикет вместе с перепиской в хронологическом порядке.
type Thread struct {
	Ticket  *models.SupportTicket `json:"ticket"`
	Replies []*models.TicketReply `json:"replies"`
}

type Service struct {
	repo     Repository
	notifier Notifier
	feed     Publisher
	refs     *refs.Generator
}

func New(repo Repository, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		refs:     refs.NewGenerator(nil),
	}
}

func (s *Service) WithFeed(feed Publisher) *Service {
	s.feed = feed
	return s
}

func (s *Service) WithRefs(g *refs.Generator) *Service {
	if g != nil {
		s.refs = g
	}
	return s
}

// CreateTicket открывает тикет. Гость (без сессии) получает тикет без владельца,
// общение с ним идёт только по email.
func (s *Service) CreateTicket(ctx context.Context, in models.TicketCreateInput) (*models.SupportTicket, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	if in.Name == "" || in.Email == "" || in.Subject == "" || in.Message == "" {
		return nil, models.InvalidInput("name, email, subject and message are required")
	}

	var owner *string
	if actor := auth.FromContext(ctx); actor.IsAuthenticated() && actor.EffectiveUserID != "" {
		uid := actor.EffectiveUserID
		owner = &uid
	}

	t, err := s.repo.CreateTicket(ctx, &models.SupportTicket{
		TicketNumber: s.refs.TicketNumber(),
		UserID:       owner,
		Name:         in.Name,
		Email:        in.Email,
		Subject:      in.Subject,
		Status:       models.TicketStatusOpen,
		Priority:     models.TicketPriorityNormal,
	})
	if err != nil {
		return nil, models.Persistence("insert ticket", err)
	}
	slog.Info("ticket created", "ticket_number", t.TicketNumber, "ticket_id", t.ID)
	s.publish(ctx, realtime.TableTickets, realtime.EventInsert, t.ID, t)

	// первое сообщение это обычный ответ клиента; сам тикет уже создан
	r, err := s.repo.CreateReply(ctx, &models.TicketReply{
		TicketID:   t.ID,
		SenderType: models.SenderTypeCustomer,
		SenderName: in.Name,
		Message:    in.Message,
	})
	if err != nil {
		slog.Error("initial ticket message not stored", "ticket_id", t.ID, "error", err.Error())
	} else {
		s.publish(ctx, realtime.TableReplies, realtime.EventInsert, t.ID, r)
	}

	s.notifier.NotifyNewTicket(ctx, t)
	return t, nil
}

// AddReply добавляет сообщение в тикет от имени текущего актора.
//
// Админ (без имперсонации) пишет как агент поддержки, все остальные как клиент.
// Ответ клиента на решённый или закрытый тикет возвращает его в in_progress
// отдельной записью: её ошибка не отменяет ответ и возвращается как Warning.
func (s *Service) AddReply(ctx context.Context, ticketID, message string) (*ReplyResult, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, models.InvalidInput("message is required")
	}

	t, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, t) {
		return nil, models.ErrForbidden
	}

	senderType := models.SenderTypeCustomer
	if actor.IsAdmin() && !actor.Impersonating {
		senderType = models.SenderTypeAdmin
	}

	r, err := s.repo.CreateReply(ctx, &models.TicketReply{
		TicketID:   t.ID,
		SenderType: senderType,
		SenderName: actor.DisplayName(),
		Message:    message,
	})
	if err != nil {
		return nil, models.Persistence("insert ticket reply", err)
	}
	s.publish(ctx, realtime.TableReplies, realtime.EventInsert, t.ID, r)

	res := &ReplyResult{Reply: r, Ticket: t}
	if models.NeedsReopen(senderType, t.Status) {
		reopened, err := s.repo.UpdateTicketStatus(ctx, t.ID, models.TicketStatusInProgress)
		if err != nil {
			slog.Error("ticket reopen failed", "ticket_id", t.ID, "ticket_number", t.TicketNumber, "error", err.Error())
			res.Warning = reopenWarning
		} else {
			res.Ticket = reopened
			s.publish(ctx, realtime.TableTickets, realtime.EventUpdate, t.ID, reopened)
		}
	}

	s.notifier.NotifyTicketReply(ctx, res.Ticket, r)
	return res, nil
}

func (s *Service) UpdateStatus(ctx context.Context, ticketID, status string) (*models.SupportTicket, error) {
	if !auth.FromContext(ctx).IsAdmin() {
		return nil, models.ErrForbidden
	}
	if !models.IsTicketStatus(status) {
		return nil, models.InvalidInput("unknown ticket status " + status)
	}
	t, err := s.repo.UpdateTicketStatus(ctx, ticketID, status)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, err
		}
		return nil, models.Persistence("update ticket status", err)
	}
	slog.Info("ticket status changed", "ticket_number", t.TicketNumber, "status", t.Status)

	s.publish(ctx, realtime.TableTickets, realtime.EventUpdate, t.ID, t)
	s.notifier.NotifyTicketStatus(ctx, t)
	return t, nil
}

func (s *Service) GetTicket(ctx context.Context, ticketID string) (*Thread, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	t, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, t) {
		return nil, models.ErrForbidden
	}
	replies, err := s.repo.ListReplies(ctx, t.ID)
	if err != nil {
		return nil, models.Unreadable("ticket replies "+t.ID, err)
	}
	return &Thread{Ticket: t, Replies: replies}, nil
}

// ListTickets: админ видит все тикеты, клиент (и админ при имперсонации) — свои.
func (s *Service) ListTickets(ctx context.Context, limit int) ([]*models.SupportTicket, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	var owner *string
	if !actor.IsAdmin() || actor.Impersonating {
		uid := actor.EffectiveUserID
		owner = &uid
	}
	out, err := s.repo.ListTickets(ctx, owner, limit)
	if err != nil {
		return nil, models.Persistence("list tickets", err)
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, ticketID string) (*models.SupportTicket, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, models.InvalidInput("ticket id is required")
	}
	t, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, err
		}
		return nil, models.Unreadable("ticket "+ticketID, err)
	}
	return t, nil
}

func canAccess(actor auth.Actor, t *models.SupportTicket) bool {
	if actor.IsAdmin() && !actor.Impersonating {
		return true
	}
	return t.UserID != nil && *t.UserID == actor.EffectiveUserID
}

func (s *Service) publish(ctx context.Context, table string, ev realtime.Event, key string, row any) {
	if s.feed == nil {
		return
	}
	ch, err := realtime.NewChange(table, ev, key, row)
	if err == nil {
		err = s.feed.Publish(ctx, ch)
	}
	if err != nil {
		slog.Warn("ticket change not published", "table", table, "key", key, "error", err.Error())
	}
}
