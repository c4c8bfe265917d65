package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/realtime"
)

const touchWarning = "message saved, but the session could not be refreshed"

type Repository interface {
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
	CreateChatSession(ctx context.Context, cs *models.ChatSession) (*models.ChatSession, error)
	GetChatSession(ctx context.Context, id string) (*models.ChatSession, error)
	ListChatSessions(ctx context.Context, userID *string, limit int) ([]*models.ChatSession, error)
	UpdateChatSessionStatus(ctx context.Context, id, status string) (*models.ChatSession, error)
	CreateChatMessage(ctx context.Context, m *models.ChatMessage) (*models.ChatMessage, error)
	ListChatMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error)
}

type Publisher interface {
	Publish(ctx context.Context, ch realtime.Change) error
}

// Conversation: сессия и сообщения по возрастанию времени.
type Conversation struct {
	Session  *models.ChatSession   `json:"session"`
	Messages []*models.ChatMessage `json:"messages"`
}

// MessageResult. Warning не пуст, если сообщение сохранено, а сессию обновить не удалось.
type MessageResult struct {
	Message *models.ChatMessage `json:"message"`
	Session *models.ChatSession `json:"session"`
	Warning string              `json:"warning,omitempty"`
}

type Service struct {
	repo Repository
	feed Publisher
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) WithFeed(feed Publisher) *Service {
	s.feed = feed
	return s
}

// StartSession возвращает активную сессию пользователя или открывает новую.
// У пользователя не больше одной активной сессии.
func (s *Service) StartSession(ctx context.Context) (*models.ChatSession, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	uid := actor.EffectiveUserID

	last, err := s.repo.ListChatSessions(ctx, &uid, 1)
	if err != nil {
		return nil, models.Unreadable("chat sessions of "+uid, err)
	}
	if len(last) > 0 && last[0].Status == models.ChatStatusActive {
		return last[0], nil
	}

	name, email := s.contact(ctx, actor)
	cs, err := s.repo.CreateChatSession(ctx, &models.ChatSession{
		UserID:    uid,
		UserEmail: email,
		UserName:  name,
		Status:    models.ChatStatusActive,
	})
	if err != nil {
		return nil, models.Persistence("insert chat session", err)
	}
	slog.Info("chat session started", "session_id", cs.ID, "user_id", uid)
	s.publish(ctx, realtime.TableChatSessions, realtime.EventInsert, cs.ID, cs)
	return cs, nil
}

// ListSessions: админ видит все сессии, клиент (и админ при имперсонации) только свои.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]*models.ChatSession, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	var owner *string
	if !actor.IsAdmin() || actor.Impersonating {
		uid := actor.EffectiveUserID
		owner = &uid
	}
	out, err := s.repo.ListChatSessions(ctx, owner, limit)
	if err != nil {
		return nil, models.Persistence("list chat sessions", err)
	}
	return out, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*Conversation, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	cs, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, cs) {
		return nil, models.ErrForbidden
	}
	msgs, err := s.repo.ListChatMessages(ctx, cs.ID)
	if err != nil {
		return nil, models.Unreadable("chat messages "+cs.ID, err)
	}
	return &Conversation{Session: cs, Messages: msgs}, nil
}

// SendMessage пишет сообщение в сессию. Сессия после этого активна и
// поднимается в списке; ошибка этого шага не отменяет сообщение.
func (s *Service) SendMessage(ctx context.Context, sessionID, message string) (*MessageResult, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, models.InvalidInput("message is required")
	}
	cs, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, cs) {
		return nil, models.ErrForbidden
	}

	senderType := models.SenderTypeCustomer
	if actor.IsAdmin() && !actor.Impersonating {
		senderType = models.SenderTypeAdmin
	}
	m, err := s.repo.CreateChatMessage(ctx, &models.ChatMessage{
		SessionID:  cs.ID,
		SenderType: senderType,
		SenderName: actor.DisplayName(),
		Message:    message,
	})
	if err != nil {
		return nil, models.Persistence("insert chat message", err)
	}
	s.publish(ctx, realtime.TableChatMessages, realtime.EventInsert, cs.ID, m)

	res := &MessageResult{Message: m, Session: cs}
	touched, err := s.repo.UpdateChatSessionStatus(ctx, cs.ID, models.ChatStatusActive)
	if err != nil {
		slog.Error("chat session touch failed", "session_id", cs.ID, "error", err.Error())
		res.Warning = touchWarning
	} else {
		res.Session = touched
		s.publish(ctx, realtime.TableChatSessions, realtime.EventUpdate, cs.ID, touched)
	}
	return res, nil
}

// SetStatus: закрыть или вернуть сессию может админ или её владелец.
func (s *Service) SetStatus(ctx context.Context, sessionID, status string) (*models.ChatSession, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	if !models.IsChatStatus(status) {
		return nil, models.InvalidInput("unknown chat status " + status)
	}
	cs, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, cs) {
		return nil, models.ErrForbidden
	}
	out, err := s.repo.UpdateChatSessionStatus(ctx, cs.ID, status)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, err
		}
		return nil, models.Persistence("update chat session status", err)
	}
	slog.Info("chat session status changed", "session_id", out.ID, "status", out.Status)
	s.publish(ctx, realtime.TableChatSessions, realtime.EventUpdate, out.ID, out)
	return out, nil
}

// contact: имя и email из профиля; без профиля берём данные сессии, кроме
// имперсонации, где они принадлежат админу.
func (s *Service) contact(ctx context.Context, actor auth.Actor) (string, string) {
	p, err := s.repo.GetProfile(ctx, actor.EffectiveUserID)
	if err == nil && p != nil {
		name := p.FullName
		if name == "" {
			name = p.Email
		}
		return name, p.Email
	}
	if err != nil && !models.IsNotFound(err) {
		slog.Warn("chat contact lookup failed", "user_id", actor.EffectiveUserID, "error", err.Error())
	}
	if actor.Impersonating {
		return "A Customer", ""
	}
	return actor.DisplayName(), actor.Email
}

func (s *Service) load(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, models.InvalidInput("session id is required")
	}
	cs, err := s.repo.GetChatSession(ctx, sessionID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, err
		}
		return nil, models.Unreadable("chat session "+sessionID, err)
	}
	return cs, nil
}

func canAccess(actor auth.Actor, cs *models.ChatSession) bool {
	if actor.IsAdmin() && !actor.Impersonating {
		return true
	}
	return cs.UserID == actor.EffectiveUserID
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
		slog.Warn("chat change not published", "table", table, "key", key, "error", err.Error())
	}
}
