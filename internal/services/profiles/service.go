// Package profiles: профиль текущего пользователя, управление ролями и приглашения.
package profiles

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/integrations/email"
	"github.com/BearBump/ShipDesk/internal/models"
)

const defaultListLimit = 100

type Repository interface {
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
	ListProfiles(ctx context.Context, limit, offset int) ([]*models.UserProfile, error)
	UpsertProfile(ctx context.Context, p *models.UserProfile) (*models.UserProfile, error)
	UpdateProfileRole(ctx context.Context, id, role string) error
	UpdateProfile(ctx context.Context, id string, u models.ProfileUpdate) (*models.UserProfile, error)
	UpsertInvite(ctx context.Context, inv models.UserInvite) (*models.UserInvite, error)
	ListInvites(ctx context.Context, limit int) ([]*models.UserInvite, error)
}

type Mailer interface {
	Enqueue(m email.Message) bool
}

// Input: поля, которые пользователь правит сам. Роль и email сюда не входят.
type Input struct {
	FullName string
	Phone    string
	Company  string
	Address  string
}

type Service struct {
	repo   Repository
	mailer Mailer
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// WithMailer включает письмо-приглашение. Без него приглашение только сохраняется.
func (s *Service) WithMailer(m Mailer) *Service {
	s.mailer = m
	return s
}

// Me: профиль эффективного пользователя. Если строки ещё нет, собирается из сессии.
func (s *Service) Me(ctx context.Context) (*models.UserProfile, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	p, err := s.repo.GetProfile(ctx, actor.EffectiveUserID)
	switch {
	case err == nil:
		return p, nil
	case models.IsNotFound(err):
		return fromActor(actor), nil
	default:
		return nil, models.Unreadable("profile "+actor.EffectiveUserID, err)
	}
}

func (s *Service) UpdateMe(ctx context.Context, in Input) (*models.UserProfile, error) {
	actor := auth.FromContext(ctx)
	if !actor.IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		return nil, models.InvalidInput("full name is required")
	}

	cur, err := s.Me(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.repo.UpsertProfile(ctx, &models.UserProfile{
		ID:       actor.EffectiveUserID,
		Email:    cur.Email,
		FullName: in.FullName,
		Role:     cur.Role,
		Phone:    strings.TrimSpace(in.Phone),
		Company:  strings.TrimSpace(in.Company),
		Address:  strings.TrimSpace(in.Address),
	})
	if err != nil {
		return nil, models.Persistence("upsert profile", err)
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.UserProfile, error) {
	if err := requireAdmin(auth.FromContext(ctx)); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	out, err := s.repo.ListProfiles(ctx, limit, offset)
	if err != nil {
		return nil, models.Unreadable("profiles", err)
	}
	return out, nil
}

// SetRole: свою роль админ не меняет, иначе можно остаться без админов.
func (s *Service) SetRole(ctx context.Context, id, role string) error {
	actor := auth.FromContext(ctx)
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if role != models.RoleAdmin && role != models.RoleClient {
		return models.InvalidInput("role must be admin or client")
	}
	if id == actor.ActingUserID {
		return models.InvalidInput("cannot change own role")
	}
	if err := s.repo.UpdateProfileRole(ctx, id, role); err != nil {
		if models.IsNotFound(err) {
			return err
		}
		return models.Persistence("update profile role", err)
	}
	slog.Info("profile role changed", "profile_id", id, "role", role, "by", actor.ActingUserID)
	return nil
}

// AdminUpdate: админ правит чужой профиль целиком. Свою роль он так не понизит.
func (s *Service) AdminUpdate(ctx context.Context, id string, u models.ProfileUpdate) (*models.UserProfile, error) {
	actor := auth.FromContext(ctx)
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	u.FullName = strings.TrimSpace(u.FullName)
	u.Email = strings.TrimSpace(u.Email)
	if u.FullName == "" {
		return nil, models.InvalidInput("full name is required")
	}
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return nil, models.InvalidInput("invalid email " + u.Email)
		}
	}
	if !models.IsRole(u.Role) {
		return nil, models.InvalidInput("role must be admin or client")
	}
	if id == actor.ActingUserID && u.Role != models.RoleAdmin {
		return nil, models.InvalidInput("cannot change own role")
	}
	u.Phone = strings.TrimSpace(u.Phone)
	u.Company = strings.TrimSpace(u.Company)
	u.Address = strings.TrimSpace(u.Address)

	out, err := s.repo.UpdateProfile(ctx, id, u)
	if err != nil {
		if models.IsNotFound(err) || errors.Is(err, models.ErrInvalidInput) {
			return nil, err
		}
		return nil, models.Persistence("update profile", err)
	}
	slog.Info("profile updated by admin", "profile_id", id, "role", out.Role, "by", actor.ActingUserID)
	return out, nil
}

// Invite запоминает роль для адреса: профиль, созданный на этот email, получит её.
func (s *Service) Invite(ctx context.Context, addr, role string) (*models.UserInvite, error) {
	actor := auth.FromContext(ctx)
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	addr = strings.ToLower(strings.TrimSpace(addr))
	if _, err := mail.ParseAddress(addr); err != nil {
		return nil, models.InvalidInput("invalid email " + addr)
	}
	if role == "" {
		role = models.RoleClient
	}
	if !models.IsRole(role) {
		return nil, models.InvalidInput("role must be admin or client")
	}

	inv, err := s.repo.UpsertInvite(ctx, models.UserInvite{Email: addr, Role: role, InvitedBy: actor.ActingUserID})
	if err != nil {
		return nil, models.Persistence("upsert invite", err)
	}
	slog.Info("user invited", "email", inv.Email, "role", inv.Role, "by", actor.ActingUserID)

	if s.mailer != nil && !s.mailer.Enqueue(inviteMessage(inv.Email, inv.Role, actor.DisplayName())) {
		slog.Warn("invite email not queued", "email", inv.Email)
	}
	return inv, nil
}

func (s *Service) ListInvites(ctx context.Context, limit int) ([]*models.UserInvite, error) {
	if err := requireAdmin(auth.FromContext(ctx)); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	out, err := s.repo.ListInvites(ctx, limit)
	if err != nil {
		return nil, models.Unreadable("invites", err)
	}
	return out, nil
}

func inviteMessage(to, role, inviter string) email.Message {
	return email.Message{
		To:       to,
		Template: "userInvite",
		Subject:  "ShipDesk | You have been invited",
		Text:     fmt.Sprintf("%s invited you to ShipDesk as %s. Sign up with this email address to join.", inviter, role),
		HTML: fmt.Sprintf(`<h1>You have been invited</h1><p>%s invited you to ShipDesk as <strong>%s</strong>.</p><p><a href="/auth">Sign up</a> with this email address to join.</p>`,
			html.EscapeString(inviter), html.EscapeString(role)),
	}
}

func requireAdmin(a auth.Actor) error {
	if !a.IsAuthenticated() {
		return models.ErrUnauthorized
	}
	if !a.IsAdmin() || a.Impersonating {
		return models.ErrForbidden
	}
	return nil
}

// fromActor: при имперсонации имя и email в сессии принадлежат админу, их не берём.
func fromActor(a auth.Actor) *models.UserProfile {
	if a.Impersonating {
		return &models.UserProfile{ID: a.EffectiveUserID, Role: models.RoleClient}
	}
	return &models.UserProfile{ID: a.EffectiveUserID, Email: a.Email, FullName: a.Name, Role: a.Role}
}
