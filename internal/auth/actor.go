package auth

import (
	"context"

	"github.com/BearBump/ShipDesk/internal/models"
)

// Actor: контекст запроса: кто действует на самом деле и от чьего имени.
// При имперсонации админ (ActingUserID) действует как EffectiveUserID.
type Actor struct {
	ActingUserID    string
	EffectiveUserID string
	Impersonating   bool
	Role            string
	Name            string
	Email           string
}

const systemActorName = "system"

// System: актор для фоновых источников (сканы хабов из Kafka).
func System() Actor {
	return Actor{Role: models.RoleAdmin, Name: systemActorName}
}

func Anonymous() Actor { return Actor{} }

func (a Actor) IsAuthenticated() bool { return a.ActingUserID != "" }

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

func (a Actor) IsSystem() bool { return a.ActingUserID == "" && a.Name == systemActorName }

// ShouldNotify: подавление самоуведомлений: владелец не получает уведомление о
// собственном действии, если только админ не действует от его имени.
func (a Actor) ShouldNotify(recipientID string) bool {
	if recipientID == "" {
		return false
	}
	if a.Impersonating {
		return true
	}
	return recipientID != a.ActingUserID
}

// DisplayName для подписи ответов и писем.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Email != "" {
		return a.Email
	}
	return "A Customer"
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(ctxKey{}).(Actor)
	return a
}
