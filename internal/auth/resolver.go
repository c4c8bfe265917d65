package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	DefaultLookupTimeout = 8 * time.Second

	ImpersonateHeader = "X-Impersonate-User"
)

type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
}

type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Resolver: сессия по bearer-токену (HS256). Профиль подтягивается с ограничением
// по времени; при таймауте или ошибке берётся минимальный профиль из claims.
type Resolver struct {
	secret   []byte
	profiles ProfileLookup
	timeout  time.Duration
	now      func() time.Time
}

func NewResolver(secret string, profiles ProfileLookup, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Resolver{secret: []byte(secret), profiles: profiles, timeout: timeout, now: time.Now}
}

func (r *Resolver) IssueToken(userID, email, name string, ttl time.Duration) (string, error) {
	now := r.now().UTC()
	claims := Claims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return s, nil
}

func (r *Resolver) parse(token string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(r.now))
	if err != nil {
		return nil, errors.Wrap(err, "parse token")
	}
	if c.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &c, nil
}

// Resolve никогда не возвращает ошибку: невалидный токен даёт анонимного актора.
func (r *Resolver) Resolve(ctx context.Context, token, impersonateID string) Actor {
	if token == "" {
		return Anonymous()
	}
	c, err := r.parse(token)
	if err != nil {
		slog.Debug("session rejected", "error", err.Error())
		return Anonymous()
	}

	a := Actor{
		ActingUserID:    c.Subject,
		EffectiveUserID: c.Subject,
		Role:            models.RoleClient,
		Name:            c.Name,
		Email:           c.Email,
	}

	if p := r.lookupProfile(ctx, c.Subject); p != nil {
		a.Role = p.Role
		if p.FullName != "" {
			a.Name = p.FullName
		}
		if p.Email != "" {
			a.Email = p.Email
		}
	}

	if impersonateID != "" && impersonateID != a.ActingUserID {
		if a.IsAdmin() {
			a.EffectiveUserID = impersonateID
			a.Impersonating = true
		} else {
			slog.Warn("impersonation ignored for non-admin", "user_id", a.ActingUserID)
		}
	}
	return a
}

func (r *Resolver) lookupProfile(ctx context.Context, id string) *models.UserProfile {
	if r.profiles == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		p   *models.UserProfile
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := r.profiles.GetProfile(ctx, id)
		ch <- result{p: p, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.Warn("profile lookup timed out, using fallback profile", "user_id", id, "timeout", r.timeout.String())
		return nil
	case res := <-ch:
		if res.err != nil {
			slog.Warn("profile lookup failed, using fallback profile", "user_id", id, "error", res.err.Error())
			return nil
		}
		return res.p
	}
}

// Middleware кладёт Actor в контекст запроса.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		a := r.Resolve(req.Context(), bearerToken(req), strings.TrimSpace(req.Header.Get(ImpersonateHeader)))
		next.ServeHTTP(w, req.WithContext(WithActor(req.Context(), a)))
	})
}

func bearerToken(req *http.Request) string {
	h := req.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
