package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/stretchr/testify/require"
)

type profilesStub struct {
	p     *models.UserProfile
	err   error
	delay time.Duration
}

func (s profilesStub) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.p, s.err
}

func TestActor_ShouldNotify(t *testing.T) {
	self := Actor{ActingUserID: "u1", EffectiveUserID: "u1"}
	require.False(t, self.ShouldNotify("u1"))
	require.True(t, self.ShouldNotify("u2"))
	require.False(t, self.ShouldNotify(""))

	imp := Actor{ActingUserID: "u1", EffectiveUserID: "u1", Impersonating: true}
	require.True(t, imp.ShouldNotify("u1"))

	require.True(t, System().ShouldNotify("u1"))
	require.True(t, System().IsSystem())
}

func TestActor_Context(t *testing.T) {
	require.False(t, FromContext(context.Background()).IsAuthenticated())
	ctx := WithActor(context.Background(), Actor{ActingUserID: "u1", Role: models.RoleAdmin})
	a := FromContext(ctx)
	require.True(t, a.IsAuthenticated())
	require.True(t, a.IsAdmin())
}

func TestResolver_ProfileRole(t *testing.T) {
	r := NewResolver("secret", profilesStub{p: &models.UserProfile{ID: "a1", Role: models.RoleAdmin, FullName: "Ada"}}, time.Second)
	tok, err := r.IssueToken("a1", "a@x.com", "", time.Hour)
	require.NoError(t, err)

	a := r.Resolve(context.Background(), tok, "u9")
	require.Equal(t, "a1", a.ActingUserID)
	require.Equal(t, "u9", a.EffectiveUserID)
	require.True(t, a.Impersonating)
	require.True(t, a.IsAdmin())
	require.Equal(t, "Ada", a.Name)
}

func TestResolver_ClientCannotImpersonate(t *testing.T) {
	r := NewResolver("secret", profilesStub{p: &models.UserProfile{ID: "u1", Role: models.RoleClient}}, time.Second)
	tok, err := r.IssueToken("u1", "u@x.com", "U", time.Hour)
	require.NoError(t, err)

	a := r.Resolve(context.Background(), tok, "u2")
	require.Equal(t, "u1", a.EffectiveUserID)
	require.False(t, a.Impersonating)
}

func TestResolver_TimeoutFallsBackToClaims(t *testing.T) {
	r := NewResolver("secret", profilesStub{p: &models.UserProfile{Role: models.RoleAdmin}, delay: time.Second}, 20*time.Millisecond)
	tok, err := r.IssueToken("u1", "u@x.com", "Uma", time.Hour)
	require.NoError(t, err)

	a := r.Resolve(context.Background(), tok, "")
	require.Equal(t, "u1", a.ActingUserID)
	require.Equal(t, models.RoleClient, a.Role)
	require.Equal(t, "Uma", a.Name)
	require.Equal(t, "u@x.com", a.Email)
}

func TestResolver_LookupErrorFallsBack(t *testing.T) {
	r := NewResolver("secret", profilesStub{err: errors.New("db down")}, time.Second)
	tok, err := r.IssueToken("u1", "", "", time.Hour)
	require.NoError(t, err)
	a := r.Resolve(context.Background(), tok, "")
	require.True(t, a.IsAuthenticated())
	require.False(t, a.IsAdmin())
}

func TestResolver_InvalidTokens(t *testing.T) {
	r := NewResolver("secret", nil, time.Second)
	require.False(t, r.Resolve(context.Background(), "", "").IsAuthenticated())
	require.False(t, r.Resolve(context.Background(), "garbage", "").IsAuthenticated())

	other := NewResolver("other", nil, time.Second)
	tok, err := other.IssueToken("u1", "", "", time.Hour)
	require.NoError(t, err)
	require.False(t, r.Resolve(context.Background(), tok, "").IsAuthenticated())

	expired, err := r.IssueToken("u1", "", "", -time.Minute)
	require.NoError(t, err)
	require.False(t, r.Resolve(context.Background(), expired, "").IsAuthenticated())
}

func TestMiddleware_PutsActorInContext(t *testing.T) {
	r := NewResolver("secret", nil, time.Second)
	tok, err := r.IssueToken("u1", "", "", time.Hour)
	require.NoError(t, err)

	var got Actor
	h := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got = FromContext(req.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "u1", got.ActingUserID)
}
