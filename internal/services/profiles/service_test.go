package profiles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/integrations/email"
	"github.com/BearBump/ShipDesk/internal/models"
)

type repoMock struct {
	mock.Mock
}

func (m *repoMock) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*models.UserProfile)
	return out, args.Error(1)
}

func (m *repoMock) ListProfiles(ctx context.Context, limit, offset int) ([]*models.UserProfile, error) {
	args := m.Called(ctx, limit, offset)
	out, _ := args.Get(0).([]*models.UserProfile)
	return out, args.Error(1)
}

func (m *repoMock) UpsertProfile(ctx context.Context, p *models.UserProfile) (*models.UserProfile, error) {
	args := m.Called(ctx, p)
	out, _ := args.Get(0).(*models.UserProfile)
	return out, args.Error(1)
}

func (m *repoMock) UpdateProfileRole(ctx context.Context, id, role string) error {
	return m.Called(ctx, id, role).Error(0)
}

func (m *repoMock) UpdateProfile(ctx context.Context, id string, u models.ProfileUpdate) (*models.UserProfile, error) {
	args := m.Called(ctx, id, u)
	out, _ := args.Get(0).(*models.UserProfile)
	return out, args.Error(1)
}

func (m *repoMock) UpsertInvite(ctx context.Context, inv models.UserInvite) (*models.UserInvite, error) {
	args := m.Called(ctx, inv)
	out, _ := args.Get(0).(*models.UserInvite)
	return out, args.Error(1)
}

func (m *repoMock) ListInvites(ctx context.Context, limit int) ([]*models.UserInvite, error) {
	args := m.Called(ctx, limit)
	out, _ := args.Get(0).([]*models.UserInvite)
	return out, args.Error(1)
}

type mailerStub struct {
	sent []email.Message
	full bool
}

func (m *mailerStub) Enqueue(msg email.Message) bool {
	if m.full {
		return false
	}
	m.sent = append(m.sent, msg)
	return true
}

type ProfilesSuite struct {
	suite.Suite
	repo *repoMock
	svc  *Service
}

func TestProfilesSuite(t *testing.T) {
	suite.Run(t, new(ProfilesSuite))
}

func (s *ProfilesSuite) SetupTest() {
	s.repo = new(repoMock)
	s.svc = New(s.repo)
}

func (s *ProfilesSuite) TearDownTest() {
	s.repo.AssertExpectations(s.T())
}

func admin() context.Context {
	return auth.WithActor(context.Background(), auth.Actor{
		ActingUserID: "a1", EffectiveUserID: "a1", Role: models.RoleAdmin, Name: "Ada", Email: "ada@shipdesk.io",
	})
}

func client(id string) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{
		ActingUserID: id, EffectiveUserID: id, Role: models.RoleClient, Name: "Bola", Email: "bola@x.com",
	})
}

func (s *ProfilesSuite) TestMe_Stored() {
	p := &models.UserProfile{ID: "u1", Email: "bola@x.com", FullName: "Bola A.", Role: models.RoleClient}
	s.repo.On("GetProfile", mock.Anything, "u1").Return(p, nil).Once()

	out, err := s.svc.Me(client("u1"))
	s.Require().NoError(err)
	s.Require().Equal(p, out)
}

func (s *ProfilesSuite) TestMe_MissingRowFallsBackToSession() {
	s.repo.On("GetProfile", mock.Anything, "u1").Return(nil, models.NotFound("profile u1")).Once()

	out, err := s.svc.Me(client("u1"))
	s.Require().NoError(err)
	s.Require().Equal("bola@x.com", out.Email)
	s.Require().Equal(models.RoleClient, out.Role)
}

func (s *ProfilesSuite) TestMe_ImpersonatedFallbackHasNoAdminIdentity() {
	ctx := auth.WithActor(context.Background(), auth.Actor{
		ActingUserID: "a1", EffectiveUserID: "u9", Impersonating: true, Role: models.RoleAdmin, Email: "ada@shipdesk.io",
	})
	s.repo.On("GetProfile", mock.Anything, "u9").Return(nil, models.NotFound("profile u9")).Once()

	out, err := s.svc.Me(ctx)
	s.Require().NoError(err)
	s.Require().Equal("u9", out.ID)
	s.Require().Empty(out.Email)
	s.Require().Equal(models.RoleClient, out.Role)
}

func (s *ProfilesSuite) TestMe_Anonymous() {
	_, err := s.svc.Me(context.Background())
	s.Require().ErrorIs(err, models.ErrUnauthorized)
}

func (s *ProfilesSuite) TestMe_ReadError() {
	s.repo.On("GetProfile", mock.Anything, "u1").Return(nil, errors.New("conn reset")).Once()

	_, err := s.svc.Me(client("u1"))
	s.Require().True(models.IsNotFound(err))
}

func (s *ProfilesSuite) TestUpdateMe_KeepsEmailAndRole() {
	s.repo.On("GetProfile", mock.Anything, "u1").
		Return(&models.UserProfile{ID: "u1", Email: "bola@x.com", Role: models.RoleClient}, nil).Once()
	s.repo.On("UpsertProfile", mock.Anything, mock.MatchedBy(func(p *models.UserProfile) bool {
		return p.ID == "u1" && p.Email == "bola@x.com" && p.Role == models.RoleClient &&
			p.FullName == "Bola Ade" && p.Company == "Acme"
	})).Return(&models.UserProfile{ID: "u1", FullName: "Bola Ade"}, nil).Once()

	out, err := s.svc.UpdateMe(client("u1"), Input{FullName: "  Bola Ade ", Company: "Acme "})
	s.Require().NoError(err)
	s.Require().Equal("Bola Ade", out.FullName)
}

func (s *ProfilesSuite) TestUpdateMe_Failures() {
	_, err := s.svc.UpdateMe(client("u1"), Input{FullName: "  "})
	s.Require().ErrorIs(err, models.ErrInvalidInput)

	s.repo.On("GetProfile", mock.Anything, "u1").Return(&models.UserProfile{ID: "u1"}, nil).Once()
	s.repo.On("UpsertProfile", mock.Anything, mock.Anything).Return(nil, errors.New("constraint")).Once()
	_, err = s.svc.UpdateMe(client("u1"), Input{FullName: "Bola"})
	s.Require().ErrorIs(err, models.ErrPersistence)
}

func (s *ProfilesSuite) TestList() {
	s.repo.On("ListProfiles", mock.Anything, defaultListLimit, 0).
		Return([]*models.UserProfile{{ID: "u1"}, {ID: "u2"}}, nil).Once()

	out, err := s.svc.List(admin(), 0, -5)
	s.Require().NoError(err)
	s.Require().Len(out, 2)

	_, err = s.svc.List(client("u1"), 10, 0)
	s.Require().ErrorIs(err, models.ErrForbidden)
}

func (s *ProfilesSuite) TestSetRole() {
	s.repo.On("UpdateProfileRole", mock.Anything, "u1", models.RoleAdmin).Return(nil).Once()
	s.Require().NoError(s.svc.SetRole(admin(), "u1", models.RoleAdmin))

	s.Require().ErrorIs(s.svc.SetRole(admin(), "u1", "owner"), models.ErrInvalidInput)
	s.Require().ErrorIs(s.svc.SetRole(admin(), "a1", models.RoleClient), models.ErrInvalidInput)
	s.Require().ErrorIs(s.svc.SetRole(client("u1"), "u2", models.RoleAdmin), models.ErrForbidden)
	s.Require().ErrorIs(s.svc.SetRole(context.Background(), "u2", models.RoleAdmin), models.ErrUnauthorized)

	s.repo.On("UpdateProfileRole", mock.Anything, "ghost", models.RoleClient).Return(models.NotFound("profile ghost")).Once()
	s.Require().True(models.IsNotFound(s.svc.SetRole(admin(), "ghost", models.RoleClient)))
}

func (s *ProfilesSuite) TestAdminUpdate() {
	want := models.ProfileUpdate{FullName: "Bola Ade", Email: "bola@corp.com", Company: "Acme", Role: models.RoleAdmin}
	s.repo.On("UpdateProfile", mock.Anything, "u1", want).
		Return(&models.UserProfile{ID: "u1", FullName: "Bola Ade", Email: "bola@corp.com", Role: models.RoleAdmin}, nil).Once()

	out, err := s.svc.AdminUpdate(admin(), "u1", models.ProfileUpdate{
		FullName: " Bola Ade ", Email: " bola@corp.com", Company: "Acme ", Role: models.RoleAdmin,
	})
	s.Require().NoError(err)
	s.Require().Equal(models.RoleAdmin, out.Role)
}

func (s *ProfilesSuite) TestAdminUpdate_Rejected() {
	_, err := s.svc.AdminUpdate(client("u1"), "u2", models.ProfileUpdate{FullName: "X", Role: models.RoleClient})
	s.Require().ErrorIs(err, models.ErrForbidden)

	_, err = s.svc.AdminUpdate(admin(), "u2", models.ProfileUpdate{FullName: " ", Role: models.RoleClient})
	s.Require().ErrorIs(err, models.ErrInvalidInput)

	_, err = s.svc.AdminUpdate(admin(), "u2", models.ProfileUpdate{FullName: "X", Email: "not-an-email", Role: models.RoleClient})
	s.Require().ErrorIs(err, models.ErrInvalidInput)

	_, err = s.svc.AdminUpdate(admin(), "u2", models.ProfileUpdate{FullName: "X", Role: "owner"})
	s.Require().ErrorIs(err, models.ErrInvalidInput)

	_, err = s.svc.AdminUpdate(admin(), "a1", models.ProfileUpdate{FullName: "Ada", Role: models.RoleClient})
	s.Require().ErrorIs(err, models.ErrInvalidInput)
}

func (s *ProfilesSuite) TestAdminUpdate_StorageErrors() {
	s.repo.On("UpdateProfile", mock.Anything, "u2", mock.Anything).Return(nil, models.InvalidInput("email already in use")).Once()
	_, err := s.svc.AdminUpdate(admin(), "u2", models.ProfileUpdate{FullName: "X", Email: "taken@x.com", Role: models.RoleClient})
	s.Require().ErrorIs(err, models.ErrInvalidInput)
	s.Require().NotErrorIs(err, models.ErrPersistence)

	s.repo.On("UpdateProfile", mock.Anything, "ghost", mock.Anything).Return(nil, models.NotFound("profile ghost")).Once()
	_, err = s.svc.AdminUpdate(admin(), "ghost", models.ProfileUpdate{FullName: "X", Role: models.RoleClient})
	s.Require().True(models.IsNotFound(err))

	s.repo.On("UpdateProfile", mock.Anything, "u3", mock.Anything).Return(nil, errors.New("conn reset")).Once()
	_, err = s.svc.AdminUpdate(admin(), "u3", models.ProfileUpdate{FullName: "X", Role: models.RoleClient})
	s.Require().ErrorIs(err, models.ErrPersistence)
}

func (s *ProfilesSuite) TestInvite_StoresAndMails() {
	m := &mailerStub{}
	s.svc.WithMailer(m)
	s.repo.On("UpsertInvite", mock.Anything, models.UserInvite{Email: "new@corp.com", Role: models.RoleAdmin, InvitedBy: "a1"}).
		Return(&models.UserInvite{Email: "new@corp.com", Role: models.RoleAdmin, InvitedBy: "a1"}, nil).Once()

	inv, err := s.svc.Invite(admin(), " New@Corp.com ", models.RoleAdmin)
	s.Require().NoError(err)
	s.Require().Equal("new@corp.com", inv.Email)
	s.Require().Len(m.sent, 1)
	s.Require().Equal("new@corp.com", m.sent[0].To)
	s.Require().Equal("userInvite", m.sent[0].Template)
	s.Require().Contains(m.sent[0].Text, "Ada")
}

func (s *ProfilesSuite) TestInvite_DefaultsToClientAndSurvivesFullQueue() {
	s.svc.WithMailer(&mailerStub{full: true})
	s.repo.On("UpsertInvite", mock.Anything, mock.MatchedBy(func(inv models.UserInvite) bool {
		return inv.Role == models.RoleClient
	})).Return(&models.UserInvite{Email: "c@x.com", Role: models.RoleClient}, nil).Once()

	inv, err := s.svc.Invite(admin(), "c@x.com", "")
	s.Require().NoError(err)
	s.Require().Equal(models.RoleClient, inv.Role)
}

func (s *ProfilesSuite) TestInvite_Rejected() {
	_, err := s.svc.Invite(client("u1"), "c@x.com", models.RoleClient)
	s.Require().ErrorIs(err, models.ErrForbidden)

	_, err = s.svc.Invite(admin(), "nope", models.RoleClient)
	s.Require().ErrorIs(err, models.ErrInvalidInput)

	_, err = s.svc.Invite(admin(), "c@x.com", "owner")
	s.Require().ErrorIs(err, models.ErrInvalidInput)

	s.repo.On("UpsertInvite", mock.Anything, mock.Anything).Return(nil, errors.New("conn reset")).Once()
	_, err = s.svc.Invite(admin(), "c@x.com", models.RoleClient)
	s.Require().ErrorIs(err, models.ErrPersistence)
}

func (s *ProfilesSuite) TestListInvites() {
	s.repo.On("ListInvites", mock.Anything, defaultListLimit).Return([]*models.UserInvite{{Email: "a@x.com"}}, nil).Once()

	out, err := s.svc.ListInvites(admin(), 0)
	s.Require().NoError(err)
	s.Require().Len(out, 1)

	_, err = s.svc.ListInvites(client("u1"), 10)
	s.Require().ErrorIs(err, models.ErrForbidden)
}
