package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/realtime"
)

type repoMock struct {
	mock.Mock
}

func (m *repoMock) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*models.UserProfile)
	return out, args.Error(1)
}

func (m *repoMock) CreateChatSession(ctx context.Context, cs *models.ChatSession) (*models.ChatSession, error) {
	args := m.Called(ctx, cs)
	out, _ := args.Get(0).(*models.ChatSession)
	return out, args.Error(1)
}

func (m *repoMock) GetChatSession(ctx context.Context, id string) (*models.ChatSession, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).(*models.ChatSession)
	return out, args.Error(1)
}

func (m *repoMock) ListChatSessions(ctx context.Context, userID *string, limit int) ([]*models.ChatSession, error) {
	args := m.Called(ctx, userID, limit)
	out, _ := args.Get(0).([]*models.ChatSession)
	return out, args.Error(1)
}

func (m *repoMock) UpdateChatSessionStatus(ctx context.Context, id, status string) (*models.ChatSession, error) {
	args := m.Called(ctx, id, status)
	out, _ := args.Get(0).(*models.ChatSession)
	return out, args.Error(1)
}

func (m *repoMock) CreateChatMessage(ctx context.Context, msg *models.ChatMessage) (*models.ChatMessage, error) {
	args := m.Called(ctx, msg)
	out, _ := args.Get(0).(*models.ChatMessage)
	return out, args.Error(1)
}

func (m *repoMock) ListChatMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	args := m.Called(ctx, sessionID)
	out, _ := args.Get(0).([]*models.ChatMessage)
	return out, args.Error(1)
}

type feedStub struct {
	changes []realtime.Change
}

func (f *feedStub) Publish(ctx context.Context, ch realtime.Change) error {
	f.changes = append(f.changes, ch)
	return nil
}

func (f *feedStub) tables() []string {
	out := make([]string, 0, len(f.changes))
	for _, ch := range f.changes {
		out = append(out, ch.Table+":"+string(ch.Event))
	}
	return out
}

const sessionID = "1f0e2c7a-3b4d-4e5f-8a9b-0c1d2e3f4a5b"

func ptr(s string) *string { return &s }

func session(status, owner string) *models.ChatSession {
	return &models.ChatSession{ID: sessionID, UserID: owner, UserName: "Ada", UserEmail: "ada@x.com", Status: status}
}

func customer(id string) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ActingUserID: id, EffectiveUserID: id, Role: models.RoleClient, Name: "Ada", Email: "ada@x.com"})
}

func agent() context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ActingUserID: "adm1", EffectiveUserID: "adm1", Role: models.RoleAdmin, Name: "Sam"})
}

func impersonating(uid string) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{ActingUserID: "adm1", EffectiveUserID: uid, Impersonating: true, Role: models.RoleAdmin, Name: "Sam", Email: "sam@ops.com"})
}

type ChatSuite struct {
	suite.Suite

	repo *repoMock
	feed *feedStub
	svc  *Service
}

func (s *ChatSuite) SetupTest() {
	s.repo = &repoMock{}
	s.feed = &feedStub{}
	s.svc = New(s.repo).WithFeed(s.feed)
}

func (s *ChatSuite) TestStartSession_ReusesActive() {
	active := session(models.ChatStatusActive, "U1")
	s.repo.On("ListChatSessions", mock.Anything, ptr("U1"), 1).Return([]*models.ChatSession{active}, nil).Once()

	cs, err := s.svc.StartSession(customer("U1"))
	s.Require().NoError(err)
	s.Equal(active, cs)
	s.repo.AssertNotCalled(s.T(), "CreateChatSession", mock.Anything, mock.Anything)
	s.Empty(s.feed.changes)
}

func (s *ChatSuite) TestStartSession_OpensNewAfterClosed() {
	s.repo.On("ListChatSessions", mock.Anything, ptr("U1"), 1).
		Return([]*models.ChatSession{session(models.ChatStatusClosed, "U1")}, nil).Once()
	s.repo.On("GetProfile", mock.Anything, "U1").
		Return(&models.UserProfile{ID: "U1", Email: "ada@corp.com", FullName: "Ada Lovelace"}, nil).Once()
	s.repo.On("CreateChatSession", mock.Anything, mock.MatchedBy(func(cs *models.ChatSession) bool {
		return cs.UserID == "U1" && cs.UserName == "Ada Lovelace" && cs.UserEmail == "ada@corp.com" && cs.Status == models.ChatStatusActive
	})).Return(session(models.ChatStatusActive, "U1"), nil).Once()

	cs, err := s.svc.StartSession(customer("U1"))
	s.Require().NoError(err)
	s.Equal(models.ChatStatusActive, cs.Status)
	s.Equal([]string{"chat_sessions:insert"}, s.feed.tables())
	s.repo.AssertExpectations(s.T())
}

func (s *ChatSuite) TestStartSession_ImpersonationDoesNotLeakAdminContact() {
	s.repo.On("ListChatSessions", mock.Anything, ptr("U7"), 1).Return([]*models.ChatSession{}, nil).Once()
	s.repo.On("GetProfile", mock.Anything, "U7").Return(nil, models.NotFound("profile U7")).Once()
	s.repo.On("CreateChatSession", mock.Anything, mock.MatchedBy(func(cs *models.ChatSession) bool {
		return cs.UserID == "U7" && cs.UserEmail == "" && cs.UserName == "A Customer"
	})).Return(session(models.ChatStatusActive, "U7"), nil).Once()

	_, err := s.svc.StartSession(impersonating("U7"))
	s.Require().NoError(err)
	s.repo.AssertExpectations(s.T())
}

func (s *ChatSuite) TestStartSession_Failures() {
	_, err := s.svc.StartSession(context.Background())
	s.Require().ErrorIs(err, models.ErrUnauthorized)

	s.repo.On("ListChatSessions", mock.Anything, ptr("U1"), 1).Return([]*models.ChatSession{}, nil).Once()
	s.repo.On("GetProfile", mock.Anything, "U1").Return(nil, errors.New("timeout")).Once()
	s.repo.On("CreateChatSession", mock.Anything, mock.MatchedBy(func(cs *models.ChatSession) bool {
		return cs.UserEmail == "ada@x.com" && cs.UserName == "Ada"
	})).Return(nil, errors.New("conn refused")).Once()

	_, err = s.svc.StartSession(customer("U1"))
	s.Require().ErrorIs(err, models.ErrPersistence)
	s.Empty(s.feed.changes)
}

func (s *ChatSuite) TestSendMessage_CustomerReactivatesSession() {
	touched := session(models.ChatStatusActive, "U1")
	msg := &models.ChatMessage{ID: "m1", SessionID: sessionID, SenderType: models.SenderTypeCustomer}
	s.repo.On("GetChatSession", mock.Anything, sessionID).Return(session(models.ChatStatusClosed, "U1"), nil).Once()
	s.repo.On("CreateChatMessage", mock.Anything, mock.MatchedBy(func(m *models.ChatMessage) bool {
		return m.SessionID == sessionID && m.SenderType == models.SenderTypeCustomer && m.SenderName == "Ada" && m.Message == "still there?"
	})).Return(msg, nil).Once()
	s.repo.On("UpdateChatSessionStatus", mock.Anything, sessionID, models.ChatStatusActive).Return(touched, nil).Once()

	res, err := s.svc.SendMessage(customer("U1"), sessionID, " still there? ")
	s.Require().NoError(err)
	s.Empty(res.Warning)
	s.Equal(touched, res.Session)
	s.Equal([]string{"chat_messages:insert", "chat_sessions:update"}, s.feed.tables())
	s.Equal(sessionID, s.feed.changes[0].Key)
}

func (s *ChatSuite) TestSendMessage_AgentAndTouchWarning() {
	s.repo.On("GetChatSession", mock.Anything, sessionID).Return(session(models.ChatStatusActive, "U1"), nil).Once()
	s.repo.On("CreateChatMessage", mock.Anything, mock.MatchedBy(func(m *models.ChatMessage) bool {
		return m.SenderType == models.SenderTypeAdmin && m.SenderName == "Sam"
	})).Return(&models.ChatMessage{ID: "m2"}, nil).Once()
	s.repo.On("UpdateChatSessionStatus", mock.Anything, sessionID, models.ChatStatusActive).Return(nil, errors.New("timeout")).Once()

	res, err := s.svc.SendMessage(agent(), sessionID, "hello")
	s.Require().NoError(err)
	s.Equal(touchWarning, res.Warning)
	s.Equal("m2", res.Message.ID)
	s.Equal([]string{"chat_messages:insert"}, s.feed.tables())
}

func (s *ChatSuite) TestSendMessage_ImpersonatingAdminWritesAsCustomer() {
	s.repo.On("GetChatSession", mock.Anything, sessionID).Return(session(models.ChatStatusActive, "U1"), nil).Once()
	s.repo.On("CreateChatMessage", mock.Anything, mock.MatchedBy(func(m *models.ChatMessage) bool {
		return m.SenderType == models.SenderTypeCustomer
	})).Return(&models.ChatMessage{ID: "m3"}, nil).Once()
	s.repo.On("UpdateChatSessionStatus", mock.Anything, sessionID, models.ChatStatusActive).Return(session(models.ChatStatusActive, "U1"), nil).Once()

	_, err := s.svc.SendMessage(impersonating("U1"), sessionID, "hi")
	s.Require().NoError(err)
	s.repo.AssertExpectations(s.T())
}

func (s *ChatSuite) TestSendMessage_Failures() {
	_, err := s.svc.SendMessage(context.Background(), sessionID, "hi")
	s.Require().ErrorIs(err, models.ErrUnauthorized)

	_, err = s.svc.SendMessage(customer("U1"), sessionID, "  ")
	s.Require().ErrorIs(err, models.ErrInvalidInput)

	s.repo.On("GetChatSession", mock.Anything, sessionID).Return(session(models.ChatStatusActive, "U2"), nil).Once()
	_, err = s.svc.SendMessage(customer("U1"), sessionID, "hi")
	s.Require().ErrorIs(err, models.ErrForbidden)

	s.repo.On("GetChatSession", mock.Anything, "missing").Return(nil, models.NotFound("chat session missing")).Once()
	_, err = s.svc.SendMessage(customer("U1"), "missing", "hi")
	s.Require().ErrorIs(err, models.ErrNotFound)

	s.repo.On("GetChatSession", mock.Anything, sessionID).Return(session(models.ChatStatusActive, "U1"), nil).Once()
	s.repo.On("CreateChatMessage", mock.Anything, mock.Anything).Return(nil, errors.New("constraint")).Once()
	_, err = s.svc.SendMessage(customer("U1"), sessionID, "hi")
	s.Require().ErrorIs(err, models.ErrPersistence)
	s.repo.AssertNotCalled(s.T(), "UpdateChatSessionStatus", mock.Anything, mock.Anything, mock.Anything)
	s.Empty(s.feed.changes)
}

func (s *ChatSuite) TestSetStatus() {
	closed := session(models.ChatStatusClosed, "U1")
	s.repo.On("GetChatSession", mock.Anything, sessionID).Return(session(models.ChatStatusActive, "U1"), nil).Twice()
	s.repo.On("UpdateChatSessionStatus", mock.Anything, sessionID, models.ChatStatusClosed).Return(closed, nil).Once()

	out, err := s.svc.SetStatus(customer("U1"), sessionID, models.ChatStatusClosed)
	s.Require().NoError(err)
	s.Equal(models.ChatStatusClosed, out.Status)
	s.Equal([]string{"chat_sessions:update"}, s.feed.tables())

	_, err = s.svc.SetStatus(customer("U9"), sessionID, models.ChatStatusClosed)
	s.Require().ErrorIs(err, models.ErrForbidden)

	_, err = s.svc.SetStatus(agent(), sessionID, "archived")
	s.Require().ErrorIs(err, models.ErrInvalidInput)
}

func (s *ChatSuite) TestGetSession_WithMessages() {
	msgs := []*models.ChatMessage{{ID: "m1"}, {ID: "m2"}}
	s.repo.On("GetChatSession", mock.Anything, sessionID).Return(session(models.ChatStatusActive, "U1"), nil).Twice()
	s.repo.On("ListChatMessages", mock.Anything, sessionID).Return(msgs, nil).Once()

	conv, err := s.svc.GetSession(agent(), sessionID)
	s.Require().NoError(err)
	s.Len(conv.Messages, 2)

	_, err = s.svc.GetSession(impersonating("U2"), sessionID)
	s.Require().ErrorIs(err, models.ErrForbidden)
}

func (s *ChatSuite) TestListSessions_ScopedByRole() {
	s.repo.On("ListChatSessions", mock.Anything, (*string)(nil), 20).Return([]*models.ChatSession{}, nil).Once()
	s.repo.On("ListChatSessions", mock.Anything, ptr("U1"), 20).Return([]*models.ChatSession{session(models.ChatStatusActive, "U1")}, nil).Twice()

	_, err := s.svc.ListSessions(agent(), 20)
	s.Require().NoError(err)
	out, err := s.svc.ListSessions(customer("U1"), 20)
	s.Require().NoError(err)
	s.Len(out, 1)
	_, err = s.svc.ListSessions(impersonating("U1"), 20)
	s.Require().NoError(err)
	s.repo.AssertExpectations(s.T())
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, new(ChatSuite))
}
