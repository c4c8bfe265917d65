package mailer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/BearBump/ShipDesk/internal/integrations/email"
)

type randMock struct {
	mock.Mock
}

func (m *randMock) Intn(n int) int {
	args := m.Called(n)
	return args.Int(0)
}

type PlannerSuite struct {
	suite.Suite
}

func (s *PlannerSuite) TestBackoffDelay_NoJitter() {
	p := NewPlanner(RetryConfig{Backoff1: time.Second, Backoff2: 2 * time.Second, Backoff3: 3 * time.Second}, nil)
	s.Equal(time.Second, p.BackoffDelay(0))
	s.Equal(time.Second, p.BackoffDelay(1))
	s.Equal(2*time.Second, p.BackoffDelay(2))
	s.Equal(3*time.Second, p.BackoffDelay(3))
	s.Equal(3*time.Second, p.BackoffDelay(100))
}

func (s *PlannerSuite) TestBackoffDelay_JitterUsesRand() {
	r := &randMock{}
	r.On("Intn", 1001).Return(250).Once()

	p := NewPlanner(DefaultRetryConfig(), r)
	s.Equal(2*time.Second+250*time.Millisecond, p.BackoffDelay(1))
	r.AssertExpectations(s.T())
}

func (s *PlannerSuite) TestBackoffDelay_SharedAcrossGoroutines() {
	p := NewPlanner(RetryConfig{Backoff1: time.Second, Jitter: time.Second}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				d := p.BackoffDelay(1)
				s.GreaterOrEqual(d, time.Second)
				s.LessOrEqual(d, 2*time.Second)
			}
		}()
	}
	wg.Wait()
}

func (s *PlannerSuite) TestShouldRetry() {
	p := NewPlanner(RetryConfig{MaxAttempts: 3}, nil)
	transient := errors.New("timeout")

	s.True(p.ShouldRetry(1, transient))
	s.True(p.ShouldRetry(2, transient))
	s.False(p.ShouldRetry(3, transient))
	s.False(p.ShouldRetry(1, nil))
	s.False(p.ShouldRetry(1, email.ErrPermanent))
}

func (s *PlannerSuite) TestUntilNextMinute() {
	now := time.Date(2025, 1, 1, 10, 0, 45, 0, time.UTC)
	s.Equal(15*time.Second, untilNextMinute(now))
}

func TestPlannerSuite(t *testing.T) {
	suite.Run(t, new(PlannerSuite))
}
