package mailer

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/integrations/email"
)

type Rand interface {
	Intn(n int) int
}

type RetryConfig struct {
	Backoff1 time.Duration // default: 2 seconds
	Backoff2 time.Duration // default: 10 seconds
	Backoff3 time.Duration // default: 30 seconds

	Jitter      time.Duration // default: 1 second
	MaxAttempts int           // default: 4
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Backoff1:    2 * time.Second,
		Backoff2:    10 * time.Second,
		Backoff3:    30 * time.Second,
		Jitter:      time.Second,
		MaxAttempts: 4,
	}
}

// Planner общий для всех воркеров Mailer, доступ к r под mu.
type Planner struct {
	cfg RetryConfig

	mu sync.Mutex
	r  Rand
}

func NewPlanner(cfg RetryConfig, r Rand) *Planner {
	def := DefaultRetryConfig()
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

// BackoffDelay: пауза перед попыткой номер attempt+1 (attempt: уже сделанные попытки).
func (p *Planner) BackoffDelay(attempt int) time.Duration {
	var d time.Duration
	switch {
	case attempt <= 1:
		d = p.cfg.Backoff1
	case attempt == 2:
		d = p.cfg.Backoff2
	default:
		d = p.cfg.Backoff3
	}
	if p.cfg.Jitter > 0 {
		d += time.Duration(p.jitterMillis()) * time.Millisecond
	}
	return d
}

func (p *Planner) jitterMillis() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.r.Intn(int(p.cfg.Jitter/time.Millisecond) + 1)
}

// ShouldRetry: окончательный отказ провайдера не повторяем.
func (p *Planner) ShouldRetry(attempt int, err error) bool {
	if err == nil || errors.Is(err, email.ErrPermanent) {
		return false
	}
	return attempt < p.cfg.MaxAttempts
}

// untilNextMinute: сколько ждать до начала следующего окна rate limit.
func untilNextMinute(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}
