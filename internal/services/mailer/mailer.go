package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/integrations/email"
	"github.com/BearBump/ShipDesk/internal/metrics"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, int64, error)
}

// SendError: письмо, от которого mailer отказался. Уходит в Errors().
type SendError struct {
	To       string
	Template string
	Attempts int
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("email to %s (%s) failed after %d attempt(s): %v", e.To, e.Template, e.Attempts, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

type job struct {
	msg     email.Message
	attempt int
}

// Mailer: асинхронная отправка писем. Enqueue никогда не блокирует вызывающего,
// отправка идёт пулом воркеров в Run.
type Mailer struct {
	sender  email.Sender
	rl      RateLimiter
	metrics *metrics.Metrics
	planner *Planner

	queue       chan job
	errCh       chan error
	concurrency int
	sendTimeout time.Duration
	now         func() time.Time

	startedAtUnixNano int64
	totalQueued       atomic.Int64
	totalSent         atomic.Int64
	totalFailed       atomic.Int64
	totalDropped      atomic.Int64
	totalRetries      atomic.Int64
	inFlight          atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(sender email.Sender, rl RateLimiter, m *metrics.Metrics) *Mailer {
	if m == nil {
		m = metrics.NewDiscard()
	}
	return &Mailer{
		sender:            sender,
		rl:                rl,
		metrics:           m,
		planner:           NewPlanner(DefaultRetryConfig(), nil),
		queue:             make(chan job, 256),
		errCh:             make(chan error, 64),
		concurrency:       4,
		sendTimeout:       30 * time.Second,
		now:               func() time.Time { return time.Now().UTC() },
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

// WithSettings вызывается до Run: пересоздаёт очередь.
func (m *Mailer) WithSettings(queueSize, concurrency int, sendTimeout time.Duration) *Mailer {
	if queueSize > 0 {
		m.queue = make(chan job, queueSize)
	}
	if concurrency > 0 {
		m.concurrency = concurrency
	}
	if sendTimeout > 0 {
		m.sendTimeout = sendTimeout
	}
	return m
}

func (m *Mailer) WithRetry(cfg RetryConfig) *Mailer {
	m.planner = NewPlanner(cfg, nil)
	return m
}

// Errors: письма, от которых отказались. Неблокирующий: если никто не читает, ошибки теряются (в логе и метриках они есть).
func (m *Mailer) Errors() <-chan error { return m.errCh }

// Enqueue ставит письмо в очередь. false: очередь полна, письмо отброшено.
func (m *Mailer) Enqueue(msg email.Message) bool {
	return m.push(job{msg: msg}, true)
}

func (m *Mailer) push(j job, fresh bool) bool {
	select {
	case m.queue <- j:
		if fresh {
			m.totalQueued.Add(1)
			m.metrics.EmailsQueued.Inc()
		}
		m.metrics.EmailQueueLength.Set(float64(len(m.queue)))
		return true
	default:
		m.totalDropped.Add(1)
		m.metrics.EmailsDropped.Inc()
		slog.Warn("mailer queue full, email dropped", "to", j.msg.To, "template", j.msg.Template)
		return false
	}
}

type Stats struct {
	StartedAt    time.Time `json:"startedAt"`
	TotalQueued  int64     `json:"totalQueued"`
	TotalSent    int64     `json:"totalSent"`
	TotalFailed  int64     `json:"totalFailed"`
	TotalDropped int64     `json:"totalDropped"`
	TotalRetries int64     `json:"totalRetries"`
	InFlight     int64     `json:"inFlight"`
	QueueLength  int       `json:"queueLength"`
	LastError    string    `json:"lastError,omitempty"`
}

func (m *Mailer) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, m.startedAtUnixNano).UTC(),
		TotalQueued:  m.totalQueued.Load(),
		TotalSent:    m.totalSent.Load(),
		TotalFailed:  m.totalFailed.Load(),
		TotalDropped: m.totalDropped.Load(),
		TotalRetries: m.totalRetries.Load(),
		InFlight:     m.inFlight.Load(),
		QueueLength:  len(m.queue),
	}
	m.lastErrorMu.Lock()
	st.LastError = m.lastError
	m.lastErrorMu.Unlock()
	return st
}

func (m *Mailer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < m.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-m.queue:
					m.metrics.EmailQueueLength.Set(float64(len(m.queue)))
					m.handle(ctx, j)
				}
			}
		}()
	}
	wg.Wait()

	if n := len(m.queue); n > 0 {
		slog.Warn("mailer stopped with unsent emails", "count", n)
	}
	return ctx.Err()
}

// outcome одной попытки: err == nil — отправлено; wait > 0 — повторить позже.
type outcome struct {
	err  error
	wait time.Duration
	// limited: попытка не состоялась из-за rate limit, счётчик попыток не растёт
	limited bool
}

func (m *Mailer) attempt(ctx context.Context, j *job) outcome {
	m.inFlight.Add(1)
	defer m.inFlight.Add(-1)

	now := m.now()
	if m.rl != nil {
		if domain := j.msg.Domain(); domain != "" {
			key := fmt.Sprintf("rl:email:%s:%s", domain, now.Format("200601021504"))
			allowed, n, err := m.rl.Allow(ctx, key)
			if err != nil {
				// без redis письма всё равно уходят
				slog.Warn("mailer rate limiter unavailable", "error", err.Error())
			} else if !allowed {
				slog.Warn("email rate limit exceeded", "domain", domain, "count", n)
				return outcome{wait: untilNextMinute(now), limited: true}
			}
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	err := m.sender.Send(sendCtx, j.msg)
	cancel()
	if err == nil {
		return outcome{}
	}

	j.attempt++
	if m.planner.ShouldRetry(j.attempt, err) && ctx.Err() == nil {
		return outcome{err: err, wait: m.planner.BackoffDelay(j.attempt)}
	}
	return outcome{err: err}
}

func (m *Mailer) handle(ctx context.Context, j job) {
	out := m.attempt(ctx, &j)
	switch {
	case out.err == nil && out.wait == 0:
		m.sent()
	case out.wait > 0:
		if !out.limited {
			m.retried(j, out.err)
		}
		time.AfterFunc(out.wait, func() { m.push(j, false) })
	default:
		m.failed(j, out.err)
	}
}

// Deliver отправляет письмо синхронно, с ожиданием rate limit и повторами.
// Используется консьюмером shipdesk-mailer: commit в Kafka только после отправки.
func (m *Mailer) Deliver(ctx context.Context, msg email.Message) error {
	j := job{msg: msg}
	for {
		out := m.attempt(ctx, &j)
		if out.err == nil && out.wait == 0 {
			m.sent()
			return nil
		}
		if out.wait == 0 {
			m.failed(j, out.err)
			return &SendError{To: msg.To, Template: msg.Template, Attempts: j.attempt, Err: out.err}
		}
		if !out.limited {
			m.retried(j, out.err)
		}

		t := time.NewTimer(out.wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Wrap(ctx.Err(), "deliver email")
		case <-t.C:
		}
	}
}

func (m *Mailer) sent() {
	m.totalSent.Add(1)
	m.metrics.EmailsSent.Inc()
}

func (m *Mailer) retried(j job, err error) {
	m.totalRetries.Add(1)
	m.metrics.EmailRetries.Inc()
	slog.Warn("email send failed, will retry", "to", j.msg.To, "attempt", j.attempt, "error", err.Error())
}

func (m *Mailer) failed(j job, err error) {
	reason := "exhausted"
	if errors.Is(err, email.ErrPermanent) {
		reason = "rejected"
	}
	m.totalFailed.Add(1)
	m.metrics.EmailsFailed.WithLabelValues(reason).Inc()
	m.lastErrorMu.Lock()
	m.lastError = err.Error()
	m.lastErrorMu.Unlock()

	slog.Error("email send failed", "to", j.msg.To, "template", j.msg.Template, "attempts", j.attempt, "error", err.Error())

	select {
	case m.errCh <- &SendError{To: j.msg.To, Template: j.msg.Template, Attempts: j.attempt, Err: err}:
	default:
	}
}
