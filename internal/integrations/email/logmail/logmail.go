package logmail

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BearBump/ShipDesk/internal/integrations/email"
)

// Sender ничего не отправляет, только пишет в лог. Для dev-окружения и тестов.
type Sender struct {
	log *slog.Logger

	mu   sync.Mutex
	sent []email.Message
}

func New(log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, m email.Message) error {
	s.log.Info("email (log only)", "to", m.To, "subject", m.Subject, "template", m.Template)
	s.log.Debug("email text", "to", m.To, "text", m.Text)

	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	return nil
}

// Sent: копия отправленных писем.
func (s *Sender) Sent() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.sent...)
}
