package smtpmail

import (
	"context"

	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"

	"github.com/BearBump/ShipDesk/internal/integrations/email"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Sender struct {
	d    dialer
	from string
}

func New(cfg Config) *Sender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Sender{
		d:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from: cfg.From,
	}
}

func newWithDialer(d dialer, from string) *Sender {
	return &Sender{d: d, from: from}
}

func (s *Sender) build(m email.Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", s.from)
	gm.SetHeader("To", m.To)
	gm.SetHeader("Subject", m.Subject)
	gm.SetBody("text/plain", m.Text)
	if m.HTML != "" {
		gm.AddAlternative("text/html", m.HTML)
	}
	return gm
}

// Send не умеет прерываться по ctx посреди SMTP-сессии, проверяет его только до отправки.
func (s *Sender) Send(ctx context.Context, m email.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.To == "" {
		return errors.Wrap(email.ErrPermanent, "empty recipient")
	}
	if err := s.d.DialAndSend(s.build(m)); err != nil {
		return errors.Wrap(err, "smtp send")
	}
	return nil
}
