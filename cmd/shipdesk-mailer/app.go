package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/BearBump/ShipDesk/config"
	"github.com/BearBump/ShipDesk/internal/broker/kafka"
	"github.com/BearBump/ShipDesk/internal/broker/messages"
	"github.com/BearBump/ShipDesk/internal/cache/rediscache"
	"github.com/BearBump/ShipDesk/internal/integrations/email"
	"github.com/BearBump/ShipDesk/internal/integrations/email/logmail"
	"github.com/BearBump/ShipDesk/internal/integrations/email/resendhttp"
	"github.com/BearBump/ShipDesk/internal/integrations/email/smtpmail"
	"github.com/BearBump/ShipDesk/internal/metrics"
	"github.com/BearBump/ShipDesk/internal/services/mailer"
)

type kafkaConsumer interface {
	Consume(ctx context.Context, handle kafka.Handler) error
	Close() error
}

type mailerFactories struct {
	newSender      func(cfg *config.Config) email.Sender
	newRateLimiter func(cfg *config.Config) (rl mailer.RateLimiter, closeFn func())
	newConsumer    func(cfg *config.Config) kafkaConsumer
}

func defaultMailerFactories() mailerFactories {
	return mailerFactories{
		newSender: func(cfg *config.Config) email.Sender {
			from := cfg.Email.From
			if from == "" {
				from = cfg.SMTP.From
			}
			switch cfg.Email.Transport {
			case "resend":
				return resendhttp.New(cfg.Email.APIBaseURL, cfg.Email.APIKey, from)
			case "log":
				return logmail.New(slog.Default())
			default:
				// "kafka" на стороне API означает, что реально шлёт этот процесс
				return smtpmail.New(smtpmail.Config{
					Host:     cfg.SMTP.Host,
					Port:     cfg.SMTP.Port,
					Username: cfg.SMTP.Username,
					Password: cfg.SMTP.Password,
					From:     from,
				})
			}
		},
		newRateLimiter: func(cfg *config.Config) (mailer.RateLimiter, func()) {
			perMin := int64(cfg.Email.RateLimitPerDomainPerMinute)
			if perMin <= 0 {
				perMin = 60
			}
			rc := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
			return rediscache.NewRateLimiter(rc, perMin, time.Minute), func() { _ = rc.Close() }
		},
		newConsumer: func(cfg *config.Config) kafkaConsumer {
			topic := cfg.Kafka.EmailRequestedTopicName
			if topic == "" {
				topic = messages.TopicEmailRequested
			}
			group := cfg.ShipDesk.MailerConsumerGroup
			if group == "" {
				group = "shipdesk-mailer"
			}
			return kafka.NewConsumer(cfg.Kafka.Brokers(), topic, group)
		},
	}
}

func RunMailer(ctx context.Context, cfg *config.Config, f mailerFactories, reg *prometheus.Registry) error {
	rl, closeRL := f.newRateLimiter(cfg)
	if closeRL != nil {
		defer closeRL()
	}

	// письма идут по одному из консьюмера через Deliver, очередь и пул воркеров здесь не участвуют
	ml := mailer.New(f.newSender(cfg), rl, metrics.New(reg)).
		WithSettings(0, 0, time.Duration(cfg.Email.SendTimeoutSeconds)*time.Second).
		WithRetry(mailer.RetryConfig{
			Backoff1:    time.Duration(cfg.Email.Backoff1Seconds) * time.Second,
			Backoff2:    time.Duration(cfg.Email.Backoff2Seconds) * time.Second,
			Backoff3:    time.Duration(cfg.Email.Backoff3Seconds) * time.Second,
			Jitter:      time.Second,
			MaxAttempts: cfg.Email.MaxAttempts,
		})

	httpAddr := cfg.ShipDesk.MailerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}
	go func() {
		if err := runMailerHTTPServer(ctx, mailerHTTPOpts{httpAddr: httpAddr, mailer: ml, cfg: cfg, gatherer: reg}); err != nil && ctx.Err() == nil {
			slog.Error("mailer http server stopped", "error", err.Error())
		}
	}()

	consumer := f.newConsumer(cfg)
	defer func() { _ = consumer.Close() }()

	slog.Info("mailer started", "transport", cfg.Email.Transport)
	return consumer.Consume(ctx, deliverHandler(ctx, ml))
}

type deliverer interface {
	Deliver(ctx context.Context, msg email.Message) error
}

// deliverHandler: письмо коммитится после отправки или окончательного отказа.
// Незакоммиченным остаётся только то, что прервано остановкой процесса.
func deliverHandler(ctx context.Context, d deliverer) func(key, value []byte) error {
	return func(_ []byte, value []byte) error {
		var req messages.EmailRequested
		if err := json.Unmarshal(value, &req); err != nil {
			slog.Warn("bad email request skipped", "error", err.Error())
			return kafka.ErrSkip
		}
		msg := email.FromRequested(req)
		if msg.To == "" {
			slog.Warn("email request without recipient skipped", "template", msg.Template)
			return kafka.ErrSkip
		}

		err := d.Deliver(ctx, msg)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return errors.Wrap(err, "mailer stopping")
		default:
			slog.Error("email dropped after retries", "to", msg.To, "template", msg.Template, "error", err.Error())
			return kafka.ErrSkip
		}
	}
}
