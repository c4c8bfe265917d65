package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/BearBump/ShipDesk/config"
	"github.com/BearBump/ShipDesk/internal/api/httpapi"
	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/broker/kafka"
	"github.com/BearBump/ShipDesk/internal/broker/messages"
	"github.com/BearBump/ShipDesk/internal/cache/rediscache"
	"github.com/BearBump/ShipDesk/internal/integrations/email"
	"github.com/BearBump/ShipDesk/internal/integrations/email/logmail"
	"github.com/BearBump/ShipDesk/internal/integrations/email/resendhttp"
	"github.com/BearBump/ShipDesk/internal/integrations/email/smtpmail"
	"github.com/BearBump/ShipDesk/internal/metrics"
	"github.com/BearBump/ShipDesk/internal/realtime"
	"github.com/BearBump/ShipDesk/internal/services/chat"
	"github.com/BearBump/ShipDesk/internal/services/mailer"
	"github.com/BearBump/ShipDesk/internal/services/notify"
	"github.com/BearBump/ShipDesk/internal/services/profiles"
	"github.com/BearBump/ShipDesk/internal/services/shipments"
	"github.com/BearBump/ShipDesk/internal/services/tickets"
	"github.com/BearBump/ShipDesk/internal/storage/pgshipdesk"
)

type apiApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     apiOpts
	server   *httpapi.Server
	scans    *shipments.Service
	consumer *kafka.Consumer
	mailer   *mailer.Mailer

	closers []func()
}

func mustBootstrapAPI() *apiApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	// без swaggerPath отдаётся встроенная спецификация
	swaggerPath := os.Getenv("swaggerPath")

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ShipDesk.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ShipDesk.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "shipdesk-api"
	}
	topic := cfg.Kafka.ShipmentScannedTopicName
	if topic == "" {
		topic = messages.TopicShipmentScanned
	}
	cacheTTL := cfg.ShipDesk.CurrentStatusTTL()
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	profileTimeout := time.Duration(cfg.ShipDesk.ProfileTimeoutSeconds) * time.Second
	if profileTimeout <= 0 {
		profileTimeout = auth.DefaultLookupTimeout
	}
	if cfg.ShipDesk.JWTSecret == "" {
		panic("shipdesk.jwt_secret (or SHIPDESK_JWT_SECRET) is required")
	}

	app := &apiApp{}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)
	app.closers = append(app.closers, st.Close)

	rc := rediscache.Dial(cfg.Redis.Addr())
	app.closers = append(app.closers, func() { _ = rc.Close() })

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	feed := realtime.NewFeed(rc, "")

	sender, limited, closeSender := newSender(cfg)
	if closeSender != nil {
		app.closers = append(app.closers, closeSender)
	}
	app.mailer = mailer.New(sender, newRateLimiter(cfg, rc, limited), m).
		WithSettings(cfg.Email.QueueSize, cfg.Email.Concurrency, time.Duration(cfg.Email.SendTimeoutSeconds)*time.Second).
		WithRetry(retryConfig(cfg.Email))

	dispatcher := notify.New(st, app.mailer, feed, m)

	app.scans = shipments.New(st, dispatcher, rediscache.New(rc, "shipdesk:"), cacheTTL).
		WithFeed(feed).
		WithMetrics(m)
	ticketSvc := tickets.New(st, dispatcher).WithFeed(feed)
	inbox := notify.NewInbox(st, feed)
	resolver := auth.NewResolver(cfg.ShipDesk.JWTSecret, st, profileTimeout)

	app.server = httpapi.New(app.scans, ticketSvc, inbox).
		WithAuth(resolver.Middleware).
		WithProfiles(profiles.New(st).WithMailer(app.mailer)).
		WithChat(chat.New(st).WithFeed(feed)).
		WithFeed(feed).
		WithMetrics(m, reg).
		WithSwagger(swaggerPath)

	app.consumer = kafka.NewConsumer(cfg.Kafka.Brokers(), topic, consumerGroup)

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.opts = apiOpts{
		httpAddr:      httpAddr,
		topic:         topic,
		consumerGroup: consumerGroup,
	}
	return app
}

// newSender выбирает транспорт писем. limited == false — лимит по доменам
// применяет не этот процесс (письма уходят в shipdesk-mailer через Kafka).
func newSender(cfg *config.Config) (sender email.Sender, limited bool, closeFn func()) {
	from := cfg.Email.From
	if from == "" {
		from = cfg.SMTP.From
	}
	switch cfg.Email.Transport {
	case "smtp":
		return smtpmail.New(smtpmail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     from,
		}), true, nil
	case "resend":
		return resendhttp.New(cfg.Email.APIBaseURL, cfg.Email.APIKey, from), true, nil
	case "kafka":
		topic := cfg.Kafka.EmailRequestedTopicName
		if topic == "" {
			topic = messages.TopicEmailRequested
		}
		p := kafka.NewProducer(cfg.Kafka.Brokers())
		return email.NewKafkaSender(p, topic), false, func() { _ = p.Close() }
	default:
		return logmail.New(slog.Default()), false, nil
	}
}

func newRateLimiter(cfg *config.Config, rc *redis.Client, limited bool) mailer.RateLimiter {
	if !limited {
		return nil
	}
	perMin := int64(cfg.Email.RateLimitPerDomainPerMinute)
	if perMin <= 0 {
		perMin = 60
	}
	return rediscache.NewRateLimiter(rc, perMin, time.Minute)
}

func retryConfig(c config.EmailConfig) mailer.RetryConfig {
	return mailer.RetryConfig{
		Backoff1:    time.Duration(c.Backoff1Seconds) * time.Second,
		Backoff2:    time.Duration(c.Backoff2Seconds) * time.Second,
		Backoff3:    time.Duration(c.Backoff3Seconds) * time.Second,
		Jitter:      time.Second,
		MaxAttempts: c.MaxAttempts,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgshipdesk.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgshipdesk.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *apiApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *apiApp) Run() error {
	return runAPI(a.ctx, a.opts, a.server.Router(), a.scans, a.consumer, a.mailer)
}
