package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/broker/kafka"
	"github.com/BearBump/ShipDesk/internal/broker/messages"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/services/shipments"
)

type apiOpts struct {
	httpAddr string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handle kafka.Handler) error
}

type scanApplier interface {
	ApplyScan(ctx context.Context, msg messages.ShipmentScanned) (*shipments.AppendResult, error)
}

type backgroundRunner interface {
	Run(ctx context.Context) error
}

// runAPI поднимает HTTP API, консьюмер сканов и почтовую очередь; живёт до отмены ctx
// или до остановки любого из них.
func runAPI(ctx context.Context, opts apiOpts, handler http.Handler, scans scanApplier, consumer kafkaConsumer, mail backgroundRunner) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- serveHTTP(ctx, lis, handler)
	}()

	if mail != nil {
		go func() {
			_ = mail.Run(ctx)
		}()
	}

	// остановка консьюмера завершает весь процесс: после рестарта чтение
	// продолжится с последнего закоммиченного скана
	consumerErr := make(chan error, 1)
	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			consumerErr <- consumer.Consume(ctx, scanHandler(ctx, scans))
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-consumerErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("kafka consumer stopped", "topic", opts.topic, "error", err)
		return errors.Wrap(err, "scan consumer stopped")
	}
}

// scanHandler: битые сообщения и сканы несуществующих отправлений коммитятся
// без обработки, ошибка записи оставляет сообщение незакоммиченным.
func scanHandler(ctx context.Context, scans scanApplier) func(key, value []byte) error {
	return func(_ []byte, value []byte) error {
		var m messages.ShipmentScanned
		if err := json.Unmarshal(value, &m); err != nil {
			slog.Warn("bad scan payload skipped", "error", err.Error())
			return kafka.ErrSkip
		}
		res, err := scans.ApplyScan(ctx, m)
		switch {
		case err == nil:
			slog.Info("scan applied", "tracking_number", m.TrackingNumber, "status", m.Status, "appended", res.Appended)
			return nil
		case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrNotFound):
			slog.Warn("scan skipped", "tracking_number", m.TrackingNumber, "error", err.Error())
			return kafka.ErrSkip
		default:
			return err
		}
	}
}

func serveHTTP(ctx context.Context, lis net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP API listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
