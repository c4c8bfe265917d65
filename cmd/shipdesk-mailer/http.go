package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BearBump/ShipDesk/config"
	"github.com/BearBump/ShipDesk/internal/services/mailer"
)

type mailerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	mailer   *mailer.Mailer
	cfg      *config.Config
	gatherer prometheus.Gatherer
}

func runMailerHTTPServer(ctx context.Context, opts mailerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.mailer == nil {
			_, _ = w.Write([]byte(`{"error":"mailer not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.mailer.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// только рабочие параметры, без ключей и паролей
		e := opts.cfg.Email
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transport":                   e.Transport,
			"rateLimitPerDomainPerMinute": e.RateLimitPerDomainPerMinute,
			"delivery":                    "sequential",
			"sendTimeoutSeconds":          e.SendTimeoutSeconds,
			"backoffSeconds":              []int{e.Backoff1Seconds, e.Backoff2Seconds, e.Backoff3Seconds},
			"maxAttempts":                 e.MaxAttempts,
		})
	})

	if opts.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.gatherer, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
