package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/realtime"
)

// streamNotifications: новые уведомления текущего (эффективного) пользователя.
func (s *Server) streamNotifications(w http.ResponseWriter, r *http.Request) {
	a := auth.FromContext(r.Context())
	if !a.IsAuthenticated() || a.EffectiveUserID == "" {
		writeError(w, r, models.ErrUnauthorized)
		return
	}
	s.stream(w, r, realtime.TableNotifications, a.EffectiveUserID, realtime.EventInsert)
}

// streamShipment: изменения одного отправления, публично, как и /track.
func (s *Server) streamShipment(w http.ResponseWriter, r *http.Request) {
	ref := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ref")))
	s.stream(w, r, realtime.TableShipments, ref, realtime.EventUpdate, realtime.EventDelete)
}

// stream пишет изменения как server-sent events до отключения клиента.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, table, key string, events ...realtime.Event) {
	if s.feed == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "realtime feed is not configured"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, errors.New("streaming unsupported"))
		return
	}

	ctx := r.Context()
	sub, err := s.feed.Subscribe(ctx, table, key, events...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ping := time.NewTicker(s.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ch, ok := <-sub.C():
			if !ok {
				return
			}
			b, err := json.Marshal(ch)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ch.Event, b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
