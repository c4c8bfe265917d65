// Package httpapi: REST-поверхность ShipDesk поверх chi.
package httpapi

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/BearBump/ShipDesk/internal/metrics"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/realtime"
	"github.com/BearBump/ShipDesk/internal/services/chat"
	"github.com/BearBump/ShipDesk/internal/services/profiles"
	"github.com/BearBump/ShipDesk/internal/services/shipments"
	"github.com/BearBump/ShipDesk/internal/services/tickets"
)

//go:embed swagger.json
var swaggerDoc []byte

type ShipmentService interface {
	CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error)
	GetShipment(ctx context.Context, ref string) (*models.Shipment, error)
	ListShipments(ctx context.Context, limit int) ([]*models.Shipment, error)
	UpdateShipment(ctx context.Context, ref string, p models.ShipmentPatch) (*models.Shipment, error)
	AppendEvent(ctx context.Context, ref, status, location, note string) (*shipments.AppendResult, error)
	TogglePayment(ctx context.Context, ref string) (*models.Shipment, error)
	DeleteShipment(ctx context.Context, ref string) error
}

type TicketService interface {
	CreateTicket(ctx context.Context, in models.TicketCreateInput) (*models.SupportTicket, error)
	AddReply(ctx context.Context, ticketID, message string) (*tickets.ReplyResult, error)
	UpdateStatus(ctx context.Context, ticketID, status string) (*models.SupportTicket, error)
	GetTicket(ctx context.Context, ticketID string) (*tickets.Thread, error)
	ListTickets(ctx context.Context, limit int) ([]*models.SupportTicket, error)
}

type Inbox interface {
	List(ctx context.Context) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
}

type ProfileService interface {
	Me(ctx context.Context) (*models.UserProfile, error)
	UpdateMe(ctx context.Context, in profiles.Input) (*models.UserProfile, error)
	List(ctx context.Context, limit, offset int) ([]*models.UserProfile, error)
	SetRole(ctx context.Context, id, role string) error
	AdminUpdate(ctx context.Context, id string, u models.ProfileUpdate) (*models.UserProfile, error)
	Invite(ctx context.Context, email, role string) (*models.UserInvite, error)
	ListInvites(ctx context.Context, limit int) ([]*models.UserInvite, error)
}

type ChatService interface {
	StartSession(ctx context.Context) (*models.ChatSession, error)
	ListSessions(ctx context.Context, limit int) ([]*models.ChatSession, error)
	GetSession(ctx context.Context, sessionID string) (*chat.Conversation, error)
	SendMessage(ctx context.Context, sessionID, message string) (*chat.MessageResult, error)
	SetStatus(ctx context.Context, sessionID, status string) (*models.ChatSession, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, table, key string, events ...realtime.Event) (*realtime.Subscription, error)
}

type Server struct {
	shipments ShipmentService
	tickets   TicketService
	inbox     Inbox
	profiles  ProfileService
	chat      ChatService

	auth     func(http.Handler) http.Handler
	feed     Subscriber
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	swaggerPath string
	keepAlive   time.Duration
}

func New(sh ShipmentService, t TicketService, inbox Inbox) *Server {
	return &Server{
		shipments: sh,
		tickets:   t,
		inbox:     inbox,
		metrics:   metrics.NewDiscard(),
		keepAlive: 25 * time.Second,
	}
}

// WithAuth: middleware, кладущий auth.Actor в контекст (auth.Resolver.Middleware).
func (s *Server) WithAuth(mw func(http.Handler) http.Handler) *Server {
	s.auth = mw
	return s
}

func (s *Server) WithProfiles(p ProfileService) *Server {
	s.profiles = p
	return s
}

func (s *Server) WithChat(c ChatService) *Server {
	s.chat = c
	return s
}

func (s *Server) WithFeed(f Subscriber) *Server {
	s.feed = f
	return s
}

func (s *Server) WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) *Server {
	if m != nil {
		s.metrics = m
	}
	s.gatherer = g
	return s
}

// WithSwagger: при пустом пути отдаётся встроенный swagger.json.
func (s *Server) WithSwagger(path string) *Server {
	s.swaggerPath = path
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if s.swaggerPath != "" {
			http.ServeFile(w, r, s.swaggerPath)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(swaggerDoc)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))

	r.Route("/v1", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth)
		}

		r.Get("/track/{ref}", s.trackShipment)

		r.Route("/shipments", func(r chi.Router) {
			r.Get("/", s.listShipments)
			r.Post("/", s.createShipment)
			r.Patch("/{ref}", s.updateShipment)
			r.Delete("/{ref}", s.deleteShipment)
			r.Post("/{ref}/events", s.appendEvent)
			r.Post("/{ref}/payment/toggle", s.togglePayment)
			r.Get("/{ref}/stream", s.streamShipment)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", s.listTickets)
			r.Post("/", s.createTicket)
			r.Get("/{id}", s.getTicket)
			r.Post("/{id}/replies", s.addReply)
			r.Patch("/{id}/status", s.updateTicketStatus)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.listNotifications)
			r.Post("/read-all", s.markAllRead)
			r.Post("/{id}/read", s.markRead)
			r.Get("/stream", s.streamNotifications)
		})

		if s.profiles != nil {
			r.Get("/me", s.getMe)
			r.Put("/me", s.updateMe)
			r.Get("/profiles", s.listProfiles)
			r.Put("/profiles/{id}", s.updateProfile)
			r.Patch("/profiles/{id}/role", s.setProfileRole)
			r.Get("/invites", s.listInvites)
			r.Post("/invites", s.createInvite)
		}

		if s.chat != nil {
			r.Route("/chat", func(r chi.Router) {
				r.Get("/sessions", s.listChats)
				r.Post("/sessions", s.startChat)
				r.Get("/sessions/{id}", s.getChat)
				r.Post("/sessions/{id}/messages", s.sendChatMessage)
				r.Patch("/sessions/{id}/status", s.setChatStatus)
				r.Get("/sessions/{id}/stream", s.streamChat)
				r.Get("/stream", s.streamChatSessions)
			})
		}
	})

	return r
}

// instrument считает запросы по шаблону маршрута, а не по сырому пути.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.HTTPRequests.WithLabelValues(r.Method, route, httpCode(status)).Inc()
		s.metrics.HTTPLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
