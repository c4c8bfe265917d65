package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/metrics"
	"github.com/BearBump/ShipDesk/internal/models"
	"github.com/BearBump/ShipDesk/internal/realtime"
	"github.com/BearBump/ShipDesk/internal/services/shipments"
	"github.com/BearBump/ShipDesk/internal/services/tickets"
)

type fakeShipments struct {
	byRef     map[string]*models.Shipment
	appendErr error
	appended  bool
	patch     models.ShipmentPatch
	created   models.ShipmentCreateInput
}

func (f *fakeShipments) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	if !auth.FromContext(ctx).IsAuthenticated() {
		return nil, models.ErrUnauthorized
	}
	f.created = in
	return &models.Shipment{TrackingNumber: "PFX-10000001", Sender: in.Sender}, nil
}

func (f *fakeShipments) GetShipment(ctx context.Context, ref string) (*models.Shipment, error) {
	if sh, ok := f.byRef[strings.ToUpper(ref)]; ok {
		return sh, nil
	}
	return nil, models.NotFound("shipment " + ref)
}

func (f *fakeShipments) ListShipments(ctx context.Context, limit int) ([]*models.Shipment, error) {
	return []*models.Shipment{}, nil
}

func (f *fakeShipments) UpdateShipment(ctx context.Context, ref string, p models.ShipmentPatch) (*models.Shipment, error) {
	if !auth.FromContext(ctx).IsAdmin() {
		return nil, models.ErrForbidden
	}
	f.patch = p
	return f.byRef[ref], nil
}

func (f *fakeShipments) AppendEvent(ctx context.Context, ref, status, location, note string) (*shipments.AppendResult, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	return &shipments.AppendResult{Shipment: f.byRef[ref], Appended: f.appended}, nil
}

func (f *fakeShipments) TogglePayment(ctx context.Context, ref string) (*models.Shipment, error) {
	return nil, models.Persistence("update shipment "+ref, context.DeadlineExceeded)
}

func (f *fakeShipments) DeleteShipment(ctx context.Context, ref string) error { return nil }

type fakeTickets struct {
	warning string
}

func (f *fakeTickets) CreateTicket(ctx context.Context, in models.TicketCreateInput) (*models.SupportTicket, error) {
	return &models.SupportTicket{ID: "t1", TicketNumber: "TKT-10000001", Email: in.Email}, nil
}

func (f *fakeTickets) AddReply(ctx context.Context, ticketID, message string) (*tickets.ReplyResult, error) {
	return &tickets.ReplyResult{
		Reply:   &models.TicketReply{ID: "r1", TicketID: ticketID, Message: message},
		Ticket:  &models.SupportTicket{ID: ticketID, Status: models.TicketStatusClosed},
		Warning: f.warning,
	}, nil
}

func (f *fakeTickets) UpdateStatus(ctx context.Context, ticketID, status string) (*models.SupportTicket, error) {
	return &models.SupportTicket{ID: ticketID, Status: status}, nil
}

func (f *fakeTickets) GetTicket(ctx context.Context, ticketID string) (*tickets.Thread, error) {
	return nil, models.NotFound("ticket " + ticketID)
}

func (f *fakeTickets) ListTickets(ctx context.Context, limit int) ([]*models.SupportTicket, error) {
	return nil, models.ErrUnauthorized
}

type fakeInbox struct{}

func (fakeInbox) List(ctx context.Context) ([]*models.Notification, error) {
	return []*models.Notification{{ID: "n1", Title: "Shipment Updated"}}, nil
}

func (fakeInbox) MarkRead(ctx context.Context, id string) error { return nil }

func (fakeInbox) MarkAllRead(ctx context.Context) (int64, error) { return 3, nil }

// asActor подменяет auth.Resolver.Middleware в тестах.
func asActor(a auth.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), a)))
		})
	}
}

var adminActor = auth.Actor{ActingUserID: "adm1", EffectiveUserID: "adm1", Role: models.RoleAdmin}

func newTestServer(t *testing.T, a auth.Actor) (*httptest.Server, *fakeShipments, *fakeTickets, *metrics.Metrics) {
	t.Helper()
	sh := &fakeShipments{byRef: map[string]*models.Shipment{
		"PFX-12345678": {
			TrackingNumber:  "PFX-12345678",
			Status:          models.ShipmentStatusInTransit,
			CurrentLocation: "Berlin Hub",
			Sender:          models.Party{Name: "Ada", Address: "1 Marina Rd, Lagos, Nigeria"},
			Parcel:          models.ParcelDetails{Weight: "12"},
		},
	}}
	tk := &fakeTickets{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	srv := New(sh, tk, fakeInbox{}).WithAuth(asActor(a)).WithMetrics(m, reg)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, sh, tk, m
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthzAndSwagger(t *testing.T) {
	ts, _, _, _ := newTestServer(t, auth.Anonymous())

	resp, body := do(t, http.MethodGet, ts.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])

	resp, body = do(t, http.MethodGet, ts.URL+"/swagger.json", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "2.0", body["swagger"])
}

func TestTrack_PublicViewAndNotFound(t *testing.T) {
	ts, _, _, m := newTestServer(t, auth.Anonymous())

	resp, body := do(t, http.MethodGet, ts.URL+"/v1/track/pfx-12345678", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "PFX-12345678", body["tracking_number"])
	require.Equal(t, "12 kg", body["weight"])
	require.Equal(t, "Berlin Hub", body["current_location"])

	resp, body = do(t, http.MethodGet, ts.URL+"/v1/track/PFX-00000000", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, body["error"], "not found")

	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/v1/track/{ref}", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/v1/track/{ref}", "404")))
}

func TestCreateShipment_ValidationAndAuth(t *testing.T) {
	ts, sh, _, _ := newTestServer(t, auth.Actor{ActingUserID: "U1", EffectiveUserID: "U1", Role: models.RoleClient})

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/shipments", `{"sender_info":{"email":"not-an-email"}}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation failed", body["error"])
	fields := body["fields"].([]any)
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.(map[string]any)["field"].(string))
	}
	require.Contains(t, names, "sender_info.name")
	require.Contains(t, names, "sender_info.email")

	resp, _ = do(t, http.MethodPost, ts.URL+"/v1/shipments", `{"sender_info":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodPost, ts.URL+"/v1/shipments",
		`{"sender_info":{"name":"Ada","address":"Lagos, Nigeria"},"receiver_info":{"name":"Bo"},"parcel_details":{"weight":"3","quantity":"1"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "PFX-10000001", body["tracking_number"])
	require.Equal(t, "3", sh.created.Parcel.Weight)

	anon, _, _, _ := newTestServer(t, auth.Anonymous())
	resp, _ = do(t, http.MethodPost, anon.URL+"/v1/shipments", `{"sender_info":{"name":"Ada"},"receiver_info":{"name":"Bo"}}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpdateShipment_PatchAndForbidden(t *testing.T) {
	ts, sh, _, _ := newTestServer(t, adminActor)

	resp, _ := do(t, http.MethodPatch, ts.URL+"/v1/shipments/PFX-12345678", `{"status":"confirmed","price":12.5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, models.ShipmentStatusConfirmed, *sh.patch.Status)
	require.Equal(t, 12.5, *sh.patch.Price)
	require.Nil(t, sh.patch.PaymentStatus)

	resp, _ = do(t, http.MethodPatch, ts.URL+"/v1/shipments/PFX-12345678", `{"status":"lost"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	client, _, _, _ := newTestServer(t, auth.Actor{ActingUserID: "U1", EffectiveUserID: "U1", Role: models.RoleClient})
	resp, body := do(t, http.MethodPatch, client.URL+"/v1/shipments/PFX-12345678", `{"price":1}`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "forbidden", body["error"])
}

func TestAppendEvent_StatusCodes(t *testing.T) {
	ts, sh, _, _ := newTestServer(t, adminActor)
	url := ts.URL + "/v1/shipments/PFX-12345678/events"

	sh.appended = true
	resp, body := do(t, http.MethodPost, url, `{"status":"held","location":"Customs"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, true, body["appended"])

	sh.appended = false
	resp, body = do(t, http.MethodPost, url, `{"status":"held","location":"Customs"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["appended"])

	resp, _ = do(t, http.MethodPost, url, `{"status":"teleported","location":"Customs"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	sh.appendErr = models.Persistence("append event PFX-12345678", models.ErrConflict)
	resp, _ = do(t, http.MethodPost, url, `{"status":"held","location":"Customs"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPersistenceFailureHidesCause(t *testing.T) {
	ts, _, _, _ := newTestServer(t, adminActor)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/shipments/PFX-12345678/payment/toggle", "")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "the change could not be saved", body["error"])
}

func TestTickets(t *testing.T) {
	ts, _, tk, _ := newTestServer(t, auth.Anonymous())

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/tickets", `{"name":"Ada","email":"ada@x.com","subject":"Late","message":"Where is it?"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "TKT-10000001", body["ticket_number"])

	resp, _ = do(t, http.MethodPost, ts.URL+"/v1/tickets", `{"name":"Ada","email":"nope","subject":"Late","message":"?"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	tk.warning = "reply saved, but the ticket could not be reopened"
	resp, body = do(t, http.MethodPost, ts.URL+"/v1/tickets/t1/replies", `{"message":"hello"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, tk.warning, body["warning"])

	resp, _ = do(t, http.MethodPatch, ts.URL+"/v1/tickets/t1/status", `{"status":"archived"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/v1/tickets/t404", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/v1/tickets", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNotifications(t *testing.T) {
	ts, _, _, _ := newTestServer(t, adminActor)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/notifications", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var list []models.Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)

	resp, body := do(t, http.MethodPost, ts.URL+"/v1/notifications/read-all", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 3, body["updated"])

	resp, _ = do(t, http.MethodPost, ts.URL+"/v1/notifications/n1/read", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestShipmentStream_DeliversChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	feed := realtime.NewFeed(rc, "test:rt:")

	srv := New(&fakeShipments{}, &fakeTickets{}, fakeInbox{}).WithFeed(feed)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/shipments/pfx-12345678/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	other, _ := realtime.NewChange(realtime.TableShipments, realtime.EventUpdate, "PFX-99999999", map[string]string{})
	require.NoError(t, feed.Publish(ctx, other))
	ch, _ := realtime.NewChange(realtime.TableShipments, realtime.EventUpdate, "PFX-12345678", map[string]string{"status": "held"})
	require.NoError(t, feed.Publish(ctx, ch))

	var got []string
	for len(got) < 2 {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			got = append(got, line)
		}
	}
	require.Equal(t, "event: update", got[0])
	require.Contains(t, got[1], `"key":"PFX-12345678"`)
	require.Contains(t, got[1], `"status":"held"`)
}

func TestNotificationStream_RequiresSession(t *testing.T) {
	ts, _, _, _ := newTestServer(t, auth.Anonymous())
	resp, _ := do(t, http.MethodGet, ts.URL+"/v1/notifications/stream", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
