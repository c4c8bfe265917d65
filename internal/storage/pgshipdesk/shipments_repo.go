package pgshipdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/models"
)

const shipmentColumns = `
  id, tracking_number, user_id,
  status, payment_status, current_location, price,
  sender_info, receiver_info, parcel_details, coordinates, history,
  created_at, updated_at`

// HistoryUpdate: запись леджера. Условная: применяется только если длина истории
// в БД всё ещё PrevLen (защита от lost update при параллельных append).
type HistoryUpdate struct {
	TrackingNumber string
	PrevLen        int

	Status   string
	Location string
	History  []models.ShipmentEvent
	MarkPaid bool

	UpdatedAt time.Time
}

type ShipmentFilter struct {
	UserID string
	Limit  int
}

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	var sender, receiver, parcel, coords, history []byte
	if err := row.Scan(
		&sh.ID, &sh.TrackingNumber, &sh.UserID,
		&sh.Status, &sh.PaymentStatus, &sh.CurrentLocation, &sh.Price,
		&sender, &receiver, &parcel, &coords, &history,
		&sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sender, &sh.Sender); err != nil {
		return nil, errors.Wrap(err, "decode sender_info")
	}
	if err := json.Unmarshal(receiver, &sh.Receiver); err != nil {
		return nil, errors.Wrap(err, "decode receiver_info")
	}
	if err := json.Unmarshal(parcel, &sh.Parcel); err != nil {
		return nil, errors.Wrap(err, "decode parcel_details")
	}
	if len(coords) > 0 && string(coords) != "null" {
		var c models.Coordinates
		if err := json.Unmarshal(coords, &c); err != nil {
			return nil, errors.Wrap(err, "decode coordinates")
		}
		sh.Coordinates = &c
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &sh.History); err != nil {
			return nil, errors.Wrap(err, "decode history")
		}
	}
	if sh.History == nil {
		sh.History = []models.ShipmentEvent{}
	}
	return &sh, nil
}

func jsonb(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode jsonb")
	}
	return b, nil
}

func (s *Storage) CreateShipment(ctx context.Context, sh *models.Shipment) (*models.Shipment, error) {
	sender, err := jsonb(sh.Sender)
	if err != nil {
		return nil, err
	}
	receiver, err := jsonb(sh.Receiver)
	if err != nil {
		return nil, err
	}
	parcel, err := jsonb(sh.Parcel)
	if err != nil {
		return nil, err
	}
	var coords []byte
	if sh.Coordinates != nil {
		if coords, err = jsonb(sh.Coordinates); err != nil {
			return nil, err
		}
	}
	hist := sh.History
	if hist == nil {
		hist = []models.ShipmentEvent{}
	}
	history, err := jsonb(hist)
	if err != nil {
		return nil, err
	}

	out, err := scanShipment(s.db.QueryRow(ctx, `
INSERT INTO shipments (
  tracking_number, user_id, status, payment_status, current_location, price,
  sender_info, receiver_info, parcel_details, coordinates, history,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
RETURNING`+shipmentColumns,
		sh.TrackingNumber, sh.UserID, sh.Status, sh.PaymentStatus, sh.CurrentLocation, sh.Price,
		sender, receiver, parcel, coords, history, sh.CreatedAt.UTC(),
	))
	if err != nil {
		return nil, errors.Wrap(err, "insert shipment")
	}
	return out, nil
}

func (s *Storage) GetShipment(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx, `SELECT`+shipmentColumns+`
FROM shipments
WHERE tracking_number = $1
`, trackingNumber))
	if err != nil {
		return nil, notFoundOr(err, "select shipment "+trackingNumber)
	}
	return sh, nil
}

func (s *Storage) ListShipments(ctx context.Context, f ShipmentFilter) ([]*models.Shipment, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}

	q := `SELECT` + shipmentColumns + `
FROM shipments
`
	args := []any{f.Limit}
	if f.UserID != "" {
		q += "WHERE user_id = $2\n"
		args = append(args, f.UserID)
	}
	q += "ORDER BY created_at DESC\nLIMIT $1"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]*models.Shipment, 0)
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// SaveHistory возвращает models.ErrConflict, если история успела измениться после чтения.
func (s *Storage) SaveHistory(ctx context.Context, upd HistoryUpdate) (*models.Shipment, error) {
	history, err := jsonb(upd.History)
	if err != nil {
		return nil, err
	}

	sh, err := scanShipment(s.db.QueryRow(ctx, `
UPDATE shipments
SET
  status = $3,
  current_location = $4,
  history = $5,
  payment_status = CASE WHEN $6 THEN 'paid' ELSE payment_status END,
  updated_at = $7
WHERE tracking_number = $1
  AND jsonb_array_length(history) = $2
RETURNING`+shipmentColumns,
		upd.TrackingNumber, upd.PrevLen, upd.Status, upd.Location, history, upd.MarkPaid, upd.UpdatedAt.UTC(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrConflict
	}
	if err != nil {
		return nil, errors.Wrap(err, "update shipment history")
	}
	return sh, nil
}

// PatchShipment обновляет только заданные поля и возвращает строку после записи.
func (s *Storage) PatchShipment(ctx context.Context, trackingNumber string, p models.ShipmentPatch, at time.Time) (*models.Shipment, error) {
	sets := make([]string, 0, 6)
	args := []any{trackingNumber}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.PaymentStatus != nil {
		add("payment_status", *p.PaymentStatus)
	}
	if p.CurrentLocation != nil {
		add("current_location", *p.CurrentLocation)
	}
	if p.Price != nil {
		add("price", *p.Price)
	}
	if p.Coordinates != nil {
		b, err := jsonb(p.Coordinates)
		if err != nil {
			return nil, err
		}
		add("coordinates", b)
	}
	add("updated_at", at.UTC())

	sh, err := scanShipment(s.db.QueryRow(ctx, `
UPDATE shipments
SET `+strings.Join(sets, ", ")+`
WHERE tracking_number = $1
RETURNING`+shipmentColumns, args...))
	if err != nil {
		return nil, notFoundOr(err, "update shipment "+trackingNumber)
	}
	return sh, nil
}

func (s *Storage) DeleteShipment(ctx context.Context, trackingNumber string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM shipments WHERE tracking_number = $1`, trackingNumber)
	if err != nil {
		return errors.Wrap(err, "delete shipment")
	}
	if tag.RowsAffected() == 0 {
		return models.NotFound("shipment " + trackingNumber)
	}
	return nil
}
