package models

import "time"

// Статусы отправления. Порядок — "нормальный" путь посылки, но переходы не валидируются:
// held и cancelled достижимы из любого состояния.
const (
	ShipmentStatusPending        = "pending"
	ShipmentStatusQuoted         = "quoted"
	ShipmentStatusConfirmed      = "confirmed"
	ShipmentStatusInTransit      = "in-transit"
	ShipmentStatusOutForDelivery = "out-for-delivery"
	ShipmentStatusDelivered      = "delivered"
	ShipmentStatusHeld           = "held"
	ShipmentStatusCancelled      = "cancelled"
)

const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

var shipmentStatuses = map[string]struct{}{
	ShipmentStatusPending:        {},
	ShipmentStatusQuoted:         {},
	ShipmentStatusConfirmed:      {},
	ShipmentStatusInTransit:      {},
	ShipmentStatusOutForDelivery: {},
	ShipmentStatusDelivered:      {},
	ShipmentStatusHeld:           {},
	ShipmentStatusCancelled:      {},
}

func IsShipmentStatus(s string) bool {
	_, ok := shipmentStatuses[s]
	return ok
}

func IsPaymentStatus(s string) bool {
	return s == PaymentStatusPaid || s == PaymentStatusUnpaid
}

// IsTerminalStatus сообщает, что дальнейших бизнес-переходов не ожидается.
// Хранилище это не форсирует.
func IsTerminalStatus(s string) bool {
	return s == ShipmentStatusDelivered || s == ShipmentStatusCancelled
}

type Party struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type ParcelDetails struct {
	Description string `json:"description"`
	Weight      string `json:"weight"`
	Quantity    string `json:"quantity"`
	Type        string `json:"type"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ShipmentEvent: запись истории. Создаётся только леджером, после добавления не меняется.
type ShipmentEvent struct {
	Status    string    `json:"status"`
	Location  string    `json:"location"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Shipment struct {
	ID              uint64          `json:"id"`
	TrackingNumber  string          `json:"tracking_number"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	CurrentLocation string          `json:"current_location"`
	Price           *float64        `json:"price,omitempty"`
	Sender          Party           `json:"sender_info"`
	Receiver        Party           `json:"receiver_info"`
	Parcel          ParcelDetails   `json:"parcel_details"`
	Coordinates     *Coordinates    `json:"coordinates,omitempty"`
	History         []ShipmentEvent `json:"history"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// LastEvent возвращает последнюю запись истории или nil.
func (s *Shipment) LastEvent() *ShipmentEvent {
	if s == nil || len(s.History) == 0 {
		return nil
	}
	return &s.History[len(s.History)-1]
}

type ShipmentCreateInput struct {
	Sender   Party
	Receiver Party
	Parcel   ParcelDetails
}

// ShipmentPatch: частичное обновление полей отправления. nil означает "не менять".
type ShipmentPatch struct {
	Status          *string
	PaymentStatus   *string
	CurrentLocation *string
	Price           *float64
	Coordinates     *Coordinates
}

func (p ShipmentPatch) IsEmpty() bool {
	return p.Status == nil && p.PaymentStatus == nil && p.CurrentLocation == nil &&
		p.Price == nil && p.Coordinates == nil
}
