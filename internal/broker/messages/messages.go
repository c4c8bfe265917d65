package messages

import "time"

const (
	TopicShipmentScanned = "shipment.scanned"
	TopicEmailRequested  = "email.requested"
)

// ShipmentScanned: скан на хабе. Ключ сообщения — номер отправления.
type ShipmentScanned struct {
	TrackingNumber string    `json:"tracking_number"`
	Status         string    `json:"status"`
	Location       string    `json:"location"`
	Note           string    `json:"note,omitempty"`
	ScannedAt      time.Time `json:"scanned_at,omitempty"`
}

// EmailRequested: письмо, переданное в shipdesk-mailer.
type EmailRequested struct {
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Text        string    `json:"text"`
	HTML        string    `json:"html,omitempty"`
	Template    string    `json:"template,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}
