package models

import "time"

const (
	NotificationTypeShipmentUpdate = "shipment_update"
	NotificationTypeTicketReply    = "ticket_reply"
	NotificationTypeSystem         = "system"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationCreateInput struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Link    string
}
