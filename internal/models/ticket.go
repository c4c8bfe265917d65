package models

import "time"

const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
	TicketStatusClosed     = "closed"
)

const (
	TicketPriorityLow    = "low"
	TicketPriorityNormal = "normal"
	TicketPriorityHigh   = "high"
	TicketPriorityUrgent = "urgent"
)

const (
	SenderTypeCustomer = "customer"
	SenderTypeAdmin    = "admin"
)

func IsTicketStatus(s string) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// NeedsReopen: ответ клиента на закрытый/решённый тикет возвращает его в работу.
func NeedsReopen(senderType, status string) bool {
	return senderType == SenderTypeCustomer &&
		(status == TicketStatusResolved || status == TicketStatusClosed)
}

type SupportTicket struct {
	ID           string    `json:"id"`
	TicketNumber string    `json:"ticket_number"`
	UserID       *string   `json:"user_id,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Subject      string    `json:"subject"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type TicketReply struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	SenderType string    `json:"sender_type"`
	SenderName string    `json:"sender_name"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

type TicketCreateInput struct {
	UserID  *string
	Name    string
	Email   string
	Subject string
	Message string
}
