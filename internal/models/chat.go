package models

import "time"

const (
	ChatStatusActive = "active"
	ChatStatusClosed = "closed"
)

func IsChatStatus(s string) bool {
	return s == ChatStatusActive || s == ChatStatusClosed
}

// ChatSession: живой чат клиента с поддержкой. Имя и email снимаются при открытии.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserEmail string    `json:"user_email"`
	UserName  string    `json:"user_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage. SenderType: SenderTypeCustomer или SenderTypeAdmin, как у ответов в тикетах.
type ChatMessage struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	SenderType string    `json:"sender_type"`
	SenderName string    `json:"sender_name"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
