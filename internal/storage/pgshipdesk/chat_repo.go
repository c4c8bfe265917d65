package pgshipdesk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/models"
)

const chatSessionColumns = `id::text, user_id, user_email, user_name, status, created_at, updated_at`

const chatMessageColumns = `id::text, session_id::text, sender_type, sender_name, message, created_at`

func scanChatSession(row pgx.Row) (*models.ChatSession, error) {
	var cs models.ChatSession
	if err := row.Scan(&cs.ID, &cs.UserID, &cs.UserEmail, &cs.UserName, &cs.Status, &cs.CreatedAt, &cs.UpdatedAt); err != nil {
		return nil, err
	}
	return &cs, nil
}

func scanChatMessage(row pgx.Row) (*models.ChatMessage, error) {
	var m models.ChatMessage
	if err := row.Scan(&m.ID, &m.SessionID, &m.SenderType, &m.SenderName, &m.Message, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Storage) CreateChatSession(ctx context.Context, cs *models.ChatSession) (*models.ChatSession, error) {
	now := time.Now().UTC()
	out, err := scanChatSession(s.db.QueryRow(ctx, `
INSERT INTO chat_sessions (id, user_id, user_email, user_name, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
RETURNING `+chatSessionColumns,
		uuid.New(), cs.UserID, cs.UserEmail, cs.UserName, cs.Status, now,
	))
	if err != nil {
		return nil, errors.Wrap(err, "insert chat session")
	}
	return out, nil
}

func (s *Storage) GetChatSession(ctx context.Context, id string) (*models.ChatSession, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, models.NotFound("chat session " + id)
	}
	cs, err := scanChatSession(s.db.QueryRow(ctx, `SELECT `+chatSessionColumns+` FROM chat_sessions WHERE id = $1`, sid))
	if err != nil {
		return nil, notFoundOr(err, "chat session "+id)
	}
	return cs, nil
}

// ListChatSessions: свежие разговоры сверху; userID == nil отдаёт все сессии.
func (s *Storage) ListChatSessions(ctx context.Context, userID *string, limit int) ([]*models.ChatSession, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + chatSessionColumns + ` FROM chat_sessions `
	args := []any{limit}
	if userID != nil {
		q += `WHERE user_id = $2 `
		args = append(args, *userID)
	}
	q += `ORDER BY updated_at DESC LIMIT $1`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select chat sessions")
	}
	defer rows.Close()

	out := make([]*models.ChatSession, 0)
	for rows.Next() {
		cs, err := scanChatSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan chat session")
		}
		out = append(out, cs)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpdateChatSessionStatus обновляет и updated_at: сессия поднимается в списке.
func (s *Storage) UpdateChatSessionStatus(ctx context.Context, id, status string) (*models.ChatSession, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, models.NotFound("chat session " + id)
	}
	cs, err := scanChatSession(s.db.QueryRow(ctx, `
UPDATE chat_sessions SET status = $2, updated_at = $3
WHERE id = $1
RETURNING `+chatSessionColumns, sid, status, time.Now().UTC()))
	if err != nil {
		return nil, notFoundOr(err, "chat session "+id)
	}
	return cs, nil
}

func (s *Storage) CreateChatMessage(ctx context.Context, m *models.ChatMessage) (*models.ChatMessage, error) {
	sid, err := uuid.Parse(m.SessionID)
	if err != nil {
		return nil, models.NotFound("chat session " + m.SessionID)
	}
	out, err := scanChatMessage(s.db.QueryRow(ctx, `
INSERT INTO chat_messages (id, session_id, sender_type, sender_name, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING `+chatMessageColumns,
		uuid.New(), sid, m.SenderType, m.SenderName, m.Message, time.Now().UTC(),
	))
	if err != nil {
		return nil, errors.Wrap(err, "insert chat message")
	}
	return out, nil
}

func (s *Storage) ListChatMessages(ctx context.Context, sessionID string) ([]*models.ChatMessage, error) {
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, models.NotFound("chat session " + sessionID)
	}
	rows, err := s.db.Query(ctx, `
SELECT `+chatMessageColumns+`
FROM chat_messages
WHERE session_id = $1
ORDER BY created_at ASC
`, sid)
	if err != nil {
		return nil, errors.Wrap(err, "select chat messages")
	}
	defer rows.Close()

	out := make([]*models.ChatMessage, 0)
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan chat message")
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
