package pgshipdesk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/models"
)

const ticketColumns = `id::text, ticket_number, user_id, name, email, subject, status, priority, created_at, updated_at`

const replyColumns = `id::text, ticket_id::text, sender_type, sender_name, message, created_at`

func scanTicket(row pgx.Row) (*models.SupportTicket, error) {
	var t models.SupportTicket
	if err := row.Scan(&t.ID, &t.TicketNumber, &t.UserID, &t.Name, &t.Email, &t.Subject,
		&t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanReply(row pgx.Row) (*models.TicketReply, error) {
	var r models.TicketReply
	if err := row.Scan(&r.ID, &r.TicketID, &r.SenderType, &r.SenderName, &r.Message, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Storage) CreateTicket(ctx context.Context, t *models.SupportTicket) (*models.SupportTicket, error) {
	now := time.Now().UTC()
	out, err := scanTicket(s.db.QueryRow(ctx, `
INSERT INTO support_tickets (id, ticket_number, user_id, name, email, subject, status, priority, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
RETURNING `+ticketColumns,
		uuid.New(), t.TicketNumber, t.UserID, t.Name, t.Email, t.Subject, t.Status, t.Priority, now,
	))
	if err != nil {
		return nil, errors.Wrap(err, "insert ticket")
	}
	return out, nil
}

func (s *Storage) GetTicket(ctx context.Context, id string) (*models.SupportTicket, error) {
	tid, err := uuid.Parse(id)
	if err != nil {
		return nil, models.NotFound("ticket " + id)
	}
	t, err := scanTicket(s.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE id = $1`, tid))
	if err != nil {
		return nil, notFoundOr(err, "ticket "+id)
	}
	return t, nil
}

// ListTickets: userID == nil отдаёт все тикеты (для админа).
func (s *Storage) ListTickets(ctx context.Context, userID *string, limit int) ([]*models.SupportTicket, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + ticketColumns + ` FROM support_tickets `
	args := []any{limit}
	if userID != nil {
		q += `WHERE user_id = $2 `
		args = append(args, *userID)
	}
	q += `ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select tickets")
	}
	defer rows.Close()

	out := make([]*models.SupportTicket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan ticket")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) UpdateTicketStatus(ctx context.Context, id, status string) (*models.SupportTicket, error) {
	tid, err := uuid.Parse(id)
	if err != nil {
		return nil, models.NotFound("ticket " + id)
	}
	t, err := scanTicket(s.db.QueryRow(ctx, `
UPDATE support_tickets SET status = $2, updated_at = $3
WHERE id = $1
RETURNING `+ticketColumns, tid, status, time.Now().UTC()))
	if err != nil {
		return nil, notFoundOr(err, "ticket "+id)
	}
	return t, nil
}

func (s *Storage) CreateReply(ctx context.Context, r *models.TicketReply) (*models.TicketReply, error) {
	tid, err := uuid.Parse(r.TicketID)
	if err != nil {
		return nil, models.NotFound("ticket " + r.TicketID)
	}
	out, err := scanReply(s.db.QueryRow(ctx, `
INSERT INTO ticket_replies (id, ticket_id, sender_type, sender_name, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING `+replyColumns,
		uuid.New(), tid, r.SenderType, r.SenderName, r.Message, time.Now().UTC(),
	))
	if err != nil {
		return nil, errors.Wrap(err, "insert ticket reply")
	}
	return out, nil
}

func (s *Storage) ListReplies(ctx context.Context, ticketID string) ([]*models.TicketReply, error) {
	tid, err := uuid.Parse(ticketID)
	if err != nil {
		return nil, models.NotFound("ticket " + ticketID)
	}
	rows, err := s.db.Query(ctx, `
SELECT `+replyColumns+`
FROM ticket_replies
WHERE ticket_id = $1
ORDER BY created_at ASC
`, tid)
	if err != nil {
		return nil, errors.Wrap(err, "select ticket replies")
	}
	defer rows.Close()

	out := make([]*models.TicketReply, 0)
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan ticket reply")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
