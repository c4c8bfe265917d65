package pgshipdesk

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/models"
)

const profileColumns = `id, email, full_name, role, phone, company, address, created_at`

func scanProfile(row pgx.Row) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.Phone, &p.Company, &p.Address, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "profile "+id)
	}
	return p, nil
}

func (s *Storage) GetProfileByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	email = strings.TrimSpace(email)
	p, err := scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, notFoundOr(err, "profile "+email)
	}
	return p, nil
}

// ListProfilesByRole: без пагинации: используется для рассылки админам.
func (s *Storage) ListProfilesByRole(ctx context.Context, role string) ([]*models.UserProfile, error) {
	return s.listProfiles(ctx, `SELECT `+profileColumns+` FROM profiles WHERE role = $1 ORDER BY created_at ASC`, role)
}

func (s *Storage) ListProfiles(ctx context.Context, limit, offset int) ([]*models.UserProfile, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.listProfiles(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (s *Storage) listProfiles(ctx context.Context, q string, args ...any) ([]*models.UserProfile, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select profiles")
	}
	defer rows.Close()

	out := make([]*models.UserProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan profile")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpsertProfile: роль при конфликте не перезаписывается, её меняет только UpdateProfileRole.
// Новый профиль получает роль из приглашения на его email, если оно есть.
func (s *Storage) UpsertProfile(ctx context.Context, p *models.UserProfile) (*models.UserProfile, error) {
	now := time.Now().UTC()
	role := p.Role
	if role == "" {
		role = models.RoleClient
	}
	out, err := scanProfile(s.db.QueryRow(ctx, `
INSERT INTO profiles (id, email, full_name, role, phone, company, address, created_at, updated_at)
VALUES ($1,$2,$3,
  COALESCE((SELECT role FROM user_invites WHERE $2 <> '' AND email = lower($2)), $4),
  $5,$6,$7,$8,$8)
ON CONFLICT (id) DO UPDATE SET
  email = EXCLUDED.email,
  full_name = EXCLUDED.full_name,
  phone = EXCLUDED.phone,
  company = EXCLUDED.company,
  address = EXCLUDED.address,
  updated_at = EXCLUDED.updated_at
RETURNING `+profileColumns,
		p.ID, p.Email, p.FullName, role, p.Phone, p.Company, p.Address, now,
	))
	if err != nil {
		return nil, emailTakenOr(err, "upsert profile")
	}
	return out, nil
}

// UpdateProfile: полная правка профиля админом, включая email и роль.
func (s *Storage) UpdateProfile(ctx context.Context, id string, u models.ProfileUpdate) (*models.UserProfile, error) {
	out, err := scanProfile(s.db.QueryRow(ctx, `
UPDATE profiles SET
  full_name = $2, email = $3, phone = $4, company = $5, address = $6, role = $7, updated_at = $8
WHERE id = $1
RETURNING `+profileColumns,
		id, u.FullName, u.Email, u.Phone, u.Company, u.Address, u.Role, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NotFound("profile " + id)
		}
		return nil, emailTakenOr(err, "update profile")
	}
	return out, nil
}

// UpsertInvite: повторное приглашение того же адреса перезаписывает роль и автора.
func (s *Storage) UpsertInvite(ctx context.Context, inv models.UserInvite) (*models.UserInvite, error) {
	var out models.UserInvite
	err := s.db.QueryRow(ctx, `
INSERT INTO user_invites (email, role, invited_by, created_at)
VALUES (lower($1), $2, $3, $4)
ON CONFLICT (email) DO UPDATE SET
  role = EXCLUDED.role,
  invited_by = EXCLUDED.invited_by,
  created_at = EXCLUDED.created_at
RETURNING email, role, invited_by, created_at`,
		strings.TrimSpace(inv.Email), inv.Role, inv.InvitedBy, time.Now().UTC(),
	).Scan(&out.Email, &out.Role, &out.InvitedBy, &out.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "upsert invite")
	}
	return &out, nil
}

func (s *Storage) ListInvites(ctx context.Context, limit int) ([]*models.UserInvite, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT email, role, invited_by, created_at FROM user_invites ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select invites")
	}
	defer rows.Close()

	out := make([]*models.UserInvite, 0)
	for rows.Next() {
		var inv models.UserInvite
		if err := rows.Scan(&inv.Email, &inv.Role, &inv.InvitedBy, &inv.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan invite")
		}
		out = append(out, &inv)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) UpdateProfileRole(ctx context.Context, id, role string) error {
	tag, err := s.db.Exec(ctx, `UPDATE profiles SET role = $2, updated_at = now() WHERE id = $1`, id, role)
	if err != nil {
		return errors.Wrap(err, "update profile role")
	}
	if tag.RowsAffected() == 0 {
		return models.NotFound("profile " + id)
	}
	return nil
}
