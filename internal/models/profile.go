package models

import "time"

const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// UserProfile. Роль: единственный признак авторизации.
type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *UserProfile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

func IsRole(r string) bool { return r == RoleClient || r == RoleAdmin }

// ProfileUpdate: правка профиля админом, все поля перезаписываются.
type ProfileUpdate struct {
	FullName string
	Email    string
	Phone    string
	Company  string
	Address  string
	Role     string
}

// UserInvite: приглашение по email. Роль применяется, когда у адресата появляется профиль.
type UserInvite struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	InvitedBy string    `json:"invited_by"`
	CreatedAt time.Time `json:"created_at"`
}
