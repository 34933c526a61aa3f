package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User mirrors the backend's user resource. The client only caches it for
// the lifetime of a session.
type User struct {
	ID        string    `json:"_id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email" yaml:"email"`
	Role      string    `json:"role" yaml:"role"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
