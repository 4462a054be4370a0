package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account identified by the upstream auth proxy.
type User struct {
	ID        uuid.UUID `json:"id"`
	Sub       string    `json:"sub"` // subject identifier from the auth proxy
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the best available name for the user.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Email != "" {
		return u.Email
	}
	return u.Sub
}
