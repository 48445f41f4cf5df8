package entities

import "time"

// Identity is what we can tell about the signed-in user from the token.
// It is a display hint, never an authorization decision.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// User represents an account as listed by the admin API
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	IsActive  *bool      `json:"is_active,omitempty"`
}

// Active reports the activation flag, treating an unknown flag as active
func (u User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}
