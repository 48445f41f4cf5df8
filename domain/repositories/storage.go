package repositories

import (
	"context"

	"github.com/satriahrh/casava/domain/entities"
)

// TokenStore persists the single bearer credential.
// Writes replace the whole value; last write wins.
type TokenStore interface {
	Set(ctx context.Context, token string) error
	// Get returns the token and whether one is present
	Get(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

// TokenWatcher is implemented by stores whose value can change outside this process
type TokenWatcher interface {
	// Watch signals on the returned channel after every observed change until ctx is done
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// AuthAPI is the remote authentication and admin service
type AuthAPI interface {
	Signup(ctx context.Context, req SignupRequest) (*SignupResult, error)
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	ListUsers(ctx context.Context, token string) (*UserList, error)
	ActivateUser(ctx context.Context, token string, userID int64) (string, error)
	DeactivateUser(ctx context.Context, token string, userID int64) (string, error)
}

// SignupRequest is the account creation payload
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupResult is the created account; signup does not sign in
type SignupResult struct {
	Message  string `json:"message"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LoginResult carries the issued token
type LoginResult struct {
	Token     string
	TokenType string
	ExpiresIn int64
	User      entities.User
	Message   string
}

// UserList is the admin listing
type UserList struct {
	Users      []entities.User `json:"users"`
	TotalCount int             `json:"total_count"`
}
