// Package authapi talks to the authentication and admin endpoints.
package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/transport"
)

// Client implements AuthAPI. Auth and admin routes live under different base URLs.
type Client struct {
	auth   *transport.Client
	admin  *transport.Client
	logger *zap.Logger
}

// Ensure Client implements the AuthAPI interface
var _ repositories.AuthAPI = (*Client)(nil)

// NewClient creates an auth API client
func NewClient(auth, admin *transport.Client, logger *zap.Logger) *Client {
	return &Client{auth: auth, admin: admin, logger: logger}
}

type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	Data    T      `json:"data"`
	Token   string `json:"token"`
}

// Signup implements AuthAPI
func (c *Client) Signup(ctx context.Context, req repositories.SignupRequest) (*repositories.SignupResult, error) {
	const op = "signup"
	if err := validateSignup(req); err != nil {
		return nil, err
	}

	var resp envelope[struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}]
	if err := c.auth.Do(ctx, op, transport.Request{Method: http.MethodPost, Path: "/signup", JSON: req}, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus(op, resp.Status, resp.Code, resp.Message); err != nil {
		return nil, err
	}

	c.logger.Info("Account created", zap.String("username", req.Username))
	return &repositories.SignupResult{
		Message:  resp.Message,
		Username: orDefault(resp.Data.Username, req.Username),
		Email:    orDefault(resp.Data.Email, req.Email),
	}, nil
}

func validateSignup(req repositories.SignupRequest) error {
	switch {
	case strings.TrimSpace(req.Username) == "":
		return &domain.ValidationError{Field: "username", Reason: "Username is required"}
	case !strings.Contains(req.Email, "@"):
		return &domain.ValidationError{Field: "email", Reason: "Please enter a valid email address"}
	case req.Password == "":
		return &domain.ValidationError{Field: "password", Reason: "Password is required"}
	}
	return nil
}

// Login implements AuthAPI. A 401/403 is reported as an AuthError.
func (c *Client) Login(ctx context.Context, username, password string) (*repositories.LoginResult, error) {
	const op = "login"
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, &domain.ValidationError{Field: "credentials", Reason: "Please enter both username and password"}
	}

	var resp envelope[struct {
		User      entities.User `json:"user"`
		ExpiresIn int64         `json:"expires_in"`
		TokenType string        `json:"token_type"`
	}]
	body := map[string]string{"username": username, "password": password}
	if err := c.auth.Do(ctx, op, transport.Request{Method: http.MethodPost, Path: "/login", JSON: body}, &resp); err != nil {
		return nil, asAuthError(err)
	}
	if err := checkStatus(op, resp.Status, resp.Code, resp.Message); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return nil, &domain.DecodeError{Op: op, Err: errors.New("response carried no token")}
	}

	return &repositories.LoginResult{
		Token:     resp.Token,
		TokenType: resp.Data.TokenType,
		ExpiresIn: resp.Data.ExpiresIn,
		User:      resp.Data.User,
		Message:   resp.Message,
	}, nil
}

// Logout implements AuthAPI
func (c *Client) Logout(ctx context.Context, token string) error {
	const op = "logout"
	if token == "" {
		return domain.ErrNotAuthenticated
	}
	var resp envelope[any]
	if err := c.auth.Do(ctx, op, transport.Request{Method: http.MethodPost, Path: "/logout", Bearer: token}, &resp); err != nil {
		return asAuthError(err)
	}
	return nil
}

// ListUsers implements AuthAPI
func (c *Client) ListUsers(ctx context.Context, token string) (*repositories.UserList, error) {
	const op = "list users"
	if token == "" {
		return nil, domain.ErrNotAuthenticated
	}

	var resp envelope[repositories.UserList]
	if err := c.admin.Do(ctx, op, transport.Request{Path: "/api/admin/users", Bearer: token}, &resp); err != nil {
		return nil, asAuthError(err)
	}
	if err := checkStatus(op, resp.Status, resp.Code, resp.Message); err != nil {
		return nil, err
	}
	if resp.Data.Users == nil {
		resp.Data.Users = []entities.User{}
	}
	return &resp.Data, nil
}

// ActivateUser implements AuthAPI
func (c *Client) ActivateUser(ctx context.Context, token string, userID int64) (string, error) {
	return c.setActive(ctx, "activate user", token, userID, "activate")
}

// DeactivateUser implements AuthAPI
func (c *Client) DeactivateUser(ctx context.Context, token string, userID int64) (string, error) {
	return c.setActive(ctx, "deactivate user", token, userID, "deactivate")
}

func (c *Client) setActive(ctx context.Context, op, token string, userID int64, action string) (string, error) {
	if token == "" {
		return "", domain.ErrNotAuthenticated
	}
	if userID <= 0 {
		return "", &domain.ValidationError{Field: "user_id", Reason: "invalid user id"}
	}

	var resp envelope[any]
	path := fmt.Sprintf("/api/admin/users/%d/%s", userID, action)
	if err := c.admin.Do(ctx, op, transport.Request{Method: http.MethodPut, Path: path, Bearer: token}, &resp); err != nil {
		return "", asAuthError(err)
	}
	if err := checkStatus(op, resp.Status, resp.Code, resp.Message); err != nil {
		return "", err
	}

	c.logger.Info("User status changed", zap.Int64("userID", userID), zap.String("action", action))
	return resp.Message, nil
}

// checkStatus rejects a 2xx envelope that still reports failure
func checkStatus(op, status string, code int, message string) error {
	if strings.EqualFold(status, "error") || strings.EqualFold(status, "fail") || strings.EqualFold(status, "failed") {
		if code == http.StatusUnauthorized || code == http.StatusForbidden {
			return &domain.AuthError{Reason: orDefault(message, "access denied")}
		}
		if code == 0 {
			code = http.StatusOK
		}
		return &domain.ServiceError{Op: op, Status: code, Message: orDefault(message, op+" failed")}
	}
	return nil
}

// asAuthError turns a rejected credential into an AuthError
func asAuthError(err error) error {
	var se *domain.ServiceError
	if errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden) {
		return &domain.AuthError{Reason: se.Message}
	}
	return err
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
