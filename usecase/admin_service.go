package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/repositories"
)

// AdminService manages user accounts on behalf of a signed-in administrator
type AdminService struct {
	api    repositories.AuthAPI
	auth   *AuthService
	logger *zap.Logger
}

// NewAdminService creates an admin service
func NewAdminService(api repositories.AuthAPI, auth *AuthService, logger *zap.Logger) *AdminService {
	return &AdminService{
		api:    api,
		auth:   auth,
		logger: logger,
	}
}

// ListUsers returns every account
func (s *AdminService) ListUsers(ctx context.Context) (*repositories.UserList, error) {
	token, ok := s.auth.Token(ctx)
	if !ok {
		return nil, domain.ErrNotAuthenticated
	}
	return s.api.ListUsers(ctx, token)
}

// Activate enables an account
func (s *AdminService) Activate(ctx context.Context, userID int64) (string, error) {
	return s.setActive(ctx, userID, true)
}

// Deactivate disables an account
func (s *AdminService) Deactivate(ctx context.Context, userID int64) (string, error) {
	return s.setActive(ctx, userID, false)
}

func (s *AdminService) setActive(ctx context.Context, userID int64, active bool) (string, error) {
	if userID <= 0 {
		return "", &domain.ValidationError{Field: "user_id", Reason: "user id must be positive"}
	}

	token, ok := s.auth.Token(ctx)
	if !ok {
		return "", domain.ErrNotAuthenticated
	}

	var (
		message string
		err     error
	)
	if active {
		message, err = s.api.ActivateUser(ctx, token, userID)
	} else {
		message, err = s.api.DeactivateUser(ctx, token, userID)
	}
	if err != nil {
		s.logger.Warn("Failed to change user status",
			zap.Int64("userID", userID),
			zap.Bool("active", active),
			zap.Error(err))
		return "", err
	}

	s.logger.Info("User status changed", zap.Int64("userID", userID), zap.Bool("active", active))
	return message, nil
}
