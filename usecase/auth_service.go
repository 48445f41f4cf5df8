package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/auth"
)

// AuthService owns the signed-in state. The only state is the stored token:
// authenticated means a token is present.
type AuthService struct {
	api    repositories.AuthAPI
	tokens repositories.TokenStore
	logger *zap.Logger

	mu        sync.Mutex
	listeners []func(domain.AuthState)
}

// NewAuthService creates an auth service over the given token store
func NewAuthService(api repositories.AuthAPI, tokens repositories.TokenStore, logger *zap.Logger) *AuthService {
	return &AuthService{
		api:    api,
		tokens: tokens,
		logger: logger,
	}
}

// OnChange registers fn to be called after every credential change
func (s *AuthService) OnChange(fn func(domain.AuthState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Login stores the issued token only when the server accepts the credentials.
// The returned identity is a display hint and may be nil.
func (s *AuthService) Login(ctx context.Context, username, password string) (*entities.Identity, error) {
	result, err := s.api.Login(ctx, strings.TrimSpace(username), password)
	if err != nil {
		s.logger.Info("Login rejected", zap.String("username", username), zap.String("kind", domain.Kind(err)))
		return nil, err
	}

	if err := s.tokens.Set(ctx, result.Token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	identity, ok := auth.DecodeIdentity(result.Token)
	if !ok {
		s.logger.Warn("Issued token carries no readable identity", zap.String("username", username))
	}

	s.logger.Info("User logged in", zap.String("username", username))
	s.publish(domain.AuthState{Authenticated: true, Identity: identityPayload(identity)})
	return identity, nil
}

// Signup creates an account. It does not sign in.
func (s *AuthService) Signup(ctx context.Context, req repositories.SignupRequest) (*repositories.SignupResult, error) {
	result, err := s.api.Signup(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Account created", zap.String("username", result.Username))
	return result, nil
}

// Logout notifies the server when it can and always removes the local token.
// Only a failure to clear the store is returned.
func (s *AuthService) Logout(ctx context.Context) error {
	token, ok, err := s.tokens.Get(ctx)
	if err != nil {
		s.logger.Warn("Failed to read token before logout", zap.Error(err))
	}

	if ok {
		if err := s.api.Logout(ctx, token); err != nil {
			s.logger.Warn("Server logout failed, clearing local token anyway", zap.Error(err))
		}
	}

	if err := s.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	s.logger.Info("User logged out")
	s.publish(domain.AuthState{Authenticated: false})
	return nil
}

// Token returns the current bearer token
func (s *AuthService) Token(ctx context.Context) (string, bool) {
	token, ok, err := s.tokens.Get(ctx)
	if err != nil {
		s.logger.Warn("Failed to read token", zap.Error(err))
		return "", false
	}
	return token, ok
}

// IsAuthenticated is a pure function of token presence
func (s *AuthService) IsAuthenticated(ctx context.Context) bool {
	_, ok := s.Token(ctx)
	return ok
}

// Identity decodes the stored token. It never fails past this call.
func (s *AuthService) Identity(ctx context.Context) (*entities.Identity, bool) {
	token, ok := s.Token(ctx)
	if !ok {
		return nil, false
	}
	return auth.DecodeIdentity(token)
}

// State derives the current auth state from the store
func (s *AuthService) State(ctx context.Context) domain.AuthState {
	token, ok := s.Token(ctx)
	if !ok {
		return domain.AuthState{Authenticated: false}
	}
	identity, _ := auth.DecodeIdentity(token)
	return domain.AuthState{Authenticated: true, Identity: identityPayload(identity)}
}

// Watch re-derives the state whenever the store reports an outside change,
// such as another process signing in or out. It returns once ctx is done.
// Stores that cannot be watched make Watch return immediately.
func (s *AuthService) Watch(ctx context.Context) error {
	watcher, ok := s.tokens.(repositories.TokenWatcher)
	if !ok {
		s.logger.Debug("Token store does not support watching")
		return nil
	}

	changes, err := watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch token store: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			state := s.State(ctx)
			s.logger.Info("Credential changed outside this process", zap.Bool("authenticated", state.Authenticated))
			s.publish(state)
		}
	}
}

func (s *AuthService) publish(state domain.AuthState) {
	s.mu.Lock()
	listeners := append([]func(domain.AuthState){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// identityPayload keeps a typed nil out of the interface field
func identityPayload(identity *entities.Identity) interface{} {
	if identity == nil {
		return nil
	}
	return identity
}
