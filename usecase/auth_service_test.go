package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/casava/adapters/tokenstore"
	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeAuthAPI, *tokenstore.MemoryStore) {
	t.Helper()
	good := signedToken(t, jwt.MapClaims{"sub": "42", "username": "ada", "email": "ada@farm.ng"})

	api := &fakeAuthAPI{
		login: func(username, password string) (*repositories.LoginResult, error) {
			switch password {
			case "right":
				return &repositories.LoginResult{Token: good, TokenType: "bearer"}, nil
			case "opaque":
				return &repositories.LoginResult{Token: "not-a-jwt"}, nil
			}
			return nil, &domain.AuthError{Reason: "Invalid username or password"}
		},
	}
	store := tokenstore.NewMemoryStore()
	return NewAuthService(api, store, zaptest.NewLogger(t)), api, store
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong password leaves store empty", func(t *testing.T) {
		service, _, store := newAuthFixture(t)

		_, err := service.Login(ctx, "a", "wrong")
		var authErr *domain.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("Expected AuthError, got %v", err)
		}
		if _, ok, _ := store.Get(ctx); ok {
			t.Error("Token store should stay empty")
		}
		if service.IsAuthenticated(ctx) {
			t.Error("Should not be authenticated")
		}
	})

	t.Run("right password authenticates immediately", func(t *testing.T) {
		service, _, _ := newAuthFixture(t)

		var states []domain.AuthState
		service.OnChange(func(s domain.AuthState) { states = append(states, s) })

		identity, err := service.Login(ctx, "a", "right")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if !service.IsAuthenticated(ctx) {
			t.Error("Should be authenticated right after login")
		}
		if identity == nil || identity.ID != "42" || identity.Username != "ada" {
			t.Errorf("Unexpected identity %+v", identity)
		}
		if len(states) != 1 || !states[0].Authenticated {
			t.Errorf("Expected one authenticated notification, got %+v", states)
		}
	})

	t.Run("undecodable token still signs in", func(t *testing.T) {
		service, _, _ := newAuthFixture(t)

		identity, err := service.Login(ctx, "a", "opaque")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if identity != nil {
			t.Errorf("Expected no identity, got %+v", identity)
		}
		if !service.IsAuthenticated(ctx) {
			t.Error("Token presence alone means authenticated")
		}
		if state := service.State(ctx); !state.Authenticated || state.Identity != nil {
			t.Errorf("Unexpected state %+v", state)
		}
	})
}

func TestLogoutAlwaysClearsToken(t *testing.T) {
	ctx := context.Background()
	service, api, store := newAuthFixture(t)
	api.logoutErr = &domain.NetworkError{Op: "logout", Err: errors.New("offline")}

	if _, err := service.Login(ctx, "a", "right"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := service.Logout(ctx); err != nil {
		t.Fatalf("Logout should succeed offline, got %v", err)
	}

	if _, ok, _ := store.Get(ctx); ok {
		t.Error("Token should be cleared")
	}
	if api.calls() != 1 {
		t.Errorf("Expected one server logout attempt, got %d", api.calls())
	}
	if service.IsAuthenticated(ctx) {
		t.Error("Should be anonymous after logout")
	}
}

func TestLogoutWhenAnonymous(t *testing.T) {
	service, api, _ := newAuthFixture(t)

	if err := service.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if api.calls() != 0 {
		t.Error("No token means no server call")
	}
}

func TestSignupDoesNotSignIn(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newAuthFixture(t)

	result, err := service.Signup(ctx, repositories.SignupRequest{Username: "bola", Email: "bola@farm.ng", Password: "secret1"})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if result.Username != "bola" {
		t.Errorf("Unexpected result %+v", result)
	}
	if service.IsAuthenticated(ctx) {
		t.Error("Signup must not authenticate")
	}
}

func TestWatchSeesOutsideChanges(t *testing.T) {
	service, _, store := newAuthFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states := make(chan domain.AuthState, 4)
	service.OnChange(func(s domain.AuthState) { states <- s })

	done := make(chan error, 1)
	go func() { done <- service.Watch(ctx) }()

	// Give Watch time to subscribe before the outside write
	time.Sleep(20 * time.Millisecond)
	token := signedToken(t, jwt.MapClaims{"sub": "7", "username": "chidi"})
	if err := store.Set(context.Background(), token); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	select {
	case state := <-states:
		identity, ok := state.Identity.(*entities.Identity)
		if !state.Authenticated || !ok || identity.Username != "chidi" {
			t.Errorf("Unexpected state %+v", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for auth change")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	ctx := context.Background()
	auth, api, _ := newAuthFixture(t)
	admin := NewAdminService(api, auth, zaptest.NewLogger(t))

	if _, err := admin.ListUsers(ctx); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := admin.Activate(ctx, 3); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
	if api.calls() != 0 {
		t.Errorf("No network call without a token, got %d", api.calls())
	}

	if _, err := auth.Login(ctx, "admin", "right"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	users, err := admin.ListUsers(ctx)
	if err != nil || users.TotalCount != 1 {
		t.Fatalf("ListUsers = %+v, %v", users, err)
	}
	if msg, err := admin.Deactivate(ctx, 1); err != nil || msg != "User deactivated" {
		t.Errorf("Deactivate = %q, %v", msg, err)
	}
	if _, err := admin.Activate(ctx, 0); err == nil {
		t.Error("Expected invalid id to be rejected")
	}
}
