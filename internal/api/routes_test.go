package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/casava/adapters/tokenstore"
	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/audio"
	"github.com/satriahrh/casava/internal/config"
	"github.com/satriahrh/casava/internal/media"
	"github.com/satriahrh/casava/internal/playback"
	"github.com/satriahrh/casava/internal/websocket"
	"github.com/satriahrh/casava/usecase"
)

// stubBackend is a canned advisory backend
type stubBackend struct {
	chatErr error
}

func (s *stubBackend) ClassifyImage(ctx context.Context, image *entities.MediaBlob, language string) (*entities.Classification, error) {
	return &entities.Classification{Label: "Cassava Brown Streak Disease (CBSD)", Confidence: 0.65}, nil
}

func (s *stubBackend) ChatWithContext(ctx context.Context, req repositories.ContextChatRequest) (*repositories.ChatReply, error) {
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	return &repositories.ChatReply{Text: "Use clean cuttings."}, nil
}

func (s *stubBackend) ChatWithHistory(ctx context.Context, req repositories.HistoryChatRequest) (*repositories.ChatReply, error) {
	return s.ChatWithContext(ctx, repositories.ContextChatRequest{Message: req.Message})
}

func (s *stubBackend) ProcessVoice(ctx context.Context, req repositories.VoiceRequest) (*repositories.VoiceReply, error) {
	return &repositories.VoiceReply{
		TranscribedText: "when do I harvest",
		ResponseText:    "After 9 to 12 months.",
		AudioBase64:     base64.StdEncoding.EncodeToString([]byte("RIFF")),
	}, nil
}

func (s *stubBackend) Transcribe(ctx context.Context, blob *entities.MediaBlob, language string) (string, error) {
	return "", errors.New("unused")
}

func (s *stubBackend) TextToSpeech(ctx context.Context, text, language string) (*repositories.SpeechReply, error) {
	return &repositories.SpeechReply{AudioBase64: base64.StdEncoding.EncodeToString([]byte("speech"))}, nil
}

func (s *stubBackend) Health(ctx context.Context) (*repositories.HealthStatus, error) {
	return &repositories.HealthStatus{Status: "healthy", Services: map[string]bool{"chat": true}}, nil
}

func (s *stubBackend) SupportedLanguages(ctx context.Context) (*repositories.LanguageSupport, error) {
	return &repositories.LanguageSupport{TextLanguages: []string{"English"}}, nil
}

func (s *stubBackend) ClassificationHealth(ctx context.Context) (string, error) { return "healthy", nil }
func (s *stubBackend) RootHealth(ctx context.Context) (string, error)           { return "healthy", nil }

// stubAuth accepts password "right"
type stubAuth struct{}

func (stubAuth) Signup(ctx context.Context, req repositories.SignupRequest) (*repositories.SignupResult, error) {
	return &repositories.SignupResult{Username: req.Username, Email: req.Email, Message: "created"}, nil
}

func (stubAuth) Login(ctx context.Context, username, password string) (*repositories.LoginResult, error) {
	if password != "right" {
		return nil, &domain.AuthError{Reason: "Invalid username or password"}
	}
	// {"sub":"1","username":"ada"}
	return &repositories.LoginResult{Token: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiIxIiwidXNlcm5hbWUiOiJhZGEifQ.c2ln"}, nil
}

func (stubAuth) Logout(ctx context.Context, token string) error {
	return &domain.NetworkError{Op: "logout", Err: errors.New("offline")}
}

func (stubAuth) ListUsers(ctx context.Context, token string) (*repositories.UserList, error) {
	return &repositories.UserList{Users: []entities.User{{ID: 1, Username: "ada"}}, TotalCount: 1}, nil
}

func (stubAuth) ActivateUser(ctx context.Context, token string, userID int64) (string, error) {
	return fmt.Sprintf("User %d activated", userID), nil
}

func (stubAuth) DeactivateUser(ctx context.Context, token string, userID int64) (string, error) {
	return fmt.Sprintf("User %d deactivated", userID), nil
}

type testServer struct {
	echo    *echo.Echo
	backend *stubBackend
	mic     *media.PushMicrophone
	handles *audio.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	backend := &stubBackend{}
	mic := media.NewPushMicrophone("audio/webm")
	capture := media.NewCapture(mic,
		media.DefaultImagePolicy(1024, []string{"image/jpeg", "image/png"}),
		media.DefaultAudioPolicy(1024, []string{"audio/wav", "audio/ogg"}),
		logger)
	handles := audio.NewRegistry(logger)
	hub := websocket.NewHub(logger)
	player := playback.NewController(hub, logger)

	chat, err := usecase.NewChatService(usecase.StrategyContext, backend, nil, logger)
	if err != nil {
		t.Fatalf("NewChatService failed: %v", err)
	}
	conversation := usecase.NewConversationService(backend, chat, capture, handles, player, usecase.ConversationConfig{
		Languages: config.LanguageConfig{Default: "English", Supported: []string{"English", "Igbo"}},
		SpeechTTL: time.Minute,
		Greeting:  true,
	}, logger)
	auth := usecase.NewAuthService(stubAuth{}, tokenstore.NewMemoryStore(), logger)

	e := echo.New()
	InitRoutes(e, Services{
		Conversation:   conversation,
		Diagnosis:      usecase.NewDiagnosisService(backend, capture, conversation, logger),
		Auth:           auth,
		Admin:          usecase.NewAdminService(stubAuth{}, auth, logger),
		System:         usecase.NewSystemService(backend, logger),
		Handles:        handles,
		Hub:            hub,
		Microphone:     mic,
		MaxUploadBytes: 1024,
	}, logger)

	return &testServer{echo: e, backend: backend, mic: mic, handles: handles}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, path, field, name, contentType string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart failed: %v", err)
	}
	part.Write(data)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Invalid JSON %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ErrEmptyMessage, http.StatusBadRequest},
		{"permission", domain.ErrPermissionDenied, http.StatusForbidden},
		{"auth", domain.ErrNotAuthenticated, http.StatusUnauthorized},
		{"pending", domain.ErrRequestPending, http.StatusConflict},
		{"recording", domain.ErrRecordingActive, http.StatusConflict},
		{"missing", domain.ErrMessageNotFound, http.StatusNotFound},
		{"network", &domain.NetworkError{Op: "chat", Err: errors.New("refused")}, http.StatusBadGateway},
		{"timeout", &domain.NetworkError{Op: "chat", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"service", &domain.ServiceError{Op: "chat", Status: 500, Message: "x"}, http.StatusBadGateway},
		{"decode", &domain.DecodeError{Op: "chat", Err: errors.New("x")}, http.StatusBadGateway},
		{"internal", errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorStatus(tt.err); got != tt.want {
				t.Errorf("errorStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHealthAndSession(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/session", nil)
	state := decode[usecase.State](t, rec)
	if len(state.Messages) != 1 || state.Language != "English" {
		t.Errorf("Unexpected session %+v", state)
	}
}

func TestChatRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/chat", TextRequest{Text: "How do I store cuttings?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	exchange := decode[usecase.Exchange](t, rec)
	if exchange.Assistant.Text != "Use clean cuttings." {
		t.Errorf("Unexpected reply %+v", exchange.Assistant)
	}

	rec = s.do(t, http.MethodPost, "/api/chat", TextRequest{Text: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank text, got %d", rec.Code)
	}

	s.backend.chatErr = &domain.NetworkError{Op: "chat", Err: errors.New("down")}
	rec = s.do(t, http.MethodPost, "/api/chat", TextRequest{Text: "still there?"})
	if rec.Code != http.StatusOK || !decode[usecase.Exchange](t, rec).Fallback {
		t.Errorf("Expected fallback reply, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestVoiceUploadAndMedia(t *testing.T) {
	s := newTestServer(t)

	rec := s.upload(t, "/api/voice/upload", "audio", "q.wav", "audio/wav", []byte("RIFFquestion"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	exchange := decode[usecase.Exchange](t, rec)

	rec = s.do(t, http.MethodGet, "/media/"+exchange.User.AudioRef, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "RIFFquestion" || rec.Header().Get(echo.HeaderContentType) != "audio/wav" {
		t.Errorf("Unexpected media response %d %q %s", rec.Code, rec.Body.String(), rec.Header().Get(echo.HeaderContentType))
	}

	if rec := s.do(t, http.MethodPost, "/api/messages/"+exchange.Assistant.ID+"/play", nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for play, got %d", rec.Code)
	}
	state := decode[usecase.State](t, s.do(t, http.MethodGet, "/api/session", nil))
	if state.Playback.States[exchange.Assistant.ID] != playback.Playing {
		t.Errorf("Expected assistant audio playing, got %+v", state.Playback)
	}

	if rec := s.do(t, http.MethodPost, "/api/session/reset", nil); rec.Code != http.StatusOK {
		t.Fatalf("Reset failed: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/media/"+exchange.User.AudioRef, nil); rec.Code != http.StatusNotFound {
		t.Errorf("Revoked handle should be gone, got %d", rec.Code)
	}
}

func TestVoiceUploadRejectsOversizedFile(t *testing.T) {
	s := newTestServer(t)

	rec := s.upload(t, "/api/voice/upload", "audio", "q.wav", "audio/wav", bytes.Repeat([]byte("a"), 1025), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "validation") {
		t.Errorf("Expected validation error, got %s", rec.Body.String())
	}

	rec = s.upload(t, "/api/voice/upload", "file", "q.wav", "audio/wav", []byte("x"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Missing field should be 400, got %d", rec.Code)
	}
}

func TestRecordingRoutes(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodPost, "/api/voice/start", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/voice/start", nil); rec.Code != http.StatusConflict {
		t.Errorf("Second start should conflict, got %d", rec.Code)
	}
	if err := s.mic.Push([]byte("frames")); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	rec := s.do(t, http.MethodPost, "/api/voice/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if exchange := decode[usecase.Exchange](t, rec); exchange.Transcript != "when do I harvest" {
		t.Errorf("Unexpected transcript %q", exchange.Transcript)
	}

	if rec := s.do(t, http.MethodPost, "/api/voice/stop", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Stop without recording should be 404, got %d", rec.Code)
	}
}

func TestStartRecordingRefusedMicrophone(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/voice/start", RecordingRequest{Granted: boolPtr(false)})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decode[ErrorResponse](t, rec); body.Error != "permission" || body.Message != domain.ErrPermissionDenied.Reason {
		t.Errorf("Unexpected error %+v", body)
	}
	if s.mic.Active() {
		t.Error("A refused microphone must not open a recording")
	}

	state := decode[usecase.State](t, s.do(t, http.MethodGet, "/api/session", nil))
	if state.Notice == nil || state.Notice.Kind != domain.NoticePermission {
		t.Errorf("Expected permission notice, got %+v", state.Notice)
	}

	if rec := s.do(t, http.MethodPost, "/api/voice/start", RecordingRequest{Granted: boolPtr(true)}); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 once granted, got %d", rec.Code)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestSpeakRoute(t *testing.T) {
	s := newTestServer(t)
	greeting := decode[usecase.State](t, s.do(t, http.MethodGet, "/api/session", nil)).Messages[0]

	rec := s.do(t, http.MethodPost, "/api/messages/"+greeting.ID+"/speak", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	handle := decode[audio.Handle](t, rec)
	if handle.ExpiresAt == nil {
		t.Error("Speech handles are transient")
	}

	if rec := s.do(t, http.MethodPost, "/api/messages/nope/speak", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestSessionSettings(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodPost, "/api/session/language", LanguageRequest{Language: "igbo"}); rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/session/language", LanguageRequest{Language: "Latin"}); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/session/draft", TextRequest{Text: "Soil fertility tips"}); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}

	state := decode[usecase.State](t, s.do(t, http.MethodGet, "/api/session", nil))
	if state.Language != "Igbo" || state.Draft != "Soil fertility tips" {
		t.Errorf("Unexpected state %+v", state)
	}

	if rec := s.do(t, http.MethodDelete, "/api/notice", nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
}

func TestDiagnoseRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.upload(t, "/api/diagnose", "image", "leaf.png", "image/png", []byte("png"), map[string]string{"attach": "true"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	result := decode[DiagnoseResponse](t, rec)
	if result.Classification == nil || result.Label != "Cassava Brown Streak Disease (CBSD)" {
		t.Fatalf("Unexpected result %s", rec.Body.String())
	}
	if result.ShowDetails {
		t.Error("0.65 confidence is below the detail threshold")
	}
	if result.Level != entities.ConfidenceMedium || len(result.Symptoms) == 0 {
		t.Errorf("Expected enriched medium result, got %+v", result.Classification)
	}

	state := decode[usecase.State](t, s.do(t, http.MethodGet, "/api/session", nil))
	if state.DiseaseContext == nil {
		t.Error("attach=true should set the disease context")
	}

	rec = s.upload(t, "/api/diagnose", "image", "leaf.tiff", "image/tiff", []byte("tiff"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestAuthAndAdminRoutes(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodGet, "/api/admin/users", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 before login, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Username: "ada", Password: "wrong"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad credentials, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Username: "ada", Password: "right"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if login := decode[LoginResponse](t, rec); login.Identity == nil || login.Identity.Username != "ada" {
		t.Errorf("Unexpected login %+v", login)
	}

	if me := decode[LoginResponse](t, s.do(t, http.MethodGet, "/api/auth/me", nil)); !me.Authenticated {
		t.Error("Expected authenticated after login")
	}

	if rec := s.do(t, http.MethodGet, "/api/admin/users", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPut, "/api/admin/users/7/deactivate", nil)
	if msg := decode[MessageResponse](t, rec); msg.Message != "User 7 deactivated" {
		t.Errorf("Unexpected message %+v", msg)
	}
	if rec := s.do(t, http.MethodPut, "/api/admin/users/abc/activate", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", rec.Code)
	}

	// The server logout fails but the local token is still removed
	if rec := s.do(t, http.MethodPost, "/api/auth/logout", nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if me := decode[LoginResponse](t, s.do(t, http.MethodGet, "/api/auth/me", nil)); me.Authenticated {
		t.Error("Expected anonymous after logout")
	}

	rec = s.do(t, http.MethodPost, "/api/auth/signup", repositories.SignupRequest{Username: "bola", Email: "b@farm.ng", Password: "secret1"})
	if rec.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", rec.Code)
	}
}

func TestSystemStatusRoute(t *testing.T) {
	s := newTestServer(t)

	status := decode[usecase.SystemStatus](t, s.do(t, http.MethodGet, "/api/system/status", nil))
	if status.Health == nil || status.Classifier.Status != "healthy" {
		t.Errorf("Unexpected status %+v", status)
	}
}
