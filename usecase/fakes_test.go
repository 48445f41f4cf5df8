package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/audio"
	"github.com/satriahrh/casava/internal/config"
	"github.com/satriahrh/casava/internal/media"
	"github.com/satriahrh/casava/internal/playback"
)

var errUnset = errors.New("not configured")

// fakeBackend answers with the configured functions and counts calls
type fakeBackend struct {
	classify    func(ctx context.Context, image *entities.MediaBlob, language string) (*entities.Classification, error)
	chatContext func(ctx context.Context, req repositories.ContextChatRequest) (*repositories.ChatReply, error)
	chatHistory func(ctx context.Context, req repositories.HistoryChatRequest) (*repositories.ChatReply, error)
	voice       func(ctx context.Context, req repositories.VoiceRequest) (*repositories.VoiceReply, error)
	speech      func(ctx context.Context, text, language string) (*repositories.SpeechReply, error)
	health      func(ctx context.Context) (*repositories.HealthStatus, error)
	languages   func(ctx context.Context) (*repositories.LanguageSupport, error)

	classifyCalls atomic.Int32
	chatCalls     atomic.Int32
	voiceCalls    atomic.Int32
	speechCalls   atomic.Int32
}

func (f *fakeBackend) ClassifyImage(ctx context.Context, image *entities.MediaBlob, language string) (*entities.Classification, error) {
	f.classifyCalls.Add(1)
	if f.classify == nil {
		return nil, errUnset
	}
	return f.classify(ctx, image, language)
}

func (f *fakeBackend) ChatWithContext(ctx context.Context, req repositories.ContextChatRequest) (*repositories.ChatReply, error) {
	f.chatCalls.Add(1)
	if f.chatContext == nil {
		return nil, errUnset
	}
	return f.chatContext(ctx, req)
}

func (f *fakeBackend) ChatWithHistory(ctx context.Context, req repositories.HistoryChatRequest) (*repositories.ChatReply, error) {
	f.chatCalls.Add(1)
	if f.chatHistory == nil {
		return nil, errUnset
	}
	return f.chatHistory(ctx, req)
}

func (f *fakeBackend) ProcessVoice(ctx context.Context, req repositories.VoiceRequest) (*repositories.VoiceReply, error) {
	f.voiceCalls.Add(1)
	if f.voice == nil {
		return nil, errUnset
	}
	return f.voice(ctx, req)
}

func (f *fakeBackend) Transcribe(ctx context.Context, blob *entities.MediaBlob, language string) (string, error) {
	return "", errUnset
}

func (f *fakeBackend) TextToSpeech(ctx context.Context, text, language string) (*repositories.SpeechReply, error) {
	f.speechCalls.Add(1)
	if f.speech == nil {
		return nil, errUnset
	}
	return f.speech(ctx, text, language)
}

func (f *fakeBackend) Health(ctx context.Context) (*repositories.HealthStatus, error) {
	if f.health == nil {
		return nil, errUnset
	}
	return f.health(ctx)
}

func (f *fakeBackend) SupportedLanguages(ctx context.Context) (*repositories.LanguageSupport, error) {
	if f.languages == nil {
		return nil, errUnset
	}
	return f.languages(ctx)
}

func (f *fakeBackend) ClassificationHealth(ctx context.Context) (string, error) {
	return "healthy", nil
}

func (f *fakeBackend) RootHealth(ctx context.Context) (string, error) {
	return "healthy", nil
}

// fakeAuthAPI records calls made with a token
type fakeAuthAPI struct {
	login     func(username, password string) (*repositories.LoginResult, error)
	logoutErr error

	mu     sync.Mutex
	tokens []string
}

func (f *fakeAuthAPI) record(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
}

func (f *fakeAuthAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

func (f *fakeAuthAPI) Signup(ctx context.Context, req repositories.SignupRequest) (*repositories.SignupResult, error) {
	return &repositories.SignupResult{Message: "created", Username: req.Username, Email: req.Email}, nil
}

func (f *fakeAuthAPI) Login(ctx context.Context, username, password string) (*repositories.LoginResult, error) {
	return f.login(username, password)
}

func (f *fakeAuthAPI) Logout(ctx context.Context, token string) error {
	f.record(token)
	return f.logoutErr
}

func (f *fakeAuthAPI) ListUsers(ctx context.Context, token string) (*repositories.UserList, error) {
	f.record(token)
	return &repositories.UserList{Users: []entities.User{{ID: 1, Username: "ada"}}, TotalCount: 1}, nil
}

func (f *fakeAuthAPI) ActivateUser(ctx context.Context, token string, userID int64) (string, error) {
	f.record(token)
	return "User activated", nil
}

func (f *fakeAuthAPI) DeactivateUser(ctx context.Context, token string, userID int64) (string, error) {
	f.record(token)
	return "User deactivated", nil
}

// recordingSurface logs playback commands
type recordingSurface struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSurface) Start(messageID, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "start:"+messageID)
}

func (r *recordingSurface) Halt(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "halt:"+messageID)
}

type conversationFixture struct {
	service *ConversationService
	backend *fakeBackend
	mic     *media.PushMicrophone
	handles *audio.Registry
	player  *playback.Controller
	surface *recordingSurface
}

func newConversationFixture(t *testing.T, backend *fakeBackend, greeting bool) *conversationFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	mic := media.NewPushMicrophone("audio/webm")
	capture := media.NewCapture(mic,
		media.DefaultImagePolicy(10<<20, []string{"image/jpeg", "image/png", "image/gif"}),
		media.DefaultAudioPolicy(10<<20, []string{"audio/wav", "audio/mpeg", "audio/ogg"}),
		logger)
	handles := audio.NewRegistry(logger)
	surface := &recordingSurface{}
	player := playback.NewController(surface, logger)

	chat, err := NewChatService(StrategyContext, backend, nil, logger)
	if err != nil {
		t.Fatalf("NewChatService failed: %v", err)
	}

	service := NewConversationService(backend, chat, capture, handles, player, ConversationConfig{
		Languages: config.LanguageConfig{Default: "English", Supported: []string{"English", "Yoruba", "Hausa"}},
		SpeechTTL: time.Minute,
		Greeting:  greeting,
	}, logger)
	service.pick = func(n int) int { return 0 }

	return &conversationFixture{
		service: service,
		backend: backend,
		mic:     mic,
		handles: handles,
		player:  player,
		surface: surface,
	}
}
