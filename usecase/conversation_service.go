package usecase

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/audio"
	"github.com/satriahrh/casava/internal/config"
	"github.com/satriahrh/casava/internal/media"
	"github.com/satriahrh/casava/internal/playback"
)

const greetingText = "Hello! I'm your AI farming advisor. I can help you with cassava disease management, best practices, and farming techniques. What would you like to know?"

const (
	offlineNoticeText = "Using offline mode. Some features may be limited."
	speechFailureText = "Failed to generate speech. Please try again."
	voiceFailureText  = "Failed to process audio. Please try again."
	voiceBusyText     = "Please wait for the current reply before sending a voice message."
)

var fallbackReplies = []string{
	"Based on your question about cassava diseases, I recommend implementing regular field monitoring and using certified disease-free planting material. Early detection is crucial for effective management.",
	"For soil fertility, consider incorporating organic matter and practicing crop rotation. Cassava responds well to balanced fertilization, especially with potassium and phosphorus.",
	"When selecting cassava varieties, look for those resistant to common diseases in your area. Local agricultural extension services can provide specific recommendations for your region.",
	"Water management is critical for cassava. While cassava is drought-tolerant, consistent moisture during the first 3-4 months after planting is essential for good root development.",
	"For pest control, consider integrated pest management approaches. This includes cultural practices, biological control, and minimal use of chemical pesticides when necessary.",
}

// ConversationConfig tunes a conversation session
type ConversationConfig struct {
	Languages config.LanguageConfig
	// SpeechTTL bounds how long on-demand speech stays playable
	SpeechTTL time.Duration
	Greeting  bool
}

// State is a consistent snapshot of the conversation
type State struct {
	Messages       []entities.Message           `json:"messages"`
	History        entities.ConversationHistory `json:"history"`
	Draft          string                       `json:"draft"`
	Language       string                       `json:"language"`
	DiseaseContext *entities.DiseaseContext     `json:"disease_context,omitempty"`
	Notice         *domain.Notice               `json:"notice,omitempty"`
	Pending        bool                         `json:"pending"`
	Speaking       []string                     `json:"speaking,omitempty"`
	Recording      media.RecordingState         `json:"recording"`
	Playback       playback.Status              `json:"playback"`
}

// Exchange is the pair of messages one send produced
type Exchange struct {
	User       entities.Message `json:"user"`
	Assistant  entities.Message `json:"assistant"`
	Transcript string           `json:"transcript,omitempty"`
	// Fallback is set when the assistant reply is a canned offline answer
	Fallback bool `json:"fallback,omitempty"`
}

// ConversationService orchestrates the conversation flow: the message log,
// the history sent to chat models, recording, and audio playback.
//
// At most one text or voice send is in flight. Network calls run outside the
// lock; their results are applied only if the session was not reset meanwhile.
type ConversationService struct {
	backend repositories.AdvisoryBackend
	chat    *ChatService
	capture *media.Capture
	handles *audio.Registry
	player  *playback.Controller
	config  ConversationConfig
	logger  *zap.Logger
	pick    func(n int) int

	mu         sync.Mutex
	messages   []entities.Message
	history    entities.ConversationHistory
	draft      string
	language   string
	disease    *entities.DiseaseContext
	notice     *domain.Notice
	pending    string
	generation uint64
	speaking   map[string]bool
	owned      []string
	listeners  []func(State)
}

// NewConversationService creates a new conversation service
func NewConversationService(
	backend repositories.AdvisoryBackend,
	chat *ChatService,
	capture *media.Capture,
	handles *audio.Registry,
	player *playback.Controller,
	cfg ConversationConfig,
	logger *zap.Logger,
) *ConversationService {
	s := &ConversationService{
		backend:  backend,
		chat:     chat,
		capture:  capture,
		handles:  handles,
		player:   player,
		config:   cfg,
		logger:   logger,
		pick:     rand.IntN,
		language: cfg.Languages.Default,
		speaking: make(map[string]bool),
	}
	s.seed()
	return s
}

func (s *ConversationService) seed() {
	if s.config.Greeting {
		s.messages = append(s.messages, entities.NewMessage(entities.AuthorAssistant, greetingText, ""))
	}
}

// OnChange registers fn to receive a snapshot after every change
func (s *ConversationService) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns the current state
func (s *ConversationService) Snapshot() State {
	s.mu.Lock()
	state := s.snapshotLocked()
	s.mu.Unlock()

	state.Recording = s.capture.State()
	state.Playback = s.player.Status()
	return state
}

func (s *ConversationService) snapshotLocked() State {
	state := State{
		Messages: append([]entities.Message{}, s.messages...),
		History:  s.history.Clone(),
		Draft:    s.draft,
		Language: s.language,
		Pending:  s.pending != "",
	}
	if s.disease != nil {
		dc := *s.disease
		state.DiseaseContext = &dc
	}
	if s.notice != nil {
		n := *s.notice
		state.Notice = &n
	}
	for id := range s.speaking {
		state.Speaking = append(state.Speaking, id)
	}
	sort.Strings(state.Speaking)
	return state
}

func (s *ConversationService) notify() {
	s.mu.Lock()
	listeners := append([]func(State){}, s.listeners...)
	s.mu.Unlock()

	if len(listeners) == 0 {
		return
	}
	state := s.Snapshot()
	for _, fn := range listeners {
		fn(state)
	}
}

// SendText appends the user's message and the assistant's answer.
// A backend failure is answered with a canned reply and an offline notice,
// so a successful return always grows the log by exactly two messages.
func (s *ConversationService) SendText(ctx context.Context, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyMessage
	}

	s.mu.Lock()
	if s.pending != "" {
		s.mu.Unlock()
		return nil, domain.ErrRequestPending
	}

	opID := uuid.NewString()
	generation := s.generation
	user := entities.NewMessage(entities.AuthorUser, text, "")

	req := repositories.HistoryChatRequest{
		Message:        text,
		Language:       s.language,
		History:        s.history.Clone(),
		DiseaseContext: s.disease,
	}

	s.pending = opID
	s.messages = append(s.messages, user)
	s.history = s.history.Append(user)
	s.draft = ""
	s.notice = nil
	s.mu.Unlock()
	s.notify()

	s.logger.Info("Sending chat message",
		zap.String("opID", opID),
		zap.String("messageID", user.ID),
		zap.String("language", req.Language))

	reply, err := s.chat.Reply(ctx, req)

	s.mu.Lock()
	if s.generation != generation || s.pending != opID {
		s.mu.Unlock()
		s.logger.Info("Dropping stale chat reply", zap.String("opID", opID))
		return nil, domain.ErrSessionReset
	}

	exchange := &Exchange{User: user}
	if err != nil {
		s.logger.Warn("Chat failed, answering offline", zap.String("opID", opID), zap.Error(err))
		exchange.Assistant = entities.NewMessage(entities.AuthorAssistant, fallbackReplies[s.pick(len(fallbackReplies))], "")
		exchange.Fallback = true
		s.notice = &domain.Notice{Kind: domain.NoticeOffline, Text: offlineNoticeText, At: time.Now()}
	} else {
		exchange.Assistant = entities.NewMessage(entities.AuthorAssistant, reply.Text, "")
		s.history = s.history.Append(exchange.Assistant)
	}
	s.messages = append(s.messages, exchange.Assistant)
	s.pending = ""
	s.mu.Unlock()
	s.notify()

	return exchange, nil
}

// StartRecording acquires the microphone for a voice message
func (s *ConversationService) StartRecording(ctx context.Context) error {
	if err := s.capture.Start(ctx); err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.notice = nil
	s.mu.Unlock()
	s.notify()
	return nil
}

// StopRecording finalizes the recording and sends it
func (s *ConversationService) StopRecording(ctx context.Context) (*Exchange, error) {
	blob, err := s.capture.Stop(ctx)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	return s.SendVoice(ctx, blob)
}

// CancelRecording discards the active recording without sending it
func (s *ConversationService) CancelRecording() {
	s.capture.Cancel()
	s.notify()
}

// UploadVoice validates an audio file and sends it
func (s *ConversationService) UploadVoice(ctx context.Context, file entities.FileInput) (*Exchange, error) {
	blob, err := s.capture.AcceptFile(file, media.KindAudio)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	return s.SendVoice(ctx, blob)
}

// SendVoice runs the single voice round trip. On failure nothing is appended
// and the recording is discarded; there is no transcript to answer.
func (s *ConversationService) SendVoice(ctx context.Context, blob *entities.MediaBlob) (*Exchange, error) {
	s.mu.Lock()
	if s.pending != "" {
		// The recording is already finalized and is dropped here
		s.notice = &domain.Notice{Kind: domain.NoticeError, Text: voiceBusyText, At: time.Now()}
		s.mu.Unlock()
		s.notify()
		return nil, domain.ErrRequestPending
	}

	opID := uuid.NewString()
	generation := s.generation
	req := repositories.VoiceRequest{
		Audio:          blob,
		Language:       s.language,
		DiseaseContext: s.disease,
	}
	s.pending = opID
	s.notice = nil
	s.mu.Unlock()
	s.notify()

	s.logger.Info("Sending voice message",
		zap.String("opID", opID),
		zap.String("origin", string(blob.Origin())),
		zap.Int64("size", blob.Size()))

	reply, err := s.backend.ProcessVoice(ctx, req)

	s.mu.Lock()
	if s.generation != generation || s.pending != opID {
		s.mu.Unlock()
		s.logger.Info("Dropping stale voice reply", zap.String("opID", opID))
		return nil, domain.ErrSessionReset
	}

	if err != nil {
		s.pending = ""
		s.notice = voiceNotice(err)
		s.mu.Unlock()
		s.notify()

		s.logger.Warn("Voice processing failed", zap.String("opID", opID), zap.Error(err))
		return nil, err
	}

	replyAudio, decodeErr := audio.Decode(reply.AudioBase64, audio.DefaultSpeechMimeType)
	if decodeErr != nil {
		s.logger.Warn("Failed to decode reply audio", zap.String("opID", opID), zap.Error(decodeErr))
		replyAudio = nil
	}

	userHandle := s.handles.ToPlaybackHandle(blob, 0)
	s.owned = append(s.owned, userHandle.ID)

	var replyHandle string
	if replyAudio != nil {
		h := s.handles.ToPlaybackHandle(replyAudio, 0)
		s.owned = append(s.owned, h.ID)
		replyHandle = h.ID
	}

	exchange := &Exchange{
		User:       entities.NewMessage(entities.AuthorUser, reply.TranscribedText, userHandle.ID),
		Assistant:  entities.NewMessage(entities.AuthorAssistant, reply.ResponseText, replyHandle),
		Transcript: reply.TranscribedText,
	}

	s.draft = reply.TranscribedText
	s.messages = append(s.messages, exchange.User, exchange.Assistant)
	s.history = s.history.Append(exchange.User).Append(exchange.Assistant)
	s.pending = ""
	s.mu.Unlock()
	s.notify()

	s.logger.Info("Voice message answered",
		zap.String("opID", opID),
		zap.Bool("replyAudio", replyHandle != ""))
	return exchange, nil
}

func voiceNotice(err error) *domain.Notice {
	notice := domain.NoticeFor(err)
	if domain.Kind(err) == "internal" {
		notice.Text = voiceFailureText
	}
	return notice
}

// Speak synthesizes a message and plays it. While a request for the same
// message is in flight, further calls return (nil, nil) without a request.
func (s *ConversationService) Speak(ctx context.Context, messageID string) (*audio.Handle, error) {
	s.mu.Lock()
	msg, ok := s.findLocked(messageID)
	if !ok {
		s.mu.Unlock()
		return nil, domain.ErrMessageNotFound
	}
	if strings.TrimSpace(msg.Text) == "" {
		s.mu.Unlock()
		return nil, domain.ErrEmptyMessage
	}
	if s.speaking[messageID] {
		s.mu.Unlock()
		s.logger.Debug("Speech already pending", zap.String("messageID", messageID))
		return nil, nil
	}

	generation := s.generation
	language := s.language
	s.speaking[messageID] = true
	s.mu.Unlock()
	s.notify()

	speech, err := s.backend.TextToSpeech(ctx, msg.Text, language)

	var blob *entities.MediaBlob
	if err == nil {
		blob, err = audio.Decode(speech.AudioBase64, audio.DefaultSpeechMimeType)
		if err == nil && blob == nil {
			err = domain.ErrNoAudio
		}
	}

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return nil, domain.ErrSessionReset
	}
	delete(s.speaking, messageID)

	if err != nil {
		s.notice = &domain.Notice{Kind: domain.NoticeError, Text: speechFailureText, At: time.Now()}
		s.mu.Unlock()
		s.notify()

		s.logger.Warn("Speech synthesis failed", zap.String("messageID", messageID), zap.Error(err))
		return nil, err
	}

	handle := s.handles.ToPlaybackHandle(blob, s.config.SpeechTTL)
	s.mu.Unlock()

	if err := s.player.Play(messageID, handle.ID); err != nil {
		return nil, err
	}
	s.notify()
	return &handle, nil
}

// Play starts the audio attached to a message, pausing any other
func (s *ConversationService) Play(messageID string) error {
	s.mu.Lock()
	msg, ok := s.findLocked(messageID)
	s.mu.Unlock()
	if !ok {
		return domain.ErrMessageNotFound
	}
	if !msg.HasAudio() {
		return domain.ErrNoAudio
	}

	if err := s.player.Play(messageID, msg.AudioRef); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Pause returns a message's audio to idle
func (s *ConversationService) Pause(messageID string) {
	s.player.Pause(messageID)
	s.notify()
}

// Stop returns a message's audio to idle
func (s *ConversationService) Stop(messageID string) {
	s.player.Stop(messageID)
	s.notify()
}

// PlaybackEnded records that the surface finished a message's audio
func (s *ConversationService) PlaybackEnded(messageID string) {
	s.player.Ended(messageID)
	s.notify()
}

// SetLanguage switches the conversation language
func (s *ConversationService) SetLanguage(language string) error {
	canonical, ok := s.config.Languages.Canonical(language)
	if !ok {
		return &domain.ValidationError{Field: "language", Reason: "Unsupported language: " + language}
	}

	s.mu.Lock()
	s.language = canonical
	s.mu.Unlock()
	s.notify()
	return nil
}

// Language returns the selected language
func (s *ConversationService) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// SetDraft replaces the input text, e.g. with a quick question
func (s *ConversationService) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
	s.notify()
}

// SetDiseaseContext attaches a diagnosis to later sends. nil clears it.
func (s *ConversationService) SetDiseaseContext(dc *entities.DiseaseContext) {
	s.mu.Lock()
	if dc == nil {
		s.disease = nil
	} else {
		copied := *dc
		s.disease = &copied
	}
	s.mu.Unlock()
	s.notify()
}

// DismissNotice clears the visible notice
func (s *ConversationService) DismissNotice() {
	s.mu.Lock()
	s.notice = nil
	s.mu.Unlock()
	s.notify()
}

// Reset ends the session. Every handle the log owns is revoked and replies
// still in flight are ignored when they arrive.
func (s *ConversationService) Reset() {
	s.capture.Cancel()
	s.player.Forget()

	s.mu.Lock()
	for _, id := range s.owned {
		s.handles.Revoke(id)
	}
	revoked := len(s.owned)

	s.owned = nil
	s.messages = nil
	s.history = nil
	s.draft = ""
	s.notice = nil
	s.pending = ""
	s.speaking = make(map[string]bool)
	s.generation++
	s.seed()
	s.mu.Unlock()

	s.logger.Info("Conversation reset", zap.Int("revokedHandles", revoked))
	s.notify()
}

func (s *ConversationService) findLocked(messageID string) (entities.Message, bool) {
	for _, m := range s.messages {
		if m.ID == messageID {
			return m, true
		}
	}
	return entities.Message{}, false
}

// fail surfaces err as the visible notice
func (s *ConversationService) fail(err error) {
	s.mu.Lock()
	s.notice = domain.NoticeFor(err)
	s.mu.Unlock()
	s.notify()
}
