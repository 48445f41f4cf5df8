package repositories

import (
	"context"

	"github.com/satriahrh/casava/domain/entities"
)

// AdvisoryBackend abstracts the classification, chat, voice and system API.
// Every call is a single request/response round trip.
type AdvisoryBackend interface {
	ChatProvider

	// ClassifyImage classifies a leaf image; confidence is guaranteed to be in [0,1]
	ClassifyImage(ctx context.Context, image *entities.MediaBlob, language string) (*entities.Classification, error)
	// ChatWithContext sends one stateless chat message
	ChatWithContext(ctx context.Context, req ContextChatRequest) (*ChatReply, error)
	// ProcessVoice transcribes, answers and synthesizes in one call
	ProcessVoice(ctx context.Context, req VoiceRequest) (*VoiceReply, error)
	// Transcribe converts speech to text only
	Transcribe(ctx context.Context, audio *entities.MediaBlob, language string) (string, error)
	// TextToSpeech synthesizes text, returning base64 audio
	TextToSpeech(ctx context.Context, text, language string) (*SpeechReply, error)
	// Health reports overall and per-service status
	Health(ctx context.Context) (*HealthStatus, error)
	// SupportedLanguages lists text and voice languages
	SupportedLanguages(ctx context.Context) (*LanguageSupport, error)
	// ClassificationHealth checks the classifier service alone
	ClassificationHealth(ctx context.Context) (string, error)
	// RootHealth checks the API process
	RootHealth(ctx context.Context) (string, error)
}

// VoiceRequest is one recorded or uploaded utterance
type VoiceRequest struct {
	Audio          *entities.MediaBlob
	Language       string
	DiseaseContext *entities.DiseaseContext
}

// VoiceReply is the result of the voice round trip
type VoiceReply struct {
	TranscribedText string
	ResponseText    string
	// AudioBase64 is empty when the backend produced no speech
	AudioBase64 string
	VoiceUsed   string
	Language    string
}

// SpeechReply carries synthesized speech
type SpeechReply struct {
	AudioBase64 string
	Language    string
}

// HealthStatus is the system health report
type HealthStatus struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Timestamp string          `json:"timestamp,omitempty"`
	Services  map[string]bool `json:"services"`
}

// Healthy reports whether the overall status and every service are up
func (h *HealthStatus) Healthy() bool {
	if h == nil || (h.Status != "healthy" && h.Status != "ok") {
		return false
	}
	for _, up := range h.Services {
		if !up {
			return false
		}
	}
	return true
}

// LanguageSupport lists supported languages
type LanguageSupport struct {
	TextLanguages  []string          `json:"text_languages"`
	VoiceLanguages []string          `json:"voice_languages"`
	VoiceMapping   map[string]string `json:"voice_mapping"`
}
