// Package backend is the typed gateway over the advisory API.
package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/audio"
	"github.com/satriahrh/casava/internal/transport"
)

// Client implements AdvisoryBackend over HTTP
type Client struct {
	http            *transport.Client
	defaultLanguage string
	logger          *zap.Logger
}

// Ensure Client implements the AdvisoryBackend interface
var _ repositories.AdvisoryBackend = (*Client)(nil)

// NewClient creates a gateway using tc for every round trip
func NewClient(tc *transport.Client, defaultLanguage string, logger *zap.Logger) *Client {
	if defaultLanguage == "" {
		defaultLanguage = "English"
	}
	return &Client{http: tc, defaultLanguage: defaultLanguage, logger: logger}
}

func (c *Client) language(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return c.defaultLanguage
	}
	return lang
}

type classificationData struct {
	PredictedClass string   `json:"predicted_class"`
	Confidence     *float64 `json:"confidence"`
	Recommendation string   `json:"recommendation"`
}

type classificationResponse struct {
	Success        *bool               `json:"success"`
	Message        string              `json:"message"`
	Data           *classificationData `json:"data"`
	PredictedClass string              `json:"predicted_class"`
	Disease        string              `json:"disease"`
	Confidence     *float64            `json:"confidence"`
	Recommendation string              `json:"recommendation"`
	InitialMessage string              `json:"initial_message"`
	Language       string              `json:"language"`
	// Legacy fields
	Description     string   `json:"description"`
	Symptoms        []string `json:"symptoms"`
	Recommendations []string `json:"recommendations"`
}

// ClassifyImage implements AdvisoryBackend
func (c *Client) ClassifyImage(ctx context.Context, image *entities.MediaBlob, language string) (*entities.Classification, error) {
	const op = "classify image"
	if image == nil || image.Size() == 0 {
		return nil, &domain.ValidationError{Field: "image", Reason: "Please select an image to classify"}
	}

	form := &transport.Form{}
	form.Add("language", c.language(language))
	form.Files = append(form.Files, audio.EncodeForUpload("image", image))

	var resp classificationResponse
	if err := c.http.Do(ctx, op, transport.Request{Method: http.MethodPost, Path: "/api/classify/image", Form: form}, &resp); err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, &domain.ServiceError{Op: op, Status: http.StatusOK, Message: orDefault(resp.Message, "Classification failed")}
	}

	result, err := resp.toClassification()
	if err != nil {
		return nil, &domain.DecodeError{Op: op, Err: err}
	}
	if result.Language == "" {
		result.Language = c.language(language)
	}

	c.logger.Info("Image classified",
		zap.String("label", result.Label),
		zap.Float64("confidence", result.Confidence),
		zap.Int64("imageSize", image.Size()))
	return result, nil
}

func (r classificationResponse) toClassification() (*entities.Classification, error) {
	label, confidence, advice := r.PredictedClass, r.Confidence, r.Recommendation
	if r.Data != nil {
		if r.Data.PredictedClass != "" {
			label = r.Data.PredictedClass
		}
		if r.Data.Confidence != nil {
			confidence = r.Data.Confidence
		}
		if r.Data.Recommendation != "" {
			advice = r.Data.Recommendation
		}
	}
	if label == "" {
		label = r.Disease
	}

	if label == "" {
		return nil, errors.New("missing predicted class")
	}
	if confidence == nil {
		return nil, errors.New("missing confidence")
	}
	if math.IsNaN(*confidence) || *confidence < 0 || *confidence > 1 {
		return nil, fmt.Errorf("confidence %v outside [0,1]", *confidence)
	}

	return &entities.Classification{
		Label:           label,
		Confidence:      *confidence,
		Advice:          advice,
		InitialMessage:  r.InitialMessage,
		Description:     r.Description,
		Symptoms:        r.Symptoms,
		Recommendations: r.Recommendations,
		Language:        r.Language,
	}, nil
}

// ChatWithContext implements AdvisoryBackend
func (c *Client) ChatWithContext(ctx context.Context, req repositories.ContextChatRequest) (*repositories.ChatReply, error) {
	const op = "chat with context"

	query := url.Values{}
	query.Set("message", req.Message)
	query.Set("language", c.language(req.Language))
	if req.DiseaseContext != nil && req.DiseaseContext.Disease != "" {
		query.Set("disease_detected", req.DiseaseContext.Disease)
		query.Set("confidence", strconv.FormatFloat(req.DiseaseContext.Confidence, 'f', -1, 64))
	}

	var reply repositories.ChatReply
	if err := c.http.Do(ctx, op, transport.Request{Method: http.MethodPost, Path: "/api/chat/context", Query: query}, &reply); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, &domain.DecodeError{Op: op, Err: errors.New("empty response text")}
	}
	return &reply, nil
}

// ChatWithHistory implements ChatProvider
func (c *Client) ChatWithHistory(ctx context.Context, req repositories.HistoryChatRequest) (*repositories.ChatReply, error) {
	const op = "chat with history"

	req.Language = c.language(req.Language)
	if req.History == nil {
		req.History = entities.ConversationHistory{}
	}

	var reply repositories.ChatReply
	if err := c.http.Do(ctx, op, transport.Request{Method: http.MethodPost, Path: "/api/chat/text", JSON: req}, &reply); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply.Text) == "" {
		return nil, &domain.DecodeError{Op: op, Err: errors.New("empty response text")}
	}
	return &reply, nil
}

type voiceResponse struct {
	Success        *bool  `json:"success"`
	Message        string `json:"message"`
	UserText       string `json:"user_text"`
	AIResponse     string `json:"ai_response"`
	AudioData      string `json:"audio_data"`
	AudioAvailable *bool  `json:"audio_available"`
	VoiceUsed      string `json:"voice_used"`
	UserLanguage   string `json:"user_language"`
	// Legacy fields
	Transcription string `json:"transcription"`
	Response      string `json:"response"`
	Language      string `json:"language"`
}

// ProcessVoice implements AdvisoryBackend
func (c *Client) ProcessVoice(ctx context.Context, req repositories.VoiceRequest) (*repositories.VoiceReply, error) {
	const op = "process voice"
	if req.Audio == nil || req.Audio.Size() == 0 {
		return nil, &domain.ValidationError{Field: "audio", Reason: "No audio was recorded. Please try again."}
	}

	form := &transport.Form{}
	form.Add("language", c.language(req.Language))
	if ctxText := req.DiseaseContext.String(); ctxText != "" {
		form.Add("disease_context", ctxText)
	}
	form.Files = append(form.Files, audio.EncodeForUpload("audio", req.Audio))

	var resp voiceResponse
	if err := c.http.Do(ctx, op, transport.Request{Method: http.MethodPost, Path: "/api/voice/process", Form: form}, &resp); err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, &domain.ServiceError{Op: op, Status: http.StatusOK, Message: orDefault(resp.Message, "Voice processing failed")}
	}

	reply := &repositories.VoiceReply{
		TranscribedText: orDefault(resp.UserText, resp.Transcription),
		ResponseText:    orDefault(resp.AIResponse, resp.Response),
		VoiceUsed:       resp.VoiceUsed,
		Language:        orDefault(resp.UserLanguage, resp.Language),
	}
	if resp.AudioAvailable == nil || *resp.AudioAvailable {
		reply.AudioBase64 = resp.AudioData
	}

	if strings.TrimSpace(reply.TranscribedText) == "" || strings.TrimSpace(reply.ResponseText) == "" {
		return nil, &domain.DecodeError{Op: op, Err: errors.New("missing transcription or response")}
	}

	c.logger.Info("Voice processed",
		zap.Int("transcriptLength", len(reply.TranscribedText)),
		zap.Int("responseLength", len(reply.ResponseText)),
		zap.Bool("audio", reply.AudioBase64 != ""),
		zap.String("voice", reply.VoiceUsed))
	return reply, nil
}

// Transcribe implements AdvisoryBackend
func (c *Client) Transcribe(ctx context.Context, blob *entities.MediaBlob, language string) (string, error) {
	const op = "transcribe"
	if blob == nil || blob.Size() == 0 {
		return "", &domain.ValidationError{Field: "audio", Reason: "No audio was recorded. Please try again."}
	}

	form := &transport.Form{}
	form.Add("language", c.language(language))
	form.Files = append(form.Files, audio.EncodeForUpload("audio", blob))

	var resp struct {
		Transcription string `json:"transcription"`
	}
	if err := c.http.Do(ctx, op, transport.Request{Method: http.MethodPost, Path: "/api/voice/transcribe", Form: form}, &resp); err != nil {
		return "", err
	}
	return resp.Transcription, nil
}

// TextToSpeech implements AdvisoryBackend
func (c *Client) TextToSpeech(ctx context.Context, text, language string) (*repositories.SpeechReply, error) {
	const op = "text to speech"
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyMessage
	}

	form := &transport.Form{}
	form.Add("text", text)
	form.Add("language", c.language(language))

	var resp struct {
		AudioData string `json:"audio_data"`
		Language  string `json:"language"`
	}
	if err := c.http.Do(ctx, op, transport.Request{Method: http.MethodPost, Path: "/api/voice/synthesize", Form: form}, &resp); err != nil {
		return nil, err
	}
	return &repositories.SpeechReply{AudioBase64: resp.AudioData, Language: orDefault(resp.Language, c.language(language))}, nil
}

// Health implements AdvisoryBackend
func (c *Client) Health(ctx context.Context) (*repositories.HealthStatus, error) {
	const op = "health"

	var status repositories.HealthStatus
	if err := c.http.Do(ctx, op, transport.Request{Path: "/api/system/health"}, &status); err != nil {
		return nil, err
	}
	if status.Status == "" {
		return nil, &domain.DecodeError{Op: op, Err: errors.New("missing status")}
	}
	if status.Services == nil {
		status.Services = map[string]bool{}
	}
	return &status, nil
}

// SupportedLanguages implements AdvisoryBackend
func (c *Client) SupportedLanguages(ctx context.Context) (*repositories.LanguageSupport, error) {
	const op = "supported languages"

	var resp struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
		repositories.LanguageSupport
	}
	if err := c.http.Do(ctx, op, transport.Request{Path: "/api/system/languages"}, &resp); err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, &domain.ServiceError{Op: op, Status: http.StatusOK, Message: orDefault(resp.Error, orDefault(resp.Message, "Failed to load languages"))}
	}
	return &resp.LanguageSupport, nil
}

// ClassificationHealth implements AdvisoryBackend
func (c *Client) ClassificationHealth(ctx context.Context) (string, error) {
	return c.status(ctx, "classification health", "/api/classify/health")
}

// RootHealth implements AdvisoryBackend
func (c *Client) RootHealth(ctx context.Context) (string, error) {
	return c.status(ctx, "root health", "/health")
}

func (c *Client) status(ctx context.Context, op, path string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.http.Do(ctx, op, transport.Request{Path: path}, &resp); err != nil {
		return "", err
	}
	if resp.Status == "" {
		return "", &domain.DecodeError{Op: op, Err: errors.New("missing status")}
	}
	return resp.Status, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
