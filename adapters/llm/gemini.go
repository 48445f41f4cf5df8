// Package llm answers chat messages with Google's Gemini models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/transport"
)

const (
	defaultModel       = "gemini-2.0-flash"
	defaultTemperature = 0.4
	defaultTopP        = 0.9
	defaultTopK        = 40
	defaultMaxTokens   = 1024
)

const systemPrompt = `You are an agricultural extension officer helping smallholder farmers grow cassava.
Give practical, low-cost advice that a farmer can act on in the field.
Cover cassava diseases (mosaic disease, brown streak, bacterial blight), pests, soil, planting and harvest.
Keep answers short and concrete. When unsure, recommend contacting a local extension officer.
Always answer in the language the farmer asks for.`

// GeminiConfig holds configuration for the Gemini chat provider
// Required fields:
// - APIKey: Google AI API key
// Optional fields fall back to the package defaults.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("google AI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("maxOutputTokens must be positive, got %d", config.MaxOutputTokens)
	}
	return nil
}

// Gemini implements ChatProvider. It keeps no conversation state: the caller
// sends the full history with every message.
type Gemini struct {
	client   *genai.Client
	model    string
	settings *genai.GenerateContentConfig
	logger   *zap.Logger
}

// Ensure Gemini implements the ChatProvider interface
var _ repositories.ChatProvider = (*Gemini)(nil)

// NewGemini creates a Gemini chat provider
func NewGemini(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	config = withDefaults(config)
	logger.Info("Gemini chat provider ready", zap.String("model", config.Model))

	return &Gemini{
		client:   client,
		model:    config.Model,
		settings: generationSettings(config),
		logger:   logger,
	}, nil
}

func withDefaults(config GeminiConfig) GeminiConfig {
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}
	if config.TopP == 0 {
		config.TopP = defaultTopP
	}
	if config.TopK == 0 {
		config.TopK = defaultTopK
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = defaultMaxTokens
	}
	return config
}

func generationSettings(config GeminiConfig) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(config.Temperature),
		TopP:              genai.Ptr(config.TopP),
		TopK:              genai.Ptr(config.TopK),
		MaxOutputTokens:   int32(config.MaxOutputTokens),
	}
}

// ChatWithHistory implements ChatProvider. Failures are returned, never papered over here.
func (g *Gemini) ChatWithHistory(ctx context.Context, req repositories.HistoryChatRequest) (*repositories.ChatReply, error) {
	const op = "gemini chat"

	contents := convertHistory(req.History)
	contents = append(contents, genai.NewContentFromText(userTurn(req), genai.RoleUser))

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.settings)
	if err != nil {
		g.logger.Warn("Failed to generate content", zap.String("model", g.model), zap.Error(err))
		if transport.IsTimeout(err) || errors.Is(err, context.Canceled) {
			return nil, &domain.NetworkError{Op: op, Err: err}
		}
		return nil, &domain.ServiceError{Op: op, Status: http.StatusBadGateway, Message: "The assistant is unavailable right now"}
	}

	text := responseText(response)
	if text == "" {
		return nil, &domain.DecodeError{Op: op, Err: errors.New("no content generated")}
	}

	g.logger.Info("Chat message processed",
		zap.Int("historyLength", len(req.History)),
		zap.Int("responseLength", len(text)))

	return &repositories.ChatReply{Text: text, Language: req.Language}, nil
}

// userTurn prefixes the message with the language and any diagnosed disease
func userTurn(req repositories.HistoryChatRequest) string {
	var b strings.Builder
	if req.Language != "" {
		fmt.Fprintf(&b, "[Answer in %s]\n", req.Language)
	}
	if req.DiseaseContext != nil && req.DiseaseContext.Disease != "" {
		fmt.Fprintf(&b, "[Diagnosed from my leaf photo: %s]\n", req.DiseaseContext)
	}
	b.WriteString(req.Message)
	return b.String()
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(text.String())
}

// convertHistory converts the conversation projection to Gemini contents
func convertHistory(history entities.ConversationHistory) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, entry := range history {
		if strings.TrimSpace(entry.Content) == "" {
			continue
		}
		var role genai.Role = genai.RoleUser
		if entry.Role == entities.HistoryRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(entry.Content, role))
	}
	return contents
}
