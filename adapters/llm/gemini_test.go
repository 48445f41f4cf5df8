package llm

import (
	"context"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
)

func TestValidateGeminiConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GeminiConfig
		wantErr bool
	}{
		{"valid minimal", GeminiConfig{APIKey: "key"}, false},
		{"missing key", GeminiConfig{}, true},
		{"temperature too high", GeminiConfig{APIKey: "key", Temperature: 3}, true},
		{"topP too high", GeminiConfig{APIKey: "key", TopP: 1.5}, true},
		{"negative topK", GeminiConfig{APIKey: "key", TopK: -1}, true},
		{"negative tokens", GeminiConfig{APIKey: "key", MaxOutputTokens: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateGeminiConfig(tt.config); (err != nil) != tt.wantErr {
				t.Errorf("ValidateGeminiConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithDefaults(t *testing.T) {
	config := withDefaults(GeminiConfig{APIKey: "key", Temperature: 0.1})
	if config.Model != defaultModel || config.Temperature != 0.1 || config.MaxOutputTokens != defaultMaxTokens {
		t.Errorf("Unexpected config %+v", config)
	}
}

func TestConvertHistory(t *testing.T) {
	history := entities.ConversationHistory{
		{Role: entities.HistoryRoleUser, Content: "my leaves curl"},
		{Role: entities.HistoryRoleAssistant, Content: "That may be CMD."},
		{Role: entities.HistoryRoleUser, Content: "  "},
	}

	contents := convertHistory(history)
	if len(contents) != 2 {
		t.Fatalf("Expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[1].Role != string(genai.RoleModel) {
		t.Errorf("Unexpected roles %s %s", contents[0].Role, contents[1].Role)
	}
	if contents[1].Parts[0].Text != "That may be CMD." {
		t.Errorf("Unexpected text %q", contents[1].Parts[0].Text)
	}
}

func TestUserTurn(t *testing.T) {
	turn := userTurn(repositories.HistoryChatRequest{
		Message:        "What should I do?",
		Language:       "Yoruba",
		DiseaseContext: &entities.DiseaseContext{Disease: "Cassava Mosaic Disease (CMD)", Confidence: 0.88},
	})

	for _, want := range []string{"Yoruba", "Cassava Mosaic Disease (CMD)", "What should I do?"} {
		if !strings.Contains(turn, want) {
			t.Errorf("Turn %q missing %q", turn, want)
		}
	}
	if got := userTurn(repositories.HistoryChatRequest{Message: "hi"}); got != "hi" {
		t.Errorf("Bare message should pass through, got %q", got)
	}
}

// TestGemini_Integration requires a Gemini API key (skipped if GEMINI_API_KEY is not set)
func TestGemini_Integration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping Gemini integration test - GEMINI_API_KEY not set")
	}

	ctx := context.Background()
	provider, err := NewGemini(ctx, GeminiConfig{APIKey: apiKey}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewGemini failed: %v", err)
	}

	reply, err := provider.ChatWithHistory(ctx, repositories.HistoryChatRequest{
		Message:  "Name one symptom of cassava mosaic disease.",
		Language: "English",
	})
	if err != nil {
		t.Fatalf("ChatWithHistory failed: %v", err)
	}
	if reply.Text == "" {
		t.Error("Expected a non-empty reply")
	}
}
