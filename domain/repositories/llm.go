package repositories

import (
	"context"

	"github.com/satriahrh/casava/domain/entities"
)

// ChatProvider answers a message given the full conversation so far
type ChatProvider interface {
	// ChatWithHistory sends one message plus the prior turns and returns the reply
	ChatWithHistory(ctx context.Context, req HistoryChatRequest) (*ChatReply, error)
}

// HistoryChatRequest is the multi-turn chat request
type HistoryChatRequest struct {
	Message        string                       `json:"message"`
	Language       string                       `json:"language,omitempty"`
	History        entities.ConversationHistory `json:"conversation_history"`
	DiseaseContext *entities.DiseaseContext     `json:"disease_context,omitempty"`
}

// ContextChatRequest is the stateless chat request; the caller supplies any context per call
type ContextChatRequest struct {
	Message        string
	Language       string
	DiseaseContext *entities.DiseaseContext
}

// ChatReply is the assistant answer
type ChatReply struct {
	Text      string `json:"response"`
	Language  string `json:"language,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}
