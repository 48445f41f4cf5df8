package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain/repositories"
)

// ChatStrategy selects how a text message is answered
type ChatStrategy string

const (
	// StrategyContext sends each message alone with the current disease context
	StrategyContext ChatStrategy = "context"
	// StrategyHistory sends the whole conversation to the backend
	StrategyHistory ChatStrategy = "history"
	// StrategyProvider sends the whole conversation to a direct model provider
	StrategyProvider ChatStrategy = "provider"
)

// ChatService answers one text turn using the configured strategy
type ChatService struct {
	strategy ChatStrategy
	backend  repositories.AdvisoryBackend
	provider repositories.ChatProvider
	logger   *zap.Logger
}

// NewChatService creates a chat service. provider is only needed for StrategyProvider.
func NewChatService(strategy ChatStrategy, backend repositories.AdvisoryBackend, provider repositories.ChatProvider, logger *zap.Logger) (*ChatService, error) {
	switch strategy {
	case "":
		strategy = StrategyContext
	case StrategyContext, StrategyHistory:
	case StrategyProvider:
		if provider == nil {
			return nil, fmt.Errorf("chat strategy %q needs a provider", strategy)
		}
	default:
		return nil, fmt.Errorf("unknown chat strategy %q", strategy)
	}

	return &ChatService{
		strategy: strategy,
		backend:  backend,
		provider: provider,
		logger:   logger,
	}, nil
}

// Strategy returns the active strategy
func (s *ChatService) Strategy() ChatStrategy {
	return s.strategy
}

// Reply answers req.Message. req.History holds the turns before it.
func (s *ChatService) Reply(ctx context.Context, req repositories.HistoryChatRequest) (*repositories.ChatReply, error) {
	s.logger.Debug("Answering chat message",
		zap.String("strategy", string(s.strategy)),
		zap.String("language", req.Language),
		zap.Int("historyLength", len(req.History)))

	switch s.strategy {
	case StrategyHistory:
		return s.backend.ChatWithHistory(ctx, req)
	case StrategyProvider:
		return s.provider.ChatWithHistory(ctx, req)
	default:
		return s.backend.ChatWithContext(ctx, repositories.ContextChatRequest{
			Message:        req.Message,
			Language:       req.Language,
			DiseaseContext: req.DiseaseContext,
		})
	}
}
