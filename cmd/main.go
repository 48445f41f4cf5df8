package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/casava/adapters/authapi"
	"github.com/satriahrh/casava/adapters/backend"
	"github.com/satriahrh/casava/adapters/llm"
	"github.com/satriahrh/casava/adapters/mongo"
	"github.com/satriahrh/casava/adapters/tokenstore"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/api"
	"github.com/satriahrh/casava/internal/audio"
	"github.com/satriahrh/casava/internal/config"
	"github.com/satriahrh/casava/internal/logging"
	"github.com/satriahrh/casava/internal/media"
	"github.com/satriahrh/casava/internal/playback"
	"github.com/satriahrh/casava/internal/transport"
	"github.com/satriahrh/casava/internal/websocket"
	"github.com/satriahrh/casava/usecase"
)

// recordingMimeType is what browser MediaRecorder produces by default
const recordingMimeType = "audio/webm"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Token storage
	tokens, closeTokens, err := newTokenStore(ctx, cfg.Token, logger)
	if err != nil {
		logger.Fatal("Failed to initialize token store", zap.Error(err))
	}
	defer closeTokens()

	// Initialize adapters
	backendClient := backend.NewClient(
		transport.New(cfg.Backend.URL, cfg.Backend.Timeout, logger.Named("backend")),
		cfg.Language.Default,
		logger,
	)
	authClient := authapi.NewClient(
		transport.New(cfg.Backend.AuthURL, cfg.Backend.Timeout, logger.Named("auth")),
		transport.New(cfg.Backend.AdminURL, cfg.Backend.Timeout, logger.Named("admin")),
		logger,
	)

	strategy, provider, err := newChatProvider(ctx, cfg.Chat, logger)
	if err != nil {
		logger.Fatal("Failed to initialize chat provider", zap.Error(err))
	}

	mic := media.NewPushMicrophone(recordingMimeType)
	capture := media.NewCapture(mic,
		media.DefaultImagePolicy(cfg.Media.MaxFileSize, cfg.Media.ImageTypes),
		media.DefaultAudioPolicy(cfg.Media.MaxFileSize, cfg.Media.AudioTypes),
		logger)

	handles := audio.NewRegistry(logger)
	sweeper := audio.NewSweeper(handles, cfg.Media.HandleSweepInterval, logger)
	sweeper.Start()
	defer sweeper.Stop()

	// The hub is the playback surface; controls are bound once the services exist
	hub := websocket.NewHub(logger)
	player := playback.NewController(hub, logger)

	// Initialize usecase services
	chatService, err := usecase.NewChatService(strategy, backendClient, provider, logger)
	if err != nil {
		logger.Fatal("Failed to initialize chat service", zap.Error(err))
	}
	conversationService := usecase.NewConversationService(backendClient, chatService, capture, handles, player, usecase.ConversationConfig{
		Languages: cfg.Language,
		SpeechTTL: cfg.Media.HandleTTL,
		Greeting:  true,
	}, logger)
	authService := usecase.NewAuthService(authClient, tokens, logger)

	hub.Bind(conversationService, mic)
	conversationService.OnChange(hub.PublishState)
	authService.OnChange(hub.PublishAuth)

	go hub.Run(ctx)
	go func() {
		if err := authService.Watch(ctx); err != nil {
			logger.Warn("Token watch stopped", zap.Error(err))
		}
	}()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(bodyLimit(cfg.Media.MaxFileSize)))

	// Initialize API routes
	api.InitRoutes(e, api.Services{
		Conversation:   conversationService,
		Diagnosis:      usecase.NewDiagnosisService(backendClient, capture, conversationService, logger),
		Auth:           authService,
		Admin:          usecase.NewAdminService(authClient, authService, logger),
		System:         usecase.NewSystemService(backendClient, logger),
		Handles:        handles,
		Hub:            hub,
		Microphone:     mic,
		MaxUploadBytes: cfg.Media.MaxFileSize,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Casava bridge started",
		zap.String("addr", cfg.Server.ListenAddr),
		zap.String("backend", cfg.Backend.URL),
		zap.String("chatStrategy", string(strategy)),
		zap.String("tokenStore", cfg.Token.Store))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newTokenStore builds the configured store and a func releasing its resources
func newTokenStore(ctx context.Context, cfg config.TokenConfig, logger *zap.Logger) (repositories.TokenStore, func(), error) {
	switch cfg.Store {
	case config.TokenStoreMemory:
		return tokenstore.NewMemoryStore(), func() {}, nil

	case config.TokenStoreMongo:
		client, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(closeCtx)
		}
		return mongo.NewTokenRepository(client.Database, "default", cfg.PollInterval, logger), closeFn, nil

	default:
		store, err := tokenstore.NewFileStore(cfg.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func newChatProvider(ctx context.Context, cfg config.ChatConfig, logger *zap.Logger) (usecase.ChatStrategy, repositories.ChatProvider, error) {
	switch cfg.Strategy {
	case config.ChatGemini:
		gemini, err := llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		}, logger)
		if err != nil {
			return "", nil, err
		}
		return usecase.StrategyProvider, gemini, nil
	case config.ChatHistory:
		return usecase.StrategyHistory, nil, nil
	default:
		return usecase.StrategyContext, nil, nil
	}
}

// bodyLimit leaves room for multipart framing around the largest accepted file
func bodyLimit(maxFileSize int64) string {
	const overhead = 1024 * 1024
	return strconv.FormatInt((maxFileSize+overhead)/1024, 10) + "K"
}
