// Package config provides configuration management for the casava client runtime
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Token store kinds
const (
	TokenStoreFile   = "file"
	TokenStoreMemory = "memory"
	TokenStoreMongo  = "mongo"
)

// Chat strategies
const (
	ChatContext = "context"
	ChatHistory = "history"
	ChatGemini  = "gemini"
)

// Config holds all application configuration
type Config struct {
	Backend  BackendConfig
	Media    MediaConfig
	Language LanguageConfig
	Token    TokenConfig
	Chat     ChatConfig
	Server   ServerConfig
	Log      LogConfig
}

// BackendConfig configures the advisory and auth APIs
type BackendConfig struct {
	URL     string
	AuthURL string
	// AdminURL hosts /api/admin/users
	AdminURL string
	Timeout  time.Duration
}

// MediaConfig configures accepted files and playback handles
type MediaConfig struct {
	MaxFileSize         int64
	ImageTypes          []string
	AudioTypes          []string
	HandleTTL           time.Duration
	HandleSweepInterval time.Duration
}

// LanguageConfig configures the selectable conversation languages
type LanguageConfig struct {
	Default   string
	Supported []string
}

// TokenConfig selects where the bearer token lives
type TokenConfig struct {
	Store         string
	Path          string
	MongoURI      string
	MongoDatabase string
	PollInterval  time.Duration
}

// ChatConfig selects how chat replies are produced
type ChatConfig struct {
	Strategy     string
	GeminiAPIKey string
	GeminiModel  string
}

// ServerConfig configures the local bridge
type ServerConfig struct {
	ListenAddr string
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"backend_url":           "http://localhost:8000",
	"auth_url":              "",
	"admin_url":             "",
	"request_timeout":       30 * time.Second,
	"max_file_size":         int64(10 * 1024 * 1024),
	"image_types":           "image/jpeg,image/jpg,image/png,image/gif",
	"audio_types":           "audio/wav,audio/mp3,audio/mpeg,audio/ogg",
	"handle_ttl":            10 * time.Minute,
	"handle_sweep_interval": time.Minute,
	"default_language":      "English",
	"supported_languages":   "English,Spanish,French,Portuguese,Swahili,Yoruba,Igbo,Hausa",
	"token_store":           TokenStoreFile,
	"token_path":            "~/.casava/auth_token",
	"mongodb_uri":           "mongodb://localhost:27017",
	"mongodb_database":      "casava",
	"token_poll_interval":   2 * time.Second,
	"chat_strategy":         ChatContext,
	"gemini_api_key":        "",
	"gemini_model":          "gemini-2.0-flash",
	"listen_addr":           ":8080",
	"log_level":             "info",
	"log_format":            "json",
}

// Load reads .env (when present), an optional casava.yaml and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("casava")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".casava"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper builds and validates a Config from v with defaults and environment applied
func FromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	backendURL := strings.TrimRight(strings.TrimSpace(v.GetString("backend_url")), "/")

	cfg := &Config{
		Backend: BackendConfig{
			URL:      backendURL,
			AuthURL:  strings.TrimRight(orDefault(v.GetString("auth_url"), backendURL+"/api/auth"), "/"),
			AdminURL: strings.TrimRight(orDefault(v.GetString("admin_url"), backendURL), "/"),
			Timeout:  v.GetDuration("request_timeout"),
		},
		Media: MediaConfig{
			MaxFileSize:         v.GetInt64("max_file_size"),
			ImageTypes:          splitList(v.GetString("image_types")),
			AudioTypes:          splitList(v.GetString("audio_types")),
			HandleTTL:           v.GetDuration("handle_ttl"),
			HandleSweepInterval: v.GetDuration("handle_sweep_interval"),
		},
		Language: LanguageConfig{
			Default:   strings.TrimSpace(v.GetString("default_language")),
			Supported: splitList(v.GetString("supported_languages")),
		},
		Token: TokenConfig{
			Store:         strings.ToLower(v.GetString("token_store")),
			Path:          expandHome(v.GetString("token_path")),
			MongoURI:      v.GetString("mongodb_uri"),
			MongoDatabase: v.GetString("mongodb_database"),
			PollInterval:  v.GetDuration("token_poll_interval"),
		},
		Chat: ChatConfig{
			Strategy:     strings.ToLower(v.GetString("chat_strategy")),
			GeminiAPIKey: v.GetString("gemini_api_key"),
			GeminiModel:  v.GetString("gemini_model"),
		},
		Server: ServerConfig{
			ListenAddr: v.GetString("listen_addr"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot work with
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("BACKEND_URL is required")
	}
	if _, err := url.ParseRequestURI(c.Backend.URL); err != nil {
		return fmt.Errorf("invalid BACKEND_URL: %w", err)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.Backend.Timeout)
	}
	if c.Media.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.Media.MaxFileSize)
	}
	if len(c.Media.ImageTypes) == 0 || len(c.Media.AudioTypes) == 0 {
		return errors.New("IMAGE_TYPES and AUDIO_TYPES must not be empty")
	}
	if c.Media.HandleSweepInterval <= 0 {
		return fmt.Errorf("HANDLE_SWEEP_INTERVAL must be positive, got %s", c.Media.HandleSweepInterval)
	}
	if !c.Language.IsSupported(c.Language.Default) {
		return fmt.Errorf("DEFAULT_LANGUAGE %q is not in SUPPORTED_LANGUAGES", c.Language.Default)
	}

	switch c.Token.Store {
	case TokenStoreFile:
		if c.Token.Path == "" {
			return errors.New("TOKEN_PATH is required for the file token store")
		}
	case TokenStoreMongo:
		if c.Token.MongoURI == "" || c.Token.MongoDatabase == "" {
			return errors.New("MONGODB_URI and MONGODB_DATABASE are required for the mongo token store")
		}
		if c.Token.PollInterval <= 0 {
			return fmt.Errorf("TOKEN_POLL_INTERVAL must be positive, got %s", c.Token.PollInterval)
		}
	case TokenStoreMemory:
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q", c.Token.Store)
	}

	switch c.Chat.Strategy {
	case ChatContext, ChatHistory:
	case ChatGemini:
		if c.Chat.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required for the gemini chat strategy")
		}
	default:
		return fmt.Errorf("unknown CHAT_STRATEGY %q", c.Chat.Strategy)
	}

	return nil
}

// IsSupported reports whether language is selectable, ignoring case
func (l LanguageConfig) IsSupported(language string) bool {
	for _, s := range l.Supported {
		if strings.EqualFold(s, language) {
			return true
		}
	}
	return false
}

// Canonical returns the configured spelling of language
func (l LanguageConfig) Canonical(language string) (string, bool) {
	for _, s := range l.Supported {
		if strings.EqualFold(s, strings.TrimSpace(language)) {
			return s, true
		}
	}
	return "", false
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
