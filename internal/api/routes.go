// Package api is the local REST surface of the bridge.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/audio"
	"github.com/satriahrh/casava/internal/transport"
	"github.com/satriahrh/casava/internal/websocket"
	"github.com/satriahrh/casava/usecase"
)

// detailConfidence is the confidence below which symptom and recommendation
// details are hidden from the diagnosis view
const detailConfidence = 0.7

// MicrophonePermission receives the browser's microphone permission answer
type MicrophonePermission interface {
	SetPermission(granted bool)
}

// Services are the use cases the routes expose
type Services struct {
	Conversation *usecase.ConversationService
	Diagnosis    *usecase.DiagnosisService
	Auth         *usecase.AuthService
	Admin        *usecase.AdminService
	System       *usecase.SystemService
	Handles      *audio.Registry
	Hub          *websocket.Hub
	Microphone   MicrophonePermission
	// MaxUploadBytes bounds how much of an uploaded file is read
	MaxUploadBytes int64
}

type handler struct {
	Services
	logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, services Services, logger *zap.Logger) {
	h := &handler{Services: services, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "casava-bridge",
		})
	})

	api := e.Group("/api")

	// Conversation
	api.GET("/session", h.session)
	api.POST("/chat", h.sendText)
	api.POST("/voice/start", h.startRecording)
	api.POST("/voice/stop", h.stopRecording)
	api.POST("/voice/upload", h.uploadVoice)
	api.POST("/messages/:id/speak", h.speak)
	api.POST("/messages/:id/play", h.play)
	api.POST("/messages/:id/pause", h.pause)
	api.POST("/messages/:id/stop", h.stop)
	api.POST("/messages/:id/ended", h.ended)
	api.POST("/session/language", h.setLanguage)
	api.POST("/session/draft", h.setDraft)
	api.POST("/session/reset", h.reset)
	api.DELETE("/notice", h.dismissNotice)

	// Diagnosis
	api.POST("/diagnose", h.diagnose)

	// Auth
	api.POST("/auth/login", h.login)
	api.POST("/auth/signup", h.signup)
	api.POST("/auth/logout", h.logout)
	api.GET("/auth/me", h.me)

	// Admin
	api.GET("/admin/users", h.listUsers)
	api.PUT("/admin/users/:id/activate", h.activateUser)
	api.PUT("/admin/users/:id/deactivate", h.deactivateUser)

	// System
	api.GET("/system/status", h.systemStatus)

	// Playback media, the analogue of an object URL
	e.GET("/media/:handle", h.media)

	// WebSocket endpoint for rendering surfaces
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(h.Hub, c, logger)
	})
}

// errorStatus maps the error taxonomy to an HTTP status
func errorStatus(err error) int {
	switch domain.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "permission":
		return http.StatusForbidden
	case "auth":
		return http.StatusUnauthorized
	case "conflict":
		return http.StatusConflict
	case "not_found":
		return http.StatusNotFound
	case "network":
		if transport.IsTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case "service", "decode":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(c echo.Context, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err))
	}
	return c.JSON(status, ErrorResponse{
		Error:   domain.Kind(err),
		Message: domain.UserMessage(err),
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: message,
	})
}

func (h *handler) session(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Conversation.Snapshot())
}

func (h *handler) sendText(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	exchange, err := h.Conversation.SendText(c.Request().Context(), req.Text)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, exchange)
}

func (h *handler) startRecording(c echo.Context) error {
	var req RecordingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if req.Granted != nil && h.Microphone != nil {
		h.Microphone.SetPermission(*req.Granted)
	}

	if err := h.Conversation.StartRecording(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) stopRecording(c echo.Context) error {
	exchange, err := h.Conversation.StopRecording(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, exchange)
}

func (h *handler) uploadVoice(c echo.Context) error {
	file, err := h.readFile(c, "audio")
	if err != nil {
		return badRequest(c, err.Error())
	}

	exchange, err := h.Conversation.UploadVoice(c.Request().Context(), file)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, exchange)
}

func (h *handler) speak(c echo.Context) error {
	handle, err := h.Conversation.Speak(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if handle == nil {
		// Already being synthesized
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSON(http.StatusOK, handle)
}

func (h *handler) play(c echo.Context) error {
	if err := h.Conversation.Play(c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) pause(c echo.Context) error {
	h.Conversation.Pause(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) stop(c echo.Context) error {
	h.Conversation.Stop(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) ended(c echo.Context) error {
	h.Conversation.PlaybackEnded(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) setLanguage(c echo.Context) error {
	var req LanguageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if err := h.Conversation.SetLanguage(req.Language); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, h.Conversation.Snapshot())
}

func (h *handler) setDraft(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	h.Conversation.SetDraft(req.Text)
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) reset(c echo.Context) error {
	h.Conversation.Reset()
	return c.JSON(http.StatusOK, h.Conversation.Snapshot())
}

func (h *handler) dismissNotice(c echo.Context) error {
	h.Conversation.DismissNotice()
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) diagnose(c echo.Context) error {
	file, err := h.readFile(c, "image")
	if err != nil {
		return badRequest(c, err.Error())
	}

	language := c.FormValue("language")
	if language == "" {
		language = h.Conversation.Language()
	}
	attach, _ := strconv.ParseBool(c.FormValue("attach"))

	result, err := h.Diagnosis.Diagnose(c.Request().Context(), file, language, attach)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, DiagnoseResponse{
		Classification: result,
		ShowDetails:    result.Confidence >= detailConfidence,
	})
}

func (h *handler) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	identity, err := h.Auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, LoginResponse{Authenticated: true, Identity: identity})
}

func (h *handler) signup(c echo.Context) error {
	var req repositories.SignupRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	result, err := h.Auth.Signup(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *handler) logout(c echo.Context) error {
	if err := h.Auth.Logout(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) me(c echo.Context) error {
	ctx := c.Request().Context()
	identity, _ := h.Auth.Identity(ctx)
	return c.JSON(http.StatusOK, LoginResponse{
		Authenticated: h.Auth.IsAuthenticated(ctx),
		Identity:      identity,
	})
}

func (h *handler) listUsers(c echo.Context) error {
	users, err := h.Admin.ListUsers(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *handler) activateUser(c echo.Context) error {
	return h.setUserActive(c, h.Admin.Activate)
}

func (h *handler) deactivateUser(c echo.Context) error {
	return h.setUserActive(c, h.Admin.Deactivate)
}

func (h *handler) setUserActive(c echo.Context, action func(ctx context.Context, userID int64) (string, error)) error {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return badRequest(c, "User id must be a number")
	}

	message, err := action(c.Request().Context(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: message})
}

func (h *handler) systemStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.System.Status(c.Request().Context()))
}

func (h *handler) media(c echo.Context) error {
	blob, _, ok := h.Handles.Open(c.Param("handle"))
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Audio is no longer available",
		})
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, blob.MimeType(), blob.Bytes())
}

// readFile reads one multipart file. At most MaxUploadBytes+1 bytes are read,
// enough for the size policy to reject an oversized file.
func (h *handler) readFile(c echo.Context, field string) (entities.FileInput, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return entities.FileInput{}, fmt.Errorf("a %s file is required", field)
	}

	f, err := header.Open()
	if err != nil {
		return entities.FileInput{}, fmt.Errorf("failed to open %s file", field)
	}
	defer f.Close()

	var r io.Reader = f
	if h.MaxUploadBytes > 0 {
		r = io.LimitReader(f, h.MaxUploadBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return entities.FileInput{}, errors.New("failed to read uploaded file")
	}

	return entities.FileInput{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}
