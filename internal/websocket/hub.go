// Package websocket is the bridge between the conversation runtime and the
// rendering surfaces connected over WebSocket.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/audio"
	"github.com/satriahrh/casava/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for microphone chunks

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	// The bridge listens on a local address; any page served to this machine may connect
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Controls is the conversation surface driven by control messages
type Controls interface {
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (*usecase.Exchange, error)
	SendText(ctx context.Context, text string) (*usecase.Exchange, error)
	Speak(ctx context.Context, messageID string) (*audio.Handle, error)
	Play(messageID string) error
	Pause(messageID string)
	Stop(messageID string)
	PlaybackEnded(messageID string)
	Snapshot() usecase.State
}

// ChunkSink receives microphone frames for the active recording
type ChunkSink interface {
	Push(chunk []byte) error
	SetMimeType(mimeType string)
	// SetPermission records whether the browser granted the microphone
	SetPermission(granted bool)
}

// Ensure Hub implements the PlaybackSurface interface
var _ repositories.PlaybackSurface = (*Hub)(nil)

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed once Run returns
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	controls  Controls
	mic       ChunkSink
	validator *MessageValidator

	// ctx bounds operations started by control messages
	ctx context.Context

	lastNotice time.Time

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		validator:  NewMessageValidator(),
		ctx:        context.Background(),
		logger:     logger,
	}
}

// Bind connects the hub to the conversation it drives. Call before serving.
func (h *Hub) Bind(controls Controls, mic ChunkSink) {
	h.controls = controls
	h.mic = mic
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.id))

			if h.controls != nil {
				client.sendEvent(domain.NewEvent(domain.EventState, h.controls.Snapshot()))
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))
		}
	}
}

func (h *Hub) context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// ClientCount returns the number of connected surfaces
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client. Clients too slow to keep up are dropped.
func (h *Hub) Broadcast(event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		select {
		case client.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		default:
			h.logger.Warn("Dropping slow client", zap.String("clientID", id))
			delete(h.clients, id)
			close(client.send)
		}
	}
}

// PublishState broadcasts a conversation snapshot, plus a notice event when
// the visible notice changed.
func (h *Hub) PublishState(state usecase.State) {
	h.Broadcast(domain.NewEvent(domain.EventState, state))

	if state.Notice == nil {
		return
	}
	h.mu.Lock()
	fresh := !state.Notice.At.Equal(h.lastNotice)
	h.lastNotice = state.Notice.At
	h.mu.Unlock()

	if fresh {
		h.Broadcast(domain.NewEvent(domain.EventNotice, state.Notice))
	}
}

// PublishAuth broadcasts a credential change
func (h *Hub) PublishAuth(state domain.AuthState) {
	h.Broadcast(domain.NewEvent(domain.EventAuth, state))
}

// Start implements repositories.PlaybackSurface
func (h *Hub) Start(messageID, handle string) {
	h.Broadcast(CreatePlaybackMessage(PlaybackStart, messageID, handle))
}

// Halt implements repositories.PlaybackSurface
func (h *Hub) Halt(messageID string) {
	h.Broadcast(CreatePlaybackMessage(PlaybackHalt, messageID, ""))
}

// WriteData is one outbound frame
type WriteData struct {
	// Type is websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	id     string
	logger *zap.Logger

	chunkCount int
}

// HandleWebSocket handles websocket requests from the peer.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	id := uuid.NewString()
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan WriteData, sendBuffer),
		id:     id,
		logger: logger.With(zap.String("clientID", id)),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendEvent queues an event for this client only
func (c *Client) sendEvent(event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Client send buffer full, event dropped", zap.String("type", string(event.Type)))
	}
}

// processMessage dispatches one control message. Calls that wait on the
// network run in their own goroutine so microphone frames keep flowing.
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid control message", zap.Error(err))
		c.sendEvent(CreateErrorMessage("invalid_message", "Invalid message", err.Error(), ""))
		return
	}

	controls := c.hub.controls
	if controls == nil && msg.Type != MessageTypePing {
		c.sendEvent(CreateErrorMessage("unavailable", "Conversation is not ready", "", msg.RequestID))
		return
	}

	ctx := c.hub.context()

	switch msg.Type {
	case MessageTypePing:
		c.sendEvent(CreatePongMessage(msg.Data))

	case MessageTypeRecordingStart:
		if c.hub.mic != nil {
			if msg.Granted != nil {
				c.hub.mic.SetPermission(*msg.Granted)
			}
			if msg.MimeType != "" {
				c.hub.mic.SetMimeType(msg.MimeType)
			}
		}
		c.chunkCount = 0
		c.report(msg, controls.StartRecording(ctx))

	case MessageTypeRecordingStop:
		c.logger.Info("Recording stop requested", zap.Int("chunks", c.chunkCount))
		go func() {
			_, err := controls.StopRecording(ctx)
			c.report(msg, err)
		}()

	case MessageTypeSendText:
		go func() {
			_, err := controls.SendText(ctx, msg.Text)
			c.report(msg, err)
		}()

	case MessageTypeSpeak:
		go func() {
			_, err := controls.Speak(ctx, msg.MessageID)
			c.report(msg, err)
		}()

	case MessageTypePlay:
		c.report(msg, controls.Play(msg.MessageID))

	case MessageTypePause:
		controls.Pause(msg.MessageID)

	case MessageTypeStop:
		controls.Stop(msg.MessageID)

	case MessageTypePlaybackEnded:
		controls.PlaybackEnded(msg.MessageID)
	}
}

func (c *Client) report(msg *ControlMessage, err error) {
	if err == nil {
		return
	}
	c.logger.Info("Control message failed",
		zap.String("type", string(msg.Type)),
		zap.String("kind", domain.Kind(err)),
		zap.Error(err))
	c.sendEvent(CreateErrorFromErr(err, msg.RequestID))
}

// processBinaryAudioChunk forwards microphone data to the active recording
func (c *Client) processBinaryAudioChunk(data []byte) {
	if c.hub.mic == nil {
		c.logger.Warn("Received binary audio chunk but no microphone is bound")
		return
	}

	if err := c.hub.mic.Push(data); err != nil {
		c.logger.Warn("Dropped audio chunk", zap.Int("size", len(data)), zap.Error(err))
		c.sendEvent(CreateErrorFromErr(err, ""))
		return
	}

	c.chunkCount++
	c.logger.Debug("Forwarded audio chunk",
		zap.Int("size", len(data)),
		zap.Int("totalChunks", c.chunkCount))
}
