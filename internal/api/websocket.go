package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gifmaker-live/backend/internal/job"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types for the job status protocol
const (
	// Client -> Server messages
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypePing        = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeStatus    = "status"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const wsWriteTimeout = 10 * time.Second

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams job status updates to subscribed clients
type WebSocketHandler struct {
	jobs     JobRunner
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket job status handler
func NewWebSocketHandler(jobs JobRunner) *WebSocketHandler {
	return &WebSocketHandler{
		jobs: jobs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// wsClient serializes writes to one connection and tracks its subscriptions.
type wsClient struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]func()
	wg   sync.WaitGroup
}

func (cl *wsClient) send(msg WSMessage) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	cl.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := cl.ws.WriteJSON(msg); err != nil {
		slog.Debug("websocket write failed", "error", err)
	}
}

func (cl *wsClient) sendError(id, message, code string) {
	cl.send(WSMessage{
		Type:    MsgTypeError,
		ID:      id,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

// HandleWebSocket upgrades the HTTP connection and serves the job status protocol
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{ws: ws, subs: make(map[string]func())}
	defer func() {
		client.mu.Lock()
		for _, cancel := range client.subs {
			cancel()
		}
		client.mu.Unlock()
		client.wg.Wait()
		ws.Close()
	}()

	slog.Debug("websocket client connected", "remote", c.RealIP())
	client.send(WSMessage{Type: MsgTypeConnected})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket connection error", "error", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			client.send(WSMessage{Type: MsgTypePong})
		case MsgTypeSubscribe:
			wsh.subscribe(client, msg.ID)
		case MsgTypeUnsubscribe:
			client.mu.Lock()
			cancel, ok := client.subs[msg.ID]
			client.mu.Unlock()
			if ok {
				cancel()
			}
		default:
			client.sendError(msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	slog.Debug("websocket client disconnected", "remote", c.RealIP())
	return nil
}

// subscribe forwards every snapshot of a job until it finishes or the
// subscription is cancelled.
func (wsh *WebSocketHandler) subscribe(client *wsClient, id string) {
	if id == "" {
		client.sendError("", "subscribe requires a job id", "VALIDATION_ERROR")
		return
	}

	client.mu.Lock()
	if _, ok := client.subs[id]; ok {
		client.mu.Unlock()
		return
	}
	updates, cancel, err := wsh.jobs.Subscribe(id)
	if err != nil {
		client.mu.Unlock()
		if errors.Is(err, job.ErrNotFound) {
			client.sendError(id, "job not found: "+id, "NOT_FOUND")
		} else {
			client.sendError(id, err.Error(), "SUBSCRIBE_FAILED")
		}
		return
	}
	client.subs[id] = cancel
	client.wg.Add(1)
	client.mu.Unlock()

	go func() {
		defer client.wg.Done()
		for snapshot := range updates {
			client.send(WSMessage{Type: MsgTypeStatus, ID: id, Payload: mustJSON(snapshot)})
		}
		client.mu.Lock()
		delete(client.subs, id)
		client.mu.Unlock()
	}()
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
