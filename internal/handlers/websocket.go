package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/ecrop/internal/common"
	"github.com/ternarybob/ecrop/internal/models"
	"github.com/ternarybob/ecrop/internal/services/ecrop"
)

const (
	writeTimeout = 5 * time.Second

	// outboxSize bounds the messages waiting for the dispatcher; beyond it the
	// newest message is dropped rather than stalling the run
	outboxSize = 256

	// scanInterval is the minimum spacing of streamed scan state changes
	scanInterval = 100 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusUpdate is sent to every client when it connects
type StatusUpdate struct {
	Version          string `json:"version"`
	RunActive        bool   `json:"runActive"`
	ServerInstanceID string `json:"serverInstanceId"` // Unique ID per server startup - clients clear state on change
}

// LogEntry is one Workflow Log line as streamed to clients
type LogEntry struct {
	Seq     int    `json:"seq"`
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ScanUpdate reports the row scan state of the Khata in progress
type ScanUpdate struct {
	Khata string `json:"khata"`
	State string `json:"state"`
	Row   int    `json:"row"`
}

// WebSocketHandler streams the live Workflow Log and scan progress of the active run.
// Broadcasts are queued and written by a single dispatcher goroutine, so the run
// never waits on a slow client.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	runner           BusyChecker
	serverInstanceID string

	outbox        chan WSMessage
	scanThrottler *rate.Limiter
	dropped       atomic.Int64
	done          chan struct{}
	closeOnce     sync.Once
}

// NewWebSocketHandler creates the hub and starts its dispatcher; runner may be nil
// until the runner exists
func NewWebSocketHandler(logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		serverInstanceID: uuid.New().String(),
		outbox:           make(chan WSMessage, outboxSize),
		scanThrottler:    rate.NewLimiter(rate.Every(scanInterval), 1),
		done:             make(chan struct{}),
	}

	go h.dispatch()

	logger.Debug().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// Close stops the dispatcher; later broadcasts are dropped
func (h *WebSocketHandler) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

// SetRunner sets the runner reported in status messages
func (h *WebSocketHandler) SetRunner(runner BusyChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runner = runner
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendStatus(conn)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// BroadcastLog queues one Workflow Log entry for every client
func (h *WebSocketHandler) BroadcastLog(entry models.WorkflowLogEntry) {
	h.enqueue(WSMessage{
		Type: "log",
		Payload: LogEntry{
			Seq:     entry.Seq,
			Time:    entry.Time.Format(time.RFC3339),
			Level:   entry.Level,
			Message: entry.Message,
		},
	})
}

// BroadcastScan queues a row scan state change. Changes closer than scanInterval
// are dropped, except the end of a Khata.
func (h *WebSocketHandler) BroadcastScan(event ecrop.ScanEvent) {
	if event.State != ecrop.StateExhausted && !h.scanThrottler.Allow() {
		return
	}
	h.enqueue(WSMessage{
		Type: "scan",
		Payload: ScanUpdate{
			Khata: event.Khata,
			State: event.State.String(),
			Row:   event.Row,
		},
	})
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) sendStatus(conn *websocket.Conn) {
	h.mu.RLock()
	runner := h.runner
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	status := StatusUpdate{
		Version:          common.GetVersion(),
		ServerInstanceID: h.serverInstanceID,
	}
	if runner != nil {
		status.RunActive = runner.Busy()
	}

	data, err := json.Marshal(WSMessage{Type: "status", Payload: status})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal status message")
		return
	}

	mutex.Lock()
	defer mutex.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send status to client")
	}
}

func (h *WebSocketHandler) enqueue(msg WSMessage) {
	select {
	case <-h.done:
		h.dropped.Add(1)
		return
	default:
	}

	select {
	case h.outbox <- msg:
	default:
		if h.dropped.Add(1)%outboxSize == 1 {
			h.logger.Warn().Int64("dropped", h.dropped.Load()).Msg("WebSocket outbox full, dropping messages")
		}
	}
}

func (h *WebSocketHandler) dispatch() {
	for {
		select {
		case msg := <-h.outbox:
			h.broadcast(msg)
		case <-h.done:
			return
		}
	}
}

// broadcast writes msg to every client, each bounded by writeTimeout. A client
// that cannot take a message in time is disconnected.
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Debug().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message, dropping client")
			conn.Close()
		}
	}
}
