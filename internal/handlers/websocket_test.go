package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/models"
	"github.com/ternarybob/ecrop/internal/services/ecrop"
)

type busyFlag bool

func (b busyFlag) Busy() bool { return bool(b) }

func dialHub(t *testing.T, handler *WebSocketHandler, count int) []*websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conns := make([]*websocket.Conn, count)
	for i := range conns {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		conns[i] = conn
	}

	require.Eventually(t, func() bool { return handler.ClientCount() == count }, 2*time.Second, 10*time.Millisecond)
	return conns
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocket_SendsStatusOnConnect(t *testing.T) {
	handler := NewWebSocketHandler(arbor.NewLogger())
	handler.SetRunner(busyFlag(true))
	conn := dialHub(t, handler, 1)[0]

	msg := readMessage(t, conn)
	assert.Equal(t, "status", msg.Type)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, true, payload["runActive"])
	assert.NotEmpty(t, payload["serverInstanceId"])
}

// TestLogDispatchFanOut verifies that every subscriber receives every log entry in order
func TestLogDispatchFanOut(t *testing.T) {
	handler := NewWebSocketHandler(arbor.NewLogger())
	conns := dialHub(t, handler, 3)
	for _, conn := range conns {
		assert.Equal(t, "status", readMessage(t, conn).Type)
	}

	log := models.NewWorkflowLog()
	log.Subscribe(handler.BroadcastLog)
	log.Info("Khata %s entered and searched.", "101")
	log.Warn("Row %d: Skipped (available extent is 0.0)", 0)
	log.Error("Fatal error during navigation or update: %v", "session lost")

	for _, conn := range conns {
		var messages []string
		var levels []string
		for i := 0; i < 3; i++ {
			msg := readMessage(t, conn)
			require.Equal(t, "log", msg.Type)
			payload := msg.Payload.(map[string]interface{})
			messages = append(messages, payload["message"].(string))
			levels = append(levels, payload["level"].(string))
		}
		assert.Equal(t, []string{
			"Khata 101 entered and searched.",
			"Row 0: Skipped (available extent is 0.0)",
			"Fatal error during navigation or update: session lost",
		}, messages)
		assert.Equal(t, []string{"info", "warn", "error"}, levels)
	}
}

func TestBroadcastScan(t *testing.T) {
	handler := NewWebSocketHandler(arbor.NewLogger())
	conn := dialHub(t, handler, 1)[0]
	readMessage(t, conn)

	handler.BroadcastScan(ecrop.ScanEvent{Khata: "101", State: ecrop.StateTransacting, Row: 2})

	msg := readMessage(t, conn)
	assert.Equal(t, "scan", msg.Type)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "101", payload["khata"])
	assert.Equal(t, ecrop.StateTransacting.String(), payload["state"])
	assert.Equal(t, float64(2), payload["row"])
}

func TestWebSocket_DisconnectRemovesClient(t *testing.T) {
	handler := NewWebSocketHandler(arbor.NewLogger())
	conn := dialHub(t, handler, 1)[0]
	readMessage(t, conn)

	conn.Close()
	require.Eventually(t, func() bool { return handler.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Broadcasting to nobody is a no-op
	handler.BroadcastLog(models.WorkflowLogEntry{Seq: 1, Level: "info", Message: "All Khatas processed."})
}

func TestBroadcastLog_DoesNotBlockWhenOutboxIsFull(t *testing.T) {
	handler := NewWebSocketHandler(arbor.NewLogger())
	handler.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < outboxSize+10; i++ {
			handler.BroadcastLog(models.WorkflowLogEntry{Seq: i, Level: "info", Message: "Row 0: Owner selected"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("BroadcastLog blocked with no dispatcher running")
	}
	assert.Equal(t, int64(outboxSize+10), handler.dropped.Load())
}

func TestBroadcastScan_ThrottlesButKeepsKhataEnd(t *testing.T) {
	handler := NewWebSocketHandler(arbor.NewLogger())
	t.Cleanup(handler.Close)
	conn := dialHub(t, handler, 1)[0]
	readMessage(t, conn)

	const burst = 50
	for i := 0; i < burst; i++ {
		handler.BroadcastScan(ecrop.ScanEvent{Khata: "101", State: ecrop.StateScanning, Row: i})
	}
	handler.BroadcastScan(ecrop.ScanEvent{Khata: "101", State: ecrop.StateExhausted, Row: burst})

	received := 0
	for {
		msg := readMessage(t, conn)
		require.Equal(t, "scan", msg.Type)
		received++
		if msg.Payload.(map[string]interface{})["state"] == ecrop.StateExhausted.String() {
			break
		}
	}
	assert.Less(t, received, burst+1)
}
