package api

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openstickers/nfc-flasher/internal/journal"
	"github.com/openstickers/nfc-flasher/internal/transport/transporttest"
)

func TestNewWSHub(t *testing.T) {
	hub := NewWSHub()

	if hub == nil {
		t.Fatal("NewWSHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("clients map should be initialized")
	}
	if hub.broadcast == nil {
		t.Error("broadcast channel should be initialized")
	}
	if hub.register == nil {
		t.Error("register channel should be initialized")
	}
	if hub.unregister == nil {
		t.Error("unregister channel should be initialized")
	}
}

func TestWSMessage_JSON(t *testing.T) {
	tests := []struct {
		name string
		msg  WSMessage
	}{
		{
			name: "simple message",
			msg:  WSMessage{Type: "version", ID: "123"},
		},
		{
			name: "message with payload",
			msg: WSMessage{
				Type:    "recent_scans",
				ID:      "456",
				Payload: json.RawMessage(`{"limit":5}`),
			},
		},
		{
			name: "error message",
			msg:  WSMessage{Type: "error", ID: "789", Error: "something went wrong"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			var decoded WSMessage
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			if decoded.Type != tt.msg.Type {
				t.Errorf("Type mismatch: got %s, want %s", decoded.Type, tt.msg.Type)
			}
			if decoded.ID != tt.msg.ID {
				t.Errorf("ID mismatch: got %s, want %s", decoded.ID, tt.msg.ID)
			}
			if decoded.Error != tt.msg.Error {
				t.Errorf("Error mismatch: got %s, want %s", decoded.Error, tt.msg.Error)
			}
		})
	}
}

func TestWSClient_sendResponse(t *testing.T) {
	client := &WSClient{
		send: make(chan []byte, 256),
	}

	payload := map[string]string{"key": "value"}
	client.sendResponse("test-id", "test-type", payload)

	select {
	case msg := <-client.send:
		var decoded WSMessage
		if err := json.Unmarshal(msg, &decoded); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}

		if decoded.Type != "test-type" {
			t.Errorf("expected type 'test-type', got '%s'", decoded.Type)
		}
		if decoded.ID != "test-id" {
			t.Errorf("expected ID 'test-id', got '%s'", decoded.ID)
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for response")
	}
}

func TestWSClient_sendError(t *testing.T) {
	client := &WSClient{
		send: make(chan []byte, 256),
	}

	client.sendError("err-id", "test error message")

	select {
	case msg := <-client.send:
		var decoded WSMessage
		if err := json.Unmarshal(msg, &decoded); err != nil {
			t.Fatalf("failed to unmarshal error: %v", err)
		}

		if decoded.Type != "error" {
			t.Errorf("expected type 'error', got '%s'", decoded.Type)
		}
		if decoded.Error != "test error message" {
			t.Errorf("expected error 'test error message', got '%s'", decoded.Error)
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for error")
	}
}

func newWSTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(
		transporttest.NewMockContext(),
		NewWSHub(),
		filepath.Join(t.TempDir(), "scans.cbor"),
	)
	go s.hub.Run()

	ts := httptest.NewServer(s.NewMux())
	t.Cleanup(ts.Close)
	return s, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWebSocket_Version(t *testing.T) {
	_, ts := newWSTestServer(t)
	ws := dialWS(t, ts)

	if err := ws.WriteJSON(WSMessage{Type: "version", ID: "v1"}); err != nil {
		t.Fatalf("failed to send message: %v", err)
	}

	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("failed to read response: %v", err)
	}

	if resp.Type != "version" {
		t.Errorf("expected type 'version', got '%s'", resp.Type)
	}
	if resp.ID != "v1" {
		t.Errorf("expected ID 'v1', got '%s'", resp.ID)
	}
}

func TestWebSocket_Health(t *testing.T) {
	_, ts := newWSTestServer(t)
	ws := dialWS(t, ts)

	ws.WriteJSON(WSMessage{Type: "health", ID: "h1"})

	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("failed to read response: %v", err)
	}

	if resp.Type != "health" {
		t.Errorf("expected type 'health', got '%s'", resp.Type)
	}

	var payload map[string]interface{}
	json.Unmarshal(resp.Payload, &payload)
	if payload["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%v'", payload["status"])
	}
}

func TestWebSocket_RecentScans(t *testing.T) {
	s, ts := newWSTestServer(t)

	j, err := journal.Open(s.journalPath)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	if _, err := j.Record(journal.Entry{Mode: journal.ModeWrite, UID: "04A1CC"}); err != nil {
		t.Fatalf("failed to record entry: %v", err)
	}
	j.Close()

	ws := dialWS(t, ts)
	ws.WriteJSON(WSMessage{Type: "recent_scans", ID: "rs1"})

	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("failed to read response: %v", err)
	}

	if resp.Type != "recent_scans" {
		t.Fatalf("expected type 'recent_scans', got '%s'", resp.Type)
	}

	var payload struct {
		Scans []journal.Entry `json:"scans"`
	}
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if len(payload.Scans) != 1 || payload.Scans[0].UID != "04A1CC" {
		t.Errorf("unexpected scans payload: %+v", payload.Scans)
	}
}

func TestWebSocket_UnknownType(t *testing.T) {
	_, ts := newWSTestServer(t)
	ws := dialWS(t, ts)

	ws.WriteJSON(WSMessage{Type: "unknown_type_xyz", ID: "u1"})

	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("failed to read response: %v", err)
	}

	if resp.Type != "error" {
		t.Errorf("expected error type, got '%s'", resp.Type)
	}
	if !strings.Contains(resp.Error, "unknown message type") {
		t.Errorf("expected unknown type error, got '%s'", resp.Error)
	}
}

func TestWebSocket_BroadcastReachesAllClients(t *testing.T) {
	s, ts := newWSTestServer(t)

	conns := []*websocket.Conn{dialWS(t, ts), dialWS(t, ts), dialWS(t, ts)}

	// Give the hub time to register every client
	time.Sleep(50 * time.Millisecond)

	s.hub.BroadcastEvent("tag_flashed", map[string]string{
		"uid": "04A1CCB1320289",
		"url": "https://example.com?uid=04A1CCB1320289",
	})

	for i, ws := range conns {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))

		var resp WSMessage
		if err := ws.ReadJSON(&resp); err != nil {
			t.Fatalf("client %d failed to read broadcast: %v", i, err)
		}
		if resp.Type != "tag_flashed" {
			t.Errorf("client %d got type '%s', want 'tag_flashed'", i, resp.Type)
		}

		var payload map[string]string
		json.Unmarshal(resp.Payload, &payload)
		if payload["uid"] != "04A1CCB1320289" {
			t.Errorf("client %d got uid '%s'", i, payload["uid"])
		}
	}
}
