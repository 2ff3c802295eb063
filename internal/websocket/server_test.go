package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mikemorandi/flightradar/pkg/logger"
)

func dialTestHub(t *testing.T) (*Server, *websocket.Conn) {
	t.Helper()

	hub := NewServer(logger.NewNop())
	go hub.Run()
	t.Cleanup(hub.Stop)

	ts := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Wait for the hub to register the client
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub, conn
}

func waitForCount(t *testing.T, hub *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// serverSideConn returns both halves of a live WebSocket pair so a test can
// drive the hub-facing connection directly.
func serverSideConn(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	peer, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { peer.Close() })

	select {
	case conn := <-connCh:
		return conn, peer
	case <-time.After(2 * time.Second):
		t.Fatal("server side never upgraded")
		return nil, nil
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	hub, conn := dialTestHub(t)

	hub.Broadcast(&Message{Type: MessageTypeFrame, Data: map[string]any{"count": 3}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Type != MessageTypeFrame {
		t.Errorf("type = %q, want %q", msg.Type, MessageTypeFrame)
	}
}

func TestClientCountDropsOnDisconnect(t *testing.T) {
	hub, conn := dialTestHub(t)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriterExitsWhenEvictionRacesDisconnect(t *testing.T) {
	hub := NewServer(logger.NewNop())
	go hub.Run()
	t.Cleanup(hub.Stop)

	conn, peer := serverSideConn(t)
	client := &Client{
		conn:      conn,
		send:      make(chan *Message, 1),
		server:    hub,
		closeChan: make(chan struct{}),
	}
	hub.register <- client
	waitForCount(t, hub, 1)

	writerDone := make(chan struct{})
	go func() {
		client.writePump()
		close(writerDone)
	}()

	// The reader has marked the client closed but has not delivered the
	// unregister yet.
	client.mu.Lock()
	client.closed = true
	client.mu.Unlock()

	// A broadcast in that window evicts the client from the hub without
	// closing its send channel, so the later unregister finds nothing.
	hub.Broadcast(&Message{Type: MessageTypeFrame, Data: nil})
	waitForCount(t, hub, 0)

	// Now let the reader finish its teardown for real.
	peer.Close()
	client.readPump()

	select {
	case <-writerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writer still running after client teardown")
	}
}

func TestStopDisconnectsClients(t *testing.T) {
	hub, conn := dialTestHub(t)

	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	if hub.ClientCount() != 0 {
		t.Error("clients still registered after stop")
	}
}
