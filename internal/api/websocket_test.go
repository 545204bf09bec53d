package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/AaronLay10/JackalCourse/internal/events"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dialEvents(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	s, _, log, _ := newTestServer(t, nil)
	for i := 0; i < 5; i++ {
		log.Emit("info", "checkpoint.reached", "", map[string]interface{}{"index": i})
	}

	server := httptest.NewServer(s.Handler())
	defer server.Close()
	conn := dialEvents(t, server)
	defer conn.Close()

	for i := 0; i < 5; i++ {
		if e := readEvent(t, conn); e.Name != "checkpoint.reached" {
			t.Errorf("expected 'checkpoint.reached', got '%s'", e.Name)
		}
	}
}

func TestWebSocketReceivesGameEvents(t *testing.T) {
	s, game, log, _ := newTestServer(t, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()
	conn := dialEvents(t, server)
	defer conn.Close()

	waitFor(t, 2*time.Second, func() bool { return log.SubscriberCount() == 1 }, "subscriber registered")
	game.OnPlateTriggered("A")

	e := readEvent(t, conn)
	if e.Name != "plate.activated" || e.Fields["member_id"] != "A" {
		t.Errorf("unexpected event %+v", e)
	}
	if e.Fields["session_id"] != "s1" {
		t.Errorf("expected session id on streamed events, got %v", e.Fields["session_id"])
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	s, _, log, _ := newTestServer(t, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dialEvents(t, server)
	waitFor(t, 2*time.Second, func() bool { return log.SubscriberCount() == 1 }, "subscriber registered")
	conn.Close()

	waitFor(t, 5*time.Second, func() bool {
		return log.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}

func TestWebSocketMultipleClients(t *testing.T) {
	s, _, log, _ := newTestServer(t, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn1 := dialEvents(t, server)
	defer conn1.Close()
	conn2 := dialEvents(t, server)
	defer conn2.Close()

	waitFor(t, 2*time.Second, func() bool { return log.SubscriberCount() == 2 }, "both subscribers registered")
	log.Emit("info", "game.ended", "", nil)

	if e := readEvent(t, conn1); e.Name != "game.ended" {
		t.Errorf("client1: expected 'game.ended', got '%s'", e.Name)
	}
	if e := readEvent(t, conn2); e.Name != "game.ended" {
		t.Errorf("client2: expected 'game.ended', got '%s'", e.Name)
	}
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	s, _, log, _ := newTestServer(t, nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dialEvents(t, server)
	defer conn.Close()
	waitFor(t, 2*time.Second, func() bool { return log.SubscriberCount() == 1 }, "subscriber registered")

	log.CloseAllSubscribers()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to close after subscribers are closed")
	}
}

func TestWebSocketRequiresAuth(t *testing.T) {
	s, _, _, _ := newTestServer(t, testAuth())
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without credentials")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", resp)
	}
}

func TestWriteEventReportsEncodeError(t *testing.T) {
	s := NewServer(Options{Logger: zerolog.Nop()})
	errCh := make(chan error, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()
		errCh <- s.writeEvent(conn, events.Event{
			Name:   "device.error",
			Fields: map[string]interface{}{"value": math.Inf(1)},
		})
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, errEncodeEvent) {
			t.Errorf("expected encode error, got %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "device.error") {
			t.Errorf("expected event name in error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for writeEvent")
	}
}
