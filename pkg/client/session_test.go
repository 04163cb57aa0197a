package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"keybridge/pkg/keymap"
	"keybridge/pkg/types"
)

var testUpgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(url string) Config {
	return Config{
		URL:               url,
		ClientID:          "test-client",
		Keymap:            keymap.Keymap{"KeyA": "KEY_A"},
		HandshakeTimeout:  2 * time.Second,
		ReconnectInterval: 20 * time.Millisecond,
		MaxAttempts:       5,
		WriteTimeout:      time.Second,
	}
}

// stateRecorder collects state transitions for later assertions.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

func (r *stateRecorder) count(s State) int {
	n := 0
	for _, got := range r.snapshot() {
		if got == s {
			n++
		}
	}
	return n
}

func sendEstablished(conn *websocket.Conn, status string) {
	reply := types.ConnectionEstablished{
		Type:   types.MessageTypeConnectionEstablished,
		Status: status,
	}
	data, _ := json.Marshal(reply)
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func TestReannouncementOnEveryConnect(t *testing.T) {
	var connCount int32
	msgCh := make(chan string, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&connCount, 1)

		for i := 0; i < 2; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env types.Envelope
			_ = json.Unmarshal(data, &env)
			msgCh <- env.Type
		}
		sendEstablished(conn, types.StatusConnected)

		if n == 1 {
			// Abnormal closure: no close frame.
			_ = conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sm, err := NewSessionManager(testConfig(wsURL(srv)))
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	if err := sm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sm.Stop()

	// Exactly keymap then connect, once per transition into Connected.
	want := []string{
		types.MessageTypeKeymap, types.MessageTypeConnect,
		types.MessageTypeKeymap, types.MessageTypeConnect,
	}
	for i, expected := range want {
		select {
		case got := <-msgCh:
			if got != expected {
				t.Fatalf("message %d: expected %s, got %s", i, expected, got)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for message %d (%s)", i, expected)
		}
	}
}

func TestSendBeforeStartDropsEvent(t *testing.T) {
	sm, err := NewSessionManager(testConfig("ws://127.0.0.1:1/ws"))
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}

	ev := types.KeyboardEvent{Type: types.MessageTypeKeyboardEvent, Seq: 1, EventType: types.EventKeyDown}
	if err := sm.Send(&ev); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendWhileReconnectingDropsEvent(t *testing.T) {
	recorder := &stateRecorder{}
	reconnecting := make(chan struct{}, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the connection immediately after the handshake frames.
		_, _, _ = conn.ReadMessage()
		_, _, _ = conn.ReadMessage()
		_ = conn.Close()
	}))
	defer srv.Close()

	config := testConfig(wsURL(srv))
	config.ReconnectInterval = time.Second
	config.OnStateChange = func(s State) {
		recorder.record(s)
		if s == StateReconnecting {
			select {
			case reconnecting <- struct{}{}:
			default:
			}
		}
	}

	sm, err := NewSessionManager(config)
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	if err := sm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sm.Stop()

	select {
	case <-reconnecting:
	case <-time.After(3 * time.Second):
		t.Fatal("never entered Reconnecting")
	}

	ev := types.KeyboardEvent{Type: types.MessageTypeKeyboardEvent, Seq: 1, EventType: types.EventKeyDown}
	if err := sm.Send(&ev); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected while reconnecting, got %v", err)
	}
}

func TestReconnectCapIsTerminal(t *testing.T) {
	// A server that is immediately closed leaves a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := wsURL(srv)
	srv.Close()

	recorder := &stateRecorder{}
	config := testConfig(url)
	config.MaxAttempts = 3
	config.ReconnectInterval = 5 * time.Millisecond
	config.HandshakeTimeout = 100 * time.Millisecond
	config.OnStateChange = recorder.record

	sm, err := NewSessionManager(config)
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}

	err = sm.Start(context.Background())
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("expected ErrReconnectExhausted, got %v", err)
	}

	select {
	case <-sm.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after terminal failure")
	}
	if !errors.Is(sm.Err(), ErrReconnectExhausted) {
		t.Errorf("expected terminal error recorded, got %v", sm.Err())
	}
	if sm.State() != StateClosed {
		t.Errorf("expected Closed, got %s", sm.State())
	}
	if n := recorder.count(StateClosed); n != 1 {
		t.Errorf("expected exactly one Closed transition, got %d", n)
	}
}

func TestGracefulCloseDoesNotReconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.ReadMessage()
		_, _, _ = conn.ReadMessage()
		sendEstablished(conn, types.StatusConnected)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}))
	defer srv.Close()

	recorder := &stateRecorder{}
	config := testConfig(wsURL(srv))
	config.OnStateChange = recorder.record

	sm, err := NewSessionManager(config)
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	if err := sm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-sm.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session never closed")
	}

	if sm.Err() != nil {
		t.Errorf("graceful close should not record a failure, got %v", sm.Err())
	}
	if n := recorder.count(StateReconnecting); n != 0 {
		t.Errorf("graceful close must not trigger reconnection, saw %d", n)
	}
}

func TestServerRejectionIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.ReadMessage()
		_, _, _ = conn.ReadMessage()
		sendEstablished(conn, types.StatusError)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sm, err := NewSessionManager(testConfig(wsURL(srv)))
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	if err := sm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-sm.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session never closed after rejection")
	}
	if !errors.Is(sm.Err(), ErrSessionRejected) {
		t.Errorf("expected ErrSessionRejected, got %v", sm.Err())
	}
}

func TestStopClosesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sm, err := NewSessionManager(testConfig(wsURL(srv)))
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	if err := sm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sm.Stop()
	sm.Stop() // idempotent

	select {
	case <-sm.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Stop")
	}
	if sm.State() != StateClosed {
		t.Errorf("expected Closed after Stop, got %s", sm.State())
	}
	if sm.Err() != nil {
		t.Errorf("Stop should not record a failure, got %v", sm.Err())
	}
}

func TestStartTwiceRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sm, err := NewSessionManager(testConfig(wsURL(srv)))
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	if err := sm.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sm.Stop()

	if err := sm.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.URL = "" }},
		{"bad client id", func(c *Config) { c.ClientID = "has spaces!" }},
		{"negative device", func(c *Config) { c.DeviceID = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := testConfig("ws://localhost:1/ws")
			tc.mutate(&config)
			if _, err := NewSessionManager(config); err == nil {
				t.Error("expected config error")
			}
		})
	}
}

func TestBuildURLQueryParams(t *testing.T) {
	config := testConfig("ws://localhost:8765/ws")
	config.DeviceID = 4
	config.Profile = "dvorak"

	url, err := config.buildURL()
	if err != nil {
		t.Fatalf("buildURL failed: %v", err)
	}
	if !strings.Contains(url, "device_id=4") {
		t.Errorf("expected device_id in URL, got %s", url)
	}
	if !strings.Contains(url, "profile=dvorak") {
		t.Errorf("expected profile in URL, got %s", url)
	}
}
