package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"keybridge/pkg/keymap"
	"keybridge/pkg/types"
)

// State is the session connection state. Transitions are
// Idle → Connecting → Connected → Reconnecting → Closed; illegal
// combinations (connecting and connected at once) cannot be expressed.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Config holds session settings. Zero durations and counts take the
// documented defaults.
type Config struct {
	URL string

	// ClientID identifies this client to the daemon. Empty generates a
	// random one.
	ClientID string

	// DeviceID is appended as a query parameter when positive; zero
	// leaves device selection to the daemon's default.
	DeviceID int
	// Profile selects a server-stored keymap profile at connect time.
	Profile string

	// Keymap is announced on every transition into Connected, before
	// the connect message.
	Keymap keymap.Keymap

	HandshakeTimeout  time.Duration // default 10s
	ReconnectInterval time.Duration // default 5s
	MaxAttempts       int           // default 10
	WriteTimeout      time.Duration // default 5s

	OnStateChange func(State)
	OnEstablished func(types.ConnectionEstablished)
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = uuid.New().String()
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("session URL is required")
	}
	if !types.IsValidClientID(c.ClientID) {
		return fmt.Errorf("invalid client ID %q", c.ClientID)
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("device ID cannot be negative")
	}
	return nil
}

func (c *Config) buildURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid session URL: %w", err)
	}
	q := u.Query()
	if c.DeviceID > 0 {
		q.Set("device_id", strconv.Itoa(c.DeviceID))
	}
	if c.Profile != "" {
		q.Set("profile", c.Profile)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SessionManager owns one transport connection and the reconnect
// policy around it. Events produced while not Connected are dropped,
// never queued, so stale input is never replayed after a reconnect.
type SessionManager struct {
	config Config
	url    string

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	km       keymap.Keymap
	attempts int

	// writeMu serializes all writes to the current connection.
	writeMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once

	done       chan struct{}
	finishOnce sync.Once
	err        error
}

// NewSessionManager creates a session manager in the Idle state.
func NewSessionManager(config Config) (*SessionManager, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	wsURL, err := config.buildURL()
	if err != nil {
		return nil, err
	}

	km := config.Keymap
	if km == nil {
		km = keymap.Keymap{}
	}

	return &SessionManager{
		config: config,
		url:    wsURL,
		state:  StateIdle,
		km:     km.Clone(),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Start connects and blocks until the session is Connected or has
// failed terminally. After a successful return the session keeps
// itself alive, reconnecting on abnormal closures, until Stop is
// called or the reconnect cap is exhausted.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state = StateConnecting
	m.mu.Unlock()
	m.notify(StateConnecting)

	return m.connectLoop(ctx)
}

// connectLoop attempts to connect until it succeeds or the attempt cap
// is exceeded. On success it starts the read loop and returns nil; on
// terminal failure it closes the session and returns the failure.
func (m *SessionManager) connectLoop(ctx context.Context) error {
	for {
		conn, err := m.dial(ctx)
		if err == nil {
			m.mu.Lock()
			m.conn = conn
			m.attempts = 0
			m.state = StateConnected
			m.mu.Unlock()
			m.notify(StateConnected)

			// Re-announcement: the daemon keeps no session state across
			// a transport break, so the keymap and identity go out on
			// every entry into Connected, in that order.
			if err := m.announce(); err != nil {
				log.Printf("Announcement failed: %v", err)
				_ = conn.Close()
				m.mu.Lock()
				m.conn = nil
				m.mu.Unlock()
			} else {
				go m.readLoop(conn)
				return nil
			}
		}

		select {
		case <-m.stopCh:
			m.terminate(nil)
			return nil
		case <-ctx.Done():
			m.terminate(ctx.Err())
			return ctx.Err()
		default:
		}

		m.mu.Lock()
		m.attempts++
		attempts := m.attempts
		m.mu.Unlock()

		if attempts >= m.config.MaxAttempts {
			terminalErr := fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempts)
			m.terminate(terminalErr)
			return terminalErr
		}

		m.setState(StateReconnecting)
		select {
		case <-time.After(m.config.ReconnectInterval):
		case <-ctx.Done():
			m.terminate(ctx.Err())
			return ctx.Err()
		case <-m.stopCh:
			m.terminate(nil)
			return nil
		}
		m.setState(StateConnecting)
	}
}

func (m *SessionManager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: m.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		log.Printf("Dial failed: url=%s err=%v", m.url, err)
		return nil, err
	}
	return conn, nil
}

func (m *SessionManager) announce() error {
	m.mu.Lock()
	km := m.km.Clone()
	m.mu.Unlock()

	keymapMsg := types.KeymapMessage{
		Type:   types.MessageTypeKeymap,
		Keymap: map[string]string(km),
	}
	if err := m.write(keymapMsg); err != nil {
		return err
	}

	connectMsg := types.ConnectMessage{
		Type:      types.MessageTypeConnect,
		ClientID:  m.config.ClientID,
		Timestamp: time.Now().UnixMilli(),
	}
	return m.write(connectMsg)
}

// readLoop consumes server messages until the connection dies, then
// decides between graceful shutdown and reconnection.
func (m *SessionManager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(conn, err)
			return
		}
		m.handleServerMessage(conn, data)
	}
}

func (m *SessionManager) handleServerMessage(conn *websocket.Conn, data []byte) {
	var envelope types.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.Printf("Discarding malformed server message: %v", err)
		return
	}
	if envelope.Type != types.MessageTypeConnectionEstablished {
		return
	}

	var msg types.ConnectionEstablished
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Discarding malformed connection_established: %v", err)
		return
	}

	if msg.Status == types.StatusError {
		// A rejected connect is terminal; the daemon will not accept a
		// retry for the same device while the holder is alive.
		_ = conn.Close()
		m.terminate(fmt.Errorf("%w: %s", ErrSessionRejected, msg.Message))
		return
	}

	if m.config.OnEstablished != nil {
		m.config.OnEstablished(msg)
	}
}

func (m *SessionManager) handleDisconnect(conn *websocket.Conn, err error) {
	_ = conn.Close()

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.conn = nil

	graceful := websocket.IsCloseError(err, websocket.CloseNormalClosure)
	select {
	case <-m.stopCh:
		graceful = true
	default:
	}

	if graceful {
		m.state = StateClosed
		m.mu.Unlock()
		m.notify(StateClosed)
		m.finish(nil)
		return
	}

	m.state = StateReconnecting
	m.mu.Unlock()
	m.notify(StateReconnecting)
	log.Printf("Connection lost, reconnecting: %v", err)

	select {
	case <-time.After(m.config.ReconnectInterval):
	case <-m.stopCh:
		m.terminate(nil)
		return
	}

	m.setState(StateConnecting)
	_ = m.connectLoop(context.Background())
}

// Send delivers one normalized event. While the session is not
// Connected the event is dropped and ErrNotConnected returned.
func (m *SessionManager) Send(event interface{}) error {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.mu.Unlock()

	return m.write(event)
}

// SetKeymap replaces the session keymap. When connected, the update is
// pushed to the daemon immediately; either way the new table is what
// gets announced after the next reconnect.
func (m *SessionManager) SetKeymap(km keymap.Keymap) error {
	m.mu.Lock()
	m.km = km.Clone()
	connected := m.state == StateConnected && m.conn != nil
	m.mu.Unlock()

	if !connected {
		return nil
	}
	return m.write(types.KeymapMessage{
		Type:   types.MessageTypeKeymap,
		Keymap: map[string]string(km),
	})
}

func (m *SessionManager) write(v interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// Stop closes the session gracefully: a normal-closure frame goes out
// so the daemon tears the session down without treating it as a fault.
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)

		m.mu.Lock()
		conn := m.conn
		m.conn = nil
		m.mu.Unlock()

		if conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		}

		m.setState(StateClosed)
		m.finish(nil)
	})
}

// State returns the current connection state.
func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed when the session reaches Closed.
func (m *SessionManager) Done() <-chan struct{} {
	return m.done
}

// Err returns the terminal failure, if any, once Done is closed. A
// graceful stop leaves it nil. At most one terminal failure is ever
// recorded.
func (m *SessionManager) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// terminate moves the session to Closed and records the terminal
// outcome exactly once.
func (m *SessionManager) terminate(err error) {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	m.setState(StateClosed)
	m.finish(err)
}

func (m *SessionManager) setState(to State) {
	m.mu.Lock()
	if m.state == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	m.mu.Unlock()
	m.notify(to)
}

func (m *SessionManager) notify(state State) {
	if m.config.OnStateChange != nil {
		m.config.OnStateChange(state)
	}
}

func (m *SessionManager) finish(err error) {
	m.finishOnce.Do(func() {
		m.err = err
		close(m.done)
	})
}
