package types

import (
	"strconv"
	"time"
)

// Wire message type discriminators. Every message carries one of these
// in its "type" field; unknown types are discarded by the receiver.
const (
	MessageTypeKeyboardEvent         = "keyboard_event"
	MessageTypeCompositionEvent      = "composition_event"
	MessageTypeConnect               = "connect"
	MessageTypeKeymap                = "keymap"
	MessageTypeConnectionEstablished = "connection_established"
)

// Keyboard event phases.
const (
	EventKeyDown = "keydown"
	EventKeyUp   = "keyup"
)

// Composition phases. Only CompositionEnd reaches the virtual device;
// start and update exist for protocol observability.
const (
	CompositionStart  = "start"
	CompositionUpdate = "update"
	CompositionEnd    = "end"
)

// Key location discriminators, matching DOM KeyboardEvent.location.
const (
	LocationStandard = 0
	LocationLeft     = 1
	LocationRight    = 2
	LocationNumpad   = 3
)

// Connection establishment statuses.
const (
	StatusConnected = "connected"
	StatusError     = "error"
)

// ModifierState is a snapshot of modifier and lock keys at the moment
// a raw signal was observed. It has no lifecycle of its own; it is
// recomputed on every raw event.
type ModifierState struct {
	Ctrl       bool `json:"ctrl"`
	Alt        bool `json:"alt"`
	Shift      bool `json:"shift"`
	Meta       bool `json:"meta"`
	AltGr      bool `json:"altGr"`
	CapsLock   bool `json:"capsLock"`
	NumLock    bool `json:"numLock"`
	ScrollLock bool `json:"scrollLock"`
}

// Envelope is the minimal decode target used to dispatch on message type.
type Envelope struct {
	Type string `json:"type"`
}

// KeyboardEvent is a normalized key press or release. Seq is assigned
// per session and strictly increases; the emission engine discards
// duplicates and out-of-order arrivals.
type KeyboardEvent struct {
	Type      string        `json:"type"`
	Seq       uint64        `json:"seq"`
	KeyCode   int           `json:"keyCode"`
	Key       string        `json:"key,omitempty"`
	Char      string        `json:"char,omitempty"`
	Modifiers ModifierState `json:"modifiers"`
	EventType string        `json:"eventType"`
	Timestamp int64         `json:"timestamp"`
	Location  int           `json:"location,omitempty"`
	Repeat    bool          `json:"repeat,omitempty"`
}

// Identity returns the canonical key identity used for keymap lookup:
// the symbolic code when the client supplied one, otherwise the decimal
// keyCode (the keying scheme of older clients).
func (e *KeyboardEvent) Identity() string {
	if e.Key != "" {
		return e.Key
	}
	return strconv.Itoa(e.KeyCode)
}

// Validate checks structural validity of a keyboard event.
func (e *KeyboardEvent) Validate() error {
	if e.EventType != EventKeyDown && e.EventType != EventKeyUp {
		return ErrInvalidEventType
	}
	if e.KeyCode < 0 || e.KeyCode > 255 {
		return ErrInvalidKeyCode
	}
	return nil
}

// CompositionEvent carries the full current composition text rather
// than a delta, so every composition message is self-sufficient.
type CompositionEvent struct {
	Type             string        `json:"type"`
	Seq              uint64        `json:"seq"`
	CompositionText  string        `json:"compositionText"`
	CompositionStart int           `json:"compositionStart"`
	CompositionEnd   int           `json:"compositionEnd"`
	Phase            string        `json:"phase"`
	Modifiers        ModifierState `json:"modifiers"`
	Timestamp        int64         `json:"timestamp"`
}

// Validate checks structural validity of a composition event.
func (e *CompositionEvent) Validate() error {
	switch e.Phase {
	case CompositionStart, CompositionUpdate, CompositionEnd:
		return nil
	}
	return ErrInvalidPhase
}

// ConnectMessage identifies the client. It is sent once per successful
// (re)connection, always after the keymap message.
type ConnectMessage struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId"`
	Timestamp int64  `json:"timestamp"`
}

// KeymapMessage replaces the session keymap. Keys are canonical key
// identities, values are device key names.
type KeymapMessage struct {
	Type   string            `json:"type"`
	Keymap map[string]string `json:"keymap"`
}

// ConnectionEstablished is the server's reply to a connect message.
// Message carries a human-readable note, for example that the daemon
// is running in mock mode.
type ConnectionEstablished struct {
	Type     string `json:"type"`
	DeviceID int    `json:"deviceId"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// KeymapProfile is a named keymap stored by the daemon and selectable
// at connect time.
type KeymapProfile struct {
	Name      string            `json:"name"`
	Keymap    map[string]string `json:"keymap"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsValidClientID reports whether a client-supplied identifier is
// acceptable: 1-64 characters from [A-Za-z0-9._-].
func IsValidClientID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// IsValidProfileName applies the same rules as client IDs to profile names.
func IsValidProfileName(name string) bool {
	return IsValidClientID(name)
}
