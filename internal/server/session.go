package server

import (
	"encoding/json"
	"errors"
	"log"

	"keybridge/internal/emitter"
	"keybridge/internal/registry"
	"keybridge/pkg/keymap"
	"keybridge/pkg/types"
)

// session drives one client connection: it dispatches inbound frames
// in order, owns the device binding, and guarantees the binding is
// released no matter how the connection ends.
type session struct {
	conn     *Connection
	registry *registry.Registry
	deviceID int

	// km is the effective keymap: daemon default, then profile, then
	// client-announced entries. Only the dispatcher touches it.
	km      keymap.Keymap
	binding *registry.Binding

	frames chan []byte
}

func newSession(conn *Connection, reg *registry.Registry, deviceID int, base keymap.Keymap) *session {
	return &session{
		conn:     conn,
		registry: reg,
		deviceID: deviceID,
		km:       base.Clone(),
		frames:   make(chan []byte, 256),
	}
}

// run processes frames until the channel closes, then tears down the
// binding. Events arriving after the channel closes are lost; stuck
// keys are not. Runs as the session's only dispatcher goroutine, so
// frame order is preserved.
func (s *session) run() {
	defer s.teardown()

	for data := range s.frames {
		s.dispatch(data)
	}
}

// teardown force-releases every pressed key and destroys the device.
// A stale unbind (another session already rebound the device) is a
// no-op inside the registry.
func (s *session) teardown() {
	if s.binding == nil {
		return
	}
	if err := s.registry.Unbind(s.deviceID, s.conn.SessionID()); err != nil && !errors.Is(err, registry.ErrNotBound) {
		log.Printf("Unbind failed: session=%s device=%d err=%v", s.conn.SessionID(), s.deviceID, err)
	}
	s.binding = nil
}

// dispatch routes one inbound frame by its type field. Malformed
// frames are logged and skipped; the session keeps running.
func (s *session) dispatch(data []byte) {
	var envelope types.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.Printf("Discarding malformed frame: session=%s err=%v", s.conn.SessionID(), err)
		return
	}

	switch envelope.Type {
	case types.MessageTypeConnect:
		s.handleConnect(data)
	case types.MessageTypeKeymap:
		s.handleKeymap(data)
	case types.MessageTypeKeyboardEvent:
		s.handleKeyboardEvent(data)
	case types.MessageTypeCompositionEvent:
		s.handleCompositionEvent(data)
	default:
		log.Printf("Discarding frame with unknown type %q: session=%s", envelope.Type, s.conn.SessionID())
	}
}

func (s *session) handleConnect(data []byte) {
	var msg types.ConnectMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Discarding malformed connect message: session=%s err=%v", s.conn.SessionID(), err)
		return
	}
	if !types.IsValidClientID(msg.ClientID) {
		s.rejectAndClose("invalid client identifier")
		return
	}
	if s.binding != nil {
		// Repeated connect on a live binding re-announces identity but
		// never rebinds.
		s.conn.SetIdentity(msg.ClientID, s.deviceID)
		s.sendEstablished()
		return
	}

	binding, err := s.registry.Bind(s.deviceID, s.conn.SessionID(), s.km)
	if err != nil {
		if errors.Is(err, registry.ErrDeviceBusy) {
			s.rejectAndClose("device is in use by another session")
			return
		}
		log.Printf("Bind failed: session=%s device=%d err=%v", s.conn.SessionID(), s.deviceID, err)
		s.rejectAndClose("failed to create virtual device")
		return
	}

	s.binding = binding
	s.conn.SetIdentity(msg.ClientID, s.deviceID)
	log.Printf("Client connected: session=%s client=%s device=%d", s.conn.SessionID(), msg.ClientID, s.deviceID)
	s.sendEstablished()
}

func (s *session) handleKeymap(data []byte) {
	var msg types.KeymapMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Discarding malformed keymap message: session=%s err=%v", s.conn.SessionID(), err)
		return
	}

	s.km = keymap.Merge(s.km, keymap.Keymap(msg.Keymap))
	if s.binding != nil {
		s.binding.Engine.SetKeymap(s.km)
	}
	log.Printf("Keymap updated: session=%s entries=%d", s.conn.SessionID(), len(msg.Keymap))
}

func (s *session) handleKeyboardEvent(data []byte) {
	if s.binding == nil {
		log.Printf("Dropping keyboard event before connect: session=%s", s.conn.SessionID())
		return
	}

	var ev types.KeyboardEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("Discarding malformed keyboard event: session=%s err=%v", s.conn.SessionID(), err)
		return
	}

	if err := s.binding.Engine.ProcessKey(&ev); err != nil {
		if errors.Is(err, emitter.ErrStaleSequence) {
			log.Printf("Discarded stale event: session=%s seq=%d", s.conn.SessionID(), ev.Seq)
			return
		}
		log.Printf("Key emission failed: session=%s key=%s err=%v", s.conn.SessionID(), ev.Identity(), err)
	}
}

func (s *session) handleCompositionEvent(data []byte) {
	if s.binding == nil {
		log.Printf("Dropping composition event before connect: session=%s", s.conn.SessionID())
		return
	}

	var ev types.CompositionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("Discarding malformed composition event: session=%s err=%v", s.conn.SessionID(), err)
		return
	}

	if err := s.binding.Engine.ProcessComposition(&ev); err != nil {
		if errors.Is(err, emitter.ErrStaleSequence) {
			log.Printf("Discarded stale composition: session=%s seq=%d", s.conn.SessionID(), ev.Seq)
			return
		}
		log.Printf("Composition emission failed: session=%s err=%v", s.conn.SessionID(), err)
	}
}

func (s *session) sendEstablished() {
	reply := types.ConnectionEstablished{
		Type:     types.MessageTypeConnectionEstablished,
		DeviceID: s.deviceID,
		Status:   types.StatusConnected,
		Message:  "virtual keyboard ready",
	}
	if s.registry.Mode() == "mock" {
		reply.Message = "running in mock mode, no system input will be generated"
	}
	if err := s.conn.WriteJSON(reply); err != nil {
		log.Printf("Failed to send connection_established: session=%s err=%v", s.conn.SessionID(), err)
	}
}

// rejectAndClose reports a terminal connect failure and closes the
// socket. The client treats an error status as fatal and does not
// retry.
func (s *session) rejectAndClose(reason string) {
	reply := types.ConnectionEstablished{
		Type:     types.MessageTypeConnectionEstablished,
		DeviceID: s.deviceID,
		Status:   types.StatusError,
		Message:  reason,
	}
	if err := s.conn.WriteJSON(reply); err != nil {
		log.Printf("Failed to send rejection: session=%s err=%v", s.conn.SessionID(), err)
	}
	_ = s.conn.Close()
}
