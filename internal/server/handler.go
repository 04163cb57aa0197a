package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"keybridge/internal/registry"
	"keybridge/pkg/interfaces"
	"keybridge/pkg/keymap"
	"keybridge/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is deferred to the deployment's reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades bridge clients to WebSocket and runs a session per
// connection.
type Handler struct {
	registry        *registry.Registry
	store           interfaces.ProfileStore
	keymaps         *keymap.Holder
	defaultDeviceID int
}

// NewHandler creates a WebSocket handler.
func NewHandler(reg *registry.Registry, store interfaces.ProfileStore, keymaps *keymap.Holder, defaultDeviceID int) *Handler {
	return &Handler{
		registry:        reg,
		store:           store,
		keymaps:         keymaps,
		defaultDeviceID: defaultDeviceID,
	}
}

// HandleWebSocket validates query parameters, resolves the session
// keymap, upgrades the connection, and hands it to a session
// dispatcher goroutine.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	deviceID := h.defaultDeviceID
	if raw := r.URL.Query().Get("device_id"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid device_id: must be a non-negative integer", http.StatusBadRequest)
			return
		}
		deviceID = parsed
	}

	base := h.keymaps.Load()
	if profileName := r.URL.Query().Get("profile"); profileName != "" {
		if !types.IsValidProfileName(profileName) {
			http.Error(w, "Invalid profile name", http.StatusBadRequest)
			return
		}
		profile, err := h.store.GetProfile(r.Context(), profileName)
		if err != nil {
			if errors.Is(err, interfaces.ErrProfileNotFound) {
				http.Error(w, "Profile not found", http.StatusNotFound)
				return
			}
			log.Printf("Profile lookup failed: profile=%s err=%v", profileName, err)
			http.Error(w, "Profile lookup failed", http.StatusInternalServerError)
			return
		}
		base = keymap.Merge(base, keymap.Keymap(profile.Keymap))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, uuid.New().String())
	sess := newSession(wsConn, h.registry, deviceID, base)

	log.Printf("Session opened: session=%s device=%d remote=%s", wsConn.SessionID(), deviceID, r.RemoteAddr)

	go sess.run()
	go h.readPump(wsConn, sess)
}

// readPump reads frames from the socket into the session's frame
// channel and maintains the heartbeat. When the socket dies, closing
// the channel ends the dispatcher, which releases the binding.
func (h *Handler) readPump(conn *Connection, sess *session) {
	defer func() {
		close(sess.frames)
		_ = conn.Close()
		log.Printf("Session closed: session=%s", conn.SessionID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: session=%s err=%v", conn.SessionID(), err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		select {
		case sess.frames <- data:
		case <-conn.ctx.Done():
			return
		}
	}
}
