// Package registry enforces exclusive ownership of virtual devices:
// exactly one session may be bound to a device ID at a time.
package registry

import (
	"fmt"
	"log"
	"sync"

	"keybridge/internal/emitter"
	"keybridge/pkg/interfaces"
	"keybridge/pkg/keymap"
)

// Binding is one session's exclusive hold on a virtual device.
type Binding struct {
	DeviceID  int
	SessionID string
	Device    interfaces.DeviceHandle
	Engine    *emitter.Engine
}

// BindingInfo is a read-only snapshot of a binding for status reporting.
type BindingInfo struct {
	DeviceID     int    `json:"device_id"`
	SessionID    string `json:"session_id"`
	PressedCount int    `json:"pressed_count"`
}

// Registry is the single synchronization point between sessions and
// devices. Bind and Unbind are mutually exclusive; no two sessions can
// ever address the same device concurrently.
type Registry struct {
	backend interfaces.DeviceBackend

	mu       sync.Mutex
	bindings map[int]*Binding
}

// New creates a registry on top of a device backend.
func New(backend interfaces.DeviceBackend) *Registry {
	return &Registry{
		backend:  backend,
		bindings: make(map[int]*Binding),
	}
}

// Mode reports the backend mode ("uinput" or "mock").
func (r *Registry) Mode() string {
	return r.backend.Mode()
}

// Bind creates the virtual device for deviceID (lazily, on first bind)
// and hands exclusive ownership to sessionID. A second bind for an
// in-use device ID is rejected with ErrDeviceBusy, never queued, and
// leaves the holder undisturbed. The session keymap is copied into the
// new engine.
func (r *Registry) Bind(deviceID int, sessionID string, km keymap.Keymap) (*Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, exists := r.bindings[deviceID]; exists {
		return nil, fmt.Errorf("%w: device=%d holder=%s", ErrDeviceBusy, deviceID, holder.SessionID)
	}

	device, err := r.backend.Create(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to create device %d: %w", deviceID, err)
	}

	binding := &Binding{
		DeviceID:  deviceID,
		SessionID: sessionID,
		Device:    device,
		Engine:    emitter.New(device, km),
	}
	r.bindings[deviceID] = binding

	log.Printf("Device bound: device=%d session=%s backend=%s", deviceID, sessionID, r.backend.Mode())
	return binding, nil
}

// Unbind releases a session's device. Every key still in the pressed-
// set is released before the device is destroyed and the ID reclaimed;
// this holds on every termination path, graceful or not. Unbinding by
// a session that no longer holds the device is a no-op, so a stale
// session can never tear down a newer holder's device.
func (r *Registry) Unbind(deviceID int, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	binding, exists := r.bindings[deviceID]
	if !exists {
		return ErrNotBound
	}
	if binding.SessionID != sessionID {
		return nil
	}

	r.release(binding)
	delete(r.bindings, deviceID)
	return nil
}

// Shutdown unbinds every device, running the stuck-key release
// sequence for each. Used on daemon termination.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for deviceID, binding := range r.bindings {
		r.release(binding)
		delete(r.bindings, deviceID)
	}
}

// release drains the pressed-set and destroys the device. Caller holds
// r.mu.
func (r *Registry) release(binding *Binding) {
	if err := binding.Engine.ReleaseAll(); err != nil {
		log.Printf("Stuck-key release failed: device=%d session=%s err=%v",
			binding.DeviceID, binding.SessionID, err)
	}
	if err := binding.Device.Destroy(); err != nil {
		log.Printf("Device destroy failed: device=%d err=%v", binding.DeviceID, err)
	}
	log.Printf("Device unbound: device=%d session=%s", binding.DeviceID, binding.SessionID)
}

// Snapshot returns the current bindings for status reporting.
func (r *Registry) Snapshot() []BindingInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BindingInfo, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, BindingInfo{
			DeviceID:     b.DeviceID,
			SessionID:    b.SessionID,
			PressedCount: b.Engine.PressedCount(),
		})
	}
	return out
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pressed := 0
	for _, b := range r.bindings {
		pressed += b.Engine.PressedCount()
	}
	return map[string]int{
		"bound_devices": len(r.bindings),
		"pressed_keys":  pressed,
	}
}
