package device

import (
	"fmt"
	"sync"

	"keybridge/pkg/interfaces"
)

// MockBackend records emissions instead of touching hardware. The
// daemon falls back to it when uinput is unavailable; tests use it to
// observe the exact device action sequence.
type MockBackend struct {
	mu      sync.Mutex
	devices map[int]*MockDevice
}

// NewMockBackend creates an empty mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{devices: make(map[int]*MockDevice)}
}

// Mode identifies the backend as mock so callers can always tell a
// successful-but-mock state from a real device.
func (b *MockBackend) Mode() string { return "mock" }

// Create allocates a recording device for deviceID.
func (b *MockBackend) Create(deviceID int) (interfaces.DeviceHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := &MockDevice{deviceID: deviceID}
	b.devices[deviceID] = d
	return d, nil
}

// Device returns the most recently created device for deviceID, for
// inspection in tests.
func (b *MockBackend) Device(deviceID int) *MockDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices[deviceID]
}

// Action is one recorded key emission.
type Action struct {
	Key     string
	Pressed bool
}

// MockDevice implements interfaces.DeviceHandle by recording actions.
type MockDevice struct {
	deviceID int

	mu        sync.Mutex
	actions   []Action
	destroyed bool
	failEmit  error
}

// Emit records the action. Key names are validated against the same
// table the uinput backend uses, so mock and real emissions fail alike.
func (d *MockDevice) Emit(key string, pressed bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed {
		return ErrDeviceDestroyed
	}
	if d.failEmit != nil {
		return d.failEmit
	}
	if _, ok := Code(key); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	d.actions = append(d.actions, Action{Key: key, Pressed: pressed})
	return nil
}

// Destroy marks the device destroyed; further emissions fail.
func (d *MockDevice) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
	return nil
}

// Actions returns a copy of everything emitted so far.
func (d *MockDevice) Actions() []Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Action, len(d.actions))
	copy(out, d.actions)
	return out
}

// Destroyed reports whether Destroy has been called.
func (d *MockDevice) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// FailEmits makes every subsequent Emit return err. Test hook.
func (d *MockDevice) FailEmits(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failEmit = err
}
