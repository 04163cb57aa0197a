package interfaces

// DeviceBackend creates virtual keyboard devices. Exactly one backend
// is selected at daemon startup; when no privileged backend is
// available the daemon falls back to the mock backend, which keeps
// session logic identical while performing no hardware action.
type DeviceBackend interface {
	// Create allocates the virtual device for a device ID. Returns
	// ErrBackendUnavailable when the backend cannot create devices.
	Create(deviceID int) (DeviceHandle, error)

	// Mode identifies the backend ("uinput" or "mock") so that a
	// successful-but-mock state is always distinguishable to callers.
	Mode() string
}

// DeviceHandle is one created virtual device. Emit calls are blocking
// but fast and are never retried; a failed emission surfaces as a
// per-event error to the owning session.
type DeviceHandle interface {
	// Emit sends a press (pressed=true) or release of a device key
	// name such as "KEY_A".
	Emit(key string, pressed bool) error

	// Destroy removes the virtual device and releases its resources.
	Destroy() error
}
