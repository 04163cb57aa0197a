//go:build !linux

package device

import "keybridge/pkg/interfaces"

// NewUinputBackend always reports the backend unavailable on platforms
// without uinput; the daemon runs in mock mode there.
func NewUinputBackend(name string, vendor, product uint16) (interfaces.DeviceBackend, error) {
	return nil, interfaces.ErrBackendUnavailable
}
