//go:build linux

package device

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"keybridge/pkg/interfaces"
)

// uinput ioctl requests and event constants from linux/uinput.h and
// linux/input-event-codes.h.
const (
	uinputPath = "/dev/uinput"

	// _IOW('U', 100, int) and _IOW('U', 101, int)
	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	// _IO('U', 1) and _IO('U', 2)
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	evSyn     = 0x00
	evKey     = 0x01
	synReport = 0

	busUSB = 0x03
)

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputUserDev is the legacy uinput setup struct written to the fd
// before UI_DEV_CREATE. The legacy interface works on every kernel the
// daemon targets.
type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FFEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// UinputBackend creates real virtual keyboards through /dev/uinput.
type UinputBackend struct {
	name    string
	vendor  uint16
	product uint16
}

// NewUinputBackend probes /dev/uinput and returns a backend when the
// daemon has the privileges to use it, otherwise
// interfaces.ErrBackendUnavailable so the caller can fall back to mock.
func NewUinputBackend(name string, vendor, product uint16) (interfaces.DeviceBackend, error) {
	fd, err := unix.Open(uinputPath, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	_ = unix.Close(fd)

	return &UinputBackend{name: name, vendor: vendor, product: product}, nil
}

// Mode identifies the backend as a real uinput device driver.
func (b *UinputBackend) Mode() string { return "uinput" }

// Create registers a new virtual keyboard with the full key capability
// set and returns a handle for emission.
func (b *UinputBackend) Create(deviceID int) (interfaces.DeviceHandle, error) {
	fd, err := unix.Open(uinputPath, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", uinputPath, err)
	}

	if err := ioctlInt(fd, uiSetEvBit, evKey); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to enable key events: %w", err)
	}
	for _, code := range Capabilities() {
		if err := ioctlInt(fd, uiSetKeyBit, int(code)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("failed to register key %d: %w", code, err)
		}
	}

	var setup uinputUserDev
	copy(setup.Name[:], fmt.Sprintf("%s %d", b.name, deviceID))
	setup.ID = inputID{Bustype: busUSB, Vendor: b.vendor, Product: b.product, Version: 1}

	buf := (*[unsafe.Sizeof(setup)]byte)(unsafe.Pointer(&setup))[:]
	if _, err := unix.Write(fd, buf); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to write device setup: %w", err)
	}

	if err := ioctlInt(fd, uiDevCreate, 0); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to create uinput device: %w", err)
	}

	return &uinputDevice{fd: fd}, nil
}

type uinputDevice struct {
	mu        sync.Mutex
	fd        int
	destroyed bool
}

// Emit writes one key event followed by a SYN_REPORT.
func (d *uinputDevice) Emit(key string, pressed bool) error {
	code, ok := Code(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return ErrDeviceDestroyed
	}

	value := int32(0)
	if pressed {
		value = 1
	}
	if err := d.write(evKey, code, value); err != nil {
		return fmt.Errorf("failed to emit key %s: %w", key, err)
	}
	if err := d.write(evSyn, synReport, 0); err != nil {
		return fmt.Errorf("failed to emit syn report: %w", err)
	}
	return nil
}

func (d *uinputDevice) write(typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	buf := (*[unsafe.Sizeof(ev)]byte)(unsafe.Pointer(&ev))[:]
	_, err := unix.Write(d.fd, buf)
	return err
}

// Destroy removes the virtual device and closes the fd.
func (d *uinputDevice) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil
	}
	d.destroyed = true

	if err := ioctlInt(d.fd, uiDevDestroy, 0); err != nil {
		_ = unix.Close(d.fd)
		return fmt.Errorf("failed to destroy uinput device: %w", err)
	}
	return unix.Close(d.fd)
}

func ioctlInt(fd int, req uint, value int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(value))
	if errno != 0 {
		return errno
	}
	return nil
}
