// Package emitter translates one session's ordered event stream into
// device actions on exactly one virtual keyboard.
package emitter

import (
	"errors"
	"fmt"
	"sync"

	"keybridge/pkg/interfaces"
	"keybridge/pkg/keymap"
	"keybridge/pkg/types"
)

// Engine drives one virtual device for one session. Events are
// processed strictly in increasing sequence order; the pressed-set
// always equals the keys pressed and not yet released, and ReleaseAll
// drains it on any session termination so no key is ever left stuck on
// the remote side.
type Engine struct {
	device interfaces.DeviceHandle

	mu      sync.Mutex
	km      keymap.Keymap
	pressed map[string]string // key identity -> device key name
	lastSeq uint64
}

// New creates an engine bound to a device handle with the session's
// initial keymap. The keymap is copied; later updates go through
// SetKeymap.
func New(device interfaces.DeviceHandle, km keymap.Keymap) *Engine {
	return &Engine{
		device:  device,
		km:      km.Clone(),
		pressed: make(map[string]string),
	}
}

// SetKeymap atomically replaces the session keymap. In-flight
// translations never observe a half-updated table.
func (e *Engine) SetKeymap(km keymap.Keymap) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.km = km.Clone()
}

// ProcessKey translates a keyboard event into device actions.
// Out-of-order or duplicate sequence numbers return ErrStaleSequence
// and have no effect. An unmapped press with no character is silently
// skipped; an unmapped press with a character falls back to a Unicode
// injection sequence, which is atomic and never enters the pressed-set.
func (e *Engine) ProcessKey(ev *types.KeyboardEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.acceptSeq(ev.Seq); err != nil {
		return err
	}

	identity := ev.Identity()
	switch ev.EventType {
	case types.EventKeyDown:
		if key, ok := e.km.Resolve(identity); ok {
			if err := e.device.Emit(key, true); err != nil {
				return fmt.Errorf("press %s: %w", key, err)
			}
			e.pressed[identity] = key
			return nil
		}
		if ev.Char != "" {
			return e.injectUnicode(ev.Char)
		}
		return nil

	case types.EventKeyUp:
		key, ok := e.pressed[identity]
		if !ok {
			// Spurious release; guards against releases for keys
			// pressed before a reconnect or never mapped.
			return nil
		}
		delete(e.pressed, identity)
		if err := e.device.Emit(key, false); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}

	return types.ErrInvalidEventType
}

// ProcessComposition emits completed compositions as Unicode injection
// of the full composed text. Intermediate phases consume a sequence
// slot but produce no device action.
func (e *Engine) ProcessComposition(ev *types.CompositionEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.acceptSeq(ev.Seq); err != nil {
		return err
	}

	if ev.Phase != types.CompositionEnd || ev.CompositionText == "" {
		return nil
	}
	return e.injectUnicode(ev.CompositionText)
}

// PressedKeys returns the identities currently held down.
func (e *Engine) PressedKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]string, 0, len(e.pressed))
	for identity := range e.pressed {
		keys = append(keys, identity)
	}
	return keys
}

// PressedCount returns the size of the pressed-set.
func (e *Engine) PressedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pressed)
}

// ReleaseAll emits a release for every key still in the pressed-set
// and empties it. Called on every session termination path so a
// disconnect mid-keypress cannot leave the remote session with a stuck
// key. Entries are cleared even when the release emission fails.
func (e *Engine) ReleaseAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for identity, key := range e.pressed {
		delete(e.pressed, identity)
		if err := e.device.Emit(key, false); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// acceptSeq enforces strictly increasing sequence numbers. Caller
// holds e.mu.
func (e *Engine) acceptSeq(seq uint64) error {
	if seq <= e.lastSeq {
		return fmt.Errorf("%w: seq=%d last=%d", ErrStaleSequence, seq, e.lastSeq)
	}
	e.lastSeq = seq
	return nil
}

// injectUnicode types text through the IBus Ctrl+Shift+U hex entry
// sequence, built from ordinary key emissions so real and mock
// backends share one path. Every key involved is pressed and released
// within this call; nothing enters the pressed-set. Caller holds e.mu.
func (e *Engine) injectUnicode(text string) error {
	for _, r := range text {
		if err := e.injectRune(r); err != nil {
			return err
		}
	}
	return nil
}

// injectRune types one code point. Injection keys never enter the
// pressed-set, so a failure mid-sequence must release whatever the
// sequence has pressed so far before returning; otherwise ReleaseAll
// would have no record of the held modifiers.
func (e *Engine) injectRune(r rune) (err error) {
	var held []string
	defer func() {
		if err == nil {
			return
		}
		for i := len(held) - 1; i >= 0; i-- {
			e.device.Emit(held[i], false)
		}
	}()

	press := func(key string) error {
		if emitErr := e.device.Emit(key, true); emitErr != nil {
			return fmt.Errorf("unicode injection: %w", emitErr)
		}
		held = append(held, key)
		return nil
	}
	release := func(key string) error {
		if emitErr := e.device.Emit(key, false); emitErr != nil {
			return fmt.Errorf("unicode injection: %w", emitErr)
		}
		for i := len(held) - 1; i >= 0; i-- {
			if held[i] == key {
				held = append(held[:i], held[i+1:]...)
				break
			}
		}
		return nil
	}
	tap := func(key string) error {
		if err := press(key); err != nil {
			return err
		}
		return release(key)
	}

	if err = press("KEY_LEFTCTRL"); err != nil {
		return err
	}
	if err = press("KEY_LEFTSHIFT"); err != nil {
		return err
	}
	if err = tap("KEY_U"); err != nil {
		return err
	}
	for _, digit := range fmt.Sprintf("%x", r) {
		if err = tap(hexKey(digit)); err != nil {
			return err
		}
	}
	if err = release("KEY_LEFTSHIFT"); err != nil {
		return err
	}
	if err = release("KEY_LEFTCTRL"); err != nil {
		return err
	}
	err = tap("KEY_ENTER")
	return err
}

func hexKey(digit rune) string {
	if digit >= '0' && digit <= '9' {
		return "KEY_" + string(digit)
	}
	return "KEY_" + string(digit-'a'+'A')
}
