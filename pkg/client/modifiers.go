package client

import "keybridge/pkg/types"

// LockStateQuery reads lock-key states from the host environment. A
// nil query means the host cannot report them; all locks default to
// false.
type LockStateQuery func() (capsLock, numLock, scrollLock bool)

// ModifierTracker derives a ModifierState from each raw signal. It is
// not safe for concurrent use; raw signals are processed synchronously
// in arrival order.
type ModifierTracker struct {
	lockQuery LockStateQuery

	// rightAltHeld remembers whether the right-hand Alt key is
	// physically down. AltGr is inferred as (alt flag) AND (right alt
	// held); this is a heuristic, since the capture surface has no
	// dedicated AltGr signal.
	rightAltHeld bool
}

// NewModifierTracker creates a tracker. lockQuery may be nil.
func NewModifierTracker(lockQuery LockStateQuery) *ModifierTracker {
	return &ModifierTracker{lockQuery: lockQuery}
}

// Track consumes one raw signal and returns the modifier state in
// effect after it. Always produces a best-effort state, never an error.
func (t *ModifierTracker) Track(sig RawKeySignal) types.ModifierState {
	if isAltKey(sig) && sig.Location == types.LocationRight {
		t.rightAltHeld = sig.Pressed
	}

	state := types.ModifierState{
		Ctrl:  sig.Ctrl,
		Alt:   sig.Alt,
		Shift: sig.Shift,
		Meta:  sig.Meta,
		AltGr: sig.Alt && t.rightAltHeld,
	}

	if t.lockQuery != nil {
		state.CapsLock, state.NumLock, state.ScrollLock = t.lockQuery()
	}

	return state
}

// Reset clears held-key tracking, for use when capture restarts and
// pending presses can no longer be trusted.
func (t *ModifierTracker) Reset() {
	t.rightAltHeld = false
}

func isAltKey(sig RawKeySignal) bool {
	if sig.Code != "" {
		return sig.Code == "AltLeft" || sig.Code == "AltRight"
	}
	return sig.KeyCode == 18
}
