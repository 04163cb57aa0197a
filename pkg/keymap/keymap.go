// Package keymap holds the mapping from canonical key identities to
// device key names. A keymap is supplied once per session at connect
// time and may be replaced by an explicit update message; replacement
// is atomic from the perspective of any single translation.
package keymap

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
)

// Keymap maps canonical key identities (for example "KeyA" or the
// legacy decimal form "65") to device key names (for example "KEY_A").
// The mapping may be partial; unmapped identities fall back to Unicode
// injection downstream.
type Keymap map[string]string

// Resolve looks up the device key name for a key identity. Not-found
// is not an error.
func (k Keymap) Resolve(identity string) (string, bool) {
	key, ok := k[identity]
	return key, ok
}

// Clone returns an independent copy. Sessions copy their keymap on
// bind so that no session ever mutates shared state.
func (k Keymap) Clone() Keymap {
	out := make(Keymap, len(k))
	for identity, key := range k {
		out[identity] = key
	}
	return out
}

// Merge returns a copy of base with override entries applied on top.
func Merge(base, override Keymap) Keymap {
	out := base.Clone()
	for identity, key := range override {
		out[identity] = key
	}
	return out
}

// LoadFile reads a keymap from a JSON object file of identity → device
// key name pairs.
func LoadFile(path string) (Keymap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keymap file %s: %w", path, err)
	}

	var km Keymap
	if err := json.Unmarshal(data, &km); err != nil {
		return nil, fmt.Errorf("failed to parse keymap file %s: %w", path, err)
	}
	return km, nil
}

// Holder publishes the daemon's current default keymap. Readers get a
// consistent snapshot; Store swaps the whole table so a translation
// never sees a half-updated map.
type Holder struct {
	current atomic.Pointer[Keymap]
}

// NewHolder creates a holder seeded with km.
func NewHolder(km Keymap) *Holder {
	h := &Holder{}
	h.Store(km)
	return h
}

// Load returns the current default keymap. Callers must Clone before
// mutating.
func (h *Holder) Load() Keymap {
	return *h.current.Load()
}

// Store replaces the default keymap.
func (h *Holder) Store(km Keymap) {
	h.current.Store(&km)
}
