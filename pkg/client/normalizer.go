package client

import "keybridge/pkg/types"

// Normalizer converts raw signals into canonical wire events. Key and
// composition events share one strictly increasing sequence counter so
// the server can order the merged stream. Not safe for concurrent use.
type Normalizer struct {
	tracker         *ModifierTracker
	suppressDefault bool
	seq             uint64
}

// NewNormalizer creates a normalizer. When suppressDefault is set,
// normalization reports that the host's default handling of the signal
// should be suppressed.
func NewNormalizer(tracker *ModifierTracker, suppressDefault bool) *Normalizer {
	return &Normalizer{
		tracker:         tracker,
		suppressDefault: suppressDefault,
	}
}

// NormalizeKey produces exactly one keyboard event for a raw key
// signal. The boolean reports whether the caller should suppress the
// host's default handling.
func (n *Normalizer) NormalizeKey(sig RawKeySignal) (*types.KeyboardEvent, bool) {
	modifiers := n.tracker.Track(sig)

	eventType := types.EventKeyUp
	if sig.Pressed {
		eventType = types.EventKeyDown
	}

	n.seq++
	return &types.KeyboardEvent{
		Type:      types.MessageTypeKeyboardEvent,
		Seq:       n.seq,
		KeyCode:   sig.KeyCode,
		Key:       sig.Code,
		Char:      sig.Char,
		Modifiers: modifiers,
		EventType: eventType,
		Timestamp: sig.Timestamp,
		Location:  sig.Location,
		Repeat:    sig.Repeat,
	}, n.suppressDefault
}

// NormalizeComposition produces exactly one composition event for a
// raw composition signal, carrying the full current text.
func (n *Normalizer) NormalizeComposition(sig RawCompositionSignal, modifiers types.ModifierState) *types.CompositionEvent {
	n.seq++
	return &types.CompositionEvent{
		Type:             types.MessageTypeCompositionEvent,
		Seq:              n.seq,
		CompositionText:  sig.Text,
		CompositionStart: sig.SpanStart,
		CompositionEnd:   sig.SpanEnd,
		Phase:            sig.Phase,
		Modifiers:        modifiers,
		Timestamp:        sig.Timestamp,
	}
}

// Seq returns the sequence number of the most recently normalized
// event, zero before the first.
func (n *Normalizer) Seq() uint64 {
	return n.seq
}
