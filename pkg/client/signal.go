// Package client implements the capture side of the bridge: modifier
// tracking, event normalization, and the session state machine that
// delivers normalized events to the daemon.
package client

// RawKeySignal is one key transition as reported by the capture
// surface, before normalization. Code carries the locale-independent
// symbolic identity ("KeyA"); older capture surfaces supply only the
// numeric KeyCode.
type RawKeySignal struct {
	Code      string
	KeyCode   int
	Char      string
	Pressed   bool
	Location  int
	Repeat    bool
	Ctrl      bool
	Alt       bool
	Shift     bool
	Meta      bool
	Timestamp int64
}

// RawCompositionSignal is one input-method composition update. Text is
// always the full current composition, never a delta.
type RawCompositionSignal struct {
	Text      string
	SpanStart int
	SpanEnd   int
	Phase     string
	Timestamp int64
}
