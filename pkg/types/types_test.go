package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestKeyboardEvent_Identity(t *testing.T) {
	ev := &KeyboardEvent{Key: "KeyA", KeyCode: 65}
	if got := ev.Identity(); got != "KeyA" {
		t.Errorf("Identity() = %q, want %q", got, "KeyA")
	}

	// Older clients only send the numeric keyCode
	ev = &KeyboardEvent{KeyCode: 65}
	if got := ev.Identity(); got != "65" {
		t.Errorf("Identity() = %q, want %q", got, "65")
	}
}

func TestKeyboardEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   KeyboardEvent
		wantErr error
	}{
		{"valid keydown", KeyboardEvent{EventType: EventKeyDown, KeyCode: 65}, nil},
		{"valid keyup", KeyboardEvent{EventType: EventKeyUp, KeyCode: 0}, nil},
		{"bad event type", KeyboardEvent{EventType: "keypress", KeyCode: 65}, ErrInvalidEventType},
		{"negative key code", KeyboardEvent{EventType: EventKeyDown, KeyCode: -1}, ErrInvalidKeyCode},
		{"key code too large", KeyboardEvent{EventType: EventKeyDown, KeyCode: 256}, ErrInvalidKeyCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompositionEvent_Validate(t *testing.T) {
	for _, phase := range []string{CompositionStart, CompositionUpdate, CompositionEnd} {
		ev := CompositionEvent{Phase: phase}
		if err := ev.Validate(); err != nil {
			t.Errorf("Validate() with phase %q = %v, want nil", phase, err)
		}
	}

	ev := CompositionEvent{Phase: "final"}
	if err := ev.Validate(); !errors.Is(err, ErrInvalidPhase) {
		t.Errorf("Validate() = %v, want %v", err, ErrInvalidPhase)
	}
}

func TestEnvelope_Dispatch(t *testing.T) {
	raw := []byte(`{"type":"keyboard_event","seq":7,"keyCode":65,"key":"KeyA","eventType":"keydown","modifiers":{"shift":true}}`)

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("envelope unmarshal failed: %v", err)
	}
	if env.Type != MessageTypeKeyboardEvent {
		t.Fatalf("envelope type = %q, want %q", env.Type, MessageTypeKeyboardEvent)
	}

	var ev KeyboardEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("event unmarshal failed: %v", err)
	}
	if ev.Seq != 7 || !ev.Modifiers.Shift || ev.Identity() != "KeyA" {
		t.Errorf("unexpected decoded event: %+v", ev)
	}
}

func TestIsValidClientID(t *testing.T) {
	valid := []string{"client-1", "a", "web.client_02", "X"}
	for _, id := range valid {
		if !IsValidClientID(id) {
			t.Errorf("IsValidClientID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "has space", "tab\there", string(make([]byte, 65))}
	for _, id := range invalid {
		if IsValidClientID(id) {
			t.Errorf("IsValidClientID(%q) = true, want false", id)
		}
	}
}
