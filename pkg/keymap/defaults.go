package keymap

import "strconv"

// defaultTable is the built-in identity → device key mapping, keyed by
// DOM KeyboardEvent.code values. It is loaded once at process start
// and copied per session; nothing mutates it after init.
var defaultTable = Keymap{
	// Letters
	"KeyA": "KEY_A", "KeyB": "KEY_B", "KeyC": "KEY_C", "KeyD": "KEY_D",
	"KeyE": "KEY_E", "KeyF": "KEY_F", "KeyG": "KEY_G", "KeyH": "KEY_H",
	"KeyI": "KEY_I", "KeyJ": "KEY_J", "KeyK": "KEY_K", "KeyL": "KEY_L",
	"KeyM": "KEY_M", "KeyN": "KEY_N", "KeyO": "KEY_O", "KeyP": "KEY_P",
	"KeyQ": "KEY_Q", "KeyR": "KEY_R", "KeyS": "KEY_S", "KeyT": "KEY_T",
	"KeyU": "KEY_U", "KeyV": "KEY_V", "KeyW": "KEY_W", "KeyX": "KEY_X",
	"KeyY": "KEY_Y", "KeyZ": "KEY_Z",

	// Digit row
	"Digit0": "KEY_0", "Digit1": "KEY_1", "Digit2": "KEY_2",
	"Digit3": "KEY_3", "Digit4": "KEY_4", "Digit5": "KEY_5",
	"Digit6": "KEY_6", "Digit7": "KEY_7", "Digit8": "KEY_8",
	"Digit9": "KEY_9",

	// Whitespace and editing
	"Enter": "KEY_ENTER", "Escape": "KEY_ESC", "Backspace": "KEY_BACKSPACE",
	"Tab": "KEY_TAB", "Space": "KEY_SPACE", "Insert": "KEY_INSERT",
	"Delete": "KEY_DELETE",

	// Punctuation
	"Minus": "KEY_MINUS", "Equal": "KEY_EQUAL",
	"BracketLeft": "KEY_LEFTBRACE", "BracketRight": "KEY_RIGHTBRACE",
	"Backslash": "KEY_BACKSLASH", "Semicolon": "KEY_SEMICOLON",
	"Quote": "KEY_APOSTROPHE", "Backquote": "KEY_GRAVE",
	"Comma": "KEY_COMMA", "Period": "KEY_DOT", "Slash": "KEY_SLASH",
	"IntlBackslash": "KEY_102ND",

	// Navigation
	"Home": "KEY_HOME", "End": "KEY_END", "PageUp": "KEY_PAGEUP",
	"PageDown": "KEY_PAGEDOWN", "ArrowUp": "KEY_UP", "ArrowDown": "KEY_DOWN",
	"ArrowLeft": "KEY_LEFT", "ArrowRight": "KEY_RIGHT",

	// Function row
	"F1": "KEY_F1", "F2": "KEY_F2", "F3": "KEY_F3", "F4": "KEY_F4",
	"F5": "KEY_F5", "F6": "KEY_F6", "F7": "KEY_F7", "F8": "KEY_F8",
	"F9": "KEY_F9", "F10": "KEY_F10", "F11": "KEY_F11", "F12": "KEY_F12",

	// Modifier and lock keys
	"ControlLeft": "KEY_LEFTCTRL", "ControlRight": "KEY_RIGHTCTRL",
	"ShiftLeft": "KEY_LEFTSHIFT", "ShiftRight": "KEY_RIGHTSHIFT",
	"AltLeft": "KEY_LEFTALT", "AltRight": "KEY_RIGHTALT",
	"MetaLeft": "KEY_LEFTMETA", "MetaRight": "KEY_RIGHTMETA",
	"CapsLock": "KEY_CAPSLOCK", "NumLock": "KEY_NUMLOCK",
	"ScrollLock": "KEY_SCROLLLOCK", "ContextMenu": "KEY_COMPOSE",
	"PrintScreen": "KEY_SYSRQ", "Pause": "KEY_PAUSE",

	// Numpad
	"Numpad0": "KEY_KP0", "Numpad1": "KEY_KP1", "Numpad2": "KEY_KP2",
	"Numpad3": "KEY_KP3", "Numpad4": "KEY_KP4", "Numpad5": "KEY_KP5",
	"Numpad6": "KEY_KP6", "Numpad7": "KEY_KP7", "Numpad8": "KEY_KP8",
	"Numpad9": "KEY_KP9", "NumpadDecimal": "KEY_KPDOT",
	"NumpadDivide": "KEY_KPSLASH", "NumpadMultiply": "KEY_KPASTERISK",
	"NumpadSubtract": "KEY_KPMINUS", "NumpadAdd": "KEY_KPPLUS",
	"NumpadEnter": "KEY_KPENTER", "NumpadEqual": "KEY_KPEQUAL",
}

// legacyAliases maps decimal keyCode identities sent by older clients
// that never populate the symbolic code field.
var legacyAliases = Keymap{
	"8": "KEY_BACKSPACE", "9": "KEY_TAB", "13": "KEY_ENTER",
	"16": "KEY_LEFTSHIFT", "17": "KEY_LEFTCTRL", "18": "KEY_LEFTALT",
	"20": "KEY_CAPSLOCK", "27": "KEY_ESC", "32": "KEY_SPACE",
	"33": "KEY_PAGEUP", "34": "KEY_PAGEDOWN", "35": "KEY_END",
	"36": "KEY_HOME", "37": "KEY_LEFT", "38": "KEY_UP",
	"39": "KEY_RIGHT", "40": "KEY_DOWN", "45": "KEY_INSERT",
	"46": "KEY_DELETE", "91": "KEY_LEFTMETA",
}

func init() {
	// Letter and digit keyCodes line up with ASCII, so generate those
	// aliases instead of spelling out seventy entries.
	for c := byte('A'); c <= 'Z'; c++ {
		legacyAliases[strconv.Itoa(int(c))] = "KEY_" + string(c)
	}
	for c := byte('0'); c <= '9'; c++ {
		legacyAliases[strconv.Itoa(int(c))] = "KEY_" + string(c)
	}
	for identity, key := range legacyAliases {
		defaultTable[identity] = key
	}
}

// Default returns a copy of the built-in keymap.
func Default() Keymap {
	return defaultTable.Clone()
}
