package surface

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spboyer/stimseq/internal/models"
)

// Key names produced by the terminal decoder.
const (
	KeyEscape    = "escape"
	KeyEnter     = "enter"
	KeySpace     = "space"
	KeyTab       = "tab"
	KeyBackspace = "backspace"
	KeyCtrlC     = "ctrl+c"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyLeft      = "left"
	KeyRight     = "right"
)

const (
	mouseOn  = "\x1b[?1000h\x1b[?1006h"
	mouseOff = "\x1b[?1006l\x1b[?1000l"
)

// decodeInput turns one read from a raw-mode terminal into input events,
// all stamped with ts. Mouse presses arrive as xterm SGR reports
// (ESC [ < b ; x ; y M); releases and motion are dropped.
func decodeInput(chunk []byte, ts time.Time) []models.InputEvent {
	var events []models.InputEvent
	key := func(name string) {
		events = append(events, models.InputEvent{Key: name, Kind: models.InputKeyboard, Timestamp: ts})
	}

	s := string(chunk)
	for len(s) > 0 {
		switch {
		case s == "\x1b":
			key(KeyEscape)
			s = ""
		case strings.HasPrefix(s, "\x1b[<"):
			n, ev, ok := decodeSGRMouse(s)
			if ok {
				ev.Timestamp = ts
				events = append(events, ev)
			}
			s = s[n:]
		case strings.HasPrefix(s, "\x1b["), strings.HasPrefix(s, "\x1bO"):
			n, name := decodeCSI(s)
			if name != "" {
				key(name)
			}
			s = s[n:]
		case s[0] == 0x1b:
			// ESC followed by other bytes: alt+key or a lone escape that was
			// coalesced with the next key press.
			key(KeyEscape)
			s = s[1:]
		case s[0] == 0x03:
			key(KeyCtrlC)
			s = s[1:]
		case s[0] == '\r' || s[0] == '\n':
			key(KeyEnter)
			s = s[1:]
		case s[0] == ' ':
			key(KeySpace)
			s = s[1:]
		case s[0] == '\t':
			key(KeyTab)
			s = s[1:]
		case s[0] == 0x7f || s[0] == 0x08:
			key(KeyBackspace)
			s = s[1:]
		case s[0] < 0x20:
			s = s[1:]
		default:
			r, size := utf8.DecodeRuneInString(s)
			if r != utf8.RuneError {
				key(strings.ToLower(string(r)))
			}
			s = s[size:]
		}
	}
	return events
}

// decodeSGRMouse parses one SGR mouse report at the start of s. It returns
// the number of bytes consumed.
func decodeSGRMouse(s string) (int, models.InputEvent, bool) {
	end := strings.IndexAny(s[3:], "Mm")
	if end < 0 {
		return len(s), models.InputEvent{}, false
	}
	body, final := s[3:3+end], s[3+end]
	consumed := 3 + end + 1

	parts := strings.Split(body, ";")
	if len(parts) != 3 || final != 'M' {
		return consumed, models.InputEvent{}, false
	}
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return consumed, models.InputEvent{}, false
	}
	// Bits 5 and 6 flag motion and wheel events.
	if code&(32|64) != 0 {
		return consumed, models.InputEvent{}, false
	}
	button := code&3 + 1
	if button > 3 {
		return consumed, models.InputEvent{}, false
	}
	return consumed, models.InputEvent{Key: strconv.Itoa(button), Kind: models.InputMouse}, true
}

// decodeCSI consumes a cursor or function key sequence.
func decodeCSI(s string) (int, string) {
	i := 2
	for i < len(s) && (s[i] < 0x40 || s[i] > 0x7e) {
		i++
	}
	if i >= len(s) {
		return len(s), ""
	}
	name := ""
	switch s[i] {
	case 'A':
		name = KeyUp
	case 'B':
		name = KeyDown
	case 'C':
		name = KeyRight
	case 'D':
		name = KeyLeft
	}
	return i + 1, name
}

// NormalizeKey maps configured key names onto decoder names, so "esc",
// "Escape" and "ESC" all match KeyEscape.
func NormalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	switch k {
	case "esc":
		return KeyEscape
	case "return":
		return KeyEnter
	case " ":
		return KeySpace
	}
	return k
}
