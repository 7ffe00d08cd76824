// Package button covers the four handset control lines (HC0..HC3) of the
// Jarvis desk: a debounced monitor that reports press and release
// transitions, and a remote that drives the lines to simulate button presses.
//
// The lines idle high and are pulled low for a press.
package button

import (
	"fmt"
	"strings"

	"github.com/banshee-data/desk.report/internal/gpio"
)

// Line identifies one handset control line.
type Line int

const (
	HC0 Line = iota
	HC1
	HC2
	HC3
)

// Lines lists every line in order.
var Lines = []Line{HC0, HC1, HC2, HC3}

// Direction aliases. Holding HC1 raises the desk, HC0 lowers it.
const (
	LineUp   = HC1
	LineDown = HC0
)

func (l Line) String() string {
	if l < HC0 || l > HC3 {
		return fmt.Sprintf("Line(%d)", int(l))
	}
	return fmt.Sprintf("hc%d", int(l))
}

// ParseLine accepts "hc2", "HC2" or "hc2_pin".
func ParseLine(s string) (Line, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_pin")
	for _, l := range Lines {
		if s == l.String() {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown handset line %q", s)
}

// Binding ties a line to its pin. Inverted flips the logic so that a high
// level means pressed.
type Binding struct {
	Pin      gpio.Pin
	Inverted bool
}

func (b Binding) pressedLevel() bool { return b.Inverted }

// MarshalText encodes the line as its name.
func (l Line) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText accepts anything ParseLine does.
func (l *Line) UnmarshalText(b []byte) error {
	v, err := ParseLine(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
