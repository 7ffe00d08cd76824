package button

import (
	"sort"
	"time"

	"github.com/banshee-data/desk.report/internal/timeutil"
)

// DefaultDebounceCycles is the number of consecutive polls a new level must
// hold before it is reported.
const DefaultDebounceCycles = 3

// Event is a debounced press or release on one line.
type Event struct {
	Line    Line      `json:"line"`
	Pressed bool      `json:"pressed"`
	Cycle   uint64    `json:"cycle"`
	Time    time.Time `json:"time"`
}

// Kind returns "pressed" or "released".
func (e Event) Kind() string {
	if e.Pressed {
		return "pressed"
	}
	return "released"
}

type lineState struct {
	line    Line
	binding Binding
	seeded  bool
	stable  bool
	count   int
}

// Monitor samples the configured lines once per poll and debounces them by
// cycle count. Lines without a binding are never read.
type Monitor struct {
	window int
	clock  timeutil.Clock
	lines  []*lineState
}

// NewMonitor builds a monitor over the given bindings. A window below 1 is
// treated as 1.
func NewMonitor(bindings map[Line]Binding, window int, clock timeutil.Clock) *Monitor {
	if window < 1 {
		window = 1
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	m := &Monitor{window: window, clock: clock}
	for line, b := range bindings {
		if b.Pin == nil {
			continue
		}
		m.lines = append(m.lines, &lineState{line: line, binding: b})
	}
	sort.Slice(m.lines, func(i, j int) bool { return m.lines[i].line < m.lines[j].line })
	return m
}

// Sample reads every configured line once and returns the transitions that
// completed their debounce window on this cycle. The first sample of a line
// only seeds its state.
func (m *Monitor) Sample(cycle uint64) []Event {
	var events []Event
	for _, s := range m.lines {
		pressed := s.binding.Pin.Read() == s.binding.pressedLevel()
		if !s.seeded {
			s.stable = pressed
			s.seeded = true
			continue
		}
		if pressed == s.stable {
			s.count = 0
			continue
		}
		s.count++
		if s.count < m.window {
			continue
		}
		s.stable = pressed
		s.count = 0
		events = append(events, Event{Line: s.line, Pressed: pressed, Cycle: cycle, Time: m.clock.Now()})
	}
	return events
}

// Pressed returns the debounced state of line. ok is false when the line is
// not configured or has not been sampled yet.
func (m *Monitor) Pressed(line Line) (pressed, ok bool) {
	for _, s := range m.lines {
		if s.line == line {
			return s.stable, s.seeded
		}
	}
	return false, false
}

// Lines returns the configured lines in order.
func (m *Monitor) Lines() []Line {
	out := make([]Line, len(m.lines))
	for i, s := range m.lines {
		out[i] = s.line
	}
	return out
}

// Window returns the debounce window in cycles.
func (m *Monitor) Window() int { return m.window }
