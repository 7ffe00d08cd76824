package button

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/desk.report/internal/gpio"
	"github.com/banshee-data/desk.report/internal/timeutil"
)

func newMonitor(t *testing.T, window int, lines ...Line) (*Monitor, map[Line]*gpio.FakePin) {
	t.Helper()
	pins := make(map[Line]*gpio.FakePin)
	bindings := make(map[Line]Binding)
	for _, l := range lines {
		p := gpio.NewFakePin(l.String())
		pins[l] = p
		bindings[l] = Binding{Pin: p}
	}
	return NewMonitor(bindings, window, timeutil.NewMockClock(time.Unix(0, 0))), pins
}

// run samples the monitor once per level in seq, driving the handset side of
// the pin (true = pressed).
func run(m *Monitor, pin *gpio.FakePin, seq []bool, cycle *uint64) []Event {
	var events []Event
	for _, pressed := range seq {
		pin.PullLow(pressed)
		*cycle++
		events = append(events, m.Sample(*cycle)...)
	}
	return events
}

func TestMonitor_SingleCycleGlitchIgnored(t *testing.T) {
	m, pins := newMonitor(t, 3, HC0)
	var cycle uint64

	events := run(m, pins[HC0], []bool{false, false, true, false, false, false}, &cycle)
	assert.Empty(t, events)

	pressed, ok := m.Pressed(HC0)
	assert.True(t, ok)
	assert.False(t, pressed)
}

func TestMonitor_ShortGlitchesIgnored(t *testing.T) {
	m, pins := newMonitor(t, 3, HC1)
	var cycle uint64

	// two-cycle bursts never reach the three-cycle window
	seq := []bool{false, true, true, false, true, true, false, true, false}
	assert.Empty(t, run(m, pins[HC1], seq, &cycle))
}

func TestMonitor_HeldTransitionReportedOnce(t *testing.T) {
	m, pins := newMonitor(t, 3, HC2)
	var cycle uint64

	seq := []bool{false}
	for i := 0; i < 10; i++ {
		seq = append(seq, true)
	}
	events := run(m, pins[HC2], seq, &cycle)

	require.Len(t, events, 1)
	assert.Equal(t, HC2, events[0].Line)
	assert.True(t, events[0].Pressed)
	assert.Equal(t, uint64(4), events[0].Cycle, "event fires on the third consecutive pressed sample")
	assert.Equal(t, "pressed", events[0].Kind())

	// and exactly one release once it lets go
	seq = []bool{false, false, false, false, false}
	events = run(m, pins[HC2], seq, &cycle)
	require.Len(t, events, 1)
	assert.False(t, events[0].Pressed)
	assert.Equal(t, "released", events[0].Kind())
}

func TestMonitor_WindowOfOne(t *testing.T) {
	m, pins := newMonitor(t, 0, HC3)
	assert.Equal(t, 1, m.Window())
	var cycle uint64

	events := run(m, pins[HC3], []bool{false, true, false}, &cycle)
	assert.Len(t, events, 2)
}

func TestMonitor_FirstSampleSeedsWithoutEvent(t *testing.T) {
	m, pins := newMonitor(t, 2, HC0)
	var cycle uint64

	events := run(m, pins[HC0], []bool{true, true, true}, &cycle)
	assert.Empty(t, events)
	pressed, ok := m.Pressed(HC0)
	assert.True(t, ok)
	assert.True(t, pressed)
}

func TestMonitor_OnlyConfiguredLines(t *testing.T) {
	m, _ := newMonitor(t, 3, HC3, HC1)
	assert.Equal(t, []Line{HC1, HC3}, m.Lines())

	_, ok := m.Pressed(HC0)
	assert.False(t, ok)

	empty := NewMonitor(nil, 3, nil)
	assert.Empty(t, empty.Sample(1))
	assert.Empty(t, empty.Lines())
}

func TestMonitor_Inverted(t *testing.T) {
	p := gpio.NewFakePin("GPIO5")
	m := NewMonitor(map[Line]Binding{HC0: {Pin: p, Inverted: true}}, 1, nil)

	m.Sample(1) // idle high reads as pressed when inverted
	pressed, _ := m.Pressed(HC0)
	assert.True(t, pressed)

	p.PullLow(true)
	events := m.Sample(2)
	require.Len(t, events, 1)
	assert.False(t, events[0].Pressed)
}

func TestParseLine(t *testing.T) {
	for in, want := range map[string]Line{"hc0": HC0, "HC1": HC1, "hc2_pin": HC2, " hc3 ": HC3} {
		got, err := ParseLine(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseLine("hc4")
	assert.Error(t, err)
	assert.Equal(t, "Line(7)", Line(7).String())
}

func TestEvent_JSON(t *testing.T) {
	b, err := json.Marshal(Event{Line: HC2, Pressed: true, Cycle: 9})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"line":"hc2"`)

	var e Event
	require.NoError(t, json.Unmarshal(b, &e))
	assert.Equal(t, HC2, e.Line)
	assert.Equal(t, "pressed", e.Kind())
}
