package button

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/desk.report/internal/gpio"
	"github.com/banshee-data/desk.report/internal/timeutil"
)

func newRemote(lines ...Line) (*Remote, map[Line]*gpio.FakePin, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	pins := make(map[Line]*gpio.FakePin)
	bindings := make(map[Line]Binding)
	for _, l := range lines {
		p := gpio.NewFakePin(l.String())
		pins[l] = p
		bindings[l] = Binding{Pin: p}
	}
	return NewRemote(bindings, clock), pins, clock
}

func TestPresetLines(t *testing.T) {
	tests := []struct {
		preset int
		want   []Line
	}{
		{1, []Line{HC0, HC1}},
		{2, []Line{HC2}},
		{3, []Line{HC2, HC0}},
		{4, []Line{HC2, HC1}},
	}
	for _, tt := range tests {
		got, err := PresetLines(tt.preset)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	for _, p := range []int{0, 5, -1} {
		_, err := PresetLines(p)
		assert.ErrorIs(t, err, ErrInvalidPreset)
	}
}

func TestRemote_HoldAndRelease(t *testing.T) {
	r, pins, _ := newRemote(HC0, HC1)

	require.NoError(t, r.Hold(LineUp))
	assert.False(t, pins[HC1].Driven(), "pressed lines are driven low")
	assert.True(t, pins[HC0].Driven())
	assert.Equal(t, []Line{HC1}, r.Held())

	require.NoError(t, r.ReleaseAll())
	assert.True(t, pins[HC1].Driven())
	assert.Empty(t, r.Held())
}

func TestRemote_SkipsUnconfiguredLines(t *testing.T) {
	r, pins, _ := newRemote(HC2)
	assert.False(t, r.Configured(HC0))

	require.NoError(t, r.Hold(HC0, HC2))
	assert.Equal(t, []Line{HC2}, r.Held())
	assert.False(t, pins[HC2].Driven())
}

func TestRemote_PulseReleasesOnTick(t *testing.T) {
	r, pins, clock := newRemote(HC0, HC1, HC2)
	lines, err := PresetLines(4)
	require.NoError(t, err)

	require.NoError(t, r.Pulse(PresetHold, lines...))
	assert.True(t, r.Pulsing())
	assert.False(t, pins[HC2].Driven())
	assert.False(t, pins[HC1].Driven())
	assert.True(t, pins[HC0].Driven())

	clock.Advance(100 * time.Millisecond)
	released, err := r.Tick()
	require.NoError(t, err)
	assert.False(t, released)
	assert.False(t, pins[HC2].Driven())

	clock.Advance(50 * time.Millisecond)
	released, err = r.Tick()
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, r.Pulsing())
	for l, p := range pins {
		assert.True(t, p.Driven(), "%s should be released", l)
	}

	released, _ = r.Tick()
	assert.False(t, released, "nothing left to release")
}

func TestRemote_HoldError(t *testing.T) {
	r, pins, _ := newRemote(HC0)
	boom := errors.New("line stuck")
	pins[HC0].SetOutError(boom)
	assert.ErrorIs(t, r.Hold(HC0), boom)
	assert.Empty(t, r.Held())
}

func TestRemote_InvertedBinding(t *testing.T) {
	p := gpio.NewFakePin("GPIO6")
	r := NewRemote(map[Line]Binding{HC3: {Pin: p, Inverted: true}}, nil)

	require.NoError(t, r.Hold(HC3))
	assert.True(t, p.Driven(), "inverted lines are pressed by driving high")
	require.NoError(t, r.Release(HC3))
	assert.False(t, p.Driven())
}

func TestRemote_Close(t *testing.T) {
	r, pins, _ := newRemote(HC0, HC1)
	require.NoError(t, r.Hold(HC0))
	require.NoError(t, r.Close())
	for _, p := range pins {
		assert.True(t, p.Driven())
		assert.True(t, p.Released())
	}
}
