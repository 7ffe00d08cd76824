package desksim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/desk.report/internal/button"
	"github.com/banshee-data/desk.report/internal/gpio"
	"github.com/banshee-data/desk.report/internal/jarvis"
	"github.com/banshee-data/desk.report/internal/serialport"
	"github.com/banshee-data/desk.report/internal/timeutil"
)

func newSim(t *testing.T, opts Options) (*Controller, map[button.Line]*gpio.FakePin, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	pins := make(map[button.Line]*gpio.FakePin)
	levels := make(map[button.Line]Level)
	for _, l := range button.Lines {
		p := gpio.NewFakePin(l.String())
		pins[l] = p
		levels[l] = p
	}
	return New(levels, clock, opts), pins, clock
}

func readHeights(t *testing.T, c *Controller) []jarvis.Height {
	t.Helper()
	buf := make([]byte, 64)
	n, err := serialport.ReadAvailable(c, buf)
	require.NoError(t, err)

	r := jarvis.NewFrameReader(jarvis.WithFrameTimeout(0))
	r.Feed(buf[:n])
	var out []jarvis.Height
	for {
		f, err := r.Next()
		if err != nil {
			break
		}
		h, err := jarvis.DefaultDecoder().Decode(f)
		require.NoError(t, err)
		out = append(out, h)
	}
	return out
}

func TestController_InitialReport(t *testing.T) {
	c, _, _ := newSim(t, Options{})
	hs := readHeights(t, c)
	require.Len(t, hs, 1)
	assert.Equal(t, 0.74, hs[0].Meters)
	assert.Empty(t, readHeights(t, c), "unchanged height is not repeated before the heartbeat")
}

func TestController_HoldUpMoves(t *testing.T) {
	c, pins, clock := newSim(t, Options{})
	readHeights(t, c)

	pins[button.HC1].Out(false)
	clock.Advance(time.Second)
	hs := readHeights(t, c)
	require.Len(t, hs, 1)
	assert.InDelta(t, 0.778, hs[0].Meters, 1e-9)

	pins[button.HC1].Out(true)
	pins[button.HC0].Out(false)
	clock.Advance(2 * time.Second)
	hs = readHeights(t, c)
	require.Len(t, hs, 1)
	assert.InDelta(t, 0.702, hs[0].Meters, 1e-9)
}

func TestController_ClampsAtLimits(t *testing.T) {
	c, pins, clock := newSim(t, Options{})
	pins[button.HC0].Out(false)
	clock.Advance(time.Minute)
	readHeights(t, c)
	assert.Equal(t, 620.0, c.HeightMM())
}

func TestController_PresetSeeks(t *testing.T) {
	c, pins, clock := newSim(t, Options{})
	readHeights(t, c)

	pins[button.HC2].Out(false)
	clock.Advance(100 * time.Millisecond)
	readHeights(t, c)
	pins[button.HC2].Out(true)

	for i := 0; i < 20; i++ {
		clock.Advance(time.Second)
		readHeights(t, c)
	}
	assert.Equal(t, 1050.0, c.HeightMM())
}

func TestController_MemoryStoresPreset(t *testing.T) {
	c, pins, clock := newSim(t, Options{})
	readHeights(t, c)

	pins[button.HC3].Out(false)
	pins[button.HC0].Out(false)
	clock.Advance(100 * time.Millisecond)
	readHeights(t, c)
	pins[button.HC3].Out(true)
	pins[button.HC0].Out(true)

	pins[button.HC2].Out(false)
	clock.Advance(100 * time.Millisecond)
	readHeights(t, c)
	pins[button.HC2].Out(true)

	assert.Equal(t, 740.0, c.opts.Presets[1])
}

func TestController_Inches(t *testing.T) {
	c, _, _ := newSim(t, Options{Inches: true, StartMM: 1033.78})
	hs := readHeights(t, c)
	require.Len(t, hs, 1)
	assert.Equal(t, uint16(407), hs[0].Raw)
	assert.Equal(t, jarvis.RawUnitTenthInch, hs[0].Unit)
}

func TestController_WakeReports(t *testing.T) {
	c, _, _ := newSim(t, Options{})
	readHeights(t, c)

	n, err := c.Write(jarvis.WakePacket())
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	require.Len(t, c.Received(), 1)
	assert.Equal(t, jarvis.CmdWake, c.Received()[0].Command)
	assert.Len(t, readHeights(t, c), 1)
}

func TestController_Closed(t *testing.T) {
	c, _, _ := newSim(t, Options{})
	require.NoError(t, c.Close())
	_, err := c.Read(make([]byte, 8))
	assert.ErrorIs(t, err, serialport.ErrPortClosed)

	port, err := c.Open("/dev/sim", serialport.PortOptions{})
	require.NoError(t, err)
	_, err = port.Read(make([]byte, 8))
	assert.NoError(t, err)
}
