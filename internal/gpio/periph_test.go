package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

// wirePin is a header pin on a line the handset can also pull low.
type wirePin struct {
	gpio.PinIO

	output     bool
	level      gpio.Level
	pull       gpio.Pull
	handsetLow bool
	halted     bool
}

func (w *wirePin) In(pull gpio.Pull, _ gpio.Edge) error {
	w.output = false
	w.pull = pull
	return nil
}

func (w *wirePin) Out(l gpio.Level) error {
	w.output = true
	w.level = l
	return nil
}

func (w *wirePin) Read() gpio.Level {
	if w.handsetLow {
		return gpio.Low
	}
	if w.output {
		return w.level
	}
	return w.pull == gpio.PullUp
}

func (w *wirePin) Halt() error {
	w.halted = true
	return nil
}

func newWirePin() (*wirePin, *periphPin) {
	w := &wirePin{}
	p := &PeriphProvider{acquired: map[string]bool{"GPIO17": true}}
	return w, &periphPin{provider: p, name: "GPIO17", pin: w}
}

func TestPeriphPin_IdleIsPulledUpInput(t *testing.T) {
	w, pp := newWirePin()

	require.NoError(t, pp.Out(true))
	assert.False(t, w.output, "idle must not drive the line")
	assert.Equal(t, gpio.PullUp, w.pull)
	assert.True(t, pp.Read())

	w.handsetLow = true
	assert.False(t, pp.Read(), "a handset press is visible while idle")
}

func TestPeriphPin_PressDrivesLow(t *testing.T) {
	w, pp := newWirePin()

	require.NoError(t, pp.Out(false))
	assert.True(t, w.output)
	assert.Equal(t, gpio.Low, w.level)
	assert.False(t, pp.Read())

	require.NoError(t, pp.Out(true))
	assert.False(t, w.output)
	assert.True(t, pp.Read())
}

func TestPeriphPin_ReleaseFloatsAndHalts(t *testing.T) {
	w, pp := newWirePin()
	require.NoError(t, pp.Out(false))

	require.NoError(t, pp.Release())
	assert.False(t, w.output)
	assert.True(t, w.halted)
	assert.False(t, pp.provider.acquired["GPIO17"])
}
