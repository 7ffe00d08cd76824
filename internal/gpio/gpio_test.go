package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakePin_OpenDrain(t *testing.T) {
	p := NewFakePin("GPIO17")
	assert.True(t, p.Read(), "idle line reads high")

	require.NoError(t, p.Out(false))
	assert.False(t, p.Read())
	require.NoError(t, p.Out(true))
	assert.True(t, p.Read())

	p.PullLow(true)
	assert.False(t, p.Read(), "handset pulling low wins over our high")
	assert.True(t, p.Driven())

	assert.Equal(t, []bool{false, true}, p.Writes())
}

func TestFakePin_OutError(t *testing.T) {
	p := NewFakePin("GPIO17")
	boom := errors.New("boom")
	p.SetOutError(boom)
	assert.ErrorIs(t, p.Out(false), boom)
	assert.True(t, p.Read())
}

func TestFakeProvider(t *testing.T) {
	prov := NewFakeProvider()
	prov.Missing["GPIO99"] = true

	pin, err := prov.Pin("GPIO17")
	require.NoError(t, err)
	assert.Equal(t, "GPIO17", pin.Name())
	assert.Same(t, prov.Get("GPIO17"), pin)

	_, err = prov.Pin("GPIO17")
	assert.ErrorIs(t, err, ErrPinInUse)

	_, err = prov.Pin("GPIO99")
	assert.ErrorIs(t, err, ErrUnknownPin)

	require.NoError(t, pin.Release())
	assert.True(t, prov.Get("GPIO17").Released())

	again, err := prov.Pin("GPIO17")
	require.NoError(t, err, "released pins can be acquired again")
	assert.False(t, again.(*FakePin).Released())
}
