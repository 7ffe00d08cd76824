package jarvis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heightFrame(hi, lo byte) Frame {
	return Frame{Address: AddrController, Command: CmdHeight, Params: []byte{hi, lo, 0x03}}
}

func TestDecoder_InchReport(t *testing.T) {
	h, err := DefaultDecoder().Decode(heightFrame(0x01, 0x97))
	require.NoError(t, err)

	// 0x0197 = 407 tenths of an inch = 1033.78mm
	assert.Equal(t, uint16(407), h.Raw)
	assert.Equal(t, RawUnitTenthInch, h.Unit)
	assert.Equal(t, 1.0338, h.Meters)
	assert.InDelta(t, 1033.8, h.MM(), 1e-9)
}

func TestDecoder_MillimeterReport(t *testing.T) {
	// 0x02D6 = 726mm
	h, err := DefaultDecoder().Decode(heightFrame(0x02, 0xD6))
	require.NoError(t, err)
	assert.Equal(t, uint16(726), h.Raw)
	assert.Equal(t, RawUnitMillimeter, h.Unit)
	assert.Equal(t, 0.726, h.Meters)
}

func TestDecoder_FixedUnit(t *testing.T) {
	d := DefaultDecoder()
	d.Unit = RawUnitMillimeter
	d.MinMeters = 0
	h, err := d.Convert(407)
	require.NoError(t, err)
	assert.Equal(t, 0.407, h.Meters)
	assert.Equal(t, RawUnitMillimeter, h.Unit)

	d.Unit = RawUnitTenthInch
	d.MaxMeters = 2
	h, err = d.Convert(700)
	require.NoError(t, err)
	assert.Equal(t, 1.778, h.Meters)
}

func TestDecoder_Deterministic(t *testing.T) {
	d := DefaultDecoder()
	for raw := 240; raw <= 530; raw++ {
		f := heightFrame(byte(raw>>8), byte(raw))
		first, err1 := d.Decode(f)
		second, err2 := d.Decode(f)
		require.Equal(t, err1, err2)
		require.Equal(t, first, second)
		require.Equal(t, first.Meters, float64(int64(first.Meters*10000+0.5))/10000, "raw %d not rounded to 4 decimals", raw)
	}
}

func TestDecoder_ZeroRawMapsToMinimum(t *testing.T) {
	const min = 0.6096 // 24.0 inches
	d := Decoder{
		Scale:     &Scale{MetersPerCount: 0.00254, OffsetMeters: min},
		Precision: 4,
		MinMeters: min,
		MaxMeters: 1.30,
	}
	h, err := d.Decode(heightFrame(0x00, 0x00))
	require.NoError(t, err)
	assert.Equal(t, min, h.Meters)
	assert.Equal(t, RawUnitCustom, h.Unit)
}

func TestDecoder_OutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		hi, lo byte
	}{
		{"zero with default scale", 0x00, 0x00},
		{"below frame travel", 0x00, 0xC8}, // 20.0in
		{"above frame travel", 0x05, 0x28}, // 1320mm
		{"max raw", 0xFF, 0xFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DefaultDecoder().Decode(heightFrame(tt.hi, tt.lo))
			assert.ErrorIs(t, err, ErrOutOfRange)
		})
	}
}

func TestDecoder_NotHeight(t *testing.T) {
	d := DefaultDecoder()

	_, err := d.Decode(Frame{Command: CmdWake})
	assert.ErrorIs(t, err, ErrNotHeight)

	_, err = d.Decode(Frame{Command: CmdHeight, Params: []byte{0x01}})
	assert.ErrorIs(t, err, ErrNotHeight)
}

func TestParseRawUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    RawUnit
		wantErr bool
	}{
		{"", RawUnitAuto, false},
		{"auto", RawUnitAuto, false},
		{"INCH", RawUnitTenthInch, false},
		{" mm ", RawUnitMillimeter, false},
		{"cubits", RawUnitAuto, true},
	}
	for _, tt := range tests {
		got, err := ParseRawUnit(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.NotEmpty(t, got.String())
	}
}
