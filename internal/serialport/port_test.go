package serialport

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_InvalidPath(t *testing.T) {
	port, err := Open("/dev/nonexistent-serial-port-12345", PortOptions{})
	if err == nil {
		port.Close()
		t.Fatal("expected error when opening non-existent serial port")
	}
}

func TestOpen_InvalidOptions(t *testing.T) {
	_, err := Open("/dev/nonexistent-serial-port-12345", PortOptions{BaudRate: 12345})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baud")
}

func TestReadAvailable(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte{1, 2, 3, 4, 5})

	buf := make([]byte, 3)
	n, err := ReadAvailable(port, buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, buf)

	n, err = ReadAvailable(port, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ReadAvailable(port, buf)
	require.NoError(t, err)
	assert.Zero(t, n, "an idle line reads nothing")
}

func TestReadAvailable_Error(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("framing")
	_, err := ReadAvailable(port, make([]byte, 8))
	assert.EqualError(t, err, "framing")
}

type eofReader struct{ data []byte }

func (r *eofReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestReadAvailable_EOF(t *testing.T) {
	n, err := ReadAvailable(&eofReader{data: []byte{9, 9}}, make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWriteAll(t *testing.T) {
	port := NewTestableSerialPort()
	require.NoError(t, WriteAll(port, []byte{0xF1, 0xF1}))
	assert.Equal(t, []byte{0xF1, 0xF1}, port.GetWrittenData())

	port.WriteError = errors.New("tx")
	assert.EqualError(t, WriteAll(port, []byte{1}), "tx")

	require.NoError(t, port.Close())
	assert.ErrorIs(t, WriteAll(port, []byte{1}), ErrPortClosed)
}

func TestMockOpener(t *testing.T) {
	port := NewTestableSerialPort()
	opener := NewMockOpener(port)

	got, err := opener.Open("/dev/ttyS0", PortOptions{BaudRate: 9600})
	require.NoError(t, err)
	assert.Same(t, port, got)
	assert.Equal(t, 1, opener.CallCount())
	assert.Equal(t, "/dev/ttyS0", opener.Calls[0].Path)

	opener.Err = errors.New("busy")
	_, err = opener.Open("/dev/ttyS0", PortOptions{})
	assert.EqualError(t, err, "busy")

	var _ Opener = opener.Open
	var _ TimeoutSerialPorter = port
}
