// Package serialport opens and reads the UART wired to the desk controller.
// Reads are best effort: the port is opened with a short read timeout so the
// poll loop only ever takes the bytes that are already waiting.
package serialport

import (
	"errors"
	"io"
	"time"
)

// DefaultReadTimeout bounds each Read so a poll cycle never blocks on an
// idle line.
const DefaultReadTimeout = time.Millisecond

// ErrWriteFailed is returned when a write is short.
var ErrWriteFailed = errors.New("failed to write to serial port")

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// This is an optional interface that serial ports may implement.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens the port at path. The desk takes an Opener so tests and dev
// mode can substitute the hardware.
type Opener func(path string, opts PortOptions) (SerialPorter, error)

// ReadAvailable reads into buf until a read returns no data, buf is full or
// an error occurs. It relies on the port's read timeout to return promptly.
func ReadAvailable(port io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := port.Read(buf[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// WriteAll writes p and reports a short write as ErrWriteFailed.
func WriteAll(port io.Writer, p []byte) error {
	n, err := port.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return ErrWriteFailed
	}
	return nil
}
