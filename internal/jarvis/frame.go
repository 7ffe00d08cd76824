// Package jarvis implements the serial protocol spoken by the Jarvis CB2C desk
// controller: frame layout, checksum, stream reassembly and height decoding.
//
// A frame on the wire looks like
//
//	ADDR ADDR CMD LEN P0 .. P(LEN-1) SUM 0x7E
//
// where ADDR is 0xF2 for frames sent by the controller and 0xF1 for frames
// sent to it, LEN is at most 3 and SUM is the 8 bit sum of CMD, LEN and the
// parameter bytes.
package jarvis

import (
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// AddrController prefixes frames reported by the motor controller.
	AddrController byte = 0xF2
	// AddrMotor prefixes frames addressed to the motor controller.
	AddrMotor byte = 0xF1
	// EOM terminates every frame.
	EOM byte = 0x7E

	// MaxParams is the largest parameter count seen on the bus.
	MaxParams = 3
	// MaxFrameLen is the longest possible frame (address x2, command, length,
	// three params, checksum, EOM).
	MaxFrameLen = 9
	// MinFrameLen is a frame without parameters.
	MinFrameLen = 6

	headerLen = 4
)

// Commands observed on the bus.
const (
	CmdHeight byte = 0x01
	CmdWake   byte = 0x29
)

// ErrTooManyParams is returned when encoding a frame with more than
// MaxParams parameters.
var ErrTooManyParams = errors.New("too many frame parameters")

// Frame is one validated unit of the controller's serial stream.
type Frame struct {
	Address byte
	Command byte
	Params  []byte
}

// Checksum returns the 8 bit sum of the command, the parameter count and
// each parameter byte.
func (f Frame) Checksum() byte {
	sum := f.Command + byte(len(f.Params))
	for _, p := range f.Params {
		sum += p
	}
	return sum
}

// Len returns the encoded size of the frame in bytes.
func (f Frame) Len() int {
	return headerLen + len(f.Params) + 2
}

// Bytes encodes the frame in wire format.
func (f Frame) Bytes() []byte {
	b := make([]byte, 0, f.Len())
	b = append(b, f.Address, f.Address, f.Command, byte(len(f.Params)))
	b = append(b, f.Params...)
	return append(b, f.Checksum(), EOM)
}

func (f Frame) String() string {
	return fmt.Sprintf("cmd=0x%02x params=%s", f.Command, hex.EncodeToString(f.Params))
}

// EncodeCommand builds a frame addressed to the motor controller.
func EncodeCommand(cmd byte, params ...byte) ([]byte, error) {
	if len(params) > MaxParams {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyParams, len(params), MaxParams)
	}
	return Frame{Address: AddrMotor, Command: cmd, Params: params}.Bytes(), nil
}

// WakePacket returns the WAKE command (F1 F1 29 00 29 7E) that nudges an idle
// motor controller.
func WakePacket() []byte {
	return Frame{Address: AddrMotor, Command: CmdWake}.Bytes()
}
