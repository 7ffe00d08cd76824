// Package gpio abstracts the digital lines wired to the desk handset port.
// The periph.io backed provider drives real header pins on a Linux host; the
// fake provider lets tests and dev mode run without hardware.
package gpio

import "errors"

var (
	// ErrUnknownPin is returned when a pin name does not resolve.
	ErrUnknownPin = errors.New("unknown gpio pin")
	// ErrPinInUse is returned when a pin is acquired twice.
	ErrPinInUse = errors.New("gpio pin already acquired")
)

// Pin is a single open-drain digital line. Either end may pull it low.
type Pin interface {
	// Name returns the name the pin was acquired with.
	Name() string
	// Out pulls the line low, or lets it float high.
	Out(high bool) error
	// Read returns the current level of the line.
	Read() bool
	// Release stops driving the line and returns it to the provider.
	Release() error
}

// Provider hands out pins by name (e.g. "GPIO17").
type Provider interface {
	Pin(name string) (Pin, error)
}
