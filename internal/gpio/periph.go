package gpio

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphProvider resolves pins through the periph.io registry.
type PeriphProvider struct {
	mu       sync.Mutex
	acquired map[string]bool
}

// NewPeriphProvider initialises the periph.io host drivers.
func NewPeriphProvider() (*PeriphProvider, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise periph host: %w", err)
	}
	return &PeriphProvider{acquired: make(map[string]bool)}, nil
}

// Pin looks the name up in gpioreg and claims it.
func (p *PeriphProvider) Pin(name string) (Pin, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.acquired[name] {
		return nil, fmt.Errorf("%w: %s", ErrPinInUse, name)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	p.acquired[name] = true
	return &periphPin{provider: p, name: name, pin: pin}, nil
}

func (p *PeriphProvider) release(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.acquired, name)
}

// periphPin emulates an open-drain output on a push-pull GPIO: low is driven,
// high is an input with the pull-up enabled. The handset can then pull the
// line low while we idle, and Read sees it.
type periphPin struct {
	provider *PeriphProvider
	name     string
	pin      gpio.PinIO
}

func (pp *periphPin) Name() string { return pp.name }

func (pp *periphPin) Out(high bool) error {
	if high {
		return pp.pin.In(gpio.PullUp, gpio.NoEdge)
	}
	return pp.pin.Out(gpio.Low)
}

func (pp *periphPin) Read() bool {
	return pp.pin.Read() == gpio.High
}

func (pp *periphPin) Release() error {
	defer pp.provider.release(pp.name)
	if err := pp.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return err
	}
	return pp.pin.Halt()
}
