package gpio

import (
	"fmt"
	"sync"
)

// FakePin models an open-drain handset line: it reads low when either side
// pulls it low.
type FakePin struct {
	mu       sync.Mutex
	name     string
	driven   bool
	external bool
	released bool
	writes   []bool
	outErr   error

	onRelease func()
}

// NewFakePin returns a pin idling high.
func NewFakePin(name string) *FakePin {
	return &FakePin{name: name, driven: true}
}

func (f *FakePin) Name() string { return f.name }

func (f *FakePin) Out(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outErr != nil {
		return f.outErr
	}
	f.driven = high
	f.writes = append(f.writes, high)
	return nil
}

func (f *FakePin) Read() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.driven && !f.external
}

func (f *FakePin) Release() error {
	f.mu.Lock()
	f.released = true
	f.driven = true
	onRelease := f.onRelease
	f.onRelease = nil
	f.mu.Unlock()

	if onRelease != nil {
		onRelease()
	}
	return nil
}

// PullLow simulates the handset pulling the line low (true) or letting it
// float back high (false).
func (f *FakePin) PullLow(low bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.external = low
}

// Driven returns the level this side is driving.
func (f *FakePin) Driven() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.driven
}

// Writes returns every level passed to Out.
func (f *FakePin) Writes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.writes...)
}

// Released reports whether Release was called.
func (f *FakePin) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// SetOutError makes every following Out call fail with err.
func (f *FakePin) SetOutError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outErr = err
}

// FakeProvider hands out FakePins, creating them on first use.
type FakeProvider struct {
	mu       sync.Mutex
	pins     map[string]*FakePin
	acquired map[string]bool
	// Missing names fail with ErrUnknownPin.
	Missing map[string]bool
}

// NewFakeProvider returns an empty provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		pins:     make(map[string]*FakePin),
		acquired: make(map[string]bool),
		Missing:  make(map[string]bool),
	}
}

// Pin returns the fake pin for name.
func (p *FakeProvider) Pin(name string) (Pin, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Missing[name] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	if p.acquired[name] {
		return nil, fmt.Errorf("%w: %s", ErrPinInUse, name)
	}
	pin, ok := p.pins[name]
	if !ok {
		pin = NewFakePin(name)
		p.pins[name] = pin
	}
	p.acquired[name] = true

	pin.mu.Lock()
	pin.released = false
	pin.onRelease = func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.acquired, name)
	}
	pin.mu.Unlock()
	return pin, nil
}

// Get returns the fake pin for name, creating it if needed, without
// acquiring it.
func (p *FakeProvider) Get(name string) *FakePin {
	p.mu.Lock()
	defer p.mu.Unlock()
	pin, ok := p.pins[name]
	if !ok {
		pin = NewFakePin(name)
		p.pins[name] = pin
	}
	return pin
}
