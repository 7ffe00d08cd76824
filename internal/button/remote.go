package button

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/desk.report/internal/timeutil"
)

// Hold times measured on the handset with a scope: it pulls the lines low for
// about 150ms per press.
const (
	PresetHold = 150 * time.Millisecond
	MemoryHold = 100 * time.Millisecond
)

// ErrInvalidPreset is returned for preset numbers outside 1..4.
var ErrInvalidPreset = errors.New("invalid preset")

// PresetLines returns the line combination the handset uses for preset p.
func PresetLines(p int) ([]Line, error) {
	switch p {
	case 1:
		return []Line{HC0, HC1}, nil
	case 2:
		return []Line{HC2}, nil
	case 3:
		return []Line{HC2, HC0}, nil
	case 4:
		return []Line{HC2, HC1}, nil
	default:
		return nil, fmt.Errorf("%w: %d (expected 1..4)", ErrInvalidPreset, p)
	}
}

// MemoryLines is the combination for the M button.
var MemoryLines = []Line{HC3, HC0}

// Remote drives the handset lines. Lines without a binding are skipped
// silently, like a handset with a button missing. Remote never sleeps:
// Pulse arms a release deadline and Tick performs the release.
type Remote struct {
	clock    timeutil.Clock
	bindings map[Line]Binding

	held      map[Line]bool
	releaseAt time.Time
	pulsing   bool
}

// NewRemote returns a remote over the given bindings.
func NewRemote(bindings map[Line]Binding, clock timeutil.Clock) *Remote {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	b := make(map[Line]Binding, len(bindings))
	for l, v := range bindings {
		if v.Pin != nil {
			b[l] = v
		}
	}
	return &Remote{clock: clock, bindings: b, held: make(map[Line]bool)}
}

// Configured reports whether line has a pin.
func (r *Remote) Configured(line Line) bool {
	_, ok := r.bindings[line]
	return ok
}

// Hold presses the given lines until Release or ReleaseAll.
func (r *Remote) Hold(lines ...Line) error {
	var errs []error
	for _, l := range lines {
		b, ok := r.bindings[l]
		if !ok {
			continue
		}
		if err := b.Pin.Out(b.pressedLevel()); err != nil {
			errs = append(errs, fmt.Errorf("press %s: %w", l, err))
			continue
		}
		r.held[l] = true
	}
	return errors.Join(errs...)
}

// Release lets the given lines go back to idle.
func (r *Remote) Release(lines ...Line) error {
	var errs []error
	for _, l := range lines {
		b, ok := r.bindings[l]
		if !ok {
			continue
		}
		if err := b.Pin.Out(!b.pressedLevel()); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", l, err))
			continue
		}
		delete(r.held, l)
	}
	return errors.Join(errs...)
}

// ReleaseAll drives every configured line to idle and cancels any pulse.
func (r *Remote) ReleaseAll() error {
	r.pulsing = false
	lines := make([]Line, 0, len(r.bindings))
	for l := range r.bindings {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i] < lines[j] })
	return r.Release(lines...)
}

// Pulse presses the lines now and releases them on the first Tick at least
// d later. A running pulse is released first.
func (r *Remote) Pulse(d time.Duration, lines ...Line) error {
	if err := r.ReleaseAll(); err != nil {
		return err
	}
	if err := r.Hold(lines...); err != nil {
		return err
	}
	r.pulsing = true
	r.releaseAt = r.clock.Now().Add(d)
	return nil
}

// Tick releases an expired pulse and reports whether it did.
func (r *Remote) Tick() (bool, error) {
	if !r.pulsing || r.clock.Now().Before(r.releaseAt) {
		return false, nil
	}
	return true, r.ReleaseAll()
}

// Pulsing reports whether a pulse is waiting to be released.
func (r *Remote) Pulsing() bool { return r.pulsing }

// Held returns the lines currently pressed, in order.
func (r *Remote) Held() []Line {
	out := make([]Line, 0, len(r.held))
	for l := range r.held {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close releases all lines and hands the pins back.
func (r *Remote) Close() error {
	errs := []error{r.ReleaseAll()}
	for _, b := range r.bindings {
		errs = append(errs, b.Pin.Release())
	}
	return errors.Join(errs...)
}
