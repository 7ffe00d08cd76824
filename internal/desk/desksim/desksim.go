// Package desksim simulates a CB2C controller behind a serial port. It
// watches the handset lines, moves a virtual desk and reports its height the
// way the real controller does. cmd/desk uses it for -dev.
package desksim

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/desk.report/internal/button"
	"github.com/banshee-data/desk.report/internal/jarvis"
	"github.com/banshee-data/desk.report/internal/serialport"
	"github.com/banshee-data/desk.report/internal/timeutil"
)

// Level is the read side of a handset line.
type Level interface {
	Read() bool
}

// Options describe the simulated desk. Zero fields take the defaults.
type Options struct {
	StartMM   float64
	MinMM     float64
	MaxMM     float64
	SpeedMMPS float64
	// Inches makes the controller report tenths of an inch.
	Inches bool
	// Heartbeat is how often an unchanged height is reported again.
	Heartbeat time.Duration
	// Presets are the stored heights for buttons 1..4.
	Presets [4]float64
}

// DefaultOptions match a 3-stage frame at a typical sitting height.
func DefaultOptions() Options {
	return Options{
		StartMM:   740,
		MinMM:     620,
		MaxMM:     1270,
		SpeedMMPS: 38,
		Heartbeat: time.Second,
		Presets:   [4]float64{720, 1050, 1100, 1150},
	}
}

// Controller is a simulated CB2C. It implements serialport.SerialPorter:
// Read returns pending height reports, Write accepts commands.
type Controller struct {
	mu     sync.Mutex
	opts   Options
	clock  timeutil.Clock
	lines  map[button.Line]Level
	out    bytes.Buffer
	in     *jarvis.FrameReader
	closed bool

	heightMM    float64
	seekMM      float64
	seeking     bool
	lastStep    time.Time
	lastRaw     int
	lastReport  time.Time
	memoryArmed bool
	received    []jarvis.Frame
}

var _ serialport.SerialPorter = (*Controller)(nil)

// New returns a controller watching lines. Lines may be partial; missing
// lines are never pressed.
func New(lines map[button.Line]Level, clock timeutil.Clock, opts Options) *Controller {
	def := DefaultOptions()
	if opts.StartMM == 0 {
		opts.StartMM = def.StartMM
	}
	if opts.MinMM == 0 {
		opts.MinMM = def.MinMM
	}
	if opts.MaxMM == 0 {
		opts.MaxMM = def.MaxMM
	}
	if opts.SpeedMMPS == 0 {
		opts.SpeedMMPS = def.SpeedMMPS
	}
	if opts.Heartbeat == 0 {
		opts.Heartbeat = def.Heartbeat
	}
	if opts.Presets == [4]float64{} {
		opts.Presets = def.Presets
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now()
	return &Controller{
		opts:     opts,
		clock:    clock,
		lines:    lines,
		in:       jarvis.NewFrameReader(jarvis.WithAddress(jarvis.AddrMotor), jarvis.WithClock(clock), jarvis.WithFrameTimeout(0)),
		heightMM: opts.StartMM,
		lastStep: now,
		lastRaw:  -1,
	}
}

// Open implements serialport.Opener by returning the controller itself.
func (c *Controller) Open(string, serialport.PortOptions) (serialport.SerialPorter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
	return c, nil
}

// Read advances the simulation to now and returns queued report bytes.
func (c *Controller) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, serialport.ErrPortClosed
	}
	c.step()
	if c.out.Len() == 0 {
		return 0, nil
	}
	return c.out.Read(p)
}

// Write parses command frames. A wake frame triggers an immediate report.
func (c *Controller) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, serialport.ErrPortClosed
	}
	c.in.Feed(p)
	for {
		f, err := c.in.Next()
		if errors.Is(err, jarvis.ErrNoFrame) {
			break
		}
		if err != nil {
			continue
		}
		c.received = append(c.received, f)
		if f.Command == jarvis.CmdWake {
			c.report()
		}
	}
	return len(p), nil
}

func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// HeightMM returns the simulated height.
func (c *Controller) HeightMM() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heightMM
}

// Received returns the command frames written so far.
func (c *Controller) Received() []jarvis.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]jarvis.Frame(nil), c.received...)
}

// Inject queues raw bytes ahead of the next report, for noise tests.
func (c *Controller) Inject(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.Write(b)
}

func (c *Controller) pressed(l button.Line) bool {
	lv, ok := c.lines[l]
	return ok && !lv.Read()
}

func (c *Controller) step() {
	now := c.clock.Now()
	dt := now.Sub(c.lastStep).Seconds()
	c.lastStep = now

	hc0, hc1 := c.pressed(button.HC0), c.pressed(button.HC1)
	hc2, hc3 := c.pressed(button.HC2), c.pressed(button.HC3)

	var dir float64
	switch {
	case hc3 && hc0:
		c.memoryArmed = true
	case hc2 && hc1:
		c.seek(3)
	case hc2 && hc0:
		c.seek(2)
	case hc2:
		c.seek(1)
	case hc0 && hc1:
		c.seek(0)
	case hc1:
		c.seeking = false
		dir = 1
	case hc0:
		c.seeking = false
		dir = -1
	}

	if c.seeking {
		diff := c.seekMM - c.heightMM
		if math.Abs(diff) <= c.opts.SpeedMMPS*dt {
			c.heightMM = c.seekMM
			c.seeking = false
		} else {
			dir = math.Copysign(1, diff)
		}
	}
	if dir != 0 {
		c.heightMM += dir * c.opts.SpeedMMPS * dt
		c.heightMM = math.Max(c.opts.MinMM, math.Min(c.opts.MaxMM, c.heightMM))
	}

	if c.raw() != c.lastRaw || now.Sub(c.lastReport) >= c.opts.Heartbeat {
		c.report()
	}
}

func (c *Controller) seek(i int) {
	if c.memoryArmed {
		c.opts.Presets[i] = c.heightMM
		c.memoryArmed = false
		return
	}
	c.seekMM = c.opts.Presets[i]
	c.seeking = true
}

func (c *Controller) raw() int {
	if c.opts.Inches {
		return int(math.Round(c.heightMM / 2.54))
	}
	return int(math.Round(c.heightMM))
}

func (c *Controller) report() {
	raw := c.raw()
	f := jarvis.Frame{
		Address: jarvis.AddrController,
		Command: jarvis.CmdHeight,
		Params:  []byte{byte(raw >> 8), byte(raw), 0x03},
	}
	c.out.Write(f.Bytes())
	c.lastRaw = raw
	c.lastReport = c.clock.Now()
}
