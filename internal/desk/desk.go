// Package desk runs one Jarvis desk: it owns the controller UART and the
// handset lines, turns the serial stream into published height readings,
// reports button transitions and executes queued movement commands.
//
// Exactly one goroutine drives a Desk through Init, Poll (or Run) and Close.
// Other goroutines may only call Submit and Status.
package desk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/desk.report/internal/button"
	"github.com/banshee-data/desk.report/internal/config"
	"github.com/banshee-data/desk.report/internal/gpio"
	"github.com/banshee-data/desk.report/internal/jarvis"
	"github.com/banshee-data/desk.report/internal/monitoring"
	"github.com/banshee-data/desk.report/internal/serialport"
	"github.com/banshee-data/desk.report/internal/timeutil"
)

var (
	ErrNotInitialized     = errors.New("desk not initialized")
	ErrAlreadyInitialized = errors.New("desk already initialized")
	ErrQueueFull          = errors.New("command queue full")
	ErrClosed             = errors.New("desk closed")
)

// State is the lifecycle state of a Desk.
type State int

const (
	Uninitialized State = iota
	Initialized
	Running
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Options wires a Desk to its hardware and sinks. Only Config and Open are
// required; Pins is required when any handset line is configured.
type Options struct {
	Config    *config.Config
	Open      serialport.Opener
	Pins      gpio.Provider
	Publisher Publisher
	Events    EventSink
	Frames    FrameObserver
	Commands  CommandRecorder
	Clock     timeutil.Clock
}

// LineState is the debounced state of one handset line.
type LineState struct {
	Line    button.Line `json:"line"`
	Pressed bool        `json:"pressed"`
	Held    bool        `json:"held"`
}

// Status is a point-in-time snapshot of the desk.
type Status struct {
	ID            string             `json:"id"`
	State         State              `json:"state"`
	Height        *jarvis.Height     `json:"height,omitempty"`
	LastReading   time.Time          `json:"last_reading,omitzero"`
	TargetCM      *float64           `json:"target_cm,omitempty"`
	Moving        bool               `json:"moving"`
	Lines         []LineState        `json:"lines"`
	Cycles        uint64             `json:"cycles"`
	Readings      uint64             `json:"readings"`
	DecodeErrors  uint64             `json:"decode_errors"`
	PublishErrors uint64             `json:"publish_errors"`
	ReadErrors    uint64             `json:"read_errors"`
	Commands      uint64             `json:"commands"`
	QueueLength   int                `json:"queue_length"`
	Reader        jarvis.ReaderStats `json:"reader"`
	Warning       bool               `json:"warning"`
	LastError     string             `json:"last_error,omitempty"`
}

type target struct {
	cmd     Command
	meters  float64
	started time.Time
	moving  button.Line
	holding bool
}

// Desk is the component lifecycle for one desk.
type Desk struct {
	cfg   *config.Config
	opts  Options
	clock timeutil.Clock
	logf  func(format string, v ...interface{})
	queue chan Command

	mu     sync.Mutex
	status Status

	// Owned by the poll goroutine.
	state   State
	closed  bool
	port    serialport.SerialPorter
	monitor *button.Monitor
	remote  *button.Remote
	reader  *jarvis.FrameReader
	decoder jarvis.Decoder
	readBuf []byte
	cycle   uint64
	last    *jarvis.Height
	lastAt  time.Time
	target  *target
	warning bool
	lastErr error

	readings, decodeErrs, publishErrs, readErrs, commands uint64
}

// New checks the options and returns an uninitialized Desk.
func New(opts Options) (*Desk, error) {
	if opts.Config == nil {
		return nil, errors.New("desk: config is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("desk: %w", err)
	}
	if opts.Open == nil {
		return nil, errors.New("desk: serial opener is required")
	}
	if opts.Pins == nil && len(opts.Config.Lines()) > 0 {
		return nil, errors.New("desk: gpio provider is required when handset pins are configured")
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	d := &Desk{
		cfg:     opts.Config,
		opts:    opts,
		clock:   opts.Clock,
		logf:    monitoring.Tagged("jarvis.cb2c"),
		queue:   make(chan Command, opts.Config.GetQueueSize()),
		decoder: opts.Config.Decoder(),
	}
	d.status = Status{ID: d.cfg.GetID(), State: Uninitialized}
	return d, nil
}

// Init opens the UART, acquires the configured pins and drives every line
// to idle. On error nothing stays acquired.
func (d *Desk) Init(ctx context.Context) (err error) {
	if d.closed {
		return ErrClosed
	}
	if d.state != Uninitialized {
		return ErrAlreadyInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := d.cfg.UART.GetPort()
	port, err := d.opts.Open(path, d.cfg.UART.PortOptions)
	if err != nil {
		return fmt.Errorf("open uart %s: %w", path, err)
	}

	bindings := make(map[button.Line]button.Binding)
	defer func() {
		if err == nil {
			return
		}
		for _, b := range bindings {
			b.Pin.Release()
		}
		port.Close()
	}()

	for line, pc := range d.cfg.Lines() {
		pin, perr := d.opts.Pins.Pin(pc.Number)
		if perr != nil {
			return fmt.Errorf("acquire %s_pin %s: %w", line, pc.Number, perr)
		}
		bindings[line] = button.Binding{Pin: pin, Inverted: pc.Inverted}
	}

	remote := button.NewRemote(bindings, d.clock)
	if err := remote.ReleaseAll(); err != nil {
		return fmt.Errorf("idle handset lines: %w", err)
	}

	if d.cfg.GetWakeOnStart() {
		if err := serialport.WriteAll(port, jarvis.WakePacket()); err != nil {
			return fmt.Errorf("send wake: %w", err)
		}
	}

	d.port = port
	d.remote = remote
	d.monitor = button.NewMonitor(bindings, d.cfg.GetDebounceCycles(), d.clock)
	d.reader = jarvis.NewFrameReader(
		jarvis.WithFrameTimeout(d.cfg.GetFrameTimeout()),
		jarvis.WithClock(d.clock),
	)
	// Room for a whole chunk next to the partial frame left from the last one.
	d.readBuf = make([]byte, max(d.reader.Limit()-jarvis.MaxFrameLen, jarvis.MaxFrameLen))
	d.state = Initialized
	d.updateStatus()
	d.DumpConfig()
	return nil
}

// Poll runs one cycle. Decode and publish failures are counted and logged;
// only lifecycle errors are returned.
func (d *Desk) Poll(ctx context.Context) error {
	if d.closed {
		return ErrClosed
	}
	if d.state == Uninitialized {
		return ErrNotInitialized
	}
	if d.state == Initialized {
		d.state = Running
		d.logf("running, polling every %s", d.cfg.GetUpdateInterval())
	}
	d.cycle++

	d.drainCommands(ctx)

	if released, err := d.remote.Tick(); err != nil {
		d.warn("release pulse: %v", err)
	} else if released {
		d.logf("pulse released")
	}

	d.readSerial(ctx)
	d.adjustHeight()

	for _, e := range d.monitor.Sample(d.cycle) {
		d.logf("%s %s", e.Line, e.Kind())
		if d.opts.Events == nil {
			continue
		}
		if err := d.opts.Events.HandleButtonEvent(ctx, e); err != nil {
			d.warn("button event sink: %v", err)
		}
	}

	d.updateStatus()
	return nil
}

// Run initializes the desk if needed and polls it every update_interval
// until ctx is done. The desk is closed on return.
func (d *Desk) Run(ctx context.Context) error {
	if d.state == Uninitialized {
		if err := d.Init(ctx); err != nil {
			return err
		}
	}
	defer d.Close()

	ticker := d.clock.NewTicker(d.cfg.GetUpdateInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := d.Poll(ctx); err != nil {
				return err
			}
		}
	}
}

// Submit queues a command for the poll loop. It never blocks.
func (d *Desk) Submit(c Command) (Command, error) {
	if err := c.Validate(); err != nil {
		return c, err
	}
	for _, line := range c.Lines() {
		if d.cfg.Pin(line) == nil {
			return c, fmt.Errorf("%w: %s needs %s_pin", ErrLineNotConfigured, c.Kind, line)
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Kind == CommandMove && c.Duration == 0 {
		c.Duration = DefaultMoveDuration
	}
	c.Submitted = d.clock.Now()

	select {
	case d.queue <- c:
		return c, nil
	default:
		return c, ErrQueueFull
	}
}

// Status returns the snapshot taken at the end of the last poll.
func (d *Desk) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.status
	s.Lines = append([]LineState(nil), d.status.Lines...)
	s.QueueLength = len(d.queue)
	return s
}

// Close releases the handset lines and closes the UART. It is safe to call
// more than once.
func (d *Desk) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var errs []error
	if d.remote != nil {
		errs = append(errs, d.remote.Close())
	}
	if d.port != nil {
		errs = append(errs, d.port.Close())
	}
	d.state = Uninitialized
	d.target = nil
	d.updateStatus()
	d.logf("closed")
	return errors.Join(errs...)
}

// DumpConfig logs the effective configuration.
func (d *Desk) DumpConfig() {
	c := d.cfg
	d.logf("Jarvis CB2C desk '%s'", c.GetID())
	d.logf("  UART: %s %s", c.UART.GetPort(), c.UART.PortOptions)
	for _, line := range button.Lines {
		if p := c.Pin(line); p != nil {
			inv := ""
			if p.Inverted {
				inv = " (inverted)"
			}
			d.logf("  %s pin: %s%s", line, p.Number, inv)
		}
	}
	h := &c.Height
	d.logf("  Height '%s': unit %s, %d decimals, raw unit %s, range [%.4f, %.4f]",
		h.GetName(), h.GetUnitOfMeasurement(), h.GetAccuracyDecimals(), h.GetRawUnit(), h.GetMin(), h.GetMax())
	d.logf("  Update interval: %s, debounce: %d cycles, frame timeout: %s",
		c.GetUpdateInterval(), c.GetDebounceCycles(), c.GetFrameTimeout())
}

func (d *Desk) drainCommands(ctx context.Context) {
	for {
		select {
		case c := <-d.queue:
			err := d.execute(c)
			d.commands++
			if err != nil {
				d.warn("%s: %v", c, err)
			} else {
				d.logf("%s", c)
			}
			if d.opts.Commands != nil {
				if rerr := d.opts.Commands.RecordCommand(ctx, c, err); rerr != nil {
					d.logf("record command: %v", rerr)
				}
			}
		default:
			return
		}
	}
}

func (d *Desk) execute(c Command) error {
	switch c.Kind {
	case CommandGoto:
		if err := d.remote.ReleaseAll(); err != nil {
			return err
		}
		d.target = &target{cmd: c, meters: c.HeightCM / 100, started: d.clock.Now()}
		return nil
	case CommandPreset:
		d.target = nil
		lines, err := button.PresetLines(c.Preset)
		if err != nil {
			return err
		}
		return d.remote.Pulse(button.PresetHold, lines...)
	case CommandMemory:
		d.target = nil
		return d.remote.Pulse(button.MemoryHold, button.MemoryLines...)
	case CommandMove:
		d.target = nil
		return d.remote.Pulse(c.Duration, c.Direction.Line())
	case CommandStop:
		d.target = nil
		return d.remote.ReleaseAll()
	case CommandWake:
		return serialport.WriteAll(d.port, jarvis.WakePacket())
	}
	return fmt.Errorf("%w: %d", ErrUnknownCommand, int(c.Kind))
}

// maxReadChunks bounds how long one poll may spend draining the UART.
const maxReadChunks = 64

// readSerial drains the UART one chunk at a time, parsing between chunks so
// the frame reader never overflows, then drops a partial frame that has
// seen no new bytes for frame_timeout.
func (d *Desk) readSerial(ctx context.Context) {
	for i := 0; i < maxReadChunks; i++ {
		n, err := serialport.ReadAvailable(d.port, d.readBuf)
		if err != nil {
			d.readErrs++
			d.warn("uart read: %v", err)
		}
		d.reader.Feed(d.readBuf[:n])
		d.processFrames(ctx)
		if err != nil || n < len(d.readBuf) {
			break
		}
	}
	if d.reader.Expire() {
		d.logf("dropped stale partial frame")
	}
}

func (d *Desk) processFrames(ctx context.Context) {
	for {
		f, err := d.reader.Next()
		if errors.Is(err, jarvis.ErrNoFrame) {
			return
		}
		if err != nil {
			d.decodeErrs++
			d.warn("frame: %v", err)
			continue
		}
		if d.opts.Frames != nil {
			d.opts.Frames.ObserveFrame(f)
		}

		h, err := d.decoder.Decode(f)
		if errors.Is(err, jarvis.ErrNotHeight) {
			continue
		}
		if err != nil {
			d.decodeErrs++
			d.warn("decode: %v", err)
			continue
		}

		d.readings++
		d.last = &h
		d.lastAt = d.clock.Now()
		d.warning = false
		if d.opts.Publisher == nil {
			continue
		}
		if err := d.opts.Publisher.Publish(ctx, h); err != nil {
			d.publishErrs++
			d.warn("publish: %v", err)
		}
	}
}

// adjustHeight steers toward the go-to-height target: hold UP below it,
// DOWN above it, release within TargetTolerance.
func (d *Desk) adjustHeight() {
	t := d.target
	if t == nil {
		return
	}
	if d.clock.Since(t.started) > TargetTimeout {
		d.target = nil
		d.warn("%s: gave up after %s", t.cmd, TargetTimeout)
		if err := d.remote.ReleaseAll(); err != nil {
			d.warn("release: %v", err)
		}
		return
	}
	if d.last == nil {
		return
	}

	diff := t.meters - d.last.Meters
	if math.Abs(diff) <= TargetTolerance {
		d.target = nil
		if err := d.remote.ReleaseAll(); err != nil {
			d.warn("release: %v", err)
		}
		d.logf("reached %.1fcm (at %.4fm)", t.cmd.HeightCM, d.last.Meters)
		return
	}

	want := button.LineDown
	if diff > 0 {
		want = button.LineUp
	}
	if t.holding && t.moving == want {
		return
	}
	if err := d.remote.ReleaseAll(); err != nil {
		d.warn("release: %v", err)
		return
	}
	if err := d.remote.Hold(want); err != nil {
		d.warn("hold %s: %v", want, err)
		return
	}
	t.moving, t.holding = want, true
}

func (d *Desk) warn(format string, v ...interface{}) {
	d.warning = true
	d.lastErr = fmt.Errorf(format, v...)
	d.logf("warning: "+format, v...)
}

func (d *Desk) updateStatus() {
	s := Status{
		ID:            d.cfg.GetID(),
		State:         d.state,
		LastReading:   d.lastAt,
		Cycles:        d.cycle,
		Readings:      d.readings,
		DecodeErrors:  d.decodeErrs,
		PublishErrors: d.publishErrs,
		ReadErrors:    d.readErrs,
		Commands:      d.commands,
		Warning:       d.warning,
	}
	if d.last != nil {
		h := *d.last
		s.Height = &h
	}
	if d.target != nil {
		cm := d.target.cmd.HeightCM
		s.TargetCM = &cm
		s.Moving = d.target.holding
	}
	if d.reader != nil {
		s.Reader = d.reader.Stats()
	}
	if d.lastErr != nil {
		s.LastError = d.lastErr.Error()
	}
	if d.monitor != nil && !d.closed {
		held := make(map[button.Line]bool)
		for _, l := range d.remote.Held() {
			held[l] = true
		}
		s.Moving = s.Moving || d.remote.Pulsing()
		for _, l := range d.monitor.Lines() {
			pressed, _ := d.monitor.Pressed(l)
			s.Lines = append(s.Lines, LineState{Line: l, Pressed: pressed, Held: held[l]})
		}
	}

	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}
