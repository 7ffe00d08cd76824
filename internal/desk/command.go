package desk

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/desk.report/internal/button"
)

// Go-to-height limits. The 3-stage frame travels 62..127cm.
const (
	MinTargetCM = 62
	MaxTargetCM = 127

	// TargetTolerance is how close the desk must get before the lines are
	// released.
	TargetTolerance = 0.010
	// TargetTimeout abandons a go-to-height that never arrives.
	TargetTimeout = 30 * time.Second

	DefaultMoveDuration = 300 * time.Millisecond
	MaxMoveDuration     = 5 * time.Second
)

var (
	ErrTargetOutOfRange  = errors.New("target height out of range")
	ErrLineNotConfigured = errors.New("handset line not configured")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrBadDirection      = errors.New("direction must be up or down")
)

// CommandKind names what a Command does.
type CommandKind int

const (
	CommandGoto CommandKind = iota + 1
	CommandPreset
	CommandMemory
	CommandMove
	CommandStop
	CommandWake
)

var commandNames = map[CommandKind]string{
	CommandGoto:   "goto",
	CommandPreset: "preset",
	CommandMemory: "memory",
	CommandMove:   "move",
	CommandStop:   "stop",
	CommandWake:   "wake",
}

func (k CommandKind) String() string {
	if s, ok := commandNames[k]; ok {
		return s
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// MarshalText encodes the kind as its name.
func (k CommandKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Direction is the travel direction of a manual move.
type Direction int

const (
	Up Direction = iota + 1
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return ""
}

// MarshalText encodes the direction as "up", "down" or "".
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// ParseDirection accepts "up" and "down".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadDirection, s)
}

// Line returns the handset line that moves the desk in d.
func (d Direction) Line() button.Line {
	if d == Down {
		return button.LineDown
	}
	return button.LineUp
}

// Command is a request to move or wake the desk. Commands are queued by
// Submit and executed by the poll loop.
type Command struct {
	ID        string        `json:"id"`
	Kind      CommandKind   `json:"kind"`
	HeightCM  float64       `json:"height_cm,omitempty"`
	Preset    int           `json:"preset,omitempty"`
	Direction Direction     `json:"direction,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Submitted time.Time     `json:"submitted"`
}

// Goto returns a go-to-height command.
func Goto(cm float64) Command { return Command{Kind: CommandGoto, HeightCM: cm} }

// Preset returns a command pressing preset p.
func Preset(p int) Command { return Command{Kind: CommandPreset, Preset: p} }

// Memory returns a command pressing the M button.
func Memory() Command { return Command{Kind: CommandMemory} }

// Move returns a command holding the up or down line for d. A zero d uses
// DefaultMoveDuration.
func Move(dir Direction, d time.Duration) Command {
	return Command{Kind: CommandMove, Direction: dir, Duration: d}
}

// Stop releases every line and cancels a go-to-height.
func Stop() Command { return Command{Kind: CommandStop} }

// Wake sends the wake packet.
func Wake() Command { return Command{Kind: CommandWake} }

// Lines returns the handset lines the command drives.
func (c Command) Lines() []button.Line {
	switch c.Kind {
	case CommandGoto:
		return []button.Line{button.LineUp, button.LineDown}
	case CommandPreset:
		lines, _ := button.PresetLines(c.Preset)
		return lines
	case CommandMemory:
		return button.MemoryLines
	case CommandMove:
		return []button.Line{c.Direction.Line()}
	}
	return nil
}

// Validate checks the arguments of the command.
func (c Command) Validate() error {
	switch c.Kind {
	case CommandGoto:
		if c.HeightCM < MinTargetCM || c.HeightCM > MaxTargetCM {
			return fmt.Errorf("%w: %.1fcm not in %d..%d", ErrTargetOutOfRange, c.HeightCM, MinTargetCM, MaxTargetCM)
		}
	case CommandPreset:
		if _, err := button.PresetLines(c.Preset); err != nil {
			return err
		}
	case CommandMove:
		if c.Direction != Up && c.Direction != Down {
			return ErrBadDirection
		}
		if c.Duration < 0 || c.Duration > MaxMoveDuration {
			return fmt.Errorf("move duration %s not in 0..%s", c.Duration, MaxMoveDuration)
		}
	case CommandMemory, CommandStop, CommandWake:
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCommand, int(c.Kind))
	}
	return nil
}

func (c Command) String() string {
	switch c.Kind {
	case CommandGoto:
		return fmt.Sprintf("goto %.1fcm", c.HeightCM)
	case CommandPreset:
		return fmt.Sprintf("preset %d", c.Preset)
	case CommandMove:
		return fmt.Sprintf("move %s %s", c.Direction, c.Duration)
	}
	return c.Kind.String()
}
