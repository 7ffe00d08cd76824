// Package telemetry fans live desk activity out to any number of
// subscribers: height readings, button transitions, raw frames and executed
// commands. The debug tail streams it as server-sent events.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/desk.report/internal/button"
	"github.com/banshee-data/desk.report/internal/desk"
	"github.com/banshee-data/desk.report/internal/jarvis"
	"github.com/banshee-data/desk.report/internal/timeutil"
)

// Message types.
const (
	TypeHeight  = "height"
	TypeButton  = "button"
	TypeFrame   = "frame"
	TypeCommand = "command"
)

// DefaultBacklog is how many recent messages a new subscriber is sent first.
const DefaultBacklog = 32

// Message is one item on the live feed.
type Message struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

type frameData struct {
	Command string `json:"command"`
	Hex     string `json:"hex"`
}

type commandData struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
	Error  string `json:"error,omitempty"`
}

// Hub is a subscriber fan-out. Slow subscribers miss messages rather than
// block the desk loop.
type Hub struct {
	clock timeutil.Clock

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
	backlog      []string
	backlogSize  int
	closed       bool
}

// NewHub returns an empty hub.
func NewHub(clock timeutil.Clock) *Hub {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Hub{
		clock:       clock,
		subscribers: make(map[string]chan string),
		backlogSize: DefaultBacklog,
	}
}

// Subscribe creates a new channel for receiving messages. The channel ID is
// used to identify the unique channel when unsubscribing. The recent backlog
// is queued on the channel before live messages.
func (h *Hub) Subscribe() (string, chan string) {
	id := uuid.NewString()
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()

	ch := make(chan string, len(h.backlog)+16)
	for _, m := range h.backlog {
		ch <- m
	}
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	return len(h.subscribers)
}

// Broadcast encodes m and sends it to every subscriber that has room.
func (h *Hub) Broadcast(m Message) error {
	if m.Time.IsZero() {
		m.Time = h.clock.Now()
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	line := string(b)

	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if h.closed {
		return nil
	}
	h.backlog = append(h.backlog, line)
	if over := len(h.backlog) - h.backlogSize; over > 0 {
		h.backlog = h.backlog[over:]
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full/blocking skip so as not to block the desk loop
		}
	}
	return nil
}

// Close closes every subscriber channel. Later broadcasts are dropped.
func (h *Hub) Close() error {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	return nil
}

// Publish broadcasts a height reading.
func (h *Hub) Publish(_ context.Context, height jarvis.Height) error {
	return h.Broadcast(Message{Type: TypeHeight, Data: height})
}

// HandleButtonEvent broadcasts a button transition.
func (h *Hub) HandleButtonEvent(_ context.Context, e button.Event) error {
	return h.Broadcast(Message{Type: TypeButton, Time: e.Time, Data: e})
}

// ObserveFrame broadcasts a raw frame.
func (h *Hub) ObserveFrame(f jarvis.Frame) {
	h.Broadcast(Message{Type: TypeFrame, Data: frameData{
		Command: fmt.Sprintf("0x%02X", f.Command),
		Hex:     fmt.Sprintf("% X", f.Bytes()),
	}})
}

// RecordCommand announces an executed command.
func (h *Hub) RecordCommand(_ context.Context, c desk.Command, result error) error {
	d := commandData{ID: c.ID, Kind: c.Kind.String(), Detail: c.String()}
	if result != nil {
		d.Error = result.Error()
	}
	return h.Broadcast(Message{Type: TypeCommand, Data: d})
}
