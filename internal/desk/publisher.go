package desk

import (
	"context"
	"errors"
	"sync"

	"github.com/banshee-data/desk.report/internal/button"
	"github.com/banshee-data/desk.report/internal/jarvis"
)

// Publisher receives decoded height readings.
type Publisher interface {
	Publish(ctx context.Context, h jarvis.Height) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, h jarvis.Height) error

func (f PublisherFunc) Publish(ctx context.Context, h jarvis.Height) error { return f(ctx, h) }

// EventSink receives debounced button transitions.
type EventSink interface {
	HandleButtonEvent(ctx context.Context, e button.Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, e button.Event) error

func (f EventSinkFunc) HandleButtonEvent(ctx context.Context, e button.Event) error { return f(ctx, e) }

// FrameObserver sees every valid frame before it is decoded.
type FrameObserver interface {
	ObserveFrame(f jarvis.Frame)
}

// CommandRecorder is told about each command once it has been executed.
// result is nil on success.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, c Command, result error) error
}

// DedupPublisher forwards a reading only when it differs from the last one
// forwarded. The controller repeats its report while idle.
type DedupPublisher struct {
	next Publisher

	mu   sync.Mutex
	last *jarvis.Height
}

// NewDedupPublisher wraps next.
func NewDedupPublisher(next Publisher) *DedupPublisher {
	return &DedupPublisher{next: next}
}

// Publish forwards h unless it equals the last value. A failed publish is
// not remembered, so the same value is retried next time.
func (p *DedupPublisher) Publish(ctx context.Context, h jarvis.Height) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != nil && p.last.Meters == h.Meters {
		return nil
	}
	if err := p.next.Publish(ctx, h); err != nil {
		return err
	}
	p.last = &h
	return nil
}

// DedupEach wraps every sink in its own DedupPublisher, so a sink that fails
// retries on its own without repeating the value to the others.
func DedupEach(sinks ...Publisher) MultiPublisher {
	m := make(MultiPublisher, len(sinks))
	for i, p := range sinks {
		m[i] = NewDedupPublisher(p)
	}
	return m
}

// MultiPublisher publishes to every member and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, h jarvis.Height) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiEventSink forwards events to every member.
type MultiEventSink []EventSink

func (m MultiEventSink) HandleButtonEvent(ctx context.Context, e button.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.HandleButtonEvent(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiCommandRecorder forwards executed commands to every member.
type MultiCommandRecorder []CommandRecorder

func (m MultiCommandRecorder) RecordCommand(ctx context.Context, c Command, result error) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordCommand(ctx, c, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
