package events

import (
	"context"
	"errors"
	"sync"
)

// Bus delivers events to a sink the orchestrator does not own.
type Bus interface {
	Publish(ctx context.Context, e Event) error
}

// MultiBus fans an event out to every bus. All buses are tried; their
// errors are joined.
type MultiBus []Bus

func (m MultiBus) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, b := range m {
		if b == nil {
			continue
		}
		if err := b.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Bus = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// MemoryBus keeps published events in memory. The zero value is ready to use.
type MemoryBus struct {
	mu      sync.Mutex
	events  []Event
	waiters []chan struct{}
}

func (m *MemoryBus) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	return nil
}

// Events returns a copy of the events published so far.
func (m *MemoryBus) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Count returns how many events of kind were published.
func (m *MemoryBus) Count(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// WaitFor blocks until an event of kind has been published or ctx is done.
func (m *MemoryBus) WaitFor(ctx context.Context, kind Kind) (Event, error) {
	for {
		m.mu.Lock()
		for _, e := range m.events {
			if e.Kind == kind {
				m.mu.Unlock()
				return e, nil
			}
		}
		ch := make(chan struct{})
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}
