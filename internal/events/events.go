// Package events is the render lifecycle observer bus.
//
// Handlers run synchronously on the rendering goroutine, in registration
// order. A handler receives the Event by pointer and may rewrite the fields
// documented as writable; the engine reads them back once every handler has
// returned.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/conneroisu/quilt/internal/assets"
	"github.com/conneroisu/quilt/internal/syntax"
)

// Name identifies a lifecycle point.
type Name string

const (
	// PreRender fires before the page is fetched. Data is writable.
	PreRender Name = "pre-render"
	// Compile fires once the page tree is parsed and its data merged.
	Compile Name = "compile"
	// PreDependencies fires before dependency collection starts.
	PreDependencies Name = "pre-dependencies"
	// PostDependencies fires when collection has settled.
	PostDependencies Name = "post-dependencies"
	// PostRender fires with the final document. HTML is writable.
	PostRender Name = "post-render"
)

// Names lists every lifecycle point in firing order.
var Names = []Name{PreRender, Compile, PreDependencies, PostDependencies, PostRender}

// Event is the payload passed to handlers.
type Event struct {
	Name      Name
	RequestID string
	Address   string
	Timestamp time.Time

	Data      map[string]any
	Tree      *syntax.Tree
	Layout    *syntax.Tree
	HTML      string
	Resources *assets.Manifest
	Warnings  []error
}

// Handler observes an event. A returned error fails the render.
type Handler func(ctx context.Context, ev *Event) error

type subscription struct {
	id int
	fn Handler
}

// Bus dispatches events to registered handlers. The zero value is ready to
// use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Name][]subscription
	nextID   int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Name][]subscription)}
}

// On registers fn for name and returns a function that removes it.
func (b *Bus) On(name Name, fn Handler) (off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers == nil {
		b.handlers = make(map[Name][]subscription)
	}
	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[name]
		for i, s := range subs {
			if s.id == id {
				b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit runs every handler registered for ev.Name. All handlers run even if
// one fails; their errors are combined.
func (b *Bus) Emit(ctx context.Context, ev *Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	subs := b.handlers[ev.Name]
	b.mu.RUnlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	var err error
	for _, s := range subs {
		err = multierr.Append(err, s.fn(ctx, ev))
	}
	return err
}

// Count returns how many handlers are registered for name.
func (b *Bus) Count(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}
