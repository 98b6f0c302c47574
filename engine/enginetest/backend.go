// Package enginetest provides an in-memory engine backend for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mpvbridge/mpvbridge/engine"
)

// Call is one recorded backend call. Property writes are recorded as "set_property"
// and reads as "get_property", with the property name as the first argument.
type Call struct {
	Name string
	Args []any
}

// Backend records every call and answers property reads from Properties.
type Backend struct {
	mu sync.Mutex

	// InitErr is returned by Initialize when set.
	InitErr error
	// InitGate blocks Initialize until it is closed, when set.
	InitGate chan struct{}
	// Properties answers GetProperty.
	Properties map[string]any
	// Failures makes a command (by name) or property write ("set <name>") fail.
	Failures map[string]error
	// Replies answers commands by name.
	Replies map[string]any

	inits  int
	closes int
	modes  []engine.Mode
	calls  []Call
	events chan engine.Event
}

// New returns an empty fake backend.
func New() *Backend {
	return &Backend{
		Properties: make(map[string]any),
		Failures:   make(map[string]error),
		Replies:    make(map[string]any),
	}
}

// Factory returns a factory that always hands out b.
func (b *Backend) Factory() engine.BackendFactory {
	return func() engine.Backend { return b }
}

func (b *Backend) Initialize(ctx context.Context, mode engine.Mode) error {
	if gate := b.gate(); gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inits++
	b.modes = append(b.modes, mode)
	if b.InitErr != nil {
		return b.InitErr
	}
	b.events = make(chan engine.Event, 256)
	return nil
}

func (b *Backend) gate() chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.InitGate
}

func (b *Backend) ApplyMode(_ context.Context, mode engine.Mode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modes = append(b.modes, mode)
	return nil
}

func (b *Backend) Command(_ context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	name := fmt.Sprint(args[0])
	if err := b.record(Call{Name: name, Args: args[1:]}, name); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Replies[name], nil
}

func (b *Backend) SetProperty(_ context.Context, name string, value any) error {
	return b.record(Call{Name: "set_property", Args: []any{name, value}}, "set "+name)
}

func (b *Backend) GetProperty(_ context.Context, name string) (any, error) {
	if err := b.record(Call{Name: "get_property", Args: []any{name}}, "get "+name); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.Properties[name]
	if !ok {
		return nil, fmt.Errorf("mpv error: property unavailable")
	}
	return v, nil
}

func (b *Backend) record(c Call, failKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
	return b.Failures[failKey]
}

func (b *Backend) Events() <-chan engine.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events
}

// Emit queues an event as if the engine had sent it.
func (b *Backend) Emit(ev engine.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events != nil {
		b.events <- ev
	}
}

// Crash closes the event stream as a dying engine would.
func (b *Backend) Crash() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events != nil {
		close(b.events)
		b.events = nil
	}
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	if b.events != nil {
		close(b.events)
		b.events = nil
	}
	return nil
}

// Inits returns how many times Initialize ran.
func (b *Backend) Inits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inits
}

// Closes returns how many times Close ran.
func (b *Backend) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// Modes returns every mode passed to Initialize or ApplyMode, in order.
func (b *Backend) Modes() []engine.Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]engine.Mode(nil), b.modes...)
}

// Calls returns every recorded call, in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsNamed returns the recorded calls with the given name.
func (b *Backend) CallsNamed(name string) []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Sets returns the values written to property, in order.
func (b *Backend) Sets(property string) []any {
	var out []any
	for _, c := range b.CallsNamed("set_property") {
		if c.Args[0] == property {
			out = append(out, c.Args[1])
		}
	}
	return out
}

// Reset forgets every recorded call.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}
