package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

// Handler receives dispatched events.
type Handler func(Event)

// SubscriptionID identifies a registered handler.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

type owner struct {
	token uuid.UUID
	name  string
	subs  []SubscriptionID
}

// Session is the process-wide handle on the engine.
type Session struct {
	factory BackendFactory
	group   singleflight.Group

	mu      sync.RWMutex
	backend Backend
	mode    Mode
	ready   bool
	gen     uint64

	subsMu sync.Mutex
	subs   map[Kind][]subscription
	nextID SubscriptionID
	owner  *owner
}

// NewSession returns a session that creates its backend with factory on first use.
func NewSession(factory BackendFactory) *Session {
	return &Session{
		factory: factory,
		subs:    make(map[Kind][]subscription),
	}
}

// Ready reports whether the engine is initialized.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Mode returns the presentation mode the engine currently runs in.
func (s *Session) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// EnsureReady initializes the engine if needed. Concurrent callers share a single
// initialization and observe the same outcome. On failure the session stays
// uninitialized and the next call retries from scratch.
func (s *Session) EnsureReady(ctx context.Context, mode Mode) error {
	s.mu.RLock()
	ready, current, b := s.ready, s.mode, s.backend
	s.mu.RUnlock()

	if ready {
		if current == mode {
			return nil
		}
		return s.switchMode(ctx, b, mode)
	}

	_, err, shared := s.group.Do("init", func() (any, error) {
		return nil, s.initialize(ctx, mode)
	})
	if shared {
		log.Debugf("engine initialization shared with a concurrent caller")
	}
	if err != nil {
		return err
	}

	// A concurrent caller may have initialized in another mode.
	if m := s.Mode(); m != mode {
		return s.EnsureReady(ctx, mode)
	}
	return nil
}

func (s *Session) initialize(ctx context.Context, mode Mode) error {
	if s.Ready() {
		return nil
	}

	log.Infof("starting engine in %s mode", mode)
	b := s.factory()
	if err := b.Initialize(ctx, mode); err != nil {
		_ = b.Close()
		log.Errorf("engine initialization failed: %v", err)
		return fmt.Errorf("initialize engine: %w", err)
	}

	s.mu.Lock()
	s.backend, s.mode, s.ready = b, mode, true
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	go s.pump(b, gen)
	return nil
}

func (s *Session) switchMode(ctx context.Context, b Backend, mode Mode) error {
	if err := b.ApplyMode(ctx, mode); err != nil {
		return &CommandError{Name: "mode " + mode.String(), Cause: err}
	}

	s.mu.Lock()
	if s.backend == b {
		s.mode = mode
	}
	s.mu.Unlock()

	log.Infof("engine switched to %s mode", mode)
	return nil
}

// pump forwards backend events until the backend closes its channel. A channel that
// closes without a teardown means the engine is gone, which subscribers learn through
// EngineLost.
func (s *Session) pump(b Backend, gen uint64) {
	for ev := range b.Events() {
		s.Dispatch(ev)
	}

	s.mu.Lock()
	lost := s.gen == gen && s.ready
	if lost {
		s.backend, s.ready = nil, false
	}
	s.mu.Unlock()

	if lost {
		log.Warn("engine went away, session is no longer ready")
		s.Dispatch(EngineLost{})
	}
}

func (s *Session) current(name string) (Backend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, &CommandError{Name: name, Cause: ErrNotReady}
	}
	return s.backend, nil
}

// Command sends a raw engine command.
func (s *Session) Command(ctx context.Context, name string, args ...any) (any, error) {
	b, err := s.current(name)
	if err != nil {
		return nil, err
	}

	log.Tracef("engine command %s %v", name, args)
	res, err := b.Command(ctx, append([]any{name}, args...)...)
	if err != nil {
		return nil, &CommandError{Name: name, Cause: err}
	}
	return res, nil
}

// SetProperty writes an engine property.
func (s *Session) SetProperty(ctx context.Context, name string, value any) error {
	op := "set " + name
	b, err := s.current(op)
	if err != nil {
		return err
	}

	log.Tracef("engine set %s=%v", name, value)
	if err := b.SetProperty(ctx, name, value); err != nil {
		return &CommandError{Name: op, Cause: err}
	}
	return nil
}

// GetProperty reads an engine property.
func (s *Session) GetProperty(ctx context.Context, name string) (any, error) {
	op := "get " + name
	b, err := s.current(op)
	if err != nil {
		return nil, err
	}

	v, err := b.GetProperty(ctx, name)
	if err != nil {
		return nil, &CommandError{Name: op, Cause: err}
	}
	return v, nil
}

// Subscribe registers handler for events of kind. Handlers of one kind run in
// registration order.
func (s *Session) Subscribe(kind Kind, handler Handler) SubscriptionID {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return s.subscribeLocked(kind, handler)
}

func (s *Session) subscribeLocked(kind Kind, handler Handler) SubscriptionID {
	s.nextID++
	id := s.nextID
	s.subs[kind] = append(s.subs[kind], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (s *Session) Unsubscribe(id SubscriptionID) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.unsubscribeLocked(id)
}

func (s *Session) unsubscribeLocked(ids ...SubscriptionID) {
	for kind, list := range s.subs {
		list = lo.Reject(list, func(sub subscription, _ int) bool {
			return lo.Contains(ids, sub.id)
		})
		if len(list) == 0 {
			delete(s.subs, kind)
		} else {
			s.subs[kind] = list
		}
	}
}

// Dispatch delivers ev to every handler registered for its kind, synchronously.
// A panicking handler is logged and does not prevent the remaining ones from running.
func (s *Session) Dispatch(ev Event) {
	s.subsMu.Lock()
	handlers := lo.Map(s.subs[ev.Kind()], func(sub subscription, _ int) Handler {
		return sub.handler
	})
	s.subsMu.Unlock()

	for _, h := range handlers {
		s.invoke(h, ev)
	}
}

func (s *Session) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("engine event handler for %s panicked: %v", ev.Kind(), r)
		}
	}()
	h(ev)
}

// Teardown releases the engine and every subscription. A later EnsureReady starts over.
func (s *Session) Teardown() error {
	s.mu.Lock()
	b := s.backend
	s.backend, s.ready = nil, false
	s.gen++
	s.mu.Unlock()

	s.subsMu.Lock()
	s.subs = make(map[Kind][]subscription)
	s.owner = nil
	s.subsMu.Unlock()

	if b == nil {
		return nil
	}
	log.Info("tearing down engine")
	return b.Close()
}

// Attachment is an ownership token over the session's event stream.
// Only the most recent attachment receives events through its subscriptions.
type Attachment struct {
	session *Session
	token   uuid.UUID
	name    string
}

// Attach makes owner the current event consumer. Subscriptions made through the
// previous attachment are released.
func (s *Session) Attach(name string) *Attachment {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if prev := s.owner; prev != nil {
		s.unsubscribeLocked(prev.subs...)
		if prev.name != name {
			log.Debugf("engine ownership moves from %s to %s", prev.name, name)
		}
	}

	o := &owner{token: uuid.New(), name: name}
	s.owner = o
	return &Attachment{session: s, token: o.token, name: name}
}

// Owner returns the name of the current owner, if any.
func (s *Session) Owner() (string, bool) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.owner == nil {
		return "", false
	}
	return s.owner.name, true
}

// Name returns the owner name the attachment was created for.
func (a *Attachment) Name() string {
	return a.name
}

// Active reports whether the attachment still owns the session.
func (a *Attachment) Active() bool {
	a.session.subsMu.Lock()
	defer a.session.subsMu.Unlock()
	return a.activeLocked()
}

func (a *Attachment) activeLocked() bool {
	o := a.session.owner
	return o != nil && o.token == a.token
}

// Subscribe registers handler on behalf of the owner. It returns false when the
// attachment is stale.
func (a *Attachment) Subscribe(kind Kind, handler Handler) (SubscriptionID, bool) {
	s := a.session
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if !a.activeLocked() {
		return 0, false
	}
	id := s.subscribeLocked(kind, handler)
	s.owner.subs = append(s.owner.subs, id)
	return id, true
}

// Detach releases the owner's subscriptions. It does nothing when the attachment is stale.
func (a *Attachment) Detach() {
	s := a.session
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if !a.activeLocked() {
		return
	}
	s.unsubscribeLocked(s.owner.subs...)
	s.owner = nil
}
