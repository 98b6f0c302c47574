package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mpvbridge/mpvbridge/log"
)

const (
	maxLineSize  = 4 << 20
	quitTimeout  = 3 * time.Second
	replySuccess = "success"
)

// request is the JSON structure sent to the engine's IPC socket.
type request struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type reply struct {
	data json.RawMessage
	err  error
}

// IPC is the production Backend. It drives an mpv child process over its JSON IPC socket
// using one persistent connection; replies are matched to requests by request_id.
type IPC struct {
	opts       Options
	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{} // closed when the child process exits

	conn    net.Conn
	writeMu sync.Mutex
	nextID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan reply

	incoming chan Event
	events   chan Event
	done     chan struct{}
	wg       sync.WaitGroup

	closeOnce sync.Once
}

// NewIPC creates an IPC backend. Nothing is started until Initialize.
func NewIPC(opts Options) *IPC {
	return &IPC{
		opts:     opts,
		pending:  make(map[int64]chan reply),
		incoming: make(chan Event),
		events:   make(chan Event),
		done:     make(chan struct{}),
	}
}

// Initialize spawns the engine, connects to its socket and registers property observers.
func (p *IPC) Initialize(ctx context.Context, mode Mode) error {
	if err := p.spawn(mode); err != nil {
		return err
	}

	if err := p.waitForSocket(ctx); err != nil {
		p.kill()
		return fmt.Errorf("mpv socket not ready: %w", err)
	}

	return p.connect(ctx, p.socketPath)
}

// connect opens the persistent connection, starts the read loop and observes properties.
func (p *IPC) connect(ctx context.Context, socketPath string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	p.conn = conn

	p.wg.Add(2)
	go p.readLoop()
	go p.forward()

	for i, name := range ObservedProperties {
		if _, err := p.Command(ctx, "observe_property", i+1, name); err != nil {
			return fmt.Errorf("observe %s: %w", name, err)
		}
	}

	log.Infof("engine connected on %s, observing %d properties", socketPath, len(ObservedProperties))
	return nil
}

// ApplyMode toggles video output and the window on a running engine.
func (p *IPC) ApplyMode(ctx context.Context, mode Mode) error {
	for _, kv := range modeProperties(mode) {
		if err := p.SetProperty(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func modeProperties(mode Mode) [][2]string {
	if mode == ModeAudio {
		return [][2]string{{"vid", "no"}, {"force-window", "no"}}
	}
	return [][2]string{{"vid", "auto"}, {"force-window", "yes"}}
}

// Command sends one command and waits for its reply.
func (p *IPC) Command(ctx context.Context, args ...any) (any, error) {
	if p.conn == nil {
		return nil, ErrNotReady
	}

	if p.opts.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.CommandTimeout)
		defer cancel()
	}

	id := p.nextID.Add(1)
	ch := make(chan reply, 1)

	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	payload, err := json.Marshal(request{Command: args, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	p.writeMu.Lock()
	_, err = p.conn.Write(append(payload, '\n'))
	p.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if len(r.data) == 0 || string(r.data) == "null" {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal(r.data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, errClosed
	}
}

// SetProperty writes a property through set_property.
func (p *IPC) SetProperty(ctx context.Context, name string, value any) error {
	_, err := p.Command(ctx, "set_property", name, value)
	return err
}

// GetProperty reads a property through get_property.
func (p *IPC) GetProperty(ctx context.Context, name string) (any, error) {
	return p.Command(ctx, "get_property", name)
}

// Events implements Backend.
func (p *IPC) Events() <-chan Event {
	return p.events
}

// readLoop reads newline-delimited JSON from the engine until the connection drops.
// It never blocks on event consumers: events are handed to forward, which buffers them.
func (p *IPC) readLoop() {
	defer p.wg.Done()
	defer close(p.incoming)
	defer p.failPending()

	scanner := bufio.NewScanner(p.conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		var m message
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			log.Tracef("dropping undecodable engine line: %v", err)
			continue
		}

		if m.Event == "" {
			if m.RequestID != nil {
				p.deliver(*m.RequestID, m)
			}
			continue
		}

		ev, ok := decode(m)
		if !ok {
			continue
		}
		select {
		case p.incoming <- ev:
		case <-p.done:
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warnf("engine read error: %v", err)
	}
}

func (p *IPC) deliver(id int64, m message) {
	p.pendingMu.Lock()
	ch, ok := p.pending[id]
	p.pendingMu.Unlock()
	if !ok {
		log.Tracef("reply for unknown request %d", id)
		return
	}

	r := reply{data: m.Data}
	if m.Error != "" && m.Error != replySuccess {
		r.err = fmt.Errorf("mpv error: %s", m.Error)
	}
	ch <- r
}

func (p *IPC) failPending() {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for id, ch := range p.pending {
		select {
		case ch <- reply{err: errClosed}:
		default:
		}
		delete(p.pending, id)
	}
}

// forward moves events from the read loop to Events through an unbounded buffer
// and closes Events once the read loop is gone and the buffer is drained.
func (p *IPC) forward() {
	defer p.wg.Done()
	defer close(p.events)

	in := p.incoming
	var queue []Event

	for {
		if in == nil && len(queue) == 0 {
			return
		}

		var (
			out  chan<- Event
			next Event
		)
		if len(queue) > 0 {
			out, next = p.events, queue[0]
		}

		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, ev)
		case out <- next:
			queue = queue[1:]
		case <-p.done:
			return
		}
	}
}

// Close asks the engine to quit, kills it if it does not, and stops the IPC goroutines.
func (p *IPC) Close() error {
	p.closeOnce.Do(func() {
		if p.conn != nil && p.cmd != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_, _ = p.Command(ctx, "quit")
			cancel()
		}

		close(p.done)
		if p.conn != nil {
			_ = p.conn.Close()
		}
		p.wg.Wait()

		if p.cmd != nil {
			select {
			case <-p.exited:
			case <-time.After(quitTimeout):
				log.Warn("engine did not quit in time, killing it")
				p.kill()
			}
			_ = os.Remove(p.socketPath)
		}
	})
	return nil
}
