// Package dispatcher routes named commands to handlers. Host commands from the
// bridge and journal records from the engine both travel through it.
package dispatcher

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kitchenlens/highlighter/internal/logging"
)

var (
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrUnknownCommand is returned for a command nobody registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a non-blocking buffered handler is saturated.
	ErrQueueFull = errors.New("queue full")
)

// queuedResult is what callers of a buffered handler get back.
const queuedResult = "queued"

// Event is one command. Args carries the raw text arguments from the host;
// Payload carries a typed value when the event originates in-process.
type Event struct {
	Command   string
	Args      []string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Option configures one registration.
type Option func(*registration)

type registration struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered runs the handler on its own goroutine behind a queue of size.
func Buffered(size int) Option {
	return func(r *registration) { r.bufferSize = size }
}

// Blocking makes a full Buffered queue wait instead of rejecting the event.
func Blocking() Option {
	return func(r *registration) { r.blocking = true }
}

// Logged logs every call at debug level and failures at error level.
func Logged() Option {
	return func(r *registration) { r.logged = true }
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger  logging.Logger
	metrics *metrics

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	queues   map[string]chan Event
	closed   bool
	workers  sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger logging.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logging.OrNop(logger),
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]chan Event),
	}
	m, err := newMetrics(d.queueLengths)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Register installs h for command, replacing any earlier handler.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var r registration
	for _, opt := range opts {
		opt(&r)
	}

	if r.bufferSize > 0 {
		h = d.enqueueTo(d.startWorker(command, r.bufferSize, h), command, r.blocking)
	}
	if r.logged {
		h = d.logCalls(command, h)
	}

	d.mu.Lock()
	d.handlers[command] = h
	d.mu.Unlock()
}

// Dispatch runs the handler for e.Command and returns its result. Buffered
// handlers return "queued" once the event is accepted.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	closed := d.closed
	d.mu.RUnlock()

	switch {
	case closed:
		return nil, ErrClosed
	case !ok:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	return h(e)
}

// HasHandler reports whether command is registered.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Commands lists the registered commands, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		out = append(out, cmd)
	}
	sort.Strings(out)
	return out
}

// Close stops accepting events and waits until every buffered handler has
// drained its queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.workers.Wait()
}

func (d *Dispatcher) queueLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.queues))
	for cmd, q := range d.queues {
		out[cmd] = len(q)
	}
	return out
}

// startWorker creates command's queue and the goroutine draining it into h.
func (d *Dispatcher) startWorker(command string, size int, h HandlerFunc) chan<- Event {
	q := make(chan Event, size)

	d.mu.Lock()
	d.queues[command] = q
	d.mu.Unlock()

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range q {
			_, err := h(e)
			if err != nil {
				d.logger.Error("buffered handler failed", "command", command, "error", err)
			}
			d.metrics.handled(command, err)
		}
	}()
	return q
}

func (d *Dispatcher) enqueueTo(q chan<- Event, command string, blocking bool) HandlerFunc {
	return func(e Event) (any, error) {
		// The read lock keeps Close from closing q under a pending send.
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, ErrClosed
		}
		if blocking {
			q <- e
			return queuedResult, nil
		}
		select {
		case q <- e:
			return queuedResult, nil
		default:
			d.metrics.droppedOne(command)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

func (d *Dispatcher) logCalls(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling command", "command", command, "args", len(e.Args))

		result, err := h(e)
		if err != nil {
			d.logger.Error("command failed", "command", command, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("command complete", "command", command, "duration", time.Since(start))
		return result, nil
	}
}
