// Package engine owns the registry and every component that mutates it, and
// serialises all of that work onto a single loop goroutine.
//
// Detection batches from the tracker and highlight requests from the
// procedure are both turned into closures and run on the loop in arrival
// order. Callers block until their closure has run. Timed effects run on
// their own goroutines under the effects scheduler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kitchenlens/highlighter/internal/anchor"
	"github.com/kitchenlens/highlighter/internal/channel"
	"github.com/kitchenlens/highlighter/internal/completion"
	"github.com/kitchenlens/highlighter/internal/detection"
	"github.com/kitchenlens/highlighter/internal/effects"
	"github.com/kitchenlens/highlighter/internal/highlight"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/registry"
	"github.com/kitchenlens/highlighter/internal/scene"
	"github.com/kitchenlens/highlighter/pkg/core"
)

var (
	// ErrDisabled is returned by every call once Start found no tracker.
	ErrDisabled = errors.New("engine disabled: tracking subsystem missing")
	// ErrNotRunning is returned before Start and after Stop.
	ErrNotRunning = errors.New("engine not running")
)

// Journal receives a record of everything the engine does. Calls must not
// block; most of them are made from the loop goroutine.
type Journal interface {
	RecordBinding(core.BindingRecord)
	RecordHighlight(core.HighlightRecord)
	RecordCompletion(core.CompletionRecord)
	RecordUnrecognized(core.UnrecognizedRecord)
}

type state int

const (
	stateNew state = iota
	stateRunning
	stateDisabled
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateRunning:
		return "running"
	case stateDisabled:
		return "disabled"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the engine's tunables.
type Config struct {
	FlashDuration time.Duration
	QueueSize     int
}

// DefaultConfig matches the configuration defaults.
func DefaultConfig() Config {
	return Config{
		FlashDuration: 1500 * time.Millisecond,
		QueueSize:     64,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithBeam configures the shared emphasis beam factory.
func WithBeam(f highlight.BeamFactory) Option {
	return func(e *Engine) { e.beamFactory = f }
}

// WithJournal sets the record sink.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithSession sets the session the records are tagged with.
func WithSession(s core.Session) Option {
	return func(e *Engine) { e.session = s }
}

// WithScheduler shares an effects scheduler with other components.
func WithScheduler(s *effects.Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// OnComplete adds a hook fired once every object is registered. Hooks run on
// the loop and must not call back into the engine.
func OnComplete(fn func(total int)) Option {
	return func(e *Engine) { e.completeHooks = append(e.completeHooks, fn) }
}

// Engine is the marker registration and highlight state engine.
type Engine struct {
	cfg     Config
	reg     *registry.Registry
	tracker scene.Tracker
	logger  logging.Logger
	journal Journal
	session core.Session

	beamFactory   highlight.BeamFactory
	completeHooks []func(total int)

	scheduler  *effects.Scheduler
	binder     *anchor.Binder
	detector   *detection.Dispatcher
	controller *highlight.Controller
	monitor    *completion.Monitor
	metrics    *instruments

	mu    sync.RWMutex
	state state
	loop  channel.Channel[func()]
	sub   scene.Subscription
	done  chan struct{}

	totals detection.Result
}

// New builds an engine over reg. tracker may be nil, in which case Start
// disables the engine instead of failing hard.
func New(cfg Config, reg *registry.Registry, tracker scene.Tracker, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, errors.New("engine: nil registry")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	e := &Engine{
		cfg:     cfg,
		reg:     reg,
		tracker: tracker,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger)
	if e.session.StartedAt.IsZero() {
		e.session.StartedAt = time.Now()
	}
	if e.scheduler == nil {
		e.scheduler = effects.NewScheduler(nil)
	}
	e.loop = channel.New[func()](cfg.QueueSize)

	metrics, err := newInstruments(e.loop.Len)
	if err != nil {
		return nil, err
	}
	e.metrics = metrics

	e.controller = highlight.New(reg, e.scheduler, e.beamFactory, e.logger)

	if tracker != nil {
		e.monitor = completion.New(reg, tracker, e.logger)
		e.monitor.OnComplete(e.completed)
		e.binder = anchor.NewBinder(reg, tracker, e.scheduler,
			anchor.WithFlash(cfg.FlashDuration),
			anchor.WithCompletion(e.monitor),
			anchor.WithLogger(e.logger),
			anchor.OnBind(e.bound),
		)
		e.detector = detection.New(reg, e.binder, e.logger, e.unrecognized)
	}

	return e, nil
}

// Start subscribes to the tracker and starts the loop. Without a tracker the
// engine is disabled and ErrDisabled is returned.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateNew {
		return fmt.Errorf("start: engine is %s", e.state)
	}

	if e.tracker == nil {
		e.state = stateDisabled
		close(e.done)
		e.logger.Error("tracking subsystem missing, engine disabled")
		return ErrDisabled
	}

	go e.run()

	sub, err := e.tracker.Subscribe(e.onTrackerBatch)
	if err != nil {
		e.loop.Close()
		<-e.done
		e.state = stateDisabled
		e.logger.Error("subscribing to tracker", "error", err)
		return fmt.Errorf("%w: subscribe: %v", ErrDisabled, err)
	}
	e.sub = sub
	e.state = stateRunning

	_, total := e.reg.Counts()
	e.logger.Info("engine started", "objects", total, "session", e.session.ID)

	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-e.done:
		}
	}()
	return nil
}

// Stop releases the tracker subscription, drains the loop and cancels every
// running effect. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != stateRunning {
		if e.state == stateNew {
			e.state = stateStopped
			close(e.done)
		}
		e.mu.Unlock()
		return
	}
	e.state = stateStopped
	if e.sub != nil {
		e.sub.Close()
		e.sub = nil
	}
	e.loop.Close()
	e.mu.Unlock()

	<-e.done
	e.scheduler.Shutdown()
	e.logger.Info("engine stopped")
}

// Done is closed once the loop has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) run() {
	defer close(e.done)
	for fn := range e.loop.Receive() {
		fn()
	}
}

// submit runs fn on the loop and waits for it.
func (e *Engine) submit(fn func()) error {
	e.mu.RLock()
	switch e.state {
	case stateRunning:
	case stateDisabled:
		e.mu.RUnlock()
		return ErrDisabled
	default:
		e.mu.RUnlock()
		return ErrNotRunning
	}
	finished := make(chan struct{})
	e.loop.Send(func() {
		defer close(finished)
		fn()
	})
	e.mu.RUnlock()

	<-finished
	return nil
}

func (e *Engine) onTrackerBatch(events []core.DetectionEvent) {
	if _, err := e.Detections(events); err != nil {
		e.logger.Debug("dropping detection batch", "events", len(events), "error", err)
	}
}

// Detections processes a batch on the loop.
func (e *Engine) Detections(events []core.DetectionEvent) (detection.Result, error) {
	var res detection.Result
	err := e.submit(func() {
		res = e.detector.OnDetections(events)
		e.totals.Add(res)
	})
	if err != nil {
		e.logger.Warn("detections rejected", "events", len(events), "error", err)
		return res, err
	}

	e.metrics.countDetections(detectionCounts{
		"bound":        res.Bound,
		"duplicate":    res.Duplicate,
		"unrecognized": res.Unrecognized,
		"empty":        res.Empty,
		"failed":       res.Failed,
	})
	return res, nil
}

// SetVisible shows or hides the highlight for name.
func (e *Engine) SetVisible(name string, show bool) error {
	var result error
	err := e.submit(func() {
		result = e.controller.SetVisible(name, show)
	})
	if err != nil {
		result = err
		e.logger.Warn("highlight rejected", "name", name, "show", show, "error", err)
	}

	outcome := Outcome(result)
	e.metrics.countHighlight(outcome)
	if e.journal != nil {
		e.journal.RecordHighlight(core.HighlightRecord{
			SessionID: e.session.ID,
			Time:      time.Now(),
			Name:      name,
			Show:      show,
			Outcome:   outcome,
		})
	}
	return result
}

// ClearAll hides every highlight and the beam.
func (e *Engine) ClearAll() error {
	err := e.submit(e.controller.ClearAll)
	if err != nil {
		e.logger.Warn("clear rejected", "error", err)
	}
	return err
}

// Outcome maps a SetVisible error onto the journal outcome names.
func Outcome(err error) string {
	switch {
	case err == nil:
		return core.OutcomeOK
	case errors.Is(err, registry.ErrNotFound):
		return core.OutcomeNotFound
	case errors.Is(err, registry.ErrNotRegistered):
		return core.OutcomeNotRegistered
	case errors.Is(err, registry.ErrNoVisual):
		return core.OutcomeNoVisual
	default:
		return core.OutcomeDisabled
	}
}

// Totals returns the detection counts accumulated since Start, read on the
// loop.
func (e *Engine) Totals() (detection.Result, error) {
	var res detection.Result
	err := e.submit(func() { res = e.totals })
	return res, err
}

// Status is a point-in-time view of the engine.
type Status struct {
	State      string              `json:"state"`
	Session    core.Session        `json:"session"`
	Registered int                 `json:"registered"`
	Total      int                 `json:"total"`
	Complete   bool                `json:"complete"`
	BeamTarget string              `json:"beamTarget,omitempty"`
	Detections detection.Result    `json:"detections"`
	Objects    []registry.Snapshot `json:"objects"`
	// Effects lists running effect tasks as kind/target, sorted.
	Effects []string `json:"effects,omitempty"`
}

// Status returns the current state. While running it is read on the loop so
// it never observes a half-applied batch.
func (e *Engine) Status() Status {
	var st Status
	read := func() {
		st.Registered, st.Total = e.reg.Counts()
		st.Complete = e.monitor != nil && e.monitor.Complete()
		st.BeamTarget = e.controller.BeamTarget()
		st.Detections = e.totals
		st.Objects = e.reg.Snapshot()
	}
	if err := e.submit(read); err != nil {
		read()
	}

	e.mu.RLock()
	st.State = e.state.String()
	e.mu.RUnlock()
	st.Session = e.session
	st.Session.Objects = st.Total
	for _, k := range e.scheduler.Live() {
		st.Effects = append(st.Effects, k.String())
	}
	sort.Strings(st.Effects)
	return st
}

// LogAttrs returns the attributes the logging context handler adds to every
// record. It is safe to call from any goroutine.
func (e *Engine) LogAttrs() []slog.Attr {
	registered, total := e.reg.Counts()
	return []slog.Attr{
		slog.String("session", e.session.ID),
		slog.Int("registered", registered),
		slog.Int("total", total),
	}
}

// Registry exposes the catalogue for read-only callers.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Scheduler exposes the effects scheduler so collaborators share one.
func (e *Engine) Scheduler() *effects.Scheduler {
	return e.scheduler
}

// Session returns the session the engine journals under.
func (e *Engine) Session() core.Session {
	return e.session
}

func (e *Engine) bound(b *anchor.Binding) {
	e.metrics.bindings.Add(context.Background(), 1)
	if e.journal == nil {
		return
	}
	e.journal.RecordBinding(core.BindingRecord{
		SessionID: e.session.ID,
		Time:      b.CreatedAt,
		Code:      b.Entry.Code,
		Name:      b.Entry.Name,
		AnchorID:  b.Anchor.ID(),
		Pose:      b.Pose,
	})
}

func (e *Engine) unrecognized(code core.Code) {
	if e.journal == nil {
		return
	}
	e.journal.RecordUnrecognized(core.UnrecognizedRecord{
		SessionID: e.session.ID,
		Time:      time.Now(),
		Code:      code,
	})
}

func (e *Engine) completed(total int) {
	if e.journal != nil {
		e.journal.RecordCompletion(core.CompletionRecord{
			SessionID:  e.session.ID,
			Time:       time.Now(),
			Registered: total,
			Elapsed:    time.Since(e.session.StartedAt),
		})
	}
	for _, fn := range e.completeHooks {
		fn(total)
	}
}
