package handlers

import (
	"errors"
	"strings"

	"github.com/kitchenlens/highlighter/internal/detection"
	"github.com/kitchenlens/highlighter/internal/dispatcher"
	"github.com/kitchenlens/highlighter/internal/engine"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/parser"
	"github.com/kitchenlens/highlighter/internal/procedure"
	"github.com/kitchenlens/highlighter/internal/timer"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// Host commands.
const (
	CmdVersion     = ":VERSION:"
	CmdDetections  = ":DETECTIONS:"
	CmdHighlight   = ":HIGHLIGHT:"
	CmdClear       = ":CLEAR:"
	CmdStatus      = ":STATUS:"
	CmdSave        = ":SAVE:"
	CmdTimerStart  = ":TIMER:START:"
	CmdTimerReset  = ":TIMER:RESET:"
	CmdTimerInc    = ":TIMER:INC:"
	CmdTimerDec    = ":TIMER:DEC:"
	CmdTimerPanel  = ":TIMER:PANEL:"
	CmdVoice       = ":VOICE:"
	CmdStepNext    = ":STEP:NEXT:"
	CmdStepPrev    = ":STEP:PREV:"
	CmdStepVideo   = ":STEP:VIDEO:"
	CmdVideoClose  = ":VIDEO:CLOSE:"
	CmdStepCurrent = ":STEP:CURRENT:"
)

var (
	// ErrNoTimer is returned by timer commands when no timer is configured.
	ErrNoTimer = errors.New("timer not configured")
	// ErrNoProcedure is returned by step commands when no navigator is configured.
	ErrNoProcedure = errors.New("procedure not configured")
	// ErrNoTracker is returned by :DETECTIONS: when no tracker is configured.
	ErrNoTracker = errors.New("tracker not configured")
)

// ScanningStopped answers a detection batch the tracker refused, which
// happens once every object is registered.
const ScanningStopped = "scanning stopped"

// Engine is the part of *engine.Engine the host drives.
type Engine interface {
	Totals() (detection.Result, error)
	SetVisible(name string, show bool) error
	ClearAll() error
	Status() engine.Status
}

// Tracker is satisfied by *scene.MemoryTracker. Deliver runs the engine's
// subscription callback and reports false while scanning is disabled.
type Tracker interface {
	Deliver(batch []core.DetectionEvent) bool
}

// Timer is satisfied by *timer.Timer.
type Timer interface {
	Toggle()
	Reset()
	Increase() bool
	Decrease() bool
	TogglePanel() bool
	Snapshot() timer.Snapshot
}

// Steps is satisfied by *procedure.Navigator.
type Steps interface {
	Next() (procedure.Position, bool)
	Previous() (procedure.Position, bool)
	Current() (procedure.Position, error)
	WatchVideo() bool
	CloseVideo()
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Engine  Engine
	Tracker Tracker
	Timer   Timer
	Steps   Steps
	Parser  *parser.Parser
	Logger  logging.Logger
	Version []string
	// Keyword is the voice keyword that toggles the timer panel.
	Keyword string
	// Save ends the session and flushes the journal.
	Save func() error
}

// Service provides handler methods for host commands.
type Service struct {
	deps   Dependencies
	logger logging.Logger
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	logger := logging.OrNop(deps.Logger)
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(logger)
	}
	return &Service{deps: deps, logger: logger}
}

// RegisterHandlers registers every host command with d.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdVersion, func(dispatcher.Event) (any, error) {
		return s.deps.Version, nil
	})
	d.Register(CmdDetections, s.handleDetections)
	d.Register(CmdHighlight, s.handleHighlight)
	d.Register(CmdClear, func(dispatcher.Event) (any, error) {
		return nil, s.deps.Engine.ClearAll()
	}, dispatcher.Logged())
	d.Register(CmdStatus, func(dispatcher.Event) (any, error) {
		return s.deps.Engine.Status(), nil
	})
	d.Register(CmdSave, s.handleSave, dispatcher.Logged())

	d.Register(CmdTimerStart, s.timerCommand(func(t Timer) { t.Toggle() }))
	d.Register(CmdTimerReset, s.timerCommand(func(t Timer) { t.Reset() }))
	d.Register(CmdTimerInc, s.timerCommand(func(t Timer) { t.Increase() }))
	d.Register(CmdTimerDec, s.timerCommand(func(t Timer) { t.Decrease() }))
	d.Register(CmdTimerPanel, s.timerCommand(func(t Timer) { t.TogglePanel() }))
	d.Register(CmdVoice, s.handleVoice, dispatcher.Logged())

	d.Register(CmdStepNext, s.stepCommand(func(n Steps) (procedure.Position, error) {
		pos, _ := n.Next()
		return pos, nil
	}))
	d.Register(CmdStepPrev, s.stepCommand(func(n Steps) (procedure.Position, error) {
		pos, _ := n.Previous()
		return pos, nil
	}))
	d.Register(CmdStepCurrent, s.stepCommand(func(n Steps) (procedure.Position, error) {
		return n.Current()
	}))
	d.Register(CmdStepVideo, func(dispatcher.Event) (any, error) {
		if s.deps.Steps == nil {
			return nil, ErrNoProcedure
		}
		return s.deps.Steps.WatchVideo(), nil
	})
	d.Register(CmdVideoClose, func(dispatcher.Event) (any, error) {
		if s.deps.Steps == nil {
			return nil, ErrNoProcedure
		}
		s.deps.Steps.CloseVideo()
		return nil, nil
	})
}

// handleDetections feeds a batch to the tracker, which hands it to the engine
// while scanning is on. The reply is what this batch added to the totals.
func (s *Service) handleDetections(e dispatcher.Event) (any, error) {
	if s.deps.Tracker == nil {
		return nil, ErrNoTracker
	}
	events, skipped := s.deps.Parser.ParseDetections(e.Args)
	if len(events) == 0 && skipped > 0 {
		return nil, parser.ErrMissingArgs
	}

	before, err := s.deps.Engine.Totals()
	if err != nil {
		return nil, err
	}
	if !s.deps.Tracker.Deliver(events) {
		s.logger.Debug("detection batch ignored, scanning stopped", "events", len(events))
		return ScanningStopped, nil
	}
	after, err := s.deps.Engine.Totals()
	if err != nil {
		return nil, err
	}
	return after.Sub(before), nil
}

func (s *Service) handleHighlight(e dispatcher.Event) (any, error) {
	name, show, err := s.deps.Parser.ParseHighlight(e.Args)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Engine.SetVisible(name, show); err != nil {
		return nil, err
	}
	return engine.Outcome(nil), nil
}

func (s *Service) handleSave(dispatcher.Event) (any, error) {
	if s.deps.Save == nil {
		return nil, nil
	}
	return nil, s.deps.Save()
}

func (s *Service) handleVoice(e dispatcher.Event) (any, error) {
	keyword, err := s.deps.Parser.ParseKeyword(e.Args)
	if err != nil {
		return nil, err
	}
	if s.deps.Keyword == "" || strings.TrimSpace(keyword) != s.deps.Keyword {
		s.logger.Debug("voice keyword ignored", "keyword", keyword)
		return "ignored", nil
	}
	if s.deps.Timer == nil {
		return nil, ErrNoTimer
	}
	s.deps.Timer.TogglePanel()
	s.logger.Info("timer panel toggled by voice", "keyword", keyword)
	return s.deps.Timer.Snapshot(), nil
}

func (s *Service) timerCommand(op func(Timer)) dispatcher.HandlerFunc {
	return func(dispatcher.Event) (any, error) {
		if s.deps.Timer == nil {
			return nil, ErrNoTimer
		}
		op(s.deps.Timer)
		return s.deps.Timer.Snapshot(), nil
	}
}

func (s *Service) stepCommand(op func(Steps) (procedure.Position, error)) dispatcher.HandlerFunc {
	return func(dispatcher.Event) (any, error) {
		if s.deps.Steps == nil {
			return nil, ErrNoProcedure
		}
		return op(s.deps.Steps)
	}
}
