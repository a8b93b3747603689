package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/internal/detection"
	"github.com/kitchenlens/highlighter/internal/dispatcher"
	"github.com/kitchenlens/highlighter/internal/effects"
	"github.com/kitchenlens/highlighter/internal/engine"
	"github.com/kitchenlens/highlighter/internal/procedure"
	"github.com/kitchenlens/highlighter/internal/registry"
	"github.com/kitchenlens/highlighter/internal/scene"
	"github.com/kitchenlens/highlighter/internal/timer"
	"github.com/kitchenlens/highlighter/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

type fixture struct {
	d       *dispatcher.Dispatcher
	logs    *recordingLogger
	engine  *engine.Engine
	tracker *scene.MemoryTracker
	sc      *scene.MemoryScene
	timer   *timer.Timer
	nav     *procedure.Navigator
	popup   *procedure.MemoryPopup
	saved   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sc:      scene.NewMemoryScene(),
		tracker: scene.NewMemoryTracker(),
		logs:    &recordingLogger{},
	}

	reg, err := registry.New([]core.ObjectSpec{
		{Code: "Q1", Name: "Salt", Visual: "salt_ring"},
		{Code: "Q2", Name: "Sugar", Visual: "sugar_ring"},
	}, f.sc.Resolve)
	require.NoError(t, err)

	sched := effects.NewScheduler(nil)
	t.Cleanup(sched.Shutdown)

	f.engine, err = engine.New(engine.Config{FlashDuration: time.Millisecond}, reg, f.tracker,
		engine.WithScheduler(sched),
		engine.WithBeam(func() (scene.Beam, error) { return &scene.MemoryBeam{}, nil }),
	)
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(context.Background()))
	t.Cleanup(f.engine.Stop)

	f.timer, err = timer.New(config.TimerConfig{Minutes: 2, MinMinutes: 1, MaxMinutes: 5}, timer.Dependencies{
		Scheduler: sched,
		Display:   scene.NewMemoryText("timer"),
		Audio:     &scene.MemoryAudio{},
		Tick:      time.Hour,
	})
	require.NoError(t, err)

	f.popup = procedure.NewMemoryPopup(nil)
	f.nav = procedure.NewNavigator(f.engine, f.popup, nil)
	f.nav.SetRecipe(core.Recipe{ID: "r", Steps: []core.Step{
		{Instruction: "Add salt", ObjectName: "Salt", VideoURL: "https://v/salt"},
		{Instruction: "Add sugar", ObjectName: "Sugar"},
	}})

	f.d, err = dispatcher.New(f.logs)
	require.NoError(t, err)
	t.Cleanup(f.d.Close)

	NewService(Dependencies{
		Engine:  f.engine,
		Tracker: f.tracker,
		Timer:   f.timer,
		Steps:   f.nav,
		Version: []string{"1.0.0", "2026-10-19"},
		Keyword: "Timer",
		Save:    func() error { f.saved++; return nil },
	}).RegisterHandlers(f.d)
	return f
}

func (f *fixture) call(t *testing.T, cmd string, args ...string) (any, error) {
	t.Helper()
	return f.d.Dispatch(dispatcher.Event{Command: cmd, Args: args})
}

func TestRegisterHandlers_AllCommands(t *testing.T) {
	f := newFixture(t)
	for _, cmd := range []string{
		CmdVersion, CmdDetections, CmdHighlight, CmdClear, CmdStatus, CmdSave,
		CmdTimerStart, CmdTimerReset, CmdTimerInc, CmdTimerDec, CmdTimerPanel,
		CmdVoice, CmdStepNext, CmdStepPrev, CmdStepVideo, CmdVideoClose, CmdStepCurrent,
	} {
		assert.True(t, f.d.HasHandler(cmd), cmd)
	}
}

func TestVersion(t *testing.T) {
	f := newFixture(t)
	res, err := f.call(t, CmdVersion)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0", "2026-10-19"}, res)
}

func TestDetectionsThenHighlight(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(t, CmdHighlight, "Salt", "true")
	assert.ErrorIs(t, err, registry.ErrNotRegistered)

	res, err := f.call(t, CmdDetections,
		`["Q1",[0.1,0,0.5],[0,0,0,1]]`,
		`["ZZ",[0,0,0]]`,
		`garbage`,
	)
	require.NoError(t, err)
	assert.Equal(t, detection.Result{Bound: 1, Unrecognized: 1}, res)

	res, err = f.call(t, CmdHighlight, "Salt")
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeOK, res)
	assert.True(t, f.sc.Visual("salt_ring").Active())

	_, err = f.call(t, CmdHighlight, "Pepper", "true")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, err = f.call(t, CmdClear)
	require.NoError(t, err)
	assert.False(t, f.sc.Visual("salt_ring").Active())

	st, err := f.call(t, CmdStatus)
	require.NoError(t, err)
	assert.Equal(t, 1, st.(engine.Status).Registered)
	assert.Equal(t, 2, st.(engine.Status).Total)
}

func TestDetections_StopAfterCompletion(t *testing.T) {
	f := newFixture(t)

	res, err := f.call(t, CmdDetections, `["Q1",[0,0,0]]`, `["Q2",[1,0,0]]`)
	require.NoError(t, err)
	assert.Equal(t, detection.Result{Bound: 2}, res)
	assert.False(t, f.tracker.Enabled(), "scanning stops once everything is registered")

	before, err := f.engine.Totals()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		res, err = f.call(t, CmdDetections, `["ZZ",[0,0,0]]`, `["Q1",[2,0,0]]`)
		require.NoError(t, err)
		assert.Equal(t, ScanningStopped, res)
	}

	after, err := f.engine.Totals()
	require.NoError(t, err)
	assert.Equal(t, before, after, "refused batches never reach the engine")
	assert.Len(t, f.tracker.Anchors(), 2)
}

func TestDetections_DuplicateCounts(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(t, CmdDetections, `["Q1",[0,0,0]]`)
	require.NoError(t, err)
	res, err := f.call(t, CmdDetections, `["Q1",[0,0,0]]`, `["Q1",[0,0,0]]`)
	require.NoError(t, err)
	assert.Equal(t, detection.Result{Duplicate: 2}, res, "only this batch is counted")
}

func TestHighlight_NotRegisteredIsNoError(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(t, CmdHighlight, "Salt", "true")
	assert.ErrorIs(t, err, registry.ErrNotRegistered)
	assert.Zero(t, f.logs.errorCount())
}

func TestDetections_AllMalformed(t *testing.T) {
	f := newFixture(t)
	_, err := f.call(t, CmdDetections, "nope")
	assert.Error(t, err)
}

func TestHighlight_BadArgs(t *testing.T) {
	f := newFixture(t)
	_, err := f.call(t, CmdHighlight)
	assert.Error(t, err)
	_, err = f.call(t, CmdHighlight, "Salt", "maybe")
	assert.Error(t, err)
}

func TestTimerCommands(t *testing.T) {
	f := newFixture(t)

	res, err := f.call(t, CmdTimerStart)
	require.NoError(t, err)
	assert.True(t, res.(timer.Snapshot).Running)
	assert.Equal(t, 120, res.(timer.Snapshot).Remaining)

	res, err = f.call(t, CmdTimerReset)
	require.NoError(t, err)
	assert.False(t, res.(timer.Snapshot).Running)

	res, _ = f.call(t, CmdTimerInc)
	assert.Equal(t, 3, res.(timer.Snapshot).Minutes)
	res, _ = f.call(t, CmdTimerDec)
	assert.Equal(t, 2, res.(timer.Snapshot).Minutes)

	res, _ = f.call(t, CmdTimerPanel)
	assert.False(t, res.(timer.Snapshot).Visible)
}

func TestVoice(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.timer.PanelVisible())

	res, err := f.call(t, CmdVoice, "Tomato")
	require.NoError(t, err)
	assert.Equal(t, "ignored", res)
	assert.True(t, f.timer.PanelVisible())

	res, err = f.call(t, CmdVoice, `"Timer"`)
	require.NoError(t, err)
	assert.False(t, res.(timer.Snapshot).Visible)
	assert.False(t, f.timer.PanelVisible())

	_, err = f.call(t, CmdVoice)
	assert.Error(t, err)
}

func TestStepCommands(t *testing.T) {
	f := newFixture(t)

	res, err := f.call(t, CmdStepCurrent)
	require.NoError(t, err)
	assert.Equal(t, 0, res.(procedure.Position).Index)

	res, err = f.call(t, CmdStepVideo)
	require.NoError(t, err)
	assert.Equal(t, true, res)
	assert.Equal(t, "https://v/salt", f.popup.URL())

	_, err = f.call(t, CmdVideoClose)
	require.NoError(t, err)
	assert.False(t, f.popup.Open())

	res, err = f.call(t, CmdStepNext)
	require.NoError(t, err)
	assert.Equal(t, 1, res.(procedure.Position).Index)

	res, err = f.call(t, CmdStepNext)
	require.NoError(t, err)
	assert.Equal(t, 1, res.(procedure.Position).Index, "stays on the last step")

	res, err = f.call(t, CmdStepPrev)
	require.NoError(t, err)
	assert.Equal(t, 0, res.(procedure.Position).Index)
}

func TestSave(t *testing.T) {
	f := newFixture(t)
	_, err := f.call(t, CmdSave)
	require.NoError(t, err)
	assert.Equal(t, 1, f.saved)
}

type stubEngine struct{}

func (stubEngine) Totals() (detection.Result, error) { return detection.Result{}, nil }
func (stubEngine) SetVisible(string, bool) error     { return nil }
func (stubEngine) ClearAll() error                   { return errors.New("disabled") }
func (stubEngine) Status() engine.Status             { return engine.Status{State: "disabled"} }

func TestMissingCollaborators(t *testing.T) {
	d, err := dispatcher.New(nil)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	NewService(Dependencies{Engine: stubEngine{}}).RegisterHandlers(d)

	for _, cmd := range []string{CmdTimerStart, CmdTimerPanel} {
		_, err := d.Dispatch(dispatcher.Event{Command: cmd})
		assert.ErrorIs(t, err, ErrNoTimer, cmd)
	}
	_, err = d.Dispatch(dispatcher.Event{Command: CmdVoice, Args: []string{"Timer"}})
	assert.NoError(t, err, "keyword unset, so nothing matches")

	for _, cmd := range []string{CmdStepNext, CmdStepPrev, CmdStepCurrent, CmdStepVideo, CmdVideoClose} {
		_, err := d.Dispatch(dispatcher.Event{Command: cmd})
		assert.ErrorIs(t, err, ErrNoProcedure, cmd)
	}

	_, err = d.Dispatch(dispatcher.Event{Command: CmdDetections, Args: []string{`["Q1",[0,0,0]]`}})
	assert.ErrorIs(t, err, ErrNoTracker)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdClear})
	assert.Error(t, err)
	_, err = d.Dispatch(dispatcher.Event{Command: CmdSave})
	assert.NoError(t, err)
}
