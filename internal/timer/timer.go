// Package timer is the kitchen countdown shown on the timer panel.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/internal/effects"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/scene"
)

const (
	// DoneText replaces the readout when the countdown reaches zero.
	DoneText = "Done"

	target = "timer"
)

var (
	countdownKey = effects.Key{Kind: effects.KindCountdown, Target: target}
	blinkKey     = effects.Key{Kind: effects.KindBlink, Target: target}
)

// Dependencies are the scene handles and scheduler the timer drives.
type Dependencies struct {
	Scheduler *effects.Scheduler
	// Panel is the root of the timer UI. Nil means the display itself.
	Panel   scene.Visual
	Display scene.TextDisplay
	Audio   scene.AudioCue
	Logger  logging.Logger
	// Tick is one countdown second. Zero means time.Second.
	Tick time.Duration
	// BlinkInterval is the alarm blink half-period. Zero means 200ms.
	BlinkInterval time.Duration
}

// Timer is safe for concurrent use. Operations are serialised; the countdown
// task only touches state under mu and only while its generation is current.
type Timer struct {
	ops sync.Mutex

	mu        sync.Mutex
	gen       uint64
	minutes   int
	min, max  int
	remaining int
	running   bool
	alarming  bool

	sched   *effects.Scheduler
	panel   scene.Visual
	display scene.TextDisplay
	audio   scene.AudioCue
	logger  logging.Logger
	tick    time.Duration
	blink   time.Duration
}

// New builds a timer from cfg and shows the panel with the set time.
func New(cfg config.TimerConfig, deps Dependencies) (*Timer, error) {
	if deps.Scheduler == nil || deps.Display == nil {
		return nil, fmt.Errorf("timer: scheduler and display are required")
	}
	lo, hi := cfg.MinMinutes, cfg.MaxMinutes
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}

	t := &Timer{
		minutes: clamp(cfg.Minutes, lo, hi),
		min:     lo,
		max:     hi,
		sched:   deps.Scheduler,
		panel:   deps.Panel,
		display: deps.Display,
		audio:   deps.Audio,
		logger:  logging.OrNop(deps.Logger),
		tick:    deps.Tick,
		blink:   deps.BlinkInterval,
	}
	if t.panel == nil {
		t.panel = deps.Display
	}
	if t.tick <= 0 {
		t.tick = time.Second
	}
	if t.blink <= 0 {
		t.blink = 200 * time.Millisecond
	}

	t.panel.SetActive(true)
	t.mu.Lock()
	t.showSetTimeLocked()
	t.mu.Unlock()
	return t, nil
}

// Toggle starts, pauses or resumes the countdown. While the alarm is sounding
// it stops the alarm and resets instead.
func (t *Timer) Toggle() {
	t.ops.Lock()
	defer t.ops.Unlock()

	t.mu.Lock()
	switch {
	case t.alarming:
		t.mu.Unlock()
		t.reset()
		return
	case t.running:
		t.running = false
		t.gen++
		remaining := t.remaining
		t.mu.Unlock()
		t.sched.Cancel(countdownKey)
		t.logger.Info("timer paused", "remaining", remaining)
		return
	}

	if t.remaining <= 0 {
		t.remaining = t.minutes * 60
		t.logger.Info("timer started", "minutes", t.minutes)
	} else {
		t.logger.Info("timer resumed", "remaining", t.remaining)
	}
	t.running = true
	t.gen++
	gen, remaining := t.gen, t.remaining
	t.showRemainingLocked(remaining)
	t.mu.Unlock()

	t.sched.Start(countdownKey, effects.Countdown(remaining, t.tick,
		func(left int) { t.onTick(gen, left) },
		func() { t.onZero(gen) },
	))
}

// Reset stops the countdown and alarm and shows the set time in white.
func (t *Timer) Reset() {
	t.ops.Lock()
	defer t.ops.Unlock()
	t.reset()
}

// Increase adds a minute, up to the maximum. The remaining time is discarded.
func (t *Timer) Increase() bool {
	return t.adjust(1)
}

// Decrease removes a minute, down to the minimum. The remaining time is
// discarded.
func (t *Timer) Decrease() bool {
	return t.adjust(-1)
}

// TogglePanel flips the panel. Hiding it resets a running timer or alarm;
// showing it displays the set time.
func (t *Timer) TogglePanel() bool {
	t.ops.Lock()
	defer t.ops.Unlock()

	visible := !t.PanelVisible()
	if visible {
		t.panel.SetActive(true)
		t.mu.Lock()
		if !t.running && !t.alarming {
			t.showSetTimeLocked()
		}
		t.mu.Unlock()
		return true
	}

	t.mu.Lock()
	busy := t.running || t.alarming
	t.mu.Unlock()
	if busy {
		t.reset()
	}
	t.panel.SetActive(false)
	return false
}

// Minutes returns the set duration.
func (t *Timer) Minutes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minutes
}

// Remaining returns the seconds left on a running or paused countdown.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) Alarming() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alarming
}

// PanelVisible reports whether the timer panel is shown.
func (t *Timer) PanelVisible() bool {
	return t.panel.Active()
}

// Snapshot is the timer state reported on status surfaces.
type Snapshot struct {
	Minutes   int  `json:"minutes"`
	Remaining int  `json:"remaining"`
	Running   bool `json:"running"`
	Alarming  bool `json:"alarming"`
	Visible   bool `json:"visible"`
}

// Snapshot returns a consistent copy of the timer state.
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	s := Snapshot{
		Minutes:   t.minutes,
		Remaining: t.remaining,
		Running:   t.running,
		Alarming:  t.alarming,
	}
	t.mu.Unlock()
	s.Visible = t.PanelVisible()
	return s
}

func (t *Timer) adjust(delta int) bool {
	t.ops.Lock()
	defer t.ops.Unlock()

	t.mu.Lock()
	next := t.minutes + delta
	if next < t.min || next > t.max {
		t.mu.Unlock()
		return false
	}
	wasRunning := t.running
	t.minutes = next
	t.remaining = 0
	t.running = false
	t.gen++
	t.showSetTimeLocked()
	t.mu.Unlock()

	if wasRunning {
		t.sched.Cancel(countdownKey)
	}
	return true
}

// reset must be called with ops held.
func (t *Timer) reset() {
	t.mu.Lock()
	t.gen++
	t.running = false
	t.alarming = false
	t.remaining = 0
	t.mu.Unlock()

	// Cancelling the countdown first means an onZero racing us has either
	// finished starting the blink or will see a stale generation.
	t.sched.Cancel(countdownKey)
	t.sched.Cancel(blinkKey)
	if t.audio != nil && t.audio.Playing() {
		t.audio.Stop()
	}

	t.mu.Lock()
	t.display.SetColor(scene.ColorWhite)
	t.showSetTimeLocked()
	t.mu.Unlock()
	t.logger.Info("timer reset")
}

func (t *Timer) onTick(gen uint64, left int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.remaining = left
	t.showRemainingLocked(left)
}

func (t *Timer) onZero(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.running = false
	t.alarming = true
	t.remaining = 0
	t.showRemainingLocked(0)
	t.logger.Info("timer finished")

	// The blink body never takes mu, so starting it here cannot deadlock.
	t.sched.Start(blinkKey, effects.Blink(t.display, t.audio, t.blink))
}

func (t *Timer) showSetTimeLocked() {
	t.display.SetText(fmt.Sprintf("%02d:00", t.minutes))
	t.display.SetActive(true)
}

func (t *Timer) showRemainingLocked(seconds int) {
	if seconds <= 0 {
		t.display.SetColor(scene.ColorRed)
		t.display.SetText(DoneText)
		return
	}
	t.display.SetColor(scene.ColorWhite)
	t.display.SetText(Format(seconds))
}

// Format renders seconds as MM:SS.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
