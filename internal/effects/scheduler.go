// Package effects runs short-lived timed effects (flash, countdown, blink) as
// independently cancellable tasks.
//
// Each task is keyed by the kind of effect and the handle it drives. Starting
// a key that is already live cancels the running task and waits for its
// cleanup before the new one begins, so two effects never write the same
// target at once.
package effects

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Kind names an effect family.
type Kind string

const (
	KindFlash     Kind = "flash"
	KindCountdown Kind = "countdown"
	KindBlink     Kind = "blink"
)

// Key identifies a task slot.
type Key struct {
	Kind   Kind
	Target string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Kind, k.Target)
}

// State is the lifecycle of a task.
type State int32

const (
	StateRunning State = iota
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Func is the body of an effect. It must return promptly once ctx is done and
// perform its own cleanup before returning.
type Func func(ctx context.Context)

// Task is a handle on one running effect.
type Task struct {
	key    Key
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32
}

// Key returns the slot the task occupies.
func (t *Task) Key() Key { return t.key }

// Done is closed once the effect body, including its cleanup, has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// State reports the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// Cancel requests cancellation and waits until cleanup has run.
func (t *Task) Cancel() {
	t.cancel()
	<-t.done
}

// Observer is notified when tasks finish. Optional.
type Observer interface {
	TaskFinished(key Key, state State)
}

// Scheduler owns every live task.
type Scheduler struct {
	mu       sync.Mutex
	tasks    map[Key]*Task
	closed   bool
	wg       sync.WaitGroup
	observer Observer
}

// NewScheduler returns an empty scheduler. observer may be nil.
func NewScheduler(observer Observer) *Scheduler {
	return &Scheduler{
		tasks:    make(map[Key]*Task),
		observer: observer,
	}
}

// Start runs fn under key. A live task under the same key is cancelled first
// and its cleanup completes before fn starts. After Shutdown the returned task
// is already cancelled and fn never runs.
func (s *Scheduler) Start(key Key, fn Func) *Task {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return cancelledTask(key)
		}
		prev, live := s.tasks[key]
		if !live {
			t := s.launch(key, fn)
			s.mu.Unlock()
			return t
		}
		s.mu.Unlock()
		prev.Cancel()
	}
}

// launch must be called with s.mu held.
func (s *Scheduler) launch(key Key, fn Func) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.tasks[key] = t
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		fn(ctx)

		state := StateCompleted
		if ctx.Err() != nil {
			state = StateCancelled
		}
		cancel()

		s.mu.Lock()
		if s.tasks[key] == t {
			delete(s.tasks, key)
		}
		s.mu.Unlock()

		t.state.Store(int32(state))
		close(t.done)

		if s.observer != nil {
			s.observer.TaskFinished(key, state)
		}
	}()

	return t
}

// Cancel stops the task under key, waiting for its cleanup. It reports
// whether a task was live.
func (s *Scheduler) Cancel(key Key) bool {
	s.mu.Lock()
	t, live := s.tasks[key]
	s.mu.Unlock()
	if !live {
		return false
	}
	t.Cancel()
	return true
}

// Running reports whether a task is live under key.
func (s *Scheduler) Running(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, live := s.tasks[key]
	return live
}

// Live returns the keys of every running task.
func (s *Scheduler) Live() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]Key, 0, len(s.tasks))
	for k := range s.tasks {
		keys = append(keys, k)
	}
	return keys
}

// Shutdown cancels every task and waits for all of them to finish. Later
// Start calls are refused.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	s.wg.Wait()
}

func cancelledTask(key Key) *Task {
	t := &Task{key: key, cancel: func() {}, done: make(chan struct{})}
	t.state.Store(int32(StateCancelled))
	close(t.done)
	return t
}

// FlashKey is the slot of the registration flash for a catalogue entry.
func FlashKey(target string) Key {
	return Key{Kind: KindFlash, Target: target}
}
