package effects

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kitchenlens/highlighter/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type recordingObserver struct {
	mu       sync.Mutex
	finished map[Key][]State
}

func (o *recordingObserver) TaskFinished(key Key, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished == nil {
		o.finished = make(map[Key][]State)
	}
	o.finished[key] = append(o.finished[key], state)
}

func (o *recordingObserver) states(key Key) []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.finished[key]...)
}

func blockUntilCancelled(cleaned *atomic.Bool) Func {
	return func(ctx context.Context) {
		<-ctx.Done()
		cleaned.Store(true)
	}
}

func TestScheduler_CompletesTask(t *testing.T) {
	obs := &recordingObserver{}
	s := NewScheduler(obs)
	key := Key{Kind: KindFlash, Target: "salt"}

	task := s.Start(key, func(ctx context.Context) {})

	select {
	case <-task.Done():
	case <-time.After(waitFor):
		t.Fatal("task did not finish")
	}
	assert.Equal(t, StateCompleted, task.State())
	assert.False(t, s.Running(key))
	assert.Equal(t, []State{StateCompleted}, obs.states(key))
}

func TestScheduler_CancelRunsCleanupBeforeDone(t *testing.T) {
	s := NewScheduler(nil)
	key := Key{Kind: KindBlink, Target: "timer"}

	var cleaned atomic.Bool
	task := s.Start(key, blockUntilCancelled(&cleaned))
	require.True(t, s.Running(key))

	assert.True(t, s.Cancel(key))
	assert.True(t, cleaned.Load(), "cleanup must run before Cancel returns")
	assert.Equal(t, StateCancelled, task.State())
	assert.False(t, s.Running(key))

	assert.False(t, s.Cancel(key), "second cancel finds nothing live")
}

func TestScheduler_RestartCancelsPrevious(t *testing.T) {
	s := NewScheduler(nil)
	key := Key{Kind: KindFlash, Target: "salt"}

	var firstCleaned atomic.Bool
	first := s.Start(key, blockUntilCancelled(&firstCleaned))

	var sawCleanup atomic.Bool
	second := s.Start(key, func(ctx context.Context) {
		sawCleanup.Store(firstCleaned.Load())
		<-ctx.Done()
	})

	assert.Equal(t, StateCancelled, first.State())
	assert.True(t, s.Running(key))

	second.Cancel()
	assert.True(t, sawCleanup.Load(), "new task started before old cleanup ran")
	assert.False(t, s.Running(key))
}

func TestScheduler_KeysAreIndependent(t *testing.T) {
	s := NewScheduler(nil)
	a := Key{Kind: KindFlash, Target: "salt"}
	b := Key{Kind: KindFlash, Target: "sugar"}

	var ca, cb atomic.Bool
	s.Start(a, blockUntilCancelled(&ca))
	s.Start(b, blockUntilCancelled(&cb))

	s.Cancel(a)
	assert.True(t, ca.Load())
	assert.False(t, cb.Load())
	assert.True(t, s.Running(b))
	assert.ElementsMatch(t, []Key{b}, s.Live())

	s.Shutdown()
	assert.True(t, cb.Load())
}

func TestScheduler_StartAfterShutdown(t *testing.T) {
	s := NewScheduler(nil)
	s.Shutdown()

	var ran atomic.Bool
	task := s.Start(Key{Kind: KindFlash, Target: "x"}, func(ctx context.Context) { ran.Store(true) })

	<-task.Done()
	assert.Equal(t, StateCancelled, task.State())
	assert.False(t, ran.Load())
}

func TestScheduler_ConcurrentRestarts(t *testing.T) {
	s := NewScheduler(nil)
	key := Key{Kind: KindFlash, Target: "salt"}

	var active, maxActive atomic.Int32
	body := func(ctx context.Context) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		<-ctx.Done()
		active.Add(-1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Start(key, body)
		}()
	}
	wg.Wait()
	s.Shutdown()

	assert.Equal(t, int32(1), maxActive.Load(), "two tasks shared one key")
	assert.Equal(t, int32(0), active.Load())
}

func TestFlash(t *testing.T) {
	v := scene.NewMemoryVisual("salt")
	s := NewScheduler(nil)

	task := s.Start(Key{Kind: KindFlash, Target: v.ID()}, Flash(v, 20*time.Millisecond))
	assert.Eventually(t, v.Active, waitFor, time.Millisecond)

	<-task.Done()
	assert.False(t, v.Active())
	assert.Equal(t, StateCompleted, task.State())
}

func TestFlash_CancelHides(t *testing.T) {
	v := scene.NewMemoryVisual("salt")
	s := NewScheduler(nil)
	key := Key{Kind: KindFlash, Target: v.ID()}

	s.Start(key, Flash(v, time.Hour))
	assert.Eventually(t, v.Active, waitFor, time.Millisecond)

	s.Cancel(key)
	assert.False(t, v.Active())
}

func TestCountdown_ReachesZero(t *testing.T) {
	s := NewScheduler(nil)

	var mu sync.Mutex
	var shown []int
	zero := make(chan struct{})

	task := s.Start(Key{Kind: KindCountdown, Target: "timer"}, Countdown(3, time.Millisecond,
		func(n int) {
			mu.Lock()
			shown = append(shown, n)
			mu.Unlock()
		},
		func() { close(zero) },
	))

	select {
	case <-zero:
	case <-time.After(waitFor):
		t.Fatal("onZero not called")
	}
	<-task.Done()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 1, 0}, shown)
	assert.Equal(t, StateCompleted, task.State())
}

func TestCountdown_CancelSkipsOnZero(t *testing.T) {
	s := NewScheduler(nil)
	key := Key{Kind: KindCountdown, Target: "timer"}

	var fired atomic.Bool
	s.Start(key, Countdown(1000, time.Hour, nil, func() { fired.Store(true) }))
	s.Cancel(key)

	assert.False(t, fired.Load())
}

func TestBlink_CleanupFromEitherPhase(t *testing.T) {
	for _, phase := range []bool{true, false} {
		name := "hidden phase"
		if phase {
			name = "shown phase"
		}
		t.Run(name, func(t *testing.T) {
			v := scene.NewMemoryVisual("display")
			audio := &scene.MemoryAudio{}
			s := NewScheduler(nil)
			key := Key{Kind: KindBlink, Target: "timer"}

			s.Start(key, Blink(v, audio, time.Millisecond))
			require.Eventually(t, audio.Playing, waitFor, time.Millisecond)
			assert.True(t, audio.Looping())

			require.Eventually(t, func() bool { return v.Active() == phase }, waitFor, 100*time.Microsecond)
			s.Cancel(key)

			assert.True(t, v.Active(), "display must be left shown")
			assert.False(t, audio.Playing(), "audio must be silent")
		})
	}
}

func TestBlink_RestartFromCleanState(t *testing.T) {
	v := scene.NewMemoryVisual("display")
	audio := &scene.MemoryAudio{}
	s := NewScheduler(nil)
	key := Key{Kind: KindBlink, Target: "timer"}

	s.Start(key, Blink(v, audio, time.Millisecond))
	s.Start(key, Blink(v, audio, time.Millisecond))
	require.Eventually(t, audio.Playing, waitFor, time.Millisecond)

	s.Shutdown()
	assert.True(t, v.Active())
	assert.False(t, audio.Playing())
}
