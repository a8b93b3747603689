package effects

import (
	"context"
	"time"

	"github.com/kitchenlens/highlighter/internal/scene"
)

// Flash shows v for d and hides it again. Cancellation hides it immediately.
func Flash(v scene.Visual, d time.Duration) Func {
	return func(ctx context.Context) {
		v.SetActive(true)
		defer v.SetActive(false)

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// Countdown decrements from remaining once per tick, calling display with the
// new value each time. When it reaches zero it calls onZero, which is skipped
// if the countdown was cancelled first.
func Countdown(remaining int, tick time.Duration, display func(int), onZero func()) Func {
	return func(ctx context.Context) {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for remaining > 0 {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				remaining--
				if display != nil {
					display(remaining)
				}
			}
		}

		if onZero != nil && ctx.Err() == nil {
			onZero()
		}
	}
}

// Blink loops audio and toggles v every interval until cancelled. On exit the
// visual is left shown and the audio stopped, whichever phase it was in.
func Blink(v scene.Visual, audio scene.AudioCue, interval time.Duration) Func {
	return func(ctx context.Context) {
		if audio != nil {
			audio.Play(true)
			defer audio.Stop()
		}
		defer v.SetActive(true)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		shown := true
		v.SetActive(shown)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				shown = !shown
				v.SetActive(shown)
			}
		}
	}
}
