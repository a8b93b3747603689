// Package anchor binds catalogued objects to world-fixed anchors.
package anchor

import (
	"fmt"
	"time"

	"github.com/kitchenlens/highlighter/internal/effects"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/registry"
	"github.com/kitchenlens/highlighter/internal/scene"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// Binding ties an entry to the anchor created at its first detected pose.
// It lives for the rest of the session.
type Binding struct {
	Entry     *registry.Entry
	Anchor    scene.Anchor
	Pose      core.Pose
	CreatedAt time.Time
}

// Completion is told about every successful bind.
type Completion interface {
	Check() bool
}

// Binder creates anchors and marks entries registered.
type Binder struct {
	reg        *registry.Registry
	factory    scene.AnchorFactory
	scheduler  *effects.Scheduler
	completion Completion
	flash      time.Duration
	logger     logging.Logger
	onBind     []func(*Binding)
	now        func() time.Time
}

// Option configures a Binder.
type Option func(*Binder)

// WithFlash sets how long the registration flash stays on. Zero disables it.
func WithFlash(d time.Duration) Option {
	return func(b *Binder) { b.flash = d }
}

// WithCompletion sets the monitor checked after each bind.
func WithCompletion(c Completion) Option {
	return func(b *Binder) { b.completion = c }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(b *Binder) { b.logger = l }
}

// OnBind adds a callback run after each successful bind, before completion
// is checked.
func OnBind(fn func(*Binding)) Option {
	return func(b *Binder) { b.onBind = append(b.onBind, fn) }
}

// NewBinder returns a binder creating anchors through factory.
func NewBinder(reg *registry.Registry, factory scene.AnchorFactory, scheduler *effects.Scheduler, opts ...Option) *Binder {
	b := &Binder{
		reg:       reg,
		factory:   factory,
		scheduler: scheduler,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrNop(b.logger)
	return b
}

// Bind anchors e at pose. Binding an entry that is already registered is a
// caller error and returns ErrAlreadyRegistered without touching any state.
func (b *Binder) Bind(e *registry.Entry, pose core.Pose) (*Binding, error) {
	if b.reg.Registered(e) {
		return nil, fmt.Errorf("bind %s: %w", e.Name, registry.ErrAlreadyRegistered)
	}

	a, err := b.factory.CreateAnchor(pose)
	if err != nil {
		return nil, fmt.Errorf("bind %s: creating anchor: %w", e.Name, err)
	}

	if e.Visual != nil {
		e.Visual.Attach(a, e.Offset)
	}

	if err := b.reg.MarkRegistered(e, a.ID()); err != nil {
		return nil, fmt.Errorf("bind %s: %w", e.Name, err)
	}

	binding := &Binding{
		Entry:     e,
		Anchor:    a,
		Pose:      pose,
		CreatedAt: b.now(),
	}

	b.logger.Info("object registered",
		"name", e.Name,
		"code", string(e.Code),
		"anchor", a.ID(),
	)

	if e.Visual != nil && b.flash > 0 && b.scheduler != nil {
		b.scheduler.Start(effects.FlashKey(e.Name), effects.Flash(e.Visual, b.flash))
	}

	for _, fn := range b.onBind {
		fn(binding)
	}

	if b.completion != nil {
		b.completion.Check()
	}

	return binding, nil
}
