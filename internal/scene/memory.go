package scene

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// ErrTrackerClosed is returned by MemoryTracker after Close.
var ErrTrackerClosed = errors.New("tracker closed")

// MemoryAnchor is an Anchor held in process memory.
type MemoryAnchor struct {
	id   string
	pose core.Pose
}

func (a *MemoryAnchor) ID() string      { return a.id }
func (a *MemoryAnchor) Pose() core.Pose { return a.pose }

// MemoryTracker is the headless tracking subsystem. Detections are fed in with
// Deliver and forwarded to the subscribed callback while scanning is enabled.
type MemoryTracker struct {
	mu       sync.Mutex
	enabled  bool
	closed   bool
	handler  func([]core.DetectionEvent)
	anchors  []*MemoryAnchor
	disables int
}

// NewMemoryTracker returns a tracker that starts with scanning enabled.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{enabled: true}
}

// Subscribe installs fn as the detection callback. Only one subscriber is kept.
func (t *MemoryTracker) Subscribe(fn func([]core.DetectionEvent)) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTrackerClosed
	}
	t.handler = fn
	return &memorySubscription{tracker: t}, nil
}

// SetEnabled turns scanning on or off.
func (t *MemoryTracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled && !enabled {
		t.disables++
	}
	t.enabled = enabled
}

// Enabled reports whether scanning is on.
func (t *MemoryTracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Disables counts enabled→disabled transitions.
func (t *MemoryTracker) Disables() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disables
}

// CreateAnchor records a new anchor at pose.
func (t *MemoryTracker) CreateAnchor(pose core.Pose) (Anchor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := &MemoryAnchor{id: uuid.NewString(), pose: pose}
	t.anchors = append(t.anchors, a)
	return a, nil
}

// Anchors returns every anchor created so far.
func (t *MemoryTracker) Anchors() []*MemoryAnchor {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*MemoryAnchor, len(t.anchors))
	copy(out, t.anchors)
	return out
}

// Deliver forwards a batch to the subscriber. It reports false when scanning
// is disabled or nobody is subscribed. The callback runs without the tracker
// lock held so it may call back into SetEnabled.
func (t *MemoryTracker) Deliver(batch []core.DetectionEvent) bool {
	t.mu.Lock()
	fn := t.handler
	enabled := t.enabled
	t.mu.Unlock()

	if fn == nil || !enabled {
		return false
	}
	fn(batch)
	return true
}

// Close drops the subscriber and rejects later subscriptions.
func (t *MemoryTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.handler = nil
}

type memorySubscription struct {
	once    sync.Once
	tracker *MemoryTracker
}

func (s *memorySubscription) Close() {
	s.once.Do(func() {
		s.tracker.mu.Lock()
		s.tracker.handler = nil
		s.tracker.mu.Unlock()
	})
}

// MemoryVisual is a Visual that records its state.
type MemoryVisual struct {
	mu          sync.Mutex
	id          string
	active      bool
	anchor      Anchor
	offset      core.Position3D
	activations int
}

// NewMemoryVisual returns an inactive, unparented visual.
func NewMemoryVisual(id string) *MemoryVisual {
	return &MemoryVisual{id: id}
}

func (v *MemoryVisual) ID() string { return v.id }

func (v *MemoryVisual) SetActive(active bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if active && !v.active {
		v.activations++
	}
	v.active = active
}

func (v *MemoryVisual) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *MemoryVisual) Attach(anchor Anchor, offset core.Position3D) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.anchor = anchor
	v.offset = offset
}

// Parent returns the anchor the visual is attached to, if any.
func (v *MemoryVisual) Parent() Anchor {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.anchor
}

// Offset returns the local offset applied at attach time.
func (v *MemoryVisual) Offset() core.Position3D {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

// Activations counts inactive→active transitions.
func (v *MemoryVisual) Activations() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.activations
}

// MemoryBeam is a Beam that records its target.
type MemoryBeam struct {
	mu      sync.Mutex
	target  Visual
	active  bool
	retargs int
}

func (b *MemoryBeam) SetTarget(v Visual) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = v
	b.retargs++
}

func (b *MemoryBeam) SetActive(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = active
}

// Target returns the current beam target.
func (b *MemoryBeam) Target() Visual {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.target
}

// Active reports whether the beam is drawn.
func (b *MemoryBeam) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// MemoryAudio is an AudioCue that records play state.
type MemoryAudio struct {
	mu      sync.Mutex
	playing bool
	looping bool
	plays   int
}

func (a *MemoryAudio) Play(loop bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = true
	a.looping = loop
	a.plays++
}

func (a *MemoryAudio) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = false
	a.looping = false
}

func (a *MemoryAudio) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}

// Looping reports whether the current playback loops.
func (a *MemoryAudio) Looping() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.looping
}

// MemoryText is a TextDisplay that records its readout.
type MemoryText struct {
	*MemoryVisual
	mu    sync.Mutex
	text  string
	color string
}

// NewMemoryText returns a white, empty, inactive display.
func NewMemoryText(id string) *MemoryText {
	return &MemoryText{MemoryVisual: NewMemoryVisual(id), color: ColorWhite}
}

func (t *MemoryText) SetText(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = text
}

func (t *MemoryText) SetColor(color string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.color = color
}

// Text returns the current readout.
func (t *MemoryText) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// Color returns the current readout colour.
func (t *MemoryText) Color() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.color
}

// MemoryScene resolves visual handles to MemoryVisuals, creating them on demand.
type MemoryScene struct {
	mu      sync.Mutex
	visuals map[string]*MemoryVisual
}

// NewMemoryScene returns an empty scene.
func NewMemoryScene() *MemoryScene {
	return &MemoryScene{visuals: make(map[string]*MemoryVisual)}
}

// Resolve returns the visual for handle. An empty handle resolves to nothing.
func (s *MemoryScene) Resolve(handle string) (Visual, bool) {
	if handle == "" {
		return nil, false
	}
	return s.Visual(handle), true
}

// Visual returns the concrete visual for handle, creating it if needed.
func (s *MemoryScene) Visual(handle string) *MemoryVisual {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visuals[handle]
	if !ok {
		v = NewMemoryVisual(handle)
		s.visuals[handle] = v
	}
	return v
}
