// Package scene declares the contracts between the engine and the rendering /
// tracking host. The engine never renders anything itself; it only flips the
// activation state of handles it was given.
package scene

import "github.com/kitchenlens/highlighter/pkg/core"

// Anchor is a world-fixed reference frame created at a detected pose.
type Anchor interface {
	ID() string
	Pose() core.Pose
}

// Visual is a virtual object whose activation the engine controls.
type Visual interface {
	ID() string
	SetActive(active bool)
	Active() bool
	// Attach reparents the visual onto the anchor and places it at offset
	// relative to the anchor origin.
	Attach(anchor Anchor, offset core.Position3D)
}

// Beam is the single shared emphasis beam.
type Beam interface {
	SetTarget(v Visual)
	SetActive(active bool)
}

// AudioCue is a sound the alarm loop can start and silence.
type AudioCue interface {
	Play(loop bool)
	Stop()
	Playing() bool
}

// TextDisplay is a visual carrying a textual readout.
type TextDisplay interface {
	Visual
	SetText(text string)
	SetColor(color string)
}

// Subscription is the handle returned by Tracker.Subscribe.
type Subscription interface {
	Close()
}

// Scanner is the part of the tracker the completion monitor needs.
type Scanner interface {
	SetEnabled(enabled bool)
}

// AnchorFactory is the part of the tracker the binder needs.
type AnchorFactory interface {
	CreateAnchor(pose core.Pose) (Anchor, error)
}

// Tracker is the external tracking subsystem.
type Tracker interface {
	Scanner
	AnchorFactory
	Subscribe(fn func([]core.DetectionEvent)) (Subscription, error)
}

// VisualResolver maps configured visual handles to live visuals.
type VisualResolver func(handle string) (Visual, bool)

// Display colours used by the timer readout.
const (
	ColorWhite = "white"
	ColorRed   = "red"
)
