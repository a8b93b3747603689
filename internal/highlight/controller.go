// Package highlight implements the name-keyed show/hide surface used by the
// guided procedure.
package highlight

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/kitchenlens/highlighter/internal/effects"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/registry"
	"github.com/kitchenlens/highlighter/internal/scene"
)

// maxHintDistance bounds how far a suggested name may be from the request.
const maxHintDistance = 3

// BeamFactory creates the shared emphasis beam on first use.
type BeamFactory func() (scene.Beam, error)

// Controller toggles highlight visuals and the shared beam.
type Controller struct {
	reg       *registry.Registry
	scheduler *effects.Scheduler
	newBeam   BeamFactory
	logger    logging.Logger

	beam   scene.Beam
	target *registry.Entry
}

// New returns a controller. newBeam may be nil when no beam is wanted.
func New(reg *registry.Registry, scheduler *effects.Scheduler, newBeam BeamFactory, logger logging.Logger) *Controller {
	return &Controller{
		reg:       reg,
		scheduler: scheduler,
		newBeam:   newBeam,
		logger:    logging.OrNop(logger),
	}
}

// SetVisible shows or hides the highlight for name. Failures are logged and
// returned; none of them changes any state.
func (c *Controller) SetVisible(name string, show bool) error {
	e, err := c.reg.ByName(name)
	if err != nil {
		if hint := c.closestName(name); hint != "" {
			err = fmt.Errorf("%w (closest match %q)", err, hint)
		}
		c.logger.Error("highlight request for unknown object", "name", name, "error", err)
		return err
	}

	if !c.reg.Registered(e) {
		err := fmt.Errorf("%s: %w", name, registry.ErrNotRegistered)
		c.logger.Warn("highlight request before registration", "name", name, "show", show)
		return err
	}

	if e.Visual == nil {
		err := fmt.Errorf("%s: %w", name, registry.ErrNoVisual)
		c.logger.Error("highlight request for object without visual", "name", name)
		return err
	}

	c.cancelFlash(e)

	if err := c.reg.SetVisible(e, show); err != nil {
		return err
	}
	e.Visual.SetActive(show)

	if show {
		c.aim(e)
	} else if c.target == e && c.beam != nil {
		c.beam.SetActive(false)
		c.target = nil
	}

	c.logger.Debug("highlight updated", "name", name, "show", show)
	return nil
}

// ClearAll hides every visual and the beam. Registration is untouched.
func (c *Controller) ClearAll() {
	for _, e := range c.reg.Entries() {
		if e.Visual == nil {
			continue
		}
		c.cancelFlash(e)
		e.Visual.SetActive(false)
		_ = c.reg.SetVisible(e, false)
	}
	if c.beam != nil {
		c.beam.SetActive(false)
	}
	c.target = nil
}

// BeamTarget returns the name the beam currently points at, if it is active.
func (c *Controller) BeamTarget() string {
	if c.target == nil {
		return ""
	}
	return c.target.Name
}

func (c *Controller) aim(e *registry.Entry) {
	if c.newBeam == nil {
		return
	}
	if c.beam == nil {
		b, err := c.newBeam()
		if err != nil {
			c.logger.Error("creating emphasis beam", "error", err)
			return
		}
		c.beam = b
	}
	c.beam.SetTarget(e.Visual)
	c.beam.SetActive(true)
	c.target = e
}

func (c *Controller) cancelFlash(e *registry.Entry) {
	if c.scheduler != nil {
		c.scheduler.Cancel(effects.FlashKey(e.Name))
	}
}

func (c *Controller) closestName(name string) string {
	want := strings.ToLower(name)
	best, bestDist := "", maxHintDistance+1
	for _, candidate := range c.reg.Names() {
		d := levenshtein.ComputeDistance(want, strings.ToLower(candidate))
		if d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}
