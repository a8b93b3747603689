// Package procedure walks the steps of a recipe, highlighting the object each
// step needs.
package procedure

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/registry"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// ErrNoSteps is returned when no recipe with steps is loaded.
var ErrNoSteps = errors.New("procedure has no steps")

// Highlighter is the part of the engine the navigator drives.
type Highlighter interface {
	SetVisible(name string, show bool) error
}

// Position is the navigator's view of the current step.
type Position struct {
	RecipeID string    `json:"recipeId"`
	Title    string    `json:"title"`
	Index    int       `json:"index"`
	Total    int       `json:"total"`
	Step     core.Step `json:"step"`
	HasVideo bool      `json:"hasVideo"`
	// Counter is the "n / total" label shown next to the instruction.
	Counter string `json:"counter"`
}

func counter(index, total int) string {
	if total == 0 {
		return "-- / --"
	}
	return fmt.Sprintf("%d / %d", index+1, total)
}

// Navigator is safe for concurrent use.
type Navigator struct {
	mu     sync.Mutex
	recipe core.Recipe
	index  int
	lit    string

	highlighter Highlighter
	popup       VideoPopup
	logger      logging.Logger
}

// NewNavigator returns an empty navigator. popup may be nil.
func NewNavigator(h Highlighter, popup VideoPopup, logger logging.Logger) *Navigator {
	return &Navigator{
		highlighter: h,
		popup:       popup,
		logger:      logging.OrNop(logger),
	}
}

// Load replaces the recipe from src and moves to its first step.
func (n *Navigator) Load(ctx context.Context, src Source) error {
	recipe, err := src.Load(ctx)
	if err != nil {
		return err
	}
	n.SetRecipe(recipe)
	return nil
}

// SetRecipe replaces the recipe and moves to its first step.
func (n *Navigator) SetRecipe(recipe core.Recipe) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recipe = recipe
	n.index = 0
	n.logger.Info("procedure loaded", "recipe", recipe.ID, "steps", len(recipe.Steps))
	n.applyLocked()
}

// Next advances one step. It reports false at the last step.
func (n *Navigator) Next() (Position, bool) {
	return n.move(1)
}

// Previous goes back one step. It reports false at the first step.
func (n *Navigator) Previous() (Position, bool) {
	return n.move(-1)
}

// Current returns the current step, or ErrNoSteps.
func (n *Navigator) Current() (Position, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.recipe.Steps) == 0 {
		return Position{}, ErrNoSteps
	}
	return n.positionLocked(), nil
}

// WatchVideo opens the popup for the current step. It reports whether the
// step had a video to play.
func (n *Navigator) WatchVideo() bool {
	n.mu.Lock()
	if len(n.recipe.Steps) == 0 {
		n.mu.Unlock()
		return false
	}
	url := n.recipe.Steps[n.index].VideoURL
	n.mu.Unlock()

	if url == "" || n.popup == nil {
		return false
	}
	n.popup.OpenAndPlay(url)
	return true
}

// CloseVideo closes the popup.
func (n *Navigator) CloseVideo() {
	if n.popup != nil {
		n.popup.Close()
	}
}

func (n *Navigator) move(delta int) (Position, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.recipe.Steps) == 0 {
		return Position{}, false
	}
	next := n.index + delta
	if next < 0 || next >= len(n.recipe.Steps) {
		return n.positionLocked(), false
	}
	n.index = next
	n.applyLocked()
	return n.positionLocked(), true
}

func (n *Navigator) positionLocked() Position {
	step := n.recipe.Steps[n.index]
	return Position{
		RecipeID: n.recipe.ID,
		Title:    n.recipe.Title,
		Index:    n.index,
		Total:    len(n.recipe.Steps),
		Step:     step,
		HasVideo: step.VideoURL != "",
		Counter:  counter(n.index, len(n.recipe.Steps)),
	}
}

// applyLocked moves the highlight from the previous step's object to the
// current one.
func (n *Navigator) applyLocked() {
	want := ""
	if len(n.recipe.Steps) > 0 {
		want = n.recipe.Steps[n.index].ObjectName
		n.logger.Debug("procedure step", "index", n.index+1, "total", len(n.recipe.Steps))
	}
	if want == n.lit {
		return
	}
	if n.lit != "" {
		n.setVisible(n.lit, false)
	}
	n.lit = ""
	if want != "" && n.setVisible(want, true) {
		n.lit = want
	}
}

func (n *Navigator) setVisible(name string, show bool) bool {
	if n.highlighter == nil {
		return false
	}
	err := n.highlighter.SetVisible(name, show)
	switch {
	case err == nil:
		return true
	case errors.Is(err, registry.ErrNotRegistered):
		n.logger.Info("step object not placed yet", "name", name)
	default:
		n.logger.Warn("step highlight failed", "name", name, "show", show, "error", err)
	}
	return false
}
