// Package registry holds the catalogue of trackable objects and their
// registration and visibility state.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kitchenlens/highlighter/internal/scene"
	"github.com/kitchenlens/highlighter/pkg/core"
)

var (
	// ErrUnrecognized is returned by Lookup for a code not in the catalogue.
	ErrUnrecognized = errors.New("unrecognized code")
	// ErrEmptyCode is returned by Lookup for a detection with no payload.
	ErrEmptyCode = errors.New("empty code")
	// ErrAlreadyRegistered is returned when binding an entry twice.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrNotFound is returned for a name not in the catalogue.
	ErrNotFound = errors.New("object not found")
	// ErrNotRegistered is returned when showing an entry before its anchor exists.
	ErrNotRegistered = errors.New("object not registered")
	// ErrNoVisual is returned for an entry without a highlight visual.
	ErrNoVisual = errors.New("object has no highlight visual")
)

// Entry is one catalogued object. Its mutable fields are only changed through
// the owning Registry.
type Entry struct {
	Code   core.Code
	Name   string
	Visual scene.Visual
	Offset core.Position3D

	registered bool
	visible    bool
	anchorID   string
}

// Snapshot is a read-only copy of an entry's state.
type Snapshot struct {
	Code       core.Code `json:"code"`
	Name       string    `json:"name"`
	HasVisual  bool      `json:"hasVisual"`
	Registered bool      `json:"registered"`
	Visible    bool      `json:"visible"`
	AnchorID   string    `json:"anchorId,omitempty"`
}

// Registry is the catalogue. Lookups are safe from any goroutine; mutation is
// expected from the engine loop only but is locked regardless.
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry
	byCode  map[core.Code]*Entry
	byName  map[string]*Entry
}

// New builds a registry from the catalogue. Duplicate codes or names and
// empty codes or names are rejected. Visual handles that do not resolve leave
// the entry without a visual.
func New(specs []core.ObjectSpec, resolve scene.VisualResolver) (*Registry, error) {
	r := &Registry{
		entries: make([]*Entry, 0, len(specs)),
		byCode:  make(map[core.Code]*Entry, len(specs)),
		byName:  make(map[string]*Entry, len(specs)),
	}

	for i, spec := range specs {
		if spec.Code.Empty() {
			return nil, fmt.Errorf("catalogue entry %d: %w", i, ErrEmptyCode)
		}
		if spec.Name == "" {
			return nil, fmt.Errorf("catalogue entry %d (%s): empty name", i, spec.Code)
		}
		if _, dup := r.byCode[spec.Code]; dup {
			return nil, fmt.Errorf("catalogue entry %d: duplicate code %q", i, spec.Code)
		}
		if _, dup := r.byName[spec.Name]; dup {
			return nil, fmt.Errorf("catalogue entry %d: duplicate name %q", i, spec.Name)
		}

		e := &Entry{
			Code:   spec.Code,
			Name:   spec.Name,
			Offset: spec.Offset,
		}
		if resolve != nil && spec.Visual != "" {
			if v, ok := resolve(spec.Visual); ok {
				e.Visual = v
			}
		}

		r.entries = append(r.entries, e)
		r.byCode[e.Code] = e
		r.byName[e.Name] = e
	}

	return r, nil
}

// Lookup matches a decoded code against the catalogue. It never returns a nil
// entry together with a nil error.
func (r *Registry) Lookup(code core.Code) (*Entry, error) {
	if code.Empty() {
		return nil, ErrEmptyCode
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognized, code)
	}
	return e, nil
}

// ByName returns the entry with the given display name.
func (r *Registry) ByName(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e, nil
}

// Entries returns the entries in catalogue order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns every display name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the catalogue size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Registered reports whether e has been bound to an anchor.
func (r *Registry) Registered(e *Entry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.registered
}

// Visible reports whether e is currently highlighted.
func (r *Registry) Visible(e *Entry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.visible
}

// MarkRegistered flips e to registered. The flag never reverts.
func (r *Registry) MarkRegistered(e *Entry, anchorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.registered {
		return fmt.Errorf("%s: %w", e.Name, ErrAlreadyRegistered)
	}
	e.registered = true
	e.anchorID = anchorID
	return nil
}

// SetVisible records the highlight flag. Showing an unregistered entry is
// refused so that visible always implies registered.
func (r *Registry) SetVisible(e *Entry, visible bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if visible && !e.registered {
		return fmt.Errorf("%s: %w", e.Name, ErrNotRegistered)
	}
	e.visible = visible
	return nil
}

// Counts returns the number of registered entries and the catalogue size.
func (r *Registry) Counts() (registered, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.registered {
			registered++
		}
	}
	return registered, len(r.entries)
}

// AllRegistered reports whether every entry is registered. An empty catalogue
// is never complete.
func (r *Registry) AllRegistered() bool {
	registered, total := r.Counts()
	return total > 0 && registered == total
}

// Snapshot copies the state of every entry in catalogue order.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Snapshot{
			Code:       e.Code,
			Name:       e.Name,
			HasVisual:  e.Visual != nil,
			Registered: e.registered,
			Visible:    e.visible,
			AnchorID:   e.anchorID,
		})
	}
	return out
}
