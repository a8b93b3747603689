// Package session holds the identity of the current engine run.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kitchenlens/highlighter/pkg/core"
)

// DefaultName is used when no session name is configured.
const DefaultName = "kitchen"

// New creates a session with a fresh id, started now.
func New(name string, objects int) core.Session {
	if name == "" {
		name = DefaultName
	}
	return core.Session{
		ID:        uuid.NewString(),
		Name:      name,
		StartedAt: time.Now(),
		Objects:   objects,
	}
}

// Context holds the current session and whether it has ended.
type Context struct {
	mu      sync.RWMutex
	session core.Session
	endedAt time.Time
}

// NewContext creates a Context holding s.
func NewContext(s core.Session) *Context {
	return &Context{session: s}
}

// Get returns the current session.
func (c *Context) Get() core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Set replaces the session and clears the end marker.
func (c *Context) Set(s core.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.endedAt = time.Time{}
}

// End marks the session ended. Only the first call counts.
func (c *Context) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endedAt.IsZero() {
		c.endedAt = time.Now()
	}
}

// Ended reports whether End was called.
func (c *Context) Ended() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.endedAt.IsZero()
}

// Elapsed is the session's running time, frozen once it has ended.
func (c *Context) Elapsed() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.endedAt.IsZero() {
		return c.endedAt.Sub(c.session.StartedAt)
	}
	return time.Since(c.session.StartedAt)
}
