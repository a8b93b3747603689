// Package completion stops detection once every catalogued object has been
// registered.
package completion

import (
	"sync"
	"sync/atomic"

	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/registry"
	"github.com/kitchenlens/highlighter/internal/scene"
)

// Hook is called once, with the catalogue size, when registration completes.
type Hook func(total int)

// Monitor issues the stop-detection signal exactly once.
type Monitor struct {
	reg     *registry.Registry
	scanner scene.Scanner
	logger  logging.Logger

	fired atomic.Bool

	mu    sync.Mutex
	hooks []Hook
}

// New returns a monitor for reg that disables scanner on completion.
func New(reg *registry.Registry, scanner scene.Scanner, logger logging.Logger) *Monitor {
	return &Monitor{
		reg:     reg,
		scanner: scanner,
		logger:  logging.OrNop(logger),
	}
}

// OnComplete registers a hook. Hooks added after completion never fire.
func (m *Monitor) OnComplete(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// Check fires the completion signal if every entry is registered. It returns
// true only for the call that fired it.
func (m *Monitor) Check() bool {
	if m.fired.Load() || !m.reg.AllRegistered() {
		return false
	}
	if !m.fired.CompareAndSwap(false, true) {
		return false
	}

	_, total := m.reg.Counts()
	if m.scanner != nil {
		m.scanner.SetEnabled(false)
	}
	m.logger.Info("all objects registered, detection stopped", "total", total)

	m.mu.Lock()
	hooks := append([]Hook(nil), m.hooks...)
	m.mu.Unlock()
	for _, h := range hooks {
		h(total)
	}
	return true
}

// Complete reports whether the signal has fired.
func (m *Monitor) Complete() bool {
	return m.fired.Load()
}
