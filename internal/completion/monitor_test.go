package completion

import (
	"sync"
	"testing"

	"github.com/kitchenlens/highlighter/internal/registry"
	"github.com/kitchenlens/highlighter/internal/scene"
	"github.com/kitchenlens/highlighter/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*registry.Registry, *scene.MemoryTracker, *Monitor) {
	t.Helper()
	reg, err := registry.New([]core.ObjectSpec{
		{Code: "Q1", Name: "Salt"},
		{Code: "Q2", Name: "Sugar"},
	}, nil)
	require.NoError(t, err)
	tracker := scene.NewMemoryTracker()
	return reg, tracker, New(reg, tracker, nil)
}

func register(t *testing.T, reg *registry.Registry, name string) {
	t.Helper()
	e, err := reg.ByName(name)
	require.NoError(t, err)
	require.NoError(t, reg.MarkRegistered(e, "anchor-"+name))
}

func TestCheck_NotComplete(t *testing.T) {
	reg, tracker, m := setup(t)
	register(t, reg, "Salt")

	assert.False(t, m.Check())
	assert.False(t, m.Complete())
	assert.True(t, tracker.Enabled())
}

func TestCheck_FiresOnce(t *testing.T) {
	reg, tracker, m := setup(t)

	var totals []int
	m.OnComplete(func(total int) { totals = append(totals, total) })

	register(t, reg, "Salt")
	register(t, reg, "Sugar")

	assert.True(t, m.Check())
	assert.False(t, m.Check())
	assert.False(t, m.Check())

	assert.True(t, m.Complete())
	assert.False(t, tracker.Enabled())
	assert.Equal(t, 1, tracker.Disables())
	assert.Equal(t, []int{2}, totals)
}

func TestCheck_ConcurrentCallersFireOnce(t *testing.T) {
	reg, tracker, m := setup(t)
	register(t, reg, "Salt")
	register(t, reg, "Sugar")

	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Check() {
				mu.Lock()
				fired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, tracker.Disables())
}

func TestCheck_NilScanner(t *testing.T) {
	reg, _, _ := setup(t)
	m := New(reg, nil, nil)
	register(t, reg, "Salt")
	register(t, reg, "Sugar")

	assert.True(t, m.Check())
}
