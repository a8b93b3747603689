package procedure

import (
	"sync"

	"github.com/kitchenlens/highlighter/internal/scene"
)

// VideoPopup plays a step's reference video.
type VideoPopup interface {
	// OpenAndPlay shows the popup and plays url. An empty url is ignored.
	OpenAndPlay(url string)
	Close()
}

// MemoryPopup is a VideoPopup that records what it was asked to play. When
// Root is set its activation follows the popup.
type MemoryPopup struct {
	Root scene.Visual

	mu    sync.Mutex
	open  bool
	url   string
	plays int
}

// NewMemoryPopup returns a closed popup, hiding root if given.
func NewMemoryPopup(root scene.Visual) *MemoryPopup {
	p := &MemoryPopup{Root: root}
	p.Close()
	return p
}

func (p *MemoryPopup) OpenAndPlay(url string) {
	if url == "" {
		return
	}
	p.mu.Lock()
	p.open = true
	p.url = url
	p.plays++
	p.mu.Unlock()
	if p.Root != nil {
		p.Root.SetActive(true)
	}
}

func (p *MemoryPopup) Close() {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()
	if p.Root != nil {
		p.Root.SetActive(false)
	}
}

// Open reports whether the popup is showing.
func (p *MemoryPopup) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// URL returns the last url played.
func (p *MemoryPopup) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Plays counts OpenAndPlay calls that started playback.
func (p *MemoryPopup) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}
