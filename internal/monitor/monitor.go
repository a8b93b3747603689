package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kitchenlens/highlighter/internal/engine"
	"github.com/kitchenlens/highlighter/internal/influx"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/procedure"
	"github.com/kitchenlens/highlighter/internal/timer"
)

// EngineSource is satisfied by *engine.Engine.
type EngineSource interface {
	Status() engine.Status
}

// TimerSource is satisfied by *timer.Timer.
type TimerSource interface {
	Snapshot() timer.Snapshot
}

// StepSource is satisfied by *procedure.Navigator.
type StepSource interface {
	Current() (procedure.Position, error)
}

// PointWriter is the influx sink. *influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Engine EngineSource
	Timer  TimerSource
	Steps  StepSource
	Influx PointWriter
	Logger logging.Logger
	// Path is the status file; empty disables the file.
	Path     string
	Interval time.Duration
}

// Report is one status sample.
type Report struct {
	Time   time.Time           `json:"time"`
	Engine engine.Status       `json:"engine"`
	Timer  *timer.Snapshot     `json:"timer,omitempty"`
	Step   *procedure.Position `json:"step,omitempty"`
}

// Service periodically samples the engine and collaborators, rewriting the
// status file and writing a status point to influx.
type Service struct {
	deps      Dependencies
	logger    logging.Logger
	isRunning bool
	mu        sync.Mutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:     deps,
		logger:   logging.OrNop(deps.Logger),
		stopChan: make(chan struct{}),
	}
}

// Collect samples every configured source.
func (s *Service) Collect() Report {
	r := Report{Time: time.Now()}
	if s.deps.Engine != nil {
		r.Engine = s.deps.Engine.Status()
	}
	if s.deps.Timer != nil {
		snap := s.deps.Timer.Snapshot()
		r.Timer = &snap
	}
	if s.deps.Steps != nil {
		if pos, err := s.deps.Steps.Current(); err == nil {
			r.Step = &pos
		}
	}
	return r
}

// Tick writes one sample to the status file and influx.
func (s *Service) Tick(ctx context.Context) Report {
	r := s.Collect()

	if s.deps.Path != "" {
		if err := writeStatusFile(s.deps.Path, r); err != nil {
			s.logger.Error("Error writing status file", "path", s.deps.Path, "error", err)
		}
	}

	if s.deps.Influx != nil {
		remaining := 0
		if r.Timer != nil {
			remaining = r.Timer.Remaining
		}
		p := influx.StatusPoint(r.Engine.Session.ID, r.Engine.Registered, r.Engine.Total, remaining, r.Time)
		if err := s.deps.Influx.WritePoint(ctx, "", p); err != nil {
			s.logger.Debug("status point not written", "error", err)
		}
	}
	return r
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		s.logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval, "path", s.deps.Path)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}

// writeStatusFile replaces path with r through a temp file so readers never
// see a partial report.
func writeStatusFile(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
