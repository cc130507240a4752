package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/voxel-agent/internal/events"
	"github.com/cartridge/voxel-agent/internal/metrics"
)

// DefaultInterval is how often snapshots are written when unconfigured.
const DefaultInterval = 60 * time.Second

// ErrNotRestored is returned by Flush until Restore has run, so an empty
// table never replaces the last good snapshot.
var ErrNotRestored = errors.New("q-table not restored yet")

// Table is what the scheduler persists. Serialize must return a consistent
// copy even while the table is being updated.
type Table interface {
	Serialize() ([]byte, error)
	Deserialize(data []byte) error
	Len() int
}

// Scheduler writes the table to a backend on an interval and on demand.
type Scheduler struct {
	table     Table
	backend   Backend
	interval  time.Duration
	agentID   string
	metrics   *metrics.Collector
	publisher events.Publisher
	logger    zerolog.Logger

	// Serializes flushes from the ticker, shutdown and the status API.
	flushMu   sync.Mutex
	lastSaved time.Time
	lastErr   error
	onSaved   func(states int)
	restored  bool
}

// NewScheduler builds a scheduler. A non-positive interval falls back to
// DefaultInterval.
func NewScheduler(table Table, backend Backend, interval time.Duration, agentID string,
	collector *metrics.Collector, publisher events.Publisher, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		table:     table,
		backend:   backend,
		interval:  interval,
		agentID:   agentID,
		metrics:   collector,
		publisher: publisher,
		logger:    logger.With().Str("component", "persistence").Str("backend", backend.Name()).Logger(),
	}
}

// OnSaved registers fn to run after every successful write. Set it before
// Run is started.
func (s *Scheduler) OnSaved(fn func(states int)) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.onSaved = fn
}

// Restore loads the last snapshot into the table. A missing or unreadable
// snapshot leaves the table empty; it never fails the caller. Flushes are
// accepted once Restore has returned.
func (s *Scheduler) Restore(ctx context.Context) bool {
	defer s.markRestored()

	data, err := s.backend.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		s.logger.Info().Msg("No snapshot found, starting with an empty q-table")
		return false
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load snapshot, starting with an empty q-table")
		return false
	}
	if err := s.table.Deserialize(data); err != nil {
		s.logger.Warn().Err(err).Msg("Snapshot is malformed, starting with an empty q-table")
		return false
	}
	s.logger.Info().Int("states", s.table.Len()).Msg("Restored q-table from snapshot")
	return true
}

func (s *Scheduler) markRestored() {
	s.flushMu.Lock()
	s.restored = true
	s.flushMu.Unlock()
}

// Restored reports whether Restore has run.
func (s *Scheduler) Restored() bool {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.restored
}

// Run flushes on every interval until ctx is done. Failed writes are logged
// and retried on the next interval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("Starting snapshot scheduler")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Snapshot scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Flush(ctx); errors.Is(err, ErrNotRestored) {
				s.logger.Debug().Msg("Skipping snapshot until the q-table is restored")
			}
		}
	}
}

// Flush writes the current table now. It returns ErrNotRestored before
// Restore has run.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if !s.restored {
		return ErrNotRestored
	}

	start := time.Now()
	states := s.table.Len()
	data, err := s.table.Serialize()
	if err == nil {
		err = s.backend.Save(ctx, data)
	}

	event := events.SnapshotEvent{AgentID: s.agentID, Backend: s.backend.Name(), States: states, Bytes: len(data)}
	if err != nil {
		s.lastErr = err
		event.Error = err.Error()
		s.metrics.SnapshotFailed(s.backend.Name(), err)
	} else {
		s.lastErr = nil
		s.lastSaved = time.Now()
		s.metrics.SnapshotSaved(s.backend.Name(), states, len(data), time.Since(start))
		if s.onSaved != nil {
			s.onSaved(states)
		}
	}
	if perr := s.publisher.PublishSnapshot(ctx, event); perr != nil {
		s.logger.Warn().Err(perr).Msg("Failed to publish snapshot event")
	}
	return err
}

// LastSaved returns when the last successful write finished and the error of
// the most recent attempt.
func (s *Scheduler) LastSaved() (time.Time, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	return s.lastSaved, s.lastErr
}

// Backend returns the underlying backend.
func (s *Scheduler) Backend() Backend { return s.backend }
