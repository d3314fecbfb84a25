package services

import (
	"context"
	"time"

	"github.com/tastebase/tastebase/internal/imagesync"
	"github.com/tastebase/tastebase/internal/logging"
	"github.com/tastebase/tastebase/internal/repositories/tombstones"
)

// Source is anything holding a pending set the scheduler can drain: the
// per-kind propagation engines and the image sync managers.
type Source interface {
	Name() string
	PendingCount() int
	Sweep(ctx context.Context) (succeeded, failed int)
}

// ImageSource adapts an image sync manager's pending-upload set to the
// scheduler.
func ImageSource(name string, m *imagesync.Manager) Source {
	return &imageSource{name: name, m: m}
}

type imageSource struct {
	name string
	m    *imagesync.Manager
}

func (s *imageSource) Name() string      { return s.name }
func (s *imageSource) PendingCount() int { return s.m.PendingCount() }
func (s *imageSource) Sweep(ctx context.Context) (int, int) {
	return s.m.SweepPending(ctx)
}

// Scheduler periodically sweeps every source's pending set. The sweep
// interval starts at Base, doubles after each sweep with no success at all,
// caps at Max, and snaps back to Base the moment anything succeeds.
type Scheduler struct {
	sources    []Source
	tombstones tombstones.Repository
	retention  time.Duration
	base       time.Duration
	max        time.Duration
	log        logging.Logger

	interval time.Duration
}

func NewScheduler(sources []Source, tombs tombstones.Repository, retention, base, max time.Duration, log logging.Logger) *Scheduler {
	if base <= 0 {
		base = 2 * time.Minute
	}
	if max < base {
		max = time.Hour
	}
	return &Scheduler{
		sources:    sources,
		tombstones: tombs,
		retention:  retention,
		base:       base,
		max:        max,
		log:        log.With("component", "scheduler"),
		interval:   base,
	}
}

// Interval reports the delay before the next sweep.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run sweeps until ctx is cancelled. Cancellation is honored between
// sweeps, never mid-item.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// SweepOnce drains every source once and adjusts the backoff interval.
// Returns whether any item succeeded.
func (s *Scheduler) SweepOnce(ctx context.Context) bool {
	var succeeded, failed int
	for _, src := range s.sources {
		if src.PendingCount() == 0 {
			continue
		}
		ok, bad := src.Sweep(ctx)
		succeeded += ok
		failed += bad
		s.log.Debug(ctx, "swept source", "source", src.Name(), "succeeded", ok, "failed", bad)
	}

	if s.tombstones != nil && s.retention > 0 {
		cutoff := time.Now().Add(-s.retention)
		if n, err := s.tombstones.Cleanup(ctx, cutoff); err != nil {
			s.log.Warn(ctx, "tombstone cleanup failed", "error", err)
		} else if n > 0 {
			s.log.Info(ctx, "cleaned up tombstones", "count", n)
		}
	}

	s.advance(succeeded > 0, failed > 0)
	return succeeded > 0
}

// advance applies the backoff policy. An idle sweep (nothing pending) keeps
// the current interval.
func (s *Scheduler) advance(anySuccess, anyFailure bool) {
	switch {
	case anySuccess:
		s.interval = s.base
	case anyFailure:
		s.interval *= 2
		if s.interval > s.max {
			s.interval = s.max
		}
	}
}
