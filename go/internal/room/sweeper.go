package room

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically removes inactive members and expired empty rooms.
type Sweeper struct {
	app               *App
	clock             clockwork.Clock
	interval          time.Duration
	inactivityTimeout time.Duration
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(app *App, clock clockwork.Clock, interval, inactivityTimeout time.Duration) *Sweeper {
	if inactivityTimeout <= 0 {
		inactivityTimeout = DefaultInactivityTimeout
	}
	return &Sweeper{
		app:               app,
		clock:             clock,
		interval:          interval,
		inactivityTimeout: inactivityTimeout,
	}
}

// Run sweeps on every tick until ctx is cancelled. A failed sweep is
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.interval).
		Dur("inactivity_timeout", s.inactivityTimeout).
		Msg("room sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room sweeper shutting down")
			return
		case <-ticker.Chan():
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := s.clock.Now()
	report, err := s.app.Sweep(ctx, s.inactivityTimeout)
	if err != nil {
		log.Error().Err(err).Msg("room sweep failed")
		return
	}
	if report.Removed == 0 && len(report.Deleted) == 0 && len(report.Skipped) == 0 {
		return
	}
	log.Info().
		Int("members_removed", report.Removed).
		Strs("rooms_updated", report.Updated).
		Strs("rooms_deleted", report.Deleted).
		Strs("rooms_skipped", report.Skipped).
		Dur("took", s.clock.Since(start)).
		Msg("room sweep completed")
}
