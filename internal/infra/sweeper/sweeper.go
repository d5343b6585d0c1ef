package sweeper

import (
	"context"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/rs/zerolog/log"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

const DefaultInterval = time.Minute

// BatchExpirer is the part of the batch manager the sweeper drives.
type BatchExpirer interface {
	List(ctx context.Context, filter storage.BatchFilter) ([]*withdrawal.Batch, error)
	Expire(ctx context.Context, batchID string) (*withdrawal.Batch, error)
}

// Sweeper cancels open batches whose approval window has passed.
type Sweeper struct {
	batches  BatchExpirer
	clock    time2.Clock
	interval time.Duration
}

func New(batches BatchExpirer, clock time2.Clock, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Sweeper{batches: batches, clock: clock, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Starting batch expiry sweeper")
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Batch expiry sweep failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping batch expiry sweeper")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce expires every overdue open batch and returns how many it closed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	open, err := s.batches.List(ctx, storage.BatchFilter{
		Statuses: []withdrawal.BatchStatus{withdrawal.BatchStatusPending, withdrawal.BatchStatusApproved},
	})
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	expired := 0
	for _, b := range open {
		if !now.After(b.ExpiresAt) {
			continue
		}
		if _, err := s.batches.Expire(ctx, b.BatchID); err != nil {
			// lost a race against approve, execute or cancel
			if withdrawal.IsKind(err, withdrawal.ErrKindState) {
				log.Debug().Err(err).Str("batch_id", b.BatchID).Msg("Skipping batch that changed state during sweep")
				continue
			}
			log.Warn().Err(err).Str("batch_id", b.BatchID).Msg("Failed to expire batch")
			continue
		}
		expired++
		log.Info().Str("batch_id", b.BatchID).Time("expires_at", b.ExpiresAt).Msg("Expired withdrawal batch")
	}
	return expired, nil
}
