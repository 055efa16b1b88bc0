package worker

import (
	"context"
	"time"

	"innkeeper/internal/models"

	"github.com/rs/zerolog"
)

// Sweeper closes overdue checked-in stays.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (models.SweepReport, error)
}

// SweepScheduler runs the overdue sweep on a fixed interval in addition to
// the on-read sweeps the reception views perform.
type SweepScheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zerolog.Logger
}

func NewSweepScheduler(sweeper Sweeper, interval time.Duration, logger *zerolog.Logger) *SweepScheduler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SweepScheduler{sweeper: sweeper, interval: interval, logger: logger}
}

// Start blocks until ctx is done. A non-positive interval disables it.
func (s *SweepScheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("background sweep disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info().Dur("interval", s.interval).Msg("background sweep started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SweepScheduler) runOnce(ctx context.Context) {
	report, err := s.sweeper.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("background sweep failed")
		return
	}
	if report.Examined > 0 {
		s.logger.Info().
			Int("closed", report.Closed).
			Int("cancelled", report.Cancelled).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Msg("background sweep finished")
	}
}
