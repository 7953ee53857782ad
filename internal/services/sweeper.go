package services

import (
	"context"
	"time"

	"lexlab/internal/config"
	"lexlab/internal/repository"
	"lexlab/internal/runner"

	"go.uber.org/zap"
)

// Sweeper closes out sessions whose participants walked away: any open
// session idle past the configured threshold is marked abandoned and its
// runner torn down so no timer keeps firing for it.
type Sweeper struct {
	log     *zap.Logger
	manager *runner.Manager
}

func NewSweeper(log *zap.Logger, manager *runner.Manager) *Sweeper {
	return &Sweeper{
		log:     log,
		manager: manager,
	}
}

// Start runs the sweeper in a goroutine.
func (s *Sweeper) Start() {
	s.log.Info("Starting abandoned-session sweeper...")
	go func() {
		interval := time.Duration(config.Conf.Experiment.SweepMinutes) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			<-ticker.C
			s.runSweep()
		}
	}()
}

func (s *Sweeper) runSweep() {
	ctx := context.Background()
	cutoff := time.Now().Add(-time.Duration(config.Conf.Experiment.AbandonMinutes) * time.Minute)
	s.log.Debug("Running abandoned-session sweep", zap.Time("cutoff", cutoff))

	stale, err := repository.ListStaleInProgress(ctx, cutoff)
	if err != nil {
		s.log.Error("Failed to list stale sessions", zap.Error(err))
		return
	}

	for _, p := range stale {
		if err := repository.MarkAbandoned(ctx, p.ID); err != nil {
			s.log.Error("Failed to mark session abandoned", zap.String("code", p.Code), zap.Error(err))
			continue
		}
		s.manager.Close(p.ID)
		s.log.Info("Session marked abandoned",
			zap.String("code", p.Code),
			zap.Int("cursor", p.CurrentSequenceIndex),
		)
	}
}
