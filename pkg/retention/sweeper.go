// Package retention periodically re-applies the version history bound
// across every workflow in the store. Pruning already happens inline on
// each backup; the sweeper catches histories written by older builds or by
// backends restored from a dump.
package retention

import (
	"context"
	"log/slog"

	"github.com/flowpatch/flowpatch/pkg/services"
	"github.com/robfig/cron/v3"
)

// Sweeper runs scheduled retention sweeps over the version store.
type Sweeper struct {
	versions *services.Versions
	logger   *slog.Logger
	schedule string
	cron     *cron.Cron
}

// NewSweeper creates a sweeper with a cron schedule, e.g. "@hourly".
func NewSweeper(versions *services.Versions, logger *slog.Logger, schedule string) *Sweeper {
	return &Sweeper{
		versions: versions,
		logger:   logger.With("module", "retention"),
		schedule: schedule,
	}
}

// Start registers the sweep on the schedule and starts the cron runner.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Retention sweeper started", "schedule", s.schedule)

	return nil
}

// Stop halts the cron runner and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
}

// Sweep prunes every workflow history down to the retention bound. Errors
// on one workflow do not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) {
	workflowIDs, err := s.versions.Workflows(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Retention sweep failed to list workflows", "error", err)

		return
	}

	pruned := 0

	for _, workflowID := range workflowIDs {
		count, err := s.versions.PruneVersions(ctx, workflowID, s.versions.MaxVersions())
		if err != nil {
			s.logger.WarnContext(ctx, "Retention sweep failed for workflow",
				"workflow_id", workflowID, "error", err)

			continue
		}

		pruned += count
	}

	if pruned > 0 {
		s.logger.InfoContext(ctx, "Retention sweep pruned versions", "pruned", pruned)
	}
}
