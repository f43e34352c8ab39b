package scheduler

import (
	"context"
	"errors"
	"time"

	"finance/internal/audit"
	"finance/internal/services"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type RecurringSweeper interface {
	RunSweep(ctx context.Context) (services.SweepReport, error)
}

type AgingSweeper interface {
	RunAgingSweep(ctx context.Context) (services.AgingReport, error)
}

type ChangeRecorder interface {
	Record(ctx context.Context, actorID string, changes []audit.Change)
}

// Scheduler drives the periodic sweeps: recurring generation and invoice
// aging. Sweep changes are audited without an actor.
type Scheduler struct {
	recurring      RecurringSweeper
	aging          AgingSweeper
	recorder       ChangeRecorder
	recurringEvery time.Duration
	agingEvery     time.Duration
	logger         *zap.Logger
}

func New(recurring RecurringSweeper, aging AgingSweeper, recorder ChangeRecorder, recurringEvery, agingEvery time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		recurring:      recurring,
		aging:          aging,
		recorder:       recorder,
		recurringEvery: recurringEvery,
		agingEvery:     agingEvery,
		logger:         logger,
	}
}

// Run sweeps once right away and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.loop(ctx, "recurring", s.recurringEvery, s.sweepRecurring)
		return nil
	})
	g.Go(func() error {
		s.loop(ctx, "aging", s.agingEvery, s.sweepAging)
		return nil
	})
	return g.Wait()
}

// RunOnce runs the aging sweep and then the recurring sweep, for external
// cron triggers.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return errors.Join(s.sweepAging(ctx), s.sweepRecurring(ctx))
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, sweep func(context.Context) error) {
	s.logger.Info("scheduler: started", zap.String("sweep", name), zap.Duration("interval", every))
	_ = sweep(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: shutting down", zap.String("sweep", name))
			return
		case <-ticker.C:
			_ = sweep(ctx)
		}
	}
}

func (s *Scheduler) sweepRecurring(ctx context.Context) error {
	report, err := s.recurring.RunSweep(ctx)
	if errors.Is(err, services.ErrSweepInProgress) {
		s.logger.Debug("scheduler: recurring sweep still running, skipping tick")
		return nil
	}
	if err != nil {
		s.logger.Error("scheduler: recurring sweep failed", zap.Error(err))
		return err
	}
	s.recorder.Record(ctx, "", report.Changes)
	return errors.Join(report.Errors...)
}

func (s *Scheduler) sweepAging(ctx context.Context) error {
	report, err := s.aging.RunAgingSweep(ctx)
	if err != nil {
		s.logger.Error("scheduler: aging sweep failed", zap.Error(err))
		return err
	}
	s.recorder.Record(ctx, "", report.Changes)
	return errors.Join(report.Errors...)
}
