package worker

import (
	"context"
	"time"

	"seckill-service/internal/util"

	"go.uber.org/zap"
)

// TimeoutSweeper times out orders left pending past a cutoff.
type TimeoutSweeper interface {
	HandleTimeoutOrders(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// TimeoutJob periodically sweeps orders that overstayed the payment window.
// A failed sweep logs and waits for the next tick.
type TimeoutJob struct {
	sweeper    TimeoutSweeper
	interval   time.Duration
	timeout    time.Duration
	batchLimit int
	logger     *zap.Logger
}

// NewTimeoutJob creates a new timeout job
func NewTimeoutJob(sweeper TimeoutSweeper, interval, timeout time.Duration, batchLimit int) *TimeoutJob {
	if batchLimit <= 0 {
		batchLimit = 100
	}
	return &TimeoutJob{
		sweeper:    sweeper,
		interval:   interval,
		timeout:    timeout,
		batchLimit: batchLimit,
		logger:     util.GetLogger(),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (j *TimeoutJob) Start(ctx context.Context) {
	j.logger.Info("Timeout job started",
		zap.Duration("interval", j.interval),
		zap.Duration("payment_window", j.timeout))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Timeout job stopped")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-j.timeout)
			if _, err := j.sweeper.HandleTimeoutOrders(ctx, cutoff, j.batchLimit); err != nil {
				j.logger.Error("Timeout sweep failed", zap.Error(err))
			}
		}
	}
}

// ScheduledReconciler is the catch-and-alert reconciliation entrypoint.
type ScheduledReconciler interface {
	RunScheduled(ctx context.Context)
}

// ReconcileJob runs the reconciliation engine on a fixed interval.
type ReconcileJob struct {
	reconciler ScheduledReconciler
	interval   time.Duration
	logger     *zap.Logger
}

// NewReconcileJob creates a new reconcile job
func NewReconcileJob(reconciler ScheduledReconciler, interval time.Duration) *ReconcileJob {
	return &ReconcileJob{
		reconciler: reconciler,
		interval:   interval,
		logger:     util.GetLogger(),
	}
}

// Start runs the reconcile loop until ctx is cancelled.
func (j *ReconcileJob) Start(ctx context.Context) {
	j.logger.Info("Reconcile job started",
		zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Reconcile job stopped")
			return
		case <-ticker.C:
			j.reconciler.RunScheduled(ctx)
		}
	}
}
