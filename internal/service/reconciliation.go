package service

import (
	"context"
	"fmt"
	"time"

	"seckill-service/internal/models"
	"seckill-service/internal/redisclient"
	"seckill-service/internal/util"

	"go.uber.org/zap"
)

// ActivityProvider supplies the flash-sale activities to reconcile.
type ActivityProvider interface {
	GetActivityBySKU(ctx context.Context, skuID string) (*models.Activity, error)
	ListActiveActivities(ctx context.Context) ([]models.Activity, error)
	PauseActivity(ctx context.Context, skuID string) error
}

// ReconcileStore exposes the durable aggregates a reconciliation run
// compares the cache against.
type ReconcileStore interface {
	LedgerNetQuantity(ctx context.Context, skuID string) (int64, error)
	SumOrderedQuantity(ctx context.Context, skuID string) (int64, error)
}

// Alerter receives reconciliation outcomes that need human attention.
type Alerter interface {
	SendDiscrepancyAlert(report *models.ReconciliationReport)
	SendErrorAlert(err error)
}

// SalesPauser stops admission for a SKU whose counters have drifted.
type SalesPauser interface {
	NotifySoldOut(ctx context.Context, skuID string)
}

// ReconciliationEngine cross-checks the cache counters against the durable
// ledger and order rows. Scheduled runs catch and alert on every failure;
// manual runs propagate errors to the caller.
type ReconciliationEngine struct {
	redis          *redisclient.Client
	activities     ActivityProvider
	store          ReconcileStore
	alerter        Alerter
	pauser         SalesPauser
	pauseThreshold int64
	logger         *zap.Logger
}

// NewReconciliationEngine creates a new reconciliation engine
func NewReconciliationEngine(redis *redisclient.Client, activities ActivityProvider, store ReconcileStore, alerter Alerter, pauser SalesPauser, pauseThreshold int64) *ReconciliationEngine {
	return &ReconciliationEngine{
		redis:          redis,
		activities:     activities,
		store:          store,
		alerter:        alerter,
		pauser:         pauser,
		pauseThreshold: pauseThreshold,
		logger:         util.GetLogger(),
	}
}

// Reconcile checks one SKU's counters against the durable record:
// remaining+sold must equal the configured total, sold must equal the
// ledger's net deductions, and sold must cover the quantity on live orders.
func (r *ReconciliationEngine) Reconcile(ctx context.Context, skuID string) (*models.ReconciliationResult, error) {
	ctx, span := util.StartSpan(ctx, "ReconciliationEngine.Reconcile")
	defer span.End()

	activity, err := r.activities.GetActivityBySKU(ctx, skuID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity for %s: %w", skuID, err)
	}
	if activity == nil {
		return nil, fmt.Errorf("no activity configured for sku %s", skuID)
	}

	remaining, sold, err := r.redis.GetStock(ctx, skuID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache counters for %s: %w", skuID, err)
	}

	ledgerNet, err := r.store.LedgerNetQuantity(ctx, skuID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger for %s: %w", skuID, err)
	}

	orderedQty, err := r.store.SumOrderedQuantity(ctx, skuID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum order quantities for %s: %w", skuID, err)
	}

	result := &models.ReconciliationResult{
		SKUID:          skuID,
		CacheStock:     remaining,
		CacheSoldCount: sold,
		Passed:         true,
	}

	if remaining+sold != activity.TotalStock {
		result.Passed = false
		result.Discrepancies = append(result.Discrepancies, fmt.Sprintf(
			"conservation violated: remaining %d + sold %d != total %d",
			remaining, sold, activity.TotalStock))
	}

	if sold != ledgerNet {
		result.Passed = false
		result.Discrepancies = append(result.Discrepancies, fmt.Sprintf(
			"ledger drift: cache sold %d != ledger net %d",
			sold, ledgerNet))
	}

	if orderedQty > sold {
		result.Passed = false
		result.Discrepancies = append(result.Discrepancies, fmt.Sprintf(
			"order drift: ordered quantity %d exceeds cache sold %d",
			orderedQty, sold))
	}

	if !result.Passed {
		util.ReconciliationDiscrepancies.Add(float64(len(result.Discrepancies)))
		r.logger.Warn("Reconciliation found discrepancies",
			zap.String("sku_id", skuID),
			zap.Strings("discrepancies", result.Discrepancies))
	}
	return result, nil
}

// FullReconcile checks every active SKU. A failure on one SKU is recorded
// as a failed result and the run continues.
func (r *ReconciliationEngine) FullReconcile(ctx context.Context) (*models.ReconciliationReport, error) {
	ctx, span := util.StartSpan(ctx, "ReconciliationEngine.FullReconcile")
	defer span.End()

	activities, err := r.activities.ListActiveActivities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active activities: %w", err)
	}

	report := &models.ReconciliationReport{RanAt: time.Now()}
	for _, activity := range activities {
		report.CheckedSKUs++
		result, err := r.Reconcile(ctx, activity.SKUID)
		if err != nil {
			r.logger.Error("Failed to reconcile sku",
				zap.String("sku_id", activity.SKUID),
				zap.Error(err))
			report.FailedSKUs++
			report.Results = append(report.Results, models.ReconciliationResult{
				SKUID:         activity.SKUID,
				Passed:        false,
				Discrepancies: []string{err.Error()},
			})
			continue
		}
		if !result.Passed {
			report.FailedSKUs++
		}
		report.Results = append(report.Results, *result)
	}
	return report, nil
}

// RunScheduled is the periodic entrypoint. It never lets an error or panic
// escape into the scheduler: failures are logged and alerted, and a drift
// past the pause threshold stops sales on the affected SKU.
func (r *ReconciliationEngine) RunScheduled(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			util.ReconciliationRunsTotal.WithLabelValues("panic").Inc()
			r.logger.Error("Reconciliation run panicked",
				zap.Any("panic", rec))
		}
	}()

	report, err := r.FullReconcile(ctx)
	if err != nil {
		util.ReconciliationRunsTotal.WithLabelValues("error").Inc()
		r.logger.Error("Scheduled reconciliation failed", zap.Error(err))
		r.alerter.SendErrorAlert(err)
		return
	}

	if report.Passed() {
		util.ReconciliationRunsTotal.WithLabelValues("clean").Inc()
		r.logger.Info("Reconciliation passed",
			zap.Int("checked_skus", report.CheckedSKUs))
		return
	}

	util.ReconciliationRunsTotal.WithLabelValues("discrepancy").Inc()
	r.alerter.SendDiscrepancyAlert(report)

	for _, result := range report.Results {
		if result.Passed {
			continue
		}
		if !r.shouldPause(report, &result) {
			continue
		}
		r.logger.Warn("Pausing sales for drifted sku",
			zap.String("sku_id", result.SKUID))
		if err := r.activities.PauseActivity(ctx, result.SKUID); err != nil {
			r.logger.Error("Failed to pause activity",
				zap.String("sku_id", result.SKUID),
				zap.Error(err))
		}
		r.pauser.NotifySoldOut(ctx, result.SKUID)
	}
}

// ExecuteManualReconciliation runs a full pass on demand and returns the
// report and any error to the operator instead of swallowing them.
func (r *ReconciliationEngine) ExecuteManualReconciliation(ctx context.Context) (*models.ReconciliationReport, error) {
	return r.FullReconcile(ctx)
}

// shouldPause applies the pause policy: a SKU is paused when its absolute
// drift reaches the threshold, or when more than half of the checked SKUs
// failed, which points at a systemic fault rather than a stray counter.
func (r *ReconciliationEngine) shouldPause(report *models.ReconciliationReport, result *models.ReconciliationResult) bool {
	if report.CheckedSKUs > 0 && report.FailedSKUs*2 > report.CheckedSKUs {
		return true
	}
	drift := result.CacheStock + result.CacheSoldCount
	if activity, err := r.activities.GetActivityBySKU(context.Background(), result.SKUID); err == nil && activity != nil {
		drift -= activity.TotalStock
	}
	if drift < 0 {
		drift = -drift
	}
	return drift >= r.pauseThreshold
}

// LogAlerter writes alerts to the structured log. It stands in for a real
// paging integration.
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a new log alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{logger: util.GetLogger()}
}

func (a *LogAlerter) SendDiscrepancyAlert(report *models.ReconciliationReport) {
	a.logger.Error("ALERT: reconciliation discrepancies detected",
		zap.Int("checked_skus", report.CheckedSKUs),
		zap.Int("failed_skus", report.FailedSKUs),
		zap.Time("ran_at", report.RanAt))
}

func (a *LogAlerter) SendErrorAlert(err error) {
	a.logger.Error("ALERT: reconciliation run failed", zap.Error(err))
}
