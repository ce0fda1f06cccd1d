package service

import (
	"context"
	"fmt"
	"testing"

	"seckill-service/internal/models"
	"seckill-service/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActivities struct {
	activities map[string]*models.Activity
	paused     []string
	failList   bool
}

func newFakeActivities() *fakeActivities {
	return &fakeActivities{activities: make(map[string]*models.Activity)}
}

func (f *fakeActivities) add(skuID string, total int64) {
	f.activities[skuID] = &models.Activity{
		SKUID:      skuID,
		TotalStock: total,
		Status:     models.ActivityStatusActive,
	}
}

func (f *fakeActivities) GetActivityBySKU(ctx context.Context, skuID string) (*models.Activity, error) {
	activity, ok := f.activities[skuID]
	if !ok {
		return nil, nil
	}
	return activity, nil
}

func (f *fakeActivities) ListActiveActivities(ctx context.Context) ([]models.Activity, error) {
	if f.failList {
		return nil, fmt.Errorf("db unavailable")
	}
	var out []models.Activity
	for _, a := range f.activities {
		if a.Status == models.ActivityStatusActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeActivities) PauseActivity(ctx context.Context, skuID string) error {
	f.paused = append(f.paused, skuID)
	f.activities[skuID].Status = models.ActivityStatusPaused
	return nil
}

type fakeReconcileStore struct {
	ledgerNet  map[string]int64
	orderedQty map[string]int64
}

func newFakeReconcileStore() *fakeReconcileStore {
	return &fakeReconcileStore{
		ledgerNet:  make(map[string]int64),
		orderedQty: make(map[string]int64),
	}
}

func (f *fakeReconcileStore) LedgerNetQuantity(ctx context.Context, skuID string) (int64, error) {
	return f.ledgerNet[skuID], nil
}

func (f *fakeReconcileStore) SumOrderedQuantity(ctx context.Context, skuID string) (int64, error) {
	return f.orderedQty[skuID], nil
}

type fakeAlerter struct {
	discrepancyReports []*models.ReconciliationReport
	errors             []error
}

func (f *fakeAlerter) SendDiscrepancyAlert(report *models.ReconciliationReport) {
	f.discrepancyReports = append(f.discrepancyReports, report)
}

func (f *fakeAlerter) SendErrorAlert(err error) {
	f.errors = append(f.errors, err)
}

type fakePauser struct {
	soldOut []string
}

func (f *fakePauser) NotifySoldOut(ctx context.Context, skuID string) {
	f.soldOut = append(f.soldOut, skuID)
}

type reconcileFixture struct {
	engine     *ReconciliationEngine
	client     *redisclient.Client
	activities *fakeActivities
	store      *fakeReconcileStore
	alerter    *fakeAlerter
	pauser     *fakePauser
	mr         *miniredis.Miniredis
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	activities := newFakeActivities()
	store := newFakeReconcileStore()
	alerter := &fakeAlerter{}
	pauser := &fakePauser{}

	return &reconcileFixture{
		engine:     NewReconciliationEngine(client, activities, store, alerter, pauser, 10),
		client:     client,
		activities: activities,
		store:      store,
		alerter:    alerter,
		pauser:     pauser,
		mr:         mr,
	}
}

// seedConsistent warms a SKU and records a matching durable trail.
func (fx *reconcileFixture) seedConsistent(t *testing.T, skuID string, total, sold int64) {
	t.Helper()
	ctx := context.Background()

	fx.activities.add(skuID, total)
	require.NoError(t, fx.client.WarmupStock(ctx, skuID, total))
	if sold > 0 {
		_, err := fx.client.DeductStock(ctx, skuID, int(sold))
		require.NoError(t, err)
	}
	fx.store.ledgerNet[skuID] = sold
	fx.store.orderedQty[skuID] = sold
}

func TestReconcilePasses(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.seedConsistent(t, "sku-1", 100, 30)

	result, err := fx.engine.Reconcile(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Discrepancies)
	assert.Equal(t, int64(70), result.CacheStock)
	assert.Equal(t, int64(30), result.CacheSoldCount)
}

func TestReconcileDetectsConservationViolation(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.seedConsistent(t, "sku-1", 100, 30)

	// Someone poked the counter outside the scripts.
	fx.mr.Set("stock:sku-1", "75")

	result, err := fx.engine.Reconcile(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Len(t, result.Discrepancies, 1)
}

func TestReconcileDetectsLedgerDrift(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.seedConsistent(t, "sku-1", 100, 30)

	fx.store.ledgerNet["sku-1"] = 25

	result, err := fx.engine.Reconcile(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.False(t, result.Passed)
}

func TestReconcileDetectsOrderDrift(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.seedConsistent(t, "sku-1", 100, 30)

	fx.store.orderedQty["sku-1"] = 35

	result, err := fx.engine.Reconcile(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.False(t, result.Passed)
}

func TestReconcileToleratesOrderLag(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.seedConsistent(t, "sku-1", 100, 30)

	// The ingest pipeline has not flushed yet; ordered < sold is fine.
	fx.store.orderedQty["sku-1"] = 20

	result, err := fx.engine.Reconcile(context.Background(), "sku-1")
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestReconcileUnknownSKU(t *testing.T) {
	fx := newReconcileFixture(t)

	_, err := fx.engine.Reconcile(context.Background(), "nope")
	require.Error(t, err)
}

func TestFullReconcile(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.seedConsistent(t, "sku-1", 100, 30)
	fx.seedConsistent(t, "sku-2", 50, 10)
	fx.store.ledgerNet["sku-2"] = 99

	report, err := fx.engine.FullReconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.CheckedSKUs)
	assert.Equal(t, 1, report.FailedSKUs)
	assert.False(t, report.Passed())
}

func TestRunScheduledCleanRun(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.seedConsistent(t, "sku-1", 100, 30)

	fx.engine.RunScheduled(context.Background())

	assert.Empty(t, fx.alerter.discrepancyReports)
	assert.Empty(t, fx.alerter.errors)
	assert.Empty(t, fx.activities.paused)
}

func TestRunScheduledAlertsOnDiscrepancy(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.seedConsistent(t, "sku-1", 100, 30)
	fx.store.ledgerNet["sku-1"] = 0

	fx.engine.RunScheduled(context.Background())

	assert.Len(t, fx.alerter.discrepancyReports, 1)
}

func TestRunScheduledSwallowsErrors(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.activities.failList = true

	// Must not panic; the failure goes to the alerter.
	fx.engine.RunScheduled(context.Background())

	assert.Len(t, fx.alerter.errors, 1)
}

func TestRunScheduledPausesOnLargeDrift(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.seedConsistent(t, "sku-1", 100, 30)

	// Drift of 25 against a threshold of 10.
	fx.mr.Set("stock:sku-1", "95")

	fx.engine.RunScheduled(context.Background())

	assert.Equal(t, []string{"sku-1"}, fx.activities.paused)
	assert.Equal(t, []string{"sku-1"}, fx.pauser.soldOut)
}

func TestRunScheduledLeavesSmallDriftRunning(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.seedConsistent(t, "sku-1", 100, 30)
	fx.seedConsistent(t, "sku-2", 100, 0)
	fx.seedConsistent(t, "sku-3", 100, 0)

	// Drift of 2, under the threshold, with most SKUs healthy.
	fx.mr.Set("stock:sku-1", "72")

	fx.engine.RunScheduled(context.Background())

	assert.Len(t, fx.alerter.discrepancyReports, 1)
	assert.Empty(t, fx.activities.paused)
	assert.Empty(t, fx.pauser.soldOut)
}

func TestExecuteManualReconciliationPropagatesErrors(t *testing.T) {
	fx := newReconcileFixture(t)
	fx.activities.failList = true

	_, err := fx.engine.ExecuteManualReconciliation(context.Background())
	require.Error(t, err)
}
