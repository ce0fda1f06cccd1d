package service

import (
	"context"
	"testing"
	"time"

	"seckill-service/internal/models"
	"seckill-service/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, rate, capacity int64) (*AdmissionGate, *redisclient.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewAdmissionGate(client, rate, capacity), client, mr
}

func TestTryAcquireTokenAdmits(t *testing.T) {
	gate, _, _ := newTestGate(t, 10, 5)

	result := gate.TryAcquireToken(context.Background(), "user-1", "sku-1")
	assert.Equal(t, models.CodeSuccess, result.Code)
	assert.NotEmpty(t, result.QueueToken)
	assert.Equal(t, int64(0), result.EstimatedWait)
}

func TestTryAcquireTokenQueuesWhenExhausted(t *testing.T) {
	gate, _, _ := newTestGate(t, 10, 2)
	fixed := time.Now()
	gate.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result := gate.TryAcquireToken(ctx, "user-1", "sku-1")
		require.Equal(t, models.CodeSuccess, result.Code)
	}

	result := gate.TryAcquireToken(ctx, "user-1", "sku-1")
	assert.Equal(t, models.CodeQueuing, result.Code)
	assert.Empty(t, result.QueueToken)
	assert.GreaterOrEqual(t, result.EstimatedWait, int64(0))
}

func TestTryAcquireTokenRefusalDoesNotDrainBucket(t *testing.T) {
	gate, client, _ := newTestGate(t, 10, 1)
	fixed := time.Now()
	gate.now = func() time.Time { return fixed }
	ctx := context.Background()

	result := gate.TryAcquireToken(ctx, "user-1", "sku-1")
	require.Equal(t, models.CodeSuccess, result.Code)

	// Repeated refused attempts leave the stored count where it is.
	for i := 0; i < 5; i++ {
		result = gate.TryAcquireToken(ctx, "user-1", "sku-1")
		require.Equal(t, models.CodeQueuing, result.Code)
	}

	tokens, _, err := client.GetBucketState(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), tokens)
}

func TestTryAcquireTokenSoldOut(t *testing.T) {
	gate, client, _ := newTestGate(t, 10, 5)
	ctx := context.Background()

	require.NoError(t, client.SetSoldOut(ctx, "sku-1"))

	result := gate.TryAcquireToken(ctx, "user-1", "sku-1")
	assert.Equal(t, models.CodeSoldOut, result.Code)
	assert.Empty(t, result.QueueToken)
}

func TestTryAcquireTokenMissingIdentity(t *testing.T) {
	gate, _, _ := newTestGate(t, 10, 5)
	ctx := context.Background()

	result := gate.TryAcquireToken(ctx, "", "sku-1")
	assert.Equal(t, models.CodeQueuing, result.Code)

	result = gate.TryAcquireToken(ctx, "user-1", "")
	assert.Equal(t, models.CodeQueuing, result.Code)
}

func TestTryAcquireTokenFailsOpenWhenRedisDown(t *testing.T) {
	gate, _, mr := newTestGate(t, 10, 5)
	mr.Close()

	result := gate.TryAcquireToken(context.Background(), "user-1", "sku-1")
	assert.Equal(t, models.CodeQueuing, result.Code)
}

func TestGetEstimatedWaitTime(t *testing.T) {
	gate, _, _ := newTestGate(t, 10, 1)
	ctx := context.Background()

	// No bucket yet degrades to zero.
	assert.Equal(t, int64(0), gate.GetEstimatedWaitTime(ctx, "sku-1"))

	result := gate.TryAcquireToken(ctx, "user-1", "sku-1")
	require.Equal(t, models.CodeSuccess, result.Code)
	assert.Equal(t, int64(0), gate.GetEstimatedWaitTime(ctx, "sku-1"))
}

func TestGetEstimatedWaitTimeDegradesOnError(t *testing.T) {
	gate, _, mr := newTestGate(t, 10, 5)
	mr.Close()

	assert.Equal(t, int64(0), gate.GetEstimatedWaitTime(context.Background(), "sku-1"))
}

func TestNotifySoldOut(t *testing.T) {
	gate, client, _ := newTestGate(t, 10, 5)
	ctx := context.Background()

	result := gate.TryAcquireToken(ctx, "user-1", "sku-1")
	require.Equal(t, models.CodeSuccess, result.Code)

	gate.NotifySoldOut(ctx, "sku-1")
	gate.NotifySoldOut(ctx, "sku-1")

	soldOut, err := client.IsSoldOut(ctx, "sku-1")
	require.NoError(t, err)
	assert.True(t, soldOut)

	_, _, err = client.GetBucketState(ctx, "sku-1")
	assert.Error(t, err)

	result = gate.TryAcquireToken(ctx, "user-1", "sku-1")
	assert.Equal(t, models.CodeSoldOut, result.Code)
}

func TestNotifySoldOutSurvivesRedisDown(t *testing.T) {
	gate, _, mr := newTestGate(t, 10, 5)
	mr.Close()

	// Must not panic or error.
	gate.NotifySoldOut(context.Background(), "sku-1")
}

func TestQueryStatus(t *testing.T) {
	gate, client, _ := newTestGate(t, 10, 5)
	ctx := context.Background()

	result := gate.QueryStatus(ctx, "order-1")
	assert.Equal(t, statusNotFound, result.Status)

	require.NoError(t, client.SetOrderStatus(ctx, "order-1", models.OrderStatusPaid))

	result = gate.QueryStatus(ctx, "order-1")
	assert.Equal(t, models.OrderStatusPaid, result.Status)
	assert.Equal(t, "Order paid", result.Message)
}

func TestQueryStatusExpiredEntry(t *testing.T) {
	gate, client, mr := newTestGate(t, 10, 5)
	ctx := context.Background()

	require.NoError(t, client.SetOrderStatus(ctx, "order-1", models.OrderStatusPendingPayment))
	mr.FastForward(redisclient.OrderStatusTTL + time.Minute)

	result := gate.QueryStatus(ctx, "order-1")
	assert.Equal(t, statusNotFound, result.Status)
}

func TestQueryStatusUnrecognizedValue(t *testing.T) {
	gate, client, _ := newTestGate(t, 10, 5)
	ctx := context.Background()

	require.NoError(t, client.SetOrderStatus(ctx, "order-1", "GARBAGE"))

	result := gate.QueryStatus(ctx, "order-1")
	assert.Equal(t, statusNotFound, result.Status)
}

func TestQueryStatusRedisDown(t *testing.T) {
	gate, _, mr := newTestGate(t, 10, 5)
	mr.Close()

	result := gate.QueryStatus(context.Background(), "order-1")
	assert.Equal(t, statusNotFound, result.Status)
}
