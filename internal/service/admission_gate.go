package service

import (
	"context"
	"time"

	"seckill-service/internal/models"
	"seckill-service/internal/redisclient"
	"seckill-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStatusResult is the fail-safe answer of a cached status lookup.
type OrderStatusResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

const statusNotFound = "NOT_FOUND"

var statusMessages = map[string]string{
	models.OrderStatusPendingPayment: "Order created, awaiting payment",
	models.OrderStatusPaid:           "Order paid",
	models.OrderStatusCancelled:      "Order cancelled",
	models.OrderStatusTimeout:        "Order timed out, stock returned",
	statusNotFound:                   "Order not found",
}

// AdmissionGate holds per-SKU token buckets in Redis and decides whether a
// request may proceed to the inventory engine. Every operation on this type
// is a read/admission path: it fails open to a safe default instead of
// propagating infrastructure errors to the caller.
type AdmissionGate struct {
	redis    *redisclient.Client
	rate     int64
	capacity int64
	logger   *zap.Logger
	now      func() time.Time
}

// NewAdmissionGate creates a new admission gate
func NewAdmissionGate(redis *redisclient.Client, ratePerSecond, capacity int64) *AdmissionGate {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &AdmissionGate{
		redis:    redis,
		rate:     ratePerSecond,
		capacity: capacity,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// TryAcquireToken attempts one admission for a user on a SKU. A sold-out
// SKU short-circuits without touching the bucket; a missing identity or an
// unreachable store queues the caller instead of erroring.
func (g *AdmissionGate) TryAcquireToken(ctx context.Context, userID, skuID string) *models.AcquireResult {
	ctx, span := util.StartSpan(ctx, "AdmissionGate.TryAcquireToken")
	defer span.End()

	if userID == "" || skuID == "" {
		util.TokenAcquireTotal.WithLabelValues("queuing").Inc()
		return &models.AcquireResult{
			Code:    models.CodeQueuing,
			Message: "Request queued",
		}
	}

	soldOut, err := g.redis.IsSoldOut(ctx, skuID)
	if err != nil {
		g.logger.Warn("Sold-out flag unreadable, continuing to bucket",
			zap.String("sku_id", skuID),
			zap.Error(err))
	}
	if soldOut {
		util.TokenAcquireTotal.WithLabelValues("sold_out").Inc()
		return &models.AcquireResult{
			Code:    models.CodeSoldOut,
			Message: "Item sold out",
		}
	}

	acquired, tokens, err := g.redis.TakeToken(ctx, skuID, g.now(), g.rate, g.capacity)
	if err != nil {
		g.logger.Warn("Token bucket unavailable, queuing request",
			zap.String("sku_id", skuID),
			zap.Error(err))
		util.TokenAcquireTotal.WithLabelValues("queuing").Inc()
		return &models.AcquireResult{
			Code:    models.CodeQueuing,
			Message: "Request queued",
		}
	}

	if acquired {
		util.TokenAcquireTotal.WithLabelValues("acquired").Inc()
		return &models.AcquireResult{
			Code:       models.CodeSuccess,
			QueueToken: uuid.New().String(),
			Message:    "Admitted",
		}
	}

	util.TokenAcquireTotal.WithLabelValues("queuing").Inc()
	return &models.AcquireResult{
		Code:          models.CodeQueuing,
		EstimatedWait: g.waitSeconds(-tokens),
		Message:       "Request queued",
	}
}

// GetEstimatedWaitTime estimates the queue wait for a SKU in seconds. It
// degrades to 0 on absent, corrupt or unreachable bucket data.
func (g *AdmissionGate) GetEstimatedWaitTime(ctx context.Context, skuID string) int64 {
	tokens, rate, err := g.redis.GetBucketState(ctx, skuID)
	if err != nil || tokens >= 0 {
		return 0
	}
	if rate <= 0 {
		rate = g.rate
	}
	return (-tokens + rate - 1) / rate
}

// NotifySoldOut raises the sold-out flag and drops the SKU's bucket.
// Idempotent; never returns an error to the caller.
func (g *AdmissionGate) NotifySoldOut(ctx context.Context, skuID string) {
	if skuID == "" {
		return
	}

	if err := g.redis.SetSoldOut(ctx, skuID); err != nil {
		g.logger.Error("Failed to set sold-out flag",
			zap.String("sku_id", skuID),
			zap.Error(err))
	}
	if err := g.redis.DeleteBucket(ctx, skuID); err != nil {
		g.logger.Error("Failed to delete token bucket",
			zap.String("sku_id", skuID),
			zap.Error(err))
	}
}

// QueryStatus reads an order's cached status. Misses, expired entries and
// unrecognized values all fold to a single not-found result.
func (g *AdmissionGate) QueryStatus(ctx context.Context, orderID string) *OrderStatusResult {
	status, found, err := g.redis.GetOrderStatus(ctx, orderID)
	if err != nil {
		g.logger.Warn("Order status cache unreadable",
			zap.String("order_id", orderID),
			zap.Error(err))
		found = false
	}

	if !found {
		return &OrderStatusResult{
			OrderID: orderID,
			Status:  statusNotFound,
			Message: statusMessages[statusNotFound],
		}
	}

	msg, known := statusMessages[status]
	if !known {
		return &OrderStatusResult{
			OrderID: orderID,
			Status:  statusNotFound,
			Message: statusMessages[statusNotFound],
		}
	}

	return &OrderStatusResult{
		OrderID: orderID,
		Status:  status,
		Message: msg,
	}
}

func (g *AdmissionGate) waitSeconds(depth int64) int64 {
	if depth <= 0 {
		return 0
	}
	return (depth + g.rate - 1) / g.rate
}
