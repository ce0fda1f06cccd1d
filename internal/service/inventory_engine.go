package service

import (
	"context"
	"fmt"
	"time"

	"seckill-service/internal/models"
	"seckill-service/internal/redisclient"
	"seckill-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the slice of the durable store the engine audits mutations to.
type Ledger interface {
	AppendLedgerEntry(ctx context.Context, entry *models.StockLedgerEntry) (bool, error)
	HasLedgerEntry(ctx context.Context, orderID, operation string) (bool, error)
}

// PurchasePublisher publishes one event per successful deduction.
type PurchasePublisher interface {
	PublishPurchase(ctx context.Context, event *models.PurchaseEvent) error
}

// InventoryEngine owns the per-SKU stock counters in Redis. Every mutation
// is a single server-side atomic unit; there is no read-then-write path and
// no best-effort fallback when Redis is unreachable.
type InventoryEngine struct {
	redis     *redisclient.Client
	ledger    Ledger
	publisher PurchasePublisher
	logger    *zap.Logger
}

// NewInventoryEngine creates a new inventory engine
func NewInventoryEngine(redis *redisclient.Client, ledger Ledger, publisher PurchasePublisher) *InventoryEngine {
	return &InventoryEngine{
		redis:     redis,
		ledger:    ledger,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// WarmupStock resets a SKU's counters before a sale window opens.
// Idempotent overwrite.
func (e *InventoryEngine) WarmupStock(ctx context.Context, skuID string, total int64) error {
	ctx, span := util.StartSpan(ctx, "InventoryEngine.WarmupStock")
	defer span.End()

	if total < 0 {
		return fmt.Errorf("warmup total must be non-negative, got %d", total)
	}

	if err := e.redis.WarmupStock(ctx, skuID, total); err != nil {
		return fmt.Errorf("failed to warm up stock for sku %s: %w", skuID, err)
	}

	e.logger.Info("Stock warmed up",
		zap.String("sku_id", skuID),
		zap.Int64("total", total))
	return nil
}

// DeductStock atomically checks and deducts stock for one purchase attempt.
// On success it mints the order id, appends the DEDUCT ledger entry and
// publishes the purchase event. Insufficient stock mutates nothing. An
// infrastructure failure surfaces as a system-error result with the cause;
// it never degrades into a non-atomic write path.
func (e *InventoryEngine) DeductStock(ctx context.Context, skuID, userID string, quantity int) (*models.DeductResult, error) {
	ctx, span := util.StartSpan(ctx, "InventoryEngine.DeductStock")
	defer span.End()

	util.DeductAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.DeductLatency.Observe(time.Since(start).Seconds())
	}()

	if quantity <= 0 {
		return nil, fmt.Errorf("deduct quantity must be positive, got %d", quantity)
	}

	remaining, err := e.redis.DeductStock(ctx, skuID, quantity)
	if err != nil {
		util.DeductRejectedTotal.WithLabelValues("system_error").Inc()
		return &models.DeductResult{Code: models.CodeSystemError},
			fmt.Errorf("stock deduction failed for sku %s: %w", skuID, err)
	}

	if remaining == redisclient.DeductInsufficient || remaining == redisclient.DeductNotWarmed {
		util.DeductRejectedTotal.WithLabelValues("out_of_stock").Inc()
		return &models.DeductResult{Code: models.CodeOutOfStock}, nil
	}

	orderID := uuid.New().String()
	util.DeductSuccessTotal.Inc()

	entry := &models.StockLedgerEntry{
		SKUID:     skuID,
		OrderID:   orderID,
		Operation: models.LedgerOpDeduct,
		Quantity:  quantity,
	}
	if _, err := e.ledger.AppendLedgerEntry(ctx, entry); err != nil {
		// The counter already moved; reconciliation picks up the gap.
		e.logger.Error("Failed to append DEDUCT ledger entry",
			zap.String("sku_id", skuID),
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	event := &models.PurchaseEvent{
		EventType: models.EventTypePurchase,
		OrderID:   orderID,
		UserID:    userID,
		SKUID:     skuID,
		Quantity:  quantity,
		Timestamp: time.Now(),
		Source:    models.EventSourceSeckill,
		TraceID:   span.SpanContext().TraceID().String(),
	}
	if err := e.publisher.PublishPurchase(ctx, event); err != nil {
		e.logger.Error("Failed to publish purchase event",
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	return &models.DeductResult{
		Code:           models.CodeSuccess,
		OrderID:        orderID,
		RemainingStock: remaining,
	}, nil
}

// RollbackStock returns a deducted quantity to the counters. Safe under
// redelivery: a ROLLBACK ledger entry already present for the order makes
// the call a no-op, and the append after a successful apply is itself
// conflict-guarded.
func (e *InventoryEngine) RollbackStock(ctx context.Context, skuID, orderID string, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryEngine.RollbackStock")
	defer span.End()

	if quantity <= 0 {
		return fmt.Errorf("rollback quantity must be positive, got %d", quantity)
	}

	done, err := e.ledger.HasLedgerEntry(ctx, orderID, models.LedgerOpRollback)
	if err != nil {
		return fmt.Errorf("rollback ledger check failed for order %s: %w", orderID, err)
	}
	if done {
		util.RollbackTotal.WithLabelValues("duplicate").Inc()
		e.logger.Info("Rollback already applied",
			zap.String("order_id", orderID),
			zap.String("sku_id", skuID))
		return nil
	}

	if _, err := e.redis.RollbackStock(ctx, skuID, quantity); err != nil {
		util.RollbackTotal.WithLabelValues("system_error").Inc()
		return fmt.Errorf("stock rollback failed for sku %s: %w", skuID, err)
	}

	entry := &models.StockLedgerEntry{
		SKUID:     skuID,
		OrderID:   orderID,
		Operation: models.LedgerOpRollback,
		Quantity:  quantity,
	}
	if _, err := e.ledger.AppendLedgerEntry(ctx, entry); err != nil {
		e.logger.Error("Failed to append ROLLBACK ledger entry",
			zap.String("sku_id", skuID),
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	util.RollbackTotal.WithLabelValues("applied").Inc()
	return nil
}

// GetStock returns an observability snapshot of a SKU's counters. Callers
// must tolerate torn reads under concurrent mutation.
func (e *InventoryEngine) GetStock(ctx context.Context, skuID string) (*models.StockSnapshot, error) {
	remaining, sold, err := e.redis.GetStock(ctx, skuID)
	if err != nil {
		return nil, fmt.Errorf("failed to read stock for sku %s: %w", skuID, err)
	}

	return &models.StockSnapshot{
		SKUID:          skuID,
		RemainingStock: remaining,
		SoldCount:      sold,
	}, nil
}
