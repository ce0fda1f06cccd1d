package service

import (
	"context"
	"fmt"
	"time"

	"seckill-service/internal/models"
	"seckill-service/internal/util"

	"go.uber.org/zap"
)

// OrderStore is the durable side of the order lifecycle.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) (bool, error)
	GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	TransitionOrderStatus(ctx context.Context, orderID, from, to string) (bool, error)
	GetPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// StatusCache mirrors terminal and initial statuses for cheap polling.
type StatusCache interface {
	SetOrderStatus(ctx context.Context, orderID, status string) error
}

// StockRollbacker returns stock for orders that never complete.
type StockRollbacker interface {
	RollbackStock(ctx context.Context, skuID, orderID string, quantity int) error
}

// OrderService owns the order state machine. Creation is idempotent on
// order_id and every transition is checked against the lifecycle table
// before it touches the database.
type OrderService struct {
	store    OrderStore
	cache    StatusCache
	rollback StockRollbacker
	logger   *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, cache StatusCache, rollback StockRollbacker) *OrderService {
	return &OrderService{
		store:    store,
		cache:    cache,
		rollback: rollback,
		logger:   util.GetLogger(),
	}
}

// CreateOrder persists a new order in PENDING_PAYMENT. Replays of the same
// order_id are absorbed without a second row and without rewriting the
// status cache, so a later terminal status is never clobbered.
func (s *OrderService) CreateOrder(ctx context.Context, order *models.Order) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if order == nil || order.OrderID == "" {
		return fmt.Errorf("order is missing an order_id")
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("order %s has non-positive quantity %d", order.OrderID, order.Quantity)
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPendingPayment
	}

	inserted, err := s.store.CreateOrder(ctx, order)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return fmt.Errorf("failed to create order %s: %w", order.OrderID, err)
	}
	if !inserted {
		s.logger.Info("Duplicate order creation absorbed",
			zap.String("order_id", order.OrderID))
		return nil
	}

	util.OrdersPersistedTotal.Inc()
	if err := s.cache.SetOrderStatus(ctx, order.OrderID, order.Status); err != nil {
		s.logger.Warn("Failed to cache order status",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}
	return nil
}

// BatchCreateOrders inserts a batch of orders and reports per-element
// outcomes. An empty batch is a trivial success. Duplicates count as
// successes; only real persistence failures land in FailedOrderIDs.
func (s *OrderService) BatchCreateOrders(ctx context.Context, orders []*models.Order) *models.BatchCreateResult {
	ctx, span := util.StartSpan(ctx, "OrderService.BatchCreateOrders")
	defer span.End()

	result := &models.BatchCreateResult{}
	for _, order := range orders {
		if err := s.CreateOrder(ctx, order); err != nil {
			s.logger.Error("Batch order creation failed",
				zap.String("order_id", orderIDOf(order)),
				zap.Error(err))
			result.FailedCount++
			result.FailedOrderIDs = append(result.FailedOrderIDs, orderIDOf(order))
			continue
		}
		result.SuccessCount++
	}
	return result
}

func orderIDOf(order *models.Order) string {
	if order == nil {
		return ""
	}
	return order.OrderID
}

// UpdateStatus moves an order to target and reports whether the order is in
// target afterwards. Calling it again with the same target is a no-op that
// still reports true; an illegal transition reports false without mutating
// anything.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, target string) (bool, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	order, err := s.store.GetOrderByOrderID(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if order == nil {
		return false, nil
	}

	if order.Status == target {
		return true, nil
	}
	if !models.CanTransitionTo(order.Status, target) {
		s.logger.Warn("Illegal status transition rejected",
			zap.String("order_id", orderID),
			zap.String("from", order.Status),
			zap.String("to", target))
		return false, nil
	}

	moved, err := s.store.TransitionOrderStatus(ctx, orderID, order.Status, target)
	if err != nil {
		return false, fmt.Errorf("failed to transition order %s to %s: %w", orderID, target, err)
	}
	if !moved {
		// Lost a race; re-read to see where the order ended up.
		current, err := s.store.GetOrderByOrderID(ctx, orderID)
		if err != nil {
			return false, fmt.Errorf("failed to re-read order %s: %w", orderID, err)
		}
		return current != nil && current.Status == target, nil
	}

	if err := s.cache.SetOrderStatus(ctx, orderID, target); err != nil {
		s.logger.Warn("Failed to cache order status",
			zap.String("order_id", orderID),
			zap.String("status", target),
			zap.Error(err))
	}
	return true, nil
}

// GetOrder loads an order by its public order_id. Returns nil without error
// when no such order exists.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrderByOrderID(ctx, orderID)
}

// HandleTimeoutOrders sweeps orders that sat in PENDING_PAYMENT past the
// cutoff: each gets its stock rolled back and is then moved to TIMEOUT.
// The rollback runs first so a failed transition leaves the order pending
// and the next sweep retries it; the rollback itself is idempotent. A
// failure on one order never stops the sweep.
func (s *OrderService) HandleTimeoutOrders(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.HandleTimeoutOrders")
	defer span.End()

	orders, err := s.store.GetPendingOrdersBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired orders: %w", err)
	}

	processed := 0
	for _, order := range orders {
		if err := s.rollback.RollbackStock(ctx, order.SKUID, order.OrderID, order.Quantity); err != nil {
			s.logger.Error("Failed to roll back stock for expired order",
				zap.String("order_id", order.OrderID),
				zap.String("sku_id", order.SKUID),
				zap.Error(err))
			continue
		}

		moved, err := s.UpdateStatus(ctx, order.OrderID, models.OrderStatusTimeout)
		if err != nil {
			s.logger.Error("Failed to time out order",
				zap.String("order_id", order.OrderID),
				zap.Error(err))
			continue
		}
		if moved {
			processed++
			util.OrdersTimedOutTotal.Inc()
		}
	}

	if processed > 0 {
		s.logger.Info("Timed out expired orders",
			zap.Int("count", processed))
	}
	return processed, nil
}
