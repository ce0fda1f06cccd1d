package store

import (
	"context"
	"database/sql"
	"time"

	"seckill-service/internal/models"
)

// CreateOrder inserts an order row, keyed by its unique order_id. Returns
// false when a row for that order_id already existed (no write happened).
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) (bool, error) {
	query := `
		INSERT INTO orders (order_id, user_id, sku_id, quantity, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		order.OrderID, order.UserID, order.SKUID, order.Quantity, order.Status)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetOrderByOrderID retrieves an order; a miss returns (nil, nil)
func (s *Store) GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionOrderStatus moves an order from one status to another, stamping
// the matching timestamp column. Returns false when no row matched, which
// means the order was not in the expected source status.
func (s *Store) TransitionOrderStatus(ctx context.Context, orderID, from, to string) (bool, error) {
	query := "UPDATE orders SET status = $1, updated_at = NOW()"
	switch to {
	case models.OrderStatusPaid:
		query += ", paid_at = NOW()"
	case models.OrderStatusCancelled, models.OrderStatusTimeout:
		query += ", cancelled_at = NOW()"
	}
	query += " WHERE order_id = $2 AND status = $3"

	res, err := s.db.ExecContext(ctx, query, to, orderID, from)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetPendingOrdersBefore retrieves pending-payment orders created before the
// cutoff, bounded so one sweep tick cannot stall on a huge backlog.
func (s *Store) GetPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		`SELECT * FROM orders
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		models.OrderStatusPendingPayment, cutoff, limit)
	return orders, err
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// SumOrderedQuantity totals the quantity of orders still counting toward a
// SKU's sold figure. Timed-out orders are excluded because their stock was
// rolled back.
func (s *Store) SumOrderedQuantity(ctx context.Context, skuID string) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(quantity), 0) FROM orders
		 WHERE sku_id = $1 AND status <> $2`,
		skuID, models.OrderStatusTimeout)
	return total, err
}

// AppendLedgerEntry appends one row to the stock ledger. The unique
// (order_id, operation) constraint makes a replayed append a no-op; the
// boolean reports whether this call actually wrote the row.
func (s *Store) AppendLedgerEntry(ctx context.Context, entry *models.StockLedgerEntry) (bool, error) {
	query := `
		INSERT INTO stock_ledger (sku_id, order_id, operation, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, operation) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		entry.SKUID, entry.OrderID, entry.Operation, entry.Quantity)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// HasLedgerEntry reports whether an operation was already recorded for an
// order. This is the idempotency consult for redelivered rollbacks.
func (s *Store) HasLedgerEntry(ctx context.Context, orderID, operation string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM stock_ledger WHERE order_id = $1 AND operation = $2)",
		orderID, operation)
	return exists, err
}

// LedgerNetQuantity reconstructs the true sold quantity for a SKU from the
// append-only ledger: deducted minus rolled back.
func (s *Store) LedgerNetQuantity(ctx context.Context, skuID string) (int64, error) {
	var net int64
	err := s.db.GetContext(ctx, &net,
		`SELECT COALESCE(SUM(CASE WHEN operation = $1 THEN quantity ELSE -quantity END), 0)
		 FROM stock_ledger WHERE sku_id = $2`,
		models.LedgerOpDeduct, skuID)
	return net, err
}

// GetLedgerEntries retrieves ledger rows for an order
func (s *Store) GetLedgerEntries(ctx context.Context, orderID string) ([]models.StockLedgerEntry, error) {
	var entries []models.StockLedgerEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM stock_ledger WHERE order_id = $1 ORDER BY created_at ASC", orderID)
	return entries, err
}
