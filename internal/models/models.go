package models

import "time"

// Activity represents a flash-sale activity for a single SKU. The activity
// row is the owner of the configured total stock and the sale window; the
// Redis counters are warmed from it and eventually reconciled against it.
type Activity struct {
	ID            int64     `db:"id" json:"id"`
	SKUID         string    `db:"sku_id" json:"sku_id"`
	Name          string    `db:"name" json:"name"`
	TotalStock    int64     `db:"total_stock" json:"total_stock"`
	PurchaseLimit int       `db:"purchase_limit" json:"purchase_limit"`
	StartsAt      time.Time `db:"starts_at" json:"starts_at"`
	EndsAt        time.Time `db:"ends_at" json:"ends_at"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Activity statuses
const (
	ActivityStatusActive   = "ACTIVE"
	ActivityStatusPaused   = "PAUSED"
	ActivityStatusFinished = "FINISHED"
)

// Order represents a flash-sale order. Rows are created by the ingest
// pipeline, never deleted, and only transitioned through the lifecycle.
type Order struct {
	ID          int64      `db:"id" json:"id"`
	OrderID     string     `db:"order_id" json:"order_id"`
	UserID      string     `db:"user_id" json:"user_id"`
	SKUID       string     `db:"sku_id" json:"sku_id"`
	Quantity    int        `db:"quantity" json:"quantity"`
	Status      string     `db:"status" json:"status"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPendingPayment = "PENDING_PAYMENT"
	OrderStatusPaid           = "PAID"
	OrderStatusCancelled      = "CANCELLED"
	OrderStatusTimeout        = "TIMEOUT"
)

// ValidStatusTransitions maps a current status to the statuses it may move
// to. Terminal statuses have no entry.
var ValidStatusTransitions = map[string][]string{
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCancelled, OrderStatusTimeout},
}

// CanTransitionTo reports whether an order may move from current to target.
func CanTransitionTo(current, target string) bool {
	for _, s := range ValidStatusTransitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

// Ledger operations
const (
	LedgerOpDeduct   = "DEDUCT"
	LedgerOpRollback = "ROLLBACK"
)

// StockLedgerEntry is one row of the append-only stock audit log. One entry
// per successful deduct or rollback; the unique (order_id, operation) pair
// doubles as the idempotency guard for redelivered rollbacks.
type StockLedgerEntry struct {
	ID        int64     `db:"id" json:"id"`
	SKUID     string    `db:"sku_id" json:"sku_id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	Operation string    `db:"operation" json:"operation"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DeadLetterRecord captures a purchase event that exhausted its retries,
// with enough stream metadata to replay it by hand.
type DeadLetterRecord struct {
	OriginalMessage   string    `json:"original_message"`
	ErrorMessage      string    `json:"error_message"`
	RetryCount        int       `json:"retry_count"`
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int       `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	FailedAt          time.Time `json:"failed_at"`
}

// Result codes shared by the gate and the inventory engine.
const (
	CodeSuccess     = 200
	CodeQueuing     = 202
	CodeOutOfStock  = 409
	CodeSoldOut     = 410
	CodeSystemError = 500
)

// DeductResult is the outcome of one atomic stock deduction.
type DeductResult struct {
	Code           int    `json:"code"`
	OrderID        string `json:"order_id,omitempty"`
	RemainingStock int64  `json:"remaining_stock"`
}

// AcquireResult is the outcome of one admission attempt.
type AcquireResult struct {
	Code          int    `json:"code"`
	QueueToken    string `json:"queue_token,omitempty"`
	EstimatedWait int64  `json:"estimated_wait_seconds"`
	Message       string `json:"message"`
}

// StockSnapshot is a non-transactional read of a SKU's counters.
type StockSnapshot struct {
	SKUID          string `json:"sku_id"`
	RemainingStock int64  `json:"remaining_stock"`
	SoldCount      int64  `json:"sold_count"`
}

// BatchCreateResult reports per-element outcomes of a batch order insert.
type BatchCreateResult struct {
	SuccessCount   int      `json:"success_count"`
	FailedCount    int      `json:"failed_count"`
	FailedOrderIDs []string `json:"failed_order_ids,omitempty"`
}

// ReconciliationResult is the outcome of checking one SKU.
type ReconciliationResult struct {
	SKUID          string   `json:"sku_id"`
	CacheStock     int64    `json:"cache_stock"`
	CacheSoldCount int64    `json:"cache_sold_count"`
	Passed         bool     `json:"passed"`
	Discrepancies  []string `json:"discrepancies,omitempty"`
}

// ReconciliationReport aggregates results across all active SKUs.
type ReconciliationReport struct {
	RanAt       time.Time              `json:"ran_at"`
	CheckedSKUs int                    `json:"checked_skus"`
	FailedSKUs  int                    `json:"failed_skus"`
	Results     []ReconciliationResult `json:"results"`
}

// Passed reports whether every checked SKU reconciled cleanly.
func (r *ReconciliationReport) Passed() bool {
	return r.FailedSKUs == 0
}
