package models

import "time"

// Event types
const (
	EventTypePurchase = "PURCHASE"
)

// Event sources
const (
	EventSourceSeckill = "seckill-core"
)

// PurchaseEvent is published once per successful stock deduction and
// consumed by the batch ingest pipeline. Keyed by user id on the stream so
// repeated sends from the same user land on the same partition.
type PurchaseEvent struct {
	EventType string    `json:"event_type"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	SKUID     string    `json:"sku_id"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	TraceID   string    `json:"trace_id,omitempty"`
}
