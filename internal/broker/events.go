package broker

import (
	"context"
	"time"

	"seckill-service/internal/models"
)

// EventPublisher publishes purchase events onto the stream
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishPurchase publishes one event per successful deduction, keyed by
// user id so all of a user's purchases route to the same partition.
func (ep *EventPublisher) PublishPurchase(ctx context.Context, event *models.PurchaseEvent) error {
	return ep.producer.PublishEvent(ctx, event.UserID, event)
}

// DeadLetterPublisher sends escalated records to the dead-letter topic
type DeadLetterPublisher struct {
	producer *Producer
}

// NewDeadLetterPublisher creates a new dead-letter publisher
func NewDeadLetterPublisher(producer *Producer) *DeadLetterPublisher {
	return &DeadLetterPublisher{producer: producer}
}

// Send publishes a dead-letter record, keyed by the original topic so
// records from one source topic stay together.
func (dp *DeadLetterPublisher) Send(ctx context.Context, record *models.DeadLetterRecord) error {
	if record.FailedAt.IsZero() {
		record.FailedAt = time.Now()
	}
	return dp.producer.PublishEvent(ctx, record.OriginalTopic, record)
}
