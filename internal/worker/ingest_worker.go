package worker

import (
	"context"
	"encoding/json"
	"time"

	"seckill-service/internal/models"
	"seckill-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageSource is the consuming side of the purchase topic. Offsets are
// committed explicitly so a crash replays uncommitted messages.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OrderCreator persists a flushed batch of orders.
type OrderCreator interface {
	BatchCreateOrders(ctx context.Context, orders []*models.Order) *models.BatchCreateResult
}

// DeadLetterSink receives messages that exhausted their retries.
type DeadLetterSink interface {
	Send(ctx context.Context, record *models.DeadLetterRecord) error
}

type pendingMessage struct {
	msg   kafka.Message
	event models.PurchaseEvent
}

// IngestWorker drains purchase events from Kafka into the order store in
// batches. Malformed messages are acknowledged immediately; messages whose
// orders repeatedly fail to persist are escalated to the dead-letter topic
// after maxRetry attempts. Retry counters live in memory, which holds
// because events are partitioned by user and a given order always lands on
// the same consumer.
type IngestWorker struct {
	source        MessageSource
	orders        OrderCreator
	deadLetters   DeadLetterSink
	batchSize     int
	maxRetry      int
	flushInterval time.Duration

	buffer      []pendingMessage
	retryCounts map[string]int
	logger      *zap.Logger
}

// NewIngestWorker creates a new ingest worker
func NewIngestWorker(source MessageSource, orders OrderCreator, deadLetters DeadLetterSink, batchSize, maxRetry int, flushInterval time.Duration) *IngestWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	if maxRetry <= 0 {
		maxRetry = 1
	}
	return &IngestWorker{
		source:        source,
		orders:        orders,
		deadLetters:   deadLetters,
		batchSize:     batchSize,
		maxRetry:      maxRetry,
		flushInterval: flushInterval,
		buffer:        make([]pendingMessage, 0, batchSize),
		retryCounts:   make(map[string]int),
		logger:        util.GetLogger(),
	}
}

// Start runs the ingest loop until ctx is cancelled. A fetch goroutine
// feeds messages into a channel so the main loop can multiplex message
// arrival with the partial-flush ticker. Any buffered messages are flushed
// before returning.
func (w *IngestWorker) Start(ctx context.Context) {
	w.logger.Info("Ingest worker started",
		zap.Int("batch_size", w.batchSize),
		zap.Duration("flush_interval", w.flushInterval))

	messages := make(chan kafka.Message)
	go func() {
		defer close(messages)
		for {
			msg, err := w.source.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error("Failed to fetch message", zap.Error(err))
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background(), "shutdown")
			w.logger.Info("Ingest worker stopped")
			return
		case msg, ok := <-messages:
			if !ok {
				w.flush(context.Background(), "shutdown")
				w.logger.Info("Ingest worker stopped")
				return
			}
			w.ProcessMessage(ctx, msg)
		case <-ticker.C:
			if len(w.buffer) > 0 {
				w.flush(ctx, "interval")
			}
		}
	}
}

// ProcessMessage buffers one message, flushing when the buffer fills.
// A message that does not decode is poison: it is committed right away so
// it can never wedge the partition.
func (w *IngestWorker) ProcessMessage(ctx context.Context, msg kafka.Message) {
	var event models.PurchaseEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.logger.Warn("Discarding undecodable message",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		w.escalate(ctx, msg, "undecodable payload", 0)
		w.commit(ctx, msg)
		return
	}
	if event.OrderID == "" {
		w.logger.Warn("Discarding event without order_id",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))
		w.escalate(ctx, msg, "missing order_id", 0)
		w.commit(ctx, msg)
		return
	}

	w.buffer = append(w.buffer, pendingMessage{msg: msg, event: event})
	if len(w.buffer) >= w.batchSize {
		w.flush(ctx, "full")
	}
}

// flush persists the buffered batch and commits every buffered offset
// regardless of per-order outcome. Orders that failed keep a retry count;
// at maxRetry the original message goes to the dead-letter topic instead
// of back into the buffer.
func (w *IngestWorker) flush(ctx context.Context, trigger string) {
	if len(w.buffer) == 0 {
		return
	}
	start := time.Now()

	orders := make([]*models.Order, 0, len(w.buffer))
	for i := range w.buffer {
		orders = append(orders, orderFromEvent(&w.buffer[i].event))
	}

	result := w.orders.BatchCreateOrders(ctx, orders)

	failed := make(map[string]bool, result.FailedCount)
	for _, id := range result.FailedOrderIDs {
		failed[id] = true
	}

	retained := make([]pendingMessage, 0)
	for i := range w.buffer {
		pm := w.buffer[i]
		if !failed[pm.event.OrderID] {
			delete(w.retryCounts, pm.event.OrderID)
			continue
		}
		w.retryCounts[pm.event.OrderID]++
		count := w.retryCounts[pm.event.OrderID]
		if count >= w.maxRetry {
			w.escalate(ctx, pm.msg, "order persistence failed", count)
			delete(w.retryCounts, pm.event.OrderID)
			continue
		}
		retained = append(retained, pm)
	}

	msgs := make([]kafka.Message, 0, len(w.buffer))
	for i := range w.buffer {
		msgs = append(msgs, w.buffer[i].msg)
	}
	if err := w.source.CommitMessages(ctx, msgs...); err != nil {
		w.logger.Error("Failed to commit offsets", zap.Error(err))
	}

	w.buffer = w.buffer[:0]
	w.buffer = append(w.buffer, retained...)

	util.IngestFlushTotal.WithLabelValues(trigger).Inc()
	util.IngestFlushLatency.Observe(time.Since(start).Seconds())
	w.logger.Info("Flushed ingest buffer",
		zap.String("trigger", trigger),
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailedCount),
		zap.Int("retained", len(retained)))
}

func (w *IngestWorker) escalate(ctx context.Context, msg kafka.Message, reason string, retryCount int) {
	record := &models.DeadLetterRecord{
		OriginalMessage:   string(msg.Value),
		ErrorMessage:      reason,
		RetryCount:        retryCount,
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		FailedAt:          time.Now(),
	}
	if err := w.deadLetters.Send(ctx, record); err != nil {
		w.logger.Error("Failed to publish dead letter",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return
	}
	util.DeadLettersTotal.Inc()
	w.logger.Warn("Escalated message to dead-letter topic",
		zap.String("reason", reason),
		zap.Int("retry_count", retryCount),
		zap.Int64("offset", msg.Offset))
}

func (w *IngestWorker) commit(ctx context.Context, msg kafka.Message) {
	if err := w.source.CommitMessages(ctx, msg); err != nil {
		w.logger.Error("Failed to commit offset",
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
	}
}

func orderFromEvent(event *models.PurchaseEvent) *models.Order {
	return &models.Order{
		OrderID:   event.OrderID,
		UserID:    event.UserID,
		SKUID:     event.SKUID,
		Quantity:  event.Quantity,
		Status:    models.OrderStatusPendingPayment,
		CreatedAt: event.Timestamp,
	}
}
