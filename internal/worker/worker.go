package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"items-api/internal/cache"
	"items-api/internal/config"
	"items-api/internal/models"
	"items-api/internal/queue"
	"items-api/pkg/logger"
)

// Run starts the Kafka consumer: reads item events, invalidates the listing
// cache, and writes an audit log line per event. One consumer per process;
// scale by running more replicas (the consumer group shares partitions).
func Run(ctx context.Context) {
	cfg := config.Get()
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info(ctx, "Worker disabled (no Kafka brokers)")
		return
	}
	brokers := queue.Brokers()
	if len(brokers) == 0 {
		return
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    queue.Topic(),
		GroupID:  "item-audit",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	var processed int64
	logger.Info(ctx, "Kafka consumer started", "topic", queue.Topic())
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error(ctx, "Worker fetch failed", "error", err)
			continue
		}
		if err := handleEvent(ctx, msg.Value); err != nil {
			logger.Error(ctx, "Worker handle failed", "error", err, "payload", string(msg.Value))
			// Commit anyway to avoid a poison pill blocking the partition
			_ = reader.CommitMessages(ctx, msg)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "Worker commit failed", "error", err)
		}
		atomic.AddInt64(&processed, 1)
	}
}

func handleEvent(ctx context.Context, payload []byte) error {
	var ev models.ItemEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	logger.Info(ctx, "Item audit",
		"event_id", ev.EventID,
		"action", ev.Action,
		"item_id", ev.ItemID,
		"user_id", ev.UserID,
		"actor_id", ev.ActorID,
		"occurred_at", ev.OccurredAt)
	cache.InvalidatePages(ctx)
	return nil
}
