package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"

	"github.com/segmentio/kafka-go"
)

// Consumer reads payment notifications redelivered over Kafka and hands them
// to the reconciler. Because the reconciler is idempotent, this feed can
// overlap with the HTTP webhook without double-applying anything.
type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log}
}

// Start consumes until the context is cancelled. Malformed messages are
// logged and skipped; handler errors do not stop the loop.
func (c *Consumer) Start(ctx context.Context, handler func(context.Context, models.ProviderNotification) error) {
	c.log.LogKafka("START", c.reader.Config().Topic, "payment notification consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.LogKafka("STOP", c.reader.Config().Topic, "payment notification consumer stopped")
				return
			}
			c.log.Error("KAFKA", fmt.Sprintf("error reading message: %v", err))
			continue
		}

		var notification models.ProviderNotification
		if err := json.Unmarshal(msg.Value, &notification); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("failed to unmarshal notification: %v", err))
			continue
		}

		if err := handler(ctx, notification); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("failed to reconcile payment %s: %v", notification.PaymentID, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
