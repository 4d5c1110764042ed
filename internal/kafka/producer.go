package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"ms-admission/internal/config"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer streams ticket lifecycle events, one writer per topic.
type Producer struct {
	approved  *kafka.Writer
	archived  *kafka.Writer
	validated *kafka.Writer
	log       *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	newWriter := func(topic string) *kafka.Writer {
		return kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   topic,
		})
	}
	return &Producer{
		approved:  newWriter(topics.TicketApproved),
		archived:  newWriter(topics.TicketArchived),
		validated: newWriter(topics.TicketValidated),
		log:       log,
	}
}

func (p *Producer) publish(writer *kafka.Writer, event models.TicketEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.TicketID),
			Value: msgBytes,
		},
	)
	if err != nil {
		return err
	}

	p.log.LogKafka("PUBLISH", writer.Topic, fmt.Sprintf("%s for ticket %s", event.Type, event.TicketID))
	return nil
}

func (p *Producer) PublishTicketApproved(event models.TicketEvent) error {
	return p.publish(p.approved, event)
}

func (p *Producer) PublishTicketArchived(event models.TicketEvent) error {
	return p.publish(p.archived, event)
}

func (p *Producer) PublishTicketValidated(event models.TicketEvent) error {
	return p.publish(p.validated, event)
}

func (p *Producer) Close() error {
	for _, w := range []*kafka.Writer{p.approved, p.archived, p.validated} {
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}
