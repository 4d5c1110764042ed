package kafka

import (
	"fmt"
	"ms-admission/internal/logger"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// EnsureTopicsExist creates the given topics on the cluster if they are not
// already there. Individual failures are logged and skipped so one bad topic
// does not block the rest.
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		topicConfigs := []kafka.TopicConfig{
			{
				Topic:             topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			},
		}

		err = controllerConn.CreateTopics(topicConfigs...)
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				log.LogKafka("TOPIC", topic, "topic already exists")
				continue
			}
			log.Error("KAFKA", fmt.Sprintf("error creating topic %s: %v", topic, err))
			continue
		}
		log.LogKafka("TOPIC", topic, "topic created")
	}

	// Give the cluster a moment to propagate the new topics.
	time.Sleep(1 * time.Second)
	return nil
}
