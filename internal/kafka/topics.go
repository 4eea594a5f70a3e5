package kafka

import (
	"fmt"
	"strings"
	"time"

	"ms-reservations/internal/logger"

	"github.com/segmentio/kafka-go"
)

// EnsureTopicsExist creates the lifecycle topics on the cluster controller if
// they are missing. Creation failures on one topic don't stop the others; the
// producer will surface them again on first publish.
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to resolve cluster controller: %w", err)
	}
	controllerConn, err := kafka.Dial("tcp", controller.Host)
	if err != nil {
		return fmt.Errorf("failed to dial controller: %w", err)
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err := controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		switch {
		case err == nil:
			log.LogKafka("TOPIC", topic, "created")
		case strings.Contains(err.Error(), "already exists"):
			log.LogKafka("TOPIC", topic, "already exists")
		default:
			log.Error("KAFKA", fmt.Sprintf("Failed to create topic %s: %v", topic, err))
		}
	}

	// Give the cluster a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
	return nil
}
