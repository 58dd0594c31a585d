package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NotificationMeta tags a notification so the downstream notification
// service knows how to render it.
type NotificationMeta struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

// Notification is the message published for the notification service.
type Notification struct {
	Meta      NotificationMeta       `json:"meta"`
	Details   map[string]interface{} `json:"details"`
	Recipient string                 `json:"recipient"`
}

// Notifier publishes notifications as a fire-and-forget side effect. The
// boolean outcome reports delivery to the bus, never an error to act on.
type Notifier interface {
	Send(ctx context.Context, notification Notification) bool
}

// KafkaNotifier publishes notifications to a Kafka topic.
type KafkaNotifier struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaNotifier builds a notifier for the given pipe-delimited broker
// list and topic. With no brokers configured the notifier logs and skips.
func NewKafkaNotifier(bootstrapServers, topic string, log *zap.Logger) *KafkaNotifier {
	brokers := splitBrokers(bootstrapServers)
	if len(brokers) == 0 {
		log.Warn("kafka brokers not configured, notifications disabled")
		return &KafkaNotifier{log: log}
	}

	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Send publishes a notification, reporting success as a boolean.
func (n *KafkaNotifier) Send(ctx context.Context, notification Notification) bool {
	if n.writer == nil {
		n.log.Debug("notification skipped, no brokers configured",
			zap.String("recipient", notification.Recipient))
		return false
	}

	value, err := json.Marshal(notification)
	if err != nil {
		n.log.Error("failed to serialize notification", zap.Error(err))
		return false
	}

	if err := n.writer.WriteMessages(ctx, kafka.Message{Value: value}); err != nil {
		n.log.Error("failed to publish notification", zap.Error(err))
		return false
	}

	return true
}

// Close releases the underlying Kafka writer.
func (n *KafkaNotifier) Close() error {
	if n.writer == nil {
		return nil
	}
	return n.writer.Close()
}

func splitBrokers(bootstrapServers string) []string {
	var brokers []string
	for _, broker := range strings.Split(bootstrapServers, "|") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
