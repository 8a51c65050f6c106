package kafka

import (
	"context"

	"github.com/Shopify/sarama"

	"github.com/marketlink/sellchat/logger"
)

// RecordHandler processes one log record. ack marks the record's offset;
// the batch persistence path holds on to ack and calls it only after the
// relational write succeeded, so a crash in between replays from the log.
type RecordHandler func(topic string, key, value []byte, ack func()) error

type consumerGroupHandler struct {
	handler RecordHandler
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Infof("[Kafka] consumer group setup")
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Infof("[Kafka] consumer group cleanup")
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		m := msg
		ack := func() { session.MarkMessage(m, "") }
		if err := h.handler(m.Topic, m.Key, m.Value, ack); err != nil {
			logger.Errorf("[Kafka] handler error topic=%s partition=%d offset=%d: %v",
				m.Topic, m.Partition, m.Offset, err)
		}
	}
	return nil
}

// StartConsumerGroup joins the named group and consumes until ctx is done.
// Blocks; run it from main.
func StartConsumerGroup(ctx context.Context, brokers []string, groupID string, topics []string, handler RecordHandler) error {
	config := BuildBaseConfig()

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return err
	}
	defer func() { _ = group.Close() }()

	go func() {
		for err := range group.Errors() {
			logger.Errorf("[Kafka] consumer group error: %v", err)
		}
	}()

	h := &consumerGroupHandler{handler: handler}
	for {
		if err := group.Consume(ctx, topics, h); err != nil {
			logger.Errorf("[Kafka] consume error: %v", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
