package kafka

import "github.com/Shopify/sarama"

type AppConfig struct {
	Brokers               []string
	GroupID               string
	Topic                 string
	ProducerRetries       int
	ProducerCompression   string // none/snappy/lz4/zstd
	ConsumerInitialOffset string // newest/oldest
	KafkaVersion          sarama.KafkaVersion
}

// Defaults for the single-node dev setup; entrypoints override the
// broker list / group / topic from the environment before Init*.
var Cfg = AppConfig{
	Brokers:               []string{"127.0.0.1:9092"},
	GroupID:               "chat-persist",
	Topic:                 "chat.messages",
	ProducerRetries:       5,
	ProducerCompression:   "snappy",
	ConsumerInitialOffset: "oldest",
	KafkaVersion:          sarama.V2_1_0_0,
}
