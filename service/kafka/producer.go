package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

var (
	KafkaClient sarama.Client
	Producer    sarama.SyncProducer
)

func BuildBaseConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = Cfg.KafkaVersion

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if Cfg.ProducerRetries <= 0 {
		Cfg.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = Cfg.ProducerRetries
	// Hash partitioner: the record key (conversation id) pins a
	// conversation to one partition, which is the per-conversation
	// ordering guarantee.
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(Cfg.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Consumer
	switch strings.ToLower(Cfg.ConsumerInitialOffset) {
	case "newest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	cfg.Consumer.Return.Errors = true

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func InitKafkaClient() error {
	cfg := BuildBaseConfig()
	c, err := sarama.NewClient(Cfg.Brokers, cfg)
	if err != nil {
		return err
	}
	KafkaClient = c
	return nil
}

// InitSyncProducerFromClient creates the one long-lived producer the
// gateway reuses for every publish.
func InitSyncProducerFromClient() error {
	p, err := sarama.NewSyncProducerFromClient(KafkaClient)
	if err != nil {
		return err
	}
	Producer = p
	return nil
}

// SendMessage publishes value to topic keyed by key (partition key).
func SendMessage(topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	_, _, err := Producer.SendMessage(msg)
	return err
}

func CloseProducer() {
	if Producer != nil {
		_ = Producer.Close()
	}
}

func CloseClient() {
	if KafkaClient != nil {
		_ = KafkaClient.Close()
	}
}
