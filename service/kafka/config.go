package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// Config 推送通道使用的 Kafka 配置
type Config struct {
	Brokers             []string
	ClientID            string
	ProducerRetries     int
	ProducerCompression string // none/snappy/lz4/zstd
	KafkaVersion        sarama.KafkaVersion

	// 启动时确保 topic 存在
	AutoCreateTopics   bool
	PartitionsPerTopic int32
	ReplicationFactor  int16
}

// DefaultConfig 单机可用的默认值
func DefaultConfig(brokers []string) Config {
	return Config{
		Brokers:             brokers,
		ClientID:            "pmobility",
		ProducerRetries:     3,
		ProducerCompression: "snappy",
		KafkaVersion:        sarama.V2_1_0_0,
		AutoCreateTopics:    true,
		PartitionsPerTopic:  8,
		ReplicationFactor:   1,
	}
}

func BuildBaseConfig(c Config) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = c.KafkaVersion
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	if c.ProducerRetries <= 0 {
		c.ProducerRetries = 1
	}
	cfg.Producer.Retry.Max = c.ProducerRetries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // Key 决定分区，同一用户保持有序
	switch strings.ToLower(c.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}
