package kafka

import (
	"errors"

	"github.com/Shopify/sarama"
	"github.com/golang/glog"
)

// Client 持有 sarama client 与同步生产者
type Client struct {
	cfg      Config
	client   sarama.Client
	producer sarama.SyncProducer
}

// Dial 建立连接；AutoCreateTopics 时顺带确保 topics 存在
func Dial(c Config, topics ...string) (*Client, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka brokers missing")
	}
	cli, err := sarama.NewClient(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		return nil, err
	}
	if c.AutoCreateTopics && len(topics) > 0 {
		admin, err := sarama.NewClusterAdminFromClient(cli)
		if err != nil {
			_ = cli.Close()
			return nil, err
		}
		if err := EnsureTopics(admin, topics, c); err != nil {
			glog.Warningf("[Kafka] ensure topics err=%v", err)
		}
		// admin 与 client 共用连接，这里不能 Close admin
	}
	p, err := sarama.NewSyncProducerFromClient(cli)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}
	return &Client{cfg: c, client: cli, producer: p}, nil
}

// Producer 同步生产者
func (c *Client) Producer() sarama.SyncProducer { return c.producer }

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var err error
	if c.producer != nil {
		err = c.producer.Close()
	}
	if c.client != nil && !c.client.Closed() {
		if cerr := c.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// SendSync 按 key 分区发送
func SendSync(p sarama.SyncProducer, topic, key string, value []byte, headers map[string]string) (int32, int64, error) {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return p.SendMessage(msg)
}
