package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PMobility/global"
	"PMobility/logger"
	"PMobility/service/kafka"

	"github.com/Shopify/sarama"
	"github.com/google/uuid"
)

const (
	previewMax  = 50
	previewKeep = 47
)

// Request 一条待推送的通知，按设备令牌展开
type Request struct {
	UserID string            `json:"userId"`
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Notifier 推送出口；失败只影响推送本身
type Notifier interface {
	Notify(ctx context.Context, req Request) error
}

// Preview 超过 50 个字符时截取前 47 个并追加 "..."
func Preview(content string) string {
	r := []rune(content)
	if len(r) <= previewMax {
		return content
	}
	return string(r[:previewKeep]) + "..."
}

// ===== Kafka =====

// envelope 写入推送 topic 的消息体，由下游推送服务消费
type envelope struct {
	RequestID string    `json:"requestId"`
	Request
	CreatedAt time.Time `json:"createdAt"`
}

type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

func NewKafkaNotifier(p sarama.SyncProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: p, topic: topic, now: time.Now}
}

func (n *KafkaNotifier) Notify(ctx context.Context, req Request) error {
	if len(req.Tokens) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	env := envelope{RequestID: uuid.NewString(), Request: req, CreatedAt: n.now().UTC()}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, _, err = kafka.SendSync(n.producer, n.topic, global.PushKey(req.UserID), b,
		map[string]string{"request-id": env.RequestID})
	if err != nil {
		return fmt.Errorf("push enqueue user=%s: %w", req.UserID, err)
	}
	return nil
}

// ===== 日志 =====

// LogNotifier 未配置 Kafka 时使用
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, req Request) error {
	if len(req.Tokens) == 0 {
		return nil
	}
	logger.Debugf("[Push] user=%s devices=%d title=%q body=%q", req.UserID, len(req.Tokens), req.Title, req.Body)
	return nil
}
