package natsx

import (
	"context"
	"fmt"
)

// NatsManager 统一门面：对外只暴露这一个对象来用
type NatsManager struct {
	client   *NatsxClient
	producer *NatsxProducer
	consumer *NatsxConsumer
}

// NewNatsManager 初始化
func NewNatsManager(cfg NatsxConfig, middlewares ...NatsxMiddleware) (*NatsManager, error) {
	c, err := NewNatsxClient(cfg)
	if err != nil {
		return nil, err
	}
	return &NatsManager{
		client:   c,
		producer: NewNatsxProducer(c),
		consumer: NewNatsxConsumer(c, middlewares...),
	}, nil
}

// Close 释放资源（优雅关闭订阅与连接）
func (m *NatsManager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

// RegisterRoute 注册业务路由（biz -> subject / queue）
func (m *NatsManager) RegisterRoute(r NatsxRoute) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("manager not initialized")
	}
	return m.client.RegisterRoute(r)
}

// Publish 按 biz 路由生产消息
func (m *NatsManager) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	if m == nil || m.producer == nil {
		return fmt.Errorf("manager not initialized")
	}
	return m.producer.Publish(ctx, biz, data, hdr)
}

// PublishSubject 直接按 subject 生产消息
func (m *NatsManager) PublishSubject(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	if m == nil || m.producer == nil {
		return fmt.Errorf("manager not initialized")
	}
	return m.producer.PublishSubject(ctx, subject, data, hdr)
}

// Subscribe 订阅 biz 对应的 subject
func (m *NatsManager) Subscribe(biz string, h NatsxHandler) error {
	if m == nil || m.consumer == nil {
		return fmt.Errorf("manager not initialized")
	}
	return m.consumer.Subscribe(biz, h)
}
