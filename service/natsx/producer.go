package natsx

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// MsgIDHeader 去重用的消息ID头
const MsgIDHeader = "Nats-Msg-Id"

// NatsxProducer 生产端
type NatsxProducer struct{ c *NatsxClient }

func NewNatsxProducer(c *NatsxClient) *NatsxProducer { return &NatsxProducer{c: c} }

// Publish 按 Biz 路由发送
func (p *NatsxProducer) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	r, ok := p.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	return p.PublishSubject(ctx, r.Subject, data, hdr)
}

// PublishSubject 直接发往 subject（按节点寻址时使用）
func (p *NatsxProducer) PublishSubject(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}
	if err := p.c.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}
