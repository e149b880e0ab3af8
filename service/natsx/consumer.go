package natsx

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/nats-io/nats.go"
)

// NatsxConsumer 消费端
type NatsxConsumer struct {
	c   *NatsxClient
	mws []NatsxMiddleware
}

func NewNatsxConsumer(c *NatsxClient, mws ...NatsxMiddleware) *NatsxConsumer {
	return &NatsxConsumer{c: c, mws: mws}
}

// Subscribe Core 订阅；配置了 Queue 时同组分摊
func (cs *NatsxConsumer) Subscribe(biz string, h NatsxHandler) error {
	r, ok := cs.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	h = NatsxChain(h, cs.mws...)

	cb := func(m *nats.Msg) {
		msg := NatsxMessage{
			Subject: m.Subject,
			Data:    append([]byte(nil), m.Data...),
			Header:  headerToMap(m.Header),
		}
		if err := h(context.Background(), msg); err != nil {
			glog.Warningf("[NATS] handler biz=%s subject=%s err=%v", biz, m.Subject, err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if r.Queue == "" {
		sub, err = cs.c.nc.Subscribe(r.Subject, cb)
	} else {
		sub, err = cs.c.nc.QueueSubscribe(r.Subject, r.Queue, cb)
	}
	if err != nil {
		return err
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	cs.c.mu.Lock()
	if old := cs.c.subs[biz]; old != nil {
		_ = old.Unsubscribe()
	}
	cs.c.subs[biz] = sub
	cs.c.mu.Unlock()
	return nil
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
