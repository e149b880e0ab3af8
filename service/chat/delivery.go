package chat

import (
	"encoding/json"
	"sync/atomic"

	"PMobility/global/event"
	"PMobility/logger"

	"go.uber.org/zap"
)

// Relay 把本节点没有连接的事件转给持有该用户的节点
type Relay interface {
	Forward(userID string, payload []byte)
}

// Delivery 尽力投递：查注册表，非阻塞写入发送队列；不排队不重试
type Delivery struct {
	reg   *Registry
	relay atomic.Value // relayHolder
}

type relayHolder struct{ r Relay }

var _ event.Dispatcher = (*Delivery)(nil)

func NewDelivery(reg *Registry) *Delivery {
	return &Delivery{reg: reg}
}

// SetRelay 开启跨节点转发；nil 关闭
func (d *Delivery) SetRelay(r Relay) {
	d.relay.Store(relayHolder{r: r})
}

func (d *Delivery) getRelay() Relay {
	if h, ok := d.relay.Load().(relayHolder); ok {
		return h.r
	}
	return nil
}

// Dispatch 只有写进本地连接的发送队列才算送达
func (d *Delivery) Dispatch(userID string, evt any) bool {
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.Error("[Delivery] marshal event", zap.String("userId", userID), zap.Error(err))
		return false
	}
	return d.DispatchRaw(userID, payload)
}

// Broadcast 序列化一次，逐个投递，返回本地送达数
func (d *Delivery) Broadcast(userIDs []string, evt any) int {
	if len(userIDs) == 0 {
		return 0
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.Error("[Delivery] marshal event", zap.Int("targets", len(userIDs)), zap.Error(err))
		return 0
	}
	n := 0
	for _, u := range userIDs {
		if d.DispatchRaw(u, payload) {
			n++
		}
	}
	return n
}

// DispatchRaw 本地未绑定时交给 relay（如有），结果仍按未送达计
func (d *Delivery) DispatchRaw(userID string, payload []byte) bool {
	c, ok := d.reg.Lookup(userID)
	if ok {
		if c.Enqueue(payload) {
			return true
		}
		logger.Debug("[Delivery] send queue full or closed", zap.String("userId", userID), zap.String("connId", c.ID))
		return false
	}
	if r := d.getRelay(); r != nil {
		r.Forward(userID, payload)
	}
	return false
}

// DeliverLocal 只投本地，relay 入站使用，避免来回转发
func (d *Delivery) DeliverLocal(userID string, payload []byte) bool {
	c, ok := d.reg.Lookup(userID)
	if !ok {
		return false
	}
	return c.Enqueue(payload)
}
