package natsx

import (
	"context"
	"sync"
	"time"
)

// ----- 抽象存储 -----
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

// ----- 内存实现（单进程） -----
type memIdem struct {
	mu        sync.Mutex
	m         map[string]time.Time // key -> expire
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewMemIdem(defaultTTL time.Duration) IdemStore {
	return &memIdem{m: make(map[string]time.Time), ttl: defaultTTL, now: time.Now}
}

func (mi *memIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()

	// 惰性清理，至多每个 ttl 一次
	if now.Sub(mi.lastSweep) >= ttl {
		for k, exp := range mi.m {
			if !exp.After(now) {
				delete(mi.m, k)
			}
		}
		mi.lastSweep = now
	}

	if exp, ok := mi.m[key]; ok && exp.After(now) {
		return true, nil
	}
	mi.m[key] = now.Add(ttl)
	return false, nil
}

// ----- 从消息头提取 msgID -----
func msgIDFromHeader(h map[string]string) string {
	for _, k := range []string{MsgIDHeader, "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := h[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// NatsxIdemMiddleware 按消息ID去重；无ID的消息直接放行
func NatsxIdemMiddleware(store IdemStore, ttl time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			id := msgIDFromHeader(msg.Header)
			if id == "" {
				return next(ctx, msg)
			}
			if seen, _ := store.SeenOnce(id, ttl); seen {
				return nil
			}
			return next(ctx, msg)
		}
	}
}
