package chat

import (
	"sort"
	"sync"
)

// Registry 用户 -> 当前连接；每个用户最多一条
// 新连接覆盖旧连接，旧连接不主动关闭，只是不再可达
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	hookMu   sync.RWMutex
	onBind   []func(userID string)
	onUnbind []func(userID string)
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// OnBind / OnUnbind 注册回调；在锁外同步调用
func (r *Registry) OnBind(fn func(userID string)) {
	r.hookMu.Lock()
	r.onBind = append(r.onBind, fn)
	r.hookMu.Unlock()
}

func (r *Registry) OnUnbind(fn func(userID string)) {
	r.hookMu.Lock()
	r.onUnbind = append(r.onUnbind, fn)
	r.hookMu.Unlock()
}

// Bind 绑定并返回被替换的旧连接（可能为 nil）
func (r *Registry) Bind(userID string, c *Conn) *Conn {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = c
	r.mu.Unlock()

	r.fire(r.bindHooks(), userID)
	return prev
}

// Unbind 仅当 c 仍是该用户的当前连接时移除，防止旧连接的关闭事件踢掉新连接
func (r *Registry) Unbind(userID string, c *Conn) bool {
	r.mu.Lock()
	cur, ok := r.conns[userID]
	if !ok || cur != c {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	r.mu.Unlock()

	r.fire(r.unbindHooks(), userID)
	return true
}

func (r *Registry) Lookup(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

func (r *Registry) IsConnected(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// ConnectedUserIDs 排序后的在线用户列表
func (r *Registry) ConnectedUserIDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.conns))
	for u := range r.conns {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll 停机时关闭所有连接，返回关闭数量
func (r *Registry) CloseAll(code int, text string) int {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	for _, c := range conns {
		c.Close(code, text)
	}
	return len(conns)
}

func (r *Registry) bindHooks() []func(string) {
	r.hookMu.RLock()
	defer r.hookMu.RUnlock()
	return r.onBind
}

func (r *Registry) unbindHooks() []func(string) {
	r.hookMu.RLock()
	defer r.hookMu.RUnlock()
	return r.onUnbind
}

func (r *Registry) fire(hooks []func(string), userID string) {
	for _, h := range hooks {
		h(userID)
	}
}
