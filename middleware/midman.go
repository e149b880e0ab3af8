package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

var (
	globalMgr *MiddlewareManager
	once      sync.Once
)

// MiddlewareManager 运行期可增删的全局中间件链
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

// Manager 全局实例（惰性初始化，线程安全）
func Manager() *MiddlewareManager {
	once.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}

// Add 注册中间件，按注册顺序执行
func (m *MiddlewareManager) Add(hs ...gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, hs...)
}

func (m *MiddlewareManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mids)
}

func (m *MiddlewareManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = nil
}

// Use 作为总控挂到 Engine 上；每个请求使用当时的快照，任一中间件 Abort 即停止
func (m *MiddlewareManager) Use() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		handlers := append([]gin.HandlerFunc{}, m.mids...)
		m.mu.RUnlock()

		for _, h := range handlers {
			h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}
