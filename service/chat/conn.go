package chat

import (
	"sync"
	"time"

	"PMobility/tools/safe"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Socket 写端抽象；*websocket.Conn 满足，测试用 fake
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ---- 常量参数 ----
type ConnConf struct {
	SendQueue    int           // 发送队列长度，满了即丢
	PingInterval time.Duration // 心跳 ping 周期
	WriteWait    time.Duration // 单次写超时
}

func (c *ConnConf) norm() {
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
}

// Conn 一条已鉴权的连接；只有写协程碰 socket 的写端
type Conn struct {
	ID     string
	UserID string

	sock Socket
	conf ConnConf
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
	closeCode int
	closeText string
}

func NewConn(userID string, sock Socket, conf ConnConf) *Conn {
	conf.norm()
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		sock:   sock,
		conf:   conf,
		send:   make(chan []byte, conf.SendQueue),
		done:   make(chan struct{}),
	}
}

// Enqueue 非阻塞写入发送队列；已关闭或队列满返回 false
func (c *Conn) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close 通知写协程发送 close 帧并关闭 socket；可重复调用
func (c *Conn) Close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeText = code, text
		close(c.done)
	})
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Start 启动写协程
func (c *Conn) Start() {
	safe.SafeGo("ws-write-"+c.UserID, c.writePump)
}

// ===== 写协程：发送队列 + 定时 ping + 收尾 close 帧 =====
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.conf.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close(websocket.CloseAbnormalClosure, "")
		_ = c.sock.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.conf.WriteWait)); err != nil {
				return
			}
		case <-c.done:
			_ = c.sock.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeText),
				time.Now().Add(c.conf.WriteWait))
			return
		}
	}
}
