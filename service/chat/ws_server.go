package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"PMobility/logger"
	"PMobility/tools/safe"
	"PMobility/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Presence 连接生命周期里用到的在线状态操作
type Presence interface {
	MarkOnline(ctx context.Context, userID string) error
	AnnounceOnline(ctx context.Context, userID string)
	SyncFriendsTo(ctx context.Context, userID string)
	Touch(ctx context.Context, userID string)
	Disconnected(userID string, at time.Time)
}

type ServerConf struct {
	JWT            security.Options
	TokenQuery     string // 默认 "token"
	Conn           ConnConf
	ReadLimit      int64         // 单帧上限
	PongWait       time.Duration // 读超时，收到任意帧或 pong 时顺延
	StorageTimeout time.Duration // 单帧处理超时
	CheckOrigin    func(r *http.Request) bool
	Clock          func() time.Time
}

func (c *ServerConf) norm() {
	c.Conn.norm()
	if c.TokenQuery == "" {
		c.TokenQuery = "token"
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 * 1024
	}
	if c.PongWait <= 0 {
		c.PongWait = 2*c.Conn.PingInterval + c.Conn.WriteWait
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = 5 * time.Second
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(r *http.Request) bool { return true }
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Server /ws 接入：鉴权、上线、绑定、读循环、收尾
type Server struct {
	conf     ServerConf
	upgrader websocket.Upgrader
	reg      *Registry
	presence Presence
	frames   *Dispatcher
}

func NewServer(conf ServerConf, reg *Registry, presence Presence, frames *Dispatcher) *Server {
	safe.MustNotNil(reg, "registry")
	safe.MustNotNil(presence, "presence")
	safe.MustNotNil(frames, "frames")
	conf.norm()
	return &Server{
		conf:     conf,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: conf.CheckOrigin},
		reg:      reg,
		presence: presence,
		frames:   frames,
	}
}

func (s *Server) Registry() *Registry { return s.reg }

// HandleWS ===== WebSocket 处理 =====
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[WS] upgrade websocket error: %v", err)
		return
	}

	// ---- 鉴权：只允许 client 角色 ----
	token := c.Query(s.conf.TokenQuery)
	id, err := security.Verify(s.conf.JWT, token)
	if err != nil || id.Role != security.RoleClient {
		reason := "role not allowed"
		if err != nil {
			reason = err.Error()
		}
		logger.Info("[WS] authentication failed", zap.String("remote", c.ClientIP()), zap.String("reason", reason))
		s.reject(ws, "authentication failed")
		return
	}
	userID := id.UserID

	// ---- 上线落库是可用前提，失败即断开 ----
	ctx, cancel := context.WithTimeout(context.Background(), s.conf.StorageTimeout)
	err = s.presence.MarkOnline(ctx, userID)
	cancel()
	if err != nil {
		logger.Warn("[WS] mark online failed", zap.String("userId", userID), zap.Error(err))
		s.reject(ws, "authentication failed")
		return
	}

	conn := NewConn(userID, ws, s.conf.Conn)
	if prev := s.reg.Bind(userID, conn); prev != nil {
		logger.Info("[WS] connection replaced", zap.String("userId", userID), zap.String("prevConn", prev.ID))
	}
	conn.Start()
	logger.Info("[WS] connected", zap.String("userId", userID), zap.String("connId", conn.ID))

	ctx, cancel = context.WithTimeout(context.Background(), s.conf.StorageTimeout)
	s.presence.AnnounceOnline(ctx, userID)
	s.presence.SyncFriendsTo(ctx, userID)
	cancel()

	s.readLoop(ws, &Session{UserID: userID, Conn: conn})

	// ---- 收尾：只解绑自己，不直接下线 ----
	conn.Close(websocket.CloseNormalClosure, "")
	if s.reg.Unbind(userID, conn) {
		s.presence.Disconnected(userID, s.conf.Clock())
	}
	logger.Info("[WS] disconnected", zap.String("userId", userID), zap.String("connId", conn.ID))
}

// ---- 读循环：只读，不写；出错即退出（写协程收尾） ----
func (s *Server) readLoop(ws *websocket.Conn, sess *Session) {
	ws.SetReadLimit(s.conf.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.conf.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.conf.PongWait))
	})

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			logReadErr(sess.UserID, rerr)
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.conf.PongWait))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, err := ParseFrame(data)
		if err != nil {
			logger.Info("[WS] unparseable frame", zap.String("userId", sess.UserID), zap.Error(err), zap.ByteString("sample", sample(data)))
			continue
		}
		s.handleFrame(sess, frame)
	}
}

func (s *Server) handleFrame(sess *Session, f *Frame) {
	if s.frames.GetHandler(f.Type) == nil {
		logger.Debug("[WS] unknown frame type", zap.String("userId", sess.UserID), zap.String("type", f.Type))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.conf.StorageTimeout)
	defer cancel()

	s.presence.Touch(ctx, sess.UserID)
	safe.Run("ws-frame-"+f.Type, func() {
		if _, err := s.frames.Dispatch(ctx, sess, f); err != nil {
			// 带内错误不回 NACK
			logger.Debug("[WS] frame ignored", zap.String("userId", sess.UserID), zap.String("type", f.Type), zap.Error(err))
		}
	})
}

// reject 发送 1008 后关闭
func (s *Server) reject(ws *websocket.Conn, text string) {
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, text),
		time.Now().Add(s.conf.Conn.WriteWait))
	_ = ws.Close()
}

func logReadErr(userID string, err error) {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		logger.Infof("[WS] peer closed userId=%s err=%v", userID, err)
	} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
		logger.Infof("[WS] read timeout userId=%s err=%v", userID, err)
	} else {
		logger.Infof("[WS] read err userId=%s err=%v", userID, err)
	}
}

func sample(b []byte) []byte {
	const max = 256
	if len(b) > max {
		return b[:max]
	}
	return b
}
