package chat

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"PMobility/global/event"
	"PMobility/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type fakePresence struct {
	mu           sync.Mutex
	failOnline   error
	online       []string
	announced    []string
	synced       []string
	touched      []string
	disconnected []string
}

func (p *fakePresence) MarkOnline(_ context.Context, u string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOnline != nil {
		return p.failOnline
	}
	p.online = append(p.online, u)
	return nil
}

func (p *fakePresence) AnnounceOnline(_ context.Context, u string) {
	p.mu.Lock()
	p.announced = append(p.announced, u)
	p.mu.Unlock()
}

func (p *fakePresence) SyncFriendsTo(_ context.Context, u string) {
	p.mu.Lock()
	p.synced = append(p.synced, u)
	p.mu.Unlock()
}

func (p *fakePresence) Touch(_ context.Context, u string) {
	p.mu.Lock()
	p.touched = append(p.touched, u)
	p.mu.Unlock()
}

func (p *fakePresence) Disconnected(u string, _ time.Time) {
	p.mu.Lock()
	p.disconnected = append(p.disconnected, u)
	p.mu.Unlock()
}

func (p *fakePresence) count(list *[]string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(*list)
}

// recordHandler 记录收到的帧
type recordHandler struct {
	typ string
	mu  sync.Mutex
	got []*Frame
	err error
}

func (h *recordHandler) Type() string { return h.typ }

func (h *recordHandler) Handle(_ context.Context, _ *Session, f *Frame) error {
	h.mu.Lock()
	h.got = append(h.got, f)
	h.mu.Unlock()
	return h.err
}

func (h *recordHandler) frames() []*Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Frame(nil), h.got...)
}

type wsFixture struct {
	srv      *httptest.Server
	reg      *Registry
	delivery *Delivery
	presence *fakePresence
	jwt      security.Options
	typing   *recordHandler
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &wsFixture{
		reg:      NewRegistry(),
		presence: &fakePresence{},
		jwt:      security.DefaultOptions([]byte("ws-test")),
		typing:   &recordHandler{typ: event.TypeTyping, err: errors.New("not a participant")},
	}
	f.delivery = NewDelivery(f.reg)

	frames := NewDispatcher()
	frames.Register(&recordHandler{typ: event.TypeHeartbeat}, f.typing)

	s := NewServer(ServerConf{JWT: f.jwt}, f.reg, f.presence, frames)
	r := gin.New()
	r.GET("/ws", s.HandleWS)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T, userID, role string) *websocket.Conn {
	t.Helper()
	tok := "garbage"
	if userID != "" {
		var err error
		tok, _, err = security.Generate(f.jwt, userID, role)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + tok
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func expectPolicyClose(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected close 1008, got %v", err)
	}
}

func TestHandleWSRejects(t *testing.T) {
	f := newWSFixture(t)

	t.Run("bad token", func(t *testing.T) {
		expectPolicyClose(t, f.dial(t, "", ""))
	})
	t.Run("wrong role", func(t *testing.T) {
		expectPolicyClose(t, f.dial(t, "9", "admin"))
	})
	t.Run("mark online fails", func(t *testing.T) {
		f.presence.mu.Lock()
		f.presence.failOnline = errors.New("mongo down")
		f.presence.mu.Unlock()
		defer func() {
			f.presence.mu.Lock()
			f.presence.failOnline = nil
			f.presence.mu.Unlock()
		}()
		expectPolicyClose(t, f.dial(t, "1001", security.RoleClient))
	})

	if f.reg.Len() != 0 {
		t.Fatalf("rejected sockets must never be bound")
	}
}

func TestHandleWSLifecycle(t *testing.T) {
	f := newWSFixture(t)
	ws := f.dial(t, "1001", security.RoleClient)

	waitFor(t, "bind", func() bool { return f.reg.IsConnected("1001") })
	waitFor(t, "friend sync", func() bool { return f.presence.count(&f.presence.synced) == 1 })
	if f.presence.count(&f.presence.online) != 1 || f.presence.count(&f.presence.announced) != 1 {
		t.Fatalf("online/announce not called: %+v", f.presence)
	}

	// 下行
	if !f.delivery.Dispatch("1001", event.NewStatusUpdate("1002", true)) {
		t.Fatalf("dispatch to bound user failed")
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got event.StatusUpdate
	if err := ws.ReadJSON(&got); err != nil || got.UserID != "1002" || !got.IsOnline {
		t.Fatalf("read status_update = %+v err=%v", got, err)
	}

	// 上行：垃圾帧和未知类型被忽略，不刷新活跃
	for _, raw := range []string{`not json`, `{"type":"dance"}`, `{"no":"type"}`} {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = ws.WriteJSON(map[string]any{"type": event.TypeHeartbeat})
	_ = ws.WriteJSON(map[string]any{"type": event.TypeTyping, "conversationId": "c1"})
	waitFor(t, "typing frame", func() bool { return len(f.typing.frames()) == 1 })
	if n := f.presence.count(&f.presence.touched); n != 2 {
		t.Fatalf("touched %d times, want 2 (heartbeat + typing)", n)
	}
	if fr := f.typing.frames()[0]; fr.Payload["conversationId"] != "c1" {
		t.Fatalf("payload = %v", fr.Payload)
	}

	// 处理器报错不断开连接
	if !f.reg.IsConnected("1001") {
		t.Fatalf("in-band errors must not close the socket")
	}

	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	waitFor(t, "unbind", func() bool { return !f.reg.IsConnected("1001") })
	waitFor(t, "disconnected", func() bool { return f.presence.count(&f.presence.disconnected) == 1 })
}

func TestHandleWSReconnectKeepsNewBinding(t *testing.T) {
	f := newWSFixture(t)
	first := f.dial(t, "1001", security.RoleClient)
	waitFor(t, "first bind", func() bool { return f.reg.IsConnected("1001") })
	firstConn, _ := f.reg.Lookup("1001")

	f.dial(t, "1001", security.RoleClient)
	waitFor(t, "rebind", func() bool {
		c, ok := f.reg.Lookup("1001")
		return ok && c != firstConn
	})

	_ = first.Close()
	waitFor(t, "first conn done", func() bool { return firstConn.Closed() })
	time.Sleep(20 * time.Millisecond)
	if !f.reg.IsConnected("1001") {
		t.Fatalf("stale close unbound the new connection")
	}
	if n := f.presence.count(&f.presence.disconnected); n != 0 {
		t.Fatalf("Disconnected called %d times for a stale socket", n)
	}
}

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"read_messages","conversationId":"abc"}`))
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Type != event.TypeReadMessages || f.Payload["conversationId"] != "abc" {
		t.Fatalf("frame = %+v", f)
	}
	if _, ok := f.Payload["type"]; ok {
		t.Fatalf("type should be stripped from payload")
	}
	for _, raw := range []string{``, `[]`, `{"type":1}`, `{"type":""}`} {
		if _, err := ParseFrame([]byte(raw)); err == nil {
			t.Errorf("ParseFrame(%q) should fail", raw)
		}
	}
}

func TestDispatcherUnknownType(t *testing.T) {
	d := NewDispatcher()
	h := &recordHandler{typ: event.TypeHeartbeat}
	d.Register(h)

	ok, err := d.Dispatch(context.Background(), &Session{UserID: "1"}, &Frame{Type: "nope"})
	if ok || err != nil {
		t.Fatalf("unknown frame = %v %v", ok, err)
	}
	ok, err = d.Dispatch(context.Background(), &Session{UserID: "1"}, &Frame{Type: event.TypeHeartbeat})
	if !ok || err != nil || len(h.frames()) != 1 {
		t.Fatalf("heartbeat = %v %v", ok, err)
	}
}
