package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Frame 上行 JSON 帧：{type, ...payload}
type Frame struct {
	Type    string
	Payload map[string]any
}

func ParseFrame(raw []byte) (*Frame, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	t, _ := m["type"].(string)
	if t == "" {
		return nil, fmt.Errorf("frame without type")
	}
	delete(m, "type")
	return &Frame{Type: t, Payload: m}, nil
}

// Session 帧处理时的调用方
type Session struct {
	UserID string
	Conn   *Conn
}

// Handler 按帧类型处理
type Handler interface {
	Type() string
	Handle(ctx context.Context, s *Session, f *Frame) error
}

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(hs ...Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range hs {
		d.handlers[h.Type()] = h
	}
}

func (d *Dispatcher) GetHandler(t string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[t]
}

// Dispatch 返回帧类型是否被识别；未识别的帧直接忽略
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, f *Frame) (bool, error) {
	h := d.GetHandler(f.Type)
	if h == nil {
		return false, nil
	}
	return true, h.Handle(ctx, s, f)
}
