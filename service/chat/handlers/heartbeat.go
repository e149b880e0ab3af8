package handlers

import (
	"context"

	"PMobility/global/event"
	"PMobility/service/chat"
)

// Heartbeat 只刷新活跃时间，由读循环统一 Touch，这里无事可做
type Heartbeat struct{}

func NewHeartbeat() *Heartbeat { return &Heartbeat{} }

func (h *Heartbeat) Type() string { return event.TypeHeartbeat }

func (h *Heartbeat) Handle(context.Context, *chat.Session, *chat.Frame) error { return nil }
