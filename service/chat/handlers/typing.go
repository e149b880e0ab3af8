package handlers

import (
	"context"

	"PMobility/global/event"
	"PMobility/service/chat"
	"PMobility/tools/decode"
	"PMobility/tools/errs"
)

type TypingNotifier interface {
	NotifyTyping(ctx context.Context, conversationID, userID string, typing bool) (int, error)
}

// Typing typing / stop_typing 共用，只转发给会话其他成员
type Typing struct {
	msgs   TypingNotifier
	typing bool
}

func NewTyping(msgs TypingNotifier) *Typing { return &Typing{msgs: msgs, typing: true} }

func NewStopTyping(msgs TypingNotifier) *Typing { return &Typing{msgs: msgs} }

func (h *Typing) Type() string {
	if h.typing {
		return event.TypeTyping
	}
	return event.TypeStopTyping
}

func (h *Typing) Handle(ctx context.Context, s *chat.Session, f *chat.Frame) error {
	conv, err := decode.ReadString(f.Payload, "conversationId")
	if err != nil {
		return errs.ErrInvalidInput.WrapMsg(err.Error())
	}
	_, err = h.msgs.NotifyTyping(ctx, conv, s.UserID, h.typing)
	return err
}

// All 按依赖组装全部上行帧处理器
func All(users LocationUpdater, msgs interface {
	ReadMarker
	TypingNotifier
}) []chat.Handler {
	return []chat.Handler{
		NewHeartbeat(),
		NewLocation(users),
		NewReadMessages(msgs),
		NewTyping(msgs),
		NewStopTyping(msgs),
	}
}
