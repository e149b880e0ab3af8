package handlers

import (
	"context"

	"PMobility/global/event"
	"PMobility/service/chat"
	"PMobility/tools/decode"
	"PMobility/tools/errs"
)

type ReadMarker interface {
	MarkRead(ctx context.Context, conversationID, userID string) (int64, error)
}

// ReadMessages {"type":"read_messages","conversationId":"..."}
type ReadMessages struct {
	msgs ReadMarker
}

func NewReadMessages(msgs ReadMarker) *ReadMessages { return &ReadMessages{msgs: msgs} }

func (h *ReadMessages) Type() string { return event.TypeReadMessages }

func (h *ReadMessages) Handle(ctx context.Context, s *chat.Session, f *chat.Frame) error {
	conv, err := decode.ReadString(f.Payload, "conversationId")
	if err != nil {
		return errs.ErrInvalidInput.WrapMsg(err.Error())
	}
	_, err = h.msgs.MarkRead(ctx, conv, s.UserID)
	return err
}
