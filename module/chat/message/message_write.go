package message

import (
	"context"

	chatmodel "PMobility/module/chat/model"
	"PMobility/tools/errs"
)

func (s *Store) InsertMessage(ctx context.Context, m *chatmodel.Message) error {
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	_, err := s.MsgColl.InsertOne(ctx, m)
	return errs.Storage(err, "insert message", "conversationId", m.ConversationID)
}
