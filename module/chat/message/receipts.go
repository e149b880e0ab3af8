package message

import (
	"context"
	"time"

	chatmodel "PMobility/module/chat/model"
	"PMobility/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MarkRead 把 reader 加入未读消息的 read_by（$addToSet）；reader 自己发的不算
// messageIDs 为 nil 表示整个会话
func (s *Store) MarkRead(ctx context.Context, conversationID, reader string, messageIDs []string) (int64, error) {
	if messageIDs != nil && len(messageIDs) == 0 {
		return 0, nil
	}
	filter := bson.M{
		chatmodel.MessageFieldConversationID: conversationID,
		chatmodel.MessageFieldSenderID:       bson.M{"$ne": reader},
		chatmodel.MessageFieldReadBy:         bson.M{"$ne": reader},
	}
	if messageIDs != nil {
		filter[chatmodel.MessageFieldMessageID] = bson.M{"$in": messageIDs}
	}
	res, err := s.MsgColl.UpdateMany(ctx, filter, bson.M{"$addToSet": bson.M{chatmodel.MessageFieldReadBy: reader}})
	if err != nil {
		return 0, errs.Storage(err, "mark read", "conversationId", conversationID)
	}
	return res.ModifiedCount, nil
}

// ListMessages 新的在前；before 非零时只取早于它的
func (s *Store) ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]*chatmodel.Message, error) {
	filter := bson.M{chatmodel.MessageFieldConversationID: conversationID}
	if !before.IsZero() {
		filter[chatmodel.MessageFieldCreateTime] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(bson.D{
		{Key: chatmodel.MessageFieldCreateTime, Value: -1},
		{Key: chatmodel.MessageFieldMessageID, Value: -1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.MsgColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Storage(err, "list messages", "conversationId", conversationID)
	}
	var out []*chatmodel.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Storage(err, "decode messages", "conversationId", conversationID)
	}
	return out, nil
}

// GetMessages 按 ID 批量取（会话列表带出最后一条消息）
func (s *Store) GetMessages(ctx context.Context, messageIDs []string) (map[string]*chatmodel.Message, error) {
	out := make(map[string]*chatmodel.Message, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	cur, err := s.MsgColl.Find(ctx, bson.M{chatmodel.MessageFieldMessageID: bson.M{"$in": messageIDs}})
	if err != nil {
		return nil, errs.Storage(err, "get messages")
	}
	var list []*chatmodel.Message
	if err := cur.All(ctx, &list); err != nil {
		return nil, errs.Storage(err, "decode messages")
	}
	for _, m := range list {
		out[m.MessageID] = m
	}
	return out, nil
}
