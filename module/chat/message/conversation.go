package message

import (
	"context"
	"time"

	mgo "PMobility/data/database/mgo/mongoutil"
	chatmodel "PMobility/module/chat/model"
	"PMobility/tools/errs"
	"PMobility/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FindOrCreatePair 按 pair_key upsert；并发创建时唯一索引兜底，输家重读
func (s *Store) FindOrCreatePair(ctx context.Context, a, b string, now time.Time) (*chatmodel.Conversation, bool, error) {
	key := chatmodel.PairKey(a, b)
	res, err := s.ConvColl.UpdateOne(ctx,
		bson.M{chatmodel.ConversationFieldPairKey: key},
		bson.M{"$setOnInsert": bson.M{
			chatmodel.ConversationFieldConversationID: ids.GenerateString(),
			chatmodel.ConversationFieldParticipants:   []string{a, b},
			chatmodel.ConversationFieldPairKey:        key,
			chatmodel.ConversationFieldLastMessageAt:  now,
			chatmodel.ConversationFieldUnreadCounts:   map[string]int64{a: 0, b: 0},
			chatmodel.ConversationFieldCreateTime:     now,
			chatmodel.ConversationFieldUpdateTime:     now,
		}},
		options.Update().SetUpsert(true),
	)
	created := false
	switch {
	case err == nil:
		created = res.UpsertedCount > 0
	case mgo.IsDuplicateKey(err):
		// 另一请求先插入了
	default:
		return nil, false, errs.Storage(err, "upsert conversation", "pairKey", key)
	}

	var conv chatmodel.Conversation
	if err := s.ConvColl.FindOne(ctx, bson.M{chatmodel.ConversationFieldPairKey: key}).Decode(&conv); err != nil {
		return nil, false, errs.Storage(err, "find conversation", "pairKey", key)
	}
	return &conv, created, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*chatmodel.Conversation, error) {
	var conv chatmodel.Conversation
	err := s.ConvColl.FindOne(ctx, bson.M{chatmodel.ConversationFieldConversationID: conversationID}).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
	}
	if err != nil {
		return nil, errs.Storage(err, "find conversation", "conversationId", conversationID)
	}
	return &conv, nil
}

// ListConversations 按最近消息倒序
func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]*chatmodel.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: chatmodel.ConversationFieldLastMessageAt, Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.ConvColl.Find(ctx, bson.M{chatmodel.ConversationFieldParticipants: userID}, opts)
	if err != nil {
		return nil, errs.Storage(err, "list conversations", "userId", userID)
	}
	var out []*chatmodel.Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Storage(err, "decode conversations", "userId", userID)
	}
	return out, nil
}

// ApplyMessage 推进最后一条消息指针，并对每个接收人 $inc 未读数（单文档原子）
func (s *Store) ApplyMessage(ctx context.Context, conversationID, messageID string, at time.Time, recipients []string) error {
	inc := bson.M{}
	for _, r := range recipients {
		inc[chatmodel.UnreadField(r)] = 1
	}
	update := bson.M{"$set": bson.M{
		chatmodel.ConversationFieldLastMessageID: messageID,
		chatmodel.ConversationFieldLastMessageAt: at,
		chatmodel.ConversationFieldUpdateTime:    at,
	}}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	res, err := s.ConvColl.UpdateOne(ctx, bson.M{chatmodel.ConversationFieldConversationID: conversationID}, update)
	if err != nil {
		return errs.Storage(err, "apply message", "conversationId", conversationID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("conversation not found", "conversationId", conversationID)
	}
	return nil
}

// ResetUnread 把 userID 的未读数置 0
func (s *Store) ResetUnread(ctx context.Context, conversationID, userID string) error {
	_, err := s.ConvColl.UpdateOne(ctx,
		bson.M{chatmodel.ConversationFieldConversationID: conversationID},
		bson.M{"$set": bson.M{chatmodel.UnreadField(userID): int64(0)}},
	)
	return errs.Storage(err, "reset unread", "conversationId", conversationID)
}
