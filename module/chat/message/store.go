package message

import (
	"context"

	"PMobility/data/database"
	chatmodel "PMobility/module/chat/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	ConvColl *mongo.Collection // conversation
	MsgColl  *mongo.Collection // message
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		ConvColl: database.Coll(db, &chatmodel.Conversation{}),
		MsgColl:  database.Coll(db, &chatmodel.Message{}),
	}
}

// EnsureIndexes pair_key 唯一索引是“同一对用户只有一个会话”的保证
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.ConvColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: chatmodel.ConversationFieldConversationID, Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: chatmodel.ConversationFieldPairKey, Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: chatmodel.ConversationFieldParticipants, Value: 1}, {Key: chatmodel.ConversationFieldLastMessageAt, Value: -1}}},
	}); err != nil {
		return err
	}
	_, err := s.MsgColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: chatmodel.MessageFieldMessageID, Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: chatmodel.MessageFieldConversationID, Value: 1}, {Key: chatmodel.MessageFieldCreateTime, Value: -1}}},
		{Keys: bson.D{{Key: chatmodel.MessageFieldSenderID, Value: 1}}},
	})
	return err
}
