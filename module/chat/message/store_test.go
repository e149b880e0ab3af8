package message

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("create pair reports new conversation", func(mt *mtest.T) {
		s := &Store{ConvColl: mt.Coll, MsgColl: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(
				bson.E{Key: "n", Value: 1},
				bson.E{Key: "nModified", Value: 0},
				bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "x"}}}},
			),
			mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
				{Key: "conversation_id", Value: "c1"},
				{Key: "participants", Value: bson.A{"1", "2"}},
				{Key: "pair_key", Value: "1:2"},
			}),
		)
		c, created, err := s.FindOrCreatePair(context.Background(), "2", "1", time.Now())
		if err != nil {
			t.Fatalf("FindOrCreatePair: %v", err)
		}
		if !created || c.ConversationID != "c1" {
			t.Fatalf("created=%v conv=%+v", created, c)
		}
	})

	mt.Run("duplicate key falls back to read", func(mt *mtest.T) {
		s := &Store{ConvColl: mt.Coll, MsgColl: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}),
			mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
				{Key: "conversation_id", Value: "c1"},
				{Key: "pair_key", Value: "1:2"},
			}),
		)
		c, created, err := s.FindOrCreatePair(context.Background(), "1", "2", time.Now())
		if err != nil {
			t.Fatalf("FindOrCreatePair: %v", err)
		}
		if created || c.ConversationID != "c1" {
			t.Fatalf("created=%v conv=%+v", created, c)
		}
	})

	mt.Run("mark read returns modified count", func(mt *mtest.T) {
		s := &Store{ConvColl: mt.Coll, MsgColl: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 3}, bson.E{Key: "nModified", Value: 2}))
		n, err := s.MarkRead(context.Background(), "c1", "2", nil)
		if err != nil || n != 2 {
			t.Fatalf("MarkRead = %d %v", n, err)
		}
	})
}
