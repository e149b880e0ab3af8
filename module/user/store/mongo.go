package store

import (
	"context"
	"time"

	"PMobility/data/database"
	usermodel "PMobility/module/user/model"
	"PMobility/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Mongo struct {
	Coll *mongo.Collection // client
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{Coll: database.Coll(db, &usermodel.User{})}
}

// EnsureIndexes user_id 唯一；在线扫描走 (is_online, last_active_at)
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.Coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: usermodel.UserFieldUserID, Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: usermodel.UserFieldIsOnline, Value: 1}, {Key: usermodel.UserFieldLastActiveAt, Value: 1}}},
	})
	return err
}

// Create 写入用户主档（初始化数据/测试使用）
func (s *Mongo) Create(ctx context.Context, u *usermodel.User) error {
	now := time.Now()
	if u.CreateTime.IsZero() {
		u.CreateTime = now
	}
	u.UpdateTime = now
	if u.Friends == nil {
		u.Friends = []string{}
	}
	_, err := s.Coll.InsertOne(ctx, u)
	return errs.Storage(err, "insert user", "userId", u.UserID)
}

func (s *Mongo) Get(ctx context.Context, userID string) (*usermodel.User, error) {
	var u usermodel.User
	err := s.Coll.FindOne(ctx, bson.M{usermodel.UserFieldUserID: userID}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WrapMsg("user not found", "userId", userID)
	}
	if err != nil {
		return nil, errs.Storage(err, "find user", "userId", userID)
	}
	return &u, nil
}

func (s *Mongo) GetMany(ctx context.Context, userIDs []string) (map[string]*usermodel.User, error) {
	out := make(map[string]*usermodel.User, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	cur, err := s.Coll.Find(ctx, bson.M{usermodel.UserFieldUserID: bson.M{"$in": userIDs}})
	if err != nil {
		return nil, errs.Storage(err, "find users")
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var u usermodel.User
		if err := cur.Decode(&u); err != nil {
			return nil, errs.Storage(err, "decode user")
		}
		out[u.UserID] = &u
	}
	return out, errs.Storage(cur.Err(), "iterate users")
}

func (s *Mongo) MarkOnline(ctx context.Context, userID string, at time.Time) error {
	return s.updateOne(ctx, userID, bson.M{
		usermodel.UserFieldIsOnline:     true,
		usermodel.UserFieldLastActiveAt: at,
		usermodel.UserFieldUpdateTime:   at,
	})
}

func (s *Mongo) Touch(ctx context.Context, userID string, at time.Time) error {
	return s.updateOne(ctx, userID, bson.M{
		usermodel.UserFieldLastActiveAt: at,
	})
}

func (s *Mongo) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*usermodel.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: usermodel.UserFieldLastActiveAt, Value: 1}}).
		SetProjection(bson.M{usermodel.UserFieldDevices: 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.Coll.Find(ctx, bson.M{
		usermodel.UserFieldIsOnline:     true,
		usermodel.UserFieldLastActiveAt: bson.M{"$lt": cutoff},
	}, opts)
	if err != nil {
		return nil, errs.Storage(err, "find stale users")
	}
	var out []*usermodel.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Storage(err, "decode stale users")
	}
	return out, nil
}

func (s *Mongo) MarkOffline(ctx context.Context, userID string, activeBefore time.Time) (bool, error) {
	filter := bson.M{
		usermodel.UserFieldUserID:   userID,
		usermodel.UserFieldIsOnline: true,
	}
	if !activeBefore.IsZero() {
		filter[usermodel.UserFieldLastActiveAt] = bson.M{"$lt": activeBefore}
	}
	res, err := s.Coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		usermodel.UserFieldIsOnline:   false,
		usermodel.UserFieldUpdateTime: time.Now(),
	}})
	if err != nil {
		return false, errs.Storage(err, "mark offline", "userId", userID)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Mongo) UpdateLocation(ctx context.Context, userID string, loc usermodel.Location, at time.Time) error {
	return s.updateOne(ctx, userID, bson.M{
		usermodel.UserFieldLastLocation: loc,
		usermodel.UserFieldUpdateTime:   at,
	})
}

// AddDevice 同一令牌只保留一条
func (s *Mongo) AddDevice(ctx context.Context, userID string, dev usermodel.Device) error {
	res, err := s.Coll.UpdateOne(ctx,
		bson.M{usermodel.UserFieldUserID: userID, usermodel.UserFieldDevices + ".token": bson.M{"$ne": dev.Token}},
		bson.M{
			"$push": bson.M{usermodel.UserFieldDevices: dev},
			"$set":  bson.M{usermodel.UserFieldUpdateTime: dev.CreateTime},
		})
	if err != nil {
		return errs.Storage(err, "add device", "userId", userID)
	}
	if res.MatchedCount == 0 {
		// 令牌已存在也会走到这里，区分一下用户是否存在
		if _, err := s.Get(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Mongo) updateOne(ctx context.Context, userID string, set bson.M) error {
	res, err := s.Coll.UpdateOne(ctx, bson.M{usermodel.UserFieldUserID: userID}, bson.M{"$set": set})
	if err != nil {
		return errs.Storage(err, "update user", "userId", userID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound.WrapMsg("user not found", "userId", userID)
	}
	return nil
}
