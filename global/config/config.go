package config

import (
	"context"
	"fmt"
	"time"

	"PMobility/data/database/mgo/mongoutil"
	"PMobility/logger"
	"PMobility/service/kafka"
	mgoSrv "PMobility/service/mgo"
	"PMobility/service/natsx"
	redis "PMobility/service/storage/redis"
	ids "PMobility/tools/ids"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// 各基础设施的启动；未配置的组件由调用方跳过

func ConfigIds(c *AppConfig) {
	logger.Infof("配置id生成 node=%d", c.SnowflakeNode)
	ids.SetNodeID(c.SnowflakeNode)
}

// ConfigMgo 异步连接 Mongo，最多等待 wait
func ConfigMgo(ctx context.Context, c *AppConfig, wait time.Duration) (*mongo.Database, error) {
	cfg := &mongoutil.Config{
		Uri:         c.MongoURI,
		Database:    c.MongoDatabase,
		MaxPoolSize: c.MongoMaxPool,
		AppName:     c.NodeID,
	}
	mgr := mgoSrv.Manager()
	mgr.StartAsync(ctx, cfg)

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := mgr.WaitReady(waitCtx); err != nil {
		return nil, err
	}
	return mgr.GetDB(), nil
}

func ConfigRedis(c *AppConfig) (*goredis.Client, error) {
	err := redis.InitRedis(redis.Config{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("redis %s: %w", c.RedisAddr, err)
	}
	return redis.GetRedis(), nil
}

// ConfigNats 消费端带 Nats-Msg-Id 去重
func ConfigNats(c *AppConfig) (*natsx.NatsManager, error) {
	const dedupeTTL = 2 * time.Minute
	return natsx.NewNatsManager(natsx.NatsxConfig{
		Servers: c.NatsServers,
		Name:    "pmobility-" + c.NodeID,
	}, natsx.NatsxIdemMiddleware(natsx.NewMemIdem(dedupeTTL), dedupeTTL))
}

// ConfigKafka 推送请求的生产者，按需建 topic
func ConfigKafka(c *AppConfig) (*kafka.Client, error) {
	kc := kafka.DefaultConfig(c.KafkaBrokers)
	kc.ClientID = "pmobility-" + c.NodeID
	return kafka.Dial(kc, c.PushTopic)
}
