package mgo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	mgo "PMobility/data/database/mgo/mongoutil"

	"github.com/golang/glog"
	"go.mongodb.org/mongo-driver/mongo"
)

type MongoManager struct {
	mu        sync.RWMutex
	client    *mgo.Client
	readyCh   chan struct{} // 首次就绪通知；只会被 close 一次
	readyOnce sync.Once

	lastErr atomic.Value // error
}

var globalMgr = NewManager()

func NewManager() *MongoManager {
	return &MongoManager{readyCh: make(chan struct{})}
}

func Manager() *MongoManager {
	return globalMgr
}

// StartAsync 连接阶段带退避重试，首次连上时 close readyCh；之后进入健康检查直到 ctx.Done()
// 掉线重连交给驱动自身，健康检查只负责记录
func (m *MongoManager) StartAsync(ctx context.Context, cfg *mgo.Config) {
	go func() {
		const (
			baseBackoff = 200 * time.Millisecond
			maxBackoff  = 5 * time.Second
			healthEvery = 10 * time.Second // 健康检查周期
			failThresh  = 3                // 连续失败阈值
		)

		// ===== 连接阶段（带退避重试） =====
		attempt := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			cli, err := mgo.NewMongoDB(ctx, cfg)
			if err == nil {
				m.mu.Lock()
				m.client = cli
				m.mu.Unlock()
				m.readyOnce.Do(func() { close(m.readyCh) })
				glog.Infof("[Mongo] connected db=%s", cfg.Database)
				break
			}

			m.lastErr.Store(err)
			glog.Warningf("[Mongo] connect attempt=%d err=%v", attempt, err)

			// 退避 + 抖动
			backoff := baseBackoff << attempt
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			jitter := time.Duration(rand.Int63n(int64(backoff/5) + 1)) // 0~20%
			timer := time.NewTimer(backoff - jitter/2)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			if attempt < 6 {
				attempt++
			}
		}

		// ===== 健康检查阶段 =====
		m.healthLoop(ctx, healthEvery, failThresh)
	}()
}

func (m *MongoManager) healthLoop(ctx context.Context, every time.Duration, failThresh int) {
	fail := 0
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				return
			}
			if err := c.GetDB().Client().Ping(ctx, nil); err != nil {
				fail++
				m.lastErr.Store(err)
				if fail >= failThresh {
					glog.Errorf("[Mongo] unhealthy: %d consecutive ping failures, last err=%v", fail, err)
				}
			} else {
				if fail >= failThresh {
					glog.Infof("[Mongo] recovered")
				}
				fail = 0
			}
		}
	}
}

func (m *MongoManager) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
		m.client = nil
	}
}

// Ready 首次连接成功时会 close；可 select 等待
func (m *MongoManager) Ready() <-chan struct{} {
	return m.readyCh
}

// Err 最近一次错误
func (m *MongoManager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (m *MongoManager) GetDB() *mongo.Database {
	db, ok := m.TryGetDB()
	if !ok {
		panic("Mongo not ready: wait Ready() or use TryGetDB()")
	}
	return db
}

func (m *MongoManager) TryGetDB() (*mongo.Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, false
	}
	return m.client.GetDB(), true
}

// WaitReady 阻塞到首次就绪或 ctx 结束
func (m *MongoManager) WaitReady(ctx context.Context) error {
	if _, ok := m.TryGetDB(); ok {
		return nil
	}
	if m.readyCh == nil {
		return fmt.Errorf("mongo manager not started")
	}
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		if err := m.Err(); err != nil {
			return fmt.Errorf("mongo not ready: %w (last error: %v)", ctx.Err(), err)
		}
		return ctx.Err()
	}
}

// Close 断开当前连接；StartAsync 的 ctx 取消后调用
func (m *MongoManager) Close() {
	m.drop()
}
