package service

import (
	"context"
	"sync"
	"time"

	"PMobility/global/event"
	"PMobility/logger"
	usermodel "PMobility/module/user/model"
	"PMobility/module/user/store"
	"PMobility/tools/safe"

	"go.uber.org/zap"
)

// ===== 配置 =====

type TrackerConf struct {
	SweepEvery     time.Duration // 扫描周期，默认 30s
	InactiveAfter  time.Duration // 无活动多久判定离线，默认 2m
	OfflineGrace   time.Duration // >0 时断线后延迟下线；0=只靠扫描
	SweepBatch     int           // 每批处理的用户数
	StorageTimeout time.Duration // 后台任务单次存储调用超时
	Clock          func() time.Time
}

func (c *TrackerConf) norm() {
	if c.SweepEvery <= 0 {
		c.SweepEvery = 30 * time.Second
	}
	if c.InactiveAfter <= 0 {
		c.InactiveAfter = 2 * time.Minute
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 500
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = 5 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// ConnChecker 查询用户是否在本节点有连接
type ConnChecker interface {
	IsConnected(userID string) bool
}

// Tracker 维护 is_online / last_active_at
// Offline -> Online 只发生在连接鉴权成功；Online -> Offline 由扫描（或延迟下线计时器）完成
type Tracker struct {
	conf  TrackerConf
	users store.Repo
	out   event.Dispatcher
	conns ConnChecker

	mu     sync.Mutex
	timers map[string]*time.Timer // 延迟下线

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewTracker(conf TrackerConf, users store.Repo, out event.Dispatcher) *Tracker {
	safe.MustNotNil(users, "users")
	safe.MustNotNil(out, "dispatcher")
	conf.norm()
	return &Tracker{
		conf:   conf,
		users:  users,
		out:    out,
		timers: make(map[string]*time.Timer),
		stopCh: make(chan struct{}),
	}
}

// SetConnChecker 延迟下线触发时用于确认用户确实没有重连
func (t *Tracker) SetConnChecker(c ConnChecker) { t.conns = c }

// MarkOnline 同步落库；失败由调用方关闭连接
func (t *Tracker) MarkOnline(ctx context.Context, userID string) error {
	t.cancelPending(userID)
	return t.users.MarkOnline(ctx, userID, t.conf.Clock())
}

// AnnounceOnline 通知好友“我上线了”
func (t *Tracker) AnnounceOnline(ctx context.Context, userID string) {
	u, err := t.users.Get(ctx, userID)
	if err != nil {
		logger.Warn("[Presence] announce online: load user", zap.String("userId", userID), zap.Error(err))
		return
	}
	t.out.Broadcast(u.Friends, event.NewStatusUpdate(userID, true))
}

// SyncFriendsTo 把每个好友的当前状态发给刚连上的用户
func (t *Tracker) SyncFriendsTo(ctx context.Context, userID string) {
	u, err := t.users.Get(ctx, userID)
	if err != nil {
		logger.Warn("[Presence] sync friends: load user", zap.String("userId", userID), zap.Error(err))
		return
	}
	if len(u.Friends) == 0 {
		return
	}
	friends, err := t.users.GetMany(ctx, u.Friends)
	if err != nil {
		logger.Warn("[Presence] sync friends: load friends", zap.String("userId", userID), zap.Error(err))
		return
	}
	for _, fid := range u.Friends {
		f, ok := friends[fid]
		if !ok {
			continue
		}
		if !t.out.Dispatch(userID, event.NewStatusUpdate(f.UserID, f.IsOnline)) {
			return // 连接已经没了
		}
	}
}

// Touch 刷新 last_active_at；失败只记日志，下次心跳再试
func (t *Tracker) Touch(ctx context.Context, userID string) {
	if err := t.users.Touch(ctx, userID, t.conf.Clock()); err != nil {
		logger.Warn("[Presence] touch", zap.String("userId", userID), zap.Error(err))
	}
}

// Disconnected 连接关闭；不直接下线。OfflineGrace>0 时安排延迟下线
func (t *Tracker) Disconnected(userID string, at time.Time) {
	if t.conf.OfflineGrace <= 0 {
		return
	}
	select {
	case <-t.stopCh:
		return
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[userID]; ok {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(t.conf.OfflineGrace, func() {
		t.mu.Lock()
		if t.timers[userID] != timer {
			t.mu.Unlock()
			return
		}
		delete(t.timers, userID)
		t.mu.Unlock()
		safe.Run("presence.offline", func() { t.expire(userID, at) })
	})
	t.timers[userID] = timer
}

// Pending 是否有待触发的延迟下线
func (t *Tracker) Pending(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[userID]
	return ok
}

func (t *Tracker) cancelPending(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
}

// expire 延迟下线到期：仍未重连，且断开后没有新活动才下线
func (t *Tracker) expire(userID string, closedAt time.Time) {
	if t.conns != nil && t.conns.IsConnected(userID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.conf.StorageTimeout)
	defer cancel()
	// 毫秒精度存储，+1ms 包含断开时刻本身
	flipped, err := t.users.MarkOffline(ctx, userID, closedAt.Add(time.Millisecond))
	if err != nil {
		logger.Warn("[Presence] delayed offline", zap.String("userId", userID), zap.Error(err))
		return
	}
	if flipped {
		t.announceOffline(ctx, userID, nil)
	}
}

// ===== 扫描 =====

// Start 启动后台扫描
func (t *Tracker) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.conf.SweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C:
				safe.Run("presence.sweep", func() {
					if n := t.SweepOnce(context.Background(), t.conf.Clock()); n > 0 {
						logger.Info("[Presence] sweep", zap.Int("offline", n))
					}
				})
			}
		}
	}()
}

// Stop 停止扫描并取消所有延迟下线
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.mu.Lock()
		for id, timer := range t.timers {
			timer.Stop()
			delete(t.timers, id)
		}
		t.mu.Unlock()
	})
	t.wg.Wait()
}

// SweepOnce 把 last_active_at 早于 now-InactiveAfter 的在线用户置为离线并通知好友
// 返回本次翻转的人数；单个用户失败只记日志
func (t *Tracker) SweepOnce(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-t.conf.InactiveAfter)
	total := 0
	for {
		fctx, cancel := context.WithTimeout(ctx, t.conf.StorageTimeout)
		stale, err := t.users.FindStale(fctx, cutoff, t.conf.SweepBatch)
		cancel()
		if err != nil {
			logger.Warn("[Presence] sweep: find stale", zap.Error(err))
			return total
		}

		flipped := 0
		for _, u := range stale {
			if t.demote(ctx, u, cutoff) {
				flipped++
			}
		}
		total += flipped
		// 不足一批说明扫完了；整批都失败则留到下个周期
		if len(stale) < t.conf.SweepBatch || flipped == 0 {
			return total
		}
	}
}

func (t *Tracker) demote(ctx context.Context, u *usermodel.User, cutoff time.Time) bool {
	ctx, cancel := context.WithTimeout(ctx, t.conf.StorageTimeout)
	defer cancel()
	flipped, err := t.users.MarkOffline(ctx, u.UserID, cutoff)
	if err != nil {
		logger.Warn("[Presence] sweep: mark offline", zap.String("userId", u.UserID), zap.Error(err))
		return false
	}
	if !flipped {
		return false // 期间有心跳或已被别处下线
	}
	t.announceOffline(ctx, u.UserID, u.Friends)
	return true
}

func (t *Tracker) announceOffline(ctx context.Context, userID string, friends []string) {
	if friends == nil {
		u, err := t.users.Get(ctx, userID)
		if err != nil {
			logger.Warn("[Presence] announce offline: load user", zap.String("userId", userID), zap.Error(err))
			return
		}
		friends = u.Friends
	}
	t.out.Broadcast(friends, event.NewStatusUpdate(userID, false))
}
