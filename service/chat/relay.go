package chat

import (
	"context"
	"encoding/json"
	"hash/crc32"
	"sync"
	"time"

	"PMobility/global"
	"PMobility/logger"
	"PMobility/service/natsx"
	"PMobility/tools/safe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RelayBiz 节点投递的 nats 业务名
const RelayBiz = "deliver"

// Routes 用户 -> 节点 路由表（redis 实现见 service/storage）
type Routes interface {
	NodeID() string
	TTL() time.Duration
	Claim(ctx context.Context, userID string) error
	Refresh(ctx context.Context, userIDs []string) error
	Release(ctx context.Context, userID string) (bool, error)
	Lookup(ctx context.Context, userID string) (node string, ok bool, err error)
}

// Bus 消息总线（natsx.NatsManager 满足）
type Bus interface {
	RegisterRoute(r natsx.NatsxRoute) error
	PublishSubject(ctx context.Context, subject string, data []byte, hdr map[string]string) error
	Subscribe(biz string, h natsx.NatsxHandler) error
}

type RelayConf struct {
	SubjectPrefix string
	Timeout       time.Duration // 单次 redis / nats 调用超时
	RefreshEvery  time.Duration // 路由续期周期，默认 TTL/2
	Workers       int           // 按 userId 分片的 worker 数
	QueueSize     int           // 每个 worker 的队列长度
}

func (c *RelayConf) norm(ttl time.Duration) {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "mobility.deliver"
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	if c.RefreshEvery <= 0 {
		c.RefreshEvery = ttl / 2
	}
	if c.RefreshEvery <= 0 {
		c.RefreshEvery = time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
}

type relayOpKind uint8

const (
	opForward relayOpKind = iota
	opClaim
	opRelease
)

type relayOp struct {
	kind    relayOpKind
	userID  string
	payload []byte
}

// envelope 节点间转发的事件
type envelope struct {
	ID     string          `json:"id"`
	From   string          `json:"from"`
	UserID string          `json:"userId"`
	Event  json.RawMessage `json:"event"`
}

// NatsRelay 本地没有连接时查路由表，把事件发到目标节点的 subject
type NatsRelay struct {
	conf     RelayConf
	routes   Routes
	bus      Bus
	delivery *Delivery
	reg      *Registry
	shards   []chan relayOp

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewNatsRelay(conf RelayConf, routes Routes, bus Bus, delivery *Delivery) *NatsRelay {
	safe.MustNotNil(routes, "routes")
	safe.MustNotNil(bus, "bus")
	safe.MustNotNil(delivery, "delivery")
	conf.norm(routes.TTL())
	r := &NatsRelay{
		conf:     conf,
		routes:   routes,
		bus:      bus,
		delivery: delivery,
		shards:   make([]chan relayOp, conf.Workers),
		stopCh:   make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = make(chan relayOp, conf.QueueSize)
	}
	return r
}

// Start 订阅本节点 subject，挂注册表回调维护路由，开启续期
func (r *NatsRelay) Start(reg *Registry) error {
	subject := global.NodeSubject(r.conf.SubjectPrefix, r.routes.NodeID())
	if err := r.bus.RegisterRoute(natsx.NatsxRoute{Biz: RelayBiz, Subject: subject}); err != nil {
		return err
	}
	if err := r.bus.Subscribe(RelayBiz, r.handle); err != nil {
		return err
	}
	r.reg = reg
	for i := range r.shards {
		ch := r.shards[i]
		r.wg.Add(1)
		safe.SafeGo("relay-worker", func() {
			defer r.wg.Done()
			r.work(ch)
		})
	}
	reg.OnBind(r.claim)
	reg.OnUnbind(r.release)
	r.delivery.SetRelay(r)

	r.wg.Add(1)
	safe.SafeGo("relay-refresh", func() {
		defer r.wg.Done()
		r.refreshLoop(reg)
	})
	logger.Info("[Relay] started", zap.String("node", r.routes.NodeID()), zap.String("subject", subject))
	return nil
}

func (r *NatsRelay) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Forward 入队后由 worker 查路由并发布；队列满、找不到或就是本节点时丢弃
func (r *NatsRelay) Forward(userID string, payload []byte) {
	select {
	case r.shard(userID) <- relayOp{kind: opForward, userID: userID, payload: payload}:
	default:
		logger.Debug("[Relay] forward queue full", zap.String("userId", userID))
	}
}

func (r *NatsRelay) shard(userID string) chan relayOp {
	return r.shards[crc32.ChecksumIEEE([]byte(userID))%uint32(len(r.shards))]
}

// enqueue 路由维护不丢，队列满时等待，停止后放弃
func (r *NatsRelay) enqueue(op relayOp) {
	select {
	case r.shard(op.userID) <- op:
	case <-r.stopCh:
	}
}

// work 同一用户的 claim / release / forward 在同一个 worker 上按入队顺序执行
func (r *NatsRelay) work(ch chan relayOp) {
	for {
		select {
		case <-r.stopCh:
			return
		case op := <-ch:
			r.exec(op)
		}
	}
}

func (r *NatsRelay) exec(op relayOp) {
	ctx, cancel := context.WithTimeout(context.Background(), r.conf.Timeout)
	defer cancel()
	switch op.kind {
	case opForward:
		if err := r.forward(ctx, op.userID, op.payload); err != nil {
			logger.Debug("[Relay] forward dropped", zap.String("userId", op.userID), zap.Error(err))
		}
	case opClaim:
		if err := r.routes.Claim(ctx, op.userID); err != nil {
			logger.Warn("[Relay] claim route", zap.String("userId", op.userID), zap.Error(err))
		}
	case opRelease:
		if r.reg.IsConnected(op.userID) {
			return // 已经重连
		}
		if _, err := r.routes.Release(ctx, op.userID); err != nil {
			logger.Warn("[Relay] release route", zap.String("userId", op.userID), zap.Error(err))
		}
	}
}

func (r *NatsRelay) forward(ctx context.Context, userID string, payload []byte) error {
	node, ok, err := r.routes.Lookup(ctx, userID)
	if err != nil {
		return err
	}
	if !ok || node == r.routes.NodeID() {
		return nil
	}
	env := envelope{ID: uuid.NewString(), From: r.routes.NodeID(), UserID: userID, Event: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.bus.PublishSubject(ctx, global.NodeSubject(r.conf.SubjectPrefix, node), data,
		map[string]string{natsx.MsgIDHeader: env.ID})
}

// handle 入站只投本地
func (r *NatsRelay) handle(_ context.Context, msg natsx.NatsxMessage) error {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return err
	}
	if env.UserID == "" || len(env.Event) == 0 {
		return nil
	}
	if !r.delivery.DeliverLocal(env.UserID, env.Event) {
		logger.Debug("[Relay] inbound not delivered", zap.String("userId", env.UserID), zap.String("from", env.From))
	}
	return nil
}

func (r *NatsRelay) claim(userID string) {
	r.enqueue(relayOp{kind: opClaim, userID: userID})
}

func (r *NatsRelay) release(userID string) {
	r.enqueue(relayOp{kind: opRelease, userID: userID})
}

func (r *NatsRelay) refreshLoop(reg *Registry) {
	ticker := time.NewTicker(r.conf.RefreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			users := reg.ConnectedUserIDs()
			if len(users) == 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), r.conf.Timeout)
			if err := r.routes.Refresh(ctx, users); err != nil {
				logger.Warn("[Relay] refresh routes", zap.Int("users", len(users)), zap.Error(err))
			}
			cancel()
		}
	}
}
