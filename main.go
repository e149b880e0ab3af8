package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PMobility/global/config"
	"PMobility/logger"
	mid "PMobility/middleware"
	midsec "PMobility/middleware/security"
	chatapi "PMobility/module/chat"
	"PMobility/module/chat/message"
	chatsvc "PMobility/module/chat/service"
	userapi "PMobility/module/user"
	"PMobility/module/user/store"
	usersvc "PMobility/module/user/service"
	"PMobility/service/chat"
	"PMobility/service/chat/handlers"
	"PMobility/service/kafka"
	mgoSrv "PMobility/service/mgo"
	"PMobility/service/natsx"
	"PMobility/service/push"
	"PMobility/service/storage"
	redis "PMobility/service/storage/redis"
	"PMobility/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// stores 两种存储实现共用的接口集合
type stores struct {
	users store.Repo
	convs chatsvc.ConversationRepo
	msgs  chatsvc.MessageRepo
}

func main() {
	flag.Parse() // glog

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)
	config.ConfigIds(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) 存储
	st, err := buildStores(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	// 2) 连接注册表 + 投递
	reg := chat.NewRegistry()
	delivery := chat.NewDelivery(reg)

	// 3) 在线状态
	tracker := usersvc.NewTracker(usersvc.TrackerConf{
		SweepEvery:    cfg.SweepEvery,
		InactiveAfter: cfg.InactiveAfter,
		OfflineGrace:  cfg.OfflineGrace,
	}, st.users, delivery)
	tracker.SetConnChecker(reg)
	tracker.Start()

	// 4) 推送
	var notifier push.Notifier = push.LogNotifier{}
	var kc *kafka.Client
	if len(cfg.KafkaBrokers) > 0 {
		if kc, err = config.ConfigKafka(cfg); err != nil {
			logger.Warn("[Main] kafka unavailable, push falls back to log", zap.Error(err))
		} else {
			notifier = push.NewKafkaNotifier(kc.Producer(), cfg.PushTopic)
		}
	}

	// 5) 业务
	messaging := chatsvc.NewMessageService(chatsvc.MessageConf{}, st.convs, st.msgs, st.users, delivery, notifier)
	profile := usersvc.NewProfile(st.users, delivery)

	// 6) 跨节点投递（redis 路由表 + nats）
	var (
		relay *chat.NatsRelay
		bus   *natsx.NatsManager
	)
	if cfg.RelayEnabled() {
		relay, bus = startRelay(cfg, reg, delivery)
	}

	// 7) WebSocket
	frames := chat.NewDispatcher()
	frames.Register(handlers.All(profile, messaging)...)
	jwtOpts := security.Options{Secret: cfg.JWTSecret, Alg: cfg.JWTAlg}
	wsServer := chat.NewServer(chat.ServerConf{
		JWT: jwtOpts,
		Conn: chat.ConnConf{
			SendQueue:    cfg.SendQueue,
			PingInterval: cfg.PingInterval,
			WriteWait:    cfg.WriteWait,
		},
	}, reg, tracker, frames)

	// 8) HTTP
	r := gin.New()
	r.Use(gin.Recovery(), mid.CORS(cfg.CORSOrigins), mid.RequestLog(), mid.Manager().Use())
	r.GET("/ws", wsServer.HandleWS) // ws://host/ws?token=
	r.GET("/healthz", func(c *gin.Context) {
		mid.OK(c, http.StatusOK, gin.H{"status": "ok", "node": cfg.NodeID, "connections": reg.Len()})
	})
	routes := mid.NewRoutes(r, midsec.Middleware(midsec.DefaultOptions(jwtOpts)))
	chatapi.NewHandler(messaging).Register(routes)
	userapi.NewHandler(profile).Register(routes)

	gs := startHealth(cfg.GRPCAddr)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Infof("[HTTP] Listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("[Main] shutting down")

	// ===== 优雅退出 =====
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if gs != nil {
		gs.GracefulStop()
	}
	tracker.Stop()
	n := reg.CloseAll(websocket.CloseGoingAway, "server shutdown")
	logger.Info("[Main] closed sockets", zap.Int("count", n))
	if relay != nil {
		relay.Stop()
		_ = bus.Close()
		_ = redis.CloseRedis()
	}
	if kc != nil {
		_ = kc.Close()
	}
	mgoSrv.Manager().Close()
	_ = logger.Log.Sync()
}

func buildStores(ctx context.Context, cfg *config.AppConfig) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("[Main] using in-memory stores")
		msgs := message.NewMemStore()
		return &stores{users: store.NewMemory(), convs: msgs, msgs: msgs}, nil
	}

	db, err := config.ConfigMgo(ctx, cfg, 30*time.Second)
	if err != nil {
		return nil, err
	}
	users := store.NewMongo(db)
	msgs := message.NewStore(db)

	idxCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := users.EnsureIndexes(idxCtx); err != nil {
		return nil, err
	}
	if err := msgs.EnsureIndexes(idxCtx); err != nil {
		return nil, err
	}
	return &stores{users: users, convs: msgs, msgs: msgs}, nil
}

// startRelay 失败时退化为单节点投递
func startRelay(cfg *config.AppConfig, reg *chat.Registry, delivery *chat.Delivery) (*chat.NatsRelay, *natsx.NatsManager) {
	rdb, err := config.ConfigRedis(cfg)
	if err != nil {
		logger.Warn("[Main] relay disabled: redis", zap.Error(err))
		return nil, nil
	}
	bus, err := config.ConfigNats(cfg)
	if err != nil {
		logger.Warn("[Main] relay disabled: nats", zap.Error(err))
		_ = redis.CloseRedis()
		return nil, nil
	}
	routes := storage.NewRouteTable(rdb, cfg.NodeID, 0)
	relay := chat.NewNatsRelay(chat.RelayConf{SubjectPrefix: cfg.NatsSubjectPrefix}, routes, bus, delivery)
	if err := relay.Start(reg); err != nil {
		logger.Warn("[Main] relay disabled: subscribe", zap.Error(err))
		_ = bus.Close()
		_ = redis.CloseRedis()
		return nil, nil
	}
	return relay, bus
}

func startHealth(addr string) *grpc.Server {
	if addr == "" {
		return nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Warn("[gRPC] health listen failed", zap.String("addr", addr), zap.Error(err))
		return nil
	}
	gs := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(gs, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	go func() {
		logger.Infof("[gRPC] health listening on %s", addr)
		if err := gs.Serve(lis); err != nil {
			logger.Warn("[gRPC] health server stopped", zap.Error(err))
		}
	}()
	return gs
}
