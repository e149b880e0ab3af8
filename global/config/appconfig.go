package config

import (
	"errors"
	"os"
	"time"

	"PMobility/tools"

	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// AppConfig 进程级配置，全部来自环境变量（可选 .env）
type AppConfig struct {
	HTTPAddr      string
	GRPCAddr      string // 健康检查；空=关闭
	NodeID        string // 网关节点ID（路由表/NATS subject 使用）
	SnowflakeNode int64
	LogLevel      string

	JWTSecret []byte
	JWTAlg    string

	Store         string // mongo | memory
	MongoURI      string
	MongoDatabase string
	MongoMaxPool  int

	RedisAddr     string // 空=不启用路由表
	RedisPassword string
	RedisDB       int

	NatsServers       []string // 空=不启用跨节点投递
	NatsSubjectPrefix string

	KafkaBrokers []string // 空=推送只打日志
	PushTopic    string

	SweepEvery    time.Duration
	InactiveAfter time.Duration
	OfflineGrace  time.Duration // >0 启用关闭后的延迟下线

	PingInterval time.Duration
	WriteWait    time.Duration
	SendQueue    int

	CORSOrigins []string
}

// Load 先尝试加载 .env（可用 ENV_FILE 指定），再读取环境变量
func Load() (*AppConfig, error) {
	envFile := tools.GetEnv("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, err
		}
	}

	c := &AppConfig{
		HTTPAddr:      tools.GetEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:      tools.GetEnv("GRPC_ADDR", ":50052"),
		NodeID:        tools.GetEnv("NODE_ID", "gw-1"),
		SnowflakeNode: int64(tools.GetEnvInt("SNOWFLAKE_NODE", 1)),
		LogLevel:      tools.GetEnv("LOG_LEVEL", "debug"),

		JWTSecret: []byte(os.Getenv("JWT_SECRET")),
		JWTAlg:    tools.GetEnv("JWT_ALG", "HS256"),

		Store:         tools.GetEnv("STORE", StoreMongo),
		MongoURI:      tools.GetEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: tools.GetEnv("MONGO_DATABASE", "mobility"),
		MongoMaxPool:  tools.GetEnvInt("MONGO_MAX_POOL", 20),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       tools.GetEnvInt("REDIS_DB", 0),

		NatsServers:       tools.GetEnvList("NATS_SERVERS", nil),
		NatsSubjectPrefix: tools.GetEnv("NATS_SUBJECT_PREFIX", "mobility.deliver"),

		KafkaBrokers: tools.GetEnvList("KAFKA_BROKERS", nil),
		PushTopic:    tools.GetEnv("PUSH_TOPIC", "mobility.push"),

		SweepEvery:    tools.GetEnvDuration("PRESENCE_SWEEP_EVERY", 30*time.Second),
		InactiveAfter: tools.GetEnvDuration("PRESENCE_INACTIVE_AFTER", 2*time.Minute),
		OfflineGrace:  tools.GetEnvDuration("PRESENCE_OFFLINE_GRACE", 0),

		PingInterval: tools.GetEnvDuration("WS_PING_INTERVAL", 30*time.Second),
		WriteWait:    tools.GetEnvDuration("WS_WRITE_WAIT", 10*time.Second),
		SendQueue:    tools.GetEnvInt("WS_SEND_QUEUE", 64),

		CORSOrigins: tools.GetEnvList("CORS_ORIGINS", []string{"*"}),
	}
	return c, c.Validate()
}

func (c *AppConfig) Validate() error {
	if len(c.JWTSecret) == 0 {
		return errors.New("JWT_SECRET is required")
	}
	if c.Store != StoreMongo && c.Store != StoreMemory {
		return errors.New("STORE must be mongo or memory")
	}
	if c.SweepEvery <= 0 || c.InactiveAfter <= 0 {
		return errors.New("presence intervals must be positive")
	}
	return nil
}

// RelayEnabled 跨节点投递需要同时具备路由表与消息总线
func (c *AppConfig) RelayEnabled() bool {
	return c.RedisAddr != "" && len(c.NatsServers) > 0
}
