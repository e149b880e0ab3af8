package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("JWT_SECRET", "s3cret")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.SweepEvery != 30*time.Second || c.InactiveAfter != 2*time.Minute {
		t.Fatalf("unexpected presence defaults %v / %v", c.SweepEvery, c.InactiveAfter)
	}
	if c.OfflineGrace != 0 {
		t.Fatalf("delayed offline must default to disabled")
	}
	if c.Store != StoreMongo || c.RelayEnabled() {
		t.Fatalf("unexpected store/relay defaults: %s %v", c.Store, c.RelayEnabled())
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	body := "JWT_SECRET=from-file\nSTORE=memory\nREDIS_ADDR=127.0.0.1:6379\nNATS_SERVERS=nats://a:4222,nats://b:4222\n"
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("ENV_FILE", file)
	// godotenv 不覆盖已存在的变量，这里先清空
	for _, k := range []string{"JWT_SECRET", "STORE", "REDIS_ADDR", "NATS_SERVERS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range []string{"JWT_SECRET", "STORE", "REDIS_ADDR", "NATS_SERVERS"} {
			os.Unsetenv(k)
		}
	})

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(c.JWTSecret) != "from-file" || c.Store != StoreMemory {
		t.Fatalf("dotenv not applied: %+v", c)
	}
	if len(c.NatsServers) != 2 || !c.RelayEnabled() {
		t.Fatalf("relay should be enabled: %v", c.NatsServers)
	}
}

func TestValidate(t *testing.T) {
	c := &AppConfig{Store: StoreMemory, SweepEvery: time.Second, InactiveAfter: time.Second}
	if err := c.Validate(); err == nil {
		t.Fatalf("missing secret must fail")
	}
	c.JWTSecret = []byte("x")
	c.Store = "postgres"
	if err := c.Validate(); err == nil {
		t.Fatalf("unknown store must fail")
	}
}
