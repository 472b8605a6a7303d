package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatwire.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Server.Addr != def.Server.Addr || cfg.Session.TTL != def.Session.TTL {
		t.Fatalf("expected defaults, got %#v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9090"
send_buffer = 32
allowed_origins = ["https://chat.example"]

[nats]
enabled = false
stream_max_age = "2h"

[redis]
addr = "localhost:6379"
db = 2

[session]
ttl = "45m"

[auth]
bcrypt_cost = 4

[logger]
level = "debug"
log_to_json = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.SendBuffer != 32 || cfg.Server.ReadLimit != Default().Server.ReadLimit {
		t.Fatalf("unexpected server config %#v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://chat.example" {
		t.Fatalf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.NATS.Enabled || cfg.NATS.StreamMaxAge.Duration != 2*time.Hour {
		t.Fatalf("unexpected nats config %#v", cfg.NATS)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected redis config %#v", cfg.Redis)
	}
	if cfg.Session.TTL.Duration != 45*time.Minute {
		t.Fatalf("unexpected ttl %v", cfg.Session.TTL)
	}
	if cfg.Auth.BcryptCost != 4 || cfg.Logger.Level != "debug" || !cfg.Logger.LogToJSON {
		t.Fatalf("unexpected auth/logger config %#v %#v", cfg.Auth, cfg.Logger)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NATS_URL", "nats://bus:4222")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("CHAT_ADDR", ":7000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NATS.URL != "nats://bus:4222" || cfg.Redis.Addr != "cache:6379" || cfg.Server.Addr != ":7000" {
		t.Fatalf("env overrides not applied: %#v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "bad toml", body: "[server\naddr=", want: "config parse failed"},
		{name: "bad duration", body: "[session]\nttl = \"soon\"", want: "config parse failed"},
		{name: "bcrypt cost", body: "[auth]\nbcrypt_cost = 99", want: "bcrypt_cost"},
		{name: "send buffer", body: "[server]\nsend_buffer = 0", want: "send_buffer"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	for _, key := range []string{"NATS_URL", "REDIS_ADDR", "CHAT_ADDR"} {
		t.Setenv(key, "")
	}
	cfg, err := Load(filepath.Join("..", "..", "chatwire.toml"))
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	def := Default()
	if cfg.Server.Addr != def.Server.Addr || cfg.Server.SendBuffer != def.Server.SendBuffer {
		t.Fatalf("server = %+v, want %+v", cfg.Server, def.Server)
	}
	if cfg.NATS.URL != def.NATS.URL || cfg.NATS.StreamMaxAge != def.NATS.StreamMaxAge {
		t.Fatalf("nats = %+v, want %+v", cfg.NATS, def.NATS)
	}
	if cfg.Session.TTL != def.Session.TTL || cfg.Auth.BcryptCost != def.Auth.BcryptCost {
		t.Fatalf("session/auth = %+v %+v", cfg.Session, cfg.Auth)
	}
	if cfg.Logger != def.Logger {
		t.Fatalf("logger = %+v, want %+v", cfg.Logger, def.Logger)
	}
}
