// internal/config/config.go
// Loads the server configuration from a TOML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/nats-io/nats.go"
	"golang.org/x/crypto/bcrypt"

	"github.com/erilali/chatwire/internal/logger"
)

// Duration decodes TOML strings such as "24h" or "30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ServerConfig struct {
	Addr           string   `toml:"addr"`
	ReadLimit      int64    `toml:"read_limit"`  // bytes per frame
	SendBuffer     int      `toml:"send_buffer"` // queued frames per client
	AllowedOrigins []string `toml:"allowed_origins"`
}

type NATSConfig struct {
	URL          string   `toml:"url"`
	Enabled      bool     `toml:"enabled"`
	StreamMaxAge Duration `toml:"stream_max_age"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type SessionConfig struct {
	TTL Duration `toml:"ttl"`
}

type AuthConfig struct {
	BcryptCost int `toml:"bcrypt_cost"`
}

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig     `toml:"server"`
	NATS    NATSConfig       `toml:"nats"`
	Redis   RedisConfig      `toml:"redis"`
	Session SessionConfig    `toml:"session"`
	Auth    AuthConfig       `toml:"auth"`
	Logger  logger.LogConfig `toml:"logger"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:       ":8080",
			ReadLimit:  4096,
			SendBuffer: 256,
		},
		NATS: NATSConfig{
			URL:          nats.DefaultURL,
			Enabled:      true,
			StreamMaxAge: Duration{30 * time.Minute},
		},
		Session: SessionConfig{TTL: Duration{24 * time.Hour}},
		Auth:    AuthConfig{BcryptCost: bcrypt.DefaultCost},
		Logger:  logger.DefaultLogConfig(),
	}
}

// Load reads path over the defaults. A missing file is not an error.
// NATS_URL, REDIS_ADDR and CHAT_ADDR override the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CHAT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Server.ReadLimit <= 0 {
		return fmt.Errorf("config: server.read_limit must be positive, got %d", c.Server.ReadLimit)
	}
	if c.Server.SendBuffer <= 0 {
		return fmt.Errorf("config: server.send_buffer must be positive, got %d", c.Server.SendBuffer)
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("config: auth.bcrypt_cost must be within %d..%d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.Auth.BcryptCost)
	}
	if c.Session.TTL.Duration < 0 {
		return errors.New("config: session.ttl must not be negative")
	}
	return nil
}
