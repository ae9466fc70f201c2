package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Relay struct {
		Capacity        int           `yaml:"capacity"`          // 每房人數上限
		RoomTTL         time.Duration `yaml:"room_ttl"`          // 房間最長存活時間
		ReapInterval    time.Duration `yaml:"reap_interval"`     // 回收掃描週期
		ProbeInterval   time.Duration `yaml:"probe_interval"`    // 活性探測週期
		MaxMessageBytes int64         `yaml:"max_message_bytes"` // 單一訊框上限
		SendQueueSize   int           `yaml:"send_queue_size"`   // 每個連接的寫入佇列
		AllowedOrigins  []string      `yaml:"allowed_origins"`   // 空代表不檢查
	} `yaml:"relay"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 預設配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Relay.Capacity = DefaultCapacity
	cfg.Relay.RoomTTL = DefaultRoomTTL
	cfg.Relay.ReapInterval = DefaultReapInterval
	cfg.Relay.ProbeInterval = DefaultProbeInterval
	cfg.Relay.MaxMessageBytes = 1 << 20
	cfg.Relay.SendQueueSize = 256

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// LoadConfig 載入配置
//
// 順序：預設值 → YAML 檔（不存在時略過）→ .env → 環境變數。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 - path 來自命令列參數
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// .env 只補充尚未設定的環境變數
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 環境變數覆蓋（部署平台通常只給 PORT）
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("ROOM_CAPACITY"); v != "" {
		capacity, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse ROOM_CAPACITY: %w", err)
		}
		c.Relay.Capacity = capacity
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Relay.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", c.Relay.Capacity)
	}
	if c.Relay.RoomTTL <= 0 || c.Relay.ReapInterval <= 0 || c.Relay.ProbeInterval <= 0 {
		return errors.New("room_ttl, reap_interval and probe_interval must be positive")
	}
	if c.Relay.MaxMessageBytes <= 0 {
		return fmt.Errorf("invalid max_message_bytes: %d", c.Relay.MaxMessageBytes)
	}
	if c.Relay.SendQueueSize <= 0 {
		return fmt.Errorf("invalid send_queue_size: %d", c.Relay.SendQueueSize)
	}
	return nil
}

// Addr 監聽位址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
