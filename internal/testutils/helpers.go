package testutils

import (
	"log/slog"
	"time"

	"github.com/koopa0/system-design/game-relay/internal"
	"github.com/koopa0/system-design/game-relay/pkg/logger"
)

// TestLogger 測試時只顯示錯誤
func TestLogger() *slog.Logger {
	return logger.Discard()
}

// DefaultTestConfig 返回測試用的預設配置（週期縮短）
func DefaultTestConfig() *internal.Config {
	cfg := internal.DefaultConfig()

	cfg.Server.Port = 8080
	cfg.Server.ShutdownTimeout = 2 * time.Second

	cfg.Relay.ProbeInterval = 50 * time.Millisecond
	cfg.Relay.ReapInterval = 50 * time.Millisecond
	cfg.Relay.RoomTTL = time.Hour
	cfg.Relay.SendQueueSize = 64

	cfg.Log.Level = "error"
	cfg.Log.Format = "text"

	return cfg
}

// Peer 測試用的一端：FakeChannel + 已登記的 Connection
type Peer struct {
	Channel *FakeChannel
	Conn    *internal.Connection
}

// Connect 建立一個已登記到 router 的測試連接
func Connect(router *internal.Router) *Peer {
	ch := NewFakeChannel()
	return &Peer{
		Channel: ch,
		Conn:    router.Accept(ch),
	}
}

// NewTestRouter 建立 registry + router
func NewTestRouter(capacity int, clock internal.Clock) *internal.Router {
	log := TestLogger()
	return internal.NewRouter(internal.NewRegistry(capacity, clock, log), clock, log)
}
