package internal

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultReapInterval 回收掃描週期
	DefaultReapInterval = 30 * time.Minute
	// DefaultRoomTTL 房間最長存活時間（不論是否有人）
	DefaultRoomTTL = 2 * time.Hour
)

// RoomReaper 過期房間回收
type RoomReaper struct {
	router   *Router
	interval time.Duration
	ttl      time.Duration
	clock    Clock
	logger   *slog.Logger
}

// NewRoomReaper 創建回收器
func NewRoomReaper(router *Router, interval, ttl time.Duration, clock Clock, logger *slog.Logger) *RoomReaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &RoomReaper{
		router:   router,
		interval: interval,
		ttl:      ttl,
		clock:    clock,
		logger:   logger,
	}
}

// Run 週期性執行直到 ctx 取消
func (r *RoomReaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("room reaper started", "interval", r.interval, "ttl", r.ttl)

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			r.logger.Info("room reaper stopped")
			return nil
		}
	}
}

// Sweep 執行一次回收，回傳被移除的房間數
func (r *RoomReaper) Sweep() int {
	n := r.router.Reap(r.clock(), r.ttl)
	if n > 0 {
		r.logger.Info("expired rooms reaped", "count", n)
	}
	return n
}
