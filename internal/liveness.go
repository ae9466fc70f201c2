package internal

import (
	"context"
	"log/slog"
	"time"
)

// DefaultProbeInterval 探測週期
const DefaultProbeInterval = 30 * time.Second

// LivenessMonitor 活性檢測
//
// 系統設計：心跳機制
//
//  1. 為什麼需要？
//     對端異常斷線（網路中斷、瀏覽器崩潰）時，TCP 可能很久都不會回報錯誤，
//     這是唯一能發現「沒有正常關閉就消失」的連接的機制。
//
//  2. 狀態機（每個週期）：
//     Probed（上一輪沒回應）→ 終止：離開房間 + 強制關閉
//     Alive → 標記 Probed 並送出傳輸層 ping
//     收到 pong → Acknowledge → 回到 Alive
//
//  3. 偵測時間：
//     斷線後最多兩個週期（預設 60 秒）內被移除。
type LivenessMonitor struct {
	router   *Router
	interval time.Duration
	logger   *slog.Logger
}

// NewLivenessMonitor 創建活性檢測器
func NewLivenessMonitor(router *Router, interval time.Duration, logger *slog.Logger) *LivenessMonitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &LivenessMonitor{
		router:   router,
		interval: interval,
		logger:   logger,
	}
}

// Run 週期性執行直到 ctx 取消
func (m *LivenessMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("liveness monitor started", "interval", m.interval)

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			m.logger.Info("liveness monitor stopped")
			return nil
		}
	}
}

// Sweep 執行一個探測週期，回傳本輪被終止的連接數
func (m *LivenessMonitor) Sweep() int {
	terminated := 0
	for _, conn := range m.router.Connections() {
		if !conn.IsOpen() {
			continue
		}
		if !conn.markProbed() {
			m.router.Terminate(conn)
			terminated++
			continue
		}
		if !conn.channel.Probe() {
			m.logger.Debug("probe failed", "conn_id", conn.ID())
		}
	}

	if terminated > 0 {
		m.logger.Info("liveness sweep", "terminated", terminated)
	}
	return terminated
}
