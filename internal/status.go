package internal

import "time"

// Snapshot 狀態快照（健康檢查、首頁、/stats 使用）
type Snapshot struct {
	RoomCount       int
	ClientCount     int
	ConnectionCount int
	Uptime          time.Duration
	Relayed         int64
	FailedSends     int64
}

// Health /health 與 / 的回應格式
func (s Snapshot) Health() map[string]any {
	return map[string]any{
		"status":  "ok",
		"rooms":   s.RoomCount,
		"clients": s.ClientCount,
		"uptime":  s.Uptime.Seconds(),
	}
}

// Stats /stats 的回應格式
func (s Snapshot) Stats() map[string]any {
	return map[string]any{
		"rooms":        s.RoomCount,
		"clients":      s.ClientCount,
		"connections":  s.ConnectionCount,
		"uptime":       s.Uptime.Seconds(),
		"relayed":      s.Relayed,
		"failed_sends": s.FailedSends,
	}
}
