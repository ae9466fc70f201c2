package internal

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// 系統設計問題：
//   中繼伺服器不理解應用層的內容，如何只靠「房間」這個概念把兩端的訊息轉送過去？
//
// 核心挑戰：
//   1. 惡意或壞掉的輸入：任何解析失敗都不能影響連接或其他人
//   2. 自我投遞：room_message 絕對不能送回發送者
//   3. 失敗隔離：某個接收者寫入失敗，不影響其他接收者，也不重試
//
// 設計方案：
//   ✅ Router 是唯一的分派入口，持有 Registry 與所有存活連接
//   ✅ 解析失敗靜默丟棄（只記 debug 日誌）
//   ✅ 拒絕只回給請求者（join_failed），其他成員不會知道
//   ✅ 發送 at-most-once：失敗只計數，不重試、不回報

// Router 訊息路由器
type Router struct {
	registry *Registry
	logger   *slog.Logger
	clock    Clock
	started  time.Time

	mu    sync.RWMutex
	conns map[string]*Connection

	relayed  atomic.Int64
	dropped  atomic.Int64
	shutdown atomic.Bool
}

// NewRouter 創建路由器
func NewRouter(registry *Registry, clock Clock, logger *slog.Logger) *Router {
	if clock == nil {
		clock = time.Now
	}
	return &Router{
		registry: registry,
		logger:   logger,
		clock:    clock,
		started:  clock(),
		conns:    make(map[string]*Connection),
	}
}

// Registry 底層房間註冊表
func (rt *Router) Registry() *Registry {
	return rt.registry
}

// Accept 為新的傳輸通道建立 Connection 並登記
func (rt *Router) Accept(channel Channel) *Connection {
	conn := NewConnection(channel, rt.clock)
	rt.Register(conn)
	return conn
}

// Register 登記一個已建立的連接
func (rt *Router) Register(conn *Connection) {
	rt.mu.Lock()
	rt.conns[conn.ID()] = conn
	total := len(rt.conns)
	rt.mu.Unlock()

	// 關機過程中進來的連接直接關掉
	if rt.shutdown.Load() {
		conn.Send(shutdownFrame())
		conn.Close()
	}

	rt.logger.Debug("connection registered", "conn_id", conn.ID(), "connections", total)
}

// Disconnect 傳輸層關閉或出錯時呼叫，走與 leave 相同的清理路徑（可重複呼叫）
func (rt *Router) Disconnect(conn *Connection) {
	rt.registry.LeaveRoom(conn)

	rt.mu.Lock()
	_, existed := rt.conns[conn.ID()]
	delete(rt.conns, conn.ID())
	rt.mu.Unlock()

	if existed {
		rt.logger.Info("connection closed", "conn_id", conn.ID(), "name", conn.Name())
	}
}

// Terminate 強制終止（活性檢測失敗）：清理房間並關閉傳輸通道
func (rt *Router) Terminate(conn *Connection) {
	if !conn.markTerminated() {
		return
	}
	rt.logger.Warn("terminating inactive connection",
		"conn_id", conn.ID(),
		"name", conn.Name(),
		"last_live_at", conn.LastLiveAt())

	rt.Disconnect(conn)
	conn.Close()
}

// Connections 所有存活連接的快照
func (rt *Router) Connections() []*Connection {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	out := make([]*Connection, 0, len(rt.conns))
	for _, c := range rt.conns {
		out = append(out, c)
	}
	return out
}

// Handle 處理一個入站訊框
func (rt *Router) Handle(conn *Connection, frame []byte) {
	msg, err := ParseInbound(frame)
	if err != nil {
		rt.logger.Debug("invalid frame dropped", "conn_id", conn.ID(), "error", err)
		return
	}

	switch msg.Type {
	case TypeHost:
		rt.handleHost(conn, msg)
	case TypeJoin:
		rt.handleJoin(conn, msg)
	case TypeRoomMessage:
		rt.handleRoomMessage(conn, msg)
	case TypeLeave:
		rt.registry.LeaveRoom(conn)
	case TypePing:
		conn.touch()
		rt.reply(conn, pongFrame())
	default:
		rt.logger.Debug("unknown message type", "conn_id", conn.ID(), "type", msg.Type)
	}
}

func (rt *Router) handleHost(conn *Connection, msg *Inbound) {
	name := msg.Name
	if name == "" {
		name = defaultHost
	}

	code, err := rt.registry.CreateRoom(msg.Room, conn, name)
	if err != nil {
		rt.reject(conn, err)
		return
	}
	rt.reply(conn, hostOKFrame(code))
}

// handleJoin 指定房間碼時只加入已存在的房間（join 永遠不會建立房間）；
// 未指定時自動加入第一個有空位的房間。
func (rt *Router) handleJoin(conn *Connection, msg *Inbound) {
	name := msg.Name
	if name == "" {
		name = defaultPlayer
	}

	code := msg.Room
	if code == "" {
		joined, err := rt.registry.JoinAny(conn, name)
		if err != nil {
			rt.reject(conn, err)
			return
		}
		rt.reply(conn, joinOKFrame(joined))
		return
	}

	if err := rt.registry.JoinRoom(code, conn, name); err != nil {
		rt.reject(conn, err)
		return
	}
	rt.reply(conn, joinOKFrame(code))
}

func (rt *Router) handleRoomMessage(conn *Connection, msg *Inbound) {
	if conn.RoomCode() == "" {
		return
	}

	data, err := stampFrom(msg.Data, conn.ID())
	if err != nil {
		rt.logger.Debug("room_message data rejected", "conn_id", conn.ID(), "error", err)
		return
	}

	delivered, ok := rt.registry.Relay(conn, roomMessageFrame(data))
	if !ok {
		return
	}
	rt.relayed.Add(1)
	if delivered > 0 {
		rt.logger.Debug("room_message relayed",
			"conn_id", conn.ID(),
			"room", conn.RoomCode(),
			"recipients", delivered)
	}
}

// Reap 回收超過 TTL 的房間：成員收到 room_closed{timeout} 後被關閉
func (rt *Router) Reap(now time.Time, ttl time.Duration) int {
	frame := roomClosedFrame(ReasonTimeout)
	return rt.registry.ReapExpired(now, ttl, func(code string, members []*Connection) {
		for _, m := range members {
			rt.reply(m, frame)
			m.Close()
		}
	})
}

// Shutdown 通知所有連接伺服器即將關閉，然後關閉它們
func (rt *Router) Shutdown() {
	rt.shutdown.Store(true)

	frame := shutdownFrame()
	conns := rt.Connections()
	for _, c := range conns {
		if c.IsOpen() {
			rt.reply(c, frame)
		}
		c.Close()
	}

	rt.logger.Info("router shut down", "connections", len(conns))
}

// Snapshot 給健康檢查用的唯讀統計
func (rt *Router) Snapshot() Snapshot {
	rooms, clients := rt.registry.Stats()

	rt.mu.RLock()
	connections := len(rt.conns)
	rt.mu.RUnlock()

	return Snapshot{
		RoomCount:       rooms,
		ClientCount:     clients,
		ConnectionCount: connections,
		Uptime:          rt.clock().Sub(rt.started),
		Relayed:         rt.relayed.Load(),
		FailedSends:     rt.dropped.Load() + rt.registry.FailedSends(),
	}
}

func (rt *Router) reject(conn *Connection, err error) {
	reason := ReasonOf(err)
	var relayErr *RelayError
	if !errors.As(err, &relayErr) {
		rt.logger.Error("unexpected room error", "conn_id", conn.ID(), "error", err)
	}
	rt.logger.Info("request rejected", "conn_id", conn.ID(), "reason", reason)
	rt.reply(conn, joinFailedFrame(reason))
}

func (rt *Router) reply(conn *Connection, frame []byte) {
	if !conn.Send(frame) {
		rt.dropped.Add(1)
	}
}
