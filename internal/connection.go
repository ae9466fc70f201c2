package internal

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// 系統設計問題：
//   如何在不信任網路的前提下，知道對端還活著，並保證每個連接同時只屬於一個房間？
//
// 設計方案：
//   ✅ Connection 是獨立的紀錄，持有傳輸層 Channel（擁有），房間只引用它（不擁有）
//   ✅ roomCode 只在 Registry 的鎖內修改（單一寫入者）
//   ✅ 活性狀態機 Alive ⇄ Probed → Terminated，由 LivenessMonitor 驅動

// Channel 傳輸層需要提供給核心的最小介面
//
// Send 是 fire-and-forget：回傳 false 代表通道已關閉或寫入佇列已滿，呼叫端不重試。
// Probe 發送傳輸層 ping，對端的 pong 透過 Connection.Acknowledge 回報。
type Channel interface {
	Send(frame []byte) bool
	Close()
	IsOpen() bool
	Probe() bool
}

// Clock 時間來源（測試時可替換）
type Clock func() time.Time

// LivenessState 連接活性狀態
type LivenessState int

const (
	StateAlive      LivenessState = iota // 最近一次探測已回應
	StateProbed                          // 已探測，等待回應
	StateTerminated                      // 已被判定死亡並關閉
)

func (s LivenessState) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateProbed:
		return "probed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	defaultName   = "Anonymous"
	defaultHost   = "Host"
	defaultPlayer = "Player"
)

// Connection 一個對端連接
type Connection struct {
	id      string
	channel Channel
	clock   Clock

	mu         sync.Mutex
	name       string
	roomCode   string
	state      LivenessState
	lastLiveAt time.Time
}

// NewConnection 包裝一個傳輸通道，ID 在整個進程生命週期內唯一
func NewConnection(channel Channel, clock Clock) *Connection {
	if clock == nil {
		clock = time.Now
	}
	return &Connection{
		id:         uuid.NewString(),
		channel:    channel,
		clock:      clock,
		name:       defaultName,
		state:      StateAlive,
		lastLiveAt: clock(),
	}
}

// ID 連接 ID
func (c *Connection) ID() string { return c.id }

// Name 顯示名稱
func (c *Connection) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// RoomCode 目前所在房間，不在任何房間時為空字串
func (c *Connection) RoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

// State 目前活性狀態
func (c *Connection) State() LivenessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastLiveAt 最後一次確認存活的時間
func (c *Connection) LastLiveAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLiveAt
}

// Send 發送一個訊框，失敗不重試
func (c *Connection) Send(frame []byte) bool {
	if !c.channel.IsOpen() {
		return false
	}
	return c.channel.Send(frame)
}

// IsOpen 通道是否仍可寫入
func (c *Connection) IsOpen() bool {
	return c.channel.IsOpen()
}

// Close 關閉傳輸通道（可重複呼叫）
func (c *Connection) Close() {
	c.channel.Close()
}

// Acknowledge 收到探測回應（pong），回到 Alive 並刷新 lastLiveAt
func (c *Connection) Acknowledge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateTerminated {
		return
	}
	c.state = StateAlive
	c.lastLiveAt = c.clock()
}

// touch 應用層 ping 只刷新時間，不改變探測狀態
func (c *Connection) touch() {
	c.mu.Lock()
	c.lastLiveAt = c.clock()
	c.mu.Unlock()
}

// markProbed 進入 Probed。回傳 false 代表上一輪探測沒有回應（應判定死亡）
func (c *Connection) markProbed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateProbed:
		return false
	case StateTerminated:
		return false
	}
	c.state = StateProbed
	return true
}

// markTerminated 回傳 true 代表這次呼叫才是真正的終止（只會發生一次）
func (c *Connection) markTerminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateTerminated {
		return false
	}
	c.state = StateTerminated
	return true
}

// 以下方法只能在持有 Registry 鎖時呼叫

func (c *Connection) setRoom(code, name string) {
	c.mu.Lock()
	c.roomCode = code
	c.name = name
	c.mu.Unlock()
}

func (c *Connection) clearRoom() {
	c.mu.Lock()
	c.roomCode = ""
	c.mu.Unlock()
}
