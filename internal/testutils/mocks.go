package testutils

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// FakeChannel 實作 internal.Channel 介面的 mock，記錄所有送出的訊框
type FakeChannel struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool

	// 記錄呼叫次數
	ProbeCalls atomic.Int32
	CloseCalls atomic.Int32

	// 錯誤注入：為 true 時 Send 一律失敗（模擬佇列已滿）
	FailSends atomic.Bool
}

// NewFakeChannel 創建新的 FakeChannel
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{}
}

// Send 實作 Channel.Send
func (f *FakeChannel) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || f.FailSends.Load() {
		return false
	}
	f.frames = append(f.frames, append([]byte(nil), frame...))
	return true
}

// Close 實作 Channel.Close
func (f *FakeChannel) Close() {
	f.CloseCalls.Add(1)
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// IsOpen 實作 Channel.IsOpen
func (f *FakeChannel) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

// Probe 實作 Channel.Probe
func (f *FakeChannel) Probe() bool {
	f.ProbeCalls.Add(1)
	return f.IsOpen()
}

// Messages 把收到的訊框解成 map
func (f *FakeChannel) Messages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]any, 0, len(f.frames))
	for _, frame := range f.frames {
		var msg map[string]any
		if err := json.Unmarshal(frame, &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

// Last 最後一個訊框（沒有時回傳 nil）
func (f *FakeChannel) Last() map[string]any {
	msgs := f.Messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// Count 收到的訊框數
func (f *FakeChannel) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// Reset 清空已記錄的訊框
func (f *FakeChannel) Reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

// ManualClock 手動推進的時鐘
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock 從指定時間開始
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now 實作 internal.Clock
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 推進時間
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
