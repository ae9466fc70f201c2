package internal_test

import (
	"testing"
	"time"

	"github.com/koopa0/system-design/game-relay/internal"
	"github.com/koopa0/system-design/game-relay/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func send(router *internal.Router, p *testutils.Peer, frame string) {
	router.Handle(p.Conn, []byte(frame))
}

// hostRoom 讓 p 建立房間並回傳房間碼
func hostRoom(t *testing.T, router *internal.Router, p *testutils.Peer, name string) string {
	t.Helper()
	send(router, p, `{"type":"host","name":"`+name+`"}`)
	msg := p.Channel.Last()
	require.NotNil(t, msg)
	require.Equal(t, "host_ok", msg["type"])
	return msg["room"].(string)
}

// TestRouter_Scenario 兩端完整流程：建房、加入、第三人被拒、轉送
func TestRouter_Scenario(t *testing.T) {
	router := testutils.NewTestRouter(2, nil)
	alice := testutils.Connect(router)
	bob := testutils.Connect(router)
	carol := testutils.Connect(router)

	// 1. Alice 建立房間
	code := hostRoom(t, router, alice, "Alice")
	assert.Len(t, code, 6)
	assert.True(t, internal.ValidCode(code))

	// 2. Bob 加入
	send(router, bob, `{"type":"join","room":"`+code+`","name":"Bob"}`)
	assert.Equal(t, map[string]any{"type": "join_ok", "room": code}, bob.Channel.Last())
	assert.Equal(t, map[string]any{
		"type": "room_message",
		"data": map[string]any{
			"type":    "host_joined",
			"peer_id": bob.Conn.ID(),
			"name":    "Bob",
		},
	}, alice.Channel.Last())

	// 3. Carol 被拒
	aliceBefore, bobBefore := alice.Channel.Count(), bob.Channel.Count()
	send(router, carol, `{"type":"join","room":"`+code+`","name":"Carol"}`)
	assert.Equal(t, map[string]any{"type": "join_failed", "reason": "room_full"}, carol.Channel.Last())
	assert.Equal(t, aliceBefore, alice.Channel.Count(), "rejection is not broadcast")
	assert.Equal(t, bobBefore, bob.Channel.Count(), "rejection is not broadcast")
	assert.Empty(t, carol.Conn.RoomCode())

	// 4. Alice 發送房間訊息，只有 Bob 收到並帶上 _from
	send(router, alice, `{"type":"room_message","data":{"type":"move","x":1}}`)
	assert.Equal(t, map[string]any{
		"type": "room_message",
		"data": map[string]any{
			"type":  "move",
			"x":     float64(1),
			"_from": alice.Conn.ID(),
		},
	}, bob.Channel.Last())
	assert.Equal(t, aliceBefore, alice.Channel.Count(), "sender never receives its own message")
	assert.Equal(t, 1, carol.Channel.Count(), "outsider receives nothing but its rejection")

	// 5. Bob 離開，Alice 收到 player_left
	send(router, bob, `{"type":"leave"}`)
	data := alice.Channel.Last()["data"].(map[string]any)
	assert.Equal(t, "player_left", data["type"])
	assert.Equal(t, bob.Conn.ID(), data["peer_id"])
	assert.Equal(t, "Bob", data["name"])
	assert.Empty(t, bob.Conn.RoomCode())

	info, ok := router.Registry().Lookup(code)
	require.True(t, ok)
	assert.Equal(t, []string{alice.Conn.ID()}, info.MemberIDs)
}

// TestRouter_Host 測試 host 訊息
func TestRouter_Host(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(router *internal.Router)
		frame    string
		expected map[string]any
	}{
		{
			name:     "custom code",
			frame:    `{"type":"host","room":"ABCD"}`,
			expected: map[string]any{"type": "host_ok", "room": "ABCD"},
		},
		{
			name:     "invalid code",
			frame:    `{"type":"host","room":"AB"}`,
			expected: map[string]any{"type": "join_failed", "reason": "invalid_code"},
		},
		{
			name: "duplicate code",
			setup: func(router *internal.Router) {
				other := testutils.Connect(router)
				send(router, other, `{"type":"host","room":"TAKEN"}`)
			},
			frame:    `{"type":"host","room":"TAKEN"}`,
			expected: map[string]any{"type": "join_failed", "reason": "room_exists"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testutils.NewTestRouter(2, nil)
			if tt.setup != nil {
				tt.setup(router)
			}
			p := testutils.Connect(router)
			send(router, p, tt.frame)
			assert.Equal(t, tt.expected, p.Channel.Last())
		})
	}

	t.Run("default host name", func(t *testing.T) {
		router := testutils.NewTestRouter(2, nil)
		p := testutils.Connect(router)
		send(router, p, `{"type":"host"}`)
		assert.Equal(t, "Host", p.Conn.Name())
	})
}

// TestRouter_Join 測試 join 訊息
func TestRouter_Join(t *testing.T) {
	t.Run("unknown room never creates one", func(t *testing.T) {
		router := testutils.NewTestRouter(2, nil)
		p := testutils.Connect(router)

		send(router, p, `{"type":"join","room":"ZZZZ"}`)
		assert.Equal(t, map[string]any{"type": "join_failed", "reason": "no_room"}, p.Channel.Last())
		_, ok := router.Registry().Lookup("ZZZZ")
		assert.False(t, ok)
	})

	t.Run("auto join without rooms", func(t *testing.T) {
		router := testutils.NewTestRouter(2, nil)
		p := testutils.Connect(router)

		send(router, p, `{"type":"join"}`)
		assert.Equal(t, map[string]any{"type": "join_failed", "reason": "no_room"}, p.Channel.Last())
	})

	t.Run("auto join picks first open room", func(t *testing.T) {
		router := testutils.NewTestRouter(2, nil)
		h1 := testutils.Connect(router)
		h2 := testutils.Connect(router)
		first := hostRoom(t, router, h1, "H1")
		second := hostRoom(t, router, h2, "H2")

		p1 := testutils.Connect(router)
		send(router, p1, `{"type":"join"}`)
		assert.Equal(t, map[string]any{"type": "join_ok", "room": first}, p1.Channel.Last())
		assert.Equal(t, "Player", p1.Conn.Name())

		p2 := testutils.Connect(router)
		send(router, p2, `{"type":"join","name":"Zed"}`)
		assert.Equal(t, map[string]any{"type": "join_ok", "room": second}, p2.Channel.Last())
	})
}

// TestRouter_RoomMessage 測試房間訊息的邊界情況
func TestRouter_RoomMessage(t *testing.T) {
	setup := func(t *testing.T) (*internal.Router, *testutils.Peer, *testutils.Peer) {
		router := testutils.NewTestRouter(2, nil)
		a := testutils.Connect(router)
		b := testutils.Connect(router)
		code := hostRoom(t, router, a, "A")
		send(router, b, `{"type":"join","room":"`+code+`"}`)
		a.Channel.Reset()
		b.Channel.Reset()
		return router, a, b
	}

	tests := []struct {
		name     string
		frame    string
		stamped  bool // data 是否被注入 _from
		expected map[string]any
	}{
		{
			name:     "missing data becomes empty object",
			frame:    `{"type":"room_message"}`,
			stamped:  true,
			expected: map[string]any{"type": "room_message", "data": map[string]any{}},
		},
		{
			name:     "null data becomes empty object",
			frame:    `{"type":"room_message","data":null}`,
			stamped:  true,
			expected: map[string]any{"type": "room_message", "data": map[string]any{}},
		},
		{
			name:     "zero becomes empty object",
			frame:    `{"type":"room_message","data":0}`,
			stamped:  true,
			expected: map[string]any{"type": "room_message", "data": map[string]any{}},
		},
		{
			name:     "false becomes empty object",
			frame:    `{"type":"room_message","data":false}`,
			stamped:  true,
			expected: map[string]any{"type": "room_message", "data": map[string]any{}},
		},
		{
			name:     "empty string becomes empty object",
			frame:    `{"type":"room_message","data":""}`,
			stamped:  true,
			expected: map[string]any{"type": "room_message", "data": map[string]any{}},
		},
		{
			name:     "client supplied _from is overwritten",
			frame:    `{"type":"room_message","data":{"_from":"forged","hp":3}}`,
			stamped:  true,
			expected: map[string]any{"type": "room_message", "data": map[string]any{"hp": float64(3)}},
		},
		{
			name:     "array forwarded as is",
			frame:    `{"type":"room_message","data":[1,2]}`,
			expected: map[string]any{"type": "room_message", "data": []any{float64(1), float64(2)}},
		},
		{
			name:     "string forwarded as is",
			frame:    `{"type":"room_message","data":"hello"}`,
			expected: map[string]any{"type": "room_message", "data": "hello"},
		},
		{
			name:     "number forwarded as is",
			frame:    `{"type":"room_message","data":7}`,
			expected: map[string]any{"type": "room_message", "data": float64(7)},
		},
		{
			name:     "true forwarded as is",
			frame:    `{"type":"room_message","data":true}`,
			expected: map[string]any{"type": "room_message", "data": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, a, b := setup(t)
			send(router, a, tt.frame)

			require.Equal(t, 1, b.Channel.Count())
			msg := b.Channel.Last()
			require.NotNil(t, msg)
			if tt.stamped {
				data := msg["data"].(map[string]any)
				assert.Equal(t, a.Conn.ID(), data["_from"])
				delete(data, "_from")
			}
			assert.Equal(t, tt.expected, msg)
			assert.Equal(t, 0, a.Channel.Count())
		})
	}

	t.Run("outside a room is ignored", func(t *testing.T) {
		router := testutils.NewTestRouter(2, nil)
		loner := testutils.Connect(router)
		other := testutils.Connect(router)

		send(router, loner, `{"type":"room_message","data":{"x":1}}`)
		assert.Equal(t, 0, loner.Channel.Count())
		assert.Equal(t, 0, other.Channel.Count())
	})

	t.Run("relay counter", func(t *testing.T) {
		router, a, b := setup(t)
		send(router, a, `{"type":"room_message","data":{}}`)
		send(router, b, `{"type":"room_message","data":{}}`)
		assert.Equal(t, int64(2), router.Snapshot().Relayed)
	})
}

// TestRouter_IgnoresGarbage 測試錯誤輸入不影響連接
func TestRouter_IgnoresGarbage(t *testing.T) {
	router := testutils.NewTestRouter(2, nil)
	p := testutils.Connect(router)

	frames := []string{
		`not json`,
		`{"type":`,
		`[]`,
		`{"type":42}`,
		`{"type":"dance"}`,
		`{}`,
		``,
	}
	for _, f := range frames {
		send(router, p, f)
	}

	assert.Equal(t, 0, p.Channel.Count())
	assert.True(t, p.Conn.IsOpen())

	// 連接仍可正常使用
	send(router, p, `{"type":"ping"}`)
	assert.Equal(t, map[string]any{"type": "pong"}, p.Channel.Last())
}

// TestRouter_Ping 測試應用層 ping 刷新存活時間
func TestRouter_Ping(t *testing.T) {
	clock := testutils.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	router := testutils.NewTestRouter(2, clock.Now)
	p := testutils.Connect(router)

	clock.Advance(time.Minute)
	send(router, p, `{"type":"ping"}`)

	assert.Equal(t, map[string]any{"type": "pong"}, p.Channel.Last())
	assert.Equal(t, clock.Now(), p.Conn.LastLiveAt())
	assert.Equal(t, internal.StateAlive, p.Conn.State())
}

// TestRouter_Disconnect 測試傳輸層斷線
func TestRouter_Disconnect(t *testing.T) {
	router := testutils.NewTestRouter(2, nil)
	a := testutils.Connect(router)
	b := testutils.Connect(router)
	code := hostRoom(t, router, a, "A")
	send(router, b, `{"type":"join","room":"`+code+`","name":"B"}`)

	router.Disconnect(b.Conn)
	router.Disconnect(b.Conn)

	data := a.Channel.Last()["data"].(map[string]any)
	assert.Equal(t, "player_left", data["type"])
	assert.Len(t, router.Connections(), 1)

	snap := router.Snapshot()
	assert.Equal(t, 1, snap.RoomCount)
	assert.Equal(t, 1, snap.ClientCount)
	assert.Equal(t, 1, snap.ConnectionCount)

	router.Disconnect(a.Conn)
	snap = router.Snapshot()
	assert.Equal(t, 0, snap.RoomCount)
	assert.Equal(t, 0, snap.ConnectionCount)
}

// TestRouter_Shutdown 測試關機通知
func TestRouter_Shutdown(t *testing.T) {
	router := testutils.NewTestRouter(2, nil)
	a := testutils.Connect(router)
	b := testutils.Connect(router)
	hostRoom(t, router, a, "A")

	router.Shutdown()

	for _, p := range []*testutils.Peer{a, b} {
		assert.Equal(t, map[string]any{"type": "server_shutdown"}, p.Channel.Last())
		assert.False(t, p.Channel.IsOpen())
	}

	// 關機後才進來的連接立即被關閉
	late := testutils.Connect(router)
	assert.Equal(t, map[string]any{"type": "server_shutdown"}, late.Channel.Last())
	assert.False(t, late.Channel.IsOpen())
}

// TestRouter_Snapshot 測試統計
func TestRouter_Snapshot(t *testing.T) {
	clock := testutils.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	router := testutils.NewTestRouter(2, clock.Now)
	a := testutils.Connect(router)
	testutils.Connect(router)
	hostRoom(t, router, a, "A")

	clock.Advance(42 * time.Second)
	snap := router.Snapshot()

	assert.Equal(t, 1, snap.RoomCount)
	assert.Equal(t, 1, snap.ClientCount)
	assert.Equal(t, 2, snap.ConnectionCount)
	assert.Equal(t, 42*time.Second, snap.Uptime)
}
