package internal

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// 客戶端 → 伺服器
const (
	TypeHost        = "host"
	TypeJoin        = "join"
	TypeRoomMessage = "room_message"
	TypeLeave       = "leave"
	TypePing        = "ping"
)

// 伺服器 → 客戶端
const (
	TypeHostOK         = "host_ok"
	TypeJoinOK         = "join_ok"
	TypeJoinFailed     = "join_failed"
	TypeRoomClosed     = "room_closed"
	TypeServerShutdown = "server_shutdown"
	TypePong           = "pong"

	// 包在 room_message.data 裡的通知
	NoticeHostJoined = "host_joined"
	NoticePlayerLeft = "player_left"
)

// fromKey 中繼時注入到 data 的發送者 ID
const fromKey = "_from"

// Inbound 客戶端訊框（結構化解析後）
type Inbound struct {
	Type string          `json:"type"`
	Name string          `json:"name,omitempty"`
	Room string          `json:"room,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound 伺服器訊框
type Outbound struct {
	Type   string          `json:"type"`
	Room   string          `json:"room,omitempty"`
	Reason Reason          `json:"reason,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// peerNotice host_joined / player_left 的內容
type peerNotice struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
	Name   string `json:"name"`
}

// ParseInbound 解析客戶端訊框；任何結構錯誤都回傳 error，由呼叫端靜默丟棄
func ParseInbound(frame []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// stampFrom 在 data 物件中注入 _from，回傳新的 data
//
// data 缺省、null 或其他假值（false、0、""）視為空物件；
// 陣列、非空字串、非零數字與 true 原樣轉送，不注入 _from。
func stampFrom(data json.RawMessage, from string) (json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if isFalsy(data) {
		data = json.RawMessage("{}")
	} else if data[0] != '{' {
		return data, nil
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	id, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}
	fields[fromKey] = id

	return json.Marshal(fields)
}

func isFalsy(data []byte) bool {
	switch string(data) {
	case "", "null", "false", `""`:
		return true
	}
	if c := data[0]; c == '-' || (c >= '0' && c <= '9') {
		f, err := strconv.ParseFloat(string(data), 64)
		return err == nil && f == 0
	}
	return false
}

func encode(msg Outbound) []byte {
	// Outbound 只包含字串與已驗證過的 RawMessage，序列化不會失敗
	b, _ := json.Marshal(msg)
	return b
}

func hostOKFrame(code string) []byte {
	return encode(Outbound{Type: TypeHostOK, Room: code})
}

func joinOKFrame(code string) []byte {
	return encode(Outbound{Type: TypeJoinOK, Room: code})
}

func joinFailedFrame(reason Reason) []byte {
	return encode(Outbound{Type: TypeJoinFailed, Reason: reason})
}

func roomClosedFrame(reason Reason) []byte {
	return encode(Outbound{Type: TypeRoomClosed, Reason: reason})
}

func pongFrame() []byte {
	return encode(Outbound{Type: TypePong})
}

func shutdownFrame() []byte {
	return encode(Outbound{Type: TypeServerShutdown})
}

func roomMessageFrame(data json.RawMessage) []byte {
	return encode(Outbound{Type: TypeRoomMessage, Data: data})
}

func noticeFrame(kind string, conn *Connection) []byte {
	data, _ := json.Marshal(peerNotice{Type: kind, PeerID: conn.ID(), Name: conn.Name()})
	return roomMessageFrame(data)
}
