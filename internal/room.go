package internal

import (
	"time"
)

// Room 中繼房間
//
// 系統設計考量：
//
//  1. 並發控制：
//     Room 本身不帶鎖，所有欄位都由 Registry 的同一把鎖保護。
//     加入、離開、廣播、回收都在同一個序列化點上取成員快照，
//     所以 join 與 room_message 廣播競爭時看到的成員集合一定一致。
//
//  2. 成員集合：
//     最多 capacity 個（預設 2），用 slice 保存即可，線性掃描比 map 更省。
//     Room 只引用 Connection，不擁有它；連接的關閉由傳輸層負責。
//
//  3. 生命週期：
//     host 建立 → join/leave/斷線變動 → 變空時同步刪除，或超過 TTL 被回收。
//     不存在「空房間」：最後一個成員離開時在同一把鎖內刪除。
type Room struct {
	Code      string
	Host      *Connection
	CreatedAt time.Time

	members []*Connection
}

func newRoom(code string, host *Connection, now time.Time) *Room {
	return &Room{
		Code:      code,
		Host:      host,
		CreatedAt: now,
		members:   []*Connection{host},
	}
}

// Size 目前成員數
func (r *Room) Size() int {
	return len(r.members)
}

// Members 成員快照
func (r *Room) Members() []*Connection {
	out := make([]*Connection, len(r.members))
	copy(out, r.members)
	return out
}

// Has 是否為成員
func (r *Room) Has(conn *Connection) bool {
	for _, m := range r.members {
		if m == conn {
			return true
		}
	}
	return false
}

// Expired 房間年齡是否超過 TTL（與是否有人無關）
func (r *Room) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}

func (r *Room) add(conn *Connection) {
	r.members = append(r.members, conn)
}

// remove 移除成員，回傳是否真的移除了
//
// 房主離開時由最早加入的剩餘成員接任，Host 永遠是目前的成員（房間為空時除外）。
func (r *Room) remove(conn *Connection) bool {
	for i, m := range r.members {
		if m == conn {
			r.members = append(r.members[:i], r.members[i+1:]...)
			if r.Host == conn && len(r.members) > 0 {
				r.Host = r.members[0]
			}
			return true
		}
	}
	return false
}
