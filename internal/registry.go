package internal

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCapacity 每個房間的人數上限（一位房主 + 一位玩家）
	DefaultCapacity = 2

	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{4,8}$`)

// RoomInfo 房間的唯讀快照
type RoomInfo struct {
	Code      string    `json:"room"`
	HostID    string    `json:"host_id"`
	MemberIDs []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry 房間註冊表
//
// 系統設計考量：
//
//  1. 單一寫入者：
//     rooms、order 以及每個 Connection 的 roomCode 只在 mu 內修改。
//     鎖順序固定為 Registry.mu → Connection.mu，Connection 的方法不會反向取 Registry 的鎖。
//
//  2. 通知與變更同一個臨界區：
//     host_joined / player_left / 廣播都在持鎖時發送。
//     Channel.Send 只是把訊框放進緩衝佇列，不會阻塞，所以持鎖發送是安全的。
//
//  3. 自動加入需要穩定的順序：
//     map 迭代順序是隨機的，另外用 order 保存建立順序，FindJoinableRoom 取第一個有空位的房間。
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	order    []string
	capacity int
	clock    Clock
	logger   *slog.Logger

	failedSends atomic.Int64
}

// NewRegistry 創建房間註冊表
func NewRegistry(capacity int, clock Clock, logger *slog.Logger) *Registry {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		rooms:    make(map[string]*Room),
		capacity: capacity,
		clock:    clock,
		logger:   logger,
	}
}

// Capacity 每房人數上限
func (r *Registry) Capacity() int {
	return r.capacity
}

// GenerateCode 生成 6 位大寫英數房間碼（不保證與現有房間不重複）
func GenerateCode() string {
	b := make([]byte, codeLength)
	base := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			// 熵來源失效時生成的房間碼可被猜測，直接中止
			panic(fmt.Sprintf("generate room code: %v", err))
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}

// ValidCode 自訂房間碼是否合法
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// CreateRoom 創建房間，host 成為唯一成員
//
// code 為空時由伺服器生成（碰撞時重新生成）；否則必須合法且尚未被使用。
// host 若已在其他房間，會先走完整的離開流程。
func (r *Registry) CreateRoom(code string, host *Connection, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code == "" {
		for {
			code = GenerateCode()
			if _, exists := r.rooms[code]; !exists {
				break
			}
			r.logger.Debug("room code collision, regenerating", "room", code)
		}
	} else {
		if !ValidCode(code) {
			return "", ErrInvalidCode.withCode(code)
		}
		if _, exists := r.rooms[code]; exists {
			return "", ErrRoomExists.withCode(code)
		}
	}

	r.detachLocked(host)

	room := newRoom(code, host, r.clock())
	r.rooms[code] = room
	r.order = append(r.order, code)
	host.setRoom(code, name)

	r.logger.Info("room created",
		"room", code,
		"conn_id", host.ID(),
		"name", name)

	return code, nil
}

// JoinRoom 加入房間，成功後其他成員收到 host_joined
func (r *Registry) JoinRoom(code string, conn *Connection, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[code]
	if !exists {
		return ErrNoSuchRoom.withCode(code)
	}
	return r.joinLocked(room, conn, name)
}

// JoinAny 自動加入：挑選與加入在同一個臨界區完成，
// 併發的加入者不會搶走已經選中的空位。
func (r *Registry) JoinAny(conn *Connection, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.firstOpenLocked()
	if room == nil {
		return "", ErrNoSuchRoom
	}
	if err := r.joinLocked(room, conn, name); err != nil {
		return "", err
	}
	return room.Code, nil
}

// FindJoinableRoom 依建立順序找第一個還有空位的房間（只查詢，不保留空位）
func (r *Registry) FindJoinableRoom() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room := r.firstOpenLocked(); room != nil {
		return room.Code, true
	}
	return "", false
}

// LeaveRoom 離開目前房間（冪等）
//
// 剩餘成員先收到 player_left，再移除；房間變空時同步刪除。
func (r *Registry) LeaveRoom(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked(conn)
}

// Relay 把訊框送給 sender 所在房間的其他成員，回傳成功送達的數量
//
// sender 不在任何房間時回傳 false。
func (r *Registry) Relay(sender *Connection, frame []byte) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[sender.RoomCode()]
	if !ok || !room.Has(sender) {
		return 0, false
	}

	delivered := 0
	for _, m := range room.members {
		if m == sender || !m.IsOpen() {
			continue
		}
		if r.sendLocked(m, frame) {
			delivered++
		}
	}
	return delivered, true
}

// ReapExpired 移除所有超過 TTL 的房間
//
// onReap 在刪除前、持鎖時被呼叫，拿到的是該房間的成員快照；
// 呼叫端負責通知與關閉連接。成員的 roomCode 會先被清除，
// 之後傳輸層觸發的斷線清理就成為 no-op。
func (r *Registry) ReapExpired(now time.Time, ttl time.Duration, onReap func(code string, members []*Connection)) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := 0
	kept := r.order[:0]
	for _, code := range r.order {
		room := r.rooms[code]
		if room == nil {
			continue
		}
		if !room.Expired(now, ttl) {
			kept = append(kept, code)
			continue
		}

		members := room.Members()
		for _, m := range members {
			m.clearRoom()
		}
		if onReap != nil {
			onReap(code, members)
		}
		delete(r.rooms, code)
		reaped++

		r.logger.Info("room reaped",
			"room", code,
			"age", now.Sub(room.CreatedAt),
			"members", len(members))
	}
	r.order = kept

	return reaped
}

// Lookup 查詢房間快照
func (r *Registry) Lookup(code string) (RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return RoomInfo{}, false
	}

	ids := make([]string, 0, room.Size())
	for _, m := range room.members {
		ids = append(ids, m.ID())
	}
	return RoomInfo{
		Code:      room.Code,
		HostID:    room.Host.ID(),
		MemberIDs: ids,
		CreatedAt: room.CreatedAt,
	}, true
}

// Stats 房間數與房間內成員總數
func (r *Registry) Stats() (rooms, clients int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms = len(r.rooms)
	for _, room := range r.rooms {
		clients += room.Size()
	}
	return rooms, clients
}

// FailedSends 發送失敗（通道關閉或佇列已滿）的累計次數
func (r *Registry) FailedSends() int64 {
	return r.failedSends.Load()
}

// joinLocked 把 conn 加入 room（需持有 mu）
func (r *Registry) joinLocked(room *Room, conn *Connection, name string) error {
	// 重複加入同一個房間（冪等）
	if room.Has(conn) {
		return nil
	}

	if room.Size() >= r.capacity {
		return ErrRoomFull.withCode(room.Code)
	}

	r.detachLocked(conn)

	conn.setRoom(room.Code, name)
	room.add(conn)

	notice := noticeFrame(NoticeHostJoined, conn)
	for _, m := range room.members {
		if m == conn {
			continue
		}
		r.sendLocked(m, notice)
	}

	r.logger.Info("peer joined room",
		"room", room.Code,
		"conn_id", conn.ID(),
		"name", name,
		"members", room.Size())

	return nil
}

func (r *Registry) firstOpenLocked() *Room {
	for _, code := range r.order {
		if room := r.rooms[code]; room != nil && room.Size() < r.capacity {
			return room
		}
	}
	return nil
}

// detachLocked 把 conn 從它所在的房間移除（需持有 mu）
func (r *Registry) detachLocked(conn *Connection) {
	code := conn.RoomCode()
	if code == "" {
		return
	}
	conn.clearRoom()

	room, ok := r.rooms[code]
	if !ok || !room.Has(conn) {
		return
	}

	// 先通知剩餘成員，再完成移除
	notice := noticeFrame(NoticePlayerLeft, conn)
	for _, m := range room.members {
		if m == conn || !m.IsOpen() {
			continue
		}
		r.sendLocked(m, notice)
	}
	room.remove(conn)

	if room.Size() == 0 {
		r.deleteLocked(code)
		r.logger.Info("room deleted (empty)", "room", code)
		return
	}

	r.logger.Info("peer left room",
		"room", code,
		"conn_id", conn.ID(),
		"name", conn.Name(),
		"remaining", room.Size())
}

func (r *Registry) deleteLocked(code string) {
	delete(r.rooms, code)
	for i, c := range r.order {
		if c == code {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) sendLocked(conn *Connection, frame []byte) bool {
	if conn.Send(frame) {
		return true
	}
	r.failedSends.Add(1)
	r.logger.Debug("send failed", "conn_id", conn.ID())
	return false
}
