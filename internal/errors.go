package internal

import (
	"errors"
	"fmt"
)

// Reason 是 join_failed / room_closed 帶給客戶端的原因碼
type Reason string

const (
	ReasonNoRoom      Reason = "no_room"
	ReasonRoomFull    Reason = "room_full"
	ReasonInvalidCode Reason = "invalid_code"
	ReasonRoomExists  Reason = "room_exists"
	ReasonTimeout     Reason = "timeout"
)

// RelayError 房間操作被拒絕時的應用層錯誤
//
// 只會回給發起請求的那一端（join_failed），不會廣播給房間內其他成員。
type RelayError struct {
	Reason  Reason
	Message string
	Code    string
}

// Error 實現 error 介面
func (e *RelayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Reason, e.Message, e.Code)
	}
	return fmt.Sprintf("[%s] %s", e.Reason, e.Message)
}

// Is 以原因碼比對，讓 errors.Is(err, ErrRoomFull) 對帶房間碼的錯誤也成立
func (e *RelayError) Is(target error) bool {
	t, ok := target.(*RelayError)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// withCode 複製一份錯誤並附上房間碼（sentinel 本身不可修改）
func (e *RelayError) withCode(code string) *RelayError {
	return &RelayError{Reason: e.Reason, Message: e.Message, Code: code}
}

// 預定義錯誤
var (
	ErrInvalidCode = &RelayError{Reason: ReasonInvalidCode, Message: "room code must match ^[A-Z0-9]{4,8}$"}
	ErrRoomExists  = &RelayError{Reason: ReasonRoomExists, Message: "room already exists"}
	ErrRoomFull    = &RelayError{Reason: ReasonRoomFull, Message: "room is full"}
	ErrNoSuchRoom  = &RelayError{Reason: ReasonNoRoom, Message: "room not found"}
)

// ReasonOf 取出錯誤對應的原因碼，非 RelayError 一律視為 no_room
func ReasonOf(err error) Reason {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Reason
	}
	return ReasonNoRoom
}
