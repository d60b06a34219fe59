// Package realtime keeps board rooms for connected sockets, tracks live
// viewers and fans out board update notifications.
package realtime

import (
	"github.com/bytedance/sonic"

	"board-api/domain"
)

// Socket events. Every frame on the wire is {"event": ..., "data": ...}.
const (
	EventSetUser      = "set-user-socket"
	EventUnsetUser    = "unset-user-socket"
	EventJoinBoard    = "board-join"
	EventLeaveBoard   = "board-leave"
	EventEmitUpdate   = "emit-update-board"
	EventBoardUpdated = "event-update-board"
	EventBoardUsers   = "board-users-updated"
	EventError        = "error"
)

// Presence change types carried by EventBoardUsers.
const (
	UsersJoin  = "join"
	UsersLeave = "leave"
)

type inboundFrame struct {
	Event string                 `json:"event"`
	Data  sonic.NoCopyRawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type roomRequest struct {
	BoardID string         `json:"boardId"`
	User    *domain.Viewer `json:"user,omitempty"`
}

type usersUpdate struct {
	Type string        `json:"type"`
	User domain.Viewer `json:"user"`
}

type errorData struct {
	Err string `json:"err"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	return sonic.Marshal(outboundFrame{Event: event, Data: data})
}

func decodeData(raw sonic.NoCopyRawMessage, v any) error {
	return sonic.Unmarshal(raw, v)
}
