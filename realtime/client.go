package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

// Client is one socket connection. rooms is guarded by the hub mutex; userID
// is only touched by the read pump.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	actor  *domain.Actor
	send   chan []byte
	rooms  map[string]struct{}
	userID string
}

func newClient(h *Hub, conn *websocket.Conn, actor *domain.Actor) *Client {
	return &Client{
		hub:   h,
		conn:  conn,
		actor: actor,
		send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]struct{}),
	}
}

func (c *Client) actorID() string {
	if c.actor == nil {
		return c.userID
	}
	return c.actor.ID
}

// enqueue queues frame without blocking and reports false when the buffer
// is full. Callers other than the read pump must hold the hub mutex.
func (c *Client) enqueue(frame []byte) bool {
	if frame == nil {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.WithError(err).WithField("userId", c.actorID()).Debug("socket read failed")
			}
			return
		}
		var f inboundFrame
		if err := decodeData(data, &f); err != nil || f.Event == "" {
			c.replyError(errors.New("invalid frame"))
			continue
		}
		if err := c.handle(ctx, f); err != nil {
			c.hub.logger.WithError(err).WithFields(log.Fields{"userId": c.actorID(), "event": f.Event}).Debug("socket event rejected")
			c.replyError(err)
		}
	}
}

func (c *Client) handle(ctx context.Context, f inboundFrame) error {
	switch f.Event {
	case EventSetUser:
		var id string
		if err := decodeData(f.Data, &id); err != nil || id == "" {
			return errors.New("user id required")
		}
		if c.actor != nil && c.actor.ID != id {
			return errors.New("user id does not match token")
		}
		c.userID = id
		return nil
	case EventUnsetUser:
		c.userID = ""
		c.hub.leaveAll(c)
		return nil
	case EventJoinBoard:
		req, err := decodeRoomRequest(f.Data)
		if err != nil {
			return err
		}
		return c.hub.join(ctx, c, req.BoardID, c.viewer(req.User))
	case EventLeaveBoard:
		req, err := decodeRoomRequest(f.Data)
		if err != nil {
			return err
		}
		c.hub.leave(c, req.BoardID)
		return nil
	case EventEmitUpdate:
		var boardID string
		if err := decodeData(f.Data, &boardID); err != nil || boardID == "" {
			return errors.New("board id required")
		}
		if !c.hub.inRoom(c, boardID) {
			return ErrNotJoined
		}
		return c.hub.BoardUpdated(ctx, boardID)
	default:
		return fmt.Errorf("unknown event %q", f.Event)
	}
}

func decodeRoomRequest(raw []byte) (roomRequest, error) {
	var req roomRequest
	if err := decodeData(raw, &req); err != nil || req.BoardID == "" {
		return req, errors.New("board id required")
	}
	return req, nil
}

// viewer is the identity shown to the room. The token wins over whatever the
// frame claims.
func (c *Client) viewer(claimed *domain.Viewer) domain.Viewer {
	var v domain.Viewer
	if claimed != nil {
		v = *claimed
	}
	if c.actor == nil {
		if v.UserID == "" {
			v.UserID = c.userID
		}
		return v
	}
	v.UserID = c.actor.ID
	if c.actor.Fullname != "" {
		v.Fullname = c.actor.Fullname
	}
	if c.actor.ImgURL != "" {
		v.ImgURL = c.actor.ImgURL
	}
	return v
}

func (c *Client) replyError(err error) {
	b, encErr := encodeFrame(EventError, errorData{Err: err.Error()})
	if encErr != nil {
		return
	}
	c.enqueue(b)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
