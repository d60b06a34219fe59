package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

var (
	ErrAccessDenied = errors.New("access denied to this board")
	ErrNotJoined    = errors.New("not joined to this board")
)

// Authorizer decides whether an actor may join a board room.
type Authorizer interface {
	CanJoin(ctx context.Context, actor *domain.Actor, boardID string) (bool, error)
}

// Publisher forwards a board update to every instance, this one included.
type Publisher interface {
	Publish(ctx context.Context, boardID string) error
}

type member struct {
	client *Client
	viewer domain.Viewer
}

// Hub holds the connected sockets and the board rooms they joined. Rooms keep
// join order so live viewers are listed in the order they arrived.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string][]member
	clients map[*Client]struct{}

	auth      Authorizer
	publisher Publisher
	logger    *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		rooms:   make(map[string][]member),
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// SetAuthorizer installs the join check. Must be called before serving.
func (h *Hub) SetAuthorizer(a Authorizer) { h.auth = a }

// SetPublisher routes BoardUpdated through p. Must be called before serving.
func (h *Hub) SetPublisher(p Publisher) { h.publisher = p }

// ServeConn runs the socket until it disconnects. The caller has already
// authenticated actor.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn, actor *domain.Actor) {
	c := newClient(h, conn, actor)
	h.register(c)
	go c.writePump()
	c.readPump(ctx)
	h.unregister(c)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.WithFields(log.Fields{"userId": c.actorID(), "connections": n}).Debug("socket connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	slow := h.leaveAllLocked(c)
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	h.drop(slow)
	h.logger.WithField("userId", c.actorID()).Debug("socket disconnected")
}

// join adds c to the room of boardID. Joining twice is a no-op. The joiner
// receives one join update per viewer already present, the others receive
// the joiner, unless the same user is already live in another tab.
func (h *Hub) join(ctx context.Context, c *Client, boardID string, v domain.Viewer) error {
	if h.auth != nil {
		ok, err := h.auth.CanJoin(ctx, c.actor, boardID)
		if err != nil {
			return fmt.Errorf("check board access: %w", err)
		}
		if !ok {
			return ErrAccessDenied
		}
	}

	h.mu.Lock()
	members := h.rooms[boardID]
	userLive := false
	for _, m := range members {
		if m.client == c {
			h.mu.Unlock()
			return nil
		}
		if m.viewer.UserID == v.UserID {
			userLive = true
		}
	}
	var slow []*Client
	seen := map[string]struct{}{v.UserID: {}}
	for _, m := range members {
		if _, dup := seen[m.viewer.UserID]; dup {
			continue
		}
		seen[m.viewer.UserID] = struct{}{}
		if !c.enqueue(h.usersFrame(UsersJoin, m.viewer)) {
			slow = append(slow, c)
			break
		}
	}
	if !userLive {
		slow = append(slow, h.fanOutLocked(boardID, h.usersFrame(UsersJoin, v))...)
	}
	h.rooms[boardID] = append(members, member{client: c, viewer: v})
	c.rooms[boardID] = struct{}{}
	h.mu.Unlock()

	h.drop(slow)
	h.logger.WithFields(log.Fields{"boardId": boardID, "userId": v.UserID}).Debug("joined board room")
	return nil
}

// leave removes c from the room of boardID.
func (h *Hub) leave(c *Client, boardID string) {
	h.mu.Lock()
	slow := h.leaveLocked(c, boardID)
	h.mu.Unlock()
	h.drop(slow)
}

func (h *Hub) leaveAll(c *Client) {
	h.mu.Lock()
	slow := h.leaveAllLocked(c)
	h.mu.Unlock()
	h.drop(slow)
}

func (h *Hub) leaveAllLocked(c *Client) []*Client {
	var slow []*Client
	for boardID := range c.rooms {
		slow = append(slow, h.leaveLocked(c, boardID)...)
	}
	return slow
}

func (h *Hub) leaveLocked(c *Client, boardID string) []*Client {
	members := h.rooms[boardID]
	idx := -1
	for i, m := range members {
		if m.client == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	v := members[idx].viewer
	members = append(members[:idx:idx], members[idx+1:]...)
	delete(c.rooms, boardID)
	if len(members) == 0 {
		delete(h.rooms, boardID)
		return nil
	}
	h.rooms[boardID] = members
	for _, m := range members {
		if m.viewer.UserID == v.UserID {
			return nil
		}
	}
	return h.fanOutLocked(boardID, h.usersFrame(UsersLeave, v))
}

// inRoom reports whether c joined boardID.
func (h *Hub) inRoom(c *Client, boardID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[boardID]
	return ok
}

// LiveViewers lists the users connected to boardID, one entry per user.
func (h *Hub) LiveViewers(boardID string) []domain.Viewer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[boardID]
	out := make([]domain.Viewer, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.viewer.UserID]; dup {
			continue
		}
		seen[m.viewer.UserID] = struct{}{}
		out = append(out, m.viewer)
	}
	return out
}

// BoardUpdated notifies the viewers of boardID on every instance. Without a
// publisher, or when publishing fails, only local viewers are notified.
func (h *Hub) BoardUpdated(ctx context.Context, boardID string) error {
	if h.publisher == nil {
		h.Deliver(boardID)
		return nil
	}
	if err := h.publisher.Publish(ctx, boardID); err != nil {
		h.Deliver(boardID)
		return fmt.Errorf("relay board update: %w", err)
	}
	return nil
}

// Deliver sends the update notification to the local members of boardID.
func (h *Hub) Deliver(boardID string) {
	frame := h.frame(EventBoardUpdated, boardID)
	if frame == nil {
		return
	}
	h.mu.RLock()
	slow := h.fanOutLocked(boardID, frame)
	h.mu.RUnlock()
	h.drop(slow)
}

// fanOutLocked queues frame for every member of boardID and returns the
// members whose buffer is full. h.mu must be held.
func (h *Hub) fanOutLocked(boardID string, frame []byte) []*Client {
	if frame == nil {
		return nil
	}
	var slow []*Client
	for _, m := range h.rooms[boardID] {
		if !m.client.enqueue(frame) {
			slow = append(slow, m.client)
		}
	}
	return slow
}

// drop closes sockets that stopped reading. Their read pump then exits and
// unregisters them.
func (h *Hub) drop(slow []*Client) {
	for _, c := range slow {
		h.logger.WithField("userId", c.actorID()).Warn("dropping slow socket")
		_ = c.conn.Close()
	}
}

func (h *Hub) usersFrame(typ string, v domain.Viewer) []byte {
	return h.frame(EventBoardUsers, usersUpdate{Type: typ, User: v})
}

func (h *Hub) frame(event string, data any) []byte {
	b, err := encodeFrame(event, data)
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("cannot encode frame")
		return nil
	}
	return b
}
