package domain

// Board event types published on the change feed.
const (
	BoardCreated      = "board-created"
	BoardUpdated      = "board-updated"
	BoardDeleted      = "board-deleted"
	BoardOperation    = "board-operation"
	BoardMessageAdded = "board-message-added"
	BoardMessageGone  = "board-message-removed"
	BoardViewed       = "board-viewed"
)

// BoardEvent is one entry of the board change feed. Operation is set for
// BoardOperation events only.
type BoardEvent struct {
	ID        string `json:"id"`
	BoardID   string `json:"boardId"`
	Type      string `json:"type"`
	Operation OpType `json:"operation,omitempty"`
	ActorID   string `json:"actorId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
