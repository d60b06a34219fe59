package api

import (
	"context"

	"github.com/gorilla/websocket"

	"board-api/accounts"
	"board-api/domain"
)

// BoardService is the board use case layer behind the handlers.
type BoardService interface {
	Query(ctx context.Context, f domain.BoardFilter) ([]*domain.Board, error)
	Get(ctx context.Context, actor *domain.Actor, id string) (*domain.Board, error)
	Create(ctx context.Context, actor *domain.Actor, in *domain.Board) (*domain.Board, error)
	Duplicate(ctx context.Context, actor *domain.Actor, id string) (*domain.Board, error)
	Update(ctx context.Context, actor *domain.Actor, id string, in *domain.Board) (*domain.Board, error)
	Remove(ctx context.Context, actor *domain.Actor, id string) error
	ApplyOperation(ctx context.Context, actor *domain.Actor, id string, op domain.Operation) (*domain.Board, bool, error)
	AddMessage(ctx context.Context, actor *domain.Actor, boardID, txt string) (*domain.Message, error)
	RemoveMessage(ctx context.Context, actor *domain.Actor, boardID, msgID string) error
	TrackView(ctx context.Context, actor *domain.Actor, boardID string) (*domain.Board, error)
	Viewers(ctx context.Context, actor *domain.Actor, boardID string) (domain.Viewers, error)
}

// AccountService signs users up, logs them in and manages the accounts of
// a company.
type AccountService interface {
	SignUp(ctx context.Context, req accounts.SignUpRequest) (*domain.User, error)
	Login(ctx context.Context, req accounts.LoginRequest) (*domain.User, error)
	Approve(ctx context.Context, approver *domain.Actor, userID string) (*domain.User, error)
	Query(ctx context.Context, actor *domain.Actor, txt string) ([]*domain.User, error)
	Get(ctx context.Context, actor *domain.Actor, id string) (*domain.User, error)
	Update(ctx context.Context, actor *domain.Actor, id string, in accounts.ProfileUpdate) (*domain.User, error)
	Remove(ctx context.Context, actor *domain.Actor, id string) error
}

// TokenIssuer signs session tokens for logged-in users.
type TokenIssuer interface {
	Issue(u *domain.User) (string, error)
}

// Authenticator is implemented by types able to turn an Authorization header
// into an actor.
type Authenticator interface {
	ActorFromAuthHeader(string) (*domain.Actor, error)
}

// Deduper prevents processing of duplicate operations.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// SocketServer runs an upgraded websocket for an authenticated actor.
type SocketServer interface {
	ServeConn(ctx context.Context, conn *websocket.Conn, actor *domain.Actor)
}
