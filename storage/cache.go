package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"board-api/domain"
)

// BoardBackend is the board persistence a Cache wraps.
type BoardBackend interface {
	FetchBoards(ctx context.Context, f domain.BoardFilter) ([]*domain.Board, error)
	FetchBoard(ctx context.Context, id string) (*domain.Board, error)
	InsertBoard(ctx context.Context, b *domain.Board) error
	ReplaceBoard(ctx context.Context, b *domain.Board) error
	DeleteBoard(ctx context.Context, id string) error
	PushMessage(ctx context.Context, boardID string, msg domain.Message) error
	PullMessage(ctx context.Context, boardID, msgID string) error
	SetLastSeen(ctx context.Context, boardID string, entries []domain.LastSeenEntry) error
}

// Cache wraps a BoardBackend with a Redis read-through cache for single board
// reads. Every write evicts the board it touched.
type Cache struct {
	base  BoardBackend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base BoardBackend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// FetchBoards is not cached: list results depend on the caller's scope.
func (c *Cache) FetchBoards(ctx context.Context, f domain.BoardFilter) ([]*domain.Board, error) {
	return c.base.FetchBoards(ctx, f)
}

func (c *Cache) FetchBoard(ctx context.Context, id string) (*domain.Board, error) {
	if b, ok := c.loadBoard(ctx, id); ok {
		return b, nil
	}
	b, err := c.base.FetchBoard(ctx, id)
	if err != nil || b == nil {
		return b, err
	}
	c.storeBoard(ctx, b)
	return b, nil
}

func (c *Cache) InsertBoard(ctx context.Context, b *domain.Board) error {
	return c.base.InsertBoard(ctx, b)
}

func (c *Cache) ReplaceBoard(ctx context.Context, b *domain.Board) error {
	defer c.evict(ctx, b.ID)
	return c.base.ReplaceBoard(ctx, b)
}

func (c *Cache) DeleteBoard(ctx context.Context, id string) error {
	defer c.evict(ctx, id)
	return c.base.DeleteBoard(ctx, id)
}

func (c *Cache) PushMessage(ctx context.Context, boardID string, msg domain.Message) error {
	defer c.evict(ctx, boardID)
	return c.base.PushMessage(ctx, boardID, msg)
}

func (c *Cache) PullMessage(ctx context.Context, boardID, msgID string) error {
	defer c.evict(ctx, boardID)
	return c.base.PullMessage(ctx, boardID, msgID)
}

func (c *Cache) SetLastSeen(ctx context.Context, boardID string, entries []domain.LastSeenEntry) error {
	defer c.evict(ctx, boardID)
	return c.base.SetLastSeen(ctx, boardID, entries)
}

func (c *Cache) loadBoard(ctx context.Context, id string) (*domain.Board, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(id)).Err()
		}
		return nil, false
	}
	var b domain.Board
	if err := sonic.Unmarshal(data, &b); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(id)).Err()
		return nil, false
	}
	return &b, true
}

func (c *Cache) storeBoard(ctx context.Context, b *domain.Board) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(b)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(b.ID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, boardCacheKey(id)).Err()
}

func boardCacheKey(id string) string {
	return "board:" + id
}
