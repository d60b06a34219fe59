package boards

import (
	"context"
	"errors"
	"sync"

	"board-api/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	boards   map[string]*domain.Board
	replaced int
	fetchErr error
	writeErr error
}

func newFakeStore(boards ...*domain.Board) *fakeStore {
	f := &fakeStore{boards: map[string]*domain.Board{}}
	for _, b := range boards {
		f.boards[b.ID] = b.Clone()
	}
	return f
}

func (f *fakeStore) FetchBoards(ctx context.Context, flt domain.BoardFilter) ([]*domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := []*domain.Board{}
	for _, b := range f.boards {
		out = append(out, b.Clone())
	}
	return out, nil
}

func (f *fakeStore) FetchBoard(ctx context.Context, id string) (*domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	b, ok := f.boards[id]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (f *fakeStore) InsertBoard(ctx context.Context, b *domain.Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if _, ok := f.boards[b.ID]; ok {
		return domain.ErrConflict
	}
	f.boards[b.ID] = b.Clone()
	return nil
}

func (f *fakeStore) ReplaceBoard(ctx context.Context, b *domain.Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if _, ok := f.boards[b.ID]; !ok {
		return domain.ErrNotFound
	}
	f.boards[b.ID] = b.Clone()
	f.replaced++
	return nil
}

func (f *fakeStore) DeleteBoard(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.boards[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.boards, id)
	return nil
}

func (f *fakeStore) modify(id string, fn func(*domain.Board)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	b, ok := f.boards[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(b)
	return nil
}

func (f *fakeStore) PushMessage(ctx context.Context, boardID string, msg domain.Message) error {
	return f.modify(boardID, func(b *domain.Board) { b.Msgs = append(b.Msgs, msg) })
}

func (f *fakeStore) PullMessage(ctx context.Context, boardID, msgID string) error {
	return f.modify(boardID, func(b *domain.Board) {
		out := b.Msgs[:0]
		for _, m := range b.Msgs {
			if m.ID != msgID {
				out = append(out, m)
			}
		}
		b.Msgs = out
	})
}

func (f *fakeStore) SetLastSeen(ctx context.Context, boardID string, entries []domain.LastSeenEntry) error {
	return f.modify(boardID, func(b *domain.Board) { b.LastSeenBy = entries })
}

func (f *fakeStore) get(id string) *domain.Board {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boards[id]
}

type recordingNotifier struct {
	ids []string
	err error
}

func (r *recordingNotifier) BoardUpdated(ctx context.Context, boardID string) error {
	r.ids = append(r.ids, boardID)
	return r.err
}

type recordingEvents struct {
	events []domain.BoardEvent
}

func (r *recordingEvents) Publish(ctx context.Context, ev domain.BoardEvent) error {
	r.events = append(r.events, ev)
	return nil
}

type staticPresence map[string][]domain.Viewer

func (p staticPresence) LiveViewers(boardID string) []domain.Viewer {
	return p[boardID]
}

var errStorage = errors.New("storage failure")
