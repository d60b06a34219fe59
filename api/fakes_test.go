package api

import (
	"context"
	"errors"
	"sort"
	"sync"

	"board-api/accounts"
	"board-api/domain"
)

type fakeAuth struct {
	actor *domain.Actor
	err   error
	seen  []string
}

func (f *fakeAuth) ActorFromAuthHeader(h string) (*domain.Actor, error) {
	f.seen = append(f.seen, h)
	if f.err != nil {
		return nil, f.err
	}
	return f.actor, nil
}

type fakeBoards struct {
	mu      sync.Mutex
	boards  map[string]*domain.Board
	err     error
	applied []domain.Operation
	filter  domain.BoardFilter
	viewers domain.Viewers
	msgs    []string
}

func newFakeBoards(boards ...*domain.Board) *fakeBoards {
	f := &fakeBoards{boards: map[string]*domain.Board{}}
	for _, b := range boards {
		f.boards[b.ID] = b
	}
	return f
}

func (f *fakeBoards) Query(_ context.Context, flt domain.BoardFilter) ([]*domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = flt
	if f.err != nil {
		return nil, f.err
	}
	out := []*domain.Board{}
	for _, b := range f.boards {
		if flt.Match(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBoards) Get(_ context.Context, actor *domain.Actor, id string) (*domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.boards[id]
	if !ok || !domain.CanView(actor, b) {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeBoards) Create(_ context.Context, actor *domain.Actor, in *domain.Board) (*domain.Board, error) {
	if f.err != nil {
		return nil, f.err
	}
	b := in.Clone()
	b.ID = "new"
	b.Owner = actor.MiniUser()
	b.CompanyName = actor.CompanyName
	f.mu.Lock()
	f.boards[b.ID] = b
	f.mu.Unlock()
	return b, nil
}

func (f *fakeBoards) Duplicate(ctx context.Context, actor *domain.Actor, id string) (*domain.Board, error) {
	src, err := f.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	b := src.Clone()
	b.ID = id + "-copy"
	b.Title += " (copy)"
	return b, nil
}

func (f *fakeBoards) Update(ctx context.Context, actor *domain.Actor, id string, in *domain.Board) (*domain.Board, error) {
	if _, err := f.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	b := in.Clone()
	b.ID = id
	f.mu.Lock()
	f.boards[id] = b
	f.mu.Unlock()
	return b, nil
}

func (f *fakeBoards) Remove(ctx context.Context, actor *domain.Actor, id string) error {
	if _, err := f.Get(ctx, actor, id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.boards, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeBoards) ApplyOperation(ctx context.Context, actor *domain.Actor, id string, op domain.Operation) (*domain.Board, bool, error) {
	cur, err := f.Get(ctx, actor, id)
	if err != nil {
		return nil, false, err
	}
	next, changed := domain.Apply(cur, op)
	f.mu.Lock()
	f.applied = append(f.applied, op)
	f.boards[id] = next
	f.mu.Unlock()
	return next, changed, nil
}

func (f *fakeBoards) AddMessage(ctx context.Context, actor *domain.Actor, boardID, txt string) (*domain.Message, error) {
	if _, err := f.Get(ctx, actor, boardID); err != nil {
		return nil, err
	}
	if txt == "" {
		return nil, domain.NewValidationError("txt", "required")
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, txt)
	f.mu.Unlock()
	return &domain.Message{ID: "m1", Txt: txt, By: actor.MiniUser()}, nil
}

func (f *fakeBoards) RemoveMessage(ctx context.Context, actor *domain.Actor, boardID, _ string) error {
	_, err := f.Get(ctx, actor, boardID)
	return err
}

func (f *fakeBoards) TrackView(ctx context.Context, actor *domain.Actor, boardID string) (*domain.Board, error) {
	b, err := f.Get(ctx, actor, boardID)
	if err != nil {
		return nil, err
	}
	b = b.Clone()
	b.LastSeenBy = domain.TrackView(b.LastSeenBy, domain.LastSeenEntry{UserID: actor.ID, Fullname: actor.Fullname})
	return b, nil
}

func (f *fakeBoards) Viewers(ctx context.Context, actor *domain.Actor, boardID string) (domain.Viewers, error) {
	if _, err := f.Get(ctx, actor, boardID); err != nil {
		return domain.Viewers{}, err
	}
	return f.viewers, nil
}

func (f *fakeBoards) appliedOps() []domain.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Operation(nil), f.applied...)
}

type fakeAccounts struct {
	users   map[string]*domain.User
	signErr error
}

func (f *fakeAccounts) SignUp(_ context.Context, req accounts.SignUpRequest) (*domain.User, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	role := domain.Role(req.Role)
	if role == "" {
		role = domain.RoleEmployee
	}
	u := &domain.User{ID: "u-new", Email: req.Email, Fullname: req.Fullname, Role: role, CompanyName: req.CompanyName, Approved: role == domain.RoleFounder, PasswordHash: "hash"}
	return u, nil
}

func (f *fakeAccounts) Login(_ context.Context, req accounts.LoginRequest) (*domain.User, error) {
	u, ok := f.users[req.Email]
	if !ok || req.Password != "secret" {
		return nil, accounts.ErrInvalidCredentials
	}
	if !u.Approved {
		return nil, accounts.ErrNotApproved
	}
	return u, nil
}

func (f *fakeAccounts) Approve(_ context.Context, approver *domain.Actor, userID string) (*domain.User, error) {
	if !approver.Role.Elevated() {
		return nil, accounts.ErrForbidden
	}
	for _, u := range f.users {
		if u.ID == userID {
			u.Approved = true
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAccounts) Query(_ context.Context, actor *domain.Actor, txt string) ([]*domain.User, error) {
	flt := domain.UserFilter{CompanyName: actor.CompanyName, Txt: txt}
	out := []*domain.User{}
	for _, u := range f.users {
		if flt.Matches(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAccounts) Get(_ context.Context, actor *domain.Actor, id string) (*domain.User, error) {
	for _, u := range f.users {
		if u.ID == id && u.CompanyName == actor.CompanyName {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAccounts) Update(ctx context.Context, actor *domain.Actor, id string, in accounts.ProfileUpdate) (*domain.User, error) {
	u, err := f.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != id && !actor.Role.Elevated() {
		return nil, accounts.ErrNotAllowed
	}
	if in.Fullname != nil {
		u.Fullname = *in.Fullname
	}
	if in.ImgURL != nil {
		u.ImgURL = *in.ImgURL
	}
	return u, nil
}

func (f *fakeAccounts) Remove(ctx context.Context, actor *domain.Actor, id string) error {
	if !actor.Role.Elevated() {
		return accounts.ErrNotAllowed
	}
	u, err := f.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	delete(f.users, u.Email)
	return nil
}

type fakeTokens struct{ err error }

func (f fakeTokens) Issue(u *domain.User) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token-for-" + u.ID, nil
}

type memoryDeduper struct {
	mu      sync.Mutex
	keys    map[string]bool
	removed []string
	err     error
}

func newMemoryDeduper() *memoryDeduper { return &memoryDeduper{keys: map[string]bool{}} }

func (m *memoryDeduper) Add(_ context.Context, userID, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	k := userID + "|" + key
	if m.keys[k] {
		return false, nil
	}
	m.keys[k] = true
	return true, nil
}

func (m *memoryDeduper) Remove(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userID + "|" + key
	delete(m.keys, k)
	m.removed = append(m.removed, k)
	return nil
}

var errStorage = errors.New("storage unavailable")
