package boards

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"board-api/domain"
)

const tracerName = "board-api/boards"

// Store is the board persistence the service reads and writes.
type Store interface {
	FetchBoards(ctx context.Context, f domain.BoardFilter) ([]*domain.Board, error)
	FetchBoard(ctx context.Context, id string) (*domain.Board, error)
	InsertBoard(ctx context.Context, b *domain.Board) error
	ReplaceBoard(ctx context.Context, b *domain.Board) error
	DeleteBoard(ctx context.Context, id string) error
	PushMessage(ctx context.Context, boardID string, msg domain.Message) error
	PullMessage(ctx context.Context, boardID, msgID string) error
	SetLastSeen(ctx context.Context, boardID string, entries []domain.LastSeenEntry) error
}

// Notifier tells viewers of a board that it changed. Only the id travels;
// receivers fetch the board again.
type Notifier interface {
	BoardUpdated(ctx context.Context, boardID string) error
}

// EventPublisher appends to the board change feed.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.BoardEvent) error
}

// Presence reports who is connected to a board right now.
type Presence interface {
	LiveViewers(boardID string) []domain.Viewer
}

// Service runs every board use case: access check, mutation, persistence,
// then notification of the other viewers.
type Service struct {
	store    Store
	notifier Notifier
	events   EventPublisher
	presence Presence
	applier  domain.Applier
	logger   *log.Logger
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func WithPresence(p Presence) Option { return func(s *Service) { s.presence = p } }

// WithApplier replaces the id and clock sources used for new documents.
func WithApplier(a domain.Applier) Option { return func(s *Service) { s.applier = a } }

func New(store Store, logger *log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Service{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetNotifier installs the notifier after construction, for wiring where the
// notifier itself depends on the service.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetPresence installs the live viewer source after construction.
func (s *Service) SetPresence(p Presence) { s.presence = p }

// Query lists the boards visible to f.Actor whose title matches f.Title.
func (s *Service) Query(ctx context.Context, f domain.BoardFilter) ([]*domain.Board, error) {
	all, err := s.store.FetchBoards(ctx, f)
	if err != nil {
		s.logger.WithError(err).Error("cannot find boards")
		return nil, err
	}
	return domain.FilterBoards(all, f), nil
}

// Get returns the board, or domain.ErrNotFound when it does not exist or the
// actor may not see it.
func (s *Service) Get(ctx context.Context, actor *domain.Actor, id string) (*domain.Board, error) {
	b, err := s.store.FetchBoard(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("boardId", id).Error("while finding board")
		return nil, err
	}
	if b == nil || !domain.CanView(actor, b) {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

// CanJoin reports whether actor may join the live room of a board.
func (s *Service) CanJoin(ctx context.Context, actor *domain.Actor, boardID string) (bool, error) {
	_, err := s.Get(ctx, actor, boardID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create stores a new board owned by actor, filling defaults for anything the
// payload left out.
func (s *Service) Create(ctx context.Context, actor *domain.Actor, in *domain.Board) (*domain.Board, error) {
	if in == nil {
		in = &domain.Board{}
	}
	b := s.applier.WithDefaults(in)
	b.ID = s.applier.ID()
	if owner := actor.MiniUser(); owner != nil {
		b.Owner = owner
	}
	if actor != nil && actor.CompanyName != "" {
		b.CompanyName = actor.CompanyName
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.InsertBoard(ctx, b); err != nil {
		s.logger.WithError(err).Error("cannot insert board")
		return nil, err
	}
	s.publish(ctx, actor, b.ID, domain.BoardCreated, "")
	return b, nil
}

// Duplicate stores a copy of a visible board with fresh ids.
func (s *Service) Duplicate(ctx context.Context, actor *domain.Actor, id string) (*domain.Board, error) {
	src, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	b := s.applier.Duplicate(src)
	b.ID = s.applier.ID()
	if owner := actor.MiniUser(); owner != nil {
		b.Owner = owner
	}
	if err := s.store.InsertBoard(ctx, b); err != nil {
		s.logger.WithError(err).WithField("boardId", id).Error("cannot duplicate board")
		return nil, err
	}
	s.publish(ctx, actor, b.ID, domain.BoardCreated, "")
	return b, nil
}

// Update replaces a board the actor can see with in. The id, company and
// owner of the stored board are kept.
func (s *Service) Update(ctx context.Context, actor *domain.Actor, id string, in *domain.Board) (*domain.Board, error) {
	cur, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	b := in.Clone()
	b.ID = cur.ID
	b.CompanyName = cur.CompanyName
	b.Owner = cur.Owner
	if b.Visibility == "" {
		b.Visibility = cur.Visibility
	}
	if b.AllowedUsers == nil {
		b.AllowedUsers = []string{}
	}
	b.CreatedAt = cur.CreatedAt
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceBoard(ctx, b); err != nil {
		s.logger.WithError(err).WithField("boardId", id).Error("cannot update board")
		return nil, err
	}
	s.changed(ctx, actor, id, domain.BoardUpdated, "")
	return b, nil
}

func (s *Service) Remove(ctx context.Context, actor *domain.Actor, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteBoard(ctx, id); err != nil {
		s.logger.WithError(err).WithField("boardId", id).Error("cannot remove board")
		return err
	}
	s.changed(ctx, actor, id, domain.BoardDeleted, "")
	return nil
}

// ApplyOperation runs one operation against a board: read, check access,
// apply, write back, notify. The whole document is written, so concurrent
// operations on one board follow last write wins. An operation that does
// not resolve against the board is not written and reports changed=false.
func (s *Service) ApplyOperation(ctx context.Context, actor *domain.Actor, id string, op domain.Operation) (b *domain.Board, changed bool, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "boards.apply", trace.WithAttributes(
		attribute.String("board.id", id),
		attribute.String("board.operation", string(op.Type())),
	))
	defer func() {
		span.SetAttributes(attribute.Bool("board.changed", changed))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	cur, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, false, err
	}
	next, changed := s.applier.Apply(cur, op)
	if !changed {
		s.logger.WithFields(log.Fields{"boardId": id, "operation": op.Type()}).Debug("operation did not change board")
		return cur, false, nil
	}
	if err := s.store.ReplaceBoard(ctx, next); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"boardId": id, "operation": op.Type()}).Error("cannot update board")
		return nil, false, err
	}
	s.changed(ctx, actor, id, domain.BoardOperation, op.Type())
	return next, true, nil
}

// AddMessage appends a chat message written by actor to the board.
func (s *Service) AddMessage(ctx context.Context, actor *domain.Actor, boardID, txt string) (*domain.Message, error) {
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return nil, domain.NewValidationError("txt", "required")
	}
	if _, err := s.Get(ctx, actor, boardID); err != nil {
		return nil, err
	}
	msg := domain.Message{ID: s.applier.ID(), Txt: txt, By: actor.MiniUser(), CreatedAt: s.applier.Millis()}
	if err := s.store.PushMessage(ctx, boardID, msg); err != nil {
		s.logger.WithError(err).WithField("boardId", boardID).Error("cannot add board msg")
		return nil, err
	}
	s.changed(ctx, actor, boardID, domain.BoardMessageAdded, "")
	return &msg, nil
}

func (s *Service) RemoveMessage(ctx context.Context, actor *domain.Actor, boardID, msgID string) error {
	if _, err := s.Get(ctx, actor, boardID); err != nil {
		return err
	}
	if err := s.store.PullMessage(ctx, boardID, msgID); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"boardId": boardID, "msgId": msgID}).Error("cannot remove board msg")
		return err
	}
	s.changed(ctx, actor, boardID, domain.BoardMessageGone, "")
	return nil
}

// TrackView records that actor opened the board and returns the board with
// its updated view history.
func (s *Service) TrackView(ctx context.Context, actor *domain.Actor, boardID string) (b *domain.Board, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "boards.track_view", trace.WithAttributes(attribute.String("board.id", boardID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if actor == nil {
		return nil, domain.NewValidationError("user", "required")
	}
	b, err = s.Get(ctx, actor, boardID)
	if err != nil {
		return nil, err
	}
	b = b.Clone()
	b.LastSeenBy = domain.TrackView(b.LastSeenBy, domain.LastSeenEntry{
		UserID:     actor.ID,
		Fullname:   actor.Fullname,
		ImgURL:     actor.ImgURL,
		LastSeenAt: s.applier.Millis(),
	})
	if err := s.store.SetLastSeen(ctx, boardID, b.LastSeenBy); err != nil {
		s.logger.WithError(err).WithField("boardId", boardID).Error("cannot track view for board")
		return nil, err
	}
	s.publish(ctx, actor, boardID, domain.BoardViewed, "")
	return b, nil
}

// Viewers returns the live viewers of a board followed by its view history.
func (s *Service) Viewers(ctx context.Context, actor *domain.Actor, boardID string) (domain.Viewers, error) {
	b, err := s.Get(ctx, actor, boardID)
	if err != nil {
		return domain.Viewers{}, err
	}
	var live []domain.Viewer
	if s.presence != nil {
		live = s.presence.LiveViewers(boardID)
	}
	return domain.MergeViewers(live, b.LastSeenBy), nil
}

// changed notifies room members and appends to the change feed. The write has
// already succeeded, so failures here are logged and not returned.
func (s *Service) changed(ctx context.Context, actor *domain.Actor, boardID, typ string, op domain.OpType) {
	if s.notifier != nil {
		if err := s.notifier.BoardUpdated(ctx, boardID); err != nil {
			s.logger.WithError(err).WithField("boardId", boardID).Warn("board update notification failed")
		}
	}
	s.publish(ctx, actor, boardID, typ, op)
}

func (s *Service) publish(ctx context.Context, actor *domain.Actor, boardID, typ string, op domain.OpType) {
	if s.events == nil {
		return
	}
	ev := domain.BoardEvent{
		ID:        s.applier.ID(),
		BoardID:   boardID,
		Type:      typ,
		Operation: op,
		Timestamp: s.applier.Millis(),
	}
	if actor != nil {
		ev.ActorID = actor.ID
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"boardId": boardID, "type": typ}).Warn("board event publish failed")
	}
}
