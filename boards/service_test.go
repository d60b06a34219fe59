package boards

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"board-api/domain"
)

var (
	founder  = &domain.Actor{ID: "u-founder", Fullname: "Fay", Role: domain.RoleFounder, CompanyName: "Acme"}
	employee = &domain.Actor{ID: "u-emp", Fullname: "Eli", Role: domain.RoleEmployee, CompanyName: "Acme"}
	outsider = &domain.Actor{ID: "u-out", Fullname: "Oz", Role: domain.RoleFounder, CompanyName: "Globex"}
)

func testApplier() domain.Applier {
	n := 0
	return domain.Applier{
		NewID: func() string {
			n++
			return fmt.Sprintf("id%d", n)
		},
		Now: func() time.Time { return time.UnixMilli(1700000000000) },
	}
}

func privateBoard() *domain.Board {
	return &domain.Board{
		ID:           "b1",
		Title:        "Payroll",
		CompanyName:  "Acme",
		Visibility:   domain.VisibilityPrivate,
		AllowedUsers: []string{},
		Statuses:     []domain.Label{{ID: "s1", Label: "Working"}, {ID: "s2", Label: "Done"}},
		Groups: []domain.Group{{ID: "g1", Tasks: []domain.Task{
			{ID: "t1", Status: "Working", Comments: []domain.Comment{}},
		}}},
	}
}

func publicBoard() *domain.Board {
	return &domain.Board{ID: "b2", Title: "Launch plan", CompanyName: "Acme", Visibility: domain.VisibilityPublic, AllowedUsers: []string{}}
}

func newTestService(store Store, opts ...Option) *Service {
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithApplier(testApplier())}, opts...)
	return New(store, logger, opts...)
}

func TestGetAppliesAccessPredicate(t *testing.T) {
	svc := newTestService(newFakeStore(privateBoard(), publicBoard()))
	ctx := context.Background()

	if _, err := svc.Get(ctx, employee, "b1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("employee private: expected ErrNotFound, got %v", err)
	}
	if b, err := svc.Get(ctx, founder, "b1"); err != nil || b.ID != "b1" {
		t.Fatalf("founder private: %v %v", b, err)
	}
	if _, err := svc.Get(ctx, outsider, "b2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("outsider: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(ctx, founder, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing: expected ErrNotFound, got %v", err)
	}
}

func TestGetPropagatesStorageErrors(t *testing.T) {
	store := newFakeStore()
	store.fetchErr = errStorage
	logger, hook := test.NewNullLogger()
	svc := New(store, logger)

	if _, err := svc.Get(context.Background(), founder, "b1"); !errors.Is(err, errStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["error"] == nil {
		t.Fatalf("expected storage failure to be logged")
	}
}

func TestQueryFiltersVisibleBoards(t *testing.T) {
	svc := newTestService(newFakeStore(privateBoard(), publicBoard()))
	got, err := svc.Query(context.Background(), domain.BoardFilter{Title: "PLAN", Actor: employee})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b2" {
		t.Fatalf("unexpected boards: %#v", got)
	}
}

func TestCreateFillsDefaults(t *testing.T) {
	store := newFakeStore()
	events := &recordingEvents{}
	svc := newTestService(store, WithEvents(events))

	b, err := svc.Create(context.Background(), employee, &domain.Board{Title: "Sprint", CompanyName: "Other"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.ID == "" || b.Owner == nil || b.Owner.ID != employee.ID || b.CompanyName != "Acme" {
		t.Fatalf("unexpected ownership: %#v", b)
	}
	if b.Visibility != domain.VisibilityPublic || b.AllowedUsers == nil || len(b.Statuses) == 0 || len(b.Groups) != 1 {
		t.Fatalf("defaults not applied: %#v", b)
	}
	if store.get(b.ID) == nil {
		t.Fatalf("board not stored")
	}
	if len(events.events) != 1 || events.events[0].Type != domain.BoardCreated {
		t.Fatalf("unexpected events: %#v", events.events)
	}
}

func TestCreateOwnerIsTheCaller(t *testing.T) {
	svc := newTestService(newFakeStore())
	in := &domain.Board{Title: "Sprint", Owner: &domain.MiniUser{ID: "u-someone-else", Fullname: "Mallory"}}

	b, err := svc.Create(context.Background(), employee, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Owner == nil || b.Owner.ID != employee.ID || b.Owner.Fullname != employee.Fullname {
		t.Fatalf("expected caller as owner, got %#v", b.Owner)
	}

	b, err = svc.Create(context.Background(), nil, in)
	if err != nil {
		t.Fatalf("internal create: %v", err)
	}
	if b.Owner == nil || b.Owner.ID != "u-someone-else" {
		t.Fatalf("internal callers keep the body owner, got %#v", b.Owner)
	}
}

func TestCreateAndUpdateRejectDuplicateIDs(t *testing.T) {
	dupGroups := func() *domain.Board {
		return &domain.Board{Title: "Dup", Groups: []domain.Group{{ID: "g1"}, {ID: "g1"}}}
	}
	dupTasks := func() *domain.Board {
		return &domain.Board{Title: "Dup", Groups: []domain.Group{
			{ID: "g1", Tasks: []domain.Task{{ID: "t1"}}},
			{ID: "g2", Tasks: []domain.Task{{ID: "t1"}}},
		}}
	}
	dupStatuses := func() *domain.Board {
		return &domain.Board{Title: "Dup", Statuses: []domain.Label{{ID: "s1"}, {ID: "s1"}}}
	}
	tests := []struct {
		name  string
		board func() *domain.Board
	}{
		{"groups", dupGroups},
		{"tasks", dupTasks},
		{"statuses", dupStatuses},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(publicBoard())
			svc := newTestService(store)
			var verr *domain.ValidationError

			if _, err := svc.Create(context.Background(), employee, tt.board()); !errors.As(err, &verr) {
				t.Fatalf("create: expected validation error, got %v", err)
			}
			if len(store.boards) != 1 {
				t.Fatalf("create stored an invalid board")
			}
			if _, err := svc.Update(context.Background(), employee, "b2", tt.board()); !errors.As(err, &verr) {
				t.Fatalf("update: expected validation error, got %v", err)
			}
			if got := store.get("b2"); got.Title != "Launch plan" {
				t.Fatalf("update stored an invalid board: %#v", got)
			}
		})
	}
}

func TestApplyOperationPersistsAndNotifies(t *testing.T) {
	store := newFakeStore(privateBoard())
	notifier := &recordingNotifier{}
	events := &recordingEvents{}
	svc := newTestService(store, WithNotifier(notifier), WithEvents(events))

	op := domain.MoveCard{Move: domain.Move{
		DraggableID: "t1",
		Source:      domain.Location{DroppableID: "s1"},
		Destination: &domain.Location{DroppableID: "s2"},
	}}
	b, changed, err := svc.ApplyOperation(context.Background(), founder, "b1", op)
	if err != nil || !changed {
		t.Fatalf("apply: changed=%v err=%v", changed, err)
	}
	if b.Groups[0].Tasks[0].Status != "Done" {
		t.Fatalf("unexpected status: %s", b.Groups[0].Tasks[0].Status)
	}
	if got := store.get("b1").Groups[0].Tasks[0].Status; got != "Done" {
		t.Fatalf("stored status = %s", got)
	}
	if len(notifier.ids) != 1 || notifier.ids[0] != "b1" {
		t.Fatalf("unexpected notifications: %v", notifier.ids)
	}
	if len(events.events) != 1 || events.events[0].Operation != domain.OpDragCard || events.events[0].ActorID != founder.ID {
		t.Fatalf("unexpected events: %#v", events.events)
	}
}

func TestApplyOperationNoOpSkipsWrite(t *testing.T) {
	store := newFakeStore(privateBoard())
	notifier := &recordingNotifier{}
	svc := newTestService(store, WithNotifier(notifier))

	op := domain.DeleteTask{TaskRef: domain.TaskRef{TaskID: "missing", GroupID: "g1"}}
	b, changed, err := svc.ApplyOperation(context.Background(), founder, "b1", op)
	if err != nil || changed || b == nil {
		t.Fatalf("expected unchanged board, got changed=%v err=%v", changed, err)
	}
	if store.replaced != 0 || len(notifier.ids) != 0 {
		t.Fatalf("no-op should not write or notify")
	}
}

func TestApplyOperationDeniedAndFailures(t *testing.T) {
	store := newFakeStore(privateBoard())
	notifier := &recordingNotifier{}
	svc := newTestService(store, WithNotifier(notifier))
	op := domain.ChangeTitle{Title: "x"}

	if _, _, err := svc.ApplyOperation(context.Background(), employee, "b1", op); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	store.writeErr = errStorage
	if _, _, err := svc.ApplyOperation(context.Background(), founder, "b1", op); !errors.Is(err, errStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(notifier.ids) != 0 {
		t.Fatalf("failed writes should not notify")
	}
}

func TestApplyOperationRecordsSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	svc := newTestService(newFakeStore(privateBoard()))
	if _, _, err := svc.ApplyOperation(context.Background(), employee, "b1", domain.ChangeTitle{Title: "x"}); err == nil {
		t.Fatalf("expected access error")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "boards.apply" {
		t.Fatalf("unexpected spans: %#v", spans)
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes {
		attrs[kv.Key] = kv.Value
	}
	if attrs["board.id"].AsString() != "b1" || attrs["board.operation"].AsString() != string(domain.OpChangeTitle) {
		t.Fatalf("unexpected attributes: %v", spans[0].Attributes)
	}
	if spans[0].Status.Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status.Code)
	}
}

func TestNotificationFailureDoesNotFailMutation(t *testing.T) {
	store := newFakeStore(publicBoard())
	logger, hook := test.NewNullLogger()
	svc := New(store, logger, WithNotifier(&recordingNotifier{err: errors.New("redis down")}))

	if _, err := svc.Update(context.Background(), employee, "b2", &domain.Board{Title: "Renamed"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Message != "board update notification failed" {
		t.Fatalf("expected warning to be logged, got %#v", entry)
	}
}

func TestUpdateKeepsIdentity(t *testing.T) {
	store := newFakeStore(publicBoard())
	svc := newTestService(store)

	b, err := svc.Update(context.Background(), employee, "b2", &domain.Board{ID: "other", Title: "Renamed", CompanyName: "Globex"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if b.ID != "b2" || b.CompanyName != "Acme" || b.Visibility != domain.VisibilityPublic || b.Title != "Renamed" {
		t.Fatalf("unexpected board: %#v", b)
	}
	if store.get("other") != nil || store.get("b2").Title != "Renamed" {
		t.Fatalf("unexpected store contents")
	}
}

func TestUpdateKeepsOwner(t *testing.T) {
	cur := publicBoard()
	cur.Owner = &domain.MiniUser{ID: employee.ID, Fullname: employee.Fullname}
	store := newFakeStore(cur)
	svc := newTestService(store)

	b, err := svc.Update(context.Background(), employee, "b2", &domain.Board{Title: "Renamed", Owner: &domain.MiniUser{ID: "u-other"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if b.Owner == nil || b.Owner.ID != employee.ID || store.get("b2").Owner.ID != employee.ID {
		t.Fatalf("owner changed: %#v", b.Owner)
	}
}

func TestRemove(t *testing.T) {
	store := newFakeStore(privateBoard())
	svc := newTestService(store)
	if err := svc.Remove(context.Background(), employee, "b1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Remove(context.Background(), founder, "b1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if store.get("b1") != nil {
		t.Fatalf("board still stored")
	}
}

func TestDuplicate(t *testing.T) {
	store := newFakeStore(privateBoard())
	svc := newTestService(store)
	b, err := svc.Duplicate(context.Background(), founder, "b1")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if b.ID == "b1" || b.Title != "Payroll (copy)" || b.Groups[0].ID == "g1" || b.Groups[0].Tasks[0].ID == "t1" {
		t.Fatalf("ids not regenerated: %#v", b)
	}
	if store.get(b.ID) == nil || store.get("b1").Groups[0].ID != "g1" {
		t.Fatalf("unexpected store contents")
	}
}

func TestMessages(t *testing.T) {
	store := newFakeStore(publicBoard())
	notifier := &recordingNotifier{}
	svc := newTestService(store, WithNotifier(notifier))
	ctx := context.Background()

	if _, err := svc.AddMessage(ctx, employee, "b2", "  "); err == nil {
		t.Fatalf("expected validation error")
	}
	msg, err := svc.AddMessage(ctx, employee, "b2", "hello")
	if err != nil {
		t.Fatalf("add message: %v", err)
	}
	if msg.ID == "" || msg.By == nil || msg.By.ID != employee.ID || msg.CreatedAt == 0 {
		t.Fatalf("unexpected message: %#v", msg)
	}
	if len(store.get("b2").Msgs) != 1 {
		t.Fatalf("message not stored")
	}
	if err := svc.RemoveMessage(ctx, employee, "b2", msg.ID); err != nil {
		t.Fatalf("remove message: %v", err)
	}
	if len(store.get("b2").Msgs) != 0 {
		t.Fatalf("message not removed")
	}
	if len(notifier.ids) != 2 {
		t.Fatalf("expected 2 notifications, got %v", notifier.ids)
	}
}

func TestTrackViewAndViewers(t *testing.T) {
	store := newFakeStore(publicBoard())
	presence := staticPresence{"b2": {{UserID: employee.ID, Fullname: employee.Fullname}}}
	svc := newTestService(store, WithPresence(presence))
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		actor := &domain.Actor{ID: fmt.Sprintf("u%d", i), Role: domain.RoleEmployee, CompanyName: "Acme"}
		if _, err := svc.TrackView(ctx, actor, "b2"); err != nil {
			t.Fatalf("track view %d: %v", i, err)
		}
	}
	b, err := svc.TrackView(ctx, employee, "b2")
	if err != nil {
		t.Fatalf("track view: %v", err)
	}
	if len(b.LastSeenBy) != domain.MaxLastSeen || b.LastSeenBy[0].UserID != employee.ID {
		t.Fatalf("unexpected history: %#v", b.LastSeenBy)
	}
	if stored := store.get("b2").LastSeenBy; len(stored) != domain.MaxLastSeen || stored[1].UserID != "u11" {
		t.Fatalf("history not persisted: %#v", stored)
	}

	viewers, err := svc.Viewers(ctx, founder, "b2")
	if err != nil {
		t.Fatalf("viewers: %v", err)
	}
	if len(viewers.Live) != 1 || len(viewers.LastSeen) != domain.MaxLastSeen-1 {
		t.Fatalf("unexpected viewers: %#v", viewers)
	}
	for _, e := range viewers.LastSeen {
		if e.UserID == employee.ID {
			t.Fatalf("live viewer repeated in history")
		}
	}
}

func TestCanJoin(t *testing.T) {
	svc := newTestService(newFakeStore(privateBoard()))
	ok, err := svc.CanJoin(context.Background(), employee, "b1")
	if err != nil || ok {
		t.Fatalf("employee should not join: %v %v", ok, err)
	}
	ok, err = svc.CanJoin(context.Background(), founder, "b1")
	if err != nil || !ok {
		t.Fatalf("founder should join: %v %v", ok, err)
	}
}
