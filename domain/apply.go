package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Applier applies operations to board snapshots. NewID and Now are hooks for
// deterministic tests; the zero value uses random UUIDs and the wall clock.
type Applier struct {
	NewID func() string
	Now   func() time.Time
}

var defaultApplier Applier

// Apply applies op to b using random ids and the wall clock.
func Apply(b *Board, op Operation) (*Board, bool) {
	return defaultApplier.Apply(b, op)
}

// Apply returns a new board with op applied and true, or b itself and false
// when op does not resolve against b. The input board is never modified.
func (a Applier) Apply(b *Board, op Operation) (*Board, bool) {
	if b == nil || op == nil {
		return b, false
	}
	next := b.Clone()
	if !a.apply(next, op) {
		return b, false
	}
	return next, true
}

func (a Applier) apply(b *Board, op Operation) bool {
	switch op := op.(type) {
	case ChangeTitle:
		b.Title = op.Title
		return true
	case ChangeDescription:
		b.Description = op.Description
		return true
	case AddGroup:
		return a.addGroup(b, op)
	case RemoveGroup:
		gi := b.FindGroup(op.GroupID)
		if gi < 0 {
			return false
		}
		b.Groups = removeAt(b.Groups, gi)
		return true
	case ChangeGroupTitle:
		gi := b.FindGroup(op.GroupID)
		if gi < 0 {
			return false
		}
		b.Groups[gi].Title = op.Title
		return true
	case SetGroupCollapsed:
		gi := b.FindGroup(op.GroupID)
		if gi < 0 {
			return false
		}
		b.Groups[gi].IsCollapsed = op.IsCollapsed
		return true
	case AddGroupTask:
		return a.addGroupTask(b, op)
	case ChangeTaskTitle:
		return updateTask(b, op.TaskRef, func(t *Task) bool {
			t.Title = op.Title
			return true
		})
	case DeleteTask:
		gi, ti, ok := b.FindTask(op.GroupID, op.TaskID)
		if !ok {
			return false
		}
		b.Groups[gi].Tasks = removeAt(b.Groups[gi].Tasks, ti)
		return true
	case DuplicateTask:
		return a.duplicateTask(b, op)
	case UpdateTaskStatus:
		return updateTask(b, op.TaskRef, func(t *Task) bool {
			t.Status = op.Value
			return true
		})
	case UpdateTaskPriority:
		return updateTask(b, op.TaskRef, func(t *Task) bool {
			t.Priority = op.Value
			return true
		})
	case UpdateTaskLabelStatus:
		return updateTask(b, op.TaskRef, func(t *Task) bool {
			t.LabelStatus = op.Value
			return true
		})
	case UpdateTaskDate:
		return updateTask(b, op.TaskRef, func(t *Task) bool {
			t.DueDate = op.Timestamp
			return true
		})
	case UpdateTaskMembers:
		return updateTask(b, op.TaskRef, func(t *Task) bool {
			return setMember(t, op.User, op.IsDelete)
		})
	case AddTaskComment:
		return updateTask(b, op.TaskRef, func(t *Task) bool {
			c := op.Comment
			if c.ID == "" {
				c.ID = a.newID()
			}
			if c.CreatedAt == 0 {
				c.CreatedAt = a.now().UnixMilli()
			}
			t.Comments = append(t.Comments, c)
			return true
		})
	case DragGroup:
		return dragGroup(b, op.Move)
	case DragTask:
		return dragTask(b, op.Move)
	case DragLabel:
		return dragLabel(b, op.Move)
	case DragStatus:
		return dragStatus(b, op.Move)
	case MoveCard:
		return moveCard(b, op.Move)
	case ReorderStatusColumns:
		return reorderStatusColumns(b, op.Move)
	default:
		panic(fmt.Sprintf("domain: unhandled operation %T", op))
	}
}

func (a Applier) newID() string {
	if a.NewID != nil {
		return a.NewID()
	}
	return uuid.NewString()
}

func (a Applier) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a Applier) addGroup(b *Board, op AddGroup) bool {
	title := op.Title
	if title == "" {
		title = "New Group"
	}
	g := Group{ID: a.newID(), Title: title, Color: op.Color, Tasks: []Task{}}
	b.Groups = insertAt(b.Groups, 0, g)
	return true
}

func (a Applier) addGroupTask(b *Board, op AddGroupTask) bool {
	gi := b.FindGroup(op.GroupID)
	if gi < 0 {
		return false
	}
	task := Task{
		ID:       a.newID(),
		Title:    op.Title,
		Status:   op.Status,
		Members:  []MiniUser{},
		Comments: []Comment{},
	}
	b.Groups[gi].Tasks = append(b.Groups[gi].Tasks, task)
	return true
}

func (a Applier) duplicateTask(b *Board, op DuplicateTask) bool {
	gi, ti, ok := b.FindTask(op.GroupID, op.TaskID)
	if !ok {
		return false
	}
	dup := b.Groups[gi].Tasks[ti].Clone()
	dup.ID = a.newID()
	for i := range dup.Comments {
		dup.Comments[i].ID = a.newID()
	}
	b.Groups[gi].Tasks = insertAt(b.Groups[gi].Tasks, ti+1, dup)
	return true
}

func updateTask(b *Board, ref TaskRef, fn func(*Task) bool) bool {
	gi, ti, ok := b.FindTask(ref.GroupID, ref.TaskID)
	if !ok {
		return false
	}
	return fn(&b.Groups[gi].Tasks[ti])
}

// setMember adds or removes user from the task members. It reports false when
// the member list already has the requested shape.
func setMember(t *Task, user MiniUser, remove bool) bool {
	idx := -1
	for i, m := range t.Members {
		if m.ID == user.ID {
			idx = i
			break
		}
	}
	switch {
	case remove && idx >= 0:
		t.Members = removeAt(t.Members, idx)
		return true
	case !remove && idx < 0 && user.ID != "":
		t.Members = append(t.Members, user)
		return true
	default:
		return false
	}
}

func dragGroup(b *Board, m Move) bool {
	from, to := m.Source.Index, m.Destination.Index
	if !validMove(len(b.Groups), from, to) || b.Groups[from].ID != m.DraggableID || from == to {
		return false
	}
	moveWithin(b.Groups, from, to)
	return true
}

func dragTask(b *Board, m Move) bool {
	src := b.FindGroup(m.Source.DroppableID)
	dst := b.FindGroup(m.Destination.DroppableID)
	if src < 0 || dst < 0 {
		return false
	}
	from, to := m.Source.Index, m.Destination.Index
	srcTasks := b.Groups[src].Tasks
	if from < 0 || from >= len(srcTasks) || srcTasks[from].ID != m.DraggableID {
		return false
	}
	if src == dst {
		if to < 0 || to >= len(srcTasks) || from == to {
			return false
		}
		moveWithin(srcTasks, from, to)
		return true
	}
	if to < 0 || to > len(b.Groups[dst].Tasks) {
		return false
	}
	task := srcTasks[from]
	b.Groups[src].Tasks = removeAt(srcTasks, from)
	b.Groups[dst].Tasks = insertAt(b.Groups[dst].Tasks, to, task)
	return true
}

func dragLabel(b *Board, m Move) bool {
	from, to := m.Source.Index, m.Destination.Index
	if !validMove(len(b.CmpsOrder), from, to) || b.CmpsOrder[from] != m.DraggableID || from == to {
		return false
	}
	moveWithin(b.CmpsOrder, from, to)
	return true
}

func dragStatus(b *Board, m Move) bool {
	from, to := m.Source.Index, m.Destination.Index
	if !validMove(len(b.Statuses), from, to) || b.Statuses[from].ID != m.DraggableID || from == to {
		return false
	}
	moveWithin(b.Statuses, from, to)
	return true
}

// moveCard gives the dragged task the label of the status column it was
// dropped on. Task and group ordering is left untouched.
func moveCard(b *Board, m Move) bool {
	si := findLabel(b.Statuses, m.Destination.DroppableID)
	if si < 0 {
		return false
	}
	gi, ti, ok := b.LocateTask(m.DraggableID)
	if !ok {
		return false
	}
	task := &b.Groups[gi].Tasks[ti]
	if task.Status == b.Statuses[si].Label {
		return false
	}
	task.Status = b.Statuses[si].Label
	return true
}

// reorderStatusColumns handles a card dropped back into its own column by
// moving that column's status definition to the drop index.
func reorderStatusColumns(b *Board, m Move) bool {
	if findLabel(b.Statuses, m.Source.DroppableID) < 0 {
		return false
	}
	from, to := m.Source.Index, m.Destination.Index
	if !validMove(len(b.Statuses), from, to) || from == to {
		return false
	}
	moveWithin(b.Statuses, from, to)
	return true
}
