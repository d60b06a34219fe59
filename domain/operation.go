package domain

import (
	"github.com/bytedance/sonic"
)

// OpType is the wire tag of a board operation.
type OpType string

const (
	OpChangeTitle           OpType = "CHANGE_TITLE"
	OpChangeDescription     OpType = "CHANGE_DESCRIPTION"
	OpAddGroup              OpType = "ADD_GROUP"
	OpRemoveGroup           OpType = "REMOVE_GROUP"
	OpChangeGroupTitle      OpType = "CHANGE_GROUP_TITLE"
	OpSetGroupCollapsed     OpType = "SET_GROUP_COLLAPSED"
	OpAddGroupTask          OpType = "ADD_GROUP_TASK"
	OpChangeTaskTitle       OpType = "CHANGE_TASK_TITLE"
	OpDeleteTask            OpType = "DELETE_TASK"
	OpDuplicateTask         OpType = "DUPLICATE_TASK"
	OpUpdateTaskStatus      OpType = "UPDATE_TASK_STATUS"
	OpUpdateTaskPriority    OpType = "UPDATE_TASK_PRIORITY"
	OpUpdateTaskLabelStatus OpType = "UPDATE_TASK_LABEL_STATUS"
	OpUpdateTaskDate        OpType = "UPDATE_TASK_DATE"
	OpUpdateTaskMembers     OpType = "UPDATE_TASK_MEMBERS"
	OpAddTaskComment        OpType = "ADD_TASK_COMMENT"
	OpDragGroup             OpType = "ON_DRAG_GROUP"
	OpDragTask              OpType = "ON_DRAG_TASK"
	OpDragCard              OpType = "ON_DRAG_CARD"
	OpDragLabel             OpType = "ON_DRAG_LABEL"
	OpDragStatus            OpType = "ON_DRAG_STATUS"
)

// Operation is one mutation of the closed catalog below. The unexported marker
// keeps the set closed to this package so Apply's switch stays exhaustive.
type Operation interface {
	Type() OpType
	operation()
}

// TaskRef addresses a task inside a group.
type TaskRef struct {
	TaskID  string `json:"taskId"`
	GroupID string `json:"groupId"`
}

// Location is one end of a drag: the container id and the position inside it.
type Location struct {
	DroppableID string `json:"droppableId"`
	Index       int    `json:"index"`
}

// Move describes a finished drag, in the shape the board UI's drag-and-drop library reports it.
type Move struct {
	DraggableID string    `json:"draggableId"`
	Source      Location  `json:"source"`
	Destination *Location `json:"destination"`
}

// SameContainer reports whether the item was dropped back into its own list.
func (m Move) SameContainer() bool {
	return m.Destination != nil && m.Destination.DroppableID == m.Source.DroppableID
}

type ChangeTitle struct{ Title string }

type ChangeDescription struct{ Description string }

type AddGroup struct {
	Title string `json:"title"`
	Color string `json:"color"`
}

type RemoveGroup struct {
	GroupID string `json:"groupId"`
}

type ChangeGroupTitle struct {
	GroupID string `json:"groupId"`
	Title   string `json:"title"`
}

type SetGroupCollapsed struct {
	GroupID     string `json:"groupId"`
	IsCollapsed bool   `json:"isCollapsed"`
}

type AddGroupTask struct {
	GroupID string `json:"groupId"`
	Title   string `json:"title"`
	Status  string `json:"status"`
}

type ChangeTaskTitle struct {
	TaskRef
	Title string `json:"title"`
}

type DeleteTask struct{ TaskRef }

type DuplicateTask struct{ TaskRef }

type UpdateTaskStatus struct {
	TaskRef
	Value string `json:"value"`
}

type UpdateTaskPriority struct {
	TaskRef
	Value string `json:"value"`
}

type UpdateTaskLabelStatus struct {
	TaskRef
	Value string `json:"value"`
}

type UpdateTaskDate struct {
	TaskRef
	Timestamp int64 `json:"timestamp"`
}

type UpdateTaskMembers struct {
	TaskRef
	User     MiniUser `json:"user"`
	IsDelete bool     `json:"isDelete"`
}

type AddTaskComment struct {
	TaskRef
	Comment Comment `json:"comment"`
}

// DragGroup reorders board.groups.
type DragGroup struct{ Move }

// DragTask reorders tasks inside a group or moves one to another group.
type DragTask struct{ Move }

// DragLabel reorders board.cmpsOrder.
type DragLabel struct{ Move }

// DragStatus reorders board.statuses from the status settings list.
type DragStatus struct{ Move }

// MoveCard is a kanban card dropped on a different status column: the task
// takes the destination status label and no list is reordered.
type MoveCard struct{ Move }

// ReorderStatusColumns is a kanban drag that stayed inside one column. It
// reorders the status definitions themselves, not the tasks.
type ReorderStatusColumns struct{ Move }

func (ChangeTitle) Type() OpType           { return OpChangeTitle }
func (ChangeDescription) Type() OpType     { return OpChangeDescription }
func (AddGroup) Type() OpType              { return OpAddGroup }
func (RemoveGroup) Type() OpType           { return OpRemoveGroup }
func (ChangeGroupTitle) Type() OpType      { return OpChangeGroupTitle }
func (SetGroupCollapsed) Type() OpType     { return OpSetGroupCollapsed }
func (AddGroupTask) Type() OpType          { return OpAddGroupTask }
func (ChangeTaskTitle) Type() OpType       { return OpChangeTaskTitle }
func (DeleteTask) Type() OpType            { return OpDeleteTask }
func (DuplicateTask) Type() OpType         { return OpDuplicateTask }
func (UpdateTaskStatus) Type() OpType      { return OpUpdateTaskStatus }
func (UpdateTaskPriority) Type() OpType    { return OpUpdateTaskPriority }
func (UpdateTaskLabelStatus) Type() OpType { return OpUpdateTaskLabelStatus }
func (UpdateTaskDate) Type() OpType        { return OpUpdateTaskDate }
func (UpdateTaskMembers) Type() OpType     { return OpUpdateTaskMembers }
func (AddTaskComment) Type() OpType        { return OpAddTaskComment }
func (DragGroup) Type() OpType             { return OpDragGroup }
func (DragTask) Type() OpType              { return OpDragTask }
func (DragLabel) Type() OpType             { return OpDragLabel }
func (DragStatus) Type() OpType            { return OpDragStatus }
func (MoveCard) Type() OpType              { return OpDragCard }
func (ReorderStatusColumns) Type() OpType  { return OpDragCard }

func (ChangeTitle) operation()           {}
func (ChangeDescription) operation()     {}
func (AddGroup) operation()              {}
func (RemoveGroup) operation()           {}
func (ChangeGroupTitle) operation()      {}
func (SetGroupCollapsed) operation()     {}
func (AddGroupTask) operation()          {}
func (ChangeTaskTitle) operation()       {}
func (DeleteTask) operation()            {}
func (DuplicateTask) operation()         {}
func (UpdateTaskStatus) operation()      {}
func (UpdateTaskPriority) operation()    {}
func (UpdateTaskLabelStatus) operation() {}
func (UpdateTaskDate) operation()        {}
func (UpdateTaskMembers) operation()     {}
func (AddTaskComment) operation()        {}
func (DragGroup) operation()             {}
func (DragTask) operation()              {}
func (DragLabel) operation()             {}
func (DragStatus) operation()            {}
func (MoveCard) operation()              {}
func (ReorderStatusColumns) operation()  {}

// OperationRequest is the wire envelope of an operation.
type OperationRequest struct {
	Type    OpType                 `json:"type"`
	Payload sonic.NoCopyRawMessage `json:"payload"`
}

// DecodeOperation turns a wire envelope into its typed operation. The
// ON_DRAG_CARD tag yields MoveCard or ReorderStatusColumns depending on
// whether the drag crossed containers.
func DecodeOperation(req OperationRequest) (Operation, error) {
	if len(req.Payload) == 0 {
		return nil, NewValidationError("payload", "required")
	}
	switch req.Type {
	case OpChangeTitle:
		var title string
		if err := decodePayload(req.Payload, &title); err != nil {
			return nil, err
		}
		return ChangeTitle{Title: title}, nil
	case OpChangeDescription:
		var desc string
		if err := decodePayload(req.Payload, &desc); err != nil {
			return nil, err
		}
		return ChangeDescription{Description: desc}, nil
	case OpAddGroup:
		return decodeAs[AddGroup](req.Payload)
	case OpRemoveGroup:
		return decodeAs[RemoveGroup](req.Payload)
	case OpChangeGroupTitle:
		return decodeAs[ChangeGroupTitle](req.Payload)
	case OpSetGroupCollapsed:
		return decodeAs[SetGroupCollapsed](req.Payload)
	case OpAddGroupTask:
		return decodeAs[AddGroupTask](req.Payload)
	case OpChangeTaskTitle:
		return decodeAs[ChangeTaskTitle](req.Payload)
	case OpDeleteTask:
		return decodeAs[DeleteTask](req.Payload)
	case OpDuplicateTask:
		return decodeAs[DuplicateTask](req.Payload)
	case OpUpdateTaskStatus:
		return decodeAs[UpdateTaskStatus](req.Payload)
	case OpUpdateTaskPriority:
		return decodeAs[UpdateTaskPriority](req.Payload)
	case OpUpdateTaskLabelStatus:
		return decodeAs[UpdateTaskLabelStatus](req.Payload)
	case OpUpdateTaskDate:
		return decodeAs[UpdateTaskDate](req.Payload)
	case OpUpdateTaskMembers:
		return decodeAs[UpdateTaskMembers](req.Payload)
	case OpAddTaskComment:
		return decodeAs[AddTaskComment](req.Payload)
	case OpDragGroup:
		m, err := decodeMove(req.Payload)
		return DragGroup{m}, err
	case OpDragTask:
		m, err := decodeMove(req.Payload)
		return DragTask{m}, err
	case OpDragLabel:
		m, err := decodeMove(req.Payload)
		return DragLabel{m}, err
	case OpDragStatus:
		m, err := decodeMove(req.Payload)
		return DragStatus{m}, err
	case OpDragCard:
		m, err := decodeMove(req.Payload)
		if err != nil {
			return nil, err
		}
		if m.SameContainer() {
			return ReorderStatusColumns{m}, nil
		}
		return MoveCard{m}, nil
	default:
		return nil, ErrUnknownOperation
	}
}

func decodeAs[T Operation](raw []byte) (Operation, error) {
	var op T
	if err := decodePayload(raw, &op); err != nil {
		return nil, err
	}
	return op, nil
}

func decodeMove(raw []byte) (Move, error) {
	var m Move
	if err := decodePayload(raw, &m); err != nil {
		return Move{}, err
	}
	if m.Destination == nil {
		return Move{}, NewValidationError("destination", "required")
	}
	return m, nil
}

func decodePayload(raw []byte, v any) error {
	if err := sonic.Unmarshal(raw, v); err != nil {
		return NewValidationError("payload", err.Error())
	}
	return nil
}
