package domain

import (
	"fmt"
	"strings"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// MiniUser is the denormalized user snapshot embedded in boards, tasks and comments.
type MiniUser struct {
	ID       string `json:"_id" bson:"_id"`
	Fullname string `json:"fullname" bson:"fullname"`
	ImgURL   string `json:"imgUrl,omitempty" bson:"imgUrl,omitempty"`
}

// Label is one entry of a board definition list (statuses, priorities, label statuses).
type Label struct {
	ID      string `json:"id" bson:"id"`
	Label   string `json:"label" bson:"label"`
	BgColor string `json:"bgColor" bson:"bgColor"`
}

// Comment is a task update written by a board member.
type Comment struct {
	ID        string    `json:"id" bson:"id"`
	Txt       string    `json:"txt" bson:"txt"`
	ImgURL    string    `json:"imgUrl,omitempty" bson:"imgUrl,omitempty"`
	ByMember  *MiniUser `json:"byMember,omitempty" bson:"byMember,omitempty"`
	CreatedAt int64     `json:"createdAt" bson:"createdAt"`
}

type Task struct {
	ID          string     `json:"id" bson:"id"`
	Title       string     `json:"title" bson:"title"`
	Status      string     `json:"status" bson:"status"`
	Priority    string     `json:"priority" bson:"priority"`
	LabelStatus string     `json:"labelStatus" bson:"labelStatus"`
	DueDate     int64      `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	Number      *float64   `json:"number,omitempty" bson:"number,omitempty"`
	Members     []MiniUser `json:"members" bson:"members"`
	Comments    []Comment  `json:"comments" bson:"comments"`
}

type Group struct {
	ID          string `json:"id" bson:"id"`
	Title       string `json:"title" bson:"title"`
	Color       string `json:"color,omitempty" bson:"color,omitempty"`
	IsCollapsed bool   `json:"isCollapsed" bson:"isCollapsed"`
	Tasks       []Task `json:"tasks" bson:"tasks"`
}

// Message is a board-level chat message.
type Message struct {
	ID        string    `json:"id" bson:"id"`
	Txt       string    `json:"txt" bson:"txt"`
	By        *MiniUser `json:"by,omitempty" bson:"by,omitempty"`
	CreatedAt int64     `json:"createdAt" bson:"createdAt"`
}

// Board is the top-level document. Groups and tasks are embedded, so removing a
// board removes everything it holds.
type Board struct {
	ID            string          `json:"_id" bson:"_id"`
	Title         string          `json:"title" bson:"title"`
	Description   string          `json:"description,omitempty" bson:"description,omitempty"`
	Owner         *MiniUser       `json:"owner,omitempty" bson:"owner,omitempty"`
	CompanyName   string          `json:"companyName,omitempty" bson:"companyName,omitempty"`
	Visibility    string          `json:"visibility,omitempty" bson:"visibility,omitempty"`
	AllowedUsers  []string        `json:"allowedUsers" bson:"allowedUsers"`
	Statuses      []Label         `json:"statuses" bson:"statuses"`
	Priorities    []Label         `json:"priorities" bson:"priorities"`
	LabelStatuses []Label         `json:"labelStatuses" bson:"labelStatuses"`
	CmpsOrder     []string        `json:"cmpsOrder" bson:"cmpsOrder"`
	Groups        []Group         `json:"groups" bson:"groups"`
	LastSeenBy    []LastSeenEntry `json:"lastSeenBy,omitempty" bson:"lastSeenBy,omitempty"`
	Msgs          []Message       `json:"msgs,omitempty" bson:"msgs,omitempty"`
	CreatedAt     int64           `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
}

// IsPublic reports whether the board is visible to the whole company. Boards
// persisted before visibility existed have an empty value and count as public.
func (b *Board) IsPublic() bool {
	return b.Visibility == "" || b.Visibility == VisibilityPublic
}

func (b *Board) IsAllowed(userID string) bool {
	for _, id := range b.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// FindGroup returns the index of the group with the given id, or -1.
func (b *Board) FindGroup(groupID string) int {
	for i := range b.Groups {
		if b.Groups[i].ID == groupID {
			return i
		}
	}
	return -1
}

// FindTask locates a task inside the named group.
func (b *Board) FindTask(groupID, taskID string) (gi, ti int, ok bool) {
	gi = b.FindGroup(groupID)
	if gi < 0 {
		return -1, -1, false
	}
	for i := range b.Groups[gi].Tasks {
		if b.Groups[gi].Tasks[i].ID == taskID {
			return gi, i, true
		}
	}
	return -1, -1, false
}

// LocateTask searches every group for the task.
func (b *Board) LocateTask(taskID string) (gi, ti int, ok bool) {
	for g := range b.Groups {
		for t := range b.Groups[g].Tasks {
			if b.Groups[g].Tasks[t].ID == taskID {
				return g, t, true
			}
		}
	}
	return -1, -1, false
}

// Validate rejects boards whose group, task or label ids repeat. Lookups by
// id resolve to the first match, so a repeated id would hide the rest.
// Empty ids are not checked.
func (b *Board) Validate() error {
	groups := make(map[string]struct{}, len(b.Groups))
	tasks := make(map[string]struct{})
	for _, g := range b.Groups {
		if !unique(groups, g.ID) {
			return NewValidationError("groups", fmt.Sprintf("duplicate group id %q", g.ID))
		}
		for _, t := range g.Tasks {
			if !unique(tasks, t.ID) {
				return NewValidationError("tasks", fmt.Sprintf("duplicate task id %q", t.ID))
			}
		}
	}
	lists := []struct {
		field  string
		labels []Label
	}{
		{"statuses", b.Statuses},
		{"priorities", b.Priorities},
		{"labelStatuses", b.LabelStatuses},
	}
	for _, l := range lists {
		seen := make(map[string]struct{}, len(l.labels))
		for _, label := range l.labels {
			if !unique(seen, label.ID) {
				return NewValidationError(l.field, fmt.Sprintf("duplicate id %q", label.ID))
			}
		}
	}
	return nil
}

func unique(seen map[string]struct{}, id string) bool {
	if id == "" {
		return true
	}
	if _, dup := seen[id]; dup {
		return false
	}
	seen[id] = struct{}{}
	return true
}

func findLabel(labels []Label, id string) int {
	for i := range labels {
		if labels[i].ID == id {
			return i
		}
	}
	return -1
}

// MatchesTitle does a case-insensitive substring match; an empty filter matches everything.
func (b *Board) MatchesTitle(filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(b.Title), strings.ToLower(filter))
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := *b
	if b.Owner != nil {
		owner := *b.Owner
		out.Owner = &owner
	}
	out.AllowedUsers = cloneSlice(b.AllowedUsers)
	out.Statuses = cloneSlice(b.Statuses)
	out.Priorities = cloneSlice(b.Priorities)
	out.LabelStatuses = cloneSlice(b.LabelStatuses)
	out.CmpsOrder = cloneSlice(b.CmpsOrder)
	out.LastSeenBy = cloneSlice(b.LastSeenBy)
	if b.Msgs != nil {
		out.Msgs = make([]Message, len(b.Msgs))
		for i, m := range b.Msgs {
			out.Msgs[i] = m.clone()
		}
	}
	if b.Groups != nil {
		out.Groups = make([]Group, len(b.Groups))
		for i := range b.Groups {
			out.Groups[i] = b.Groups[i].Clone()
		}
	}
	return &out
}

func (g Group) Clone() Group {
	out := g
	if g.Tasks != nil {
		out.Tasks = make([]Task, len(g.Tasks))
		for i := range g.Tasks {
			out.Tasks[i] = g.Tasks[i].Clone()
		}
	}
	return out
}

func (t Task) Clone() Task {
	out := t
	if t.Number != nil {
		n := *t.Number
		out.Number = &n
	}
	out.Members = cloneSlice(t.Members)
	if t.Comments != nil {
		out.Comments = make([]Comment, len(t.Comments))
		for i, c := range t.Comments {
			out.Comments[i] = c.clone()
		}
	}
	return out
}

func (c Comment) clone() Comment {
	if c.ByMember != nil {
		by := *c.ByMember
		c.ByMember = &by
	}
	return c
}

func (m Message) clone() Message {
	if m.By != nil {
		by := *m.By
		m.By = &by
	}
	return m
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
