package domain

// Column kinds a board can enable in cmpsOrder.
const (
	CmpStatus      = "status-picker"
	CmpMembers     = "member-picker"
	CmpDate        = "date-picker"
	CmpPriority    = "priority-picker"
	CmpLabelStatus = "label-status-picker"
	CmpNumber      = "number-picker"
)

func defaultStatuses() []Label {
	return []Label{
		{ID: "s101", Label: "Working on it", BgColor: "#fdab3d"},
		{ID: "s102", Label: "Stuck", BgColor: "#e2445c"},
		{ID: "s103", Label: "Done", BgColor: "#00c875"},
		{ID: "s104", Label: "", BgColor: "#c4c4c4"},
	}
}

func defaultPriorities() []Label {
	return []Label{
		{ID: "p101", Label: "Critical", BgColor: "#333333"},
		{ID: "p102", Label: "High", BgColor: "#401694"},
		{ID: "p103", Label: "Medium", BgColor: "#5559df"},
		{ID: "p104", Label: "Low", BgColor: "#579bfc"},
		{ID: "p105", Label: "", BgColor: "#c4c4c4"},
	}
}

func defaultLabelStatuses() []Label {
	return []Label{
		{ID: "l101", Label: "Research", BgColor: "#037f4c"},
		{ID: "l102", Label: "Design", BgColor: "#9d50dd"},
		{ID: "l103", Label: "Development", BgColor: "#007eb5"},
		{ID: "l104", Label: "", BgColor: "#c4c4c4"},
	}
}

func defaultCmpsOrder() []string {
	return []string{CmpStatus, CmpMembers, CmpDate, CmpPriority}
}

// WithDefaults fills the fields a freshly created board needs: visibility,
// allowedUsers, the definition lists, the column order and one empty group.
// Fields already present are kept.
func (a Applier) WithDefaults(b *Board) *Board {
	out := b.Clone()
	if out.Title == "" {
		out.Title = "New Board"
	}
	if out.Visibility == "" {
		out.Visibility = VisibilityPublic
	}
	if out.AllowedUsers == nil {
		out.AllowedUsers = []string{}
	}
	if len(out.Statuses) == 0 {
		out.Statuses = defaultStatuses()
	}
	if len(out.Priorities) == 0 {
		out.Priorities = defaultPriorities()
	}
	if len(out.LabelStatuses) == 0 {
		out.LabelStatuses = defaultLabelStatuses()
	}
	if len(out.CmpsOrder) == 0 {
		out.CmpsOrder = defaultCmpsOrder()
	}
	if out.Groups == nil {
		out.Groups = []Group{{ID: a.newID(), Title: "Group Title", Color: "#579bfc", Tasks: []Task{}}}
	}
	if out.CreatedAt == 0 {
		out.CreatedAt = a.now().UnixMilli()
	}
	return out
}

// Duplicate copies b under a new id, regenerating every group, task and
// comment id. History, chat and the id itself are not copied.
func (a Applier) Duplicate(b *Board) *Board {
	out := b.Clone()
	out.ID = ""
	out.Title = b.Title + " (copy)"
	out.LastSeenBy = nil
	out.Msgs = nil
	out.CreatedAt = a.now().UnixMilli()
	for gi := range out.Groups {
		g := &out.Groups[gi]
		g.ID = a.newID()
		for ti := range g.Tasks {
			t := &g.Tasks[ti]
			t.ID = a.newID()
			for ci := range t.Comments {
				t.Comments[ci].ID = a.newID()
			}
		}
	}
	return out
}

// ID returns a fresh document id.
func (a Applier) ID() string {
	return a.newID()
}

// Millis returns the current time in Unix milliseconds.
func (a Applier) Millis() int64 {
	return a.now().UnixMilli()
}
