package domain

type Role string

const (
	RoleFounder   Role = "Founder"
	RoleCoFounder Role = "Co-Founder"
	RoleEmployee  Role = "Employee"
)

// Elevated reports whether the role sees every board of its company.
func (r Role) Elevated() bool {
	return r == RoleFounder || r == RoleCoFounder
}

func (r Role) Valid() bool {
	switch r {
	case RoleFounder, RoleCoFounder, RoleEmployee:
		return true
	}
	return false
}

// Actor is the authenticated caller as seen by access control.
type Actor struct {
	ID          string
	Fullname    string
	ImgURL      string
	Role        Role
	CompanyName string
	Approved    bool
}

// MiniUser returns the denormalized snapshot stored on boards and comments.
func (a *Actor) MiniUser() *MiniUser {
	if a == nil {
		return nil
	}
	return &MiniUser{ID: a.ID, Fullname: a.Fullname, ImgURL: a.ImgURL}
}

// CanView reports whether actor may read board. A nil actor is internal
// tooling and sees everything, as does an actor without a company.
func CanView(actor *Actor, b *Board) bool {
	if b == nil {
		return false
	}
	if actor == nil {
		return true
	}
	if actor.CompanyName != "" && b.CompanyName != actor.CompanyName {
		return false
	}
	if actor.Role.Elevated() {
		return true
	}
	return b.IsPublic() || b.IsAllowed(actor.ID)
}

// BoardFilter is a board list query.
type BoardFilter struct {
	Title string
	Actor *Actor
}

// CompanyName is the company the query is scoped to, or "" for all companies.
func (f BoardFilter) CompanyName() string {
	if f.Actor == nil {
		return ""
	}
	return f.Actor.CompanyName
}

// Match applies the access predicate and the title filter.
func (f BoardFilter) Match(b *Board) bool {
	return CanView(f.Actor, b) && b.MatchesTitle(f.Title)
}

// FilterBoards keeps the boards matching f, preserving order.
func FilterBoards(boards []*Board, f BoardFilter) []*Board {
	out := make([]*Board, 0, len(boards))
	for _, b := range boards {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	return out
}
