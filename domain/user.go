package domain

import "strings"

// User is an account as stored by the user store.
type User struct {
	ID           string `json:"_id" bson:"_id"`
	Email        string `json:"email" bson:"email"`
	Fullname     string `json:"fullname" bson:"fullname"`
	ImgURL       string `json:"imgUrl,omitempty" bson:"imgUrl,omitempty"`
	Role         Role   `json:"role" bson:"role"`
	CompanyName  string `json:"companyName,omitempty" bson:"companyName,omitempty"`
	Approved     bool   `json:"approved" bson:"approved"`
	ApprovedBy   string `json:"approvedBy,omitempty" bson:"approvedBy,omitempty"`
	PasswordHash string `json:"-" bson:"passwordHash"`
	CreatedAt    int64  `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
}

// Actor converts the account into the access-control view of it.
func (u *User) Actor() *Actor {
	return &Actor{
		ID:          u.ID,
		Fullname:    u.Fullname,
		ImgURL:      u.ImgURL,
		Role:        u.Role,
		CompanyName: u.CompanyName,
		Approved:    u.Approved,
	}
}

// UserFilter selects the accounts of one company. Txt matches email or
// fullname, case-insensitively.
type UserFilter struct {
	CompanyName string
	Txt         string
}

func (f UserFilter) Matches(u *User) bool {
	if u == nil || u.CompanyName != f.CompanyName {
		return false
	}
	if f.Txt == "" {
		return true
	}
	txt := strings.ToLower(f.Txt)
	return strings.Contains(strings.ToLower(u.Email), txt) || strings.Contains(strings.ToLower(u.Fullname), txt)
}
