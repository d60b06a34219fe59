// Package accounts provides email/password accounts and their management
// within a company.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"board-api/domain"
)

var (
	ErrMissingFields      = errors.New("missing required signup information")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidRole        = errors.New("invalid role")
	ErrUserExists         = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotApproved        = errors.New("user not approved")
	ErrForbidden          = errors.New("only founders can approve users of their company")
	ErrNotAllowed         = errors.New("not allowed to change this user")
)

// UserStore is the account persistence used by the service.
type UserStore interface {
	FetchUser(ctx context.Context, id string) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	InsertUser(ctx context.Context, u *domain.User) error
	ReplaceUser(ctx context.Context, u *domain.User) error
	FetchUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type Service struct {
	store  UserStore
	cost   int
	logger *log.Logger
	now    func() time.Time
}

func NewService(store UserStore, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{store: store, cost: bcrypt.DefaultCost, logger: logger, now: time.Now}
}

// SignUpRequest contains sign-up parameters.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Fullname    string `json:"fullname"`
	ImgURL      string `json:"imgUrl"`
	CompanyName string `json:"companyName"`
	Role        string `json:"role"`
}

// LoginRequest contains login parameters.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// SignUp creates an account. New accounts default to the Employee role and
// only Founders are approved right away.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*domain.User, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.Fullname) == "" {
		return nil, ErrMissingFields
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	role := domain.Role(req.Role)
	if role == "" {
		role = domain.RoleEmployee
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		s.logger.WithError(err).Error("cannot look up user")
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Fullname:     strings.TrimSpace(req.Fullname),
		ImgURL:       req.ImgURL,
		Role:         role,
		CompanyName:  strings.TrimSpace(req.CompanyName),
		Approved:     role == domain.RoleFounder,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UnixMilli(),
	}
	if err := s.store.InsertUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, ErrUserExists
		}
		s.logger.WithError(err).Error("cannot insert user")
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.WithFields(log.Fields{"userId": u.ID, "role": u.Role, "companyName": u.CompanyName}).Info("user signed up")
	return u, nil
}

// Login checks the credentials and returns the account. Accounts other than
// Founders must have been approved.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*domain.User, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		s.logger.WithError(err).Error("cannot look up user")
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.Role != domain.RoleFounder && !u.Approved {
		return nil, ErrNotApproved
	}
	return u, nil
}

// Approve marks userID as approved. The approver must hold an elevated role
// in the same company.
func (s *Service) Approve(ctx context.Context, approver *domain.Actor, userID string) (*domain.User, error) {
	if approver == nil || !approver.Role.Elevated() {
		return nil, ErrForbidden
	}
	u, err := s.store.FetchUser(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("userId", userID).Error("cannot approve user")
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrNotFound
	}
	if approver.CompanyName != "" && u.CompanyName != approver.CompanyName {
		return nil, domain.ErrNotFound
	}
	if u.Approved {
		return u, nil
	}
	u.Approved = true
	u.ApprovedBy = approver.ID
	if err := s.store.ReplaceUser(ctx, u); err != nil {
		s.logger.WithError(err).WithField("userId", userID).Error("cannot approve user")
		return nil, err
	}
	return u, nil
}

// ProfileUpdate carries the user fields a profile edit may change. Nil
// fields are left as they are.
type ProfileUpdate struct {
	Fullname *string `json:"fullname"`
	ImgURL   *string `json:"imgUrl"`
}

// Query lists the accounts of the actor's company, optionally narrowed by txt.
func (s *Service) Query(ctx context.Context, actor *domain.Actor, txt string) ([]*domain.User, error) {
	if actor == nil {
		return nil, ErrNotAllowed
	}
	users, err := s.store.FetchUsers(ctx, domain.UserFilter{CompanyName: actor.CompanyName, Txt: strings.TrimSpace(txt)})
	if err != nil {
		s.logger.WithError(err).Error("cannot query users")
		return nil, err
	}
	return users, nil
}

// Get returns a user of the actor's company. Users of other companies are
// reported as missing.
func (s *Service) Get(ctx context.Context, actor *domain.Actor, id string) (*domain.User, error) {
	u, err := s.store.FetchUser(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("userId", id).Error("cannot fetch user")
		return nil, err
	}
	if u == nil || (actor != nil && u.CompanyName != actor.CompanyName) {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

// Update edits the profile of id. Users edit themselves; Founders and
// Co-Founders may edit anyone in their company.
func (s *Service) Update(ctx context.Context, actor *domain.Actor, id string, in ProfileUpdate) (*domain.User, error) {
	u, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor == nil || (actor.ID != u.ID && !actor.Role.Elevated()) {
		return nil, ErrNotAllowed
	}
	if in.Fullname != nil {
		name := strings.TrimSpace(*in.Fullname)
		if name == "" {
			return nil, domain.NewValidationError("fullname", "must not be empty")
		}
		u.Fullname = name
	}
	if in.ImgURL != nil {
		u.ImgURL = strings.TrimSpace(*in.ImgURL)
	}
	if err := s.store.ReplaceUser(ctx, u); err != nil {
		s.logger.WithError(err).WithField("userId", id).Error("cannot update user")
		return nil, err
	}
	return u, nil
}

// Remove deletes a user of the actor's company. Only Founders and
// Co-Founders remove accounts, and never their own.
func (s *Service) Remove(ctx context.Context, actor *domain.Actor, id string) error {
	if actor == nil || !actor.Role.Elevated() || actor.ID == id {
		return ErrNotAllowed
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		s.logger.WithError(err).WithField("userId", id).Error("cannot remove user")
		return err
	}
	s.logger.WithFields(log.Fields{"userId": id, "removedBy": actor.ID}).Info("user removed")
	return nil
}
