package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"board-api/domain"
)

const (
	boardPartition = "board"
	userPartition  = "user"
)

// Tables stores boards and users in Azure Table Storage. Each board is one
// entity: the document lives in the Data column and the columns used for
// filtering are duplicated next to it.
type Tables struct {
	boards *aztables.Client
	users  *aztables.Client
}

// NewTables creates a Tables store from the given connection string.
func NewTables(connStr, boardsTable, usersTable string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Tables{boards: svc.NewClient(boardsTable), users: svc.NewClient(usersTable)}, nil
}

type boardEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	CompanyName string `json:"CompanyName"`
	Visibility  string `json:"Visibility"`
	Data        string `json:"Data"`
}

type userEntity struct {
	aztables.Entity
	Email       string `json:"Email"`
	CompanyName string `json:"CompanyName"`
	Data        string `json:"Data"`
}

func encodeBoardEntity(b *domain.Board) ([]byte, error) {
	data, err := sonic.Marshal(b)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(boardEntity{
		Entity:      aztables.Entity{PartitionKey: boardPartition, RowKey: b.ID},
		Title:       b.Title,
		CompanyName: b.CompanyName,
		Visibility:  b.Visibility,
		Data:        string(data),
	})
}

func decodeBoardEntity(raw []byte) (*domain.Board, error) {
	var ent boardEntity
	if err := sonic.Unmarshal(raw, &ent); err != nil {
		return nil, err
	}
	var b domain.Board
	if err := sonic.UnmarshalString(ent.Data, &b); err != nil {
		return nil, fmt.Errorf("board %s: %w", ent.RowKey, err)
	}
	b.ID = ent.RowKey
	return &b, nil
}

func encodeUserEntity(u *domain.User) ([]byte, error) {
	// PasswordHash is hidden from JSON responses, so it is stored next to the document.
	doc := struct {
		*domain.User
		PasswordHash string `json:"passwordHash"`
	}{u, u.PasswordHash}
	data, err := sonic.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(userEntity{
		Entity:      aztables.Entity{PartitionKey: userPartition, RowKey: u.ID},
		Email:       u.Email,
		CompanyName: u.CompanyName,
		Data:        string(data),
	})
}

func decodeUserEntity(raw []byte) (*domain.User, error) {
	var ent userEntity
	if err := sonic.Unmarshal(raw, &ent); err != nil {
		return nil, err
	}
	var doc struct {
		domain.User
		PasswordHash string `json:"passwordHash"`
	}
	if err := sonic.UnmarshalString(ent.Data, &doc); err != nil {
		return nil, fmt.Errorf("user %s: %w", ent.RowKey, err)
	}
	u := doc.User
	u.ID = ent.RowKey
	u.PasswordHash = doc.PasswordHash
	return &u, nil
}

// odataString quotes s as an OData string literal.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// FetchBoards lists boards. The company part of the filter is evaluated by
// the table service; callers apply the rest of the access predicate.
func (s *Tables) FetchBoards(ctx context.Context, f domain.BoardFilter) ([]*domain.Board, error) {
	filter := "PartitionKey eq " + odataString(boardPartition)
	if company := f.CompanyName(); company != "" {
		filter += " and CompanyName eq " + odataString(company)
	}
	pager := s.boards.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	boards := []*domain.Board{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			b, err := decodeBoardEntity(e)
			if err != nil {
				return nil, err
			}
			boards = append(boards, b)
		}
	}
	return boards, nil
}

// FetchBoard returns the board with the given id, or nil if it does not exist.
func (s *Tables) FetchBoard(ctx context.Context, id string) (*domain.Board, error) {
	ent, err := s.boards.GetEntity(ctx, boardPartition, id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeBoardEntity(ent.Value)
}

func (s *Tables) InsertBoard(ctx context.Context, b *domain.Board) error {
	payload, err := encodeBoardEntity(b)
	if err != nil {
		return err
	}
	_, err = s.boards.AddEntity(ctx, payload, nil)
	return err
}

// ReplaceBoard overwrites the whole document, messages and view history
// included. Concurrent writers follow last write wins.
func (s *Tables) ReplaceBoard(ctx context.Context, b *domain.Board) error {
	payload, err := encodeBoardEntity(b)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.boards.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if isStatus(err, http.StatusNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (s *Tables) DeleteBoard(ctx context.Context, id string) error {
	_, err := s.boards.DeleteEntity(ctx, boardPartition, id, nil)
	if isStatus(err, http.StatusNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// modifyBoard runs a read-modify-write cycle on one board. The write is
// conditional on the ETag that was read, so a concurrent writer makes it fail
// with domain.ErrConflict instead of being overwritten.
func (s *Tables) modifyBoard(ctx context.Context, id string, fn func(*domain.Board)) error {
	ent, err := s.boards.GetEntity(ctx, boardPartition, id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	b, err := decodeBoardEntity(ent.Value)
	if err != nil {
		return err
	}
	fn(b)
	payload, err := encodeBoardEntity(b)
	if err != nil {
		return err
	}
	et := ent.ETag
	_, err = s.boards.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if isStatus(err, http.StatusPreconditionFailed) {
		return domain.ErrConflict
	}
	return err
}

func (s *Tables) PushMessage(ctx context.Context, boardID string, msg domain.Message) error {
	return s.modifyBoard(ctx, boardID, func(b *domain.Board) {
		b.Msgs = append(b.Msgs, msg)
	})
}

func (s *Tables) PullMessage(ctx context.Context, boardID, msgID string) error {
	return s.modifyBoard(ctx, boardID, func(b *domain.Board) {
		b.Msgs = pullMessage(b.Msgs, msgID)
	})
}

func (s *Tables) SetLastSeen(ctx context.Context, boardID string, entries []domain.LastSeenEntry) error {
	return s.modifyBoard(ctx, boardID, func(b *domain.Board) {
		b.LastSeenBy = entries
	})
}

func pullMessage(msgs []domain.Message, id string) []domain.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

// FetchUser returns the user with the given id, or nil if it does not exist.
func (s *Tables) FetchUser(ctx context.Context, id string) (*domain.User, error) {
	ent, err := s.users.GetEntity(ctx, userPartition, id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeUserEntity(ent.Value)
}

// FindUserByEmail returns the user registered with email, or nil.
func (s *Tables) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	filter := "PartitionKey eq " + odataString(userPartition) + " and Email eq " + odataString(email)
	top := int32(1)
	pager := s.users.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if len(resp.Entities) > 0 {
			return decodeUserEntity(resp.Entities[0])
		}
	}
	return nil, nil
}

func (s *Tables) InsertUser(ctx context.Context, u *domain.User) error {
	payload, err := encodeUserEntity(u)
	if err != nil {
		return err
	}
	_, err = s.users.AddEntity(ctx, payload, nil)
	if isStatus(err, http.StatusConflict) {
		return domain.ErrConflict
	}
	return err
}

func (s *Tables) ReplaceUser(ctx context.Context, u *domain.User) error {
	payload, err := encodeUserEntity(u)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.users.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if isStatus(err, http.StatusNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// FetchUsers lists the accounts of one company. The company is filtered by
// the table service and txt is matched here, as OData has no substring
// operator.
func (s *Tables) FetchUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error) {
	filter := "PartitionKey eq " + odataString(userPartition)
	if f.CompanyName != "" {
		filter += " and CompanyName eq " + odataString(f.CompanyName)
	}
	pager := s.users.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	users := []*domain.User{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			u, err := decodeUserEntity(e)
			if err != nil {
				return nil, err
			}
			if f.Matches(u) {
				users = append(users, u)
			}
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Fullname < users[j].Fullname })
	return users, nil
}

func (s *Tables) DeleteUser(ctx context.Context, id string) error {
	_, err := s.users.DeleteEntity(ctx, userPartition, id, nil)
	if isStatus(err, http.StatusNotFound) {
		return domain.ErrNotFound
	}
	return err
}
