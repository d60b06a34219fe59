package storage

import (
	"context"
	"errors"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"board-api/domain"
)

// Mongo stores boards and users as MongoDB documents. Messages and view
// history are written with field-scoped updates, and whole-board writes
// leave those fields untouched.
type Mongo struct {
	client *mongo.Client
	boards *mongo.Collection
	users  *mongo.Collection
}

// NewMongo connects to uri and ensures the indexes the store relies on.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(database)
	m := &Mongo{client: client, boards: db.Collection("board"), users: db.Collection("user")}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	if _, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := m.boards.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "companyName", Value: 1}},
	})
	return err
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// boardQuery pushes the company scope and title filter down to MongoDB.
// Visibility is left to the caller.
func boardQuery(f domain.BoardFilter) bson.M {
	q := bson.M{}
	if company := f.CompanyName(); company != "" {
		q["companyName"] = company
	}
	if f.Title != "" {
		q["title"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Title), Options: "i"}
	}
	return q
}

func (m *Mongo) FetchBoards(ctx context.Context, f domain.BoardFilter) ([]*domain.Board, error) {
	cur, err := m.boards.Find(ctx, boardQuery(f))
	if err != nil {
		return nil, err
	}
	boards := []*domain.Board{}
	if err := cur.All(ctx, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// FetchBoard returns the board with the given id, or nil if it does not exist.
func (m *Mongo) FetchBoard(ctx context.Context, id string) (*domain.Board, error) {
	var b domain.Board
	err := m.boards.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (m *Mongo) InsertBoard(ctx context.Context, b *domain.Board) error {
	_, err := m.boards.InsertOne(ctx, b)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrConflict
	}
	return err
}

// ReplaceBoard overwrites every board field except msgs and lastSeenBy,
// which belong to PushMessage, PullMessage and SetLastSeen.
func (m *Mongo) ReplaceBoard(ctx context.Context, b *domain.Board) error {
	update, err := boardUpdate(b)
	if err != nil {
		return err
	}
	return m.updateBoard(ctx, b.ID, update)
}

// fieldScoped lists the keys a whole-board write leaves alone.
var fieldScoped = []string{"_id", "msgs", "lastSeenBy"}

// omittable lists the board keys that vanish from the document when empty.
var omittable = []string{"description", "owner", "companyName", "visibility", "createdAt"}

func boardUpdate(b *domain.Board) (bson.M, error) {
	raw, err := bson.Marshal(b)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	if err := bson.Unmarshal(raw, &set); err != nil {
		return nil, err
	}
	for _, k := range fieldScoped {
		delete(set, k)
	}
	update := bson.M{"$set": set}
	unset := bson.M{}
	for _, k := range omittable {
		if _, ok := set[k]; !ok {
			unset[k] = ""
		}
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update, nil
}

func (m *Mongo) DeleteBoard(ctx context.Context, id string) error {
	res, err := m.boards.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *Mongo) updateBoard(ctx context.Context, id string, update bson.M) error {
	res, err := m.boards.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *Mongo) PushMessage(ctx context.Context, boardID string, msg domain.Message) error {
	return m.updateBoard(ctx, boardID, bson.M{"$push": bson.M{"msgs": msg}})
}

func (m *Mongo) PullMessage(ctx context.Context, boardID, msgID string) error {
	return m.updateBoard(ctx, boardID, bson.M{"$pull": bson.M{"msgs": bson.M{"id": msgID}}})
}

func (m *Mongo) SetLastSeen(ctx context.Context, boardID string, entries []domain.LastSeenEntry) error {
	return m.updateBoard(ctx, boardID, bson.M{"$set": bson.M{"lastSeenBy": entries}})
}

func (m *Mongo) FetchUser(ctx context.Context, id string) (*domain.User, error) {
	return m.findUser(ctx, bson.M{"_id": id})
}

func (m *Mongo) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.findUser(ctx, bson.M{"email": email})
}

func (m *Mongo) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var u domain.User
	err := m.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (m *Mongo) InsertUser(ctx context.Context, u *domain.User) error {
	_, err := m.users.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrConflict
	}
	return err
}

func (m *Mongo) ReplaceUser(ctx context.Context, u *domain.User) error {
	res, err := m.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// userQuery scopes to one company, matching a missing companyName when the
// company is empty, and matches txt against email or fullname.
func userQuery(f domain.UserFilter) bson.M {
	q := bson.M{"companyName": f.CompanyName}
	if f.CompanyName == "" {
		q["companyName"] = bson.M{"$in": bson.A{"", nil}}
	}
	if f.Txt != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Txt), Options: "i"}
		q["$or"] = bson.A{bson.M{"email": re}, bson.M{"fullname": re}}
	}
	return q
}

func (m *Mongo) FetchUsers(ctx context.Context, f domain.UserFilter) ([]*domain.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "fullname", Value: 1}})
	cur, err := m.users.Find(ctx, userQuery(f), opts)
	if err != nil {
		return nil, err
	}
	users := []*domain.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (m *Mongo) DeleteUser(ctx context.Context, id string) error {
	res, err := m.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
