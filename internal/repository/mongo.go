package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"task-manager/internal/models"
)

const (
	usersCollection = "users"
	tasksCollection = "tasks"
)

type userDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	Age       int                `bson:"age"`
	Tokens    []tokenDocument    `bson:"tokens"`
	Avatar    []byte             `bson:"avatar,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type tokenDocument struct {
	Token    string    `bson:"token"`
	IssuedAt time.Time `bson:"issuedAt"`
}

type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Description string             `bson:"description"`
	Completed   bool               `bson:"completed"`
	Owner       primitive.ObjectID `bson:"owner"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d userDocument) model() *models.User {
	u := &models.User{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Email:     d.Email,
		Password:  d.Password,
		Age:       d.Age,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, t := range d.Tokens {
		u.Tokens = append(u.Tokens, models.Token{Token: t.Token, IssuedAt: t.IssuedAt})
	}
	return u
}

func (d taskDocument) model() *models.Task {
	return &models.Task{
		ID:          d.ID.Hex(),
		Description: d.Description,
		Completed:   d.Completed,
		Owner:       d.Owner.Hex(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// Mongo timestamps carry millisecond precision.
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// EnsureMongoIndexes creates the unique email index and the owner index.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}
	_, err = db.Collection(tasksCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create tasks owner index: %w", err)
	}
	return nil
}

type mongoUsers struct {
	users *mongo.Collection
	tasks *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUsers{
		users: db.Collection(usersCollection),
		tasks: db.Collection(tasksCollection),
	}
}

// withoutAvatar keeps the image out of profile reads.
var withoutAvatar = bson.D{{Key: "avatar", Value: 0}}

func (r *mongoUsers) Create(ctx context.Context, user *models.User) error {
	now := mongoNow()
	doc := userDocument{
		Name:      user.Name,
		Email:     user.Email,
		Password:  user.Password,
		Age:       user.Age,
		Tokens:    []tokenDocument{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := r.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID = res.InsertedID.(primitive.ObjectID).Hex()
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (r *mongoUsers) findOne(ctx context.Context, filter bson.D) (*models.User, error) {
	var doc userDocument
	err := r.users.FindOne(ctx, filter, options.FindOne().SetProjection(withoutAvatar)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.model(), nil
}

func (r *mongoUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (r *mongoUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

// updateOne runs update against the user id and maps a zero match to ErrNotFound.
func (r *mongoUsers) updateOne(ctx context.Context, id string, update bson.D) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoUsers) Update(ctx context.Context, user *models.User) error {
	now := mongoNow()
	err := r.updateOne(ctx, user.ID, bson.D{{Key: "$set", Value: bson.D{
		{Key: "name", Value: user.Name},
		{Key: "email", Value: user.Email},
		{Key: "password", Value: user.Password},
		{Key: "age", Value: user.Age},
		{Key: "updatedAt", Value: now},
	}}})
	if err != nil {
		return err
	}
	user.UpdatedAt = now
	return nil
}

// Delete removes owned tasks, then the user document (which carries the
// tokens), then sweeps the tasks again. There is no transaction: a failure
// between the steps leaves the user without tasks. The second sweep catches
// a task inserted while the user was being removed; mongoTasks.Create
// rolls back its own insert when the owner is already gone.
func (r *mongoUsers) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	byOwner := bson.D{{Key: "owner", Value: oid}}
	if _, err := r.tasks.DeleteMany(ctx, byOwner); err != nil {
		return fmt.Errorf("delete user tasks: %w", err)
	}
	res, err := r.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := r.tasks.DeleteMany(ctx, byOwner); err != nil {
		return fmt.Errorf("sweep user tasks: %w", err)
	}
	return nil
}

func (r *mongoUsers) HasToken(ctx context.Context, id, token string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, ErrNotFound
	}
	var doc struct {
		Tokens []tokenDocument `bson:"tokens"`
	}
	projection := bson.D{{Key: "tokens", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "token", Value: token}}}}}}
	err = r.users.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}, options.FindOne().SetProjection(projection)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("find user token: %w", err)
	}
	return len(doc.Tokens) > 0, nil
}

func (r *mongoUsers) AddToken(ctx context.Context, id string, token models.Token) error {
	return r.updateOne(ctx, id, bson.D{{Key: "$push", Value: bson.D{
		{Key: "tokens", Value: tokenDocument{Token: token.Token, IssuedAt: token.IssuedAt}},
	}}})
}

func (r *mongoUsers) RemoveToken(ctx context.Context, id, token string) error {
	return r.updateOne(ctx, id, bson.D{{Key: "$pull", Value: bson.D{
		{Key: "tokens", Value: bson.D{{Key: "token", Value: token}}},
	}}})
}

func (r *mongoUsers) ClearTokens(ctx context.Context, id string) error {
	return r.updateOne(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "tokens", Value: []tokenDocument{}},
	}}})
}

func (r *mongoUsers) SetAvatar(ctx context.Context, id string, avatar []byte) error {
	if avatar == nil {
		return r.updateOne(ctx, id, bson.D{{Key: "$unset", Value: bson.D{{Key: "avatar", Value: ""}}}})
	}
	return r.updateOne(ctx, id, bson.D{{Key: "$set", Value: bson.D{{Key: "avatar", Value: avatar}}}})
}

func (r *mongoUsers) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc struct {
		Avatar []byte `bson:"avatar"`
	}
	opts := options.FindOne().SetProjection(bson.D{{Key: "avatar", Value: 1}})
	if err := r.users.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find avatar: %w", err)
	}
	if len(doc.Avatar) == 0 {
		return nil, ErrNotFound
	}
	return doc.Avatar, nil
}

type mongoTasks struct {
	tasks *mongo.Collection
	users *mongo.Collection
}

func NewMongoTaskRepository(db *mongo.Database) TaskRepository {
	return &mongoTasks{
		tasks: db.Collection(tasksCollection),
		users: db.Collection(usersCollection),
	}
}

func (r *mongoTasks) ownerExists(ctx context.Context, owner primitive.ObjectID) (bool, error) {
	n, err := r.users.CountDocuments(ctx, bson.D{{Key: "_id", Value: owner}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count owner: %w", err)
	}
	return n > 0, nil
}

// ownedFilter matches {_id, owner}. ok is false when either id is not a
// valid ObjectID, in which case nothing can match.
func ownedFilter(id, owner string) (bson.D, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	ownerID, err := primitive.ObjectIDFromHex(owner)
	if err != nil {
		return nil, false
	}
	return bson.D{{Key: "_id", Value: oid}, {Key: "owner", Value: ownerID}}, true
}

func (r *mongoTasks) Create(ctx context.Context, task *models.Task) error {
	owner, err := primitive.ObjectIDFromHex(task.Owner)
	if err != nil {
		return ErrNotFound
	}
	if ok, err := r.ownerExists(ctx, owner); err != nil {
		return err
	} else if !ok {
		return ErrNotFound
	}
	now := mongoNow()
	doc := taskDocument{
		Description: task.Description,
		Completed:   task.Completed,
		Owner:       owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := r.tasks.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	id := res.InsertedID.(primitive.ObjectID)

	// The owner may have been deleted between the check and the insert.
	if ok, err := r.ownerExists(ctx, owner); err != nil {
		return err
	} else if !ok {
		if _, err := r.tasks.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
			return fmt.Errorf("roll back orphan task: %w", err)
		}
		return ErrNotFound
	}
	task.ID = id.Hex()
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

func (r *mongoTasks) FindByOwner(ctx context.Context, id, owner string) (*models.Task, error) {
	filter, ok := ownedFilter(id, owner)
	if !ok {
		return nil, ErrNotFound
	}
	var doc taskDocument
	if err := r.tasks.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return doc.model(), nil
}

func (r *mongoTasks) ListByOwner(ctx context.Context, owner string, filter TaskFilter, page Page) ([]models.Task, error) {
	ownerID, err := primitive.ObjectIDFromHex(owner)
	if err != nil {
		return []models.Task{}, nil
	}
	query := bson.D{{Key: "owner", Value: ownerID}}
	if filter.Completed != nil {
		query = append(query, bson.E{Key: "completed", Value: *filter.Completed})
	}

	dir := 1
	if page.Desc {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: string(page.sortField()), Value: dir}, {Key: "_id", Value: dir}})
	if page.Limit > 0 {
		opts.SetLimit(page.Limit)
	}
	if page.Skip > 0 {
		opts.SetSkip(page.Skip)
	}

	cur, err := r.tasks.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	defer cur.Close(ctx)

	tasks := []models.Task{}
	for cur.Next(ctx) {
		var doc taskDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, *doc.model())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func (r *mongoTasks) UpdateByOwner(ctx context.Context, task *models.Task) error {
	filter, ok := ownedFilter(task.ID, task.Owner)
	if !ok {
		return ErrNotFound
	}
	now := mongoNow()
	res, err := r.tasks.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: bson.D{
		{Key: "description", Value: task.Description},
		{Key: "completed", Value: task.Completed},
		{Key: "updatedAt", Value: now},
	}}})
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	task.UpdatedAt = now
	return nil
}

func (r *mongoTasks) DeleteByOwner(ctx context.Context, id, owner string) (*models.Task, error) {
	filter, ok := ownedFilter(id, owner)
	if !ok {
		return nil, ErrNotFound
	}
	var doc taskDocument
	if err := r.tasks.FindOneAndDelete(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete task: %w", err)
	}
	return doc.model(), nil
}

func (r *mongoTasks) DeleteAllByOwner(ctx context.Context, owner string) (int64, error) {
	ownerID, err := primitive.ObjectIDFromHex(owner)
	if err != nil {
		return 0, nil
	}
	res, err := r.tasks.DeleteMany(ctx, bson.D{{Key: "owner", Value: ownerID}})
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	return res.DeletedCount, nil
}
