package repositories

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trello-project/backend/tasks-service/models"
)

var (
	ErrNotFound = errors.New("task not found")
	// ErrConflict means the task changed after it was read.
	ErrConflict = errors.New("task was changed by another request")
)

type TaskRepository interface {
	Insert(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context) ([]models.Task, error)
	// Update writes the named fields (bson keys) of task, provided the
	// stored revision still equals task.Revision. On success task.Revision
	// is advanced to the stored value.
	Update(ctx context.Context, task *models.Task, fields ...string) error
	// SetProgress writes only the progress of a task without a checklist.
	SetProgress(ctx context.Context, id string, progress int) error
}

type MongoTaskRepository struct {
	collection *mongo.Collection
}

func NewMongoTaskRepository(collection *mongo.Collection) *MongoTaskRepository {
	return &MongoTaskRepository{collection: collection}
}

// EnsureIndexes creates the lookup indexes used by list and subtask queries.
func (r *MongoTaskRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "parentId", Value: 1}}},
		{Keys: bson.D{{Key: "assignees", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "deadline", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create task indexes: %w", err)
	}
	return nil
}

func (r *MongoTaskRepository) Insert(ctx context.Context, task *models.Task) error {
	if _, err := r.collection.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *MongoTaskRepository) Get(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	return &task, nil
}

func (r *MongoTaskRepository) List(ctx context.Context) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

func (r *MongoTaskRepository) Update(ctx context.Context, task *models.Task, fields ...string) error {
	filter, update, err := conditionalUpdate(task, fields)
	if err != nil {
		return err
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	if result.MatchedCount == 0 {
		return r.missOrConflict(ctx, task.ID)
	}
	task.Revision++
	return nil
}

func (r *MongoTaskRepository) SetProgress(ctx context.Context, id string, progress int) error {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"checklist": bson.M{"$size": 0}},
			bson.M{"checklist": nil},
		},
	}
	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"progress": progress}})
	if err != nil {
		return fmt.Errorf("failed to update progress of task %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

func (r *MongoTaskRepository) missOrConflict(ctx context.Context, id string) error {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: %s", ErrConflict, id)
}

// conditionalUpdate builds the filter and update documents for Update.
// Fields that encode to nothing (nil pointers under omitempty) are unset.
func conditionalUpdate(task *models.Task, fields []string) (bson.M, bson.M, error) {
	raw, err := bson.Marshal(task)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}

	set := bson.M{}
	unset := bson.M{}
	for _, f := range fields {
		if f == "_id" || f == "revision" {
			continue
		}
		if v, ok := doc[f]; ok {
			set[f] = v
		} else {
			unset[f] = ""
		}
	}
	set["revision"] = task.Revision + 1

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	filter := bson.M{"_id": task.ID, "revision": task.Revision}
	if task.Revision == 0 {
		// records written before revisions existed carry no field
		filter["revision"] = bson.M{"$in": bson.A{int64(0), nil}}
	}
	return filter, update, nil
}
