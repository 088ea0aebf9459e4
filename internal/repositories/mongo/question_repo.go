package mongo

import (
	"context"
	"errors"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"codesync/internal/models"
	"codesync/internal/repositories"
)

// Repo wraps the question catalog collection
type Repo struct{ col *mongo.Collection }

// NewQuestionRepo opens the collection and ensures a unique index on questionId
func NewQuestionRepo(ctx context.Context, c *Client, collection string) (*Repo, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	r := NewQuestionRepoFromCollection(db.Collection(collection))

	_, err = r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "questionId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func NewQuestionRepoFromCollection(col *mongo.Collection) *Repo {
	return &Repo{col: col}
}

// List returns one page of matching questions plus the total match count
func (r *Repo) List(ctx context.Context, f models.QuestionFilter) ([]models.Question, int64, error) {
	filter := buildFilter(f)

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	// a non-positive limit yields an empty page, never an unbounded one
	if f.Limit <= 0 {
		return []models.Question{}, total, nil
	}

	opts := options.Find().
		SetSkip(f.Offset).
		SetLimit(f.Limit).
		SetSort(bson.D{{Key: "questionId", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	out := []models.Question{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByID looks a question up by its external id
func (r *Repo) GetByID(ctx context.Context, id string) (*models.Question, error) {
	var q models.Question
	err := r.col.FindOne(ctx, bson.M{"questionId": id}).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *Repo) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.D{})
}

func (r *Repo) InsertMany(ctx context.Context, qs []models.Question) error {
	if len(qs) == 0 {
		return nil
	}
	docs := make([]interface{}, len(qs))
	for i := range qs {
		docs[i] = qs[i]
	}
	_, err := r.col.InsertMany(ctx, docs)
	return err
}

// difficulty matches case-insensitively and exactly; tag and search are
// case-insensitive substring matches
func buildFilter(f models.QuestionFilter) bson.M {
	filter := bson.M{}
	if f.Difficulty != "" {
		filter["difficulty"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(f.Difficulty) + "$", Options: "i"}
	}
	if f.Tag != "" {
		filter["tags"] = bson.M{"$in": bson.A{primitive.Regex{Pattern: regexp.QuoteMeta(f.Tag), Options: "i"}}}
	}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}
	}
	return filter
}
