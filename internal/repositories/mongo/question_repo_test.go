package mongo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"

	"codesync/internal/models"
	"codesync/internal/repositories"
)

func questionDoc(id, title string, difficulty models.Difficulty) bson.D {
	return bson.D{
		{Key: "questionId", Value: id},
		{Key: "title", Value: title},
		{Key: "difficulty", Value: string(difficulty)},
		{Key: "tags", Value: bson.A{"array"}},
	}
}

func TestBuildFilter(t *testing.T) {
	assert.Empty(t, buildFilter(models.QuestionFilter{}))

	f := buildFilter(models.QuestionFilter{Difficulty: "easy", Tag: "c++", Search: "two"})

	diff, ok := f["difficulty"].(primitive.Regex)
	require.True(t, ok)
	assert.Equal(t, "^easy$", diff.Pattern)
	assert.Equal(t, "i", diff.Options)

	tags, ok := f["tags"].(bson.M)
	require.True(t, ok)
	in := tags["$in"].(bson.A)
	assert.Equal(t, `c\+\+`, in[0].(primitive.Regex).Pattern)

	or, ok := f["$or"].(bson.A)
	require.True(t, ok)
	assert.Len(t, or, 2)
}

func TestQuestionRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("list returns items and total", func(mt *mtest.T) {
		repo := NewQuestionRepoFromCollection(mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(2)}}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				questionDoc("two-sum", "Two Sum", models.Easy),
				questionDoc("lru-cache", "LRU Cache", models.Medium),
			),
		)

		items, total, err := repo.List(context.Background(), models.QuestionFilter{Limit: 20})
		require.NoError(mt, err)
		assert.Equal(mt, int64(2), total)
		require.Len(mt, items, 2)
		assert.Equal(mt, "two-sum", items[0].ID)
		assert.Equal(mt, models.Medium, items[1].Difficulty)
	})

	mt.Run("zero limit skips find", func(mt *mtest.T) {
		repo := NewQuestionRepoFromCollection(mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(5)}}),
		)

		items, total, err := repo.List(context.Background(), models.QuestionFilter{Limit: 0})
		require.NoError(mt, err)
		assert.Equal(mt, int64(5), total)
		assert.Empty(mt, items)
	})

	mt.Run("get by id found", func(mt *mtest.T) {
		repo := NewQuestionRepoFromCollection(mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			questionDoc("median-two-sorted-arrays", "Median of Two Sorted Arrays", models.Hard)))

		q, err := repo.GetByID(context.Background(), "median-two-sorted-arrays")
		require.NoError(mt, err)
		assert.Equal(mt, "Median of Two Sorted Arrays", q.Title)
	})

	mt.Run("get by id missing", func(mt *mtest.T) {
		repo := NewQuestionRepoFromCollection(mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.GetByID(context.Background(), "nope")
		assert.ErrorIs(mt, err, repositories.ErrQuestionNotFound)
	})

	mt.Run("insert many", func(mt *mtest.T) {
		repo := NewQuestionRepoFromCollection(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := repo.InsertMany(context.Background(), []models.Question{{ID: "a", Title: "A", Difficulty: models.Easy}})
		assert.NoError(mt, err)
		assert.NoError(mt, repo.InsertMany(context.Background(), nil))
	})
}

type fakeSeedTarget struct {
	count    int64
	countErr error
	inserted []models.Question
}

func (f *fakeSeedTarget) Count(context.Context) (int64, error) { return f.count, f.countErr }

func (f *fakeSeedTarget) InsertMany(_ context.Context, qs []models.Question) error {
	f.inserted = append(f.inserted, qs...)
	return nil
}

func TestLoadSeedQuestions(t *testing.T) {
	qs, err := LoadSeedQuestions()
	require.NoError(t, err)
	require.NotEmpty(t, qs)

	seen := map[string]bool{}
	for _, q := range qs {
		assert.False(t, seen[q.ID], "duplicate seed id %s", q.ID)
		seen[q.ID] = true
		assert.True(t, q.Difficulty.Valid())
	}
	assert.True(t, seen["two-sum"])
}

func TestSeedIfEmpty(t *testing.T) {
	empty := &fakeSeedTarget{}
	require.NoError(t, SeedIfEmpty(context.Background(), empty, zap.NewNop()))
	assert.NotEmpty(t, empty.inserted)

	populated := &fakeSeedTarget{count: 3}
	require.NoError(t, SeedIfEmpty(context.Background(), populated, zap.NewNop()))
	assert.Empty(t, populated.inserted)

	broken := &fakeSeedTarget{countErr: errors.New("down")}
	assert.Error(t, SeedIfEmpty(context.Background(), broken, zap.NewNop()))
}
