package mongo

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"codesync/internal/models"
)

//go:embed seed/questions.yaml
var seedQuestions []byte

// catalog writes needed for seeding
type seedTarget interface {
	Count(ctx context.Context) (int64, error)
	InsertMany(ctx context.Context, qs []models.Question) error
}

// LoadSeedQuestions parses the embedded question bank.
func LoadSeedQuestions() ([]models.Question, error) {
	var qs []models.Question
	if err := yaml.Unmarshal(seedQuestions, &qs); err != nil {
		return nil, fmt.Errorf("failed to parse question seed: %w", err)
	}
	for _, q := range qs {
		if q.ID == "" || q.Title == "" || !q.Difficulty.Valid() {
			return nil, fmt.Errorf("invalid seed question %q", q.ID)
		}
	}
	return qs, nil
}

// SeedIfEmpty inserts the embedded question bank when the catalog has no questions.
func SeedIfEmpty(ctx context.Context, target seedTarget, logger *zap.Logger) error {
	existing, err := target.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count questions: %w", err)
	}
	if existing > 0 {
		logger.Info("Questions already exist in catalog", zap.Int64("count", existing))
		return nil
	}

	qs, err := LoadSeedQuestions()
	if err != nil {
		return err
	}
	if err := target.InsertMany(ctx, qs); err != nil {
		return fmt.Errorf("failed to insert seed questions: %w", err)
	}
	logger.Info("Catalog seeded with questions", zap.Int("count", len(qs)))
	return nil
}
