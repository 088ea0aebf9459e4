package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"codesync/internal/models"
)

type ExecutionRepository struct {
	DB *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{DB: db}
}

// Migrate creates or updates the execution_records table
func (r *ExecutionRepository) Migrate() error {
	return r.DB.AutoMigrate(&models.ExecutionRecord{})
}

// Record stores one execution audit row
func (r *ExecutionRepository) Record(ctx context.Context, rec *models.ExecutionRecord) error {
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now().UTC()
	}
	return r.DB.WithContext(ctx).Create(rec).Error
}
