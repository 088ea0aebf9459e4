package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"codesync/internal/models"
)

type HistoryRepository struct {
	DB *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{DB: db}
}

func (r *HistoryRepository) Migrate() error {
	return r.DB.AutoMigrate(&models.RoomHistory{})
}

// Create stores h unless a row for the same room and end time exists.
func (r *HistoryRepository) Create(ctx context.Context, h *models.RoomHistory) error {
	var existing models.RoomHistory
	err := r.DB.WithContext(ctx).
		Where("room_id = ? AND ended_at = ?", h.RoomID, h.EndedAt).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return r.DB.WithContext(ctx).Create(h).Error
}

// CountExecutions counts the audited runs of roomID.
func (r *HistoryRepository) CountExecutions(ctx context.Context, roomID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&models.ExecutionRecord{}).
		Where("room_id = ?", roomID).
		Count(&n).Error
	return n, err
}

// ListByRoom returns the history rows of roomID, newest first.
func (r *HistoryRepository) ListByRoom(ctx context.Context, roomID string) ([]models.RoomHistory, error) {
	out := []models.RoomHistory{}
	err := r.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("ended_at DESC").
		Find(&out).Error
	return out, err
}
