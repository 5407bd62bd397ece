package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"TrackHound/model"
)

// HistoryRepository defines the interface for search history operations.
type HistoryRepository interface {
	Save(ctx context.Context, entry *model.SearchHistory) error
	Recent(ctx context.Context, userID int64, limit int) ([]model.SearchHistory, error)
	PopularToday(ctx context.Context, limit int) ([]model.PopularSearch, error)
}

// gormHistoryRepository implements HistoryRepository on GORM.
type gormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a new gormHistoryRepository.
func NewGormHistoryRepository(db *gorm.DB) HistoryRepository {
	return &gormHistoryRepository{db: db}
}

// Save inserts one history row, assigning an id when the caller left
// it empty.
func (r *gormHistoryRepository) Save(ctx context.Context, entry *model.SearchHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to save search history: %w", err)
	}
	return nil
}

// Recent returns the user's latest searches, newest first.
func (r *gormHistoryRepository) Recent(ctx context.Context, userID int64, limit int) ([]model.SearchHistory, error) {
	var rows []model.SearchHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load search history for user %d: %w", userID, err)
	}
	return rows, nil
}

// PopularToday groups today's searches by normalized query, most
// repeated first.
func (r *gormHistoryRepository) PopularToday(ctx context.Context, limit int) ([]model.PopularSearch, error) {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var rows []model.PopularSearch
	err := r.db.WithContext(ctx).
		Model(&model.SearchHistory{}).
		Select("normalized_query AS query, COUNT(*) AS hits, MAX(created_at) AS last_seen").
		Where("created_at >= ?", startOfDay).
		Group("normalized_query").
		Order("hits DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load popular searches: %w", err)
	}
	return rows, nil
}
