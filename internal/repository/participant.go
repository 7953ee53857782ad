package repository

import (
	"context"
	"errors"
	"time"

	"lexlab/internal/database"
	"lexlab/internal/models"

	"gorm.io/gorm"
)

// FindInProgressSession returns the open session for a participant code, or
// nil if none exists.
func FindInProgressSession(ctx context.Context, code string) (*models.Participant, error) {
	var p models.Participant
	result := database.DB.WithContext(ctx).
		Where("code = ? AND status = ?", code, models.StatusInProgress).
		Order("started_at DESC").
		First(&p)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &p, nil
}

// CreateSession opens a fresh session for a code at sequence index zero.
func CreateSession(ctx context.Context, code, variant string) (*models.Participant, error) {
	p := &models.Participant{
		Code:            code,
		AssignedVariant: variant,
		Status:          models.StatusInProgress,
		StartedAt:       time.Now(),
	}
	result := database.DB.WithContext(ctx).Create(p)
	return p, result.Error
}

// GetSessionByID loads a session row.
func GetSessionByID(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	result := database.DB.WithContext(ctx).First(&p, "id = ?", id)
	return &p, result.Error
}

// UpdateCursor advances the durable resume position. The guard keeps the
// cursor monotone: a late write from a replayed event can never move it back.
func UpdateCursor(ctx context.Context, id string, index int) error {
	return database.DB.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ? AND current_sequence_index < ?", id, index).
		Update("current_sequence_index", index).Error
}

// MarkWarmupDone flags the warm-up segment as finished.
func MarkWarmupDone(ctx context.Context, id string) error {
	return database.DB.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ?", id).
		Update("warmup_completed", true).Error
}

// MarkCompleted closes a session as finished. The status filter makes the
// write happen once: a later revisit of a finished session cannot overwrite
// the original completion time.
func MarkCompleted(ctx context.Context, id string, at time.Time) error {
	return database.DB.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ? AND status = ?", id, models.StatusInProgress).
		Updates(map[string]interface{}{
			"status":       models.StatusCompleted,
			"completed_at": at,
		}).Error
}

// MarkAbandoned closes a session that went idle.
func MarkAbandoned(ctx context.Context, id string) error {
	return database.DB.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ? AND status = ?", id, models.StatusInProgress).
		Update("status", models.StatusAbandoned).Error
}

// ListStaleInProgress returns open sessions untouched since the cutoff.
func ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.Participant, error) {
	var stale []models.Participant
	result := database.DB.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusInProgress, cutoff).
		Find(&stale)
	return stale, result.Error
}
