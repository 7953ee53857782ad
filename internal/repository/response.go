package repository

import (
	"context"
	"errors"

	"lexlab/internal/database"
	"lexlab/internal/models"

	"gorm.io/gorm"
)

// InsertResponse persists one response record. The unique index on
// (participant_id, sequence_index, phase) rejects a second insert for the
// same pair, whatever the in-memory guards missed.
func InsertResponse(ctx context.Context, r *models.Response) error {
	return database.DB.WithContext(ctx).Create(r).Error
}

// HasResponse reports whether a record already exists for the pair.
func HasResponse(ctx context.Context, participantID string, sequenceIndex int, phase string) (bool, error) {
	var r models.Response
	result := database.DB.WithContext(ctx).
		Select("id").
		Where("participant_id = ? AND sequence_index = ? AND phase = ?", participantID, sequenceIndex, phase).
		First(&r)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if result.Error != nil {
		return false, result.Error
	}
	return true, nil
}

// ListResponses returns a session's records in sequence order.
func ListResponses(ctx context.Context, participantID string) ([]models.Response, error) {
	var rows []models.Response
	result := database.DB.WithContext(ctx).
		Where("participant_id = ?", participantID).
		Order("sequence_index ASC, phase ASC").
		Find(&rows)
	return rows, result.Error
}

// ListAllResponses returns every record across sessions for the export
// surface, ordered for stable downstream diffs.
func ListAllResponses(ctx context.Context) ([]models.Response, error) {
	var rows []models.Response
	result := database.DB.WithContext(ctx).
		Order("participant_id ASC, sequence_index ASC, phase ASC").
		Find(&rows)
	return rows, result.Error
}
