package repository

import (
	"context"
	"time"

	"lexlab/internal/catalog"
	"lexlab/internal/models"
)

// Ledger adapts the participant repository to the runner's ledger interface.
type Ledger struct{}

func (Ledger) UpdateCursor(ctx context.Context, participantID string, index int) error {
	return UpdateCursor(ctx, participantID, index)
}

func (Ledger) MarkWarmupDone(ctx context.Context, participantID string) error {
	return MarkWarmupDone(ctx, participantID)
}

func (Ledger) MarkCompleted(ctx context.Context, participantID string, at time.Time) error {
	return MarkCompleted(ctx, participantID, at)
}

// ResponseStore adapts the response repository to the recorder's store
// interface.
type ResponseStore struct{}

func (ResponseStore) InsertResponse(ctx context.Context, r *models.Response) error {
	return InsertResponse(ctx, r)
}

func (ResponseStore) HasResponse(ctx context.Context, participantID string, sequenceIndex int, phase catalog.Phase) (bool, error) {
	return HasResponse(ctx, participantID, sequenceIndex, string(phase))
}
