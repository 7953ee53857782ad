package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Response is one persisted answer record. Created at most once per
// (participant, sequence index, phase) and never mutated afterwards; the
// composite unique index backs the recorder's idempotency guard.
type Response struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	ParticipantID  string `gorm:"index"`
	SequenceIndex  int
	WordID         int
	Condition      string
	ConditionLabel string
	ExposureIndex  int
	Phase          string
	SentenceText   *string
	AnswerText     *string
	CorrectAnswer  string
	IsTimedOut     bool
	ShownAt        time.Time
	SubmittedAt    time.Time
	ResponseTimeMs int64
	CreatedAt      time.Time
}

func (r *Response) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
