package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Participant status values.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusAbandoned  = "abandoned"
)

// Participant is one experiment session. CurrentSequenceIndex is the single
// source of truth for resume position; it only moves forward and only the
// trial runner's advance step writes it.
type Participant struct {
	ID                   string `gorm:"type:uuid;primaryKey"`
	Code                 string `gorm:"index"`
	AssignedVariant      string
	CurrentSequenceIndex int
	Status               string `gorm:"index"`
	WarmupCompleted      bool
	StartedAt            time.Time
	CompletedAt          *time.Time
	UpdatedAt            time.Time
}

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
