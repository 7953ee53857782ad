package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lexlab/internal/catalog"
	"lexlab/internal/models"
	"lexlab/internal/schedule"

	"go.uber.org/zap"
)

// ErrDuplicateRecording reports a second record attempt for a (sequence
// index, phase) pair. An internal guard violation: logged, never shown to
// the participant, and never turned into a second store write.
var ErrDuplicateRecording = errors.New("duplicate recording attempt")

// ErrPersistenceFailure wraps a failed store call. Local phase progression
// continues; the record stays unmarked so a retry path sees it as missing.
var ErrPersistenceFailure = errors.New("persistence failure")

// Store is the opaque persistence collaborator.
type Store interface {
	InsertResponse(ctx context.Context, r *models.Response) error
	HasResponse(ctx context.Context, participantID string, sequenceIndex int, phase catalog.Phase) (bool, error)
}

// Request carries everything needed to build one response record.
type Request struct {
	View        schedule.TrialView
	AnswerText  *string
	IsTimedOut  bool
	ShownAt     time.Time
	SubmittedAt time.Time
}

type recordKey struct {
	index int
	phase catalog.Phase
}

// Recorder persists at most one response per (sequence index, phase) for a
// single participant session. Warm-up records are kept in the local echo log
// only and never reach the store.
type Recorder struct {
	log           *zap.Logger
	store         Store
	participantID string

	mu       sync.Mutex
	recorded map[recordKey]struct{}
	echo     []models.Response
}

// New wires a recorder for one participant session.
func New(log *zap.Logger, store Store, participantID string) *Recorder {
	return &Recorder{
		log:           log,
		store:         store,
		participantID: participantID,
		recorded:      make(map[recordKey]struct{}),
	}
}

// HasRecorded reports whether a response for (index, phase) was already
// committed in this session. The runner consults this before calling Record.
func (r *Recorder) HasRecorded(index int, phase catalog.Phase) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.recorded[recordKey{index, phase}]
	return ok
}

// Log returns a copy of the session's observable response log, warm-up
// echoes included.
func (r *Recorder) Log() []models.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Response, len(r.echo))
	copy(out, r.echo)
	return out
}

// Record builds the response record for a completed phase and persists it.
// Returns ErrDuplicateRecording if a record for the pair already exists and
// ErrPersistenceFailure if the store call failed.
func (r *Recorder) Record(ctx context.Context, req Request) error {
	key := recordKey{req.View.SequenceIndex, req.View.Phase}

	r.mu.Lock()
	if _, dup := r.recorded[key]; dup {
		r.mu.Unlock()
		r.log.Warn("Duplicate recording attempt blocked",
			zap.Int("sequenceIndex", key.index),
			zap.String("phase", string(key.phase)),
		)
		return ErrDuplicateRecording
	}
	r.mu.Unlock()

	rec := r.build(req)

	if req.View.IsWarmup {
		r.commit(key, rec)
		return nil
	}

	// Defense in depth behind the local set: a reload may have rebuilt this
	// recorder after the row was already written.
	exists, err := r.store.HasResponse(ctx, r.participantID, key.index, key.phase)
	if err == nil && exists {
		r.log.Warn("Response already persisted, skipping insert",
			zap.Int("sequenceIndex", key.index),
			zap.String("phase", string(key.phase)),
		)
		r.commit(key, rec)
		return ErrDuplicateRecording
	}

	if err := r.store.InsertResponse(ctx, &rec); err != nil {
		return fmt.Errorf("%w: insert response at index %d: %v", ErrPersistenceFailure, key.index, err)
	}
	r.commit(key, rec)
	return nil
}

func (r *Recorder) commit(key recordKey, rec models.Response) {
	r.mu.Lock()
	r.recorded[key] = struct{}{}
	r.echo = append(r.echo, rec)
	r.mu.Unlock()
}

func (r *Recorder) build(req Request) models.Response {
	view := req.View
	rec := models.Response{
		ParticipantID:  r.participantID,
		SequenceIndex:  view.SequenceIndex,
		WordID:         view.Word.ID,
		Condition:      string(view.Word.Condition),
		ConditionLabel: catalog.ConditionLabel(view.Word),
		ExposureIndex:  view.ExposureIndex,
		Phase:          string(view.Phase),
		AnswerText:     req.AnswerText,
		CorrectAnswer:  catalog.CorrectAnswer(view.Word),
		IsTimedOut:     req.IsTimedOut,
		ShownAt:        req.ShownAt,
		SubmittedAt:    req.SubmittedAt,
		ResponseTimeMs: req.SubmittedAt.Sub(req.ShownAt).Milliseconds(),
	}

	switch {
	case view.Sentence != nil:
		text := view.Sentence.Text
		rec.SentenceText = &text
	case len(view.Sentences) > 0:
		// Review entries carry the word's full sentence set, numbered.
		lines := make([]string, len(view.Sentences))
		for i, s := range view.Sentences {
			lines[i] = fmt.Sprintf("%d. %s", i+1, s.Text)
		}
		joined := strings.Join(lines, "\n")
		rec.SentenceText = &joined
	}
	return rec
}
