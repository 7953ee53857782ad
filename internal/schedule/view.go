package schedule

import (
	"fmt"

	"lexlab/internal/catalog"
)

// TrialView is the read-only projection of a schedule entry joined with its
// word and stimulus sentence(s). Derived on demand, never persisted.
type TrialView struct {
	SequenceIndex   int
	Word            catalog.Word
	ExposureIndex   int
	Phase           catalog.Phase
	Sentence        *catalog.Sentence  // nil for review entries
	Sentences       []catalog.Sentence // all four sentences, review entries only
	DurationSeconds int
	BlockID         int
	IsWarmup        bool
}

// ViewAt resolves the full trial view for a sequence index.
func (s *Schedule) ViewAt(index int) (TrialView, error) {
	d, err := s.At(index)
	if err != nil {
		return TrialView{}, err
	}

	bank := s.bank
	if d.IsWarmup {
		bank = s.warmup
	}
	word, ok := bank.WordByID(d.WordID)
	if !ok {
		return TrialView{}, fmt.Errorf("schedule entry %d references unknown word %d", index, d.WordID)
	}

	view := TrialView{
		SequenceIndex:   d.SequenceIndex,
		Word:            word,
		ExposureIndex:   d.ExposureIndex,
		Phase:           d.Phase,
		DurationSeconds: d.DurationSeconds,
		BlockID:         d.BlockID,
		IsWarmup:        d.IsWarmup,
	}

	if d.Phase == catalog.PhaseReview {
		view.Sentences = bank.SentencesForWord(d.WordID)
		return view, nil
	}

	sentence, ok := bank.SentenceByID(d.SentenceID)
	if !ok {
		return TrialView{}, fmt.Errorf("schedule entry %d references unknown sentence %d", index, d.SentenceID)
	}
	view.Sentence = &sentence
	return view, nil
}
