package schedule

import (
	"errors"
	"fmt"
	"sync"

	"lexlab/internal/catalog"
)

// ErrScheduleExhausted reports a position cursor at or past the schedule end.
// This is normal completion, not a failure.
var ErrScheduleExhausted = errors.New("schedule exhausted")

// Main-block design constants. Every total below is derived from these; the
// generator and the counts cannot drift apart.
const (
	BlockCount       = 10
	ExposuresPerItem = 5

	// entriesPerItem: four guess+feedback pairs plus one review.
	entriesPerItem = 2*(ExposuresPerItem-1) + 1

	// MainTrialCount is the length of the main block: 20 items x 9 entries.
	MainTrialCount = (catalog.MassedWordCount + catalog.SpacedWordCount) * entriesPerItem
)

// Timing holds the per-phase countdown windows in seconds.
type Timing struct {
	GuessSeconds    int
	FeedbackSeconds int
	ReviewSeconds   int
}

// Descriptor is one schedule entry: a single (item, exposure, phase) unit.
type Descriptor struct {
	SequenceIndex   int
	WordID          int
	ExposureIndex   int
	Phase           catalog.Phase
	SentenceID      int // 0 for review entries; resolved to all sentences at view time
	DurationSeconds int
	BlockID         int // 0 for warm-up entries
	IsWarmup        bool
}

// Schedule is the immutable ordered trial sequence for one variant:
// a warm-up prefix followed by the 180-entry main block.
type Schedule struct {
	Variant     catalog.Variant
	Entries     []Descriptor
	WarmupCount int

	bank   *catalog.Bank
	warmup *catalog.Bank
}

// Len returns the total entry count, warm-up included.
func (s *Schedule) Len() int { return len(s.Entries) }

// Main returns the main-block entries without the warm-up prefix.
func (s *Schedule) Main() []Descriptor { return s.Entries[s.WarmupCount:] }

// At returns the descriptor at a sequence index.
func (s *Schedule) At(index int) (Descriptor, error) {
	if index < 0 || index >= len(s.Entries) {
		return Descriptor{}, fmt.Errorf("%w: index %d of %d", ErrScheduleExhausted, index, len(s.Entries))
	}
	return s.Entries[index], nil
}

// IsWarmupIndex reports whether a sequence index falls in the warm-up prefix.
func (s *Schedule) IsWarmupIndex(index int) bool {
	return index >= 0 && index < s.WarmupCount
}

// Generator expands the catalog into per-variant schedules and caches them
// for the process lifetime. Callers must not regenerate per trial.
type Generator struct {
	cat    *catalog.Catalog
	timing Timing

	mu    sync.Mutex
	cache map[catalog.Variant]*Schedule
}

// NewGenerator wires a generator over a loaded catalog.
func NewGenerator(cat *catalog.Catalog, timing Timing) *Generator {
	return &Generator{
		cat:    cat,
		timing: timing,
		cache:  make(map[catalog.Variant]*Schedule),
	}
}

// ForVariant returns the schedule for a variant, generating it on first use.
// The returned schedule is referentially stable across calls.
func (g *Generator) ForVariant(v catalog.Variant) (*Schedule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.cache[v]; ok {
		return s, nil
	}
	bank, err := g.cat.Bank(v)
	if err != nil {
		return nil, err
	}
	s := g.generate(v, bank)
	g.cache[v] = s
	return s, nil
}

func (g *Generator) generate(v catalog.Variant, bank *catalog.Bank) *Schedule {
	s := &Schedule{Variant: v, bank: bank, warmup: g.cat.Warmup()}

	emit := func(d Descriptor) {
		d.SequenceIndex = len(s.Entries)
		s.Entries = append(s.Entries, d)
	}

	// Warm-up prefix: one guess+feedback exposure per warm-up word, block 0.
	for _, w := range g.cat.Warmup().Words {
		emit(Descriptor{
			WordID:          w.ID,
			ExposureIndex:   1,
			Phase:           catalog.PhaseGuess,
			SentenceID:      w.ID, // warm-up words carry exactly one sentence
			DurationSeconds: g.timing.GuessSeconds,
			IsWarmup:        true,
		})
		emit(Descriptor{
			WordID:          w.ID,
			ExposureIndex:   1,
			Phase:           catalog.PhaseFeedback,
			SentenceID:      w.ID,
			DurationSeconds: g.timing.FeedbackSeconds,
			IsWarmup:        true,
		})
	}
	s.WarmupCount = len(s.Entries)

	// Main block. Block b runs massed word b through all five exposures,
	// then one exposure for the rotating spaced half-pool: odd blocks take
	// spaced slots 1-5 (ids 11..15), even blocks slots 6-10 (ids 16..20),
	// so each spaced word accumulates its five exposures two blocks apart.
	for block := 1; block <= BlockCount; block++ {
		massedID := block
		for exposure := 1; exposure <= ExposuresPerItem; exposure++ {
			g.emitExposure(emit, massedID, exposure, block)
		}

		spacedExposure := (block + 1) / 2
		first := catalog.MassedWordCount + 1
		if block%2 == 0 {
			first += catalog.SpacedWordCount / 2
		}
		for i := 0; i < catalog.SpacedWordCount/2; i++ {
			g.emitExposure(emit, first+i, spacedExposure, block)
		}
	}

	return s
}

// emitExposure appends the entries for one (word, exposure) unit: a
// guess+feedback pair for exposures 1-4, a single review entry for exposure 5.
func (g *Generator) emitExposure(emit func(Descriptor), wordID, exposure, block int) {
	if exposure < ExposuresPerItem {
		sentenceID := (wordID-1)*catalog.SentencesPerWord + exposure
		emit(Descriptor{
			WordID:          wordID,
			ExposureIndex:   exposure,
			Phase:           catalog.PhaseGuess,
			SentenceID:      sentenceID,
			DurationSeconds: g.timing.GuessSeconds,
			BlockID:         block,
		})
		emit(Descriptor{
			WordID:          wordID,
			ExposureIndex:   exposure,
			Phase:           catalog.PhaseFeedback,
			SentenceID:      sentenceID,
			DurationSeconds: g.timing.FeedbackSeconds,
			BlockID:         block,
		})
		return
	}
	emit(Descriptor{
		WordID:          wordID,
		ExposureIndex:   ExposuresPerItem,
		Phase:           catalog.PhaseReview,
		DurationSeconds: g.timing.ReviewSeconds,
		BlockID:         block,
	})
}
