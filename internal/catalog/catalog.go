package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Condition is the temporal distribution pattern of an item's exposures.
type Condition string

const (
	ConditionMassed Condition = "massed" // all five exposures inside one block
	ConditionSpaced Condition = "spaced" // one exposure per appearance, spread over blocks
)

// Phase is the sub-step within an exposure.
type Phase string

const (
	PhaseGuess    Phase = "guess"
	PhaseFeedback Phase = "feedback"
	PhaseReview   Phase = "review"
)

// Variant is one of the fixed test-content assignments.
type Variant string

const (
	VariantTest1 Variant = "test1"
	VariantTest2 Variant = "test2"
	VariantTest3 Variant = "test3"
	VariantTest4 Variant = "test4"
)

// Variants lists all assignable variants in band order.
var Variants = []Variant{VariantTest1, VariantTest2, VariantTest3, VariantTest4}

const (
	// SentencesPerWord is how many stimulus sentences each main-block word carries.
	SentencesPerWord = 4

	// MassedWordCount and SpacedWordCount size the two condition groups per variant.
	MassedWordCount = 10
	SpacedWordCount = 10
)

// Word is one vocabulary item. Massed words occupy ids 1..10, spaced words 11..20.
type Word struct {
	ID               int
	WordText         string
	CorrectMeaning   string
	LocalizedMeaning string
	Condition        Condition
	ConditionSlot    int
	Theme            string
}

// Sentence is a single stimulus text embedding its word's surface form once.
type Sentence struct {
	ID            int
	WordID        int
	SentenceIndex int
	Text          string
}

// ConditionLabel renders a word's condition tag, e.g. "massed3" or "spaced7".
func ConditionLabel(w Word) string {
	return fmt.Sprintf("%s%d", w.Condition, w.ConditionSlot)
}

// CorrectAnswer renders the feedback answer shown to participants and stored
// on every response: English meaning and localized meaning joined by a
// full-width semicolon, matching the on-screen format.
func CorrectAnswer(w Word) string {
	return w.CorrectMeaning + "；" + w.LocalizedMeaning
}

// Bank is an immutable set of words plus their sentences with lookup maps.
type Bank struct {
	Words     []Word
	Sentences []Sentence

	wordsByID       map[int]Word
	sentencesByID   map[int]Sentence
	sentencesByWord map[int][]Sentence
}

// WordByID looks up a word.
func (b *Bank) WordByID(id int) (Word, bool) {
	w, ok := b.wordsByID[id]
	return w, ok
}

// SentenceByID looks up a single sentence.
func (b *Bank) SentenceByID(id int) (Sentence, bool) {
	s, ok := b.sentencesByID[id]
	return s, ok
}

// SentencesForWord returns a word's sentences ordered by sentence index.
func (b *Bank) SentencesForWord(wordID int) []Sentence {
	return b.sentencesByWord[wordID]
}

// Catalog holds the per-variant word banks and the warm-up bank.
// Loaded once at startup; read-only afterwards.
type Catalog struct {
	variants map[Variant]*Bank
	warmup   *Bank
}

// Bank returns the word bank for a variant.
func (c *Catalog) Bank(v Variant) (*Bank, error) {
	b, ok := c.variants[v]
	if !ok {
		return nil, fmt.Errorf("no word bank for variant %q", v)
	}
	return b, nil
}

// Warmup returns the warm-up bank.
func (c *Catalog) Warmup() *Bank {
	return c.warmup
}

// yamlWord matches the content file structure.
type yamlWord struct {
	ID               int      `yaml:"id"`
	Word             string   `yaml:"word"`
	Meaning          string   `yaml:"meaning"`
	LocalizedMeaning string   `yaml:"localized_meaning"`
	Condition        string   `yaml:"condition"`
	ConditionSlot    int      `yaml:"condition_slot"`
	Theme            string   `yaml:"theme"`
	Sentences        []string `yaml:"sentences"`
}

type yamlBank struct {
	Words []yamlWord `yaml:"words"`
}

type yamlWordsFile struct {
	Variants map[string]yamlBank `yaml:"variants"`
}

// Load reads and validates the word banks and the warm-up set.
func Load(wordsPath, warmupPath string) (*Catalog, error) {
	data, err := os.ReadFile(wordsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read word banks: %w", err)
	}
	var file yamlWordsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal word banks: %w", err)
	}

	cat := &Catalog{variants: make(map[Variant]*Bank)}
	for _, v := range Variants {
		raw, ok := file.Variants[string(v)]
		if !ok {
			return nil, fmt.Errorf("word banks missing variant %q", v)
		}
		bank, err := buildBank(raw.Words, SentencesPerWord)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", v, err)
		}
		if err := validateMainBank(bank); err != nil {
			return nil, fmt.Errorf("variant %q: %w", v, err)
		}
		cat.variants[v] = bank
	}

	wdata, err := os.ReadFile(warmupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read warm-up set: %w", err)
	}
	var wfile yamlBank
	if err := yaml.Unmarshal(wdata, &wfile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warm-up set: %w", err)
	}
	warmup, err := buildBank(wfile.Words, 1)
	if err != nil {
		return nil, fmt.Errorf("warm-up set: %w", err)
	}
	if len(warmup.Words) == 0 {
		return nil, fmt.Errorf("warm-up set is empty")
	}
	cat.warmup = warmup

	return cat, nil
}

// buildBank converts the YAML rows to an indexed bank. Sentence ids follow the
// schedule's addressing rule: (wordID-1)*perWord + sentenceIndex.
func buildBank(rows []yamlWord, perWord int) (*Bank, error) {
	bank := &Bank{
		wordsByID:       make(map[int]Word),
		sentencesByID:   make(map[int]Sentence),
		sentencesByWord: make(map[int][]Sentence),
	}
	for _, row := range rows {
		if row.ID <= 0 {
			return nil, fmt.Errorf("word %q has invalid id %d", row.Word, row.ID)
		}
		if _, dup := bank.wordsByID[row.ID]; dup {
			return nil, fmt.Errorf("duplicate word id %d", row.ID)
		}
		cond := Condition(row.Condition)
		if cond != ConditionMassed && cond != ConditionSpaced {
			return nil, fmt.Errorf("word %d has unknown condition %q", row.ID, row.Condition)
		}
		if len(row.Sentences) != perWord {
			return nil, fmt.Errorf("word %d has %d sentences, want %d", row.ID, len(row.Sentences), perWord)
		}
		w := Word{
			ID:               row.ID,
			WordText:         row.Word,
			CorrectMeaning:   row.Meaning,
			LocalizedMeaning: row.LocalizedMeaning,
			Condition:        cond,
			ConditionSlot:    row.ConditionSlot,
			Theme:            row.Theme,
		}
		bank.Words = append(bank.Words, w)
		bank.wordsByID[w.ID] = w
		for i, text := range row.Sentences {
			s := Sentence{
				ID:            (w.ID-1)*perWord + i + 1,
				WordID:        w.ID,
				SentenceIndex: i + 1,
				Text:          text,
			}
			bank.Sentences = append(bank.Sentences, s)
			bank.sentencesByID[s.ID] = s
			bank.sentencesByWord[w.ID] = append(bank.sentencesByWord[w.ID], s)
		}
	}
	sort.Slice(bank.Words, func(i, j int) bool { return bank.Words[i].ID < bank.Words[j].ID })
	return bank, nil
}

// validateMainBank enforces the main-block layout the schedule generator
// depends on: massed words at ids 1..10, spaced words at ids 11..20.
func validateMainBank(b *Bank) error {
	if len(b.Words) != MassedWordCount+SpacedWordCount {
		return fmt.Errorf("bank has %d words, want %d", len(b.Words), MassedWordCount+SpacedWordCount)
	}
	for _, w := range b.Words {
		wantCond := ConditionMassed
		if w.ID > MassedWordCount {
			wantCond = ConditionSpaced
		}
		if w.Condition != wantCond {
			return fmt.Errorf("word %d has condition %q, want %q", w.ID, w.Condition, wantCond)
		}
	}
	return nil
}
