package handlers

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"lexlab/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteResponsesCSV(t *testing.T) {
	shown := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	sentence := "The blick caught her eye."
	answer := "a look"

	rows := []models.Response{
		{
			ID:             "r-1",
			ParticipantID:  "p-1",
			SequenceIndex:  10,
			WordID:         1,
			Condition:      "massed",
			ConditionLabel: "massed1",
			ExposureIndex:  1,
			Phase:          "guess",
			SentenceText:   &sentence,
			AnswerText:     &answer,
			CorrectAnswer:  "a quick look；一瞥",
			IsTimedOut:     false,
			ShownAt:        shown,
			SubmittedAt:    shown.Add(2500 * time.Millisecond),
			ResponseTimeMs: 2500,
		},
		{
			ID:             "r-2",
			ParticipantID:  "p-1",
			SequenceIndex:  18,
			WordID:         1,
			Condition:      "massed",
			ConditionLabel: "massed1",
			ExposureIndex:  5,
			Phase:          "review",
			CorrectAnswer:  "a quick look；一瞥",
			IsTimedOut:     true,
			ShownAt:        shown,
			SubmittedAt:    shown.Add(15 * time.Second),
			ResponseTimeMs: 15000,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeResponsesCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, responseCSVHeader, records[0])

	first := records[1]
	assert.Equal(t, "r-1", first[0])
	assert.Equal(t, "p-1", first[1])
	assert.Equal(t, "10", first[2])
	assert.Equal(t, "1", first[3])
	assert.Equal(t, "massed", first[4])
	assert.Equal(t, "massed1", first[5])
	assert.Equal(t, "1", first[6])
	assert.Equal(t, "guess", first[7])
	assert.Equal(t, sentence, first[8])
	assert.Equal(t, answer, first[9])
	assert.Equal(t, "a quick look；一瞥", first[10])
	assert.Equal(t, "false", first[11])
	assert.Equal(t, "2026-03-02T10:00:00Z", first[12])
	assert.Equal(t, "2026-03-02T10:00:02.5Z", first[13])
	assert.Equal(t, "2500", first[14])

	// Nil sentence and answer render as empty cells, not "nil" markers.
	second := records[2]
	assert.Equal(t, "", second[8])
	assert.Equal(t, "", second[9])
	assert.Equal(t, "true", second[11])
	assert.Equal(t, "15000", second[14])
}

func TestWriteResponsesCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResponsesCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, responseCSVHeader, records[0])
}
