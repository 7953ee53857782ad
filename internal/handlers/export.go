package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"time"

	"lexlab/internal/models"
	"lexlab/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ExportHandler struct {
	log *zap.Logger
}

func NewExportHandler(log *zap.Logger) *ExportHandler {
	return &ExportHandler{log: log}
}

// responseCSVHeader fixes the export column order. Analysis scripts key on
// these positions; do not reorder.
var responseCSVHeader = []string{
	"id",
	"participant_id",
	"sequence_index",
	"item_id",
	"condition",
	"condition_label",
	"exposure_index",
	"phase",
	"stimulus_text",
	"answer_text",
	"correct_answer",
	"is_timed_out",
	"shown_at",
	"submitted_at",
	"response_time_ms",
}

// CSV streams every response record as delimited text.
func (h *ExportHandler) CSV(c *gin.Context) {
	rows, err := repository.ListAllResponses(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to load responses for export", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load responses"})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="responses-%s.csv"`, time.Now().Format("2006-01-02")))

	if err := writeResponsesCSV(c.Writer, rows); err != nil {
		h.log.Error("Failed to write CSV export", zap.Error(err))
	}
}

// JSON dumps the same records as structured text, one object per record, in
// the same field order as the CSV columns.
func (h *ExportHandler) JSON(c *gin.Context) {
	rows, err := repository.ListAllResponses(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to load responses for export", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load responses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "responses": rows})
}

func writeResponsesCSV(w io.Writer, rows []models.Response) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(responseCSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.ID,
			r.ParticipantID,
			fmt.Sprintf("%d", r.SequenceIndex),
			fmt.Sprintf("%d", r.WordID),
			r.Condition,
			r.ConditionLabel,
			fmt.Sprintf("%d", r.ExposureIndex),
			r.Phase,
			stringOrEmpty(r.SentenceText),
			stringOrEmpty(r.AnswerText),
			r.CorrectAnswer,
			fmt.Sprintf("%t", r.IsTimedOut),
			r.ShownAt.UTC().Format(time.RFC3339Nano),
			r.SubmittedAt.UTC().Format(time.RFC3339Nano),
			fmt.Sprintf("%d", r.ResponseTimeMs),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
