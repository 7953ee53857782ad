package handlers

import (
	"math"
	"net/http"
	"time"

	"lexlab/internal/catalog"
	"lexlab/internal/models"
	"lexlab/internal/runner"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TrialHandler struct {
	log     *zap.Logger
	manager *runner.Manager
}

func NewTrialHandler(log *zap.Logger, manager *runner.Manager) *TrialHandler {
	return &TrialHandler{log: log, manager: manager}
}

// activeRunner resolves the live runner for the logged-in participant,
// rebuilding it from the stored cursor after a server restart.
func (h *TrialHandler) activeRunner(c *gin.Context) (*runner.Runner, *models.Participant, bool) {
	p := currentParticipant(c)
	if p == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return nil, nil, false
	}
	if r, ok := h.manager.Get(p.ID); ok {
		return r, p, true
	}
	r, err := h.manager.Start(c.Request.Context(), p)
	if err != nil {
		h.log.Error("Failed to restore trial runner", zap.String("participant", p.Code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not restore experiment state"})
		return nil, nil, false
	}
	return r, p, true
}

// Current reports the trial the participant should be looking at, with the
// remaining countdown for the phase.
func (h *TrialHandler) Current(c *gin.Context) {
	r, p, ok := h.activeRunner(c)
	if !ok {
		return
	}
	snap := r.Snapshot()
	if snap.Completed {
		c.JSON(http.StatusOK, gin.H{"completed": true})
		return
	}
	c.JSON(http.StatusOK, trialViewJSON(snap, p.Code))
}

// submitRequest and expiredRequest both carry the (sequenceIndex, phase) the
// client was looking at, so a report delayed past the server-side timer hits
// the phase it was meant for, or nothing.
type submitRequest struct {
	SequenceIndex *int   `json:"sequenceIndex" binding:"required"`
	Phase         string `json:"phase" binding:"required"`
	Answer        string `json:"answer"`
}

// Submit ends the identified guess phase with the typed answer. A submit that
// loses the race against the countdown is silently absorbed by the runner.
func (h *TrialHandler) Submit(c *gin.Context) {
	r, _, ok := h.activeRunner(c)
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission"})
		return
	}
	if err := r.SubmitAnswer(c.Request.Context(), *req.SequenceIndex, catalog.Phase(req.Phase), req.Answer); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "session is no longer active"})
		return
	}
	h.Current(c)
}

type expiredRequest struct {
	SequenceIndex *int   `json:"sequenceIndex" binding:"required"`
	Phase         string `json:"phase" binding:"required"`
	// Partial answer typed before the client-side countdown hit zero.
	Answer *string `json:"answer"`
}

// Expired handles a client-reported countdown expiry. The server's own timer
// may already have ended that phase and moved on; a late report is dropped
// instead of cutting the next phase short.
func (h *TrialHandler) Expired(c *gin.Context) {
	r, _, ok := h.activeRunner(c)
	if !ok {
		return
	}
	var req expiredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiry report"})
		return
	}
	if err := r.CountdownExpired(c.Request.Context(), *req.SequenceIndex, catalog.Phase(req.Phase), req.Answer); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "session is no longer active"})
		return
	}
	h.Current(c)
}

// Log echoes the session's response log, warm-up answers included, for the
// participant-facing recap.
func (h *TrialHandler) Log(c *gin.Context) {
	r, _, ok := h.activeRunner(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": r.ResponseLog()})
}

// trialViewJSON shapes a snapshot for the presentation layer. The correct
// meaning is withheld while the participant is still guessing.
func trialViewJSON(snap runner.Snapshot, code string) gin.H {
	view := snap.View
	remaining := int(math.Ceil(time.Until(snap.Deadline).Seconds()))
	if remaining < 0 {
		remaining = 0
	}

	body := gin.H{
		"completed":        false,
		"participant":      code,
		"sequenceIndex":    view.SequenceIndex,
		"phase":            view.Phase,
		"state":            snap.State,
		"exposureIndex":    view.ExposureIndex,
		"blockId":          view.BlockID,
		"isWarmup":         view.IsWarmup,
		"durationSeconds":  view.DurationSeconds,
		"secondsRemaining": remaining,
		"word":             view.Word.WordText,
		"progress": gin.H{
			"current": view.SequenceIndex + 1,
			"total":   snap.Total,
		},
	}

	if view.Phase != catalog.PhaseGuess {
		body["correctAnswer"] = catalog.CorrectAnswer(view.Word)
	}
	if view.Sentence != nil {
		body["sentence"] = view.Sentence.Text
	}
	if len(view.Sentences) > 0 {
		texts := make([]string, len(view.Sentences))
		for i, s := range view.Sentences {
			texts[i] = s.Text
		}
		body["sentences"] = texts
	}
	return body
}
