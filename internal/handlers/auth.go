package handlers

import (
	"errors"
	"net/http"

	"lexlab/internal/config"
	"lexlab/internal/repository"
	"lexlab/internal/runner"
	"lexlab/internal/schedule"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Session keys shared with the router middleware.
const (
	ParticipantSessionKey = "participantID"
	ResearcherSessionKey  = "researcher"
)

type AuthHandler struct {
	log     *zap.Logger
	manager *runner.Manager
}

func NewAuthHandler(log *zap.Logger, manager *runner.Manager) *AuthHandler {
	return &AuthHandler{log: log, manager: manager}
}

type loginRequest struct {
	Code string `json:"code" binding:"required"`
}

// Login assigns the participant's variant, opens or resumes their session,
// and spins up the trial runner at the stored cursor.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant code is required"})
		return
	}

	variant, err := schedule.AssignVariant(req.Code)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidIdentifier) {
			// User-correctable: shown inline, nothing to retry server-side.
			c.JSON(http.StatusBadRequest, gin.H{"error": "participant code must be between 001 and 040"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not assign test variant"})
		return
	}

	p, err := repository.FindInProgressSession(c.Request.Context(), req.Code)
	if err != nil {
		h.log.Error("Failed to look up session", zap.String("code", req.Code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not look up session"})
		return
	}
	resumed := p != nil
	if !resumed {
		p, err = repository.CreateSession(c.Request.Context(), req.Code, string(variant))
		if err != nil {
			h.log.Error("Failed to create session", zap.String("code", req.Code), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
			return
		}
	}

	if _, err := h.manager.Start(c.Request.Context(), p); err != nil {
		h.log.Error("Failed to start trial runner", zap.String("participant", p.Code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start experiment"})
		return
	}

	session := sessions.Default(c)
	session.Set(ParticipantSessionKey, p.ID)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save session"})
		return
	}

	h.log.Info("Participant logged in",
		zap.String("code", p.Code),
		zap.String("variant", p.AssignedVariant),
		zap.Bool("resumed", resumed),
		zap.Int("cursor", p.CurrentSequenceIndex),
	)

	c.JSON(http.StatusOK, gin.H{
		"participantId":   p.ID,
		"code":            p.Code,
		"variant":         p.AssignedVariant,
		"sequenceIndex":   p.CurrentSequenceIndex,
		"status":          p.Status,
		"warmupCompleted": p.WarmupCompleted,
		"resumed":         resumed,
	})
}

// Logout tears down the live runner (cancelling any armed countdown) and
// clears the cookie session.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	if id, ok := session.Get(ParticipantSessionKey).(string); ok {
		h.manager.Close(id)
	}
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not clear session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type researcherLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// ResearcherLogin gates the export/results surface behind the configured
// password hash.
func (h *AuthHandler) ResearcherLogin(c *gin.Context) {
	var req researcherLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	hash := config.Conf.Server.ResearcherPasswordHash
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	session := sessions.Default(c)
	session.Set(ResearcherSessionKey, true)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
