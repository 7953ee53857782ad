package router

import (
	"net/http"

	"lexlab/internal/handlers"
	"lexlab/internal/models"
	"lexlab/internal/repository"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ParticipantLoader checks for a participant ID in the session. If found, it
// loads the session row from the database and adds it to the context. This
// ensures we don't have "zombie" cookies for sessions that no longer exist.
func ParticipantLoader(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, ok := session.Get(handlers.ParticipantSessionKey).(string)
		if !ok {
			// No participant in session, proceed as a guest.
			c.Next()
			return
		}

		p, err := repository.GetSessionByID(c.Request.Context(), id)
		if err != nil {
			// The cookie points at a session that was deleted or never
			// existed. Clear it and treat the request as a guest.
			log.Debug("Dropping stale participant cookie", zap.String("participantID", id), zap.Error(err))
			session.Clear()
			session.Options(sessions.Options{Path: "/", MaxAge: -1})
			session.Save()
			c.Next()
			return
		}

		c.Set(handlers.ParticipantContextKey, p)
		c.Next()
	}
}

// ParticipantRequired gates the trial surface on a loaded participant with an
// open session.
func ParticipantRequired(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(handlers.ParticipantContextKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
			return
		}
		p, ok := v.(*models.Participant)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
			return
		}
		if p.Status == models.StatusAbandoned {
			log.Info("Rejecting request against abandoned session", zap.String("code", p.Code))
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "session was abandoned, log in again"})
			return
		}
		c.Next()
	}
}

// ResearcherRequired gates the export and results surface.
func ResearcherRequired(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if ok, _ := session.Get(handlers.ResearcherSessionKey).(bool); !ok {
			log.Debug("Unauthenticated research request", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "researcher login required"})
			return
		}
		c.Next()
	}
}
