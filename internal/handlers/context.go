package handlers

import (
	"lexlab/internal/models"

	"github.com/gin-gonic/gin"
)

// ParticipantContextKey is where the router middleware stashes the loaded
// participant for downstream handlers.
const ParticipantContextKey = "participant"

func currentParticipant(c *gin.Context) *models.Participant {
	v, ok := c.Get(ParticipantContextKey)
	if !ok {
		return nil
	}
	p, ok := v.(*models.Participant)
	if !ok {
		return nil
	}
	return p
}
