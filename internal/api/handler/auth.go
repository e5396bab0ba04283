package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// IssueDevToken creates a verified session token for local testing.
// The optional country query parameter becomes the session's country claim.
func (h *Handler) IssueDevToken(c *gin.Context) {
	if h.Issuer == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "dev tokens disabled"})
		return
	}

	token, sessionID, err := h.Issuer.Issue(c.Query("country"))
	if err != nil {
		log.Error().Err(err).Str("module", "handler").Msg("dev token issue failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "session_id": sessionID})
}
