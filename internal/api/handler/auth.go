package handler

import (
	"net/http"

	"roomchat/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// RequireIdentity verifies the bearer token and stores the member identity
// in the gin context.
func (h *Handler) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
			return
		}

		identity, err := h.Verifier.Verify(c.Request.Context(), token)
		if err != nil {
			h.log.Debug("rejected bearer token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) string {
	return c.GetString(identityKey)
}
