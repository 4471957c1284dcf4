package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"roomchat/backend/internal/chat"

	"github.com/gin-gonic/gin"
)

// statusFor maps chat failure kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrInvalidOperation), errors.Is(err, chat.ErrInvalidFrame):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func parseID(raw, name string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", chat.ErrInvalidOperation, name, raw)
	}
	return uint(id), nil
}
