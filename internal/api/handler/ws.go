package handler

import (
	"roomchat/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

// ServeWebSocket opens a live session for ?roomId= once the caller is
// authenticated and participates in the room. The token comes from ?token=
// (browsers cannot set headers on upgrades) or an Authorization header.
// Every check runs before the upgrade, so a refused connection is a plain
// HTTP error and nothing is registered.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = auth.BearerToken(c.GetHeader("Authorization"))
	}

	roomID, identity, err := h.Hub.Authorize(c.Request.Context(), c.Query("roomId"), token)
	if err != nil {
		h.respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		h.log.Warn("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	h.Hub.NewWebSocketSession(conn, roomID, identity).Run()
}
