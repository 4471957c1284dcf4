package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CreateGroupRoom(c *gin.Context) {
	room, err := h.Chat.CreateGroupRoom(c.Request.Context(), c.Query("roomName"), identityFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) ListGroupRooms(c *gin.Context) {
	rooms, err := h.Chat.ListGroupRooms(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handler) JoinGroupRoom(c *gin.Context) {
	roomID, err := parseID(c.Param("roomId"), "roomId")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.Chat.JoinGroupRoom(c.Request.Context(), roomID, identityFrom(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) LeaveGroupRoom(c *gin.Context) {
	roomID, err := parseID(c.Param("roomId"), "roomId")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.Chat.LeaveGroupRoom(c.Request.Context(), roomID, identityFrom(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// GetOrCreatePrivateRoom answers with the bare room id.
func (h *Handler) GetOrCreatePrivateRoom(c *gin.Context) {
	otherID, err := parseID(c.Query("other_member_id"), "other_member_id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	roomID, err := h.Chat.GetOrCreatePrivateRoom(c.Request.Context(), identityFrom(c), otherID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomID)
}

func (h *Handler) GetHistory(c *gin.Context) {
	roomID, err := parseID(c.Param("roomId"), "roomId")
	if err != nil {
		h.respondError(c, err)
		return
	}
	history, err := h.Chat.GetHistory(c.Request.Context(), roomID, identityFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) MarkRoomRead(c *gin.Context) {
	roomID, err := parseID(c.Param("roomId"), "roomId")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.Chat.MarkRoomRead(c.Request.Context(), roomID, identityFrom(c)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) ListMyRooms(c *gin.Context) {
	rooms, err := h.Chat.ListMyRooms(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}
