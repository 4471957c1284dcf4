package models

// ChatFrame is the inbound WebSocket payload. The same bytes are broadcast
// back to every session of the room, so the field names are part of the
// wire contract with the web client.
type ChatFrame struct {
	RoomID      uint   `json:"roomId" validate:"required"`
	Message     string `json:"message" validate:"required"`
	SenderEmail string `json:"senderEmail" validate:"required"`
}
