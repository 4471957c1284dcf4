package chat

// RoomSummary describes a room in listings.
type RoomSummary struct {
	RoomID   uint   `json:"roomId"`
	RoomName string `json:"roomName"`
}

// HistoryEntry is one message of a room history.
type HistoryEntry struct {
	RoomID      uint   `json:"roomId"`
	Message     string `json:"message"`
	SenderEmail string `json:"senderEmail"`
}

// MyRoom is a room the caller participates in, with the caller's unread count.
type MyRoom struct {
	RoomID      uint   `json:"roomId"`
	RoomName    string `json:"roomName"`
	IsGroupChat bool   `json:"isGroupChat"`
	UnreadCount int64  `json:"unReadCount"`
}
