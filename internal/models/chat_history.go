package models

import "time"

// Message is an immutable chat message saved to a room.
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    uint      `gorm:"not null;index:idx_room_msg"`
	SenderID  uint      `gorm:"not null"`
	Sender    Member    `gorm:"foreignKey:SenderID"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_room_msg"`
}

// ReadStatus marks whether one participant has read one message.
// Rows are created for the participants present when the message was saved.
type ReadStatus struct {
	ID        uint `gorm:"primaryKey"`
	RoomID    uint `gorm:"not null;index:idx_read_room_member"`
	MemberID  uint `gorm:"not null;index:idx_read_room_member"`
	MessageID uint `gorm:"not null;index"`
	IsRead    bool `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// All returns every model managed by the chat core, in migration order.
func All() []any {
	return []any{&Member{}, &Room{}, &Participant{}, &Message{}, &ReadStatus{}}
}
