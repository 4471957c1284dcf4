package models

import (
	"fmt"
	"time"
)

// Room is a chat channel. Group rooms hold any number of participants,
// private rooms hold exactly two for their whole lifetime.
type Room struct {
	ID      uint   `gorm:"primaryKey"`
	Name    string `gorm:"type:text;not null"`
	IsGroup bool   `gorm:"not null;index"`
	// PairKey is set only for private rooms and is unique, so a given
	// unordered pair of members can never own two private rooms.
	PairKey   *string `gorm:"type:text;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PrivatePairKey returns the order-independent key of a member pair.
func PrivatePairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// Participant binds a member to a room. (RoomID, MemberID) is unique.
type Participant struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    uint   `gorm:"not null;uniqueIndex:idx_participant_room_member"`
	MemberID  uint   `gorm:"not null;uniqueIndex:idx_participant_room_member;index"`
	Room      Room   `gorm:"foreignKey:RoomID"`
	Member    Member `gorm:"foreignKey:MemberID"`
	CreatedAt time.Time
}
