package models

import "time"

// Member is the read-only view of an account owned by the member service.
// The chat core never creates members on its own; it resolves the
// authenticated identity (the e-mail carried as the JWT subject) to a Member.
type Member struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Email     string    `gorm:"type:text;not null;uniqueIndex" json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
