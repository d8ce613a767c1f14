package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment attaches to a task, a room, or both.
type Comment struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Content   string     `gorm:"size:1000;not null" json:"content"`
	AuthorID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"author_id"`
	TaskID    *uuid.UUID `gorm:"type:uuid;index" json:"task_id,omitempty"`
	RoomID    *uuid.UUID `gorm:"type:uuid;index" json:"room_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`

	// Связи
	Author User `gorm:"foreignKey:AuthorID" json:"author"`
}

func (c *Comment) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
