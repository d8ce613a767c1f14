package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Room struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:50;not null" json:"name"`
	Description string    `gorm:"size:500" json:"description"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	AdminID     uuid.UUID `gorm:"type:uuid;not null;index" json:"admin_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Связи
	Admin    User         `gorm:"foreignKey:AdminID" json:"admin"`
	Members  []RoomMember `gorm:"foreignKey:RoomID" json:"members"`
	Tasks    []Task       `gorm:"foreignKey:RoomID" json:"-"`
	Comments []Comment    `gorm:"foreignKey:RoomID" json:"-"`
}

func (r *Room) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// MemberIDs returns member ids in membership order.
func (r *Room) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.Members))
	for i, m := range r.Members {
		ids[i] = m.UserID
	}
	return ids
}

func (r *Room) HasMember(userID uuid.UUID) bool {
	for _, m := range r.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// RoomMember is one row of the room <-> user mirror. Room.Members and the
// user's room list are both read from this table; ID order is membership order.
type RoomMember struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_member" json:"room_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_member;index" json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`

	User User `gorm:"foreignKey:UserID" json:"user"`
}
