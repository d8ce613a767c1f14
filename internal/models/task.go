package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCanceled   TaskStatus = "canceled"
)

type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

type Task struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Title          string       `gorm:"size:100;not null" json:"title"`
	Description    string       `gorm:"size:1000" json:"description"`
	Status         TaskStatus   `gorm:"not null;default:'pending'" json:"status"`
	Priority       TaskPriority `gorm:"not null;default:'medium'" json:"priority"`
	DueDate        *time.Time   `json:"due_date,omitempty"`
	EstimatedHours float64      `json:"estimated_hours"`
	Progress       int          `gorm:"not null;default:0" json:"progress"`
	AuthorID       uuid.UUID    `gorm:"type:uuid;not null;index" json:"author_id"`
	RoomID         *uuid.UUID   `gorm:"type:uuid;index" json:"room_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`

	// Связи
	Author    User      `gorm:"foreignKey:AuthorID" json:"author"`
	Assignees []User    `gorm:"many2many:task_assignees" json:"assignees"`
	Comments  []Comment `gorm:"foreignKey:TaskID" json:"-"`
}

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *Task) IsAssignee(userID uuid.UUID) bool {
	for _, u := range t.Assignees {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// TaskAssignee is the join row behind Task.Assignees.
type TaskAssignee struct {
	TaskID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
}
