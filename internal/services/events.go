package services

import (
	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/database"
	"github.com/thereayou/taskrooms/internal/notify"
)

const (
	EventRoomCreated           = "room:created"
	EventRoomUpdated           = "room:updated"
	EventRoomDeleted           = "room:deleted"
	EventRoomMemberAdded       = "room:member_added"
	EventRoomMemberRemoved     = "room:member_removed"
	EventRoomOwnershipTransfer = "room:ownership_transferred"
	EventTaskCreated           = "task:created"
	EventTaskUpdated           = "task:updated"
	EventTaskDeleted           = "task:deleted"
	EventCommentCreated        = "comment:created"
	EventCommentUpdated        = "comment:updated"
	EventCommentDeleted        = "comment:deleted"
)

type RoomDeletedPayload struct {
	RoomID uuid.UUID `json:"room_id"`
	database.CascadeResult
}

type MemberRemovedPayload struct {
	RoomID uuid.UUID `json:"room_id"`
	UserID uuid.UUID `json:"user_id"`
}

type TaskDeletedPayload struct {
	TaskID          uuid.UUID  `json:"task_id"`
	RoomID          *uuid.UUID `json:"room_id,omitempty"`
	DeletedComments int64      `json:"deleted_comments"`
}

type CommentDeletedPayload struct {
	CommentID uuid.UUID  `json:"comment_id"`
	TaskID    *uuid.UUID `json:"task_id,omitempty"`
	RoomID    *uuid.UUID `json:"room_id,omitempty"`
}

// emitTo sends one targeted event per distinct user.
func emitTo(sink notify.Sink, event string, payload any, userIDs []uuid.UUID) {
	for _, id := range dedupeIDs(userIDs) {
		target := id
		sink.Emit(event, payload, &target)
	}
}
