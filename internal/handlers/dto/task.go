package dto

import "github.com/google/uuid"

// MoveTaskRequest с room_id = null отвязывает задачу от комнаты
type MoveTaskRequest struct {
	RoomID *uuid.UUID `json:"room_id"`
}

type CommentRequest struct {
	Content string `json:"content"`
}

// TypingPayload передаётся в кадре typing по WebSocket
type TypingPayload struct {
	Typing bool `json:"typing"`
}
