package dto

import "github.com/google/uuid"

type CreateRoomRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Members     []uuid.UUID `json:"members"`
}

type AddMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type TransferRequest struct {
	NewAdminID uuid.UUID `json:"new_admin_id" binding:"required"`
}

// UserInfo публичная информация о пользователе
type UserInfo struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}
