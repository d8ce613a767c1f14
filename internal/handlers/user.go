package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/taskrooms/internal/database"
	"github.com/thereayou/taskrooms/internal/handlers/dto"
	"github.com/thereayou/taskrooms/internal/models"
	"github.com/thereayou/taskrooms/internal/services"
	"github.com/thereayou/taskrooms/internal/websocket"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

type UserHandler struct {
	db    *database.Database
	rooms *services.RoomService
	hub   *websocket.Hub
}

func NewUserHandler(db *database.Database, rooms *services.RoomService, hub *websocket.Hub) *UserHandler {
	return &UserHandler{db: db, rooms: rooms, hub: hub}
}

// GetMe возвращает информацию о текущем пользователе
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.db.GetUser(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, notFound(err, services.ErrUserNotFound))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"email":        user.Email,
		"avatar_url":   user.AvatarURL,
		"created_at":   user.CreatedAt,
		"last_seen_at": user.LastSeenAt,
	})
}

// UpdateMe обновляет информацию текущего пользователя
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req dto.UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	user, err := h.db.GetUser(ctx, currentUser(c))
	if err != nil {
		writeError(c, notFound(err, services.ErrUserNotFound))
		return
	}

	// Обновляем только переданные поля
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username != "" && username != user.Username {
			if _, err := h.db.FindUserByUsername(ctx, username); err == nil {
				writeError(c, services.ErrEmailTaken)
				return
			} else if !database.IsNotFound(err) {
				writeError(c, err)
				return
			}
			user.Username = username
		}
	}
	if req.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}

	if err := h.db.UpdateUser(ctx, user); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"avatar_url": user.AvatarURL,
	})
}

// GetUser возвращает публичную информацию о пользователе по ID
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	user, err := h.db.GetUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, notFound(err, services.ErrUserNotFound))
		return
	}

	info := userInfo(user)
	c.JSON(http.StatusOK, gin.H{
		"id":           info.ID,
		"username":     info.Username,
		"avatar_url":   info.AvatarURL,
		"last_seen_at": user.LastSeenAt,
		"online":       h.hub.IsOnline(user.ID),
	})
}

// SearchUsers поиск пользователей по username
func (h *UserHandler) SearchUsers(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required", "code": services.ErrValidation.Code})
		return
	}

	limit := defaultSearchLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxSearchLimit {
			limit = parsed
		}
	}

	users, err := h.db.SearchUsersByUsername(c.Request.Context(), query, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]dto.UserInfo, len(users))
	for i := range users {
		result[i] = userInfo(&users[i])
	}

	c.JSON(http.StatusOK, gin.H{"users": result})
}

// GetMyRooms список комнат пользователя с числом участников онлайн
func (h *UserHandler) GetMyRooms(c *gin.Context) {
	rooms, err := h.rooms.ListUserRooms(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]gin.H, len(rooms))
	for i := range rooms {
		result[i] = formatRoomResponse(&rooms[i])
		result[i]["online_count"] = len(h.hub.GetRoomUsers(rooms[i].ID))
	}

	c.JSON(http.StatusOK, gin.H{"rooms": result})
}

func userInfo(u *models.User) dto.UserInfo {
	return dto.UserInfo{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

func notFound(err error, domainErr *services.Error) error {
	if database.IsNotFound(err) {
		return domainErr
	}
	return err
}
