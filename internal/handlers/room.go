package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/taskrooms/internal/handlers/dto"
	"github.com/thereayou/taskrooms/internal/models"
	"github.com/thereayou/taskrooms/internal/services"
	"github.com/thereayou/taskrooms/internal/websocket"
)

type RoomHandler struct {
	rooms *services.RoomService
	hub   *websocket.Hub
}

func NewRoomHandler(rooms *services.RoomService, hub *websocket.Hub) *RoomHandler {
	return &RoomHandler{rooms: rooms, hub: hub}
}

// CreateRoom создает комнату, создатель становится админом
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), currentUser(c), services.CreateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		MemberIDs:   req.Members,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, formatRoomResponse(room))
}

// GetMyRooms получает список комнат пользователя
func (h *RoomHandler) GetMyRooms(c *gin.Context) {
	rooms, err := h.rooms.ListUserRooms(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]gin.H, len(rooms))
	for i := range rooms {
		result[i] = formatRoomResponse(&rooms[i])
	}
	c.JSON(http.StatusOK, gin.H{"rooms": result})
}

// GetRoom получает информацию о комнате, доступно только участникам
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), roomID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}

	response := formatRoomResponse(room)
	response["online_users"] = h.hub.GetRoomUsers(room.ID)
	c.JSON(http.StatusOK, response)
}

// UpdateRoom обновляет name, description и is_active
func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var updates map[string]any
	if err := c.ShouldBindJSON(&updates); err != nil {
		badRequest(c, err)
		return
	}

	room, err := h.rooms.UpdateRoomFields(c.Request.Context(), roomID, updates, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, formatRoomResponse(room))
}

func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	result, err := h.rooms.DeleteRoom(c.Request.Context(), roomID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RoomHandler) AddMember(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req dto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	room, err := h.rooms.AddMember(c.Request.Context(), roomID, req.UserID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, formatRoomResponse(room))
}

// RemoveMember удаляет участника; если он был последним, комната удаляется
func (h *RoomHandler) RemoveMember(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	targetID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	result, err := h.rooms.RemoveMember(c.Request.Context(), roomID, targetID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}

	if result.Deleted {
		c.JSON(http.StatusOK, gin.H{
			"room":             nil,
			"deleted":          true,
			"deleted_tasks":    result.Cascade.DeletedTasks,
			"deleted_comments": result.Cascade.DeletedComments,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": formatRoomResponse(result.Room), "deleted": false})
}

func (h *RoomHandler) TransferOwnership(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	room, err := h.rooms.TransferOwnership(c.Request.Context(), roomID, req.NewAdminID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, formatRoomResponse(room))
}

func (h *RoomHandler) ToggleActive(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	room, err := h.rooms.ToggleActive(c.Request.Context(), roomID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, formatRoomResponse(room))
}

// formatRoomResponse форматирует ответ для комнаты
func formatRoomResponse(room *models.Room) gin.H {
	members := make([]dto.UserInfo, len(room.Members))
	for i := range room.Members {
		members[i] = userInfo(&room.Members[i].User)
	}

	return gin.H{
		"id":          room.ID,
		"name":        room.Name,
		"description": room.Description,
		"is_active":   room.IsActive,
		"admin":       userInfo(&room.Admin),
		"members":     members,
		"created_at":  room.CreatedAt,
		"updated_at":  room.UpdatedAt,
	}
}
