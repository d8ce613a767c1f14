package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/handlers/dto"
	"github.com/thereayou/taskrooms/internal/models"
	"github.com/thereayou/taskrooms/internal/services"
)

type CommentHandler struct {
	comments *services.CommentService
}

func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

// CreateRoomComment оставляет комментарий в комнате
func (h *CommentHandler) CreateRoomComment(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.create(c, services.CreateCommentInput{RoomID: &roomID})
}

// CreateTaskComment оставляет комментарий к задаче
func (h *CommentHandler) CreateTaskComment(c *gin.Context) {
	taskID, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.create(c, services.CreateCommentInput{TaskID: &taskID})
}

func (h *CommentHandler) create(c *gin.Context, in services.CreateCommentInput) {
	var req dto.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in.Content = req.Content

	comment, err := h.comments.CreateComment(c.Request.Context(), currentUser(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, formatCommentResponse(comment))
}

func (h *CommentHandler) ListRoomComments(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.list(c, func(userID uuid.UUID) ([]models.Comment, error) {
		return h.comments.ListRoomComments(c.Request.Context(), roomID, userID)
	})
}

func (h *CommentHandler) ListTaskComments(c *gin.Context) {
	taskID, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.list(c, func(userID uuid.UUID) ([]models.Comment, error) {
		return h.comments.ListTaskComments(c.Request.Context(), taskID, userID)
	})
}

func (h *CommentHandler) list(c *gin.Context, load func(userID uuid.UUID) ([]models.Comment, error)) {
	comments, err := load(currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]gin.H, len(comments))
	for i := range comments {
		result[i] = formatCommentResponse(&comments[i])
	}
	c.JSON(http.StatusOK, gin.H{"comments": result})
}

func (h *CommentHandler) UpdateComment(c *gin.Context) {
	commentID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req dto.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	comment, err := h.comments.UpdateComment(c.Request.Context(), commentID, req.Content, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, formatCommentResponse(comment))
}

func (h *CommentHandler) DeleteComment(c *gin.Context) {
	commentID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.comments.DeleteComment(c.Request.Context(), commentID, currentUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func formatCommentResponse(comment *models.Comment) gin.H {
	return gin.H{
		"id":         comment.ID,
		"content":    comment.Content,
		"task_id":    comment.TaskID,
		"room_id":    comment.RoomID,
		"created_at": comment.CreatedAt,
		"edited_at":  comment.EditedAt,
		"author":     userInfo(&comment.Author),
	}
}
