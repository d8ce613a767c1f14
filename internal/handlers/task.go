package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/taskrooms/internal/handlers/dto"
	"github.com/thereayou/taskrooms/internal/services"
)

type TaskHandler struct {
	tasks *services.TaskService
}

func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var in services.CreateTaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), currentUser(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// ListMyTasks задачи, где пользователь автор или исполнитель
func (h *TaskHandler) ListMyTasks(c *gin.Context) {
	tasks, err := h.tasks.ListMyTasks(c.Request.Context(), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *TaskHandler) ListRoomTasks(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	tasks, err := h.tasks.ListRoomTasks(c.Request.Context(), roomID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID, ok := paramID(c, "id")
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), taskID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	taskID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var patch services.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}

	task, err := h.tasks.UpdateTask(c.Request.Context(), taskID, patch, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// MoveTask привязывает задачу к комнате или отвязывает её
func (h *TaskHandler) MoveTask(c *gin.Context) {
	taskID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req dto.MoveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	task, err := h.tasks.MoveTask(c.Request.Context(), taskID, req.RoomID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	taskID, ok := paramID(c, "id")
	if !ok {
		return
	}

	deletedComments, err := h.tasks.DeleteTask(c.Request.Context(), taskID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "deleted_comments": deletedComments})
}
