package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/database"
	"github.com/thereayou/taskrooms/internal/models"
	"github.com/thereayou/taskrooms/internal/notify"
)

type TaskService struct {
	db   *database.Database
	sink notify.Sink
	now  func() time.Time
}

func NewTaskService(db *database.Database, sink notify.Sink) *TaskService {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &TaskService{db: db, sink: sink, now: time.Now}
}

type CreateTaskInput struct {
	Title          string              `json:"title" validate:"required,max=100"`
	Description    string              `json:"description" validate:"max=1000"`
	Status         models.TaskStatus   `json:"status" validate:"omitempty,oneof=pending in_progress done canceled"`
	Priority       models.TaskPriority `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	DueDate        *time.Time          `json:"due_date"`
	EstimatedHours float64             `json:"estimated_hours" validate:"gte=0"`
	Progress       int                 `json:"progress" validate:"gte=0,lte=100"`
	RoomID         *uuid.UUID          `json:"room_id"`
	AssigneeIDs    []uuid.UUID         `json:"assignees"`
}

// TaskPatch holds the fields UpdateTask may change. Nil means unchanged, so
// a JSON null due date is ignored; ClearDueDate removes it.
type TaskPatch struct {
	Title          *string              `json:"title" validate:"omitnil,min=1,max=100"`
	Description    *string              `json:"description" validate:"omitnil,max=1000"`
	Status         *models.TaskStatus   `json:"status" validate:"omitnil,oneof=pending in_progress done canceled"`
	Priority       *models.TaskPriority `json:"priority" validate:"omitnil,oneof=low medium high critical"`
	DueDate        *time.Time           `json:"due_date"`
	ClearDueDate   bool                 `json:"clear_due_date"`
	EstimatedHours *float64             `json:"estimated_hours" validate:"omitnil,gte=0"`
	Progress       *int                 `json:"progress" validate:"omitnil,gte=0,lte=100"`
	AssigneeIDs    *[]uuid.UUID         `json:"assignees"`
}

func (p TaskPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.DueDate == nil && !p.ClearDueDate && p.EstimatedHours == nil && p.Progress == nil && p.AssigneeIDs == nil
}

func (s *TaskService) CreateTask(ctx context.Context, authorID uuid.UUID, in CreateTaskInput) (*models.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.DueDate != nil && !in.DueDate.After(s.now()) {
		return nil, fieldError("due_date", "must be in the future")
	}
	if in.Status == "" {
		in.Status = models.TaskStatusPending
	}
	if in.Priority == "" {
		in.Priority = models.TaskPriorityMedium
	}
	assignees := dedupeIDs(in.AssigneeIDs)

	var task *models.Task
	var room *models.Room
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		if _, err := tx.GetUser(ctx, authorID); err != nil {
			return notFound(err, ErrUserNotFound)
		}

		if in.RoomID != nil {
			var err error
			room, err = tx.LockRoom(ctx, *in.RoomID)
			if err != nil {
				return notFound(err, ErrRoomNotFound)
			}
			if !room.HasMember(authorID) {
				return ErrNotRoomMember
			}
		}

		if err := checkAssignees(ctx, tx, assignees, room); err != nil {
			return err
		}

		created := &models.Task{
			Title:          in.Title,
			Description:    in.Description,
			Status:         in.Status,
			Priority:       in.Priority,
			DueDate:        in.DueDate,
			EstimatedHours: in.EstimatedHours,
			Progress:       in.Progress,
			AuthorID:       authorID,
			RoomID:         in.RoomID,
		}
		if err := tx.CreateTask(ctx, created, assignees); err != nil {
			return err
		}

		var err error
		task, err = tx.GetTask(ctx, created.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	emitTo(s.sink, EventTaskCreated, task, taskAudience(task, room))
	return task, nil
}

func (s *TaskService) GetTask(ctx context.Context, taskID, requesterID uuid.UUID) (*models.Task, error) {
	task, err := s.db.GetTask(ctx, taskID)
	if err != nil {
		return nil, notFound(err, ErrTaskNotFound)
	}
	room, err := taskRoom(ctx, s.db, task)
	if err != nil {
		return nil, err
	}
	if !canViewTask(task, room, requesterID) {
		return nil, ErrForbidden
	}
	return task, nil
}

// ListMyTasks returns the tasks the user authored or is assigned to.
func (s *TaskService) ListMyTasks(ctx context.Context, userID uuid.UUID) ([]models.Task, error) {
	return s.db.ListUserTasks(ctx, userID)
}

func (s *TaskService) ListRoomTasks(ctx context.Context, roomID, requesterID uuid.UUID) ([]models.Task, error) {
	room, err := s.db.GetRoom(ctx, roomID)
	if err != nil {
		return nil, notFound(err, ErrRoomNotFound)
	}
	if !room.HasMember(requesterID) {
		return nil, ErrNotRoomMember
	}
	return s.db.ListRoomTasks(ctx, roomID)
}

// UpdateTask applies patch. The author, an assignee or the admin of the
// task's room may edit a task.
func (s *TaskService) UpdateTask(ctx context.Context, taskID uuid.UUID, patch TaskPatch, requesterID uuid.UUID) (*models.Task, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		patch.Description = &desc
	}
	if patch.empty() {
		return nil, ErrNoValidFields
	}
	if patch.DueDate != nil && patch.ClearDueDate {
		return nil, fieldError("due_date", "cannot be set and cleared at once")
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	var task *models.Task
	var room *models.Room
	var previous []uuid.UUID
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		current, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return notFound(err, ErrTaskNotFound)
		}
		room, err = lockTaskRoom(ctx, tx, current)
		if err != nil {
			return err
		}
		if !canEditTask(current, room, requesterID) {
			return ErrForbidden
		}
		previous = taskAudience(current, room)

		if patch.AssigneeIDs != nil {
			assignees := dedupeIDs(*patch.AssigneeIDs)
			if err := checkAssignees(ctx, tx, assignees, room); err != nil {
				return err
			}
			if err := tx.SetTaskAssignees(ctx, taskID, assignees); err != nil {
				return err
			}
		}

		if columns := patch.columns(); len(columns) > 0 {
			if err := tx.UpdateTaskColumns(ctx, taskID, columns); err != nil {
				return err
			}
		}

		task, err = tx.GetTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}

	emitTo(s.sink, EventTaskUpdated, task, append(previous, taskAudience(task, room)...))
	return task, nil
}

func (p TaskPatch) columns() map[string]any {
	columns := make(map[string]any)
	if p.Title != nil {
		columns["title"] = *p.Title
	}
	if p.Description != nil {
		columns["description"] = *p.Description
	}
	if p.Status != nil {
		columns["status"] = *p.Status
	}
	if p.Priority != nil {
		columns["priority"] = *p.Priority
	}
	if p.DueDate != nil {
		columns["due_date"] = *p.DueDate
	}
	if p.ClearDueDate {
		columns["due_date"] = nil
	}
	if p.EstimatedHours != nil {
		columns["estimated_hours"] = *p.EstimatedHours
	}
	if p.Progress != nil {
		columns["progress"] = *p.Progress
	}
	return columns
}

// MoveTask attaches the task to roomID, or detaches it when roomID is nil.
// Only the author may move a task, into a room they belong to, and every
// assignee must already be a member there.
func (s *TaskService) MoveTask(ctx context.Context, taskID uuid.UUID, roomID *uuid.UUID, requesterID uuid.UUID) (*models.Task, error) {
	var task *models.Task
	var room *models.Room
	var previous []uuid.UUID
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		current, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return notFound(err, ErrTaskNotFound)
		}
		if current.AuthorID != requesterID {
			return ErrForbidden
		}
		oldRoom, err := lockTaskRoom(ctx, tx, current)
		if err != nil {
			return err
		}
		previous = taskAudience(current, oldRoom)

		if roomID != nil {
			room, err = tx.LockRoom(ctx, *roomID)
			if err != nil {
				return notFound(err, ErrRoomNotFound)
			}
			if !room.HasMember(requesterID) {
				return ErrNotRoomMember
			}
			assignees := make([]uuid.UUID, len(current.Assignees))
			for i, u := range current.Assignees {
				assignees[i] = u.ID
			}
			if err := checkAssignees(ctx, tx, assignees, room); err != nil {
				return err
			}
		}

		if err := tx.SetTaskRoom(ctx, taskID, roomID); err != nil {
			return err
		}
		task, err = tx.GetTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}

	emitTo(s.sink, EventTaskUpdated, task, append(previous, taskAudience(task, room)...))
	return task, nil
}

// DeleteTask removes the task with its comments. The author or the admin of
// the task's room may delete it.
func (s *TaskService) DeleteTask(ctx context.Context, taskID, requesterID uuid.UUID) (int64, error) {
	var deletedComments int64
	var audience []uuid.UUID
	var roomID *uuid.UUID
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		current, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return notFound(err, ErrTaskNotFound)
		}
		room, err := lockTaskRoom(ctx, tx, current)
		if err != nil {
			return err
		}
		if current.AuthorID != requesterID && (room == nil || room.AdminID != requesterID) {
			return ErrForbidden
		}
		audience = taskAudience(current, room)
		roomID = current.RoomID

		deletedComments, err = tx.DeleteTask(ctx, taskID)
		return err
	})
	if err != nil {
		return 0, err
	}

	payload := TaskDeletedPayload{TaskID: taskID, RoomID: roomID, DeletedComments: deletedComments}
	emitTo(s.sink, EventTaskDeleted, payload, audience)
	return deletedComments, nil
}

// checkAssignees verifies every id is a user and, for a room task, a member
// of that room.
func checkAssignees(ctx context.Context, tx *database.Database, ids []uuid.UUID, room *models.Room) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := tx.GetUsers(ctx, ids)
	if err != nil {
		return err
	}
	if missing := missingUsers(ids, found); len(missing) > 0 {
		return withIDs(ErrInvalidAssignees, missing)
	}
	if room == nil {
		return nil
	}
	var outsiders []uuid.UUID
	for _, id := range ids {
		if !room.HasMember(id) {
			outsiders = append(outsiders, id)
		}
	}
	if len(outsiders) > 0 {
		return withIDs(ErrAssigneeNotMember, outsiders)
	}
	return nil
}

// taskRoom loads the room of a room-scoped task, nil for a standalone task.
func taskRoom(ctx context.Context, db *database.Database, task *models.Task) (*models.Room, error) {
	if task.RoomID == nil {
		return nil, nil
	}
	room, err := db.GetRoom(ctx, *task.RoomID)
	if err != nil {
		return nil, notFound(err, ErrRoomNotFound)
	}
	return room, nil
}

func lockTaskRoom(ctx context.Context, tx *database.Database, task *models.Task) (*models.Room, error) {
	if task.RoomID == nil {
		return nil, nil
	}
	room, err := tx.LockRoom(ctx, *task.RoomID)
	if err != nil {
		return nil, notFound(err, ErrRoomNotFound)
	}
	return room, nil
}

func canViewTask(task *models.Task, room *models.Room, userID uuid.UUID) bool {
	return canEditTask(task, room, userID) || (room != nil && room.HasMember(userID))
}

func canEditTask(task *models.Task, room *models.Room, userID uuid.UUID) bool {
	if task.AuthorID == userID {
		return true
	}
	// Assignees of a room task act only while they are members.
	if task.IsAssignee(userID) && (room == nil || room.HasMember(userID)) {
		return true
	}
	return room != nil && room.AdminID == userID
}

// taskAudience lists everyone who should hear about a change to the task.
func taskAudience(task *models.Task, room *models.Room) []uuid.UUID {
	ids := []uuid.UUID{task.AuthorID}
	for _, u := range task.Assignees {
		ids = append(ids, u.ID)
	}
	if room != nil {
		ids = append(ids, room.MemberIDs()...)
	}
	return ids
}
