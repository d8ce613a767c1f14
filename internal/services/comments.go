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

type CommentService struct {
	db   *database.Database
	sink notify.Sink
}

func NewCommentService(db *database.Database, sink notify.Sink) *CommentService {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &CommentService{db: db, sink: sink}
}

type CreateCommentInput struct {
	Content string     `json:"content" validate:"required,max=1000"`
	TaskID  *uuid.UUID `json:"task_id"`
	RoomID  *uuid.UUID `json:"room_id"`
}

type commentContent struct {
	Content string `json:"content" validate:"required,max=1000"`
}

// CreateComment posts on a task, a room, or a task inside a room. The author
// must be able to see the task and belong to the room.
func (s *CommentService) CreateComment(ctx context.Context, authorID uuid.UUID, in CreateCommentInput) (*models.Comment, error) {
	in.Content = strings.TrimSpace(in.Content)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.TaskID == nil && in.RoomID == nil {
		return nil, fieldError("task_id", "a comment needs a task or a room")
	}

	var comment *models.Comment
	var audience []uuid.UUID
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		if _, err := tx.GetUser(ctx, authorID); err != nil {
			return notFound(err, ErrUserNotFound)
		}

		roomID := in.RoomID
		if in.TaskID != nil {
			task, err := tx.GetTask(ctx, *in.TaskID)
			if err != nil {
				return notFound(err, ErrTaskNotFound)
			}
			if roomID != nil && (task.RoomID == nil || *task.RoomID != *roomID) {
				return fieldError("room_id", "must match the task's room")
			}
			room, err := lockTaskRoom(ctx, tx, task)
			if err != nil {
				return err
			}
			if !canViewTask(task, room, authorID) {
				return ErrForbidden
			}
			roomID = task.RoomID
			audience = taskAudience(task, room)
		} else {
			room, err := tx.LockRoom(ctx, *roomID)
			if err != nil {
				return notFound(err, ErrRoomNotFound)
			}
			if !room.HasMember(authorID) {
				return ErrNotRoomMember
			}
			audience = room.MemberIDs()
		}

		created := &models.Comment{
			Content:  in.Content,
			AuthorID: authorID,
			TaskID:   in.TaskID,
			RoomID:   roomID,
		}
		if err := tx.SaveComment(ctx, created); err != nil {
			return err
		}

		var err error
		comment, err = tx.GetComment(ctx, created.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	emitTo(s.sink, EventCommentCreated, comment, audience)
	return comment, nil
}

func (s *CommentService) ListTaskComments(ctx context.Context, taskID, requesterID uuid.UUID) ([]models.Comment, error) {
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
	return s.db.ListTaskComments(ctx, taskID)
}

func (s *CommentService) ListRoomComments(ctx context.Context, roomID, requesterID uuid.UUID) ([]models.Comment, error) {
	member, err := s.db.IsRoomMember(ctx, roomID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		if _, err := s.db.GetRoom(ctx, roomID); err != nil {
			return nil, notFound(err, ErrRoomNotFound)
		}
		return nil, ErrNotRoomMember
	}
	return s.db.ListRoomComments(ctx, roomID)
}

// UpdateComment replaces the content. Only the author may edit.
func (s *CommentService) UpdateComment(ctx context.Context, commentID uuid.UUID, content string, requesterID uuid.UUID) (*models.Comment, error) {
	body := commentContent{Content: strings.TrimSpace(content)}
	if err := validateStruct(body); err != nil {
		return nil, err
	}

	var comment *models.Comment
	var audience []uuid.UUID
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		current, err := tx.GetComment(ctx, commentID)
		if err != nil {
			return notFound(err, ErrCommentNotFound)
		}
		if current.AuthorID != requesterID {
			return ErrForbidden
		}
		audience, _, err = commentAudience(ctx, tx, current)
		if err != nil {
			return err
		}

		now := time.Now()
		current.Content = body.Content
		current.EditedAt = &now
		if err := tx.UpdateComment(ctx, current); err != nil {
			return err
		}
		comment = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	emitTo(s.sink, EventCommentUpdated, comment, audience)
	return comment, nil
}

// DeleteComment removes the comment. The author or the admin of the room the
// comment lives in may delete it.
func (s *CommentService) DeleteComment(ctx context.Context, commentID, requesterID uuid.UUID) error {
	var current *models.Comment
	var audience []uuid.UUID
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		var err error
		current, err = tx.GetComment(ctx, commentID)
		if err != nil {
			return notFound(err, ErrCommentNotFound)
		}
		var room *models.Room
		audience, room, err = commentAudience(ctx, tx, current)
		if err != nil {
			return err
		}
		if current.AuthorID != requesterID && (room == nil || room.AdminID != requesterID) {
			return ErrForbidden
		}
		return tx.DeleteComment(ctx, commentID)
	})
	if err != nil {
		return err
	}

	payload := CommentDeletedPayload{CommentID: commentID, TaskID: current.TaskID, RoomID: current.RoomID}
	emitTo(s.sink, EventCommentDeleted, payload, audience)
	return nil
}

// commentAudience returns who follows the comment's thread and the room it
// belongs to, if any.
func commentAudience(ctx context.Context, tx *database.Database, comment *models.Comment) ([]uuid.UUID, *models.Room, error) {
	var room *models.Room
	if comment.RoomID != nil {
		var err error
		room, err = tx.LockRoom(ctx, *comment.RoomID)
		if err != nil {
			return nil, nil, notFound(err, ErrRoomNotFound)
		}
	}

	audience := []uuid.UUID{comment.AuthorID}
	if comment.TaskID != nil {
		task, err := tx.GetTask(ctx, *comment.TaskID)
		if err != nil {
			return nil, nil, notFound(err, ErrTaskNotFound)
		}
		audience = append(audience, taskAudience(task, nil)...)
	}
	if room != nil {
		audience = append(audience, room.MemberIDs()...)
	}
	return audience, room, nil
}
