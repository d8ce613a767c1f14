package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *Database) preloadTask(db *gorm.DB) *gorm.DB {
	return db.Preload("Author").Preload("Assignees")
}

func (d *Database) CreateTask(ctx context.Context, task *models.Task, assigneeIDs []uuid.UUID) error {
	if err := d.db.WithContext(ctx).Omit(clause.Associations).Create(task).Error; err != nil {
		return err
	}
	return d.SetTaskAssignees(ctx, task.ID, assigneeIDs)
}

func (d *Database) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := d.preloadTask(d.db.WithContext(ctx)).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (d *Database) ListRoomTasks(ctx context.Context, roomID uuid.UUID) ([]models.Task, error) {
	var tasks []models.Task
	err := d.preloadTask(d.db.WithContext(ctx)).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Find(&tasks).Error
	return tasks, err
}

// ListUserTasks returns tasks the user authored or is assigned to.
func (d *Database) ListUserTasks(ctx context.Context, userID uuid.UUID) ([]models.Task, error) {
	db := d.db.WithContext(ctx)
	assigned := db.Model(&models.TaskAssignee{}).Select("task_id").Where("user_id = ?", userID)

	var tasks []models.Task
	err := d.preloadTask(db).
		Where("author_id = ? OR id IN (?)", userID, assigned).
		Order("created_at DESC").
		Find(&tasks).Error
	return tasks, err
}

func (d *Database) CountRoomTasks(ctx context.Context, roomID uuid.UUID) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.Task{}).Where("room_id = ?", roomID).Count(&n).Error
	return n, err
}

func (d *Database) UpdateTaskColumns(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := d.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTaskAssignees replaces the assignee set of a task.
func (d *Database) SetTaskAssignees(ctx context.Context, taskID uuid.UUID, userIDs []uuid.UUID) error {
	db := d.db.WithContext(ctx)
	if err := db.Where("task_id = ?", taskID).Delete(&models.TaskAssignee{}).Error; err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.TaskAssignee, len(userIDs))
	for i, userID := range userIDs {
		rows[i] = models.TaskAssignee{TaskID: taskID, UserID: userID}
	}
	return db.Create(&rows).Error
}

// SetTaskRoom moves the task and its comments to roomID, or detaches them
// from any room when roomID is nil. Call it inside a unit of work.
func (d *Database) SetTaskRoom(ctx context.Context, taskID uuid.UUID, roomID *uuid.UUID) error {
	if err := d.UpdateTaskColumns(ctx, taskID, map[string]any{"room_id": roomID}); err != nil {
		return err
	}
	return d.db.WithContext(ctx).Model(&models.Comment{}).
		Where("task_id = ?", taskID).
		Update("room_id", roomID).Error
}

// RemoveRoomAssignee drops userID from the assignees of every task in the room.
func (d *Database) RemoveRoomAssignee(ctx context.Context, roomID, userID uuid.UUID) (int64, error) {
	db := d.db.WithContext(ctx)

	var taskIDs []uuid.UUID
	if err := db.Model(&models.Task{}).Where("room_id = ?", roomID).Pluck("id", &taskIDs).Error; err != nil {
		return 0, err
	}
	if len(taskIDs) == 0 {
		return 0, nil
	}
	res := db.Where("user_id = ? AND task_id IN ?", userID, taskIDs).Delete(&models.TaskAssignee{})
	return res.RowsAffected, res.Error
}

// DeleteTask removes the task, its comments and its assignee rows. It returns
// the number of comments removed.
func (d *Database) DeleteTask(ctx context.Context, id uuid.UUID) (int64, error) {
	db := d.db.WithContext(ctx)

	res := db.Where("task_id = ?", id).Delete(&models.Comment{})
	if res.Error != nil {
		return 0, res.Error
	}
	deletedComments := res.RowsAffected

	if err := db.Where("task_id = ?", id).Delete(&models.TaskAssignee{}).Error; err != nil {
		return deletedComments, err
	}

	res = db.Where("id = ?", id).Delete(&models.Task{})
	if res.Error != nil {
		return deletedComments, res.Error
	}
	if res.RowsAffected == 0 {
		return deletedComments, ErrNotFound
	}
	return deletedComments, nil
}
