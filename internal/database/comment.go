package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/models"
	"gorm.io/gorm/clause"
)

func (d *Database) SaveComment(ctx context.Context, comment *models.Comment) error {
	return d.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error
}

func (d *Database) GetComment(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	var comment models.Comment
	if err := d.db.WithContext(ctx).Preload("Author").First(&comment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (d *Database) UpdateComment(ctx context.Context, comment *models.Comment) error {
	return d.db.WithContext(ctx).Omit(clause.Associations).Save(comment).Error
}

func (d *Database) DeleteComment(ctx context.Context, id uuid.UUID) error {
	res := d.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Comment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTaskComments returns a task's comments, oldest first.
func (d *Database) ListTaskComments(ctx context.Context, taskID uuid.UUID) ([]models.Comment, error) {
	var comments []models.Comment
	err := d.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Preload("Author").
		Find(&comments).Error
	return comments, err
}

// ListRoomComments returns comments posted on the room, oldest first.
func (d *Database) ListRoomComments(ctx context.Context, roomID uuid.UUID) ([]models.Comment, error) {
	var comments []models.Comment
	err := d.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Preload("Author").
		Find(&comments).Error
	return comments, err
}

func (d *Database) CountRoomComments(ctx context.Context, roomID uuid.UUID) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.Comment{}).Where("room_id = ?", roomID).Count(&n).Error
	return n, err
}
