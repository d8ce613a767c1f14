package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CascadeResult reports what a room deletion removed besides the room itself.
type CascadeResult struct {
	DeletedTasks    int64 `json:"deleted_tasks"`
	DeletedComments int64 `json:"deleted_comments"`
}

// CreateRoom inserts the room and one membership row per id, in order.
func (d *Database) CreateRoom(ctx context.Context, room *models.Room, memberIDs []uuid.UUID) error {
	db := d.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(room).Error; err != nil {
		return err
	}
	for _, userID := range memberIDs {
		if err := d.AddRoomMember(ctx, room.ID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) preloadRoom(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Admin").
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("room_members.id ASC")
		}).
		Preload("Members.User")
}

func (d *Database) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := d.preloadRoom(d.db.WithContext(ctx)).First(&room, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// LockRoom loads the room after taking a row lock on it, so concurrent units
// of work touching the same room run one after another. Dialects without
// row locks (SQLite) already serialize writers.
func (d *Database) LockRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	if d.db.Dialector.Name() == "postgres" {
		var locked models.Room
		err := d.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&locked, "id = ?", id).Error
		if err != nil {
			return nil, err
		}
	}
	return d.GetRoom(ctx, id)
}

// GetUserRooms returns every room the user belongs to, in join order.
func (d *Database) GetUserRooms(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	var rooms []models.Room
	err := d.preloadRoom(d.db.WithContext(ctx)).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Order("room_members.id ASC").
		Find(&rooms).Error
	return rooms, err
}

func (d *Database) AddRoomMember(ctx context.Context, roomID, userID uuid.UUID) error {
	member := models.RoomMember{
		RoomID:   roomID,
		UserID:   userID,
		JoinedAt: time.Now(),
	}
	return d.db.WithContext(ctx).Omit(clause.Associations).Create(&member).Error
}

// RemoveRoomMember deletes the membership row and reports whether one existed.
func (d *Database) RemoveRoomMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	res := d.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&models.RoomMember{})
	return res.RowsAffected > 0, res.Error
}

func (d *Database) CountRoomMembers(ctx context.Context, roomID uuid.UUID) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.RoomMember{}).Where("room_id = ?", roomID).Count(&n).Error
	return n, err
}

func (d *Database) IsRoomMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).
		Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	return n > 0, err
}

func (d *Database) SetRoomAdmin(ctx context.Context, roomID, userID uuid.UUID) error {
	return d.UpdateRoomColumns(ctx, roomID, map[string]any{"admin_id": userID})
}

func (d *Database) UpdateRoomColumns(ctx context.Context, roomID uuid.UUID, updates map[string]any) error {
	res := d.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", roomID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRoomCascade removes the room together with its tasks, the comments on
// the room or on those tasks, the tasks' assignee rows and every membership
// row. It must run inside a Transaction: a partial cascade is never valid.
func (d *Database) DeleteRoomCascade(ctx context.Context, roomID uuid.UUID) (CascadeResult, error) {
	var result CascadeResult
	db := d.db.WithContext(ctx)

	var taskIDs []uuid.UUID
	if err := db.Model(&models.Task{}).Where("room_id = ?", roomID).Pluck("id", &taskIDs).Error; err != nil {
		return result, err
	}

	comments := db.Where("room_id = ?", roomID)
	if len(taskIDs) > 0 {
		comments = comments.Or("task_id IN ?", taskIDs)
	}
	res := comments.Delete(&models.Comment{})
	if res.Error != nil {
		return result, res.Error
	}
	result.DeletedComments = res.RowsAffected

	if len(taskIDs) > 0 {
		if err := db.Where("task_id IN ?", taskIDs).Delete(&models.TaskAssignee{}).Error; err != nil {
			return result, err
		}
	}

	res = db.Where("room_id = ?", roomID).Delete(&models.Task{})
	if res.Error != nil {
		return result, res.Error
	}
	result.DeletedTasks = res.RowsAffected

	if err := db.Where("room_id = ?", roomID).Delete(&models.RoomMember{}).Error; err != nil {
		return result, err
	}

	res = db.Where("id = ?", roomID).Delete(&models.Room{})
	if res.Error != nil {
		return result, res.Error
	}
	if res.RowsAffected == 0 {
		return result, ErrNotFound
	}

	return result, nil
}
