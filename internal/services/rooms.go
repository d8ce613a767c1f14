package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/config"
	"github.com/thereayou/taskrooms/internal/database"
	"github.com/thereayou/taskrooms/internal/metrics"
	"github.com/thereayou/taskrooms/internal/models"
	"github.com/thereayou/taskrooms/internal/notify"
)

// RoomService owns the room membership rules: exactly one admin per room, the
// admin is always a member, membership never exceeds maxMembers, and a room
// with no members does not exist. Every mutation locks the room, checks all
// preconditions, then writes inside a single unit of work. Notifications go
// out only after commit.
type RoomService struct {
	db         *database.Database
	sink       notify.Sink
	maxMembers int
}

func NewRoomService(db *database.Database, sink notify.Sink, maxMembers int) *RoomService {
	if sink == nil {
		sink = notify.Nop{}
	}
	if maxMembers <= 0 {
		maxMembers = config.DefaultMaxRoomMembers
	}
	return &RoomService{db: db, sink: sink, maxMembers: maxMembers}
}

func (s *RoomService) MaxMembers() int {
	return s.maxMembers
}

type CreateRoomInput struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	MemberIDs   []uuid.UUID `json:"members"`
}

type roomFields struct {
	Name        string `json:"name" validate:"required,min=3,max=50,roomname"`
	Description string `json:"description" validate:"max=500"`
}

// RemoveMemberResult describes the room after a removal. Room is nil when the
// removal emptied the room and it was deleted.
type RemoveMemberResult struct {
	Room    *models.Room
	Deleted bool
	Cascade database.CascadeResult
}

func (s *RoomService) CreateRoom(ctx context.Context, requesterID uuid.UUID, in CreateRoomInput) (*models.Room, error) {
	fields := roomFields{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
	}
	if err := validateStruct(fields); err != nil {
		return nil, err
	}

	candidates := dedupeIDs(in.MemberIDs, requesterID)
	if len(candidates)+1 > s.maxMembers {
		return nil, ErrRoomLimitReached
	}

	var room *models.Room
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		if _, err := tx.GetUser(ctx, requesterID); err != nil {
			return notFound(err, ErrUserNotFound)
		}

		found, err := tx.GetUsers(ctx, candidates)
		if err != nil {
			return err
		}
		if missing := missingUsers(candidates, found); len(missing) > 0 {
			return withIDs(ErrInvalidMembers, missing)
		}

		created := &models.Room{
			Name:        fields.Name,
			Description: fields.Description,
			IsActive:    true,
			AdminID:     requesterID,
		}
		members := append([]uuid.UUID{requesterID}, candidates...)
		if err := tx.CreateRoom(ctx, created, members); err != nil {
			return err
		}

		room, err = tx.GetRoom(ctx, created.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	emitTo(s.sink, EventRoomCreated, room, room.MemberIDs())
	return room, nil
}

func (s *RoomService) AddMember(ctx context.Context, roomID, newMemberID, requesterID uuid.UUID) (*models.Room, error) {
	var room *models.Room
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		current, err := tx.LockRoom(ctx, roomID)
		if err != nil {
			return notFound(err, ErrRoomNotFound)
		}
		if _, err := tx.GetUser(ctx, newMemberID); err != nil {
			return notFound(err, ErrUserNotFound)
		}
		if current.AdminID != requesterID {
			return ErrNotAdmin
		}
		if current.HasMember(newMemberID) {
			return ErrAlreadyMember
		}
		if len(current.Members) >= s.maxMembers {
			return ErrRoomLimitReached
		}

		if err := tx.AddRoomMember(ctx, roomID, newMemberID); err != nil {
			return err
		}
		room, err = tx.GetRoom(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}

	emitTo(s.sink, EventRoomMemberAdded, room, room.MemberIDs())
	return room, nil
}

// RemoveMember removes targetID from the room. The admin may remove anyone
// else; any member may remove themselves. The admin may only leave as the
// last member, which deletes the room with everything that depends on it.
func (s *RoomService) RemoveMember(ctx context.Context, roomID, targetID, requesterID uuid.UUID) (*RemoveMemberResult, error) {
	result := &RemoveMemberResult{}
	var formerMembers []uuid.UUID

	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		current, err := tx.LockRoom(ctx, roomID)
		if err != nil {
			return notFound(err, ErrRoomNotFound)
		}
		if _, err := tx.GetUser(ctx, targetID); err != nil {
			return notFound(err, ErrUserNotFound)
		}

		selfRemoval := requesterID == targetID
		if current.AdminID != requesterID && !selfRemoval {
			return ErrNotAdmin
		}
		if !current.HasMember(targetID) {
			return ErrNotMember
		}

		targetIsAdmin := current.AdminID == targetID
		if targetIsAdmin && selfRemoval && len(current.Members) > 1 {
			return ErrCannotRemoveSelf
		}
		// Unreachable after the authorization check above; kept so no future
		// caller can strip a room of its admin.
		if targetIsAdmin && !selfRemoval {
			return ErrCannotRemoveAdmin
		}

		formerMembers = current.MemberIDs()
		if _, err := tx.RemoveRoomMember(ctx, roomID, targetID); err != nil {
			return err
		}
		if _, err := tx.RemoveRoomAssignee(ctx, roomID, targetID); err != nil {
			return err
		}

		remaining := without(formerMembers, targetID)
		if len(remaining) == 0 {
			cascade, err := tx.DeleteRoomCascade(ctx, roomID)
			if err != nil {
				return err
			}
			result.Deleted = true
			result.Cascade = cascade
			return nil
		}

		if targetIsAdmin {
			// Only reachable if the guards above are relaxed: hand the room
			// to the longest-standing remaining member.
			if err := tx.SetRoomAdmin(ctx, roomID, remaining[0]); err != nil {
				return err
			}
		}

		result.Room, err = tx.GetRoom(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Deleted {
		metrics.CascadeDeleted(result.Cascade.DeletedTasks, result.Cascade.DeletedComments)
		emitTo(s.sink, EventRoomDeleted, RoomDeletedPayload{RoomID: roomID, CascadeResult: result.Cascade}, formerMembers)
		return result, nil
	}

	emitTo(s.sink, EventRoomMemberRemoved, MemberRemovedPayload{RoomID: roomID, UserID: targetID}, formerMembers)
	emitTo(s.sink, EventRoomUpdated, result.Room, result.Room.MemberIDs())
	return result, nil
}

func (s *RoomService) TransferOwnership(ctx context.Context, roomID, newAdminID, requesterID uuid.UUID) (*models.Room, error) {
	var room *models.Room
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		current, err := tx.LockRoom(ctx, roomID)
		if err != nil {
			return notFound(err, ErrRoomNotFound)
		}
		if _, err := tx.GetUser(ctx, newAdminID); err != nil {
			return notFound(err, ErrUserNotFound)
		}
		if current.AdminID != requesterID {
			return ErrNotAdmin
		}
		if newAdminID == requesterID {
			return ErrAlreadyAdmin
		}
		if !current.HasMember(newAdminID) {
			return ErrNewAdminNotMember
		}

		if err := tx.SetRoomAdmin(ctx, roomID, newAdminID); err != nil {
			return err
		}
		if !current.HasMember(requesterID) {
			if err := tx.AddRoomMember(ctx, roomID, requesterID); err != nil {
				return err
			}
		}

		room, err = tx.GetRoom(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}

	emitTo(s.sink, EventRoomOwnershipTransfer, room, room.MemberIDs())
	return room, nil
}

// protectedRoomFields can never be changed through UpdateRoomFields.
var protectedRoomFields = map[string]struct{}{
	"id": {}, "_id": {}, "members": {}, "tasks": {}, "comments": {},
	"admin": {}, "admin_id": {}, "created_at": {}, "updated_at": {},
	"createdAt": {}, "updatedAt": {},
}

// UpdateRoomFields applies name, description and is_active changes. Identity
// and relationship fields are dropped from updates before anything else.
func (s *RoomService) UpdateRoomFields(ctx context.Context, roomID uuid.UUID, updates map[string]any, requesterID uuid.UUID) (*models.Room, error) {
	var room *models.Room
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		current, err := tx.LockRoom(ctx, roomID)
		if err != nil {
			return notFound(err, ErrRoomNotFound)
		}
		if current.AdminID != requesterID {
			return ErrNotAdmin
		}

		columns, err := roomColumns(current, updates)
		if err != nil {
			return err
		}

		if err := tx.UpdateRoomColumns(ctx, roomID, columns); err != nil {
			return err
		}
		room, err = tx.GetRoom(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}

	emitTo(s.sink, EventRoomUpdated, room, room.MemberIDs())
	return room, nil
}

func roomColumns(current *models.Room, updates map[string]any) (map[string]any, error) {
	columns := make(map[string]any)
	fieldErrs := make(map[string]string)
	fields := roomFields{Name: current.Name, Description: current.Description}

	for key, value := range updates {
		if _, ok := protectedRoomFields[key]; ok {
			continue
		}
		switch key {
		case "name":
			name, ok := asString(value)
			if !ok {
				fieldErrs[key] = "must be a string"
				continue
			}
			fields.Name = strings.TrimSpace(name)
			columns["name"] = fields.Name
		case "description":
			desc, ok := asString(value)
			if !ok {
				fieldErrs[key] = "must be a string"
				continue
			}
			fields.Description = strings.TrimSpace(desc)
			columns["description"] = fields.Description
		case "is_active":
			active, ok := value.(bool)
			if !ok {
				fieldErrs[key] = "must be a boolean"
				continue
			}
			columns["is_active"] = active
		}
	}

	if len(fieldErrs) > 0 {
		return nil, validationError(fieldErrs)
	}
	if len(columns) == 0 {
		return nil, ErrNoValidFields
	}
	if err := validateStruct(fields); err != nil {
		return nil, err
	}
	return columns, nil
}

func (s *RoomService) ToggleActive(ctx context.Context, roomID, requesterID uuid.UUID) (*models.Room, error) {
	var room *models.Room
	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		current, err := tx.LockRoom(ctx, roomID)
		if err != nil {
			return notFound(err, ErrRoomNotFound)
		}
		if current.AdminID != requesterID {
			return ErrNotAdmin
		}

		if err := tx.UpdateRoomColumns(ctx, roomID, map[string]any{"is_active": !current.IsActive}); err != nil {
			return err
		}
		room, err = tx.GetRoom(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}

	emitTo(s.sink, EventRoomUpdated, room, room.MemberIDs())
	return room, nil
}

// DeleteRoom removes the room and everything that depends on it.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, requesterID uuid.UUID) (database.CascadeResult, error) {
	var cascade database.CascadeResult
	var formerMembers []uuid.UUID

	err := runInTx(ctx, s.db, func(tx *database.Database) error {
		current, err := tx.LockRoom(ctx, roomID)
		if err != nil {
			return notFound(err, ErrRoomNotFound)
		}
		if current.AdminID != requesterID {
			return ErrNotAdmin
		}

		formerMembers = current.MemberIDs()
		cascade, err = tx.DeleteRoomCascade(ctx, roomID)
		return err
	})
	if err != nil {
		return database.CascadeResult{}, err
	}

	metrics.CascadeDeleted(cascade.DeletedTasks, cascade.DeletedComments)
	emitTo(s.sink, EventRoomDeleted, RoomDeletedPayload{RoomID: roomID, CascadeResult: cascade}, formerMembers)
	return cascade, nil
}

// GetRoom returns the room if the requester is one of its members.
func (s *RoomService) GetRoom(ctx context.Context, roomID, requesterID uuid.UUID) (*models.Room, error) {
	room, err := s.db.GetRoom(ctx, roomID)
	if err != nil {
		return nil, notFound(err, ErrRoomNotFound)
	}
	if !room.HasMember(requesterID) {
		return nil, ErrNotRoomMember
	}
	return room, nil
}

func (s *RoomService) ListUserRooms(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	return s.db.GetUserRooms(ctx, userID)
}

func (s *RoomService) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	return s.db.IsRoomMember(ctx, roomID, userID)
}

func missingUsers(ids []uuid.UUID, found []models.User) []uuid.UUID {
	present := make(map[uuid.UUID]struct{}, len(found))
	for _, u := range found {
		present[u.ID] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
