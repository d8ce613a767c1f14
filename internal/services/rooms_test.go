package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/taskrooms/internal/database"
	"github.com/thereayou/taskrooms/internal/models"
	"github.com/thereayou/taskrooms/internal/notify"
	"github.com/thereayou/taskrooms/internal/services"
	"github.com/thereayou/taskrooms/internal/testutil"
)

type fixture struct {
	db       *database.Database
	sink     *notify.Recorder
	rooms    *services.RoomService
	tasks    *services.TaskService
	comments *services.CommentService
}

func newFixture(t *testing.T, maxMembers int) *fixture {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	sink := &notify.Recorder{}
	return &fixture{
		db:       db,
		sink:     sink,
		rooms:    services.NewRoomService(db, sink, maxMembers),
		tasks:    services.NewTaskService(db, sink),
		comments: services.NewCommentService(db, sink),
	}
}

func (f *fixture) createRoom(t *testing.T, admin uuid.UUID, members ...uuid.UUID) *models.Room {
	t.Helper()
	room, err := f.rooms.CreateRoom(context.Background(), admin, services.CreateRoomInput{
		Name:        "Team room",
		Description: "desc",
		MemberIDs:   members,
	})
	require.NoError(t, err)
	return room
}

func (f *fixture) reload(t *testing.T, roomID uuid.UUID) *models.Room {
	t.Helper()
	room, err := f.db.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	return room
}

// assertRoomConsistent checks the admin is a member and every member sees the
// room in their own room list.
func (f *fixture) assertRoomConsistent(t *testing.T, roomID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	room := f.reload(t, roomID)

	assert.True(t, room.HasMember(room.AdminID), "admin must be a member")
	for _, memberID := range room.MemberIDs() {
		rooms, err := f.db.GetUserRooms(ctx, memberID)
		require.NoError(t, err)
		assert.Contains(t, roomIDs(rooms), roomID)
	}
}

func roomIDs(rooms []models.Room) []uuid.UUID {
	ids := make([]uuid.UUID, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	return ids
}

func TestCreateRoomMakesRequesterAdminAndMember(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob")
	a, b := ids[0], ids[1]

	room := f.createRoom(t, a, b, b, a)

	assert.Equal(t, a, room.AdminID)
	assert.Equal(t, []uuid.UUID{a, b}, room.MemberIDs())
	assert.True(t, room.IsActive)
	f.assertRoomConsistent(t, room.ID)

	created := f.sink.Named(services.EventRoomCreated)
	require.Len(t, created, 2)
}

func TestCreateRoomRejectsShortName(t *testing.T) {
	f := newFixture(t, 50)
	a := testutil.CreateUser(t, f.db, "alice").ID

	_, err := f.rooms.CreateRoom(context.Background(), a, services.CreateRoomInput{Name: "ab", Description: "desc"})

	require.ErrorIs(t, err, services.ErrValidation)
	var svcErr *services.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Contains(t, svcErr.Fields, "name")
	assert.Equal(t, services.KindValidation, svcErr.Kind)
}

func TestCreateRoomRejectsBadCharactersInName(t *testing.T) {
	f := newFixture(t, 50)
	a := testutil.CreateUser(t, f.db, "alice").ID

	_, err := f.rooms.CreateRoom(context.Background(), a, services.CreateRoomInput{Name: "room<script>"})

	require.ErrorIs(t, err, services.ErrValidation)
}

func TestCreateRoomReportsUnknownMembers(t *testing.T) {
	f := newFixture(t, 50)
	a := testutil.CreateUser(t, f.db, "alice").ID
	ghost := uuid.New()

	_, err := f.rooms.CreateRoom(context.Background(), a, services.CreateRoomInput{
		Name:      "Team room",
		MemberIDs: []uuid.UUID{ghost},
	})

	require.ErrorIs(t, err, services.ErrInvalidMembers)
	var svcErr *services.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, []string{ghost.String()}, svcErr.IDs)

	rooms, err := f.db.GetUserRooms(context.Background(), a)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestCreateRoomEnforcesMemberLimit(t *testing.T) {
	f := newFixture(t, 2)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob", "carol")

	_, err := f.rooms.CreateRoom(context.Background(), ids[0], services.CreateRoomInput{
		Name:      "Team room",
		MemberIDs: ids[1:],
	})

	require.ErrorIs(t, err, services.ErrRoomLimitReached)
}

func TestAddMemberTwiceRejectsSecondCall(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob")
	a, b := ids[0], ids[1]
	room := f.createRoom(t, a)
	ctx := context.Background()

	_, err := f.rooms.AddMember(ctx, room.ID, b, a)
	require.NoError(t, err)
	_, err = f.rooms.AddMember(ctx, room.ID, b, a)
	require.ErrorIs(t, err, services.ErrAlreadyMember)

	assert.Len(t, f.reload(t, room.ID).Members, 2)
	f.assertRoomConsistent(t, room.ID)
}

func TestAddMemberErrors(t *testing.T) {
	f := newFixture(t, 2)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob", "carol")
	a, b, c := ids[0], ids[1], ids[2]
	room := f.createRoom(t, a)
	ctx := context.Background()

	tests := []struct {
		name      string
		roomID    uuid.UUID
		member    uuid.UUID
		requester uuid.UUID
		want      error
	}{
		{"unknown room", uuid.New(), b, a, services.ErrRoomNotFound},
		{"unknown user", room.ID, uuid.New(), a, services.ErrUserNotFound},
		{"not admin", room.ID, c, b, services.ErrNotAdmin},
		{"admin already member", room.ID, a, a, services.ErrAlreadyMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rooms.AddMember(ctx, tt.roomID, tt.member, tt.requester)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.rooms.AddMember(ctx, room.ID, b, a)
	require.NoError(t, err)
	_, err = f.rooms.AddMember(ctx, room.ID, c, a)
	require.ErrorIs(t, err, services.ErrRoomLimitReached)
}

func TestRemoveThenAddRestoresMembership(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob")
	a, b := ids[0], ids[1]
	room := f.createRoom(t, a, b)
	ctx := context.Background()

	res, err := f.rooms.RemoveMember(ctx, room.ID, b, a)
	require.NoError(t, err)
	require.False(t, res.Deleted)
	assert.Equal(t, []uuid.UUID{a}, res.Room.MemberIDs())

	restored, err := f.rooms.AddMember(ctx, room.ID, b, a)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, restored.MemberIDs())
	assert.Equal(t, a, restored.AdminID)
	f.assertRoomConsistent(t, room.ID)
}

func TestRemoveMemberRules(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob", "carol", "dave")
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]
	room := f.createRoom(t, a, b, c)
	ctx := context.Background()

	tests := []struct {
		name      string
		roomID    uuid.UUID
		target    uuid.UUID
		requester uuid.UUID
		want      error
	}{
		{"unknown room", uuid.New(), b, a, services.ErrRoomNotFound},
		{"unknown user", room.ID, uuid.New(), a, services.ErrUserNotFound},
		{"member removes another member", room.ID, c, b, services.ErrNotAdmin},
		{"member removes the admin", room.ID, a, b, services.ErrNotAdmin},
		{"target not a member", room.ID, d, a, services.ErrNotMember},
		{"admin leaves a populated room", room.ID, a, a, services.ErrCannotRemoveSelf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rooms.RemoveMember(ctx, tt.roomID, tt.target, tt.requester)
			require.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, []uuid.UUID{a, b, c}, f.reload(t, room.ID).MemberIDs())
}

func TestLastMemberLeavingDeletesRoom(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob")
	a, b := ids[0], ids[1]
	ctx := context.Background()

	room := f.createRoom(t, a, b)
	_, err := f.tasks.CreateTask(ctx, a, services.CreateTaskInput{Title: "first", RoomID: &room.ID})
	require.NoError(t, err)
	task, err := f.tasks.CreateTask(ctx, b, services.CreateTaskInput{Title: "second", RoomID: &room.ID, AssigneeIDs: []uuid.UUID{a}})
	require.NoError(t, err)
	_, err = f.comments.CreateComment(ctx, a, services.CreateCommentInput{Content: "hi", RoomID: &room.ID})
	require.NoError(t, err)
	_, err = f.comments.CreateComment(ctx, b, services.CreateCommentInput{Content: "on task", TaskID: &task.ID})
	require.NoError(t, err)

	res, err := f.rooms.RemoveMember(ctx, room.ID, b, b)
	require.NoError(t, err)
	require.False(t, res.Deleted)
	assert.Equal(t, []uuid.UUID{a}, res.Room.MemberIDs())
	assert.Equal(t, a, res.Room.AdminID)

	f.sink.Reset()
	res, err = f.rooms.RemoveMember(ctx, room.ID, a, a)
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Nil(t, res.Room)
	assert.Equal(t, int64(2), res.Cascade.DeletedTasks)
	assert.Equal(t, int64(2), res.Cascade.DeletedComments)

	_, err = f.db.GetRoom(ctx, room.ID)
	assert.True(t, database.IsNotFound(err))

	tasks, err := f.db.CountRoomTasks(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, tasks)
	comments, err := f.db.CountRoomComments(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, comments)
	taskComments, err := f.db.ListTaskComments(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, taskComments)

	for _, id := range ids {
		rooms, err := f.db.GetUserRooms(ctx, id)
		require.NoError(t, err)
		assert.NotContains(t, roomIDs(rooms), room.ID)
	}

	deleted := f.sink.Named(services.EventRoomDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, a, *deleted[0].Target)
}

func TestTransferOwnershipKeepsFormerAdmin(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob", "carol")
	a, b, c := ids[0], ids[1], ids[2]
	room := f.createRoom(t, a, b, c)
	ctx := context.Background()

	updated, err := f.rooms.TransferOwnership(ctx, room.ID, c, a)
	require.NoError(t, err)

	assert.Equal(t, c, updated.AdminID)
	assert.Equal(t, []uuid.UUID{a, b, c}, updated.MemberIDs())
	f.assertRoomConsistent(t, room.ID)

	_, err = f.rooms.AddMember(ctx, room.ID, uuid.New(), a)
	require.ErrorIs(t, err, services.ErrUserNotFound)
	d := testutil.CreateUser(t, f.db, "dave").ID
	_, err = f.rooms.AddMember(ctx, room.ID, d, a)
	require.ErrorIs(t, err, services.ErrNotAdmin)

	// The former admin can now leave like any other member.
	res, err := f.rooms.RemoveMember(ctx, room.ID, a, a)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b, c}, res.Room.MemberIDs())
}

func TestTransferOwnershipErrors(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob", "carol")
	a, b, c := ids[0], ids[1], ids[2]
	room := f.createRoom(t, a, b)
	ctx := context.Background()

	tests := []struct {
		name      string
		roomID    uuid.UUID
		newAdmin  uuid.UUID
		requester uuid.UUID
		want      error
	}{
		{"unknown room", uuid.New(), b, a, services.ErrRoomNotFound},
		{"unknown user", room.ID, uuid.New(), a, services.ErrUserNotFound},
		{"not admin", room.ID, b, b, services.ErrNotAdmin},
		{"already admin", room.ID, a, a, services.ErrAlreadyAdmin},
		{"new admin not a member", room.ID, c, a, services.ErrNewAdminNotMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rooms.TransferOwnership(ctx, tt.roomID, tt.newAdmin, tt.requester)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, a, f.reload(t, room.ID).AdminID)
}

func TestConcurrentAddMemberStopsAtLimit(t *testing.T) {
	const limit = 5
	f := newFixture(t, limit)
	admin := testutil.CreateUser(t, f.db, "admin").ID
	seed := testutil.CreateUser(t, f.db, "seed").ID
	room := f.createRoom(t, admin, seed)

	names := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	candidates := testutil.CreateUsers(t, f.db, names...)
	k := limit - len(room.Members)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for _, id := range candidates {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.rooms.AddMember(context.Background(), room.ID, id, admin)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case services.IsKind(err, services.KindConflict):
				assert.ErrorIs(t, err, services.ErrRoomLimitReached)
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, k, ok)
	assert.Equal(t, len(candidates)-k, rejected)
	assert.Len(t, f.reload(t, room.ID).Members, limit)
	f.assertRoomConsistent(t, room.ID)
}

func TestUpdateRoomFields(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob")
	a, b := ids[0], ids[1]
	room := f.createRoom(t, a, b)
	ctx := context.Background()

	_, err := f.rooms.UpdateRoomFields(ctx, room.ID, map[string]any{"name": "Renamed"}, b)
	require.ErrorIs(t, err, services.ErrNotAdmin)

	_, err = f.rooms.UpdateRoomFields(ctx, room.ID, map[string]any{"admin": b.String(), "members": []any{}, "id": "x"}, a)
	require.ErrorIs(t, err, services.ErrNoValidFields)

	_, err = f.rooms.UpdateRoomFields(ctx, room.ID, map[string]any{"name": "no"}, a)
	require.ErrorIs(t, err, services.ErrValidation)

	_, err = f.rooms.UpdateRoomFields(ctx, room.ID, map[string]any{"is_active": "yes"}, a)
	require.ErrorIs(t, err, services.ErrValidation)

	updated, err := f.rooms.UpdateRoomFields(ctx, room.ID, map[string]any{
		"name":        "Renamed room",
		"description": "new description",
		"admin_id":    b.String(),
	}, a)
	require.NoError(t, err)
	assert.Equal(t, "Renamed room", updated.Name)
	assert.Equal(t, "new description", updated.Description)
	assert.Equal(t, a, updated.AdminID)
	assert.Equal(t, []uuid.UUID{a, b}, updated.MemberIDs())
}

func TestToggleActive(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob")
	a, b := ids[0], ids[1]
	room := f.createRoom(t, a, b)
	ctx := context.Background()

	_, err := f.rooms.ToggleActive(ctx, room.ID, b)
	require.ErrorIs(t, err, services.ErrNotAdmin)

	toggled, err := f.rooms.ToggleActive(ctx, room.ID, a)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	toggled, err = f.rooms.ToggleActive(ctx, room.ID, a)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)
}

func TestDeleteRoomCascades(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob")
	a, b := ids[0], ids[1]
	room := f.createRoom(t, a, b)
	ctx := context.Background()

	_, err := f.tasks.CreateTask(ctx, b, services.CreateTaskInput{Title: "task", RoomID: &room.ID})
	require.NoError(t, err)
	_, err = f.comments.CreateComment(ctx, b, services.CreateCommentInput{Content: "note", RoomID: &room.ID})
	require.NoError(t, err)

	_, err = f.rooms.DeleteRoom(ctx, room.ID, b)
	require.ErrorIs(t, err, services.ErrNotAdmin)

	res, err := f.rooms.DeleteRoom(ctx, room.ID, a)
	require.NoError(t, err)
	assert.Equal(t, database.CascadeResult{DeletedTasks: 1, DeletedComments: 1}, res)

	_, err = f.rooms.DeleteRoom(ctx, room.ID, a)
	require.ErrorIs(t, err, services.ErrRoomNotFound)

	rooms, err := f.db.GetUserRooms(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, rooms)
	assert.Len(t, f.sink.Named(services.EventRoomDeleted), 2)
}

func TestGetRoomRequiresMembership(t *testing.T) {
	f := newFixture(t, 50)
	ids := testutil.CreateUsers(t, f.db, "alice", "bob")
	room := f.createRoom(t, ids[0])
	ctx := context.Background()

	_, err := f.rooms.GetRoom(ctx, room.ID, ids[1])
	require.ErrorIs(t, err, services.ErrNotRoomMember)

	_, err = f.rooms.GetRoom(ctx, uuid.New(), ids[0])
	require.ErrorIs(t, err, services.ErrRoomNotFound)

	got, err := f.rooms.GetRoom(ctx, room.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
}

func TestEmitHappensAfterCommit(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	rooms := services.NewRoomService(db, panicSink{}, 50)
	a := testutil.CreateUser(t, db, "alice").ID

	assert.Panics(t, func() {
		_, _ = rooms.CreateRoom(context.Background(), a, services.CreateRoomInput{Name: "Team room"})
	})

	created, err := db.GetUserRooms(context.Background(), a)
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

type panicSink struct{}

func (panicSink) Emit(string, any, *uuid.UUID) { panic("sink down") }
