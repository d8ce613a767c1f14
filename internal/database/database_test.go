package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/taskrooms/internal/database"
	"github.com/thereayou/taskrooms/internal/models"
	"github.com/thereayou/taskrooms/internal/testutil"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	ctx := context.Background()
	ids := testutil.CreateUsers(t, db, "alice", "bob")

	boom := errors.New("boom")
	var roomID uuid.UUID
	err := db.Transaction(ctx, func(tx *database.Database) error {
		room := &models.Room{Name: "Team room", AdminID: ids[0], IsActive: true}
		if err := tx.CreateRoom(ctx, room, ids); err != nil {
			return err
		}
		roomID = room.ID
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = db.GetRoom(ctx, roomID)
	assert.True(t, database.IsNotFound(err))
	rooms, err := db.GetUserRooms(ctx, ids[1])
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestNestedTransactionJoinsOuter(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice")

	err := db.Transaction(ctx, func(tx *database.Database) error {
		return tx.Transaction(ctx, func(inner *database.Database) error {
			alice.AvatarURL = "https://example.com/a.png"
			return inner.UpdateUser(ctx, alice)
		})
	})
	require.NoError(t, err)

	got, err := db.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png", got.AvatarURL)
}

func TestMembersKeepJoinOrder(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	ctx := context.Background()
	ids := testutil.CreateUsers(t, db, "carol", "alice", "bob")

	room := &models.Room{Name: "Team room", AdminID: ids[0], IsActive: true}
	require.NoError(t, db.CreateRoom(ctx, room, ids))

	got, err := db.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, ids, got.MemberIDs())
	assert.Equal(t, "carol", got.Admin.Username)
	assert.Equal(t, "alice", got.Members[1].User.Username)

	removed, err := db.RemoveRoomMember(ctx, room.ID, ids[1])
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = db.RemoveRoomMember(ctx, room.ID, ids[1])
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, db.AddRoomMember(ctx, room.ID, ids[1]))
	got, err = db.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ids[0], ids[2], ids[1]}, got.MemberIDs())

	n, err := db.CountRoomMembers(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestDeleteRoomCascadeLeavesNothingBehind(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	ctx := context.Background()
	ids := testutil.CreateUsers(t, db, "alice", "bob")

	room := &models.Room{Name: "Team room", AdminID: ids[0], IsActive: true}
	require.NoError(t, db.CreateRoom(ctx, room, ids))
	keep := &models.Room{Name: "Other room", AdminID: ids[1], IsActive: true}
	require.NoError(t, db.CreateRoom(ctx, keep, ids[1:]))

	task := &models.Task{Title: "in room", AuthorID: ids[0], RoomID: &room.ID}
	require.NoError(t, db.CreateTask(ctx, task, ids))
	standalone := &models.Task{Title: "standalone", AuthorID: ids[0]}
	require.NoError(t, db.CreateTask(ctx, standalone, nil))

	require.NoError(t, db.SaveComment(ctx, &models.Comment{Content: "room", AuthorID: ids[0], RoomID: &room.ID}))
	require.NoError(t, db.SaveComment(ctx, &models.Comment{Content: "task", AuthorID: ids[1], TaskID: &task.ID}))
	require.NoError(t, db.SaveComment(ctx, &models.Comment{Content: "elsewhere", AuthorID: ids[1], RoomID: &keep.ID}))

	var result database.CascadeResult
	err := db.Transaction(ctx, func(tx *database.Database) error {
		var err error
		result, err = tx.DeleteRoomCascade(ctx, room.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, database.CascadeResult{DeletedTasks: 1, DeletedComments: 2}, result)

	tasks, err := db.CountRoomTasks(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, tasks)
	_, err = db.GetTask(ctx, standalone.ID)
	require.NoError(t, err)

	var assignees int64
	require.NoError(t, db.Gorm().Model(&models.TaskAssignee{}).Where("task_id = ?", task.ID).Count(&assignees).Error)
	assert.Zero(t, assignees)

	kept, err := db.CountRoomComments(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), kept)

	for _, id := range ids {
		rooms, err := db.GetUserRooms(ctx, id)
		require.NoError(t, err)
		for _, r := range rooms {
			assert.NotEqual(t, room.ID, r.ID)
		}
	}

	_, err = db.DeleteRoomCascade(ctx, room.ID)
	assert.True(t, database.IsNotFound(err))
}

func TestUserLookups(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	ctx := context.Background()
	testutil.CreateUsers(t, db, "alice", "alfred", "bob")

	found, err := db.FindUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)

	matches, err := db.SearchUsersByUsername(ctx, "AL", 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "alfred", matches[0].Username)

	require.NoError(t, db.UpdateLastSeen(ctx, found.ID))
	_, err = db.FindUserByEmail(ctx, "nobody@example.com")
	assert.True(t, database.IsNotFound(err))
}

func TestTransactionRetriesOnlySerializationFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, 3},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, 3},
		{"unique violation", &pgconn.PgError{Code: "23505"}, 1},
		{"plain error", errors.New("room is full"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewTestDatabase(t).WithRetries(2)
			ctx := context.Background()
			alice := testutil.CreateUser(t, db, "alice")

			calls := 0
			err := db.Transaction(ctx, func(tx *database.Database) error {
				calls++
				room := &models.Room{Name: "Team room", AdminID: alice.ID, IsActive: true}
				if err := tx.CreateRoom(ctx, room, []uuid.UUID{alice.ID}); err != nil {
					return err
				}
				return tt.err
			})
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantCalls, calls)

			rooms, err := db.GetUserRooms(ctx, alice.ID)
			require.NoError(t, err)
			assert.Empty(t, rooms)
		})
	}
}

func TestTransactionRetrySucceedsOnLaterAttempt(t *testing.T) {
	db := testutil.NewTestDatabase(t).WithRetries(3)
	ctx := context.Background()
	alice := testutil.CreateUser(t, db, "alice")

	calls := 0
	err := db.Transaction(ctx, func(tx *database.Database) error {
		calls++
		room := &models.Room{Name: "Team room", AdminID: alice.ID, IsActive: true}
		if err := tx.CreateRoom(ctx, room, []uuid.UUID{alice.ID}); err != nil {
			return err
		}
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	rooms, err := db.GetUserRooms(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}
