package chat_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"roomchat/backend/internal/chat"
	"roomchat/backend/internal/models"
	"roomchat/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *storage.Service
	svc   *chat.Service
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := storage.NewStorageService(db)
	require.NoError(t, store.Migrate(context.Background()))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{store: store, svc: chat.NewService(store, log), ctx: context.Background()}
}

func (f *fixture) member(t *testing.T, name string) *models.Member {
	t.Helper()
	m := &models.Member{Name: name, Email: name + "@example.com"}
	require.NoError(t, f.store.SaveMember(f.ctx, m))
	return m
}

func (f *fixture) unread(t *testing.T, identity string, roomID uint) int64 {
	t.Helper()
	rooms, err := f.svc.ListMyRooms(f.ctx, identity)
	require.NoError(t, err)
	for _, r := range rooms {
		if r.RoomID == roomID {
			return r.UnreadCount
		}
	}
	t.Fatalf("room %d not listed for %s", roomID, identity)
	return 0
}

func (f *fixture) participantIDs(t *testing.T, roomID uint) []uint {
	t.Helper()
	participants, err := f.store.ListParticipants(f.ctx, roomID)
	require.NoError(t, err)
	ids := make([]uint, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.MemberID)
	}
	return ids
}

func TestCreateGroupRoom_CreatorJoins(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")

	room, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)
	assert.Equal(t, "Team", room.RoomName)
	assert.Equal(t, []uint{x.ID}, f.participantIDs(t, room.RoomID))

	// Names are not unique.
	again, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)
	assert.NotEqual(t, room.RoomID, again.RoomID)

	rooms, err := f.svc.ListGroupRooms(f.ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}

func TestCreateGroupRoom_Failures(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")

	_, err := f.svc.CreateGroupRoom(f.ctx, "Team", "ghost@example.com")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	_, err = f.svc.CreateGroupRoom(f.ctx, "   ", x.Email)
	assert.ErrorIs(t, err, chat.ErrInvalidOperation)

	rooms, err := f.svc.ListGroupRooms(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms, "failed creation must not leave a room behind")
}

func TestJoinGroupRoom(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	y := f.member(t, "y")
	room, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)

	require.NoError(t, f.svc.JoinGroupRoom(f.ctx, room.RoomID, y.Email))
	require.NoError(t, f.svc.JoinGroupRoom(f.ctx, room.RoomID, y.Email), "duplicate join is a no-op")
	assert.ElementsMatch(t, []uint{x.ID, y.ID}, f.participantIDs(t, room.RoomID))

	assert.ErrorIs(t, f.svc.JoinGroupRoom(f.ctx, 999, y.Email), chat.ErrNotFound)
	assert.ErrorIs(t, f.svc.JoinGroupRoom(f.ctx, room.RoomID, "ghost@example.com"), chat.ErrNotFound)

	privateID, err := f.svc.GetOrCreatePrivateRoom(f.ctx, x.Email, y.ID)
	require.NoError(t, err)
	z := f.member(t, "z")
	assert.ErrorIs(t, f.svc.JoinGroupRoom(f.ctx, privateID, z.Email), chat.ErrInvalidOperation)
}

func TestLeaveGroupRoom_DeletesEmptyRoom(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	y := f.member(t, "y")
	room, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)
	require.NoError(t, f.svc.JoinGroupRoom(f.ctx, room.RoomID, y.Email))
	_, err = f.svc.SaveMessage(f.ctx, room.RoomID, x.Email, "hi")
	require.NoError(t, err)

	require.NoError(t, f.svc.LeaveGroupRoom(f.ctx, room.RoomID, x.Email))
	assert.NotContains(t, f.participantIDs(t, room.RoomID), x.ID)

	// History survives while somebody is still in the room.
	history, err := f.svc.GetHistory(f.ctx, room.RoomID, y.Email)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	assert.ErrorIs(t, f.svc.LeaveGroupRoom(f.ctx, room.RoomID, x.Email), chat.ErrNotFound, "not a participant any more")

	require.NoError(t, f.svc.LeaveGroupRoom(f.ctx, room.RoomID, y.Email))
	_, err = f.store.GetRoomByID(f.ctx, room.RoomID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "empty group room must be deleted")

	var orphans int64
	require.NoError(t, f.store.DB.Model(&models.ReadStatus{}).Where("room_id = ?", room.RoomID).Count(&orphans).Error)
	assert.Zero(t, orphans)
}

func TestLeaveGroupRoom_PrivateRoomRejected(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	y := f.member(t, "y")
	privateID, err := f.svc.GetOrCreatePrivateRoom(f.ctx, x.Email, y.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.LeaveGroupRoom(f.ctx, privateID, x.Email), chat.ErrInvalidOperation)
	assert.ElementsMatch(t, []uint{x.ID, y.ID}, f.participantIDs(t, privateID))
}

func TestGetOrCreatePrivateRoom_SameRoomFromBothSides(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	y := f.member(t, "y")
	z := f.member(t, "z")

	first, err := f.svc.GetOrCreatePrivateRoom(f.ctx, x.Email, y.ID)
	require.NoError(t, err)
	second, err := f.svc.GetOrCreatePrivateRoom(f.ctx, x.Email, y.ID)
	require.NoError(t, err)
	reverse, err := f.svc.GetOrCreatePrivateRoom(f.ctx, y.Email, x.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, reverse)

	other, err := f.svc.GetOrCreatePrivateRoom(f.ctx, z.Email, x.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	room, err := f.store.GetRoomByID(f.ctx, first)
	require.NoError(t, err)
	assert.False(t, room.IsGroup)
	assert.Equal(t, "x-y", room.Name)
	assert.ElementsMatch(t, []uint{x.ID, y.ID}, f.participantIDs(t, first))

	var privateRooms int64
	require.NoError(t, f.store.DB.Model(&models.Room{}).Where("is_group = ?", false).Count(&privateRooms).Error)
	assert.Equal(t, int64(2), privateRooms)
}

func TestGetOrCreatePrivateRoom_Failures(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")

	_, err := f.svc.GetOrCreatePrivateRoom(f.ctx, x.Email, 999)
	assert.ErrorIs(t, err, chat.ErrNotFound)

	_, err = f.svc.GetOrCreatePrivateRoom(f.ctx, "ghost@example.com", x.ID)
	assert.ErrorIs(t, err, chat.ErrNotFound)

	_, err = f.svc.GetOrCreatePrivateRoom(f.ctx, x.Email, x.ID)
	assert.ErrorIs(t, err, chat.ErrInvalidOperation)
}

func TestSaveMessage_FansOutReadStatus(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	y := f.member(t, "y")
	z := f.member(t, "z")
	room, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)
	require.NoError(t, f.svc.JoinGroupRoom(f.ctx, room.RoomID, y.Email))
	require.NoError(t, f.svc.JoinGroupRoom(f.ctx, room.RoomID, z.Email))

	msg, err := f.svc.SaveMessage(f.ctx, room.RoomID, y.Email, "hello")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)

	var statuses []models.ReadStatus
	require.NoError(t, f.store.DB.Where("message_id = ?", msg.ID).Find(&statuses).Error)
	require.Len(t, statuses, 3, "one row per participant at save time")
	for _, st := range statuses {
		assert.Equal(t, st.MemberID == y.ID, st.IsRead, "only the sender's row is read")
	}

	// Late joiners get no rows for earlier messages.
	late := f.member(t, "late")
	require.NoError(t, f.svc.JoinGroupRoom(f.ctx, room.RoomID, late.Email))
	assert.Zero(t, f.unread(t, late.Email, room.RoomID))
}

func TestSaveMessage_Failures(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	room, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)

	_, err = f.svc.SaveMessage(f.ctx, 999, x.Email, "hi")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	_, err = f.svc.SaveMessage(f.ctx, room.RoomID, "ghost@example.com", "hi")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	var messages int64
	require.NoError(t, f.store.DB.Model(&models.Message{}).Count(&messages).Error)
	assert.Zero(t, messages)
}

// TestUnreadScenario follows the team-room walkthrough end to end.
func TestUnreadScenario(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	y := f.member(t, "y")

	room, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)
	assert.Zero(t, f.unread(t, x.Email, room.RoomID))

	require.NoError(t, f.svc.JoinGroupRoom(f.ctx, room.RoomID, y.Email))
	_, err = f.svc.SaveMessage(f.ctx, room.RoomID, x.Email, "hi")
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.unread(t, y.Email, room.RoomID))
	assert.Zero(t, f.unread(t, x.Email, room.RoomID))

	require.NoError(t, f.svc.MarkRoomRead(f.ctx, room.RoomID, y.Email))
	assert.Zero(t, f.unread(t, y.Email, room.RoomID))
}

func TestMarkRoomRead_Failures(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	room, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.MarkRoomRead(f.ctx, 999, x.Email), chat.ErrNotFound)
	assert.ErrorIs(t, f.svc.MarkRoomRead(f.ctx, room.RoomID, "ghost@example.com"), chat.ErrNotFound)
}

func TestGetHistory(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	y := f.member(t, "y")
	z := f.member(t, "z")
	room, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)
	require.NoError(t, f.svc.JoinGroupRoom(f.ctx, room.RoomID, y.Email))

	for _, m := range []struct{ sender, text string }{
		{x.Email, "first"}, {y.Email, "second"}, {x.Email, "third"},
	} {
		_, err := f.svc.SaveMessage(f.ctx, room.RoomID, m.sender, m.text)
		require.NoError(t, err)
	}

	history, err := f.svc.GetHistory(f.ctx, room.RoomID, y.Email)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, chat.HistoryEntry{RoomID: room.RoomID, Message: "first", SenderEmail: x.Email}, history[0])
	assert.Equal(t, "second", history[1].Message)
	assert.Equal(t, y.Email, history[1].SenderEmail)
	assert.Equal(t, "third", history[2].Message)

	_, err = f.svc.GetHistory(f.ctx, room.RoomID, z.Email)
	assert.ErrorIs(t, err, chat.ErrForbidden, "non-participants cannot read history")

	_, err = f.svc.GetHistory(f.ctx, 999, x.Email)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestListMyRooms(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	y := f.member(t, "y")

	team, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)
	privateID, err := f.svc.GetOrCreatePrivateRoom(f.ctx, y.Email, x.ID)
	require.NoError(t, err)
	_, err = f.svc.SaveMessage(f.ctx, privateID, y.Email, "ping")
	require.NoError(t, err)
	_, err = f.svc.SaveMessage(f.ctx, privateID, y.Email, "ping again")
	require.NoError(t, err)

	rooms, err := f.svc.ListMyRooms(f.ctx, x.Email)
	require.NoError(t, err)
	assert.ElementsMatch(t, []chat.MyRoom{
		{RoomID: team.RoomID, RoomName: "Team", IsGroupChat: true, UnreadCount: 0},
		{RoomID: privateID, RoomName: "y-x", IsGroupChat: false, UnreadCount: 2},
	}, rooms)

	_, err = f.svc.ListMyRooms(f.ctx, "ghost@example.com")
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestIsRoomParticipant(t *testing.T) {
	f := newFixture(t)
	x := f.member(t, "x")
	y := f.member(t, "y")
	room, err := f.svc.CreateGroupRoom(f.ctx, "Team", x.Email)
	require.NoError(t, err)

	ok, err := f.svc.IsRoomParticipant(f.ctx, room.RoomID, x.Email)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.IsRoomParticipant(f.ctx, room.RoomID, y.Email)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.IsRoomParticipant(f.ctx, 999, x.Email)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}
