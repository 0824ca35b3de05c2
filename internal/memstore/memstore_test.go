package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRooms(t *testing.T) {
	ctx := context.Background()
	s := NewRooms()
	now := time.Now()

	for i, code := range []string{"AAAA0001", "BBBB0002", "CCCC0003"} {
		room := &domain.Room{Code: code, HostID: "h", CreatedAt: now.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.CreateRoom(ctx, room))
		assert.NotEmpty(t, room.ID)
	}
	assert.ErrorIs(t, s.CreateRoom(ctx, &domain.Room{Code: "AAAA0001"}), domain.ErrCodeTaken)

	require.NoError(t, s.EndRoom(ctx, "BBBB0002", now, 12))
	got, err := s.GetRoomByCode(ctx, "BBBB0002")
	require.NoError(t, err)
	assert.True(t, got.Ended())
	assert.Equal(t, 12.0, got.Playback.Anchor)

	first, next, err := s.ListActive(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "CCCC0003", first[0].Code)
	second, next, err := s.ListActive(ctx, 1, next)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "AAAA0001", second[0].Code)
	assert.Empty(t, next)

	_, err = s.GetRoomByCode(ctx, "ZZZZ9999")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestParticipants(t *testing.T) {
	ctx := context.Background()
	s := NewParticipants()
	now := time.Now()

	p := &domain.Participant{RoomCode: "R", UserID: "u", JoinedAt: now}
	require.NoError(t, s.CreateMembership(ctx, p))
	require.NoError(t, s.CreateMembership(ctx, p))
	active, _ := s.ListActiveMemberships(ctx, "R")
	assert.Len(t, active, 1)

	require.NoError(t, s.CloseMembership(ctx, "R", "u", now))
	active, _ = s.ListActiveMemberships(ctx, "R")
	assert.Empty(t, active)

	require.NoError(t, s.CreateMembership(ctx, p))
	require.NoError(t, s.CloseAllMemberships(ctx, "R", now))
	active, _ = s.ListActiveMemberships(ctx, "R")
	assert.Empty(t, active)
}

func TestVideosAndChat(t *testing.T) {
	ctx := context.Background()
	strict := NewVideos(false, domain.Video{ID: "v1", Title: "One"})
	v, err := strict.GetVideo(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "One", v.Title)
	_, err = strict.GetVideo(ctx, "v2")
	assert.ErrorIs(t, err, domain.ErrVideoNotFound)

	_, err = NewVideos(true).GetVideo(ctx, "anything")
	assert.NoError(t, err)

	c := NewChat()
	for _, text := range []string{"a", "b", "c"} {
		_, err := c.Save(ctx, "R", "u", text)
		require.NoError(t, err)
	}
	msgs, next, err := c.History(ctx, "R", "", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "c", msgs[0].Text)
	msgs, next, err = c.History(ctx, "R", next, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Text)
	assert.Empty(t, next)
}
