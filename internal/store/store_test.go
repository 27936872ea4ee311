package store

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larsenwald/Rons-Rooms-Server/internal/dto"
)

type mockConn struct {
	mu       sync.Mutex
	received [][]byte
	closed   bool
	reason   string
	sendErr  error
}

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.reason = reason
	return nil
}

func (m *mockConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, 0, len(m.received))
	for _, raw := range m.received {
		var msg map[string]any
		require.NoError(t, json.Unmarshal(raw, &msg))
		out = append(out, msg)
	}
	return out
}

func (m *mockConn) lastOfType(t *testing.T, typ string) map[string]any {
	t.Helper()
	var found map[string]any
	for _, msg := range m.messages(t) {
		if msg["type"] == typ {
			found = msg
		}
	}
	return found
}

func newTestStore() *Store {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStore_CreateRoom(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		preExist string
		wantCode string
		wantErr  error
	}{
		{name: "normalizes to uppercase", code: "abc123", wantCode: "ABC123"},
		{name: "duplicate code rejected", code: "ABC123", preExist: "ABC123", wantErr: ErrRoomExists},
		{name: "duplicate is case-insensitive", code: "abc123", preExist: "ABC123", wantErr: ErrRoomExists},
		{name: "trims whitespace", code: "  room1 ", wantCode: "ROOM1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			if tt.preExist != "" {
				_, err := s.CreateRoom(tt.preExist, "vid0", "host0")
				require.NoError(t, err)
			}

			sum, err := s.CreateRoom(tt.code, "vid1", "ron")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, sum.Code)
			assert.Equal(t, dto.ActionPause, sum.State.Action)
			assert.Zero(t, sum.State.CurrentTime)
		})
	}
}

func TestStore_DuplicateCreateLeavesOriginalUntouched(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateRoom("ABC123", "vid1", "ron")
	require.NoError(t, err)

	_, err = s.CreateRoom("abc123", "vid2", "eve")
	require.ErrorIs(t, err, ErrRoomExists)

	sum, err := s.GetRoom("ABC123")
	require.NoError(t, err)
	assert.Equal(t, "vid1", sum.VideoID)
	assert.Equal(t, "ron", sum.HostName)
}

func TestStore_JoinAbsentRoom(t *testing.T) {
	s := newTestStore()
	conn := &mockConn{}

	_, err := s.Join("NOPE", "v1", "alice", conn)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, 0, s.Count("NOPE"))
	assert.Empty(t, s.ListRooms())
	assert.Empty(t, conn.messages(t))
}

func TestStore_JoinRepliesThenAnnounces(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateRoom("ABC123", "vid1", "ron")
	require.NoError(t, err)

	alice := &mockConn{}
	count, err := s.Join("abc123", "v-alice", "alice", alice)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	msgs := alice.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, dto.TypeJoined, msgs[0]["type"])
	assert.Equal(t, "ABC123", msgs[0]["roomCode"])
	assert.Equal(t, "vid1", msgs[0]["videoId"])
	assert.Equal(t, dto.TypeViewerUpdate, msgs[1]["type"])
	assert.EqualValues(t, 1, msgs[1]["viewerCount"])

	bob := &mockConn{}
	count, err = s.Join("ABC123", "v-bob", "bob", bob)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Existing members hear the new headcount too.
	update := alice.lastOfType(t, dto.TypeViewerUpdate)
	require.NotNil(t, update)
	assert.EqualValues(t, 2, update["viewerCount"])
}

func TestStore_SyncFanout(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateRoom("ABC123", "vid1", "ron")
	require.NoError(t, err)

	alice := &mockConn{}
	bob := &mockConn{}
	_, err = s.Join("ABC123", "v-alice", "alice", alice)
	require.NoError(t, err)
	_, err = s.Join("ABC123", "v-bob", "bob", bob)
	require.NoError(t, err)

	require.NoError(t, s.Sync("ABC123", "v-alice", dto.ActionPlay, 12.5))

	got := bob.lastOfType(t, dto.TypeSync)
	require.NotNil(t, got, "bob must receive the sync event")
	assert.Equal(t, dto.ActionPlay, got["action"])
	assert.EqualValues(t, 12.5, got["currentTime"])
	assert.NotZero(t, got["timestamp"])

	// The originator is never echoed.
	assert.Nil(t, alice.lastOfType(t, dto.TypeSync))
}

func TestStore_SyncClampsNegativePosition(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateRoom("ABC123", "vid1", "ron")
	require.NoError(t, err)

	alice := &mockConn{}
	bob := &mockConn{}
	_, _ = s.Join("ABC123", "v-alice", "alice", alice)
	_, _ = s.Join("ABC123", "v-bob", "bob", bob)

	require.NoError(t, s.Sync("ABC123", "v-alice", dto.ActionSeek, -3))

	got := bob.lastOfType(t, dto.TypeSync)
	require.NotNil(t, got)
	assert.EqualValues(t, 0, got["currentTime"])
}

func TestStore_AckProgressionAndReset(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateRoom("ABC123", "vid1", "ron")
	require.NoError(t, err)

	host := &mockConn{}
	v2 := &mockConn{}
	v3 := &mockConn{}
	_, _ = s.Join("ABC123", "v-host", "ron", host)
	_, _ = s.Join("ABC123", "v2", "alice", v2)
	_, _ = s.Join("ABC123", "v3", "bob", v3)

	require.NoError(t, s.Sync("ABC123", "v-host", dto.ActionPlay, 1))

	require.NoError(t, s.Ack("ABC123", "v2"))
	ack := host.lastOfType(t, dto.TypeSyncAck)
	require.NotNil(t, ack)
	assert.EqualValues(t, 1, ack["syncedCount"])
	assert.EqualValues(t, 3, ack["totalViewers"])
	assert.Equal(t, false, ack["allSynced"])
	assert.Equal(t, "v2", ack["userId"])

	require.NoError(t, s.Ack("ABC123", "v3"))
	ack = host.lastOfType(t, dto.TypeSyncAck)
	require.NotNil(t, ack)
	assert.EqualValues(t, 2, ack["syncedCount"])
	assert.Equal(t, true, ack["allSynced"])

	// Acking twice does not inflate the count.
	require.NoError(t, s.Ack("ABC123", "v3"))
	ack = host.lastOfType(t, dto.TypeSyncAck)
	assert.EqualValues(t, 2, ack["syncedCount"])

	// A new sync invalidates every prior acknowledgment.
	require.NoError(t, s.Sync("ABC123", "v-host", dto.ActionPause, 2))
	require.NoError(t, s.Ack("ABC123", "v2"))
	ack = host.lastOfType(t, dto.TypeSyncAck)
	require.NotNil(t, ack)
	assert.EqualValues(t, 1, ack["syncedCount"])
}

func TestStore_LastLeaveDeletesRoom(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateRoom("ABC123", "vid1", "ron")
	require.NoError(t, err)

	alice := &mockConn{}
	_, _ = s.Join("ABC123", "v-alice", "alice", alice)
	require.Equal(t, 1, s.Count("ABC123"))

	s.Leave("ABC123", "v-alice")

	assert.Equal(t, 0, s.Count("ABC123"))
	assert.Empty(t, s.ListRooms())
	_, err = s.GetRoom("ABC123")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestStore_LeaveAnnouncesRemaining(t *testing.T) {
	s := newTestStore()
	_, _ = s.CreateRoom("ABC123", "vid1", "ron")

	alice := &mockConn{}
	bob := &mockConn{}
	_, _ = s.Join("ABC123", "v-alice", "alice", alice)
	_, _ = s.Join("ABC123", "v-bob", "bob", bob)

	s.Leave("ABC123", "v-bob")

	update := alice.lastOfType(t, dto.TypeViewerUpdate)
	require.NotNil(t, update)
	assert.EqualValues(t, 1, update["viewerCount"])
	assert.Equal(t, 1, s.Count("ABC123"))
}

func TestStore_LeaveIsIdempotent(t *testing.T) {
	s := newTestStore()
	_, _ = s.CreateRoom("ABC123", "vid1", "ron")

	alice := &mockConn{}
	_, _ = s.Join("ABC123", "v-alice", "alice", alice)

	s.Leave("ABC123", "v-alice")
	s.Leave("ABC123", "v-alice")
	s.Leave("GONE", "v-alice")

	assert.Empty(t, s.ListRooms())
}

func TestStore_BroadcastExcept(t *testing.T) {
	s := newTestStore()
	_, _ = s.CreateRoom("ABC123", "vid1", "ron")

	alice := &mockConn{}
	bob := &mockConn{}
	_, _ = s.Join("ABC123", "v-alice", "alice", alice)
	_, _ = s.Join("ABC123", "v-bob", "bob", bob)

	aliceBefore := len(alice.messages(t))
	bobBefore := len(bob.messages(t))
	s.Broadcast("abc123", []byte(`{"type":"viewer_update","viewerCount":2}`), "v-bob")

	assert.Len(t, alice.messages(t), aliceBefore+1)
	assert.Len(t, bob.messages(t), bobBefore, "excluded viewer is skipped")

	s.Broadcast("ABC123", []byte(`{"type":"viewer_update","viewerCount":2}`), "")
	assert.Len(t, alice.messages(t), aliceBefore+2)
	assert.Len(t, bob.messages(t), bobBefore+1)
}

func TestStore_Touch(t *testing.T) {
	s := newTestStore()
	s.Touch("GONE") // no-op on absent rooms

	_, err := s.CreateRoom("ABC123", "vid1", "ron")
	require.NoError(t, err)
	before, err := s.GetRoom("ABC123")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	s.Touch("abc123")

	after, err := s.GetRoom("ABC123")
	require.NoError(t, err)
	assert.Greater(t, after.LastActivityAt, before.LastActivityAt)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
}

func TestStore_BroadcastSkipsFailedSends(t *testing.T) {
	s := newTestStore()
	_, _ = s.CreateRoom("ABC123", "vid1", "ron")

	dead := &mockConn{sendErr: io.ErrClosedPipe}
	alive := &mockConn{}
	_, _ = s.Join("ABC123", "v-dead", "dead", dead)
	_, _ = s.Join("ABC123", "v-alive", "alive", alive)

	// A stalled member never fails the broadcast for everyone else.
	require.NoError(t, s.Sync("ABC123", "v-alive", dto.ActionPlay, 5))
	require.NoError(t, s.Sync("ABC123", "v-dead", dto.ActionPause, 6))

	got := alive.lastOfType(t, dto.TypeSync)
	require.NotNil(t, got)
	assert.Equal(t, dto.ActionPause, got["action"])
}

func TestStore_SyncOnAbsentRoom(t *testing.T) {
	s := newTestStore()
	assert.ErrorIs(t, s.Sync("NOPE", "v1", dto.ActionPlay, 0), ErrRoomNotFound)
	assert.ErrorIs(t, s.Ack("NOPE", "v1"), ErrRoomNotFound)
}
