package store

import (
	"errors"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/larsenwald/Rons-Rooms-Server/internal/dto"
	"github.com/larsenwald/Rons-Rooms-Server/pkg/metrics"
)

var (
	ErrRoomExists   = errors.New("room code already taken")
	ErrRoomNotFound = errors.New("room not found")
)

// Conn is the transport handle the store fans out to. Send must never
// block; a failed Send means the connection is already closing and the
// message is simply skipped. Close is only invoked by the reaper.
type Conn interface {
	Send(data []byte) error
	Close(reason string) error
}

type member struct {
	conn Conn
	name string
}

// room is a single registry entry. Every mutation on it goes through mu,
// so join/leave/sync/reap on the same code are serialized. closed is set
// once the room has been removed from the registry; a goroutine that
// fetched the entry before removal sees it and backs off.
type room struct {
	mu sync.Mutex

	code     string
	videoID  string
	hostName string

	createdAt    time.Time
	lastActivity time.Time

	state   dto.PlaybackState
	acked   map[string]struct{}
	members map[string]member // keyed by viewerID

	closed bool
}

// Store owns the room registry and every connection bucket. Lock order is
// always Store.mu before room.mu, never the reverse.
type Store struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room
}

func New(log *slog.Logger) *Store {
	return &Store{log: log, rooms: make(map[string]*room)}
}

// NormalizeCode is the canonical form used for every lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom registers a new room with a paused zero-position state. The
// room record and its connection bucket come into existence together.
func (s *Store) CreateRoom(code, videoID, hostName string) (dto.RoomSummary, error) {
	code = NormalizeCode(code)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.rooms[code]; taken {
		return dto.RoomSummary{}, ErrRoomExists
	}

	r := &room{
		code:         code,
		videoID:      videoID,
		hostName:     hostName,
		createdAt:    now,
		lastActivity: now,
		state:        dto.PlaybackState{Action: dto.ActionPause, CurrentTime: 0, Timestamp: now.UnixMilli()},
		acked:        make(map[string]struct{}),
		members:      make(map[string]member),
	}
	s.rooms[code] = r

	metrics.RoomsActive.Inc()
	s.log.Info("room.created", "code", code, "videoId", videoID, "host", hostName)
	return r.summaryLocked(), nil
}

// GetRoom returns a snapshot of one room.
func (s *Store) GetRoom(code string) (dto.RoomSummary, error) {
	r := s.get(NormalizeCode(code))
	if r == nil {
		return dto.RoomSummary{}, ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return dto.RoomSummary{}, ErrRoomNotFound
	}
	return r.summaryLocked(), nil
}

// ListRooms snapshots every live room.
func (s *Store) ListRooms() []dto.RoomSummary {
	s.mu.RLock()
	rooms := make([]*room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.RUnlock()

	out := make([]dto.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			out = append(out, r.summaryLocked())
		}
		r.mu.Unlock()
	}
	return out
}

// Touch refreshes a room's activity timestamp; no-op if the room is gone.
func (s *Store) Touch(code string) {
	r := s.get(NormalizeCode(code))
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.lastActivity = time.Now()
	}
	r.mu.Unlock()
}

// Join binds a connection to an existing room. The current playback state
// goes back to the joiner first, then the whole room (joiner included)
// hears the new headcount. Absent rooms are never created here.
func (s *Store) Join(code, viewerID, name string, c Conn) (int, error) {
	code = NormalizeCode(code)
	r := s.get(code)
	if r == nil {
		return 0, ErrRoomNotFound
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrRoomNotFound
	}

	r.lastActivity = time.Now()
	r.members[viewerID] = member{conn: c, name: name}
	count := len(r.members)

	_ = c.Send(dto.Marshal(dto.NewJoined(code, r.videoID, r.state, count)))
	r.broadcastLocked(dto.Marshal(dto.NewViewerUpdate(count)), "")
	r.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	s.log.Info("room.joined", "code", code, "viewerId", viewerID, "name", name, "viewers", count)
	return count, nil
}

// Leave drops a connection from its room. The last viewer out deletes the
// room; otherwise the remaining members hear the new headcount.
func (s *Store) Leave(code, viewerID string) {
	code = NormalizeCode(code)
	r := s.get(code)
	if r == nil {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if _, present := r.members[viewerID]; !present {
		r.mu.Unlock()
		return
	}

	delete(r.members, viewerID)
	delete(r.acked, viewerID)
	remaining := len(r.members)
	if remaining > 0 {
		r.lastActivity = time.Now()
		r.broadcastLocked(dto.Marshal(dto.NewViewerUpdate(remaining)), "")
	}
	r.mu.Unlock()

	metrics.ConnectionsActive.Dec()
	s.log.Info("room.left", "code", code, "viewerId", viewerID, "viewers", remaining)

	if remaining == 0 {
		s.deleteIfEmpty(code)
	}
}

// Sync replaces the room's playback state wholesale and fans it out to
// every member except the originator. Clearing the acked set and the
// broadcast happen under the room lock so all viewers observe state
// changes in server-applied order.
func (s *Store) Sync(code, viewerID, action string, currentTime float64) error {
	code = NormalizeCode(code)
	if currentTime < 0 {
		currentTime = 0
	}

	r := s.get(code)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}

	now := time.Now()
	r.lastActivity = now
	r.acked = make(map[string]struct{})
	r.state = dto.PlaybackState{Action: action, CurrentTime: currentTime, Timestamp: now.UnixMilli()}

	r.broadcastLocked(dto.Marshal(dto.NewSyncEvent(r.state)), viewerID)
	return nil
}

// Ack records that viewerID applied the current playback state and tells
// everyone else how far along the room is. Completeness is relative to
// the sync originator: all caught up once viewerCount-1 have acked.
func (s *Store) Ack(code, viewerID string) error {
	code = NormalizeCode(code)
	r := s.get(code)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}

	r.acked[viewerID] = struct{}{}
	synced := len(r.acked)
	total := len(r.members)
	all := synced >= total-1

	r.broadcastLocked(dto.Marshal(dto.NewSyncAckEvent(viewerID, synced, total, all)), viewerID)
	return nil
}

// Count reports the live connections in a room, 0 if it is absent.
func (s *Store) Count(code string) int {
	r := s.get(NormalizeCode(code))
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	return len(r.members)
}

// Broadcast delivers payload to every member of a room except
// exceptViewerID; pass "" to reach everyone.
func (s *Store) Broadcast(code string, payload []byte, exceptViewerID string) {
	r := s.get(NormalizeCode(code))
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.broadcastLocked(payload, exceptViewerID)
}

// deleteIfEmpty removes the room only if it is still empty once both
// locks are held, so a join racing the removal wins. Idempotent: a second
// call on a gone room is a no-op.
func (s *Store) deleteIfEmpty(code string) bool {
	s.mu.Lock()
	r := s.rooms[code]
	if r == nil {
		s.mu.Unlock()
		return false
	}

	r.mu.Lock()
	if len(r.members) > 0 {
		r.mu.Unlock()
		s.mu.Unlock()
		return false
	}
	delete(s.rooms, code)
	r.closed = true
	r.mu.Unlock()
	s.mu.Unlock()

	metrics.RoomsActive.Dec()
	s.log.Info("room.removed", "code", code)
	return true
}

func (s *Store) get(code string) *room {
	s.mu.RLock()
	r := s.rooms[code]
	s.mu.RUnlock()
	return r
}

// broadcastLocked fans payload out to every member except exceptID (""
// means everyone). Callers hold r.mu; sends are channel pushes, not
// network writes, so this never blocks.
func (r *room) broadcastLocked(payload []byte, exceptID string) {
	for id, m := range r.members {
		if id == exceptID {
			continue
		}
		if err := m.conn.Send(payload); err != nil {
			continue
		}
		metrics.FanoutTotal.Inc()
	}
}

func (r *room) summaryLocked() dto.RoomSummary {
	return dto.RoomSummary{
		Code:           r.code,
		VideoID:        r.videoID,
		HostName:       r.hostName,
		ViewerCount:    len(r.members),
		State:          r.state,
		CreatedAt:      r.createdAt.UnixMilli(),
		LastActivityAt: r.lastActivity.UnixMilli(),
	}
}
