package ws

import (
	"encoding/json"

	"log/slog"

	"github.com/larsenwald/Rons-Rooms-Server/internal/dto"
	"github.com/larsenwald/Rons-Rooms-Server/internal/store"
)

type sessionState int

const (
	stateConnected sessionState = iota // accepted, not in a room
	stateJoined                        // bound to exactly one room
	stateDisconnected                  // terminal
)

// session is the per-connection protocol state machine. It owns no room
// data itself; every mutation goes through the store's serialized path.
type session struct {
	log      *slog.Logger
	rooms    *store.Store
	conn     store.Conn
	viewerID string

	state    sessionState
	roomCode string
	name     string
}

func newSession(logger *slog.Logger, rooms *store.Store, conn store.Conn, viewerID string) *session {
	return &session{log: logger, rooms: rooms, conn: conn, viewerID: viewerID, state: stateConnected}
}

// handle processes one inbound frame. An undecodable frame earns the
// sender an error reply and nothing else; unknown types are dropped.
func (s *session) handle(raw []byte) {
	var msg dto.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Warn("ws.malformed", "viewerId", s.viewerID, "err", err)
		_ = s.conn.Send(dto.Marshal(dto.NewError("malformed message")))
		return
	}

	switch msg.Type {
	case dto.TypeJoin:
		s.handleJoin(msg)
	case dto.TypeSync:
		s.handleSync(msg)
	case dto.TypeSyncAck:
		s.handleAck()
	case dto.TypeLeave:
		s.handleLeave()
	default:
		s.log.Debug("ws.unknown_type", "viewerId", s.viewerID, "type", msg.Type)
	}
}

func (s *session) handleJoin(msg dto.ClientMessage) {
	if s.state != stateConnected {
		s.log.Debug("ws.join_ignored", "viewerId", s.viewerID, "room", s.roomCode)
		return
	}

	code := store.NormalizeCode(msg.RoomCode)
	if _, err := s.rooms.Join(code, s.viewerID, msg.Username, s.conn); err != nil {
		_ = s.conn.Send(dto.Marshal(dto.NewError("room not found")))
		return
	}

	s.state = stateJoined
	s.roomCode = code
	s.name = msg.Username
}

func (s *session) handleSync(msg dto.ClientMessage) {
	if s.state != stateJoined {
		// No room context to apply it to.
		return
	}

	switch msg.Action {
	case dto.ActionPlay, dto.ActionPause, dto.ActionSeek:
	default:
		_ = s.conn.Send(dto.Marshal(dto.NewError("unknown action")))
		return
	}

	if err := s.rooms.Sync(s.roomCode, s.viewerID, msg.Action, msg.CurrentTime); err != nil {
		s.log.Warn("ws.sync_failed", "viewerId", s.viewerID, "room", s.roomCode, "err", err)
	}
}

func (s *session) handleAck() {
	if s.state != stateJoined {
		return
	}
	if err := s.rooms.Ack(s.roomCode, s.viewerID); err != nil {
		s.log.Warn("ws.ack_failed", "viewerId", s.viewerID, "room", s.roomCode, "err", err)
	}
}

// handleLeave is the explicit leave message: terminal, the server closes
// the socket afterwards.
func (s *session) handleLeave() {
	s.leave()
	_ = s.conn.Close("bye")
}

// leave tears down room membership. Idempotent, so the explicit leave
// message and the socket-close path can both run it.
func (s *session) leave() {
	if s.state == stateJoined {
		s.rooms.Leave(s.roomCode, s.viewerID)
	}
	s.state = stateDisconnected
}
