package store

import (
	"context"
	"time"

	"github.com/larsenwald/Rons-Rooms-Server/internal/dto"
	"github.com/larsenwald/Rons-Rooms-Server/pkg/metrics"
)

const closingMessage = "room closed after inactivity"

// RunReaper sweeps the registry on every tick until ctx is cancelled.
// Empty rooms go immediately; rooms idle past ttl get a room_closing
// notice, their connections closed, then removal. This is the only path
// where the server closes connections on its own initiative.
func (s *Store) RunReaper(ctx context.Context, interval, ttl time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ttl)
		}
	}
}

// Sweep runs one reaper pass over every room.
func (s *Store) Sweep(ttl time.Duration) {
	s.mu.RLock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	s.mu.RUnlock()

	for _, code := range codes {
		if s.deleteIfEmpty(code) {
			metrics.RoomsReaped.Inc()
			continue
		}
		s.reapIfIdle(code, ttl)
	}
}

// reapIfIdle evicts one room if its last activity is older than ttl. The
// empty-check in deleteIfEmpty and the idle-check here take the same
// per-room lock as every protocol event, so the reaper can never race a
// join into deleting a live room.
func (s *Store) reapIfIdle(code string, ttl time.Duration) {
	s.mu.Lock()
	r := s.rooms[code]
	if r == nil {
		s.mu.Unlock()
		return
	}

	r.mu.Lock()
	if time.Since(r.lastActivity) <= ttl {
		r.mu.Unlock()
		s.mu.Unlock()
		return
	}
	delete(s.rooms, code)
	r.closed = true
	s.mu.Unlock()

	idle := time.Since(r.lastActivity)
	r.broadcastLocked(dto.Marshal(dto.NewRoomClosing("inactivity", closingMessage)), "")
	conns := make([]Conn, 0, len(r.members))
	for _, m := range r.members {
		conns = append(conns, m.conn)
	}
	evicted := len(r.members)
	r.members = make(map[string]member)
	r.mu.Unlock()

	// The room is already unreachable; close the sockets without holding
	// any lock.
	for _, c := range conns {
		_ = c.Close(closingMessage)
	}

	metrics.RoomsActive.Dec()
	metrics.RoomsReaped.Inc()
	metrics.ConnectionsActive.Sub(float64(evicted))
	s.log.Info("reaper.swept", "code", code, "idle", idle, "viewers", evicted)
}
