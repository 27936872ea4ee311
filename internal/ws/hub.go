package ws

import (
	"net/http"

	"log/slog"

	"github.com/google/uuid"

	"github.com/larsenwald/Rons-Rooms-Server/internal/store"
)

// Hub terminates websocket connections and feeds their frames into the
// per-connection protocol session.
type Hub struct {
	log   *slog.Logger
	rooms *store.Store
}

func NewHub(logger *slog.Logger, rooms *store.Store) *Hub {
	return &Hub{log: logger, rooms: rooms}
}

// ServeWS handles a new /ws connection for its whole lifetime.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sock, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	conn := NewConn(uuid.NewString(), sock)
	go conn.WriteLoop(ctx)

	sess := newSession(h.log, h.rooms, conn, conn.ViewerID())
	for {
		raw, ok := conn.Read(ctx)
		if !ok {
			break
		}
		sess.handle(raw)
	}

	// Socket gone (or explicit leave already ran): tear down membership.
	sess.leave()
	_ = conn.Close("bye")
}
