package httpx

import (
	"net/http"

	"log/slog"

	"github.com/larsenwald/Rons-Rooms-Server/internal/app"
	"github.com/larsenwald/Rons-Rooms-Server/internal/store"
	"github.com/larsenwald/Rons-Rooms-Server/internal/ws"
	"github.com/larsenwald/Rons-Rooms-Server/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, rooms *store.Store) http.Handler {
	mw := NewMiddleware(cfg)
	api := &RoomsAPI{Rooms: rooms, Log: logger}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	// Room CRUD surface
	mux.Handle("/api/rooms", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			api.Create(w, r)
			return
		}
		if r.Method == http.MethodGet {
			api.List(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	mux.Handle("/api/rooms/{code}", http.HandlerFunc(api.Get))

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
