package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/larsenwald/Rons-Rooms-Server/internal/dto"
	"github.com/larsenwald/Rons-Rooms-Server/internal/store"
)

// RoomsAPI is the thin CRUD surface over the room store.
type RoomsAPI struct {
	Rooms *store.Store
	Log   *slog.Logger
}

// Create registers a new room; the code is claimed exactly once.
func (a *RoomsAPI) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Code == "" || req.VideoID == "" || req.HostName == "" {
		writeError(w, http.StatusBadRequest, "code, videoId and hostName are required")
		return
	}

	sum, err := a.Rooms.CreateRoom(req.Code, req.VideoID, req.HostName)
	if err != nil {
		if errors.Is(err, store.ErrRoomExists) {
			writeError(w, http.StatusConflict, "room code already taken")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(sum)
}

// List returns every live room.
func (a *RoomsAPI) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.Rooms.ListRooms())
}

// Get returns one room by code (case-insensitive).
func (a *RoomsAPI) Get(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code required")
		return
	}

	sum, err := a.Rooms.GetRoom(code)
	if err != nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, sum)
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Message: message})
}
