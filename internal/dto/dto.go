package dto

import "encoding/json"

// Inbound message types.
const (
	TypeJoin    = "join"
	TypeSync    = "sync"
	TypeSyncAck = "sync_ack"
	TypeLeave   = "leave"
)

// Outbound message types.
const (
	TypeJoined       = "joined"
	TypeViewerUpdate = "viewer_update"
	TypeRoomClosing  = "room_closing"
	TypeError        = "error"
)

// Playback actions a client may request.
const (
	ActionPlay  = "play"
	ActionPause = "pause"
	ActionSeek  = "seek"
)

// ClientMessage is the envelope for every inbound frame. Fields beyond
// Type are populated per message type.
type ClientMessage struct {
	Type        string  `json:"type"`
	RoomCode    string  `json:"roomCode,omitempty"`
	Username    string  `json:"username,omitempty"`
	Action      string  `json:"action,omitempty"`
	CurrentTime float64 `json:"currentTime,omitempty"`
}

// PlaybackState is the authoritative action/position/timestamp triple all
// viewers converge to. Timestamp is epoch milliseconds.
type PlaybackState struct {
	Action      string  `json:"action"`
	CurrentTime float64 `json:"currentTime"`
	Timestamp   int64   `json:"timestamp"`
}

// Joined is the reply to a successful join.
type Joined struct {
	Type        string        `json:"type"`
	RoomCode    string        `json:"roomCode"`
	VideoID     string        `json:"videoId"`
	State       PlaybackState `json:"state"`
	ViewerCount int           `json:"viewerCount"`
}

// SyncEvent fans a new playback state out to the rest of the room.
type SyncEvent struct {
	Type string `json:"type"`
	PlaybackState
}

// SyncAckEvent reports acknowledgment progress for the current state.
type SyncAckEvent struct {
	Type         string `json:"type"`
	UserID       string `json:"userId"`
	SyncedCount  int    `json:"syncedCount"`
	TotalViewers int    `json:"totalViewers"`
	AllSynced    bool   `json:"allSynced"`
}

// ViewerUpdate announces the room's current headcount.
type ViewerUpdate struct {
	Type        string `json:"type"`
	ViewerCount int    `json:"viewerCount"`
}

// RoomClosing warns members the server is about to close their room.
type RoomClosing struct {
	Type    string `json:"type"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ErrorEvent is sent to a single connection, never broadcast.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewJoined(code, videoID string, state PlaybackState, viewers int) Joined {
	return Joined{Type: TypeJoined, RoomCode: code, VideoID: videoID, State: state, ViewerCount: viewers}
}

func NewSyncEvent(state PlaybackState) SyncEvent {
	return SyncEvent{Type: TypeSync, PlaybackState: state}
}

func NewSyncAckEvent(userID string, synced, total int, all bool) SyncAckEvent {
	return SyncAckEvent{Type: TypeSyncAck, UserID: userID, SyncedCount: synced, TotalViewers: total, AllSynced: all}
}

func NewViewerUpdate(viewers int) ViewerUpdate {
	return ViewerUpdate{Type: TypeViewerUpdate, ViewerCount: viewers}
}

func NewRoomClosing(reason, message string) RoomClosing {
	return RoomClosing{Type: TypeRoomClosing, Reason: reason, Message: message}
}

func NewError(message string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: message}
}

// Marshal encodes an outbound message. The message types here cannot fail
// to marshal.
func Marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// HTTP payloads for the room CRUD surface.

type CreateRoomRequest struct {
	Code     string `json:"code"`
	VideoID  string `json:"videoId"`
	HostName string `json:"hostName"`
}

// RoomSummary is the read model returned by the HTTP surface. Timestamps
// are epoch milliseconds.
type RoomSummary struct {
	Code           string        `json:"code"`
	VideoID        string        `json:"videoId"`
	HostName       string        `json:"hostName"`
	ViewerCount    int           `json:"viewerCount"`
	State          PlaybackState `json:"state"`
	CreatedAt      int64         `json:"createdAt"`
	LastActivityAt int64         `json:"lastActivityAt"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
