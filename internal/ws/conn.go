package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

var errSendBufferFull = errors.New("send buffer full")

// Conn wraps a websocket with a buffered outbound queue so broadcasts
// never block on a slow peer.
type Conn struct {
	ws  *websocket.Conn
	out chan []byte
	id  string
}

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps an accepted socket under a fresh viewer ID
func NewConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:  id,
		ws:  ws,
		out: make(chan []byte, 64),
	}
}

// ViewerID is unique per connection, assigned at accept time.
func (c *Conn) ViewerID() string { return c.id }

// Send queues payload without blocking. A full queue means the peer has
// stalled; the frame is dropped and the peer's own read will surface the
// closure.
func (c *Conn) Send(b []byte) error {
	select {
	case c.out <- b:
		return nil
	default:
		return errSendBufferFull
	}
}

// Read blocks until it receives a text/binary message
// Returns false if connection is closed
func (c *Conn) Read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, true
		}
	}
}

// WriteLoop sends outbound messages + periodic pings
// Exits when ctx is cancelled
func (c *Conn) WriteLoop(ctx context.Context) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			_ = c.ws.Write(ctx, websocket.MessageText, b)
		case <-t.C:
			_ = c.ws.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close sends a normal closure with a human-readable reason.
func (c *Conn) Close(reason string) error {
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}
