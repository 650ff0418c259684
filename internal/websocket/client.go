package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/hub"
)

// Client is one WebSocket connection attached to a room. It implements
// hub.Socket: the room queues frames with Send and the write pump delivers
// them.
type Client struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	closeReason  string
	writeTimeout time.Duration
	logger       *slog.Logger
}

func newClient(id string, conn *websocket.Conn, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, cfg.SendBuffer),
		done:         make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		logger:       logger.With("conn_id", id),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Send queues data without blocking. Frames are dropped when the queue is
// full or the client is closing.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which then closes the connection with
// StatusGoingAway and the given reason.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
}

// readPump forwards every inbound frame to the session until the connection
// fails, then leaves the room. It blocks for the life of the connection.
func (c *Client) readPump(ctx context.Context, sess *hub.Session) {
	reason := hub.LeaveClosed
	defer func() {
		if err := sess.Leave(context.Background(), reason); err != nil && !errors.Is(err, domain.ErrRoomClosed) {
			c.logger.Warn("Failed to leave room", "error", err)
		}
		c.Close("")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.logger.Info("WebSocket closed by client", "status", status)
			case errors.Is(err, io.EOF) || errors.Is(err, context.Canceled):
				c.logger.Info("WebSocket connection ended", "error", err)
			default:
				reason = hub.LeaveError
				c.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		if err := sess.Receive(ctx, data); err != nil {
			if !errors.Is(err, domain.ErrRoomClosed) {
				c.logger.Warn("Failed to hand frame to room", "error", err)
			}
			return
		}
	}
}

// writePump delivers queued frames until the client is closed or a write fails.
func (c *Client) writePump() {
	for {
		select {
		case msg := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				// Unblocks the read pump, which then leaves the room.
				c.conn.CloseNow()
				return
			}

		case <-c.done:
			if c.closeReason == "" {
				c.conn.Close(websocket.StatusNormalClosure, "")
			} else {
				c.conn.Close(websocket.StatusGoingAway, c.closeReason)
			}
			return
		}
	}
}
