package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"recipe-realtime/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

var (
	ErrConnClosed    = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// Client is a websocket connection with a buffered outbound queue. Inbound
// frames are handled one at a time by readPump, outbound frames are written
// in order by writePump.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues a frame without blocking.
func (c *Client) Send(event string, data any) error {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

// Close stops the write pump, which closes the socket.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// readPump feeds inbound frames to the hub until the socket fails and
// returns the close reason.
func (c *Client) readPump(ctx context.Context, hub *Hub, session *Session) string {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Ctx(ctx).Warn().Err(err).Str("conn_id", c.id).Msg("websocket read failed")
			}
			return err.Error()
		}
		hub.Dispatch(ctx, session, frame)
	}
}

// writePump drains the send queue and keeps the peer alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is still queued when the client closes.
func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
