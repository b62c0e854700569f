// Package client is a socket client for the realtime gateway. It sends the
// client events and mirrors server events into a State.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"recipe-realtime/internal/logging"
	"recipe-realtime/internal/ws"
)

const writeWait = 10 * time.Second

// ErrClosed is returned by sends after Close.
var ErrClosed = errors.New("client closed")

// Client is one socket connection to the gateway.
type Client struct {
	conn  *websocket.Conn
	state *State

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once

	// OnEvent, when set, is called for every server frame after it is
	// applied to the state.
	OnEvent func(ws.Envelope)
}

// Dial opens a socket to url. A non-empty token is sent as a bearer token.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn, state: NewState(), closed: make(chan struct{})}, nil
}

// State returns the mirrored state.
func (c *Client) State() *State { return c.state }

func (c *Client) emit(event string, data any) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	frame, err := ws.EncodeFrame(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) Join(userID string) error {
	return c.emit(ws.EventJoin, ws.JoinPayload{UserID: userID})
}

func (c *Client) Leave() error {
	return c.emit(ws.EventLeave, nil)
}

func (c *Client) SendMessage(chatID, content string) error {
	return c.emit(ws.EventSendMessage, ws.SendMessagePayload{ChatID: chatID, Content: content})
}

func (c *Client) Typing(chatID string, isTyping bool) error {
	return c.emit(ws.EventTyping, ws.TypingPayload{ChatID: chatID, IsTyping: isTyping})
}

// MarkAsRead marks the chat read on the server and clears its unread count.
func (c *Client) MarkAsRead(chatID string) error {
	if err := c.emit(ws.EventMarkAsRead, ws.MarkAsReadPayload{ChatID: chatID}); err != nil {
		return err
	}
	c.state.ChatRead(chatID)
	return nil
}

func (c *Client) Ping() error {
	return c.emit(ws.EventPing, nil)
}

// Run reads server frames until the socket closes or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return ctx.Err()
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.Warn().Err(err).Msg("client: malformed frame")
			continue
		}
		if err := c.state.Apply(env); err != nil {
			logging.Warn().Err(err).Str("event", env.Event).Msg("client: apply failed")
		}
		if c.OnEvent != nil {
			c.OnEvent(env)
		}
	}
}

// Close sends a close frame and closes the socket.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}
