package main

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
)

// Client represents a single websocket connection. It has no player identity
// of its own; a lobby binds it to a name when a join succeeds.
type Client struct {
	sid    string
	conn   *websocket.Conn
	send   chan ServerEvent
	done   chan struct{}
	reg    *Registry
	closed atomic.Bool
}

func NewClient(conn *websocket.Conn, reg *Registry) *Client {
	return &Client{
		sid:  uuid.NewString(),
		conn: conn,
		reg:  reg,
		send: make(chan ServerEvent, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *Client) id() string { return c.sid }

func (c *Client) active() bool { return !c.closed.Load() }

func (c *Client) deliver(ev ServerEvent) {
	if c.closed.Load() {
		return
	}
	select {
	case c.send <- ev:
	default:
		// drop oldest to avoid blocking
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- ev:
		default:
		}
	}
}

func (c *Client) readLoop() {
	defer c.close()
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("session", c.sid).Msg("read message")
			return
		}
		var in ClientIntent
		if err := json.Unmarshal(payload, &in); err != nil {
			log.Debug().Err(err).Str("session", c.sid).Msg("malformed intent")
			continue
		}
		c.reg.Dispatch(c, in)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Str("session", c.sid).Msg("write json")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) close() {
	if c.closed.Swap(true) {
		return
	}
	c.reg.Detach(c)
	close(c.done)
	_ = c.conn.Close()
}
