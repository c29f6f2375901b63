package services

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/utils/logger"
)

// Client is one websocket viewer of a game. Writes go through a buffered
// send channel so a slow connection drops frames instead of stalling the
// broadcast.
type Client struct {
	gameID string
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	once   sync.Once
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// readPump drains incoming frames; viewers are read-only, so the only job
// here is noticing the disconnect.
func (c *Client) readPump() {
	defer c.hub.removeClient(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("[WS %s] viewer disconnected", c.gameID)
			} else {
				logger.Debugf("[WS %s] read error: %v", c.gameID, err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Debugf("[WS %s] write error: %v", c.gameID, err)
			return
		}
	}
}

func (c *Client) enqueue(msg []byte) {
	defer func() {
		// send may race Close; a dropped frame is fine, a crash is not
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
		logger.Warnf("[WS %s] dropping frame to slow viewer", c.gameID)
	}
}
