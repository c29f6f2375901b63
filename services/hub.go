package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/models"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/store"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/utils/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans game-document changes out to websocket viewers. One store
// subscription is held per game while it has at least one viewer; every
// change pushes the full document.
type Hub struct {
	st store.Store

	mu    sync.Mutex
	rooms map[string]*gameRoom
}

type gameRoom struct {
	gameID      string
	clients     map[*Client]bool
	unsubscribe func()
}

func NewHub(st store.Store) *Hub {
	return &Hub{st: st, rooms: make(map[string]*gameRoom)}
}

// HandleWebSocket upgrades a viewer connection for GET /ws/:gameId. The
// current document arrives immediately, then every change after it.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	gameID := c.Param("gameId")
	if gameID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing game id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("[WS] upgrade error: %v", err)
		return
	}

	client := &Client{
		gameID: gameID,
		conn:   conn,
		hub:    h,
		send:   make(chan []byte, 32),
	}
	go client.writePump()
	h.addClient(client)
	go client.readPump()
	logger.Infof("[WS %s] viewer joined", gameID)
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.gameID]
	if !ok {
		room = &gameRoom{gameID: c.gameID, clients: make(map[*Client]bool)}
		h.rooms[c.gameID] = room
	}
	room.clients[c] = true
	h.mu.Unlock()

	if !ok {
		// first viewer: subscribe delivers the current document right away.
		// Subscribe invokes broadcast synchronously, so it must run outside
		// the hub lock; the field assignment goes back under it.
		unsubscribe := h.st.Subscribe(models.GamePath(c.gameID), func(doc json.RawMessage) {
			h.broadcast(c.gameID, doc)
		})
		h.mu.Lock()
		if h.rooms[c.gameID] == room {
			room.unsubscribe = unsubscribe
			unsubscribe = nil
		}
		h.mu.Unlock()
		if unsubscribe != nil {
			// the room emptied while the subscription was being set up
			unsubscribe()
		}
	} else if doc, err := h.st.Get(context.Background(), models.GamePath(c.gameID)); err == nil {
		c.enqueue(doc)
	}
}

func (h *Hub) removeClient(c *Client) {
	var unsubscribe func()
	h.mu.Lock()
	if room, ok := h.rooms[c.gameID]; ok {
		delete(room.clients, c)
		if len(room.clients) == 0 {
			delete(h.rooms, c.gameID)
			unsubscribe = room.unsubscribe
		}
	}
	h.mu.Unlock()

	c.Close()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// broadcast sends the document (or a deletion marker) to every viewer of the
// game.
func (h *Hub) broadcast(gameID string, doc json.RawMessage) {
	msg := doc
	if msg == nil {
		msg = json.RawMessage(`{"deleted":true}`)
	}

	h.mu.Lock()
	room, ok := h.rooms[gameID]
	clients := make([]*Client, 0)
	if ok {
		for c := range room.clients {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.enqueue(msg)
	}
}
