package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/models"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/store"
)

// countingStore tracks live subscriptions so tests can assert the hub tears
// them down. An optional gate stalls Subscribe to widen the window between a
// room existing and its subscription landing.
type countingStore struct {
	store.Store
	mu   sync.Mutex
	live int
	gate chan struct{}
}

func (s *countingStore) Subscribe(path string, onChange func(json.RawMessage)) func() {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.live++
	s.mu.Unlock()
	unsubscribe := s.Store.Subscribe(path, onChange)
	return func() {
		s.mu.Lock()
		s.live--
		s.mu.Unlock()
		unsubscribe()
	}
}

func (s *countingStore) liveSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func dialHub(t *testing.T, h *Hub, gameID string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws/:gameId", h.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + gameID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// wsConn mints a connected websocket client against a throwaway echo server,
// for tests that drive the hub's client bookkeeping directly.
func wsConn(t *testing.T) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_ViewerGetsCurrentDocThenChanges(t *testing.T) {
	mem := store.NewMemoryStore()
	st := &countingStore{Store: mem}
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, models.GamePath("g1"), map[string]any{"gameId": "g1"}))

	h := NewHub(st)
	conn := dialHub(t, h, "g1")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"gameId":"g1"`)

	require.NoError(t, mem.Set(ctx, models.GamePath("g1"), map[string]any{"gameId": "g1", "round": 2}))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"round":2`)
}

func TestHub_LastViewerReleasesSubscription(t *testing.T) {
	st := &countingStore{Store: store.NewMemoryStore()}
	require.NoError(t, st.Set(context.Background(), models.GamePath("g1"), map[string]any{"gameId": "g1"}))

	h := NewHub(st)
	conn := dialHub(t, h, "g1")

	require.Eventually(t, func() bool { return st.liveSubscriptions() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return st.liveSubscriptions() == 0 }, time.Second, 10*time.Millisecond,
		"the last viewer leaving must release the store subscription")

	h.mu.Lock()
	_, ok := h.rooms["g1"]
	h.mu.Unlock()
	assert.False(t, ok, "room removed with its last viewer")
}

func TestHub_RoomEmptiedDuringSubscribeStillReleases(t *testing.T) {
	st := &countingStore{Store: store.NewMemoryStore(), gate: make(chan struct{})}
	h := NewHub(st)

	c := &Client{gameID: "g1", conn: wsConn(t), hub: h, send: make(chan []byte, 1)}
	added := make(chan struct{})
	go func() {
		h.addClient(c)
		close(added)
	}()

	// the room is inserted before the subscription exists
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		room, ok := h.rooms["g1"]
		return ok && len(room.clients) == 1
	}, time.Second, 5*time.Millisecond)

	// the only viewer drops while Subscribe is still in flight
	h.removeClient(c)
	close(st.gate)
	<-added

	assert.Equal(t, 0, st.liveSubscriptions(), "orphaned subscription must be torn down")
	h.mu.Lock()
	_, ok := h.rooms["g1"]
	h.mu.Unlock()
	assert.False(t, ok)
}
