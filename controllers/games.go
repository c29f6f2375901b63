package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/game"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/models"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/services"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/store"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/utils/logger"
)

// GameController exposes the host control surface over HTTP. Every action
// maps onto one scheduler transition; the registry and store are injected so
// tests can run against isolated instances.
type GameController struct {
	Store    store.Store
	Guard    *store.Guard
	Registry *game.Registry
	Factory  *services.TicketFactory

	DefaultMaxTickets  int
	DefaultIntervalSec int
}

type createGameRequest struct {
	HostID          string `json:"hostId" binding:"required"`
	MaxTickets      int    `json:"maxTickets"`
	CallIntervalSec int    `json:"callIntervalSec"`
}

// CreateGame configures a fresh session: a sheet-based ticket inventory, the
// full prize board and a zeroed game state. Older finished games of the same
// host are garbage-collected, keeping only the most recent for display.
func (gc *GameController) CreateGame(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MaxTickets <= 0 {
		req.MaxTickets = gc.DefaultMaxTickets
	}
	if req.CallIntervalSec <= 0 {
		req.CallIntervalSec = gc.DefaultIntervalSec
	}

	now := time.Now()
	g := &models.Game{
		GameID:          uuid.NewString(),
		HostID:          req.HostID,
		MaxTickets:      req.MaxTickets,
		CallIntervalSec: req.CallIntervalSec,
		Tickets:         make(map[string]*models.Ticket, req.MaxTickets),
		Prizes:          models.DefaultPrizes(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// tickets come in traditional sheets of six, trimmed to the cap
	number := 1
	for number <= req.MaxTickets {
		for _, t := range gc.Factory.GenerateSet() {
			if number > req.MaxTickets {
				break
			}
			t.Number = number
			g.Tickets[t.ID] = t
			number++
		}
	}

	if err := gc.Store.Set(c.Request.Context(), models.GamePath(g.GameID), g); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "game temporarily unreachable"})
		return
	}
	gc.collectOldGames(c, req.HostID, g.GameID)

	logger.Infof("[Game %s] created for host %s (%d tickets)", g.GameID, req.HostID, len(g.Tickets))
	c.JSON(http.StatusCreated, g)
}

// collectOldGames enforces one live game per host: any earlier game that has
// not finished is superseded and destroyed along with its scheduler, and of
// the finished ones only the newest is kept for display.
func (gc *GameController) collectOldGames(c *gin.Context, hostID, keepID string) {
	ctx := c.Request.Context()
	paths, err := gc.Store.List(ctx, "games/")
	if err != nil {
		logger.Errorf("[GC] list failed: %v", err)
		return
	}

	type finished struct {
		path      string
		createdAt time.Time
	}
	var done []finished
	for _, path := range paths {
		raw, err := gc.Store.Get(ctx, path)
		if err != nil {
			continue
		}
		var g models.Game
		if json.Unmarshal(raw, &g) != nil || g.HostID != hostID || g.GameID == keepID {
			continue
		}
		if !g.GameState.GameOver {
			gc.Registry.Remove(g.GameID)
			if err := gc.Store.Delete(ctx, path); err != nil {
				logger.Errorf("[GC] delete superseded %s failed: %v", path, err)
			} else {
				logger.Infof("[GC] superseded live game %s of host %s", g.GameID, hostID)
			}
			continue
		}
		done = append(done, finished{path: path, createdAt: g.CreatedAt})
	}
	if len(done) == 0 {
		return
	}

	// keep the most recent finished game for display
	newest := 0
	for i, f := range done {
		if f.createdAt.After(done[newest].createdAt) {
			newest = i
		}
	}
	for i, f := range done {
		if i == newest {
			continue
		}
		if err := gc.Store.Delete(ctx, f.path); err != nil {
			logger.Errorf("[GC] delete %s failed: %v", f.path, err)
		}
	}
}

// GetGame returns the full game document.
func (gc *GameController) GetGame(c *gin.Context) {
	raw, err := gc.Store.Get(c.Request.Context(), models.GamePath(c.Param("id")))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "game temporarily unreachable"})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (gc *GameController) StartCountdown(c *gin.Context) {
	gc.transition(c, func(s *game.Scheduler) error {
		return s.StartCountdown(c.Request.Context())
	})
}

func (gc *GameController) Pause(c *gin.Context) {
	gc.transition(c, func(s *game.Scheduler) error {
		return s.Pause(c.Request.Context())
	})
}

func (gc *GameController) Resume(c *gin.Context) {
	gc.transition(c, func(s *game.Scheduler) error {
		return s.Resume(c.Request.Context())
	})
}

func (gc *GameController) EndGame(c *gin.Context) {
	gc.transition(c, func(s *game.Scheduler) error {
		return s.EndGame(c.Request.Context())
	})
}

// Attach reconciles a reconnecting host tab with the persisted game; an
// active game with no live loop is parked paused until an explicit resume.
func (gc *GameController) Attach(c *gin.Context) {
	gc.transition(c, func(s *game.Scheduler) error {
		return s.Attach(c.Request.Context())
	})
}

type intervalRequest struct {
	Seconds int `json:"seconds" binding:"required"`
}

func (gc *GameController) UpdateCallInterval(c *gin.Context) {
	var req intervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	gc.transition(c, func(s *game.Scheduler) error {
		return s.UpdateCallInterval(c.Request.Context(), req.Seconds)
	})
}

type announcedRequest struct {
	Number int `json:"number"`
}

// Announced is the pacing callback from the announcement subsystem: the next
// call is released as soon as the previous number's audio finished.
func (gc *GameController) Announced(c *gin.Context) {
	var req announcedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	gc.Registry.Scheduler(c.Param("id")).AnnouncementComplete(req.Number)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (gc *GameController) transition(c *gin.Context, fn func(*game.Scheduler) error) {
	s := gc.Registry.Scheduler(c.Param("id"))
	if err := fn(s); err != nil {
		status, msg := transitionStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func transitionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return http.StatusNotFound, "game not found"
	case errors.Is(err, game.ErrGameAlreadyOver),
		errors.Is(err, game.ErrGameNotActive),
		errors.Is(err, game.ErrGameAlreadyStarted):
		return http.StatusConflict, err.Error()
	case errors.Is(err, store.ErrLockTimeout),
		errors.Is(err, store.ErrTransactionExhausted):
		return http.StatusServiceUnavailable, "game busy, try again"
	default:
		return http.StatusServiceUnavailable, "game temporarily unreachable"
	}
}
