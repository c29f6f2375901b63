package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/models"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/store"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/utils/logger"
)

var (
	errTicketNotFound  = errors.New("ticket not found")
	errTicketBooked    = errors.New("ticket already booked")
	errTicketNotBooked = errors.New("ticket not booked")
	errBookingClosed   = errors.New("booking closed")
)

type bookTicketRequest struct {
	PlayerName    string `json:"playerName" binding:"required"`
	PlayerContact string `json:"playerContact"`
}

// BookTicket books one ticket for a player. The write goes through the same
// transactional-update primitive as number calling, so a booking can never
// race the call loop into a lost update.
func (gc *GameController) BookTicket(c *gin.Context) {
	var req bookTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gameID, ticketID := c.Param("id"), c.Param("ticketId")
	err := gc.mutateTicket(c, gameID, ticketID, func(g *models.Game, t *models.Ticket) error {
		if t.Booked {
			return errTicketBooked
		}
		t.Booked = true
		t.PlayerName = req.PlayerName
		t.PlayerContact = req.PlayerContact
		t.BookedAt = time.Now()
		return nil
	})
	if err != nil {
		gc.ticketError(c, err)
		return
	}

	logger.Infof("[Game %s] ticket %s booked by %s", gameID, ticketID, req.PlayerName)
	c.JSON(http.StatusOK, gin.H{"status": "booked"})
}

// UnbookTicket releases a booking while the booking phase is still open.
func (gc *GameController) UnbookTicket(c *gin.Context) {
	gameID, ticketID := c.Param("id"), c.Param("ticketId")
	err := gc.mutateTicket(c, gameID, ticketID, func(g *models.Game, t *models.Ticket) error {
		if !t.Booked {
			return errTicketNotBooked
		}
		t.Booked = false
		t.PlayerName = ""
		t.PlayerContact = ""
		t.BookedAt = time.Time{}
		return nil
	})
	if err != nil {
		gc.ticketError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unbooked"})
}

// ListTickets returns the game's tickets ordered by display number.
func (gc *GameController) ListTickets(c *gin.Context) {
	raw, err := gc.Store.Get(c.Request.Context(), models.GamePath(c.Param("id")))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "game temporarily unreachable"})
		return
	}

	var g models.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "corrupt game document"})
		return
	}

	tickets := make([]*models.Ticket, 0, len(g.Tickets))
	for _, t := range g.Tickets {
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Number < tickets[j].Number })
	c.JSON(http.StatusOK, tickets)
}

// mutateTicket runs fn against one ticket inside a retried transaction.
// Booking is only open before the countdown starts or while it runs.
func (gc *GameController) mutateTicket(c *gin.Context, gameID, ticketID string, fn func(*models.Game, *models.Ticket) error) error {
	return gc.Guard.TransactionalUpdate(c.Request.Context(), models.GamePath(gameID), func(current json.RawMessage) (any, error) {
		if current == nil {
			return nil, store.ErrNotFound
		}
		var g models.Game
		if err := json.Unmarshal(current, &g); err != nil {
			return nil, err
		}
		if g.GameState.GameOver || g.GameState.IsActive || g.GameState.IsPaused {
			return nil, errBookingClosed
		}
		t, ok := g.Tickets[ticketID]
		if !ok {
			return nil, errTicketNotFound
		}
		if err := fn(&g, t); err != nil {
			return nil, err
		}
		g.UpdatedAt = time.Now()
		return &g, nil
	}, 0)
}

func (gc *GameController) ticketError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
	case errors.Is(err, errTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errTicketBooked), errors.Is(err, errTicketNotBooked), errors.Is(err, errBookingClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrTransactionExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "game busy, try again"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "game temporarily unreachable"})
	}
}
