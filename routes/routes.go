package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/controllers"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/services"
)

func SetupRoutes(r *gin.Engine, games *controllers.GameController, hub *services.Hub) {
	api := r.Group("/api")

	// ----------------------
	// Game lifecycle (host control surface)
	// ----------------------
	api.POST("/games", games.CreateGame)
	api.GET("/games/:id", games.GetGame)
	api.POST("/games/:id/start", games.StartCountdown)
	api.POST("/games/:id/pause", games.Pause)
	api.POST("/games/:id/resume", games.Resume)
	api.POST("/games/:id/end", games.EndGame)
	api.POST("/games/:id/attach", games.Attach)
	api.PATCH("/games/:id/interval", games.UpdateCallInterval)
	api.POST("/games/:id/announced", games.Announced)

	// ----------------------
	// Ticket booking
	// ----------------------
	api.GET("/games/:id/tickets", games.ListTickets)
	api.POST("/games/:id/tickets/:ticketId/book", games.BookTicket)
	api.POST("/games/:id/tickets/:ticketId/unbook", games.UnbookTicket)

	// ----------------------
	// Viewer stream
	// ----------------------
	r.GET("/ws/:gameId", hub.HandleWebSocket)
}
