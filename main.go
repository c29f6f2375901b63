package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/config"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/controllers"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/game"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/routes"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/services"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/store"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/utils/logger"
)

// setupStore picks the backing store: postgres when DATABASE_URL is set,
// otherwise the in-memory store.
func setupStore(cfg *config.Config) store.Store {
	if cfg.DatabaseURL == "" {
		logger.Infof("No DATABASE_URL set, using in-memory store")
		return store.NewMemoryStore()
	}
	db := config.SetupDatabase(cfg.DatabaseURL)
	st, err := store.NewPostgresStore(db)
	if err != nil {
		log.Fatalf("[FATAL] store migration failed: %v", err)
	}
	return st
}

func setupRouter(cfg *config.Config, games *controllers.GameController, hub *services.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.SetupRoutes(r, games, hub)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})
	return r
}

func main() {
	cfg := config.Load()

	st := setupStore(cfg)
	guard := store.NewGuard(st)
	engine := services.NewPrizeEngine()

	opts := game.Options{
		CountdownSeconds:       cfg.CountdownSeconds,
		DefaultIntervalSeconds: cfg.CallIntervalSeconds,
		Lock: store.LockOptions{
			TTL:     cfg.LockTTL,
			Timeout: cfg.LockTimeout,
		},
		TxMaxRetries: cfg.TxMaxRetries,
	}
	if cfg.PacingMode == "signal" {
		opts.NewPacer = func() game.Pacer { return game.NewExternalSignal() }
	}

	registry := game.NewRegistry(st, guard, engine, opts)
	defer registry.Shutdown()

	hub := services.NewHub(st)
	gamesController := &controllers.GameController{
		Store:              st,
		Guard:              guard,
		Registry:           registry,
		Factory:            services.NewTicketFactory(),
		DefaultMaxTickets:  cfg.MaxTickets,
		DefaultIntervalSec: cfg.CallIntervalSeconds,
	}

	router := setupRouter(cfg, gamesController, hub)

	logger.Infof("Tambola backend starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("[FATAL] Failed to start server: %v", err)
	}
}
