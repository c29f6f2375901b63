package main

import (
	"log"

	"github.com/yss1235-why/tambola-sound-blitz-sub001/config"
	"github.com/yss1235-why/tambola-sound-blitz-sub001/store"
)

func main() {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("[FATAL] DATABASE_URL is required to migrate")
	}

	db := config.SetupDatabase(cfg.DatabaseURL)
	if _, err := store.NewPostgresStore(db); err != nil {
		log.Fatalf("[FATAL] Migration failed: %v", err)
	}
	log.Println("Database migration completed successfully")
}
