package config

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// SetupDatabase connects to postgres. Document migration is owned by
// store.NewPostgresStore.
func SetupDatabase(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect to DB: %v", err)
	}
	return db
}
