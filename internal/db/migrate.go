package db

import (
	"fmt"

	"github.com/deskhand/deskhand/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model that makes up the ticket store schema.
func AllModels() []interface{} {
	return []interface{}{
		&models.Ticket{},
		&models.TicketHistory{},
	}
}

// AutoMigrate creates or updates the tickets and ticket_histories tables.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
