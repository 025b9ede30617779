package database

import (
	"github.com/jmoiron/sqlx"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/sqlite"
)

// Repositories holds all repository instances
type Repositories struct {
	Alert    repositories.AlertRepository
	Audit    repositories.AuditRepository
	Resource repositories.ResourceRepository
	Product  repositories.ProductRepository
	Delivery repositories.DeliveryRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Alert:    sqlite.NewAlertRepository(db),
		Audit:    sqlite.NewAuditRepository(db),
		Resource: sqlite.NewResourceRepository(db),
		Product:  sqlite.NewProductRepository(db),
		Delivery: sqlite.NewDeliveryRepository(db),
	}
}
