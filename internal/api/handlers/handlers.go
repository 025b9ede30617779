package handlers

import (
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/alerting"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/audit"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/onboarding"
	"github.com/sentinel-ops/sentinel-backend-go/internal/core/rules"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database"
	"github.com/sentinel-ops/sentinel-backend-go/internal/websocket"
)

// Handlers groups the REST surface's dependencies
type Handlers struct {
	cfg       *config.Config
	db        *sqlx.DB
	repos     *database.Repositories
	machine   *alerting.Machine
	auditor   *audit.Logger
	loader    *rules.Loader
	discovery *onboarding.Service
	hub       *websocket.Hub
	log       *logrus.Logger
}

// NewHandlers creates the handler set
func NewHandlers(
	cfg *config.Config,
	db *sqlx.DB,
	repos *database.Repositories,
	machine *alerting.Machine,
	auditor *audit.Logger,
	loader *rules.Loader,
	discovery *onboarding.Service,
	hub *websocket.Hub,
	log *logrus.Logger,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		db:        db,
		repos:     repos,
		machine:   machine,
		auditor:   auditor,
		loader:    loader,
		discovery: discovery,
		hub:       hub,
		log:       log,
	}
}
