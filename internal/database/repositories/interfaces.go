package repositories

import (
	"context"
	"time"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
)

// AlertFilter narrows alert listings
type AlertFilter struct {
	State      string
	Severity   string
	RuleID     string
	ResourceID string
	Limit      int
	Offset     int
}

// AuditFilter narrows audit log listings
type AuditFilter struct {
	AlertID   string
	EventType string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// ResourceFilter narrows resource listings
type ResourceFilter struct {
	Provider      string
	Type          string
	OnlyMonitored bool
}

// AlertRepository manages alert instance persistence
type AlertRepository interface {
	Create(ctx context.Context, alert *models.AlertInstance) error
	GetByID(ctx context.Context, id string) (*models.AlertInstance, error)
	// GetOpenByPair returns the single non-resolved instance for a
	// (rule, resource) pair, or nil when none exists.
	GetOpenByPair(ctx context.Context, ruleID, resourceID string) (*models.AlertInstance, error)
	Update(ctx context.Context, alert *models.AlertInstance) error
	List(ctx context.Context, filter AlertFilter) ([]*models.AlertInstance, int, error)
	// DeleteResolvedBefore archives resolved instances older than the
	// retention cutoff. Audit records are never touched.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRepository manages the append-only audit trail. Append is the only
// mutation; sequence numbers and checksums are assigned atomically.
type AuditRepository interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	List(ctx context.Context, filter AuditFilter) ([]*models.AuditRecord, int, error)
	Last(ctx context.Context) (*models.AuditRecord, error)
	// ListRange returns records with sequence_no > afterSeq in ascending
	// order, used for chain verification.
	ListRange(ctx context.Context, afterSeq int64, limit int) ([]*models.AuditRecord, error)
}

// ResourceRepository manages the monitored resource inventory
type ResourceRepository interface {
	Create(ctx context.Context, resource *models.Resource) error
	// GetByResourceID returns nil, nil when the resource is unknown.
	GetByResourceID(ctx context.Context, resourceID string) (*models.Resource, error)
	List(ctx context.Context, filter ResourceFilter) ([]*models.Resource, error)
	Update(ctx context.Context, resource *models.Resource) error
	Delete(ctx context.Context, resourceID string) error
}

// ProductRepository manages product CRUD
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	List(ctx context.Context) ([]*models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id int64) error
}

// DeliveryRepository records per-channel delivery attempts
type DeliveryRepository interface {
	Create(ctx context.Context, attempt *models.DeliveryAttempt) error
	ListByAlert(ctx context.Context, alertID string) ([]*models.DeliveryAttempt, error)
	// SucceededChannels returns the distinct channels that delivered the
	// alert at least once.
	SucceededChannels(ctx context.Context, alertID string) ([]string, error)
}
