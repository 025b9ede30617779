package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
)

// DeliveryRepository implements repositories.DeliveryRepository. Attempts are
// append-only per channel.
type DeliveryRepository struct {
	db *sqlx.DB
}

// NewDeliveryRepository creates a new DeliveryRepository
func NewDeliveryRepository(db *sqlx.DB) repositories.DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Create records one delivery attempt
func (r *DeliveryRepository) Create(ctx context.Context, attempt *models.DeliveryAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO delivery_attempts (alert_id, channel, attempt_number, status, error_detail, created_at)
		VALUES (:alert_id, :channel, :attempt_number, :status, :error_detail, :created_at)
	`, attempt)
	if err != nil {
		return fmt.Errorf("failed to create delivery attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted attempt ID: %w", err)
	}
	attempt.ID = id

	return nil
}

// ListByAlert retrieves all attempts for an alert in order
func (r *DeliveryRepository) ListByAlert(ctx context.Context, alertID string) ([]*models.DeliveryAttempt, error) {
	attempts := []*models.DeliveryAttempt{}
	err := r.db.SelectContext(ctx, &attempts, `
		SELECT * FROM delivery_attempts WHERE alert_id = ? ORDER BY channel, attempt_number
	`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	return attempts, nil
}

// SucceededChannels returns the distinct channels that delivered the alert
func (r *DeliveryRepository) SucceededChannels(ctx context.Context, alertID string) ([]string, error) {
	channels := []string{}
	err := r.db.SelectContext(ctx, &channels, `
		SELECT DISTINCT channel FROM delivery_attempts
		WHERE alert_id = ? AND status = ? ORDER BY channel
	`, alertID, models.DeliverySent)
	if err != nil {
		return nil, fmt.Errorf("failed to list succeeded channels: %w", err)
	}
	return channels, nil
}
