package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
)

// AlertRepository implements repositories.AlertRepository
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *sqlx.DB) repositories.AlertRepository {
	return &AlertRepository{db: db}
}

// Create creates a new alert instance
func (r *AlertRepository) Create(ctx context.Context, alert *models.AlertInstance) error {
	query := `
		INSERT INTO alerts (
			id, rule_id, resource_id, state, severity, suppressed, message,
			observed_value, first_breach_at, last_breach_at, resolved_at,
			breach_count, clear_count, last_notified_at, delivered_via,
			created_at, updated_at
		) VALUES (
			:id, :rule_id, :resource_id, :state, :severity, :suppressed, :message,
			:observed_value, :first_breach_at, :last_breach_at, :resolved_at,
			:breach_count, :clear_count, :last_notified_at, :delivered_via,
			:created_at, :updated_at
		)
	`

	now := time.Now().UTC()
	alert.CreatedAt = now
	alert.UpdatedAt = now

	if _, err := r.db.NamedExecContext(ctx, query, alert); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// GetByID retrieves an alert instance by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.AlertInstance, error) {
	alert := &models.AlertInstance{}
	err := r.db.GetContext(ctx, alert, `SELECT * FROM alerts WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert not found with ID: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// GetOpenByPair retrieves the non-resolved instance for a (rule, resource)
// pair, or nil when no open instance exists
func (r *AlertRepository) GetOpenByPair(ctx context.Context, ruleID, resourceID string) (*models.AlertInstance, error) {
	alert := &models.AlertInstance{}
	err := r.db.GetContext(ctx, alert, `
		SELECT * FROM alerts
		WHERE rule_id = ? AND resource_id = ? AND state != ?
	`, ruleID, resourceID, models.AlertStateResolved)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open alert for pair (%s, %s): %w", ruleID, resourceID, err)
	}
	return alert, nil
}

// Update persists alert instance mutations
func (r *AlertRepository) Update(ctx context.Context, alert *models.AlertInstance) error {
	query := `
		UPDATE alerts SET
			state = :state,
			suppressed = :suppressed,
			message = :message,
			observed_value = :observed_value,
			last_breach_at = :last_breach_at,
			resolved_at = :resolved_at,
			breach_count = :breach_count,
			clear_count = :clear_count,
			last_notified_at = :last_notified_at,
			delivered_via = :delivered_via,
			updated_at = :updated_at
		WHERE id = :id
	`

	alert.UpdatedAt = time.Now().UTC()

	result, err := r.db.NamedExecContext(ctx, query, alert)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert not found with ID: %s", alert.ID)
	}

	return nil
}

// List retrieves alert instances matching the filter
func (r *AlertRepository) List(ctx context.Context, filter repositories.AlertFilter) ([]*models.AlertInstance, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter.State != "" {
		where += " AND state = ?"
		args = append(args, filter.State)
	}
	if filter.Severity != "" {
		where += " AND severity = ?"
		args = append(args, filter.Severity)
	}
	if filter.RuleID != "" {
		where += " AND rule_id = ?"
		args = append(args, filter.RuleID)
	}
	if filter.ResourceID != "" {
		where += " AND resource_id = ?"
		args = append(args, filter.ResourceID)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM alerts"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	query := "SELECT * FROM alerts" + where + " ORDER BY last_breach_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	alerts := []*models.AlertInstance{}
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}

	return alerts, total, nil
}

// DeleteResolvedBefore removes resolved instances past the retention window
func (r *AlertRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM alerts WHERE state = ? AND resolved_at IS NOT NULL AND resolved_at < ?
	`, models.AlertStateResolved, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete resolved alerts: %w", err)
	}
	return result.RowsAffected()
}
