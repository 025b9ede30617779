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

// ResourceRepository implements repositories.ResourceRepository
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository creates a new ResourceRepository
func NewResourceRepository(db *sqlx.DB) repositories.ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create creates a new resource
func (r *ResourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	query := `
		INSERT INTO resources (
			resource_id, name, type, provider, tags, onboarded,
			monitoring_enabled, created_at, updated_at
		) VALUES (
			:resource_id, :name, :type, :provider, :tags, :onboarded,
			:monitoring_enabled, :created_at, :updated_at
		)
	`

	now := time.Now().UTC()
	resource.CreatedAt = now
	resource.UpdatedAt = now

	result, err := r.db.NamedExecContext(ctx, query, resource)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted resource ID: %w", err)
	}
	resource.ID = id

	return nil
}

// GetByResourceID retrieves a resource by its external resource identifier,
// or nil when it is not in the inventory
func (r *ResourceRepository) GetByResourceID(ctx context.Context, resourceID string) (*models.Resource, error) {
	resource := &models.Resource{}
	err := r.db.GetContext(ctx, resource, `SELECT * FROM resources WHERE resource_id = ?`, resourceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return resource, nil
}

// List retrieves resources matching the filter
func (r *ResourceRepository) List(ctx context.Context, filter repositories.ResourceFilter) ([]*models.Resource, error) {
	query := "SELECT * FROM resources WHERE 1=1"
	args := []interface{}{}

	if filter.Provider != "" {
		query += " AND provider = ?"
		args = append(args, filter.Provider)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.OnlyMonitored {
		query += " AND monitoring_enabled = 1"
	}
	query += " ORDER BY resource_id"

	resources := []*models.Resource{}
	if err := r.db.SelectContext(ctx, &resources, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	return resources, nil
}

// Update persists resource mutations
func (r *ResourceRepository) Update(ctx context.Context, resource *models.Resource) error {
	query := `
		UPDATE resources SET
			name = :name,
			type = :type,
			provider = :provider,
			tags = :tags,
			onboarded = :onboarded,
			monitoring_enabled = :monitoring_enabled,
			updated_at = :updated_at
		WHERE resource_id = :resource_id
	`

	resource.UpdatedAt = time.Now().UTC()

	result, err := r.db.NamedExecContext(ctx, query, resource)
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("resource not found: %s", resource.ResourceID)
	}

	return nil
}

// Delete removes a resource from the inventory
func (r *ResourceRepository) Delete(ctx context.Context, resourceID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE resource_id = ?`, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("resource not found: %s", resourceID)
	}

	return nil
}
