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

// AuditRepository implements repositories.AuditRepository. The audit trail is
// append-only: no update or delete statements exist in this file.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) repositories.AuditRepository {
	return &AuditRepository{db: db}
}

// Append assigns the next sequence number and chained checksum inside a
// single transaction, then inserts the record. When the record carries an
// event key that was already appended, the existing record is returned
// instead (idempotent write).
func (r *AuditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	if record.EventKey != "" {
		existing := &models.AuditRecord{}
		err := tx.GetContext(ctx, existing, `SELECT * FROM audit_records WHERE event_key = ?`, record.EventKey)
		if err == nil {
			*record = *existing
			return nil
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check audit event key: %w", err)
		}
	}

	var last models.AuditRecord
	prevChecksum := ""
	nextSeq := int64(1)
	err = tx.GetContext(ctx, &last, `SELECT * FROM audit_records ORDER BY sequence_no DESC LIMIT 1`)
	if err == nil {
		prevChecksum = last.Checksum
		nextSeq = last.SequenceNo + 1
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("failed to read audit chain tail: %w", err)
	}

	record.SequenceNo = nextSeq
	record.PrevChecksum = prevChecksum
	record.Checksum = models.AuditChecksum(nextSeq, record.EventType, record.AlertID, record.Payload, prevChecksum)
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO audit_records (
			sequence_no, event_type, alert_id, payload, actor, event_key,
			prev_checksum, checksum, recorded_at
		) VALUES (
			:sequence_no, :event_type, :alert_id, :payload, :actor, :event_key,
			:prev_checksum, :checksum, :recorded_at
		)
	`, record)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit record: %w", err)
	}

	return nil
}

// List retrieves audit records matching the filter, newest first
func (r *AuditRepository) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditRecord, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter.AlertID != "" {
		where += " AND alert_id = ?"
		args = append(args, filter.AlertID)
	}
	if filter.EventType != "" {
		where += " AND event_type = ?"
		args = append(args, filter.EventType)
	}
	if filter.Since != nil {
		where += " AND recorded_at >= ?"
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		where += " AND recorded_at <= ?"
		args = append(args, *filter.Until)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_records"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	query := "SELECT * FROM audit_records" + where + " ORDER BY sequence_no DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	records := []*models.AuditRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit records: %w", err)
	}

	return records, total, nil
}

// Last returns the newest audit record, or nil for an empty trail
func (r *AuditRepository) Last(ctx context.Context) (*models.AuditRecord, error) {
	record := &models.AuditRecord{}
	err := r.db.GetContext(ctx, record, `SELECT * FROM audit_records ORDER BY sequence_no DESC LIMIT 1`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last audit record: %w", err)
	}
	return record, nil
}

// ListRange returns records after the given sequence number in ascending order
func (r *AuditRepository) ListRange(ctx context.Context, afterSeq int64, limit int) ([]*models.AuditRecord, error) {
	records := []*models.AuditRecord{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM audit_records WHERE sequence_no > ? ORDER BY sequence_no ASC LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit range: %w", err)
	}
	return records, nil
}
