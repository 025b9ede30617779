package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// Event is one alert lifecycle occurrence to be recorded in the audit trail
type Event struct {
	Type    string
	AlertID string
	Payload interface{}
	Actor   string
	// Key makes the append idempotent: re-appending the same key returns
	// the already-persisted record instead of writing a duplicate.
	Key string
}

// Logger is the append-only, tamper-evident audit trail. Append is the only
// mutation operation; the write is synchronous and callers must treat its
// failure as fatal to the state transition it describes.
type Logger struct {
	repo repositories.AuditRepository
	log  *logrus.Logger
}

// NewLogger creates an audit logger backed by the given repository
func NewLogger(repo repositories.AuditRepository, log *logrus.Logger) *Logger {
	return &Logger{repo: repo, log: log}
}

// Append records the event and returns the persisted record. The returned
// error wraps pkgerrors.ErrAuditWrite so callers can recognize the fatal
// audit-failure case.
func (l *Logger) Append(ctx context.Context, event Event) (*models.AuditRecord, error) {
	payload := ""
	if event.Payload != nil {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshaling payload: %v", pkgerrors.ErrAuditWrite, err)
		}
		payload = string(data)
	}

	actor := event.Actor
	if actor == "" {
		actor = "system"
	}

	record := &models.AuditRecord{
		EventType: event.Type,
		AlertID:   event.AlertID,
		Payload:   payload,
		Actor:     actor,
		EventKey:  event.Key,
	}

	if err := l.repo.Append(ctx, record); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"event_type": event.Type,
			"alert_id":   event.AlertID,
		}).Error("Audit append failed")
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrAuditWrite, err)
	}

	l.log.WithFields(logrus.Fields{
		"sequence_no": record.SequenceNo,
		"event_type":  record.EventType,
		"alert_id":    record.AlertID,
	}).Debug("Audit record appended")

	return record, nil
}

// VerifyResult describes the outcome of an audit chain verification
type VerifyResult struct {
	Records  int    `json:"records"`
	Valid    bool   `json:"valid"`
	BrokenAt int64  `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

const verifyBatchSize = 500

// Verify walks the full chain and reports the first broken link, if any. A
// gap in sequence numbers or a checksum mismatch both invalidate the chain.
func (l *Logger) Verify(ctx context.Context) (*VerifyResult, error) {
	result := &VerifyResult{Valid: true}

	prevSeq := int64(0)
	prevChecksum := ""
	for {
		batch, err := l.repo.ListRange(ctx, prevSeq, verifyBatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit chain: %w", err)
		}
		if len(batch) == 0 {
			return result, nil
		}

		for _, record := range batch {
			result.Records++

			if record.SequenceNo != prevSeq+1 {
				result.Valid = false
				result.BrokenAt = record.SequenceNo
				result.Reason = fmt.Sprintf("sequence gap: expected %d, found %d", prevSeq+1, record.SequenceNo)
				return result, nil
			}
			if record.PrevChecksum != prevChecksum {
				result.Valid = false
				result.BrokenAt = record.SequenceNo
				result.Reason = "previous checksum mismatch"
				return result, nil
			}
			expected := models.AuditChecksum(record.SequenceNo, record.EventType, record.AlertID, record.Payload, record.PrevChecksum)
			if record.Checksum != expected {
				result.Valid = false
				result.BrokenAt = record.SequenceNo
				result.Reason = "checksum mismatch"
				return result, nil
			}

			prevSeq = record.SequenceNo
			prevChecksum = record.Checksum
		}
	}
}
