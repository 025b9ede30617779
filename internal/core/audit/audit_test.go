package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
	"github.com/sentinel-ops/sentinel-backend-go/internal/database/repositories"
	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// memoryAuditRepo implements the chained append in memory, mirroring the
// sqlite repository's sequencing and idempotency behavior
type memoryAuditRepo struct {
	records []*models.AuditRecord
	failing bool
}

func (m *memoryAuditRepo) Append(ctx context.Context, record *models.AuditRecord) error {
	if m.failing {
		return errors.New("disk full")
	}

	if record.EventKey != "" {
		for _, existing := range m.records {
			if existing.EventKey == record.EventKey {
				*record = *existing
				return nil
			}
		}
	}

	prevChecksum := ""
	var seq int64 = 1
	if len(m.records) > 0 {
		last := m.records[len(m.records)-1]
		prevChecksum = last.Checksum
		seq = last.SequenceNo + 1
	}

	record.SequenceNo = seq
	record.PrevChecksum = prevChecksum
	record.Checksum = models.AuditChecksum(seq, record.EventType, record.AlertID, record.Payload, prevChecksum)
	record.RecordedAt = time.Now().UTC()

	stored := *record
	m.records = append(m.records, &stored)
	return nil
}

func (m *memoryAuditRepo) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditRecord, int, error) {
	return m.records, len(m.records), nil
}

func (m *memoryAuditRepo) Last(ctx context.Context) (*models.AuditRecord, error) {
	if len(m.records) == 0 {
		return nil, nil
	}
	return m.records[len(m.records)-1], nil
}

func (m *memoryAuditRepo) ListRange(ctx context.Context, afterSeq int64, limit int) ([]*models.AuditRecord, error) {
	out := []*models.AuditRecord{}
	for _, r := range m.records {
		if r.SequenceNo > afterSeq {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestAppendChainsRecords(t *testing.T) {
	repo := &memoryAuditRepo{}
	logger := NewLogger(repo, testLogger())
	ctx := context.Background()

	first, err := logger.Append(ctx, Event{Type: models.AuditRaised, AlertID: "a1", Payload: map[string]string{"rule_id": "r1"}})
	require.NoError(t, err)
	second, err := logger.Append(ctx, Event{Type: models.AuditResolved, AlertID: "a1"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.SequenceNo)
	assert.Equal(t, int64(2), second.SequenceNo)
	assert.Equal(t, "", first.PrevChecksum)
	assert.Equal(t, first.Checksum, second.PrevChecksum)
	assert.Equal(t, "system", first.Actor)
}

func TestAppendIdempotentByKey(t *testing.T) {
	repo := &memoryAuditRepo{}
	logger := NewLogger(repo, testLogger())
	ctx := context.Background()

	first, err := logger.Append(ctx, Event{Type: models.AuditRaised, AlertID: "a1", Key: "raised|a1"})
	require.NoError(t, err)
	again, err := logger.Append(ctx, Event{Type: models.AuditRaised, AlertID: "a1", Key: "raised|a1"})
	require.NoError(t, err)

	assert.Equal(t, first.SequenceNo, again.SequenceNo)
	assert.Equal(t, first.Checksum, again.Checksum)
	assert.Len(t, repo.records, 1)
}

func TestAppendFailureWrapsAuditWrite(t *testing.T) {
	repo := &memoryAuditRepo{failing: true}
	logger := NewLogger(repo, testLogger())

	_, err := logger.Append(context.Background(), Event{Type: models.AuditRaised, AlertID: "a1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrAuditWrite)
}

func TestVerifyValidChain(t *testing.T) {
	repo := &memoryAuditRepo{}
	logger := NewLogger(repo, testLogger())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := logger.Append(ctx, Event{Type: models.AuditRaised, AlertID: "a1"})
		require.NoError(t, err)
	}

	result, err := logger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 10, result.Records)
}

func TestVerifyDetectsPayloadTampering(t *testing.T) {
	repo := &memoryAuditRepo{}
	logger := NewLogger(repo, testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := logger.Append(ctx, Event{Type: models.AuditRaised, AlertID: "a1", Payload: map[string]int{"n": i}})
		require.NoError(t, err)
	}

	repo.records[2].Payload = `{"n":999}`

	result, err := logger.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, int64(3), result.BrokenAt)
	assert.Equal(t, "checksum mismatch", result.Reason)
}

func TestVerifyDetectsDeletedRecord(t *testing.T) {
	repo := &memoryAuditRepo{}
	logger := NewLogger(repo, testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := logger.Append(ctx, Event{Type: models.AuditRaised, AlertID: "a1"})
		require.NoError(t, err)
	}

	// Drop the middle record: the sequence gap breaks the chain
	repo.records = append(repo.records[:2], repo.records[3:]...)

	result, err := logger.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, int64(4), result.BrokenAt)
	assert.Contains(t, result.Reason, "sequence gap")
}

func TestVerifyEmptyChain(t *testing.T) {
	logger := NewLogger(&memoryAuditRepo{}, testLogger())

	result, err := logger.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 0, result.Records)
}
