package alerting

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
)

func suppressorWith(windows ...config.SuppressionWindow) *Suppressor {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewSuppressor(windows, log)
}

func TestSuppressorMatchesInsideWindow(t *testing.T) {
	s := suppressorWith(config.SuppressionWindow{
		RuleIDs:     []string{"cpu-high"},
		ResourceIDs: []string{"i-abc123"},
		Start:       "2026-08-25T00:00:00Z",
		End:         "2026-08-25T06:00:00Z",
		Reason:      "db migration",
	})

	inside := time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)
	reason, ok := s.Match("cpu-high", "i-abc123", inside)
	assert.True(t, ok)
	assert.Equal(t, "db migration", reason)

	outside := time.Date(2026, 8, 25, 7, 0, 0, 0, time.UTC)
	_, ok = s.Match("cpu-high", "i-abc123", outside)
	assert.False(t, ok)

	_, ok = s.Match("other-rule", "i-abc123", inside)
	assert.False(t, ok)

	_, ok = s.Match("cpu-high", "i-other", inside)
	assert.False(t, ok)
}

func TestSuppressorEmptyListsMatchEverything(t *testing.T) {
	s := suppressorWith(config.SuppressionWindow{
		Start:  "2026-08-25T00:00:00Z",
		End:    "2026-08-25T06:00:00Z",
		Reason: "global freeze",
	})

	inside := time.Date(2026, 8, 25, 1, 0, 0, 0, time.UTC)
	reason, ok := s.Match("any-rule", "any-resource", inside)
	assert.True(t, ok)
	assert.Equal(t, "global freeze", reason)
}

func TestSuppressorRejectsInvalidTimestamps(t *testing.T) {
	s := suppressorWith(
		config.SuppressionWindow{Start: "not-a-time", End: "2026-08-25T06:00:00Z"},
		config.SuppressionWindow{Start: "2026-08-25T00:00:00Z", End: "never"},
	)

	_, ok := s.Match("r", "res", time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestSuppressorNoWindows(t *testing.T) {
	s := suppressorWith()
	_, ok := s.Match("r", "res", time.Now())
	assert.False(t, ok)
}
