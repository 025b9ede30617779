package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
)

func TestMessageToJSON(t *testing.T) {
	msg := Message{
		Type: "connection",
		Data: map[string]interface{}{"status": "connected"},
	}

	var decoded Message
	require.NoError(t, json.Unmarshal(msg.ToJSON(), &decoded))

	assert.Equal(t, "connection", decoded.Type)
	assert.Equal(t, "connected", decoded.Data["status"])
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestAlertMessagePayload(t *testing.T) {
	alert := &models.AlertInstance{
		ID:            "alert-1",
		RuleID:        "cpu-high",
		ResourceID:    "i-abc123",
		State:         models.AlertStateActive,
		Severity:      models.SeverityCritical,
		Message:       "cpu_percent > 90 (observed 95.00)",
		ObservedValue: 95,
	}

	msg := AlertMessage("raised", alert)

	assert.Equal(t, "alert", msg.Type)
	assert.Equal(t, "raised", msg.Data["event"])
	assert.Equal(t, "alert-1", msg.Data["alert_id"])
	assert.Equal(t, "cpu-high", msg.Data["rule_id"])
	assert.Equal(t, models.AlertStateActive, msg.Data["state"])
	assert.Equal(t, models.SeverityCritical, msg.Data["severity"])
}
