package websocket

import (
	"encoding/json"
	"time"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
)

// Message is the envelope for everything sent over the live alert feed
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON serializes the message for the wire. Marshal failures degrade to an
// empty envelope rather than dropping the frame.
func (m Message) ToJSON() []byte {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return []byte(`{"type":"error"}`)
	}
	return data
}

// AlertMessage wraps an alert lifecycle event for broadcast
func AlertMessage(eventType string, alert *models.AlertInstance) Message {
	return Message{
		Type: "alert",
		Data: map[string]interface{}{
			"event":       eventType,
			"alert_id":    alert.ID,
			"rule_id":     alert.RuleID,
			"resource_id": alert.ResourceID,
			"state":       alert.State,
			"severity":    alert.Severity,
			"suppressed":  alert.Suppressed,
			"message":     alert.Message,
			"observed":    alert.ObservedValue,
		},
	}
}
