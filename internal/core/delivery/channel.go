package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sentinel-ops/sentinel-backend-go/internal/database/models"
)

// Delivery event types
const (
	EventRaised   = "raised"
	EventResolved = "resolved"
)

// Event is one alert notification handed to channel adapters
type Event struct {
	Type     string                `json:"type"`
	Alert    *models.AlertInstance `json:"alert"`
	Resource *models.Resource      `json:"resource"`
	RuleID   string                `json:"rule_id"`
	Subject  string                `json:"subject"`
	Message  string                `json:"message"`
}

// NewEvent builds the notification payload for an alert transition
func NewEvent(eventType string, alert *models.AlertInstance, resource *models.Resource) *Event {
	subject := fmt.Sprintf("[%s] Alert for Resource %s (%s)",
		strings.ToUpper(alert.Severity), resource.Name, resource.ResourceID)
	if eventType == EventResolved {
		subject = fmt.Sprintf("[RESOLVED] Alert for Resource %s (%s)", resource.Name, resource.ResourceID)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Alert Message: %s\n", alert.Message)
	fmt.Fprintf(&body, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&body, "State: %s\n", alert.State)
	fmt.Fprintf(&body, "Resource: %s (%s)\n", resource.Name, resource.ResourceID)
	fmt.Fprintf(&body, "Observed Value: %g\n", alert.ObservedValue)
	fmt.Fprintf(&body, "Triggered At: %s\n", alert.FirstBreachAt.Format(time.RFC3339))
	if eventType == EventResolved && alert.ResolvedAt.Valid {
		fmt.Fprintf(&body, "Resolved At: %s\n", alert.ResolvedAt.Time.Format(time.RFC3339))
	}

	return &Event{
		Type:     eventType,
		Alert:    alert,
		Resource: resource,
		RuleID:   alert.RuleID,
		Subject:  subject,
		Message:  body.String(),
	}
}

// Channel delivers alert events to one destination. Adapters must be safe for
// concurrent use; one adapter's failure never blocks another's delivery.
type Channel interface {
	Name() string
	Send(ctx context.Context, event *Event) error
}
