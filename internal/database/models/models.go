package models

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Alert lifecycle states
const (
	AlertStatePending  = "pending"
	AlertStateActive   = "active"
	AlertStateResolved = "resolved"
)

// Alert severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
	SeveritySecurity = "security"
)

// Delivery attempt statuses
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryFailed    = "failed"
	DeliveryAbandoned = "abandoned"
)

// Audit event types
const (
	AuditRaised             = "raised"
	AuditNotified           = "notified"
	AuditResolved           = "resolved"
	AuditDeliveryFailed     = "delivery_failed"
	AuditSuppressionApplied = "suppression_applied"
	AuditCoverageGap        = "coverage_gap"
)

// Product is a catalog entity owned by the CRUD surface
type Product struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description sql.NullString `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Resource is a monitored cloud resource. The alerting core treats it as
// read-only reference data keyed by ResourceID.
type Resource struct {
	ID                int64     `db:"id" json:"id"`
	ResourceID        string    `db:"resource_id" json:"resource_id"`
	Name              string    `db:"name" json:"name"`
	Type              string    `db:"type" json:"type"`
	Provider          string    `db:"provider" json:"provider"`
	Tags              TagMap    `db:"tags" json:"tags,omitempty"`
	Onboarded         bool      `db:"onboarded" json:"onboarded"`
	MonitoringEnabled bool      `db:"monitoring_enabled" json:"monitoring_enabled"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// TagMap stores resource tags as a JSON column
type TagMap map[string]string

// Value implements driver.Valuer
func (t TagMap) Value() (interface{}, error) {
	if t == nil {
		return "{}", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (t *TagMap) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported tags column type %T", value)
	}
	if len(data) == 0 {
		*t = nil
		return nil
	}
	return json.Unmarshal(data, t)
}

// AlertInstance tracks the lifecycle of one (rule, resource) alert. At most
// one non-resolved instance exists per pair; only the state machine mutates
// it.
type AlertInstance struct {
	ID             string       `db:"id" json:"id"`
	RuleID         string       `db:"rule_id" json:"rule_id"`
	ResourceID     string       `db:"resource_id" json:"resource_id"`
	State          string       `db:"state" json:"state"`
	Severity       string       `db:"severity" json:"severity"`
	Suppressed     bool         `db:"suppressed" json:"suppressed"`
	Message        string       `db:"message" json:"message"`
	ObservedValue  float64      `db:"observed_value" json:"observed_value"`
	FirstBreachAt  time.Time    `db:"first_breach_at" json:"first_breach_at"`
	LastBreachAt   time.Time    `db:"last_breach_at" json:"last_breach_at"`
	ResolvedAt     sql.NullTime `db:"resolved_at" json:"resolved_at,omitempty"`
	BreachCount    int          `db:"breach_count" json:"breach_count"`
	ClearCount     int          `db:"clear_count" json:"clear_count"`
	LastNotifiedAt sql.NullTime `db:"last_notified_at" json:"last_notified_at,omitempty"`
	DeliveredVia   string       `db:"delivered_via" json:"delivered_via,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// DeliveryAttempt is an append-only record of one send attempt on a channel
type DeliveryAttempt struct {
	ID            int64     `db:"id" json:"id"`
	AlertID       string    `db:"alert_id" json:"alert_id"`
	Channel       string    `db:"channel" json:"channel"`
	AttemptNumber int       `db:"attempt_number" json:"attempt_number"`
	Status        string    `db:"status" json:"status"`
	ErrorDetail   string    `db:"error_detail" json:"error_detail,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AuditRecord is one entry of the append-only, tamper-evident audit trail.
// Each checksum covers the previous record's checksum, chaining the log.
type AuditRecord struct {
	SequenceNo   int64     `db:"sequence_no" json:"sequence_no"`
	EventType    string    `db:"event_type" json:"event_type"`
	AlertID      string    `db:"alert_id" json:"alert_id"`
	Payload      string    `db:"payload" json:"payload"`
	Actor        string    `db:"actor" json:"actor"`
	EventKey     string    `db:"event_key" json:"event_key,omitempty"`
	PrevChecksum string    `db:"prev_checksum" json:"prev_checksum"`
	Checksum     string    `db:"checksum" json:"checksum"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}

// AuditChecksum computes the chained checksum of an audit record. Any
// modification of a persisted record, or a gap in the sequence, breaks the
// chain.
func AuditChecksum(sequenceNo int64, eventType, alertID, payload, prevChecksum string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s", sequenceNo, eventType, alertID, payload, prevChecksum)
	return hex.EncodeToString(h.Sum(nil))
}
