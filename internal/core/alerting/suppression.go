package alerting

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
)

type suppressionWindow struct {
	ruleIDs     map[string]bool
	resourceIDs map[string]bool
	start       time.Time
	end         time.Time
	reason      string
}

// Suppressor evaluates operator-defined suppression windows. A matching
// window sets the orthogonal Suppressed flag on an alert: transitions still
// occur and are audited, but notifications are skipped.
type Suppressor struct {
	windows []suppressionWindow
}

// NewSuppressor parses suppression windows from configuration. Windows with
// unparseable timestamps are rejected with a log entry.
func NewSuppressor(cfgs []config.SuppressionWindow, logger *logrus.Logger) *Suppressor {
	s := &Suppressor{}
	for _, cfg := range cfgs {
		start, err := time.Parse(time.RFC3339, cfg.Start)
		if err != nil {
			logger.WithField("start", cfg.Start).Error("Rejecting suppression window with invalid start")
			continue
		}
		end, err := time.Parse(time.RFC3339, cfg.End)
		if err != nil {
			logger.WithField("end", cfg.End).Error("Rejecting suppression window with invalid end")
			continue
		}

		window := suppressionWindow{
			ruleIDs:     toSet(cfg.RuleIDs),
			resourceIDs: toSet(cfg.ResourceIDs),
			start:       start,
			end:         end,
			reason:      cfg.Reason,
		}
		s.windows = append(s.windows, window)
	}
	return s
}

// Match reports whether a (rule, resource) pair is suppressed at the given
// time, and the operator-provided reason. Empty rule or resource lists in a
// window match everything.
func (s *Suppressor) Match(ruleID, resourceID string, at time.Time) (string, bool) {
	for _, w := range s.windows {
		if at.Before(w.start) || at.After(w.end) {
			continue
		}
		if len(w.ruleIDs) > 0 && !w.ruleIDs[ruleID] {
			continue
		}
		if len(w.resourceIDs) > 0 && !w.resourceIDs[resourceID] {
			continue
		}
		return w.reason, true
	}
	return "", false
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
