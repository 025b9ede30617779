package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sentinel-ops/sentinel-backend-go/internal/config"
)

type rulesFile struct {
	Rules []*Rule `yaml:"rules"`
}

// Loader reads threshold rules from a YAML file and hot-reloads them when the
// file changes. Malformed rules are rejected individually; valid ones stay
// active. The scheduler takes a fresh snapshot each cycle, so a reload never
// changes the rule set mid-cycle.
type Loader struct {
	path     string
	defaults config.AlertingConfig
	validate *validator.Validate
	logger   *logrus.Logger

	mu    sync.RWMutex
	rules []*Rule
}

// NewLoader creates a rule loader for the configured rules file
func NewLoader(cfg config.AlertingConfig, logger *logrus.Logger) *Loader {
	return &Loader{
		path:     cfg.RulesPath,
		defaults: cfg,
		validate: validator.New(),
		logger:   logger,
	}
}

// Load parses the rules file, validating each rule. Invalid rules are logged
// and skipped; the error return is reserved for an unreadable file.
func (l *Loader) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}

	var parsed rulesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse rules file: %w", err)
	}

	valid := make([]*Rule, 0, len(parsed.Rules))
	seen := make(map[string]bool)
	for _, rule := range parsed.Rules {
		if err := l.validate.Struct(rule); err != nil {
			l.logger.WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"error":   err.Error(),
			}).Error("Rejecting malformed threshold rule")
			continue
		}
		if seen[rule.ID] {
			l.logger.WithField("rule_id", rule.ID).Error("Rejecting duplicate rule ID")
			continue
		}
		seen[rule.ID] = true
		l.applyDefaults(rule)
		valid = append(valid, rule)
	}

	l.mu.Lock()
	l.rules = valid
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"loaded":   len(valid),
		"rejected": len(parsed.Rules) - len(valid),
	}).Info("Threshold rules loaded")

	return nil
}

func (l *Loader) applyDefaults(rule *Rule) {
	if rule.Window == 0 {
		rule.Window = Duration(config.Duration(l.defaults.DefaultEvaluationWindow, 0))
	}
	if rule.ConsecutiveBreaches == 0 {
		rule.ConsecutiveBreaches = l.defaults.DefaultConsecutiveBreaches
		if rule.ConsecutiveBreaches == 0 {
			rule.ConsecutiveBreaches = 1
		}
	}
	if rule.RenotifyInterval == 0 {
		rule.RenotifyInterval = Duration(config.Duration(l.defaults.DefaultRenotifyInterval, 0))
	}
	if rule.Aggregation == "" {
		rule.Aggregation = AggregationLatest
	}
	if rule.Severity == "" {
		rule.Severity = "warning"
	}
}

// Rules returns a snapshot of the currently loaded rules
func (l *Loader) Rules() []*Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshot := make([]*Rule, len(l.rules))
	copy(snapshot, l.rules)
	return snapshot
}

// Watch reloads the rules file on filesystem changes until stop is closed.
// Editors often replace the file, so the watch covers the parent directory.
func (l *Loader) Watch(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(l.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				l.logger.WithField("path", l.path).Info("Rules file changed, reloading")
				if err := l.Load(); err != nil {
					l.logger.WithError(err).Error("Failed to reload rules file")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.WithError(err).Warn("Rules watcher error")
			case <-stop:
				return
			}
		}
	}()

	return nil
}
