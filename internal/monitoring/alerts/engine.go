// Package alerts evaluates sensor telemetry against alert rules as readings
// are recorded.
package alerts

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
)

// EventAlertTriggered is published to the sink when a rule fires
const EventAlertTriggered registry.EventType = "sensor.alert"

// Condition types
const (
	ConditionThreshold    = "threshold"
	ConditionRateOfChange = "rate_of_change"
)

// Threshold operators
const (
	OperatorGreaterThan        = "greater_than"
	OperatorLessThan           = "less_than"
	OperatorEqualTo            = "equal_to"
	OperatorGreaterThanOrEqual = "greater_than_or_equal"
	OperatorLessThanOrEqual    = "less_than_or_equal"
)

// Severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert statuses
const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

const defaultMaxAlerts = 500

var _ registry.Publisher = (*Engine)(nil)

// Rule describes when a sensor reading raises an alert. An empty ProjectID
// applies the rule to every project.
type Rule struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	ProjectID       string              `json:"project_id,omitempty"`
	SensorType      registry.SensorType `json:"sensor_type"`
	ConditionType   string              `json:"condition_type"`
	Operator        string              `json:"operator,omitempty"`
	Threshold       float64             `json:"threshold,omitempty"`
	MaxRatePercent  float64             `json:"max_rate_percent,omitempty"`
	Severity        string              `json:"severity"`
	CooldownMinutes int                 `json:"cooldown_minutes"`
}

// Alert is a triggered rule
type Alert struct {
	ID             string              `json:"id"`
	RuleID         string              `json:"rule_id"`
	ProjectID      string              `json:"project_id"`
	SensorType     registry.SensorType `json:"sensor_type"`
	ReadingID      string              `json:"reading_id"`
	Severity       string              `json:"severity"`
	Title          string              `json:"title"`
	Message        string              `json:"message"`
	Details        map[string]any      `json:"details,omitempty"`
	Status         string              `json:"status"`
	TriggeredAt    time.Time           `json:"triggered_at"`
	AcknowledgedAt *time.Time          `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time          `json:"resolved_at,omitempty"`
}

// Filter narrows Alerts results; empty fields match everything
type Filter struct {
	ProjectID string
	Status    string
	Severity  string
}

// Readings lists a project's readings of one type, newest first
type Readings interface {
	ListSensorReadings(ctx context.Context, projectID string, sensorType registry.SensorType) ([]registry.SensorReading, error)
}

// Engine handles rule evaluation and keeps the most recent alerts in memory
type Engine struct {
	rules    []Rule
	readings Readings
	sink     registry.Publisher
	logger   *zap.Logger
	now      func() time.Time
	max      int

	mu        sync.RWMutex
	alerts    []Alert // oldest first
	lastFired map[string]time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithSink forwards every triggered alert as an EventAlertTriggered event
func WithSink(sink registry.Publisher) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithMaxAlerts bounds how many alerts are kept
func WithMaxAlerts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.max = n
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine validates rules and creates an engine
func NewEngine(rules []Rule, readings Readings, logger *zap.Logger, opts ...Option) (*Engine, error) {
	rules = slices.Clone(rules)
	for i := range rules {
		if err := rules[i].validate(); err != nil {
			return nil, fmt.Errorf("alert rule %d: %w", i, err)
		}
	}
	e := &Engine{
		rules:     rules,
		readings:  readings,
		logger:    logger,
		now:       time.Now,
		max:       defaultMaxAlerts,
		lastFired: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (r *Rule) validate() error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Name == "" {
		return registry.FieldInvalid("name", "is required")
	}
	if r.SensorType == "" {
		return registry.FieldInvalid("sensor_type", "is required")
	}
	if r.Severity == "" {
		r.Severity = SeverityWarning
	}
	if r.CooldownMinutes < 0 {
		return registry.FieldInvalid("cooldown_minutes", "must not be negative")
	}
	switch r.ConditionType {
	case ConditionThreshold:
		if r.Operator == "" {
			r.Operator = OperatorGreaterThan
		}
		if _, err := compare(r.Operator, 0, 0); err != nil {
			return registry.FieldInvalid("operator", err.Error())
		}
	case ConditionRateOfChange:
		if r.MaxRatePercent <= 0 {
			return registry.FieldInvalid("max_rate_percent", "must be positive")
		}
	default:
		return registry.FieldInvalid("condition_type", fmt.Sprintf("unknown condition type: %s", r.ConditionType))
	}
	return nil
}

// Rules returns the configured rules
func (e *Engine) Rules() []Rule {
	return slices.Clone(e.rules)
}

// Publish evaluates rules for recorded sensor readings and ignores other events
func (e *Engine) Publish(ctx context.Context, event registry.Event) error {
	if event.Type != registry.EventSensorRecorded {
		return nil
	}
	reading, err := readingFromEvent(event)
	if err != nil {
		return err
	}
	_, err = e.Evaluate(ctx, reading)
	return err
}

func readingFromEvent(event registry.Event) (registry.SensorReading, error) {
	r := registry.SensorReading{ProjectID: event.ProjectID, Timestamp: event.OccurredAt}
	switch st := event.Data["sensor_type"].(type) {
	case registry.SensorType:
		r.SensorType = st
	case string:
		r.SensorType = registry.SensorType(st)
	}
	value, ok := event.Data["value"].(float64)
	if !ok || r.SensorType == "" {
		return r, fmt.Errorf("sensor event %s carries no reading", event.ID)
	}
	r.Value = value
	r.ID, _ = event.Data["reading_id"].(string)
	return r, nil
}

// Evaluate runs every matching rule against reading and returns the alerts
// it raised
func (e *Engine) Evaluate(ctx context.Context, reading registry.SensorReading) ([]Alert, error) {
	var raised []Alert
	for i := range e.rules {
		rule := &e.rules[i]
		if rule.SensorType != reading.SensorType || (rule.ProjectID != "" && rule.ProjectID != reading.ProjectID) {
			continue
		}
		if e.inCooldown(rule, reading.ProjectID) {
			continue
		}

		triggered, details, err := e.evaluateRule(ctx, rule, reading)
		if err != nil {
			e.logger.Warn("Alert rule evaluation failed",
				zap.String("rule_id", rule.ID),
				zap.String("project_id", reading.ProjectID),
				zap.Error(err),
			)
			continue
		}
		if !triggered {
			continue
		}

		alert, ok := e.record(rule, reading, details)
		if !ok {
			continue
		}
		raised = append(raised, alert)
		e.forward(ctx, alert)
	}
	return raised, nil
}

func (e *Engine) evaluateRule(ctx context.Context, rule *Rule, reading registry.SensorReading) (bool, map[string]any, error) {
	switch rule.ConditionType {
	case ConditionThreshold:
		return e.evaluateThreshold(rule, reading)
	case ConditionRateOfChange:
		return e.evaluateRateOfChange(ctx, rule, reading)
	default:
		return false, nil, fmt.Errorf("unknown condition type: %s", rule.ConditionType)
	}
}

func (e *Engine) evaluateThreshold(rule *Rule, reading registry.SensorReading) (bool, map[string]any, error) {
	triggered, err := compare(rule.Operator, reading.Value, rule.Threshold)
	if err != nil {
		return false, nil, err
	}
	return triggered, map[string]any{
		"condition_type": ConditionThreshold,
		"operator":       rule.Operator,
		"threshold":      rule.Threshold,
		"current_value":  reading.Value,
	}, nil
}

// evaluateRateOfChange compares the reading with the one recorded before it
func (e *Engine) evaluateRateOfChange(ctx context.Context, rule *Rule, reading registry.SensorReading) (bool, map[string]any, error) {
	if e.readings == nil {
		return false, nil, fmt.Errorf("rate of change needs reading history")
	}
	history, err := e.readings.ListSensorReadings(ctx, reading.ProjectID, reading.SensorType)
	if err != nil {
		return false, nil, err
	}

	idx := 0
	if reading.ID != "" {
		idx = slices.IndexFunc(history, func(r registry.SensorReading) bool { return r.ID == reading.ID })
		if idx < 0 {
			return false, nil, fmt.Errorf("reading %s not found", reading.ID)
		}
	}
	if idx+1 >= len(history) {
		return false, nil, nil
	}
	previous := history[idx+1].Value
	if previous == 0 {
		return false, nil, nil
	}

	rate := (reading.Value - previous) / math.Abs(previous) * 100
	return math.Abs(rate) > rule.MaxRatePercent, map[string]any{
		"condition_type":   ConditionRateOfChange,
		"max_rate_percent": rule.MaxRatePercent,
		"actual_rate":      rate,
		"previous_value":   previous,
		"current_value":    reading.Value,
	}, nil
}

func compare(operator string, value, threshold float64) (bool, error) {
	switch operator {
	case OperatorGreaterThan:
		return value > threshold, nil
	case OperatorLessThan:
		return value < threshold, nil
	case OperatorEqualTo:
		return value == threshold, nil
	case OperatorGreaterThanOrEqual:
		return value >= threshold, nil
	case OperatorLessThanOrEqual:
		return value <= threshold, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", operator)
	}
}

func cooldownKey(ruleID, projectID string) string {
	return ruleID + "/" + projectID
}

// inCooldown skips evaluation early; record repeats the check under the
// writer lock.
func (e *Engine) inCooldown(rule *Rule, projectID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.coolingLocked(rule, projectID, e.now())
}

// coolingLocked requires e.mu
func (e *Engine) coolingLocked(rule *Rule, projectID string, now time.Time) bool {
	if rule.CooldownMinutes == 0 {
		return false
	}
	last, ok := e.lastFired[cooldownKey(rule.ID, projectID)]
	return ok && now.Sub(last) < time.Duration(rule.CooldownMinutes)*time.Minute
}

// record stores an alert unless another reading for the same rule and project
// fired within the cooldown first
func (e *Engine) record(rule *Rule, reading registry.SensorReading, details map[string]any) (Alert, bool) {
	now := e.now().UTC()
	alert := Alert{
		ID:          uuid.New().String(),
		RuleID:      rule.ID,
		ProjectID:   reading.ProjectID,
		SensorType:  reading.SensorType,
		ReadingID:   reading.ID,
		Severity:    rule.Severity,
		Title:       rule.Name,
		Message:     alertMessage(rule, reading),
		Details:     details,
		Status:      StatusActive,
		TriggeredAt: now,
	}

	e.mu.Lock()
	if e.coolingLocked(rule, reading.ProjectID, now) {
		e.mu.Unlock()
		return Alert{}, false
	}
	e.lastFired[cooldownKey(rule.ID, reading.ProjectID)] = now
	e.alerts = append(e.alerts, alert)
	if over := len(e.alerts) - e.max; over > 0 {
		e.alerts = slices.Delete(e.alerts, 0, over)
	}
	e.mu.Unlock()

	e.logger.Info("Alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("rule_id", rule.ID),
		zap.String("project_id", reading.ProjectID),
		zap.String("severity", rule.Severity),
		zap.Float64("value", reading.Value),
	)
	return alert, true
}

func alertMessage(rule *Rule, reading registry.SensorReading) string {
	switch rule.ConditionType {
	case ConditionThreshold:
		return fmt.Sprintf("%s: %s reading %g breaches %s %g", rule.Name, reading.SensorType, reading.Value, rule.Operator, rule.Threshold)
	case ConditionRateOfChange:
		return fmt.Sprintf("%s: rapid change detected in %s", rule.Name, reading.SensorType)
	default:
		return fmt.Sprintf("%s: alert triggered", rule.Name)
	}
}

func (e *Engine) forward(ctx context.Context, alert Alert) {
	if e.sink == nil {
		return
	}
	event := registry.Event{
		ID:         alert.ID,
		Type:       EventAlertTriggered,
		ProjectID:  alert.ProjectID,
		OccurredAt: alert.TriggeredAt,
		Data: map[string]any{
			"rule_id":     alert.RuleID,
			"severity":    alert.Severity,
			"title":       alert.Title,
			"message":     alert.Message,
			"sensor_type": alert.SensorType,
		},
	}
	if err := e.sink.Publish(ctx, event); err != nil {
		e.logger.Warn("Alert delivery failed", zap.String("alert_id", alert.ID), zap.Error(err))
	}
}

// Alerts returns matching alerts newest first
func (e *Engine) Alerts(filter Filter) []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Alert, 0, len(e.alerts))
	for i := len(e.alerts) - 1; i >= 0; i-- {
		a := e.alerts[i]
		if (filter.ProjectID == "" || a.ProjectID == filter.ProjectID) &&
			(filter.Status == "" || a.Status == filter.Status) &&
			(filter.Severity == "" || a.Severity == filter.Severity) {
			out = append(out, a)
		}
	}
	return out
}

// Acknowledge marks an active alert as seen
func (e *Engine) Acknowledge(id string) (*Alert, error) {
	return e.transition(id, func(a *Alert, now time.Time) error {
		if a.Status != StatusActive {
			return registry.InvalidTransition("alert %s is %s", a.ID, a.Status)
		}
		a.Status = StatusAcknowledged
		a.AcknowledgedAt = &now
		return nil
	})
}

// Resolve closes an alert. Resolving twice is rejected.
func (e *Engine) Resolve(id string) (*Alert, error) {
	return e.transition(id, func(a *Alert, now time.Time) error {
		if a.Status == StatusResolved {
			return registry.InvalidTransition("alert %s is already resolved", a.ID)
		}
		a.Status = StatusResolved
		a.ResolvedAt = &now
		return nil
	})
}

func (e *Engine) transition(id string, apply func(*Alert, time.Time) error) (*Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := slices.IndexFunc(e.alerts, func(a Alert) bool { return a.ID == id })
	if i < 0 {
		return nil, registry.NotFound("alert", id)
	}
	if err := apply(&e.alerts[i], e.now().UTC()); err != nil {
		return nil, err
	}
	out := e.alerts[i]
	return &out, nil
}
