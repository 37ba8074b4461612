package notifications

import (
	"strings"
	"time"

	"carbon-scribe/blue-carbon-registry/internal/registry"
)

// Channel names
const (
	ChannelWebSocket = "websocket"
	ChannelSNS       = "sns"
	ChannelMetrics   = "metrics"
	ChannelAlerts    = "alerts"
)

// Message types sent to realtime clients
const (
	MessageTypeEvent    = "event"
	MessageTypeStatus   = "status"
	MessageTypePresence = "presence"
)

// Message is the wire format for realtime and fan-out delivery
type Message struct {
	Type      string         `json:"type"`
	Category  string         `json:"category,omitempty"`
	Event     string         `json:"event,omitempty"`
	EventID   string         `json:"event_id,omitempty"`
	ProjectID string         `json:"project_id,omitempty"`
	CreditID  string         `json:"credit_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Channel   string         `json:"channel"`
}

// Notification categories, keyed by the event type prefix
const (
	CategoryProjects  = "PROJECT_UPDATES"
	CategoryCredits   = "CREDIT_ACTIVITY"
	CategoryTelemetry = "MONITORING_DATA"
)

// CategoryOf maps an event onto its notification category
func CategoryOf(t registry.EventType) string {
	prefix, _, _ := strings.Cut(string(t), ".")
	switch prefix {
	case "project":
		return CategoryProjects
	case "credit":
		return CategoryCredits
	case "sensor":
		return CategoryTelemetry
	default:
		return strings.ToUpper(prefix)
	}
}

// MessageFromEvent converts a lifecycle event to its wire form
func MessageFromEvent(e registry.Event) Message {
	channel := "broadcast"
	if e.ProjectID != "" {
		channel = "project"
	}
	return Message{
		Type:      MessageTypeEvent,
		Category:  CategoryOf(e.Type),
		Event:     string(e.Type),
		EventID:   e.ID,
		ProjectID: e.ProjectID,
		CreditID:  e.CreditID,
		Data:      e.Data,
		Timestamp: e.OccurredAt,
		Channel:   channel,
	}
}
