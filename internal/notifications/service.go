// Package notifications fans committed registry events out to delivery
// channels such as the websocket hub, SNS and the metrics counter.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"carbon-scribe/blue-carbon-registry/internal/registry"
)

var _ registry.Publisher = (*Dispatcher)(nil)

// Delivery statuses
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// ChannelDeliveryStatus counts delivery outcomes for one channel
type ChannelDeliveryStatus struct {
	Channel   string `json:"channel"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}

type channel struct {
	name      string
	publisher registry.Publisher
}

// Dispatcher delivers each event to every registered channel in order.
// One channel failing does not stop delivery to the others.
type Dispatcher struct {
	logger *zap.Logger

	mu       sync.RWMutex
	channels []channel
	status   map[string]*ChannelDeliveryStatus
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger: logger,
		status: make(map[string]*ChannelDeliveryStatus),
	}
}

// Register adds a delivery channel. Registering a name twice replaces it.
func (d *Dispatcher) Register(name string, publisher registry.Publisher) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.channels {
		if d.channels[i].name == name {
			d.channels[i].publisher = publisher
			return
		}
	}
	d.channels = append(d.channels, channel{name: name, publisher: publisher})
	d.status[name] = &ChannelDeliveryStatus{Channel: name}
}

// Publish sends the event through every channel and joins their failures
func (d *Dispatcher) Publish(ctx context.Context, event registry.Event) error {
	d.mu.RLock()
	channels := append([]channel(nil), d.channels...)
	d.mu.RUnlock()

	var errs []error
	for _, ch := range channels {
		err := ch.publisher.Publish(ctx, event)
		d.record(ch.name, err)
		if err != nil {
			d.logger.Warn("Event delivery failed",
				zap.String("channel", ch.name),
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
			continue
		}
		d.logger.Debug("Event delivered",
			zap.String("channel", ch.name),
			zap.String("event_type", string(event.Type)),
		)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) record(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.status[name]
	if !ok {
		return
	}
	if err != nil {
		st.Failed++
		st.LastError = err.Error()
		return
	}
	st.Sent++
}

// DeliveryStatus returns per-channel counters in registration order
func (d *Dispatcher) DeliveryStatus() []ChannelDeliveryStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ChannelDeliveryStatus, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, *d.status[ch.name])
	}
	return out
}
