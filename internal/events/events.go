// Package events is the daemon's lifecycle and error event bus. Emitting
// never blocks: a subscriber that falls behind loses events rather than
// stalling a device loop.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind classifies an event.
type Kind string

const (
	DeviceConnected    Kind = "device_connected"
	DeviceDisconnected Kind = "device_disconnected"
	ActionFailed       Kind = "action_failed"
	Backpressure       Kind = "backpressure"
	ProtocolError      Kind = "protocol_error"
	ProfileLoaded      Kind = "profile_loaded"
)

// Event is one structured occurrence. Device is the stable device ID when
// the event concerns one device; Key is -1 when not key-specific.
type Event struct {
	Kind   Kind
	Device string
	Key    int
	Err    error
	Time   time.Time
}

// Bus fans events out to subscribers. The zero value is not usable; call
// NewBus.
type Bus struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs []chan Event
}

// NewBus creates a bus that also logs every event through log.
func NewBus(log *zap.Logger) *Bus {
	return &Bus{log: log}
}

// Subscribe returns a buffered channel of events. The channel is never
// closed; subscribers stop reading when they are done.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Emit publishes an event without blocking. Full subscriber buffers drop
// the event for that subscriber.
func (b *Bus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	fields := []zap.Field{zap.String("kind", string(e.Kind))}
	if e.Device != "" {
		fields = append(fields, zap.String("device", e.Device))
	}
	if e.Key >= 0 {
		fields = append(fields, zap.Int("key", e.Key))
	}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
		b.log.Warn("event", fields...)
	} else {
		b.log.Info("event", fields...)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
