package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType names what happened in the service.
type EventType string

const (
	EventSystemDetected EventType = "system_detected" // Data: hardware.SystemInfo
	EventPlanComputed   EventType = "plan_computed"   // Data: *Plan
	EventConfigUpdated  EventType = "config_updated"  // Data: config.Config
	EventServiceStopped EventType = "service_stopped"
	EventError          EventType = "error" // Data: error

	// EventAny subscribes to every event type.
	EventAny EventType = "*"
)

// subscriberBuffer is how many undelivered events a subscriber may hold.
const subscriberBuffer = 10

// Event is published on the service's EventBus.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// EventBus fans events out to in-process subscribers. Slow subscribers miss
// events rather than block the publisher; misses are counted in Dropped.
type EventBus struct {
	mutex       sync.RWMutex
	subscribers map[EventType][]chan Event
	closed      bool
	dropped     atomic.Uint64
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[EventType][]chan Event)}
}

// Subscribe returns a channel of events of eventType, or of all events for
// EventAny. The channel is closed by Unsubscribe or when the bus closes.
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if eb.closed {
		close(ch)
		return ch
	}
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// Unsubscribe closes sub and stops delivery to it. Unknown channels are ignored.
func (eb *EventBus) Unsubscribe(sub <-chan Event) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for t, chans := range eb.subscribers {
		for i, ch := range chans {
			if ch != sub {
				continue
			}
			close(ch)
			eb.subscribers[t] = append(chans[:i:i], chans[i+1:]...)
			if len(eb.subscribers[t]) == 0 {
				delete(eb.subscribers, t)
			}
			return
		}
	}
}

// Emit stamps the event if needed and delivers it without blocking.
func (eb *EventBus) Emit(event Event) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	if eb.closed {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	eb.deliver(eb.subscribers[event.Type], event)
	if event.Type != EventAny {
		eb.deliver(eb.subscribers[EventAny], event)
	}
}

func (eb *EventBus) deliver(chans []chan Event, event Event) {
	for _, ch := range chans {
		select {
		case ch <- event:
		default:
			eb.dropped.Add(1)
		}
	}
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}

// Close closes the event bus and all subscriber channels
func (eb *EventBus) Close() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, chans := range eb.subscribers {
		for _, ch := range chans {
			close(ch)
		}
	}
	eb.subscribers = nil
}

// SubscriberCount returns the number of subscribers for eventType.
func (eb *EventBus) SubscriberCount(eventType EventType) int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers[eventType])
}
