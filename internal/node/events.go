package node

import (
	"log/slog"
	"sync"
)

// Event types
const (
	EventRelayChanged = "relay_changed"
	EventReportSent   = "report_sent"
	EventFrameDropped = "frame_dropped"
	EventDiagnostic   = "diagnostic"
	EventAssociation  = "association"
)

// Event represents a dispatcher event.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// RelayChange is the data of EventRelayChanged.
type RelayChange struct {
	Channel  int    `json:"channel"`
	Endpoint uint8  `json:"endpoint"`
	On       bool   `json:"on"`
	Mask     uint8  `json:"mask"`
	Command  string `json:"command"`
	Source   string `json:"source"`
}

// Report is the data of EventReportSent.
type Report struct {
	Channel  int    `json:"channel"`
	Endpoint uint8  `json:"endpoint"`
	On       bool   `json:"on"`
	TSN      uint8  `json:"tsn"`
	Reason   string `json:"reason"`
}

// Diagnostic kinds.
const (
	KindTruncated       = "truncated_frame"
	KindUnknownCluster  = "unknown_cluster"
	KindUnknownCommand  = "unknown_command"
	KindReservedFrame   = "reserved_frame_type"
	KindClientCommand   = "client_command"
	KindTrailingData    = "trailing_data"
	KindNotAssociated   = "not_associated"
	KindNoHandler       = "no_handler"
	KindChannelRange    = "channel_out_of_range"
	KindTransmitFailed  = "transmit_failed"
	KindDriverFailed    = "driver_failed"
	KindDefaultResponse = "default_response"
)

// Diagnostic is the data of EventFrameDropped and EventDiagnostic.
type Diagnostic struct {
	Kind      string `json:"kind"`
	Detail    string `json:"detail"`
	ClusterID uint16 `json:"cluster_id"`
	ProfileID uint16 `json:"profile_id"`
	Endpoint  uint8  `json:"endpoint"`
}

// Association is the data of EventAssociation.
type Association struct {
	Status     uint8 `json:"status"`
	Associated bool  `json:"associated"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus provides pub/sub for dispatcher events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit calls every matching handler synchronously. A panicking handler is
// recovered and logged.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
