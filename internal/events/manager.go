package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager wraps a Bus with structured logging on every emission.
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for the given event type on the underlying bus.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.bus.Subscribe(eventType, handler)
}

// Emit publishes an event with typed data to the bus and logs it.
func (m *Manager) Emit(eventType EventType, module string, data EventData) {
	dataMap := convertEventDataToMap(data)

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      dataMap,
		Module:    module,
	}

	m.bus.Emit(eventType, module, dataMap)

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("event emitted")
}

// EmitError emits an ErrorOccurred event for a generic failure.
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.Emit(ErrorOccurred, module, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}
