package trace

import "time"

// EventType enumerates runtime event kinds. Per the design notes, the
// source also emits START/END as a legacy synonym pair for
// METHOD_ENTER/METHOD_EXIT; that normalization happens at payload
// decode time (pkg/flowcore), not here — by the time an Event reaches
// the trace buffer its Type is always one of the six below.
type EventType string

const (
	EventMethodEnter  EventType = "METHOD_ENTER"
	EventMethodExit   EventType = "METHOD_EXIT"
	EventProduceTopic EventType = "PRODUCE_TOPIC"
	EventConsumeTopic EventType = "CONSUME_TOPIC"
	EventCheckpoint   EventType = "CHECKPOINT"
	EventError        EventType = "ERROR"
)

// ValidEventType reports whether t is one of the enumerated types.
func ValidEventType(t EventType) bool {
	switch t {
	case EventMethodEnter, EventMethodExit, EventProduceTopic, EventConsumeTopic, EventCheckpoint, EventError:
		return true
	default:
		return false
	}
}

// Event is a single runtime occurrence reported by the plugin.
type Event struct {
	EventID       string
	TraceID       string
	SpanID        string
	ParentSpanID  string
	Timestamp     time.Time
	Type          EventType
	NodeID        string
	Attributes    map[string]any
}

// Checkpoint is a named point-in-time marker attached to a node.
type Checkpoint struct {
	NodeID    string
	Name      string
	Timestamp time.Time
	Data      map[string]any
}

// ErrorRecord captures one ERROR event's context.
type ErrorRecord struct {
	NodeID    string
	Timestamp time.Time
	Message   string
	Class     string
}

// AsyncHop is a derived produce/consume pairing sharing a correlation id.
type AsyncHop struct {
	CorrelationID  string
	ProducerNode   string
	ConsumerNode   string
	ProducedAt     time.Time
	ConsumedAt     time.Time
}

const correlationIDAttr = "correlation-id"

func correlationID(attrs map[string]any) string {
	if attrs == nil {
		return ""
	}
	if v, ok := attrs[correlationIDAttr]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func errorClass(attrs map[string]any) string {
	if attrs == nil {
		return ""
	}
	if v, ok := attrs["error-type"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func errorMessage(attrs map[string]any) string {
	if attrs == nil {
		return ""
	}
	if v, ok := attrs["error-message"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
