package flowcore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flowcore/flowcore/internal/graph"
	"github.com/flowcore/flowcore/internal/trace"
	flowcoreerrors "github.com/flowcore/flowcore/pkg/flowcore/errors"
)

// graphPayload is the wire shape of a submitted static-graph payload,
// version "1", per §6.
type graphPayload struct {
	Version string        `json:"version"`
	GraphID string        `json:"graph-id"`
	Nodes   []nodePayload `json:"nodes"`
	Edges   []edgePayload `json:"edges"`
}

type nodePayload struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Name string         `json:"name"`
	Data nodeDataPayload `json:"data"`
}

type nodeDataPayload struct {
	Visibility string         `json:"visibility"`
	ServiceID  string         `json:"service-id"`
	Attributes map[string]any `json:"attributes"`
}

type edgePayload struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// deriveServiceID derives a default service-id from a node-id when the
// payload omits one: everything before the first '.', which is how the
// original tracer namespaces class/method node-ids under their owning
// service (e.g. "order-service.OrderController.create"). A node-id with
// no '.' is its own service-id.
func deriveServiceID(nodeID string) string {
	if i := strings.IndexByte(nodeID, '.'); i >= 0 {
		return nodeID[:i]
	}
	return nodeID
}

// graphDecoder implements worker.GraphLoader.
type graphDecoder struct{}

// NewGraphDecoder returns the GraphLoader used to turn a submitted
// static-graph payload into an internal Graph.
func NewGraphDecoder() *graphDecoder { return &graphDecoder{} }

func (graphDecoder) Load(payload []byte) (*graph.Graph, error) {
	var p graphPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, flowcoreerrors.ValidationError(fmt.Sprintf("malformed graph payload: %v", err))
	}
	if p.GraphID == "" {
		return nil, flowcoreerrors.ValidationError("graph-id is required")
	}

	g := graph.New(p.Version)

	for _, np := range p.Nodes {
		if np.ID == "" {
			return nil, flowcoreerrors.ValidationError("node id is required")
		}
		nodeType := graph.NodeType(np.Type)
		if !graph.ValidNodeType(nodeType) {
			return nil, flowcoreerrors.ValidationError(fmt.Sprintf("unknown node type %q for node %q", np.Type, np.ID))
		}

		visibility := graph.Visibility(np.Data.Visibility)
		if visibility == "" {
			visibility = graph.VisibilityPublic
		}
		if !graph.ValidVisibility(visibility) {
			return nil, flowcoreerrors.ValidationError(fmt.Sprintf("unknown visibility %q for node %q", np.Data.Visibility, np.ID))
		}

		serviceID := np.Data.ServiceID
		if serviceID == "" {
			serviceID = deriveServiceID(np.ID)
		}

		g.AddNode(graph.Node{
			ID:         np.ID,
			Name:       np.Name,
			Type:       nodeType,
			ServiceID:  serviceID,
			Visibility: visibility,
			Metadata:   np.Data.Attributes,
		})
	}

	for _, ep := range p.Edges {
		if ep.ID == "" || ep.From == "" || ep.To == "" {
			return nil, flowcoreerrors.ValidationError("edge id, from, and to are required")
		}
		edgeType := graph.EdgeType(ep.Type)
		if !graph.ValidEdgeType(edgeType) {
			return nil, flowcoreerrors.ValidationError(fmt.Sprintf("unknown edge type %q for edge %q", ep.Type, ep.ID))
		}
		if err := g.AddEdge(graph.Edge{ID: ep.ID, SourceID: ep.From, TargetID: ep.To, Type: edgeType}); err != nil {
			return nil, flowcoreerrors.InvalidReference(err.Error())
		}
	}

	return g, nil
}

// eventBatchPayload is the wire shape of a submitted runtime-event batch,
// per §6. graph-id and trace-id are carried on the outer ingest work item
// as well (the transport layer reads them to route the submission); they
// are accepted here too so the payload is self-describing.
type eventBatchPayload struct {
	GraphID       string         `json:"graph-id"`
	TraceID       string         `json:"trace-id"`
	Events        []eventPayload `json:"events"`
	TraceComplete bool           `json:"trace-complete"`
}

type eventPayload struct {
	EventID       string         `json:"event-id"`
	Type          string         `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	NodeID        string         `json:"node-id"`
	SpanID        string         `json:"span-id"`
	ParentSpanID  string         `json:"parent-span-id"`
	DurationMs    *int64         `json:"duration-ms"`
	CorrelationID string         `json:"correlation-id"`
	ErrorMessage  string         `json:"error-message"`
	ErrorType     string         `json:"error-type"`
	Attributes    map[string]any `json:"attributes"`
}

// aliasEventType normalizes the legacy START/END synonyms to
// METHOD_ENTER/METHOD_EXIT, the only spellings the trace buffer
// understands.
func aliasEventType(t string) string {
	switch t {
	case "START":
		return string(trace.EventMethodEnter)
	case "END":
		return string(trace.EventMethodExit)
	default:
		return t
	}
}

// eventDecoder implements worker.EventDecoder.
type eventDecoder struct{}

// NewEventDecoder returns the EventDecoder used to turn a submitted
// runtime-event batch payload into trace.Events.
func NewEventDecoder() *eventDecoder { return &eventDecoder{} }

func (eventDecoder) Decode(payload []byte) ([]trace.Event, error) {
	var p eventBatchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, flowcoreerrors.ValidationError(fmt.Sprintf("malformed event payload: %v", err))
	}
	if len(p.Events) == 0 {
		return nil, flowcoreerrors.ValidationError("events cannot be empty")
	}

	events := make([]trace.Event, 0, len(p.Events))
	for _, ep := range p.Events {
		eventType := trace.EventType(aliasEventType(ep.Type))
		if !trace.ValidEventType(eventType) {
			return nil, flowcoreerrors.ValidationError(fmt.Sprintf("unknown event type %q", ep.Type))
		}

		attrs := cloneAttributes(ep.Attributes)
		if ep.DurationMs != nil {
			attrs["duration-ms"] = *ep.DurationMs
		}
		if ep.CorrelationID != "" {
			attrs["correlation-id"] = ep.CorrelationID
		}
		if ep.ErrorMessage != "" {
			attrs["error-message"] = ep.ErrorMessage
		}
		if ep.ErrorType != "" {
			attrs["error-type"] = ep.ErrorType
		}

		events = append(events, trace.Event{
			EventID:      ep.EventID,
			TraceID:      p.TraceID,
			SpanID:       ep.SpanID,
			ParentSpanID: ep.ParentSpanID,
			Timestamp:    ep.Timestamp,
			Type:         eventType,
			NodeID:       ep.NodeID,
			Attributes:   attrs,
		})
	}
	return events, nil
}

func cloneAttributes(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}
