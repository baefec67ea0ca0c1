package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDocumentInjected is emitted after a filtered document has been
	// fully streamed to the client.
	EventTypeDocumentInjected = "splice.document.injected"
)

// InjectionEvent is a transport-neutral event payload for one filtered response.
type InjectionEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Request       RequestMeta `json:"request"`
	Stream        StreamMeta  `json:"stream"`
}

// EventSource identifies the proxy configuration that produced the event.
type EventSource struct {
	Upstream string `json:"upstream"`
	Location string `json:"location"`
	Policy   string `json:"policy"`
}

// RequestMeta captures request lifecycle metadata for the event.
type RequestMeta struct {
	Method      string    `json:"method"`
	Path        string    `json:"path,omitempty"`
	Host        string    `json:"host,omitempty"`
	HTTPStatus  int       `json:"http_status"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// StreamMeta describes what the filter did to the response body.
type StreamMeta struct {
	BytesIn    int64 `json:"bytes_in"`
	BytesOut   int64 `json:"bytes_out"`
	Injections int   `json:"injections"`

	// Truncated is set when the upstream body or the client connection
	// failed before the stream completed.
	Truncated bool `json:"truncated,omitempty"`
}

// NewInjectionEvent returns an event stamped with a fresh ID, the current
// schema version and event type, and the given emission time.
func NewInjectionEvent(emittedAt time.Time, source EventSource, req RequestMeta, stream StreamMeta) *InjectionEvent {
	return &InjectionEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeDocumentInjected,
		EventID:       uuid.NewString(),
		EmittedAt:     emittedAt.UTC(),
		Source:        source,
		Request:       req,
		Stream:        stream,
	}
}
