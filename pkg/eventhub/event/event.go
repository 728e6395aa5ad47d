// Package event defines the Event type routed by the hub.
//
// An event is classified by a (type, source) pair used for listener
// routing, carries an opaque key/value payload, and may reference another
// event either as a response (ResponseID) or as a causal parent (ParentID).
// Events are immutable once created; Copy derives a new event with
// different data.
package event

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Wildcard matches any event type or source when used in a listener binding.
const Wildcard = "*"

// Reserved classification used by events the hub emits itself.
const (
	TypeHub = "hub"

	SourceSharedState    = "sharedState"
	SourceSharedStateXDM = "sharedStateXDM"

	// KeyStateOwner is the data key naming the extension whose shared state
	// changed.
	KeyStateOwner = "stateowner"
)

// Event is a unit of communication between extensions.
type Event struct {
	id         string
	name       string
	typ        string
	source     string
	data       map[string]any
	timestamp  time.Time
	responseID string
	parentID   string
	mask       []string

	// number is the admission sequence number assigned by the hub; zero
	// until dispatched.
	number atomic.Int64
}

// Option configures event creation.
type Option func(*Event)

// WithEventID sets a specific event ID (default: auto-generated UUID).
func WithEventID(id string) Option {
	return func(e *Event) {
		if id != "" {
			e.id = id
		}
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
// Intended for test fixtures.
func WithTimestamp(t time.Time) Option {
	return func(e *Event) {
		e.timestamp = t
	}
}

// WithResponseID marks the event as a response to the event with the given ID.
func WithResponseID(id string) Option {
	return func(e *Event) {
		e.responseID = id
	}
}

// WithParentID links the event to the event that caused it.
func WithParentID(id string) Option {
	return func(e *Event) {
		e.parentID = id
	}
}

// WithMask sets the dot-separated data paths kept by MaskedData.
func WithMask(paths ...string) Option {
	return func(e *Event) {
		e.mask = append([]string(nil), paths...)
	}
}

// New creates an event. The data map is copied.
func New(name, eventType, source string, data map[string]any, opts ...Option) *Event {
	e := &Event{
		id:        uuid.New().String(),
		name:      name,
		typ:       eventType,
		source:    source,
		data:      maps.Clone(data),
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewResponse creates a response to trigger. The response is correlated
// with trigger through ResponseID and records trigger as its parent.
func NewResponse(trigger *Event, name, eventType, source string, data map[string]any, opts ...Option) *Event {
	base := []Option{WithResponseID(trigger.ID()), WithParentID(trigger.ID())}
	return New(name, eventType, source, data, append(base, opts...)...)
}

// NewChained creates an event caused by parent.
func NewChained(parent *Event, name, eventType, source string, data map[string]any, opts ...Option) *Event {
	base := []Option{WithParentID(parent.ID())}
	return New(name, eventType, source, data, append(base, opts...)...)
}

// ID returns the unique event identifier.
func (e *Event) ID() string { return e.id }

// Name returns the human readable event name.
func (e *Event) Name() string { return e.name }

// Type returns the event type.
func (e *Event) Type() string { return e.typ }

// Source returns the event source.
func (e *Event) Source() string { return e.source }

// Data returns the payload. The map is shared and must not be modified.
func (e *Event) Data() map[string]any { return e.data }

// Timestamp returns when the event was created.
func (e *Event) Timestamp() time.Time { return e.timestamp }

// ResponseID returns the ID of the event this one responds to, if any.
func (e *Event) ResponseID() string { return e.responseID }

// ParentID returns the ID of the causing event, if any.
func (e *Event) ParentID() string { return e.parentID }

// Mask returns the data paths kept by MaskedData.
func (e *Event) Mask() []string { return append([]string(nil), e.mask...) }

// IsResponse reports whether the event answers another event.
func (e *Event) IsResponse() bool { return e.responseID != "" }

// Number returns the admission sequence number, or zero if the event has
// not been dispatched.
func (e *Event) Number() int64 { return e.number.Load() }

// AssignNumber stamps the admission sequence number. It succeeds only once;
// an event cannot be admitted twice.
func (e *Event) AssignNumber(n int64) bool {
	return n > 0 && e.number.CompareAndSwap(0, n)
}

// Matches reports whether the event routes to a binding for (eventType, source).
func (e *Event) Matches(eventType, source string) bool {
	return (eventType == Wildcard || eventType == e.typ) &&
		(source == Wildcard || source == e.source)
}

// Copy returns a new event with the same classification, links and mask but
// with data replaced. The copy has a fresh ID and is not dispatched.
func (e *Event) Copy(data map[string]any) *Event {
	return New(e.name, e.typ, e.source, data,
		WithTimestamp(e.timestamp),
		WithResponseID(e.responseID),
		WithParentID(e.parentID),
		WithMask(e.mask...),
	)
}

// MaskedData projects the payload onto the mask paths. Each path is a
// dot-separated sequence of keys into nested maps; paths that do not exist
// are skipped. Without a mask the full payload is returned.
func (e *Event) MaskedData() map[string]any {
	if len(e.mask) == 0 {
		return e.data
	}

	out := make(map[string]any)
	for _, path := range e.mask {
		keys := strings.Split(path, ".")
		if v, ok := lookup(e.data, keys); ok {
			assign(out, keys, deepCopy(v))
		}
	}
	return out
}

// String returns a compact description for logs.
func (e *Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event[id=%s name=%q type=%s source=%s", e.id, e.name, e.typ, e.source)
	if n := e.Number(); n > 0 {
		fmt.Fprintf(&b, " number=%d", n)
	}
	if e.responseID != "" {
		fmt.Fprintf(&b, " responseID=%s", e.responseID)
	}
	if e.parentID != "" {
		fmt.Fprintf(&b, " parentID=%s", e.parentID)
	}
	b.WriteString("]")
	return b.String()
}

// eventJSON is the serialized form of Event.
type eventJSON struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	ResponseID string         `json:"response_id,omitempty"`
	ParentID   string         `json:"parent_id,omitempty"`
	Mask       []string       `json:"mask,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:         e.id,
		Name:       e.name,
		Type:       e.typ,
		Source:     e.source,
		Data:       e.data,
		Timestamp:  e.timestamp,
		ResponseID: e.responseID,
		ParentID:   e.parentID,
		Mask:       e.mask,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The decoded event is not
// dispatched.
func (e *Event) UnmarshalJSON(b []byte) error {
	var v eventJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	e.id = v.ID
	e.name = v.Name
	e.typ = v.Type
	e.source = v.Source
	e.data = v.Data
	e.timestamp = v.Timestamp
	e.responseID = v.ResponseID
	e.parentID = v.ParentID
	e.mask = v.Mask
	e.number.Store(0)
	return nil
}

func lookup(data map[string]any, keys []string) (any, bool) {
	var cur any = data
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func assign(out map[string]any, keys []string, v any) {
	m := out
	for _, k := range keys[:len(keys)-1] {
		next, ok := m[k].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[k] = next
		}
		m = next
	}
	m[keys[len(keys)-1]] = v
}

func deepCopy(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = deepCopy(val)
	}
	return out
}
