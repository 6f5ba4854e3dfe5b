package adapter

import (
	"fmt"
	"time"

	"hailog/internal/hail"
)

// Builder accumulates canonical events for one source and stamps the
// provenance attributes every event must carry.
type Builder struct {
	kind   Kind
	source string
	schema string

	events []hail.Event
	diags  []Diagnostic
	seen   map[string]int
	seq    int

	callCounters map[string]int
	callNames    map[string]string
	callIndex    map[string]int
}

// NewBuilder starts a builder for src with the given schema version label.
func NewBuilder(kind Kind, src Source, schema string) *Builder {
	return &Builder{
		kind:         kind,
		source:       src.Name,
		schema:       schema,
		seen:         make(map[string]int),
		callCounters: make(map[string]int),
		callNames:    make(map[string]string),
		callIndex:    make(map[string]int),
	}
}

// SetSchema changes the schema version stamped on subsequent events.
func (b *Builder) SetSchema(schema string) {
	b.schema = schema
}

// Schema returns the current schema version label.
func (b *Builder) Schema() string {
	return b.schema
}

// Emit appends event. An empty EventID is filled from a per-source
// sequence; colliding ids get a numeric suffix.
func (b *Builder) Emit(rawType string, event hail.Event) {
	b.seq++
	if event.EventID == "" {
		event.EventID = fmt.Sprintf("%s-%05d", b.kind, b.seq)
	}
	if n, ok := b.seen[event.EventID]; ok {
		b.seen[event.EventID] = n + 1
		event.EventID = fmt.Sprintf("%s:%d", event.EventID, n+1)
	} else {
		b.seen[event.EventID] = 0
	}
	if event.Timestamp.IsZero() && len(b.events) > 0 {
		event.Timestamp = b.events[len(b.events)-1].Timestamp
	}
	event.Timestamp = event.Timestamp.UTC()

	// Provenance already present (re-ingested canonical files) is kept.
	if event.Attr(hail.AttrSchemaVersion) == "" {
		event.SetAttr(hail.AttrSchemaVersion, b.schema)
	}
	if event.Attr(hail.AttrRawType) == "" {
		event.SetAttr(hail.AttrRawType, rawType)
	}
	if callID := event.Attr(hail.AttrCallID); callID != "" && hail.IsInvocation(event.Kind()) {
		b.callIndex[callID] = len(b.events)
		if name, ok := b.callNames[callID]; ok && event.Attr(hail.AttrToolName) == "" {
			event.SetAttr(hail.AttrToolName, name)
		}
	}
	b.events = append(b.events, event)
}

// UpdateCall applies fn to the most recent invocation event registered
// under callID. It reports whether such an event exists.
func (b *Builder) UpdateCall(callID string, fn func(*hail.Event)) bool {
	idx, ok := b.callIndex[callID]
	if !ok {
		return false
	}
	fn(&b.events[idx])
	return true
}

// EmitCustom records a raw entry that has no canonical mapping and notes it
// as a diagnostic.
func (b *Builder) EmitCustom(line int, rawType, label string, ts time.Time, content []hail.ContentBlock) {
	if label == "" {
		label = rawType
	}
	if label == "" {
		label = "unknown"
	}
	b.Diagnose(line, rawType, "unmapped record kept as Custom:"+label)
	b.Emit(rawType, hail.Event{Timestamp: ts, Type: hail.Custom{Name: label}, Content: content})
}

// Diagnose records a non-fatal observation.
func (b *Builder) Diagnose(line int, rawType, message string) {
	b.diags = append(b.diags, Diagnostic{Source: b.source, Line: line, RawType: rawType, Message: message})
}

// RegisterCall remembers the tool name behind callID. When the raw format
// supplies no id, a deterministic one is derived from a counter scoped to
// the tool name.
func (b *Builder) RegisterCall(callID, name string) string {
	if callID == "" {
		b.callCounters[name]++
		callID = fmt.Sprintf("%s#%d", name, b.callCounters[name])
	}
	b.callNames[callID] = name
	return callID
}

// CallName returns the tool name registered for callID.
func (b *Builder) CallName(callID string) (string, bool) {
	name, ok := b.callNames[callID]
	return name, ok
}

// Len returns the number of events emitted so far.
func (b *Builder) Len() int {
	return len(b.events)
}

// Result packages the emitted events. It fails with ErrNoEvents when
// nothing was emitted.
func (b *Builder) Result(res Result) (Result, error) {
	if len(b.events) == 0 {
		return Result{}, ErrNoEvents
	}
	res.Events = b.events
	res.Diagnostics = append(res.Diagnostics, b.diags...)
	if res.Agent.Tool == "" {
		res.Agent.Tool = string(b.kind)
	}
	return res, nil
}

// CallEvent builds the invocation event for a classified tool call and
// stamps the pairing attributes.
func CallEvent(ts time.Time, typ hail.EventType, toolKind, callID string) hail.Event {
	event := hail.Event{Timestamp: ts, Type: typ}
	event.SetAttr(hail.AttrCallID, callID)
	event.SetAttr(hail.AttrToolKind, toolKind)
	return event
}

// ResultEvent builds the ToolResult event answering callID.
func ResultEvent(ts time.Time, name, callID string, isError bool, content []hail.ContentBlock) hail.Event {
	event := hail.Event{
		Timestamp: ts,
		Type:      hail.ToolResult{Name: name, IsError: isError, CallID: callID},
		Content:   content,
	}
	if callID != "" {
		event.SetAttr(hail.AttrCallID, callID)
	}
	return event
}
