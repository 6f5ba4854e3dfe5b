// Package hail defines the canonical session model every adapter produces
// and every downstream consumer reads.
package hail

import (
	"sort"
	"time"
)

// Version is the schema tag written into every session header.
const Version = "hail-1.0.0"

// Attribute keys shared between adapters, the pipeline and the display layer.
const (
	AttrSchemaVersion = "source.schema_version"
	AttrRawType       = "source.raw_type"
	AttrGroupID       = "semantic.group_id"
	AttrCallID        = "semantic.call_id"
	AttrToolKind      = "semantic.tool_kind"
	AttrToolName      = "semantic.tool_name"
	AttrParentTask    = "task.parent_id"
	AttrInputTokens   = "usage.input_tokens"
	AttrOutputTokens  = "usage.output_tokens"
	AttrSynthetic     = "normalize.synthetic"
)

// Session is a fully normalized transcript.
type Session struct {
	Version   string         `json:"version"`
	SessionID string         `json:"session_id"`
	Agent     Agent          `json:"agent"`
	Context   SessionContext `json:"context"`
	Events    []Event        `json:"events"`
	Stats     Stats          `json:"stats"`
}

// Agent identifies the tool and model that produced a session.
type Agent struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Tool        string `json:"tool"`
	ToolVersion string `json:"tool_version,omitempty"`
}

// SessionContext carries descriptive session metadata.
type SessionContext struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Attributes  map[string]any `json:"attributes"`
}

// Event is one entry in the canonical stream.
type Event struct {
	EventID    string
	Timestamp  time.Time
	Type       EventType
	TaskID     string
	Content    []ContentBlock
	DurationMS *int64
	Attributes map[string]any
}

// Kind is shorthand for e.Type.Kind(); a nil type reports KindCustom.
func (e Event) Kind() EventKind {
	if e.Type == nil {
		return KindCustom
	}
	return e.Type.Kind()
}

// Attr returns the string value of an attribute, or "".
func (e Event) Attr(key string) string {
	if e.Attributes == nil {
		return ""
	}
	if value, ok := e.Attributes[key].(string); ok {
		return value
	}
	return ""
}

// SetAttr sets an attribute, allocating the map when needed.
func (e *Event) SetAttr(key string, value any) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = value
}

// FirstText returns the first non-empty text block of the event.
func (e Event) FirstText() string {
	for _, block := range e.Content {
		if block.Type == BlockText && block.Text != "" {
			return block.Text
		}
	}
	return ""
}

// NormalizeTags sorts and de-duplicates tags, dropping empty values.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
