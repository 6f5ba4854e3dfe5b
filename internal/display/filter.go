package display

import (
	"fmt"
	"strings"

	"hailog/internal/hail"
	"hailog/internal/lane"
)

// Taxonomy selects which key Filter matches events by.
type Taxonomy int

const (
	// TaxonomyRaw keys events by their event type, Custom:<kind> for
	// custom events.
	TaxonomyRaw Taxonomy = iota
	// TaxonomySemantic keys events by coarse bucket.
	TaxonomySemantic
)

// ParseTaxonomy resolves a user-supplied taxonomy name.
func ParseTaxonomy(value string) (Taxonomy, error) {
	switch value {
	case "", "raw":
		return TaxonomyRaw, nil
	case "semantic":
		return TaxonomySemantic, nil
	}
	return TaxonomyRaw, fmt.Errorf("unknown filter taxonomy: %s", value)
}

// Semantic buckets.
const (
	BucketMessage   = "message"
	BucketTool      = "tool"
	BucketFile      = "file"
	BucketReasoning = "reasoning"
	BucketShell     = "shell"
	BucketTask      = "task"
	BucketWeb       = "web"
	BucketMedia     = "media"
	BucketCustom    = "custom"
	BucketOther     = "other"
)

// Buckets lists every semantic bucket.
var Buckets = []string{
	BucketMessage, BucketTool, BucketFile, BucketReasoning, BucketShell,
	BucketTask, BucketWeb, BucketMedia, BucketCustom, BucketOther,
}

// nativeTools are the tools whose adapters classify events finely enough
// for the semantic taxonomy.
var nativeTools = map[string]bool{
	"claude-code": true,
	"codex":       true,
	"opencode":    true,
	"cursor":      true,
}

// SupportsSemantic reports whether sessions recorded by tool can be
// filtered by semantic bucket.
func SupportsSemantic(tool string) bool {
	return nativeTools[tool]
}

// FilterSpec selects events to keep.
type FilterSpec struct {
	Taxonomy Taxonomy
	Enabled  map[string]struct{}
	// Tool is the session's recording tool; it gates the semantic taxonomy.
	Tool string
}

// ParseKeys splits a comma separated key list into a set.
func ParseKeys(value string) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			keys[part] = struct{}{}
		}
	}
	return keys
}

// RawKey returns the raw-taxonomy key of event.
func RawKey(event hail.Event) string {
	if custom, ok := event.Type.(hail.Custom); ok {
		return "Custom:" + custom.Name
	}
	return string(event.Kind())
}

// SemanticKey returns the semantic bucket of event.
func SemanticKey(event hail.Event) string {
	switch event.Kind() {
	case hail.KindUserMessage, hail.KindAgentMessage, hail.KindSystemMessage:
		return BucketMessage
	case hail.KindThinking:
		return BucketReasoning
	case hail.KindToolCall, hail.KindToolResult:
		return BucketTool
	case hail.KindFileRead, hail.KindFileEdit, hail.KindFileCreate, hail.KindFileDelete,
		hail.KindCodeSearch, hail.KindFileSearch:
		return BucketFile
	case hail.KindShellCommand:
		return BucketShell
	case hail.KindTaskStart, hail.KindTaskEnd:
		return BucketTask
	case hail.KindWebSearch, hail.KindWebFetch:
		return BucketWeb
	case hail.KindImageGenerate, hail.KindVideoGenerate, hail.KindAudioGenerate:
		return BucketMedia
	case hail.KindCustom:
		return BucketCustom
	}
	return BucketOther
}

// Filter keeps the events whose key is enabled. An empty enabled set keeps
// nothing. The semantic taxonomy only applies to native tools; for other
// tools events pass through unfiltered.
func Filter(events []lane.LaneEvent, spec FilterSpec) []lane.LaneEvent {
	out := make([]lane.LaneEvent, 0, len(events))
	if len(spec.Enabled) == 0 {
		return out
	}

	key := RawKey
	if spec.Taxonomy == TaxonomySemantic {
		if !SupportsSemantic(spec.Tool) {
			return append(out, events...)
		}
		key = SemanticKey
	}

	for _, le := range events {
		if _, ok := spec.Enabled[key(le.Event)]; ok {
			out = append(out, le)
		}
	}
	return out
}
