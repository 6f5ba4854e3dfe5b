package display

import (
	"hailog/internal/adapter"
	"hailog/internal/hail"
)

// ReadElisionWindow is how many following items ElideRedundantReads looks at
// for an edit of the same file.
const ReadElisionWindow = 5

// ElideRedundantReads drops a FileRead, and the result directly answering
// it, when an edit of the same path follows within ReadElisionWindow items.
// The look-ahead stops at messages and task boundaries.
func ElideRedundantReads(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for i := 0; i < len(items); i++ {
		it := items[i]
		read, ok := it.Event.Event.Type.(hail.FileRead)
		if it.Kind != ItemEvent || !ok || read.Path == "" || !editedSoon(items[i+1:], read.Path) {
			out = append(out, it)
			continue
		}
		if i+1 < len(items) && items[i+1].Kind == ItemEvent && answers(it.Event.Event, items[i+1].Event.Event) {
			i++
		}
	}
	return out
}

func editedSoon(rest []Item, path string) bool {
	for n, it := range rest {
		if n >= ReadElisionWindow {
			return false
		}
		if it.Kind == ItemCollapsedTask {
			return false
		}
		event := it.Event.Event
		kind := event.Kind()
		if hail.IsMessage(kind) || kind == hail.KindTaskStart || kind == hail.KindTaskEnd {
			return false
		}
		if edit, ok := event.Type.(hail.FileEdit); ok && edit.Path == path {
			return true
		}
	}
	return false
}

// PairToolCalls merges an invocation with the ToolResult that immediately
// follows it when the result answers it. Anything else stays standalone.
func PairToolCalls(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for i := 0; i < len(items); i++ {
		it := items[i]
		if it.Kind == ItemEvent && i+1 < len(items) && items[i+1].Kind == ItemEvent &&
			pairable(it.Event.Event.Kind()) && answers(it.Event.Event, items[i+1].Event.Event) {
			result := items[i+1].Event
			out = append(out, Item{
				Kind:   ItemPaired,
				Event:  it.Event,
				Result: &result,
				Lane:   it.Lane,
			})
			i++
			continue
		}
		out = append(out, it)
	}
	return out
}

func pairable(kind hail.EventKind) bool {
	switch kind {
	case hail.KindToolCall, hail.KindFileRead, hail.KindFileEdit, hail.KindFileCreate,
		hail.KindFileSearch, hail.KindCodeSearch, hail.KindShellCommand,
		hail.KindWebSearch, hail.KindWebFetch:
		return true
	}
	return false
}

// answers reports whether next is the ToolResult of call. Explicit call ids
// on both sides decide; otherwise the result name must match the call.
func answers(call, next hail.Event) bool {
	result, ok := next.Type.(hail.ToolResult)
	if !ok {
		return false
	}
	resultID := result.CallID
	if resultID == "" {
		resultID = next.Attr(hail.AttrCallID)
	}
	if callID := call.Attr(hail.AttrCallID); callID != "" && resultID != "" {
		return callID == resultID
	}

	if tc, ok := call.Type.(hail.ToolCall); ok {
		return tc.Name == result.Name
	}
	if name := call.Attr(hail.AttrToolName); name != "" && name == result.Name {
		return true
	}
	return adapter.ExpectsResult(call.Kind(), result.Name)
}
