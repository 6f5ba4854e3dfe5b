package normalize

import (
	"fmt"

	"hailog/internal/adapter"
	"hailog/internal/hail"
)

// mergeStreams interleaves per-source event streams by timestamp. Equal
// timestamps go to the earlier source, and the order inside one stream is
// never changed.
func mergeStreams(streams [][]hail.Event) []hail.Event {
	total := 0
	for _, s := range streams {
		total += len(s)
	}
	out := make([]hail.Event, 0, total)
	if len(streams) == 1 {
		return append(out, streams[0]...)
	}

	heads := make([]int, len(streams))
	for len(out) < total {
		best := -1
		for i, s := range streams {
			if heads[i] >= len(s) {
				continue
			}
			if best < 0 || s[heads[i]].Timestamp.Before(streams[best][heads[best]].Timestamp) {
				best = i
			}
		}
		out = append(out, streams[best][heads[best]])
		heads[best]++
	}
	return out
}

// dedupeEventIDs makes event ids unique across merged sources by suffixing
// later collisions with ~n.
func dedupeEventIDs(events []hail.Event) {
	seen := make(map[string]struct{}, len(events))
	for i := range events {
		id := events[i].EventID
		if _, ok := seen[id]; ok {
			for n := 1; ; n++ {
				candidate := fmt.Sprintf("%s~%d", id, n)
				if _, taken := seen[candidate]; !taken {
					id = candidate
					break
				}
			}
			events[i].EventID = id
		}
		seen[id] = struct{}{}
	}
}

// recoverCallIDs pairs tool results with invocations in two passes. The
// first pass records exact call id matches. The second gives each result
// that carries no id the earliest unmatched prior invocation with the same
// tool name, and stamps the id on both sides. It returns the number of
// results recovered by the second pass.
func recoverCallIDs(events []hail.Event) int {
	matched := make(map[string]bool)
	for _, event := range events {
		if event.Kind() != hail.KindToolResult {
			continue
		}
		if id := resultCallID(event); id != "" {
			matched[id] = true
		}
	}

	var pending []int
	claimed := make(map[int]bool)
	recovered := 0
	for i := range events {
		event := &events[i]
		kind := event.Kind()

		if hail.IsInvocation(kind) {
			if id := event.Attr(hail.AttrCallID); id == "" || !matched[id] {
				pending = append(pending, i)
			}
			continue
		}
		if kind != hail.KindToolResult || resultCallID(*event) != "" {
			continue
		}

		result := event.Type.(hail.ToolResult)
		for _, idx := range pending {
			if claimed[idx] || !invocationAnswers(events[idx], result.Name) {
				continue
			}
			claimed[idx] = true
			id := events[idx].Attr(hail.AttrCallID)
			if id == "" {
				id = "recovered:" + events[idx].EventID
				events[idx].SetAttr(hail.AttrCallID, id)
			}
			matched[id] = true
			result.CallID = id
			event.Type = result
			event.SetAttr(hail.AttrCallID, id)
			recovered++
			break
		}
	}
	return recovered
}

func resultCallID(event hail.Event) string {
	if result, ok := event.Type.(hail.ToolResult); ok && result.CallID != "" {
		return result.CallID
	}
	return event.Attr(hail.AttrCallID)
}

// invocationAnswers reports whether a result named name can belong to the
// invocation event.
func invocationAnswers(event hail.Event, name string) bool {
	if name == "" {
		return false
	}
	if tool := event.Attr(hail.AttrToolName); tool != "" {
		return tool == name
	}
	if call, ok := event.Type.(hail.ToolCall); ok {
		return call.Name == name
	}
	return adapter.ExpectsResult(event.Kind(), name)
}

// balanceTasks guarantees each TaskStart is followed by exactly one
// matching TaskEnd. A repeated TaskStart for an open id closes the earlier
// one first; tasks still open at the end are closed innermost first. A
// TaskEnd that matches no open task becomes a Custom orphan_task_end event.
// It returns the corrected stream, the sorted ids that needed a synthetic
// end and the sorted ids of orphaned ends.
func balanceTasks(events []hail.Event) ([]hail.Event, []string, []string) {
	out := make([]hail.Event, 0, len(events))
	var (
		open      []string
		corrected []string
		orphaned  []string
	)
	isOpen := func(id string) bool {
		for _, o := range open {
			if o == id {
				return true
			}
		}
		return false
	}
	closeTask := func(id string) {
		for i := len(open) - 1; i >= 0; i-- {
			if open[i] == id {
				open = append(open[:i], open[i+1:]...)
				return
			}
		}
	}

	for _, event := range events {
		id := event.TaskID
		switch event.Kind() {
		case hail.KindTaskStart:
			if id == "" {
				break
			}
			if isOpen(id) {
				out = append(out, syntheticEnd(id, event))
				corrected = append(corrected, id)
				closeTask(id)
			}
			open = append(open, id)
		case hail.KindTaskEnd:
			if id == "" || !isOpen(id) {
				event = orphanEnd(event)
				if id != "" {
					orphaned = append(orphaned, id)
				}
				break
			}
			closeTask(id)
		}
		out = append(out, event)
	}

	if len(open) > 0 {
		last := out[len(out)-1]
		for i := len(open) - 1; i >= 0; i-- {
			out = append(out, syntheticEnd(open[i], last))
			corrected = append(corrected, open[i])
		}
	}
	return out, sortedUnique(corrected), sortedUnique(orphaned)
}

// orphanEnd demotes an unmatched TaskEnd so no task gets a second end. The
// summary text is kept as content.
func orphanEnd(event hail.Event) hail.Event {
	if end, ok := event.Type.(hail.TaskEnd); ok && end.Summary != "" && len(event.Content) == 0 {
		event.Content = hail.TextContent(end.Summary)
	}
	event.Type = hail.Custom{Name: OrphanTaskEnd}
	attrs := make(map[string]any, len(event.Attributes)+1)
	for k, v := range event.Attributes {
		attrs[k] = v
	}
	event.Attributes = attrs
	if event.Attr(hail.AttrRawType) == "" {
		event.SetAttr(hail.AttrRawType, string(hail.KindTaskEnd))
	}
	return event
}

// syntheticEnd builds an end marker for taskID stamped with the time of
// the event it is placed next to.
func syntheticEnd(taskID string, near hail.Event) hail.Event {
	event := hail.Event{
		EventID:   "synthetic-end:" + taskID,
		Timestamp: near.Timestamp,
		Type:      hail.TaskEnd{},
		TaskID:    taskID,
	}
	event.SetAttr(hail.AttrSynthetic, true)
	event.SetAttr(hail.AttrSchemaVersion, hail.Version)
	event.SetAttr(hail.AttrRawType, "synthetic")
	return event
}
