package hail

import "time"

// Stats aggregates counters over a session's events.
type Stats struct {
	EventCount        int     `json:"event_count"`
	MessageCount      int     `json:"message_count"`
	ToolCallCount     int     `json:"tool_call_count"`
	TaskCount         int     `json:"task_count"`
	DurationSeconds   float64 `json:"duration_seconds"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
}

// ComputeStats derives Stats from events in a single pass.
//
// MessageCount counts user and agent messages plus task ends that carry a
// summary; it never includes anything else.
func ComputeStats(events []Event) Stats {
	var (
		stats       Stats
		first, last time.Time
	)
	stats.EventCount = len(events)

	for _, event := range events {
		switch t := event.Type.(type) {
		case UserMessage, AgentMessage:
			stats.MessageCount++
		case TaskEnd:
			if t.Summary != "" {
				stats.MessageCount++
			}
		case TaskStart:
			stats.TaskCount++
		}
		if IsInvocation(event.Kind()) {
			stats.ToolCallCount++
		}

		stats.TotalInputTokens += attrInt(event.Attributes, AttrInputTokens)
		stats.TotalOutputTokens += attrInt(event.Attributes, AttrOutputTokens)

		if event.Timestamp.IsZero() {
			continue
		}
		if first.IsZero() || event.Timestamp.Before(first) {
			first = event.Timestamp
		}
		if event.Timestamp.After(last) {
			last = event.Timestamp
		}
	}

	if !first.IsZero() && last.After(first) {
		stats.DurationSeconds = last.Sub(first).Seconds()
	}
	return stats
}

// UserMessageCount counts only UserMessage events.
func UserMessageCount(events []Event) int {
	count := 0
	for _, event := range events {
		if event.Kind() == KindUserMessage {
			count++
		}
	}
	return count
}

func attrInt(attrs map[string]any, key string) int64 {
	if attrs == nil {
		return 0
	}
	switch v := attrs[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
