package display

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"

	"hailog/internal/hail"
)

const (
	summaryShown = 2
	summaryLimit = 3
	labelWidth   = 40
)

// GroupKey returns the key consecutive items are grouped by, or "" when the
// item never groups.
func GroupKey(it Item) string {
	if it.Kind != ItemEvent && it.Kind != ItemPaired {
		return ""
	}
	switch t := it.Event.Event.Type.(type) {
	case hail.FileRead, hail.CodeSearch, hail.FileSearch, hail.WebSearch, hail.WebFetch:
		return string(t.Kind())
	case hail.ToolCall:
		return "ToolCall:" + t.Name
	case hail.ToolResult:
		return "ToolResult:" + t.Name
	}
	return ""
}

// CollapseConsecutive folds runs of two or more items sharing a group key
// and a lane into one ItemGroup.
func CollapseConsecutive(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for i := 0; i < len(items); {
		key := GroupKey(items[i])
		j := i + 1
		if key != "" {
			for j < len(items) && items[j].Lane == items[i].Lane && GroupKey(items[j]) == key {
				j++
			}
		}
		if j-i < 2 {
			out = append(out, items[i])
			i++
			continue
		}
		members := append([]Item(nil), items[i:j]...)
		out = append(out, Item{
			Kind:     ItemGroup,
			Event:    members[0].Event,
			Members:  members,
			GroupKey: key,
			Summary:  Summarize(members),
			Lane:     members[0].Lane,
		})
		i = j
	}
	return out
}

// Summarize lists member labels: all of them up to three, otherwise the
// first two and a count of the rest.
func Summarize(members []Item) string {
	labels := make([]string, 0, len(members))
	for _, m := range members {
		labels = append(labels, Label(m.Event.Event))
	}
	if len(labels) <= summaryLimit {
		return strings.Join(labels, ", ")
	}
	return fmt.Sprintf("%s +%d more", strings.Join(labels[:summaryShown], ", "), len(labels)-summaryShown)
}

// Label is the short one-line description of an event used in summaries.
func Label(event hail.Event) string {
	switch t := event.Type.(type) {
	case hail.FileRead:
		return filepath.Base(t.Path)
	case hail.FileEdit:
		return filepath.Base(t.Path)
	case hail.FileCreate:
		return filepath.Base(t.Path)
	case hail.FileDelete:
		return filepath.Base(t.Path)
	case hail.CodeSearch:
		return truncate(t.Query)
	case hail.FileSearch:
		return truncate(t.Pattern)
	case hail.WebSearch:
		return truncate(t.Query)
	case hail.WebFetch:
		if u, err := url.Parse(t.URL); err == nil && u.Host != "" {
			return u.Hostname()
		}
		return truncate(t.URL)
	case hail.ShellCommand:
		return truncate(t.Command)
	case hail.ToolCall:
		if command := argument(event, "command", "cmd"); command != "" {
			return truncate(command)
		}
		return t.Name
	case hail.ToolResult:
		if text := event.FirstText(); text != "" {
			return truncate(text)
		}
		return t.Name
	case hail.TaskStart:
		return truncate(t.Title)
	case hail.Custom:
		return t.Name
	}
	return truncate(event.FirstText())
}

// argument returns a string argument from the event's JSON arguments block.
func argument(event hail.Event, keys ...string) string {
	for _, block := range event.Content {
		if block.Type != hail.BlockJSON {
			continue
		}
		var args map[string]any
		if err := json.Unmarshal(block.Data, &args); err != nil {
			continue
		}
		for _, key := range keys {
			if value, ok := args[key].(string); ok && value != "" {
				return value
			}
		}
	}
	return ""
}

func truncate(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return runewidth.Truncate(line, labelWidth, "…")
}
