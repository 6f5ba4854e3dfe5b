package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"

	"hailog/internal/display"
	"hailog/internal/hail"
	"hailog/internal/lane"
)

// Gutter glyphs.
const (
	glyphEvent     = "●"
	glyphCollapsed = "◆"
	glyphActive    = "│"
	glyphFork      = "╮"
	glyphMerge     = "╯"
	glyphJoin      = "├"
	glyphBridge    = "─"
)

// RenderOptions configures item rendering.
type RenderOptions struct {
	// Width caps each line; zero means unlimited.
	Width int
	Color bool
	// Body prints message text below each headline.
	Body bool
	// MaxLane reserves gutter columns; items may widen it.
	MaxLane int
}

// RenderItems writes the lines produced by ItemLines.
func RenderItems(w io.Writer, items []display.Item, opts RenderOptions) error {
	for _, line := range ItemLines(items, opts) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// ItemLines renders display items as gutter-prefixed lines: one headline
// per item plus optional body lines.
func ItemLines(items []display.Item, opts RenderOptions) []string {
	maxLane := opts.MaxLane
	for _, it := range items {
		for _, l := range it.Event.ActiveLanes {
			maxLane = max(maxLane, l)
		}
		maxLane = max(maxLane, it.Event.Lane, it.Event.MarkerLane)
	}

	// Lanes of collapsed tasks stay blank until they close.
	hidden := make(map[int]bool)
	lines := make([]string, 0, len(items))
	for _, it := range items {
		le := it.Event
		for l := range hidden {
			if !contains(le.ActiveLanes, l) || (le.Marker == lane.MarkerFork && le.MarkerLane == l) {
				delete(hidden, l)
			}
		}
		if it.Kind == display.ItemCollapsedTask && it.Task != nil {
			hidden[it.Task.Lane] = true
		}

		gutter := Gutter(le, it.Kind, maxLane, hidden)
		headline := stamp(le.Event.Timestamp) + " " + Headline(it)
		if opts.Width > 0 {
			room := opts.Width - runewidth.StringWidth(gutter) - 1
			headline = runewidth.Truncate(headline, max(room, 1), "…")
		}
		if opts.Color {
			headline = colorize(it, headline)
		}
		lines = append(lines, gutter+" "+headline)

		if !opts.Body || it.Kind != display.ItemEvent || !showsBody(le.Event.Kind()) {
			continue
		}
		cont := continuation(le.ActiveLanes, maxLane, hidden)
		wrap := 0
		if opts.Width > 0 {
			wrap = max(opts.Width-runewidth.StringWidth(cont)-3, 10)
		}
		for _, body := range EventLines(le.Event, wrap) {
			lines = append(lines, strings.TrimRight(cont+"   "+body, " "))
		}
	}
	return lines
}

// Gutter draws lane columns 0..maxLane for one item.
func Gutter(le lane.LaneEvent, kind display.ItemKind, maxLane int, hidden map[int]bool) string {
	marker := le.Marker
	if kind == display.ItemCollapsedTask {
		marker = lane.MarkerNone
	}

	cells := make([]string, maxLane+1)
	for c := range cells {
		ch := " "
		switch {
		case kind == display.ItemCollapsedTask && c == le.Lane:
			ch = glyphCollapsed
		case marker == lane.MarkerFork && c == le.MarkerLane:
			ch = glyphFork
		case marker == lane.MarkerMerge && c == le.MarkerLane:
			ch = glyphMerge
		case marker == lane.MarkerMerge && c == lane.Main:
			ch = glyphJoin
		case c == le.Lane:
			ch = glyphEvent
		case hidden[c]:
		case contains(le.ActiveLanes, c):
			ch = glyphActive
		case marker == lane.MarkerFork && c > le.Lane && c < le.MarkerLane:
			ch = glyphBridge
		case marker == lane.MarkerMerge && c > lane.Main && c < le.MarkerLane:
			ch = glyphBridge
		}
		cells[c] = ch
	}
	return strings.Join(cells, " ")
}

func continuation(active []int, maxLane int, hidden map[int]bool) string {
	cells := make([]string, maxLane+1)
	for c := range cells {
		cells[c] = " "
		if contains(active, c) && !hidden[c] {
			cells[c] = glyphActive
		}
	}
	return strings.Join(cells, " ")
}

func contains(lanes []int, l int) bool {
	for _, v := range lanes {
		if v == l {
			return true
		}
	}
	return false
}

func stamp(ts time.Time) string {
	if ts.IsZero() {
		return "--:--:--"
	}
	return ts.UTC().Format("15:04:05")
}

// Headline is the one-line description of an item, without gutter or time.
func Headline(it display.Item) string {
	event := it.Event.Event
	switch it.Kind {
	case display.ItemCollapsedTask:
		title, events, duration, state := display.Label(event), 0, "", ""
		if it.Task != nil {
			title, events = it.Task.Title, it.Task.EventCount
			duration = " · " + formatDuration(int(it.Task.Duration.Seconds()))
			if !it.Task.Closed {
				state = " (open)"
			}
		}
		return fmt.Sprintf("Task %s · %d events%s%s", firstLine(title), events, duration, state)

	case display.ItemGroup:
		return fmt.Sprintf("%s ×%d  %s", groupName(it.GroupKey), len(it.Members), it.Summary)

	case display.ItemPaired:
		line := fmt.Sprintf("%s  %s", event.Kind(), display.Label(event))
		if it.Result != nil {
			line += " → " + outcome(it.Result.Event)
		}
		return line
	}

	line := string(event.Kind())
	if custom, ok := event.Type.(hail.Custom); ok {
		line = "Custom:" + custom.Name
	}
	detail := display.Label(event)
	if showsBody(event.Kind()) {
		detail = firstLine(event.FirstText())
	}
	if detail != "" && detail != line && !strings.HasSuffix(line, ":"+detail) {
		line += "  " + detail
	}
	if shell, ok := event.Type.(hail.ShellCommand); ok && shell.ExitCode != nil {
		line += fmt.Sprintf(" [exit %d]", *shell.ExitCode)
	}
	if result, ok := event.Type.(hail.ToolResult); ok && result.IsError {
		line += " (error)"
	}
	return line
}

func groupName(key string) string {
	if name, ok := strings.CutPrefix(key, "ToolCall:"); ok {
		return name
	}
	if name, ok := strings.CutPrefix(key, "ToolResult:"); ok {
		return name + " result"
	}
	return key
}

func outcome(result hail.Event) string {
	status := "ok"
	if r, ok := result.Type.(hail.ToolResult); ok && r.IsError {
		status = "error"
	}
	if result.DurationMS != nil {
		status += fmt.Sprintf(" (%s)", time.Duration(*result.DurationMS)*time.Millisecond)
	}
	return status
}

func showsBody(kind hail.EventKind) bool {
	return hail.IsMessage(kind) || kind == hail.KindThinking
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func colorize(it display.Item, s string) string {
	var colors text.Colors
	kind := it.Event.Event.Kind()
	switch {
	case it.Kind == display.ItemCollapsedTask || kind == hail.KindTaskStart || kind == hail.KindTaskEnd:
		colors = text.Colors{text.FgGreen}
	case kind == hail.KindUserMessage:
		colors = text.Colors{text.FgHiYellow}
	case kind == hail.KindAgentMessage:
		colors = text.Colors{text.FgHiCyan}
	case kind == hail.KindThinking || kind == hail.KindSystemMessage:
		colors = text.Colors{text.FgHiBlack}
	case isError(it):
		colors = text.Colors{text.FgHiRed}
	default:
		colors = text.Colors{text.FgHiMagenta}
	}
	return colors.Sprint(s)
}

func isError(it display.Item) bool {
	event := it.Event.Event
	if it.Result != nil {
		event = it.Result.Event
	}
	r, ok := event.Type.(hail.ToolResult)
	return ok && r.IsError
}

// EventLines returns the printable body of an event, wrapping text at
// wrapWidth when it is positive.
func EventLines(event hail.Event, wrapWidth int) []string {
	var parts []string
	if edit, ok := event.Type.(hail.FileEdit); ok && edit.Diff != "" {
		parts = append(parts, strings.TrimRight(edit.Diff, "\n"))
	}
	for _, block := range event.Content {
		switch block.Type {
		case hail.BlockText:
			parts = append(parts, wrapBody(strings.TrimSpace(block.Text), wrapWidth))
		case hail.BlockCode:
			parts = append(parts, strings.TrimRight(block.Code, "\n"))
		case hail.BlockJSON:
			parts = append(parts, formatJSON(string(block.Data)))
		case hail.BlockFile:
			line := "File: " + block.Path
			if block.Content != nil {
				line += "\n" + strings.TrimRight(*block.Content, "\n")
			}
			parts = append(parts, line)
		case hail.BlockReference:
			parts = append(parts, fmt.Sprintf("Reference: %s", block.URI))
		default:
			parts = append(parts, fmt.Sprintf("[%s] %s", block.Type, block.URL))
		}
	}
	body := strings.Join(parts, "\n")
	if body == "" {
		return nil
	}
	return strings.Split(body, "\n")
}

// wrapBody wraps each paragraph of text at width display columns.
func wrapBody(text string, width int) string {
	if width <= 0 || runewidth.StringWidth(text) <= width {
		return text
	}

	var out []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if runewidth.StringWidth(current)+1+runewidth.StringWidth(word) > width {
				out = append(out, current)
				current = word
			} else {
				current += " " + word
			}
		}
		out = append(out, current)
	}
	return strings.Join(out, "\n")
}

func formatJSON(raw string) string {
	if raw == "" {
		return raw
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err == nil {
		return buf.String()
	}
	return raw
}
