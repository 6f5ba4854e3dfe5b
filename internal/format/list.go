// Package format renders sessions, task summaries and display items as
// text.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"hailog/internal/hail"
	"hailog/internal/lane"
	"hailog/internal/store"
)

// WriteSummaries writes session summaries to w in the requested format.
func WriteSummaries(w io.Writer, items []store.Summary, includeHeader bool, format string) error {
	format = strings.ToLower(format)
	switch format {
	case "", "table":
		return writeSummariesTable(w, items, includeHeader)
	case "plain":
		return writeSummariesPlain(w, items, includeHeader)
	case "json":
		return writeJSON(w, items)
	case "jsonl":
		return writeSummariesJSONL(w, items)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeSummariesPlain(w io.Writer, items []store.Summary, includeHeader bool) error {
	if includeHeader {
		if _, err := fmt.Fprintln(w, "timestamp\tsession_id\ttool\tduration\tmessage_count\ttitle"); err != nil {
			return err
		}
	}

	for _, item := range items {
		line := fmt.Sprintf(
			"%s\t%s\t%s\t%s\t%d\t%s",
			formatTime(item.StartedAt),
			item.ID,
			item.Tool,
			formatDuration(item.DurationSeconds),
			item.MessageCount,
			escapeNewlines(item.Title),
		)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSummariesJSONL(w io.Writer, items []store.Summary) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

func escapeNewlines(text string) string {
	return strings.ReplaceAll(text, "\n", "\\n")
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = true
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true
	return tw
}

// renderTable writes tw to w, returning the write error Render would drop.
func renderTable(w io.Writer, tw table.Writer) error {
	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

func writeSummariesTable(w io.Writer, items []store.Summary, includeHeader bool) error {
	tw := newTable()
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 6, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 80},
	})

	if includeHeader {
		tw.AppendHeader(table.Row{"Timestamp", "Session ID", "Tool", "Duration", "Messages", "Title"})
	}

	for _, item := range items {
		tw.AppendRow(table.Row{
			formatTime(item.StartedAt),
			item.ID,
			item.Tool,
			formatDuration(item.DurationSeconds),
			item.MessageCount,
			escapeNewlines(item.Title),
		})
	}

	if len(items) == 0 {
		tw.AppendRow(table.Row{"-", "(no sessions)", "-", "00:00:00", 0, "-"})
	}

	return renderTable(w, tw)
}

// WriteTasks writes one table row per task in start order.
func WriteTasks(w io.Writer, tasks []*lane.TaskInfo) error {
	tw := newTable()
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 50},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
	})
	tw.AppendHeader(table.Row{"Task ID", "Title", "Lane", "Events", "Duration", "Started"})

	for _, task := range tasks {
		duration := formatDuration(int(task.Duration.Seconds()))
		if !task.Closed {
			duration = "open"
		}
		tw.AppendRow(table.Row{
			task.TaskID,
			escapeNewlines(task.Title),
			task.Lane,
			task.EventCount,
			duration,
			formatTime(task.StartedAt),
		})
	}
	if len(tasks) == 0 {
		tw.AppendRow(table.Row{"-", "(no tasks)", "-", 0, "00:00:00", "-"})
	}

	return renderTable(w, tw)
}

// Info is the printable session header.
type Info struct {
	SessionID         string     `json:"session_id"`
	Path              string     `json:"path"`
	Tool              string     `json:"tool"`
	ToolVersion       string     `json:"tool_version,omitempty"`
	Provider          string     `json:"provider"`
	Model             string     `json:"model"`
	Title             string     `json:"title"`
	Tags              []string   `json:"tags"`
	CreatedAt         string     `json:"created_at"`
	UpdatedAt         string     `json:"updated_at"`
	DurationDisplay   string     `json:"duration_display"`
	MaxLane           int        `json:"max_lane"`
	SyntheticTaskEnds []string   `json:"synthetic_task_ends,omitempty"`
	Stats             hail.Stats `json:"stats"`
}

// NewInfo builds the header view of a session.
func NewInfo(path string, s *hail.Session, lanes lane.Result, synthetic []string) Info {
	return Info{
		SessionID:         s.SessionID,
		Path:              path,
		Tool:              s.Agent.Tool,
		ToolVersion:       s.Agent.ToolVersion,
		Provider:          s.Agent.Provider,
		Model:             s.Agent.Model,
		Title:             s.Context.Title,
		Tags:              s.Context.Tags,
		CreatedAt:         formatTime(s.Context.CreatedAt),
		UpdatedAt:         formatTime(s.Context.UpdatedAt),
		DurationDisplay:   formatDuration(int(s.Stats.DurationSeconds)),
		MaxLane:           lanes.MaxLane(),
		SyntheticTaskEnds: synthetic,
		Stats:             s.Stats,
	}
}

// WriteInfo writes a session header as text or json.
func WriteInfo(w io.Writer, info Info, format string) error {
	switch strings.ToLower(format) {
	case "json":
		return writeJSON(w, info)
	case "", "text":
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	type field struct{ label, value string }
	fields := []field{
		{"Session ID", info.SessionID},
		{"Path", info.Path},
		{"Tool", joinNonEmpty(" ", info.Tool, info.ToolVersion)},
		{"Model", joinNonEmpty("/", info.Provider, info.Model)},
		{"Title", info.Title},
		{"Tags", strings.Join(info.Tags, ", ")},
		{"Created", info.CreatedAt},
		{"Updated", info.UpdatedAt},
		{"Duration", info.DurationDisplay},
		{"Events", fmt.Sprint(info.Stats.EventCount)},
		{"Messages", fmt.Sprint(info.Stats.MessageCount)},
		{"Tool calls", fmt.Sprint(info.Stats.ToolCallCount)},
		{"Tasks", fmt.Sprint(info.Stats.TaskCount)},
		{"Peak lanes", fmt.Sprint(info.MaxLane)},
		{"Tokens", fmt.Sprintf("%d in / %d out", info.Stats.TotalInputTokens, info.Stats.TotalOutputTokens)},
	}
	if len(info.SyntheticTaskEnds) > 0 {
		fields = append(fields, field{"Closed tasks", strings.Join(info.SyntheticTaskEnds, ", ")})
	}

	for _, f := range fields {
		if f.value == "" {
			f.value = "-"
		}
		if _, err := fmt.Fprintf(w, "%-12s %s\n", f.label+":", f.value); err != nil {
			return err
		}
	}
	return nil
}

func joinNonEmpty(sep string, values ...string) string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "00:00:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
