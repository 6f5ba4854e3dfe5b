package format

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"hailog/internal/hail"
	"hailog/internal/lane"
	"hailog/internal/store"
)

func sampleSummaries() []store.Summary {
	return []store.Summary{
		{
			ID:              "session-a",
			Tool:            "codex",
			StartedAt:       time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
			Title:           "Alpha",
			MessageCount:    10,
			DurationSeconds: 90,
		},
		{
			ID:              "session-b",
			Tool:            "opencode",
			StartedAt:       time.Date(2025, 10, 2, 9, 30, 0, 0, time.UTC),
			Title:           "Beta",
			MessageCount:    20,
			DurationSeconds: 45,
		},
	}
}

func TestWriteSummariesPlain(t *testing.T) {
	var buf bytes.Buffer
	items := sampleSummaries()

	if err := WriteSummaries(&buf, items, true, "plain"); err != nil {
		t.Fatalf("WriteSummaries plain returned error: %v", err)
	}

	expected := strings.Join([]string{
		"timestamp\tsession_id\ttool\tduration\tmessage_count\ttitle",
		"2025-10-01T12:00:00Z\tsession-a\tcodex\t00:01:30\t10\tAlpha",
		"2025-10-02T09:30:00Z\tsession-b\topencode\t00:00:45\t20\tBeta",
	}, "\n") + "\n"

	if got := buf.String(); got != expected {
		t.Fatalf("plain output mismatch:\nexpected: %q\nactual:   %q", expected, got)
	}
}

func TestWriteSummariesTable(t *testing.T) {
	var buf bytes.Buffer
	items := sampleSummaries()

	if err := WriteSummaries(&buf, items, true, "table"); err != nil {
		t.Fatalf("WriteSummaries table returned error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "DURATION") || !strings.Contains(out, "MESSAGES") {
		t.Fatalf("table header missing expected columns:\n%s", out)
	}

	if !strings.Contains(out, "│ 2025-10-01T12:00:00Z │ session-a  │ codex    │ 00:01:30 │       10 │ Alpha │") {
		t.Fatalf("table row order unexpected: %s", out)
	}
}

func TestWriteSummariesEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaries(&buf, nil, true, ""); err != nil {
		t.Fatalf("WriteSummaries returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "(no sessions)") {
		t.Fatalf("expected placeholder row: %s", buf.String())
	}
}

type failingWriter struct{}

var errWrite = errors.New("disk full")

func (failingWriter) Write([]byte) (int, error) { return 0, errWrite }

func TestWriteTablesReportWriteErrors(t *testing.T) {
	if err := WriteSummaries(failingWriter{}, sampleSummaries(), true, "table"); !errors.Is(err, errWrite) {
		t.Fatalf("expected write error from summaries table, got %v", err)
	}
	if err := WriteTasks(failingWriter{}, nil); !errors.Is(err, errWrite) {
		t.Fatalf("expected write error from tasks table, got %v", err)
	}
}

func TestWriteSummariesInvalidFormat(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSummaries(&buf, sampleSummaries(), true, "xml")
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWriteSummariesJSONL(t *testing.T) {
	var buf bytes.Buffer
	items := sampleSummaries()

	if err := WriteSummaries(&buf, items, false, "jsonl"); err != nil {
		t.Fatalf("WriteSummaries jsonl returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(items) {
		t.Fatalf("expected %d lines, got %d", len(items), len(lines))
	}
	if !strings.Contains(lines[0], "\"session-a\"") || !strings.Contains(lines[0], "\"duration_seconds\":90") {
		t.Fatalf("first jsonl line unexpected: %s", lines[0])
	}
}

func TestWriteTasks(t *testing.T) {
	start := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	tasks := []*lane.TaskInfo{
		{TaskID: "t1", Title: "scan repo", Lane: 1, EventCount: 4, StartedAt: start, Duration: 75 * time.Second, Closed: true},
		{TaskID: "t2", Title: "still going", Lane: 2, StartedAt: start},
	}

	var buf bytes.Buffer
	if err := WriteTasks(&buf, tasks); err != nil {
		t.Fatalf("WriteTasks returned error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"TASK ID", "scan repo", "00:01:15", "open", "2025-10-01T12:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWriteInfo(t *testing.T) {
	session := &hail.Session{
		SessionID: "s-1",
		Agent:     hail.Agent{Provider: "anthropic", Model: "claude-sonnet-4", Tool: "claude-code", ToolVersion: "1.0.80"},
		Context: hail.SessionContext{
			Title:     "Fix login",
			Tags:      []string{"work"},
			CreatedAt: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2025, 10, 1, 12, 1, 0, 0, time.UTC),
		},
		Stats: hail.Stats{EventCount: 9, MessageCount: 3, ToolCallCount: 2, TaskCount: 1, DurationSeconds: 60},
	}
	info := NewInfo("a.jsonl", session, lane.Result{}, []string{"t9"})

	var buf bytes.Buffer
	if err := WriteInfo(&buf, info, "text"); err != nil {
		t.Fatalf("WriteInfo returned error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Session ID:  s-1\n",
		"Tool:        claude-code 1.0.80\n",
		"Model:       anthropic/claude-sonnet-4\n",
		"Duration:    00:01:00\n",
		"Messages:    3\n",
		"Closed tasks: t9\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteInfo(&buf, info, "json"); err != nil {
		t.Fatalf("WriteInfo json returned error: %v", err)
	}
	if !strings.Contains(buf.String(), `"message_count": 3`) {
		t.Fatalf("unexpected json: %s", buf.String())
	}

	if err := WriteInfo(&buf, info, "yaml"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
