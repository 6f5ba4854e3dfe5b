package opencode

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hailog/internal/adapter"
	"hailog/internal/hail"
)

func fixture(t *testing.T) adapter.Source {
	t.Helper()
	path := filepath.Join("..", "..", "..", "testdata", "opencode", "session.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return adapter.Source{Name: path, Data: data}
}

func TestParseSession(t *testing.T) {
	res, err := Parse(fixture(t))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if res.SessionID != "ses_1" || res.Context.Title != "Add tests" {
		t.Fatalf("unexpected header: %s %q", res.SessionID, res.Context.Title)
	}
	if res.Agent.Provider != "anthropic" || res.Agent.Model != "claude-sonnet-4" || res.Agent.ToolVersion != "0.14.1" {
		t.Fatalf("unexpected agent: %+v", res.Agent)
	}
	if got := res.Context.CreatedAt; !got.Equal(time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created at: %s", got)
	}

	want := []hail.EventKind{
		hail.KindUserMessage,
		hail.KindCustom,
		hail.KindThinking,
		hail.KindFileRead,
		hail.KindToolResult,
		hail.KindShellCommand,
		hail.KindToolResult,
		hail.KindTaskStart,
		hail.KindTaskEnd,
		hail.KindAgentMessage,
		hail.KindCustom,
	}
	if len(res.Events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(res.Events))
	}
	for i, kind := range want {
		if got := res.Events[i].Kind(); got != kind {
			t.Fatalf("event %d: expected %s, got %s", i, kind, got)
		}
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", res.Diagnostics)
	}
}

func TestParseToolParts(t *testing.T) {
	res, err := Parse(fixture(t))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	events := res.Events

	if events[0].FirstText() != "add tests" {
		t.Fatalf("unexpected user text: %q", events[0].FirstText())
	}
	if events[1].Attributes[hail.AttrInputTokens] != int64(200) || events[1].Attributes["usage.cost"] != 0.01 {
		t.Fatalf("usage not attached to the first assistant event: %v", events[1].Attributes)
	}

	if events[3].Type.(hail.FileRead).Path != "/tmp/project/a.go" {
		t.Fatalf("unexpected read: %#v", events[3].Type)
	}
	read := events[4]
	if read.DurationMS == nil || *read.DurationMS != 500 || read.Type.(hail.ToolResult).CallID != "call_a" {
		t.Fatalf("unexpected read result: %+v", read)
	}

	shell := events[5].Type.(hail.ShellCommand)
	if shell.Command != "go test" || shell.ExitCode == nil || *shell.ExitCode != 1 {
		t.Fatalf("unexpected shell: %#v", shell)
	}
	failed := events[6]
	if !failed.Type.(hail.ToolResult).IsError || failed.FirstText() != "exit status 1" {
		t.Fatalf("unexpected failed result: %+v", failed)
	}
}

func TestParseTaskTool(t *testing.T) {
	res, err := Parse(fixture(t))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	start, end := res.Events[7], res.Events[8]
	if start.TaskID != "call_c" || end.TaskID != "call_c" {
		t.Fatalf("task ids do not match: %q %q", start.TaskID, end.TaskID)
	}
	if start.Type.(hail.TaskStart).Title != "write tests" || start.FirstText() != "write them" {
		t.Fatalf("unexpected task start: %+v", start)
	}
	if end.Type.(hail.TaskEnd).Summary != "wrote 2 tests" {
		t.Fatalf("unexpected task end: %+v", end)
	}
	if !end.Timestamp.Equal(time.Date(2025, 10, 1, 12, 0, 8, 0, time.UTC)) {
		t.Fatalf("unexpected task end time: %s", end.Timestamp)
	}
}

func TestParseRejectsInvalidDocument(t *testing.T) {
	if _, err := Parse(adapter.Source{Name: "bad.json", Data: []byte("{")}); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := Parse(adapter.Source{Name: "empty.json", Data: []byte(`{"info":{"id":"x"},"messages":[]}`)}); err == nil {
		t.Fatalf("expected error for session without events")
	}
}
