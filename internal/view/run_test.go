package view

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hailog/internal/display"
	"hailog/internal/hail"
	"hailog/internal/lane"
)

func claudeFixture() string {
	return filepath.Join("..", "..", "testdata", "claude", "session.jsonl")
}

func TestRenderChatLinesAlignment(t *testing.T) {
	base := time.Date(2025, 10, 27, 12, 0, 0, 0, time.UTC)
	events := []hail.Event{
		{EventID: "u1", Timestamp: base, Type: hail.UserMessage{}, Content: hail.TextContent("hello there")},
		{EventID: "a1", Timestamp: base.Add(5 * time.Second), Type: hail.AgentMessage{}, Content: hail.TextContent("hi, how can I help you today?")},
	}
	items := display.Build(lane.Build(events), display.Options{})

	lines := renderChatTranscript(items, 80, false)
	if len(lines) == 0 {
		t.Fatalf("expected chat lines")
	}

	var userTop, agentTop string
	for i, line := range lines {
		if strings.Contains(line, "User · Oct 27 12:00") {
			userTop = lines[i-1]
		}
		if strings.Contains(line, "Assistant · Oct 27 12:00") {
			agentTop = lines[i-1]
		}
	}
	if userTop == "" || agentTop == "" {
		t.Fatalf("missing bubble headers:\n%s", strings.Join(lines, "\n"))
	}

	userPad := len(userTop) - len(strings.TrimLeft(userTop, " "))
	agentPad := len(agentTop) - len(strings.TrimLeft(agentTop, " "))
	if agentPad != 2 {
		t.Fatalf("expected agent bubble at left padding, got %d", agentPad)
	}
	if userPad <= agentPad {
		t.Fatalf("expected user bubble right of agent bubble: user=%d agent=%d", userPad, agentPad)
	}
}

func TestRenderChatIndentsSubAgentLanes(t *testing.T) {
	item := display.Item{
		Kind: display.ItemEvent,
		Event: lane.LaneEvent{
			Event: hail.Event{EventID: "e1", Type: hail.ShellCommand{Command: "ls"}},
			Lane:  2,
		},
		Lane: 2,
	}
	lines := renderChatBubble(item, 80, 2, false)
	if !strings.HasPrefix(lines[0], strings.Repeat(" ", 8)) {
		t.Fatalf("expected lane indent, got %q", lines[0])
	}
}

func TestTruncateToWidthKeepsANSI(t *testing.T) {
	colored := colorize(true, ansiUser, "abcdef")
	got := truncateToWidth(colored, 3)
	if visibleWidth(got) != 3 || !strings.HasPrefix(got, ansiUser) {
		t.Fatalf("unexpected truncation %q", got)
	}
}

func TestRunTextFormat(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Refs:         []string{claudeFixture()},
		Format:       "text",
		ForceNoColor: true,
		Out:          &out,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	text := out.String()
	for _, want := range []string{"UserMessage  fix the login bug", "TaskStart", "ShellCommand", "TaskEnd"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
	if strings.Contains(text, "\x1b[") {
		t.Fatalf("unexpected color codes in output")
	}
}

func TestRunSummaryModeCollapsesTasks(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Refs:   []string{claudeFixture()},
		Mode:   "summary-start",
		Format: "text",
		Out:    &out,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "◆") || strings.Contains(text, "ShellCommand") {
		t.Fatalf("expected collapsed task:\n%s", text)
	}
}

func TestRunFilter(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Refs:      []string{claudeFixture()},
		Filter:    "UserMessage",
		FilterSet: true,
		Out:       &out,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "UserMessage  fix the login bug") {
		t.Fatalf("unexpected filtered output: %q", lines)
	}

	out.Reset()
	err = Run(context.Background(), Options{
		Refs:      []string{claudeFixture()},
		FilterSet: true,
		Out:       &out,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected empty output for an empty filter, got %q", out.String())
	}
}

func TestRunJSONLRoundTrip(t *testing.T) {
	var out bytes.Buffer
	if err := Run(context.Background(), Options{Refs: []string{claudeFixture()}, Format: "jsonl", Out: &out}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	session, err := hail.ReadJSONL(&out)
	if err != nil {
		t.Fatalf("ReadJSONL returned error: %v", err)
	}
	if session.SessionID != "claude-session" || session.Agent.Tool != "claude-code" {
		t.Fatalf("unexpected session header: %s %+v", session.SessionID, session.Agent)
	}
	if len(session.Events) == 0 {
		t.Fatalf("expected events")
	}
}

func TestRunRawCopiesFile(t *testing.T) {
	var out bytes.Buffer
	if err := Run(context.Background(), Options{Refs: []string{claudeFixture()}, Format: "raw", Out: &out}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want, err := os.ReadFile(claudeFixture())
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("raw output differs from the file")
	}
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	if err := Run(ctx, Options{Out: &bytes.Buffer{}}); err == nil {
		t.Fatalf("expected error without refs")
	}
	if err := Run(ctx, Options{Refs: []string{claudeFixture()}, Format: "yaml", Out: &bytes.Buffer{}}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
	if err := Run(ctx, Options{Refs: []string{claudeFixture()}, Mode: "sideways", Out: &bytes.Buffer{}}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if err := Run(ctx, Options{Refs: []string{filepath.Join(t.TempDir(), "missing.jsonl")}, Out: &bytes.Buffer{}}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDisplayOptions(t *testing.T) {
	opts, err := DisplayOptions(Options{
		Mode:      "summary-start",
		Toggle:    []string{"t1"},
		FilterSet: true,
		Filter:    "message,task",
		Taxonomy:  "semantic",
	}, "codex")
	if err != nil {
		t.Fatalf("DisplayOptions returned error: %v", err)
	}
	if opts.Mode != display.ModeSummaryStart || !opts.Toggled["t1"] {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.Filter == nil || opts.Filter.Taxonomy != display.TaxonomySemantic || opts.Filter.Tool != "codex" || len(opts.Filter.Enabled) != 2 {
		t.Fatalf("unexpected filter: %+v", opts.Filter)
	}

	if _, err := DisplayOptions(Options{FilterSet: true, Taxonomy: "fancy"}, "codex"); err == nil {
		t.Fatalf("expected error for unknown taxonomy")
	}
}

func TestDetermineWidth(t *testing.T) {
	if got := determineWidth(nil, 60); got != 60 {
		t.Fatalf("expected wrap width, got %d", got)
	}
	t.Setenv("COLUMNS", "132")
	if got := determineWidth(nil, 0); got != 132 {
		t.Fatalf("expected COLUMNS width, got %d", got)
	}
}
