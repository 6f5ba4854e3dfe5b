package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hailog/internal/hail"
)

func testdataPath(parts ...string) string {
	return filepath.Join(append([]string{"..", "..", "testdata"}, parts...)...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HAILOG_SESSIONS_DIR", "")
	t.Setenv("HAILOG_LOG_LEVEL", "")

	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	base := []string{"--config", filepath.Join(t.TempDir(), "config.yaml")}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestListCommandPlain(t *testing.T) {
	out, err := execute(t, "list", "--sessions-dir", testdataPath(), "--format", "plain")
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected header plus 6 sessions, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "timestamp\tsession_id") {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(out, "claude-session\tclaude-code") {
		t.Fatalf("expected claude session in output:\n%s", out)
	}
}

func TestListCommandSourceFilter(t *testing.T) {
	out, err := execute(t, "list", "--sessions-dir", testdataPath(), "--source", "codex", "--format", "jsonl")
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 codex sessions, got %d:\n%s", len(lines), out)
	}
	for _, line := range lines {
		var row struct {
			Tool string `json:"tool"`
		}
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			t.Fatalf("decode row: %v", err)
		}
		if row.Tool != "codex" {
			t.Fatalf("unexpected tool %q", row.Tool)
		}
	}
}

func TestListCommandRejectsBadFlags(t *testing.T) {
	if _, err := execute(t, "list", "--sessions-dir", testdataPath(), "--source", "emacs"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
	if _, err := execute(t, "list", "--sessions-dir", testdataPath(), "--after", "yesterday"); err == nil {
		t.Fatalf("expected error for invalid --after")
	}
	if _, err := execute(t, "list", "--sessions-dir", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for a missing sessions dir")
	}
}

func TestViewCommandFormatRaw(t *testing.T) {
	path := testdataPath("claude", "session.jsonl")
	out, err := execute(t, "view", path, "--format", "raw")
	if err != nil {
		t.Fatalf("view command failed: %v", err)
	}
	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample file: %v", err)
	}
	if out != string(want) {
		t.Fatalf("raw output mismatch\nwant:\n%q\n\ngot:\n%q", want, out)
	}
}

func TestViewCommandResolvesSessionID(t *testing.T) {
	out, err := execute(t, "view", "ses_1", "--sessions-dir", testdataPath(), "--no-color", "--no-body")
	if err != nil {
		t.Fatalf("view command failed: %v", err)
	}
	if !strings.Contains(out, "UserMessage") {
		t.Fatalf("expected rendered events:\n%s", out)
	}
}

func TestViewCommandColorConflict(t *testing.T) {
	if _, err := execute(t, "view", testdataPath("claude", "session.jsonl"), "--color", "--no-color"); err == nil {
		t.Fatalf("expected error for --color with --no-color")
	}
}

func TestInfoCommandJSON(t *testing.T) {
	out, err := execute(t, "info", testdataPath("claude", "session.jsonl"), "--format", "json")
	if err != nil {
		t.Fatalf("info command failed: %v", err)
	}
	var payload struct {
		SessionID string `json:"session_id"`
		Tool      string `json:"tool"`
		Title     string `json:"title"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode info: %v\n%s", err, out)
	}
	if payload.SessionID != "claude-session" || payload.Tool != "claude-code" || payload.Title != "Fix login bug" {
		t.Fatalf("unexpected info payload: %+v", payload)
	}
}

func TestTasksCommand(t *testing.T) {
	out, err := execute(t, "tasks", testdataPath("claude", "session.jsonl"))
	if err != nil {
		t.Fatalf("tasks command failed: %v", err)
	}
	if !strings.Contains(out, "search tests") {
		t.Fatalf("expected task title in output:\n%s", out)
	}
}

func TestExportCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.hail")
	if _, err := execute(t, "export", testdataPath("claude", "session.jsonl"), "-o", target); err != nil {
		t.Fatalf("export command failed: %v", err)
	}
	f, err := os.Open(target)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	session, err := hail.ReadJSONL(f)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if session.SessionID != "claude-session" {
		t.Fatalf("unexpected session id %q", session.SessionID)
	}
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("view:\n  mode: sideways\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", path, "list"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected invalid config error")
	}
}
