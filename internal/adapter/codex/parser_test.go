package codex

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hailog/internal/adapter"
	"hailog/internal/hail"
)

func fixture(t *testing.T, name string) adapter.Source {
	t.Helper()
	path := filepath.Join("..", "..", "..", "testdata", "codex", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return adapter.Source{Name: path, Data: data}
}

func TestParseRollout(t *testing.T) {
	res, err := Parse(fixture(t, "session.jsonl"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if res.SessionID != "codex-session" {
		t.Fatalf("unexpected session id: %s", res.SessionID)
	}
	if res.Agent.Model != "gpt-5-codex" || res.Agent.ToolVersion != "0.46.0" || res.Agent.Provider != Provider {
		t.Fatalf("unexpected agent: %+v", res.Agent)
	}
	if res.Context.Attributes["git_branch"] != "main" || res.Context.Attributes["originator"] != "codex_cli_rs" {
		t.Fatalf("unexpected context attributes: %v", res.Context.Attributes)
	}

	want := []hail.EventKind{
		hail.KindSystemMessage,
		hail.KindCustom,
		hail.KindUserMessage,
		hail.KindThinking,
		hail.KindShellCommand,
		hail.KindToolResult,
		hail.KindFileEdit,
		hail.KindFileCreate,
		hail.KindToolResult,
		hail.KindAgentMessage,
		hail.KindCustom,
		hail.KindCustom,
		hail.KindCustom,
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

	if got := res.Events[1].FirstText(); got != "Model: gpt-5-codex, Effort: medium, CWD: /tmp/project" {
		t.Fatalf("unexpected turn context: %q", got)
	}
	if got := res.Events[0].Attr(hail.AttrSchemaVersion); got != "codex@0.46.0" {
		t.Fatalf("unexpected schema: %s", got)
	}
	if got := res.Events[4].Attr(hail.AttrRawType); got != "response_item.function_call" {
		t.Fatalf("unexpected raw type: %s", got)
	}
}

func TestParseShellCallAndOutput(t *testing.T) {
	res, err := Parse(fixture(t, "session.jsonl"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	shell := res.Events[4].Type.(hail.ShellCommand)
	if shell.Command != "git status" {
		t.Fatalf("unexpected command: %q", shell.Command)
	}
	if shell.ExitCode == nil || *shell.ExitCode != 0 {
		t.Fatalf("exit code not propagated to the call: %v", shell.ExitCode)
	}

	out := res.Events[5]
	result := out.Type.(hail.ToolResult)
	if result.Name != "shell" || result.CallID != "call_1" || result.IsError {
		t.Fatalf("unexpected result: %#v", result)
	}
	if out.DurationMS == nil || *out.DurationMS != 500 {
		t.Fatalf("unexpected duration: %v", out.DurationMS)
	}
	if out.FirstText() != "nothing to commit" {
		t.Fatalf("unexpected output: %q", out.FirstText())
	}
}

func TestParseApplyPatch(t *testing.T) {
	res, err := Parse(fixture(t, "session.jsonl"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	edit := res.Events[6]
	if edit.Type.(hail.FileEdit).Path != "main.go" {
		t.Fatalf("unexpected edit: %#v", edit.Type)
	}
	if diff := edit.Type.(hail.FileEdit).Diff; !strings.Contains(diff, "-old\n+new") {
		t.Fatalf("unexpected diff: %q", diff)
	}
	create := res.Events[7]
	if create.Type.(hail.FileCreate).Path != "README.md" {
		t.Fatalf("unexpected create: %#v", create.Type)
	}
	if body := create.Content[0].Content; body == nil || *body != "hello" {
		t.Fatalf("unexpected file body: %v", body)
	}
	if edit.Attr(hail.AttrCallID) != "call_2" || create.Attr(hail.AttrCallID) != "call_2" {
		t.Fatalf("patched files should share the call id")
	}

	failed := res.Events[8]
	if !failed.Type.(hail.ToolResult).IsError || failed.Attributes["shell.exit_code"] != 1 {
		t.Fatalf("expected failed patch result: %+v", failed)
	}
}

func TestParseEventMessages(t *testing.T) {
	res, err := Parse(fixture(t, "session.jsonl"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	tokens := res.Events[10]
	if tokens.Type.(hail.Custom).Name != "token_count" {
		t.Fatalf("unexpected event: %#v", tokens.Type)
	}
	if tokens.Attributes[hail.AttrInputTokens] != int64(120) || tokens.Attributes["usage.cached_input_tokens"] != int64(64) {
		t.Fatalf("unexpected usage: %v", tokens.Attributes)
	}
	if res.Events[12].Type.(hail.Custom).Name != "event_msg.mystery_event" {
		t.Fatalf("unexpected unknown event: %#v", res.Events[12].Type)
	}
	if res.Events[13].Type.(hail.Custom).Name != "invalid_record" {
		t.Fatalf("unexpected invalid record: %#v", res.Events[13].Type)
	}
	if len(res.Diagnostics) != 2 {
		t.Fatalf("expected 2 diagnostics, got %v", res.Diagnostics)
	}
}

func TestParseLegacyRollout(t *testing.T) {
	res, err := Parse(fixture(t, "legacy.jsonl"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if res.SessionID != "legacy-session" {
		t.Fatalf("unexpected session id: %s", res.SessionID)
	}
	if res.Context.Attributes["git_branch"] != "dev" {
		t.Fatalf("unexpected git branch: %v", res.Context.Attributes)
	}
	if len(res.Events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(res.Events))
	}
	if res.Events[0].Type.(hail.Custom).Name != "state" {
		t.Fatalf("unexpected first event: %#v", res.Events[0].Type)
	}
	if res.Events[2].Type.(hail.ShellCommand).Command != "ls" {
		t.Fatalf("unexpected command: %#v", res.Events[2].Type)
	}
	want := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	for _, event := range res.Events {
		if !event.Timestamp.Equal(want) {
			t.Fatalf("legacy events should carry the session start: %s", event.Timestamp)
		}
		if event.Attr(hail.AttrSchemaVersion) != "codex-legacy" {
			t.Fatalf("unexpected schema: %s", event.Attr(hail.AttrSchemaVersion))
		}
	}
}

func TestParsePatchSections(t *testing.T) {
	files := parsePatch("*** Begin Patch\n*** Update File: a.go\n*** Move to: b.go\n@@\n-x\n+y\n*** Delete File: c.go\n*** End Patch")
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].moveTo != "b.go" || !strings.HasPrefix(files[0].diff(), "--- a/a.go\n+++ b/b.go\n") {
		t.Fatalf("unexpected move: %+v", files[0])
	}
	if files[1].op != patchDelete || files[1].path != "c.go" {
		t.Fatalf("unexpected delete: %+v", files[1])
	}
}

func TestPlainExitCode(t *testing.T) {
	if code, ok := plainExitCode("Exit code: 2\nWall time: 1s"); !ok || code != 2 {
		t.Fatalf("unexpected exit code %d (%v)", code, ok)
	}
	if _, ok := plainExitCode("all good"); ok {
		t.Fatalf("expected no exit code")
	}
}

func TestParseCompactedKeepsUnreadablePayload(t *testing.T) {
	data := strings.Join([]string{
		`{"timestamp":"2025-10-01T12:00:00Z","type":"session_meta","payload":{"id":"c1","timestamp":"2025-10-01T12:00:00Z"}}`,
		`{"timestamp":"2025-10-01T12:00:01Z","type":"compacted","payload":{"message":"earlier turns summarized"}}`,
		`{"timestamp":"2025-10-01T12:00:02Z","type":"compacted","payload":["not","an","object"]}`,
	}, "\n")

	res, err := Parse(adapter.Source{Name: "compacted.jsonl", Data: []byte(data)})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(res.Events))
	}
	if got := res.Events[0].FirstText(); got != "earlier turns summarized" {
		t.Fatalf("unexpected compacted text: %q", got)
	}
	content := res.Events[1].Content
	if len(content) != 1 || content[0].Type != hail.BlockJSON || !strings.Contains(string(content[0].Data), "not") {
		t.Fatalf("expected raw payload to be kept, got %+v", content)
	}
}
