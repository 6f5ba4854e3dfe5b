package cursor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hailog/internal/adapter"
	"hailog/internal/hail"
)

func storeRows() []adapter.Row {
	return []adapter.Row{
		{Key: "bubbleId:comp1:b3", Value: []byte(`{"type":2,"text":"Fixed.","createdAt":"2025-10-01T12:00:05Z"}`)},
		{Key: "composerData:comp1", Value: []byte(`{"composerId":"comp1","name":"Fix flaky test","createdAt":1759320000000,
			"fullConversationHeadersOnly":[{"bubbleId":"b1","type":1},{"bubbleId":"b2","type":2}],
			"modelConfig":{"modelName":"claude-4-sonnet"}}`)},
		{Key: "bubbleId:comp1:b1", Value: []byte(`{"bubbleId":"b1","type":1,"text":"the test is flaky","createdAt":"2025-10-01T12:00:00Z"}`)},
		{Key: "bubbleId:comp1:b2", Value: []byte(`{"bubbleId":"b2","type":2,"text":"Looking.","createdAt":"2025-10-01T12:00:02Z",
			"thinking":{"text":"probably a race"},
			"toolFormerData":{"name":"read_file","toolCallId":"tool_1","status":"completed","rawArgs":"{\"target_file\":\"flaky_test.go\"}","result":"package x"},
			"tokenCount":{"inputTokens":50,"outputTokens":10}}`)},
		{Key: "bubbleId:broken", Value: []byte(`nope`)},
		{Key: "aiService.prompts", Value: []byte(`[]`)},
	}
}

func TestParseStoreRows(t *testing.T) {
	res, err := Parse(adapter.Source{Name: "state.vscdb", Rows: storeRows()})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if res.SessionID != "comp1" || res.Context.Title != "Fix flaky test" || res.Agent.Model != "claude-4-sonnet" {
		t.Fatalf("unexpected header: %s %q %s", res.SessionID, res.Context.Title, res.Agent.Model)
	}

	want := []struct {
		kind hail.EventKind
		id   string
	}{
		{hail.KindUserMessage, "b1"},
		{hail.KindThinking, "b2"},
		{hail.KindAgentMessage, "b2:1"},
		{hail.KindFileRead, "b2:2"},
		{hail.KindToolResult, "b2:3"},
		{hail.KindAgentMessage, "b3"},
		{hail.KindCustom, ""},
	}
	if len(res.Events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(res.Events))
	}
	for i, w := range want {
		event := res.Events[i]
		if event.Kind() != w.kind {
			t.Fatalf("event %d: expected %s, got %s", i, w.kind, event.Kind())
		}
		if w.id != "" && event.EventID != w.id {
			t.Fatalf("event %d: expected id %s, got %s", i, w.id, event.EventID)
		}
	}

	if res.Events[3].Type.(hail.FileRead).Path != "flaky_test.go" || res.Events[3].Attr(hail.AttrCallID) != "tool_1" {
		t.Fatalf("unexpected tool call: %+v", res.Events[3])
	}
	if res.Events[1].Attributes[hail.AttrInputTokens] != int64(50) {
		t.Fatalf("usage not attached: %v", res.Events[1].Attributes)
	}
	if res.Events[0].Attr("cursor.composer_id") != "comp1" {
		t.Fatalf("missing composer id attribute")
	}
	if res.Events[6].Attr("cursor.key") != "bubbleId:broken" {
		t.Fatalf("unexpected broken row event: %+v", res.Events[6])
	}
	if len(res.Diagnostics) != 2 {
		t.Fatalf("expected 2 diagnostics, got %v", res.Diagnostics)
	}
}

func TestParseDerivesMissingToolCallIDs(t *testing.T) {
	rows := []adapter.Row{
		{Key: "composerData:c", Value: []byte(`{"composerId":"c","createdAt":1759320000000}`)},
		{Key: "bubbleId:c:a", Value: []byte(`{"type":2,"createdAt":1759320001000,"toolFormerData":{"name":"run_terminal_cmd","rawArgs":"{\"command\":\"ls\"}"}}`)},
		{Key: "bubbleId:c:b", Value: []byte(`{"type":2,"createdAt":1759320002000,"toolFormerData":{"name":"run_terminal_cmd","rawArgs":"{\"command\":\"pwd\"}"}}`)},
	}

	res, err := Parse(adapter.Source{Rows: rows})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(res.Events))
	}
	if got := res.Events[0].Attr(hail.AttrCallID); got != "run_terminal_cmd#1" {
		t.Fatalf("unexpected derived id: %s", got)
	}
	if got := res.Events[1].Attr(hail.AttrCallID); got != "run_terminal_cmd#2" {
		t.Fatalf("unexpected derived id: %s", got)
	}
}

func readFixture(t *testing.T, name string) adapter.Source {
	t.Helper()
	path := filepath.Join("..", "..", "..", "testdata", "cursor", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return adapter.Source{Name: path, Data: data}
}

func TestParseExport(t *testing.T) {
	res, err := Parse(readFixture(t, "export.json"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if res.SessionID != "cur-1" || res.Context.Title != "Refactor handler" {
		t.Fatalf("unexpected header: %s %q", res.SessionID, res.Context.Title)
	}
	if len(res.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(res.Events))
	}
	if res.Events[2].Type.(hail.Custom).Name != "message.tool" {
		t.Fatalf("unexpected custom event: %#v", res.Events[2].Type)
	}
	if !res.Events[1].Timestamp.Equal(time.Date(2025, 10, 1, 12, 0, 5, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %s", res.Events[1].Timestamp)
	}
	if res.Events[0].Attr(hail.AttrSchemaVersion) != "cursor-export" {
		t.Fatalf("unexpected schema: %s", res.Events[0].Attr(hail.AttrSchemaVersion))
	}
}

func TestParseChatData(t *testing.T) {
	res, err := Parse(readFixture(t, "chatdata.json"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if res.SessionID != "tab-1" || res.Context.Title != "Explain regex" || res.Agent.Model != "gpt-4o" {
		t.Fatalf("unexpected header: %s %q %s", res.SessionID, res.Context.Title, res.Agent.Model)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(res.Events))
	}
	if res.Events[1].Kind() != hail.KindAgentMessage || res.Events[1].FirstText() != "One or more a characters." {
		t.Fatalf("unexpected assistant bubble: %+v", res.Events[1])
	}
	if res.Events[0].Timestamp.IsZero() {
		t.Fatalf("bubbles should fall back to the tab send time")
	}
}
