package normalize

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hailog/internal/adapter"
	"hailog/internal/hail"
)

var base = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return base.Add(time.Duration(seconds) * time.Second)
}

func hailSource(t *testing.T, name, sessionID string, events ...hail.Event) adapter.Source {
	t.Helper()
	var buf bytes.Buffer
	session := &hail.Session{
		Version:   hail.Version,
		SessionID: sessionID,
		Agent:     hail.Agent{Provider: "anthropic", Model: "claude", Tool: "claude-code"},
		Events:    events,
	}
	require.NoError(t, hail.WriteJSONL(&buf, session))
	return adapter.Source{Name: name, Hint: adapter.KindHAIL, Data: buf.Bytes()}
}

func ids(events []hail.Event) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, event.EventID)
	}
	return out
}

func TestNormalizeClosesOpenTask(t *testing.T) {
	src := hailSource(t, "a.hail", "s1",
		hail.Event{EventID: "e1", Timestamp: at(0), Type: hail.UserMessage{}, Content: hail.TextContent("go")},
		hail.Event{EventID: "e2", Timestamp: at(1), Type: hail.TaskStart{Title: "explore"}, TaskID: "t1"},
		hail.Event{EventID: "e3", Timestamp: at(2), Type: hail.AgentMessage{}, TaskID: "t1"},
	)

	session, report, err := Normalize([]adapter.Source{src}, Options{})
	require.NoError(t, err)

	require.Len(t, session.Events, 4)
	end := session.Events[3]
	assert.Equal(t, hail.KindTaskEnd, end.Kind())
	assert.Equal(t, "t1", end.TaskID)
	assert.Equal(t, at(2), end.Timestamp)
	assert.Equal(t, true, end.Attributes[hail.AttrSynthetic])
	assert.Equal(t, []string{"t1"}, report.SyntheticTaskEnds)
	assert.Equal(t, []string{"t1"}, session.Context.Attributes[AttrSyntheticTaskEnds])
	assert.Equal(t, 1, session.Stats.TaskCount)
}

func TestNormalizeClosesRepeatedTaskStart(t *testing.T) {
	src := hailSource(t, "a.hail", "s1",
		hail.Event{EventID: "e1", Timestamp: at(0), Type: hail.TaskStart{}, TaskID: "t1"},
		hail.Event{EventID: "e2", Timestamp: at(1), Type: hail.AgentMessage{}, TaskID: "t1"},
		hail.Event{EventID: "e3", Timestamp: at(5), Type: hail.TaskStart{}, TaskID: "t1"},
		hail.Event{EventID: "e4", Timestamp: at(6), Type: hail.TaskEnd{}, TaskID: "t1"},
	)

	session, _, err := Normalize([]adapter.Source{src}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"e1", "e2", "synthetic-end:t1", "e3", "e4"}, ids(session.Events))
	assert.Equal(t, at(5), session.Events[2].Timestamp)

	starts, ends := 0, 0
	for _, event := range session.Events {
		switch event.Kind() {
		case hail.KindTaskStart:
			starts++
		case hail.KindTaskEnd:
			ends++
		}
	}
	assert.Equal(t, starts, ends)
}

func TestNormalizeDemotesUnmatchedTaskEnds(t *testing.T) {
	src := hailSource(t, "a.hail", "s1",
		hail.Event{EventID: "e1", Timestamp: at(0), Type: hail.TaskStart{}, TaskID: "t1"},
		hail.Event{EventID: "e2", Timestamp: at(1), Type: hail.TaskEnd{Summary: "done"}, TaskID: "t1"},
		hail.Event{EventID: "e3", Timestamp: at(2), Type: hail.TaskEnd{Summary: "again"}, TaskID: "t1"},
		hail.Event{EventID: "e4", Timestamp: at(3), Type: hail.TaskEnd{}, TaskID: "ghost"},
	)

	session, report, err := Normalize([]adapter.Source{src}, Options{})
	require.NoError(t, err)

	require.Len(t, session.Events, 4)
	ends := 0
	for _, event := range session.Events {
		if event.Kind() == hail.KindTaskEnd {
			ends++
		}
	}
	assert.Equal(t, 1, ends)

	orphan := session.Events[2]
	assert.Equal(t, hail.Custom{Name: OrphanTaskEnd}, orphan.Type)
	assert.Equal(t, "again", orphan.FirstText())
	assert.Equal(t, "t1", orphan.TaskID)
	assert.Equal(t, hail.Custom{Name: OrphanTaskEnd}, session.Events[3].Type)

	assert.Equal(t, []string{"ghost", "t1"}, report.OrphanTaskEnds)
	assert.Equal(t, []string{"ghost", "t1"}, session.Context.Attributes[AttrOrphanTaskEnds])
	assert.Empty(t, report.SyntheticTaskEnds)
}

func TestBalanceTasksKeepsOneEndPerStart(t *testing.T) {
	events := []hail.Event{
		{EventID: "s", Type: hail.TaskStart{}, TaskID: "t"},
		{EventID: "e1", Type: hail.TaskEnd{}, TaskID: "t"},
		{EventID: "e2", Type: hail.TaskEnd{}, TaskID: "t"},
	}

	out, synthetic, orphaned := balanceTasks(events)
	require.Len(t, out, 3)
	assert.Equal(t, hail.KindTaskEnd, out[1].Kind())
	assert.Equal(t, hail.KindCustom, out[2].Kind())
	assert.Equal(t, string(hail.KindTaskEnd), out[2].Attr(hail.AttrRawType))
	assert.Empty(t, synthetic)
	assert.Equal(t, []string{"t"}, orphaned)
	assert.Equal(t, hail.KindTaskEnd, events[2].Kind())
}

func TestNormalizeRecoversCallIDsInOrder(t *testing.T) {
	src := hailSource(t, "a.hail", "s1",
		hail.Event{EventID: "c1", Timestamp: at(0), Type: hail.ToolCall{Name: "Bash"}},
		hail.Event{EventID: "c2", Timestamp: at(1), Type: hail.ToolCall{Name: "Bash"}},
		hail.Event{EventID: "r1", Timestamp: at(2), Type: hail.ToolResult{Name: "Bash"}},
		hail.Event{EventID: "r2", Timestamp: at(3), Type: hail.ToolResult{Name: "Bash"}},
	)

	session, report, err := Normalize([]adapter.Source{src}, Options{})
	require.NoError(t, err)

	events := session.Events
	assert.Equal(t, "recovered:c1", events[0].Attr(hail.AttrCallID))
	assert.Equal(t, "recovered:c1", events[2].Type.(hail.ToolResult).CallID)
	assert.Equal(t, "recovered:c2", events[3].Type.(hail.ToolResult).CallID)
	assert.Equal(t, 2, report.RecoveredCallIDs)
}

func TestNormalizeKeepsExplicitCallIDs(t *testing.T) {
	call := hail.Event{EventID: "c1", Timestamp: at(0), Type: hail.FileRead{Path: "a.go"}}
	call.SetAttr(hail.AttrCallID, "toolu_1")
	src := hailSource(t, "a.hail", "s1",
		call,
		hail.Event{EventID: "r1", Timestamp: at(1), Type: hail.ToolResult{Name: "Read", CallID: "toolu_1"}},
		hail.Event{EventID: "r2", Timestamp: at(2), Type: hail.ToolResult{Name: "Read"}},
	)

	session, report, err := Normalize([]adapter.Source{src}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.RecoveredCallIDs)
	assert.Empty(t, session.Events[2].Type.(hail.ToolResult).CallID)
}

func TestNormalizeMergesSourcesByTime(t *testing.T) {
	first := hailSource(t, "a.hail", "s1",
		hail.Event{EventID: "a0", Timestamp: at(0), Type: hail.UserMessage{}},
		hail.Event{EventID: "a1", Timestamp: at(2), Type: hail.AgentMessage{}},
	)
	second := hailSource(t, "b.hail", "s2",
		hail.Event{EventID: "b0", Timestamp: at(0), Type: hail.AgentMessage{}},
		hail.Event{EventID: "a1", Timestamp: at(1), Type: hail.AgentMessage{}},
	)

	session, report, err := Normalize([]adapter.Source{first, second}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a0", "b0", "a1", "a1~1"}, ids(session.Events))
	assert.Equal(t, "s1", session.SessionID)
	assert.Len(t, report.Sources, 2)
	assert.Equal(t, at(0), session.Context.CreatedAt)
	assert.Equal(t, at(2), session.Context.UpdatedAt)
}

func TestNormalizeDerivesStableSessionID(t *testing.T) {
	src := hailSource(t, "a.hail", "",
		hail.Event{EventID: "e1", Timestamp: at(0), Type: hail.UserMessage{},
			Content: hail.TextContent("Fix the login flow\nand add tests")},
	)

	one, _, err := Normalize([]adapter.Source{src}, Options{})
	require.NoError(t, err)
	two, _, err := Normalize([]adapter.Source{src}, Options{})
	require.NoError(t, err)

	assert.Equal(t, one.SessionID, two.SessionID)
	parsed, err := uuid.Parse(one.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
	assert.Equal(t, "Fix the login flow", one.Context.Title)
}

func TestNormalizeFailsOnEmptyTranscript(t *testing.T) {
	src := hailSource(t, "empty.hail", "s1")

	session, _, err := Normalize([]adapter.Source{src}, Options{})
	require.Error(t, err)
	assert.Nil(t, session)
	assert.True(t, errors.Is(err, adapter.ErrNoEvents))

	var perr *adapter.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "empty.hail", perr.Source)
}

func TestNormalizeWithoutSources(t *testing.T) {
	_, _, err := Normalize(nil, Options{})
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestNormalizeStatsAndTags(t *testing.T) {
	src := hailSource(t, "a.hail", "s1",
		hail.Event{EventID: "e1", Timestamp: at(0), Type: hail.UserMessage{}},
		hail.Event{EventID: "e2", Timestamp: at(1), Type: hail.Thinking{}},
		hail.Event{EventID: "e3", Timestamp: at(2), Type: hail.AgentMessage{}},
		hail.Event{EventID: "e4", Timestamp: at(3), Type: hail.TaskStart{}, TaskID: "t"},
		hail.Event{EventID: "e5", Timestamp: at(4), Type: hail.ShellCommand{Command: "ls"}, TaskID: "t"},
		hail.Event{EventID: "e6", Timestamp: at(5), Type: hail.TaskEnd{Summary: "done"}, TaskID: "t"},
	)

	session, _, err := Normalize([]adapter.Source{src}, Options{DefaultTags: []string{"work", "work"}})
	require.NoError(t, err)

	stats := session.Stats
	assert.Equal(t, 6, stats.EventCount)
	assert.Equal(t, 3, stats.MessageCount)
	assert.Equal(t, 1, stats.ToolCallCount)
	assert.Equal(t, 1, stats.TaskCount)
	assert.Equal(t, 5.0, stats.DurationSeconds)
	assert.Equal(t, []string{"work"}, session.Context.Tags)
	assert.NotContains(t, session.Context.Attributes, AttrSyntheticTaskEnds)
}

func TestMergeStreamsKeepsSourceOrder(t *testing.T) {
	a := []hail.Event{{EventID: "a0", Timestamp: at(3)}, {EventID: "a1", Timestamp: at(1)}}
	b := []hail.Event{{EventID: "b0", Timestamp: at(2)}}

	merged := mergeStreams([][]hail.Event{a, b})
	assert.Equal(t, []string{"b0", "a0", "a1"}, ids(merged))
}
