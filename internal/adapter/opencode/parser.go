package opencode

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"hailog/internal/adapter"
	"hailog/internal/hail"
)

type parser struct {
	b      *adapter.Builder
	result adapter.Result
}

// Parse converts an OpenCode session export ({info, messages}) into
// canonical events.
func Parse(src adapter.Source) (adapter.Result, error) {
	var doc document
	if err := json.Unmarshal(src.Data, &doc); err != nil {
		return adapter.Result{}, adapter.Fail(adapter.KindOpenCode, src, fmt.Errorf("decode session: %w", err))
	}

	schema := "opencode"
	if doc.Info.Version != "" {
		schema += "@" + doc.Info.Version
	}
	p := &parser{b: adapter.NewBuilder(adapter.KindOpenCode, src, schema)}
	p.result = adapter.Result{
		SessionID: doc.Info.ID,
		Agent:     hail.Agent{Tool: string(adapter.KindOpenCode), ToolVersion: doc.Info.Version},
		Context: hail.SessionContext{
			Title:      doc.Info.Title,
			CreatedAt:  adapter.EpochMillis(doc.Info.Time.Created),
			UpdatedAt:  adapter.EpochMillis(doc.Info.Time.Updated),
			Attributes: make(map[string]any),
		},
	}
	p.setAttr("cwd", doc.Info.Directory)
	p.setAttr("project_id", doc.Info.ProjectID)
	p.setAttr("parent_session_id", doc.Info.ParentID)

	for i, msg := range doc.Messages {
		p.message(i+1, msg)
	}

	res, err := p.b.Result(p.result)
	if err != nil {
		return adapter.Result{}, adapter.Fail(adapter.KindOpenCode, src, err)
	}
	return res, nil
}

func (p *parser) setAttr(key, value string) {
	if value != "" {
		p.result.Context.Attributes[key] = value
	}
}

// message emits the events of one message. Line numbers in diagnostics are
// 1-based message indexes.
func (p *parser) message(index int, msg message) {
	info := msg.Info
	base := adapter.EpochMillis(info.Time.Created)

	if info.Role == "assistant" {
		if p.result.Agent.Model == "" {
			p.result.Agent.Model = info.ModelID
		}
		if p.result.Agent.Provider == "" {
			p.result.Agent.Provider = info.ProviderID
		}
	}

	var events []hail.Event
	var userContent []hail.ContentBlock
	for _, raw := range msg.Parts {
		var pt part
		if err := json.Unmarshal(raw, &pt); err != nil {
			p.b.Diagnose(index, "part", "undecodable part kept as Custom")
			events = append(events, hail.Event{Timestamp: base, Type: hail.Custom{Name: "part"}, Content: []hail.ContentBlock{hail.JSON(raw)}})
			continue
		}
		ts := base
		if pt.Time != nil && pt.Time.Start > 0 {
			ts = adapter.EpochMillis(pt.Time.Start)
		}

		switch {
		case info.Role == "user" && (pt.Type == PartTypeText || pt.Type == PartTypeFile):
			userContent = append(userContent, partContent(pt)...)
		case pt.Type == PartTypeText:
			event := hail.Event{EventID: pt.ID, Timestamp: ts, Type: hail.AgentMessage{}, Content: hail.TextContent(pt.Text)}
			if pt.Synthetic {
				event.SetAttr("opencode.synthetic", true)
			}
			events = append(events, event)
		case pt.Type == PartTypeFile:
			events = append(events, hail.Event{EventID: pt.ID, Timestamp: ts, Type: hail.AgentMessage{}, Content: partContent(pt)})
		case pt.Type == PartTypeReasoning:
			events = append(events, hail.Event{EventID: pt.ID, Timestamp: ts, Type: hail.Thinking{}, Content: hail.TextContent(pt.Text)})
		case pt.Type == PartTypeTool:
			events = append(events, p.toolEvents(index, pt, ts)...)
		case bookkeepingParts[pt.Type]:
			event := hail.Event{EventID: pt.ID, Timestamp: ts, Type: hail.Custom{Name: "part." + string(pt.Type)}}
			if pt.Name != "" {
				event.Content = hail.TextContent(pt.Name)
			}
			events = append(events, event)
		default:
			p.b.Diagnose(index, string(pt.Type), "unmapped part kept as Custom")
			events = append(events, hail.Event{EventID: pt.ID, Timestamp: ts, Type: hail.Custom{Name: "part." + string(pt.Type)}, Content: []hail.ContentBlock{hail.JSON(raw)}})
		}
	}

	if info.Role == "user" {
		user := hail.Event{EventID: info.ID, Timestamp: base, Type: hail.UserMessage{}, Content: userContent}
		events = append([]hail.Event{user}, events...)
	}
	if len(events) == 0 {
		p.b.Diagnose(index, "message", "message without parts")
		events = append(events, hail.Event{EventID: info.ID, Timestamp: base, Type: hail.Custom{Name: "message." + info.Role}})
	}

	if info.Tokens != nil {
		events[0].SetAttr(hail.AttrInputTokens, info.Tokens.Input)
		events[0].SetAttr(hail.AttrOutputTokens, info.Tokens.Output)
		if info.Tokens.Reasoning > 0 {
			events[0].SetAttr("usage.reasoning_output_tokens", info.Tokens.Reasoning)
		}
		if info.Tokens.Cache.Read > 0 {
			events[0].SetAttr("usage.cache_read_input_tokens", info.Tokens.Cache.Read)
		}
	}
	if info.Cost > 0 {
		events[0].SetAttr("usage.cost", info.Cost)
	}

	for _, event := range events {
		rawType := "message." + info.Role
		if kind := event.Kind(); kind != hail.KindUserMessage {
			rawType = "part." + partRawType(event)
		}
		p.b.Emit(rawType, event)
	}
}

// partRawType recovers the part type an emitted event came from.
func partRawType(event hail.Event) string {
	switch event.Kind() {
	case hail.KindAgentMessage:
		return string(PartTypeText)
	case hail.KindThinking:
		return string(PartTypeReasoning)
	case hail.KindCustom:
		name := event.Type.(hail.Custom).Name
		return strings.TrimPrefix(name, "part.")
	}
	return string(PartTypeTool)
}

func partContent(pt part) []hail.ContentBlock {
	if pt.Type == PartTypeText {
		return hail.TextContent(pt.Text)
	}
	switch {
	case strings.HasPrefix(pt.Mime, "image/"):
		return []hail.ContentBlock{hail.Media(hail.BlockImage, pt.URL, pt.Mime)}
	case strings.HasPrefix(pt.Mime, "video/"):
		return []hail.ContentBlock{hail.Media(hail.BlockVideo, pt.URL, pt.Mime)}
	case strings.HasPrefix(pt.Mime, "audio/"):
		return []hail.ContentBlock{hail.Media(hail.BlockAudio, pt.URL, pt.Mime)}
	}
	path := pt.Filename
	if path == "" {
		path = strings.TrimPrefix(pt.URL, "file://")
	}
	return []hail.ContentBlock{hail.FileBlock(path, nil)}
}

// toolEvents expands a tool part into its invocation and, once the part
// has finished, its outcome. Both share the part's call id.
func (p *parser) toolEvents(index int, pt part, ts time.Time) []hail.Event {
	state := pt.State
	if state == nil {
		state = &toolState{Status: ToolStatusPending}
	}
	args, ok := adapter.DecodeRawArguments(state.Input)
	if !ok {
		p.b.Diagnose(index, string(PartTypeTool), "undecodable input for "+pt.Tool)
		args = map[string]any{}
	}

	start, end := ts, ts
	if state.Time != nil {
		if state.Time.Start > 0 {
			start = adapter.EpochMillis(state.Time.Start)
		}
		if state.Time.End > 0 {
			end = adapter.EpochMillis(state.Time.End)
		}
	}
	finished := state.Status == ToolStatusCompleted || state.Status == ToolStatusError

	typ, kind := adapter.Classify(pt.Tool, args)
	callID := p.b.RegisterCall(pt.CallID, pt.Tool)

	call := adapter.CallEvent(start, typ, kind, callID)
	call.EventID = pt.ID
	if len(state.Input) > 0 {
		call.Content = []hail.ContentBlock{hail.JSON(state.Input)}
	}
	if state.Title != "" {
		call.SetAttr("opencode.title", state.Title)
	}

	if _, isTask := typ.(hail.TaskStart); isTask {
		call.TaskID = callID
		call.Content = hail.TextContent(adapter.ArgString(args, "prompt"))
		if !finished {
			return []hail.Event{call}
		}
		done := hail.Event{Timestamp: end, Type: hail.TaskEnd{Summary: strings.TrimSpace(state.Output)}, TaskID: callID}
		done.SetAttr(hail.AttrCallID, callID)
		if state.Status == ToolStatusError {
			done.Type = hail.TaskEnd{Summary: strings.TrimSpace(state.Error)}
			done.SetAttr("task.is_error", true)
		}
		return []hail.Event{call, done}
	}

	if exit, ok := exitCode(state.Metadata); ok {
		if shell, isShell := call.Type.(hail.ShellCommand); isShell {
			shell.ExitCode = &exit
			call.Type = shell
		}
	}
	if !finished {
		call.SetAttr("opencode.status", string(state.Status))
		return []hail.Event{call}
	}

	text := state.Output
	if state.Status == ToolStatusError {
		text = state.Error
	}
	result := adapter.ResultEvent(end, pt.Tool, callID, state.Status == ToolStatusError, hail.TextContent(text))
	if !end.Before(start) {
		ms := end.Sub(start).Milliseconds()
		result.DurationMS = &ms
	}
	return []hail.Event{call, result}
}

func exitCode(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var meta struct {
		Exit *int `json:"exit"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta.Exit == nil {
		return 0, false
	}
	return *meta.Exit, true
}
