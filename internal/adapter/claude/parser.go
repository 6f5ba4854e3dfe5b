package claude

import (
	"encoding/json"
	"strings"
	"time"

	"hailog/internal/adapter"
	"hailog/internal/hail"
)

type parser struct {
	b      *adapter.Builder
	result adapter.Result

	// open holds the ids of Task calls still awaiting their result,
	// innermost last.
	open      []string
	taskCalls map[string]bool
	usageSeen map[string]bool
}

// Parse converts a Claude Code JSONL transcript into canonical events.
func Parse(src adapter.Source) (adapter.Result, error) {
	p := &parser{
		b:         adapter.NewBuilder(adapter.KindClaude, src, "claude-code"),
		taskCalls: make(map[string]bool),
		usageSeen: make(map[string]bool),
	}
	p.result.Agent = hail.Agent{Provider: Provider, Tool: string(adapter.KindClaude)}
	p.result.Context.Attributes = make(map[string]any)

	err := adapter.EachLine(src.Data, func(line int, record []byte) error {
		p.handle(line, record)
		return nil
	})
	if err != nil {
		return adapter.Result{}, adapter.Fail(adapter.KindClaude, src, err)
	}

	res, err := p.b.Result(p.result)
	if err != nil {
		return adapter.Result{}, adapter.Fail(adapter.KindClaude, src, err)
	}
	return res, nil
}

func (p *parser) handle(line int, record []byte) {
	var entry rawEntry
	if err := json.Unmarshal(record, &entry); err != nil {
		p.b.EmitCustom(line, "invalid", "invalid_record", time.Time{}, []hail.ContentBlock{hail.JSON(record)})
		return
	}

	var ts time.Time
	if entry.Timestamp != "" {
		parsed, err := adapter.ParseTimestamp(entry.Timestamp)
		if err != nil {
			p.b.Diagnose(line, entry.Type, "invalid timestamp "+entry.Timestamp)
		}
		ts = parsed
	}
	p.collectMeta(entry)

	taskID := ""
	if entry.IsSidechain && len(p.open) > 0 {
		taskID = p.open[len(p.open)-1]
	}

	switch EntryType(entry.Type) {
	case EntryTypeUser, EntryTypeAssistant:
		events, ok := p.messageEvents(line, entry, ts, taskID)
		if !ok {
			p.b.EmitCustom(line, entry.Type, entry.Type, ts, []hail.ContentBlock{hail.JSON(record)})
			return
		}
		for _, event := range events {
			p.b.Emit(entry.Type, event)
		}

	case EntryTypeSystem:
		event := hail.Event{
			EventID:   entry.UUID,
			Timestamp: ts,
			Type:      hail.SystemMessage{},
			TaskID:    taskID,
			Content:   hail.TextContent(textOf(entry.Content)),
		}
		if entry.Subtype != "" {
			event.SetAttr("claude.subtype", entry.Subtype)
		}
		p.b.Emit(entry.Type, event)

	case EntryTypeSummary:
		if p.result.Context.Title == "" {
			p.result.Context.Title = entry.Summary
		}
		event := hail.Event{Timestamp: ts, Type: hail.Custom{Name: "summary"}, Content: hail.TextContent(entry.Summary)}
		if entry.LeafUUID != "" {
			event.SetAttr("claude.leaf_uuid", entry.LeafUUID)
		}
		p.b.Emit(entry.Type, event)

	default:
		p.b.EmitCustom(line, entry.Type, entry.Type, ts, []hail.ContentBlock{hail.JSON(record)})
	}
}

func (p *parser) collectMeta(entry rawEntry) {
	if entry.Version != "" {
		p.b.SetSchema("claude-code@" + entry.Version)
		if p.result.Agent.ToolVersion == "" {
			p.result.Agent.ToolVersion = entry.Version
		}
	}
	if p.result.SessionID == "" {
		p.result.SessionID = entry.SessionID
	}
	if entry.CWD != "" {
		if _, ok := p.result.Context.Attributes["cwd"]; !ok {
			p.result.Context.Attributes["cwd"] = entry.CWD
		}
	}
	if entry.GitBranch != "" {
		if _, ok := p.result.Context.Attributes["git_branch"]; !ok {
			p.result.Context.Attributes["git_branch"] = entry.GitBranch
		}
	}
}

// messageEvents expands one user or assistant record into events, keeping
// block order. Consecutive prose blocks share one message event.
func (p *parser) messageEvents(line int, entry rawEntry, ts time.Time, taskID string) ([]hail.Event, bool) {
	var msg messagePayload
	if len(entry.Message) > 0 {
		if err := json.Unmarshal(entry.Message, &msg); err != nil {
			return nil, false
		}
	}

	var messageType hail.EventType = hail.UserMessage{}
	if EntryType(entry.Type) == EntryTypeAssistant {
		messageType = hail.AgentMessage{}
		if p.result.Agent.Model == "" && msg.Model != "" && msg.Model != "<synthetic>" {
			p.result.Agent.Model = msg.Model
		}
	}

	newEvent := func(typ hail.EventType) hail.Event {
		return hail.Event{EventID: entry.UUID, Timestamp: ts, Type: typ, TaskID: taskID}
	}

	var (
		events  []hail.Event
		pending []hail.ContentBlock
	)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		event := newEvent(messageType)
		event.Content = pending
		events = append(events, event)
		pending = nil
	}

	var asString string
	if err := json.Unmarshal(msg.Content, &asString); err == nil {
		pending = hail.TextContent(asString)
		flush()
		if len(events) == 0 {
			events = append(events, newEvent(messageType))
		}
		return p.attachUsage(events, msg), true
	}

	var rawBlocks []json.RawMessage
	if err := json.Unmarshal(msg.Content, &rawBlocks); err != nil {
		return nil, false
	}

	for _, rawBlock := range rawBlocks {
		var block contentBlock
		if err := json.Unmarshal(rawBlock, &block); err != nil {
			pending = append(pending, hail.JSON(rawBlock))
			continue
		}

		switch block.Type {
		case ContentBlockTypeText:
			if strings.TrimSpace(block.Text) != "" {
				pending = append(pending, hail.Text(block.Text))
			}
		case ContentBlockTypeImage:
			pending = append(pending, imageBlock(block.Source))
		case ContentBlockTypeThinking, ContentBlockTypeRedacted:
			flush()
			event := newEvent(hail.Thinking{})
			event.Content = hail.TextContent(block.Thinking)
			if block.Type == ContentBlockTypeRedacted {
				event.SetAttr("claude.redacted", true)
			}
			events = append(events, event)
		case ContentBlockTypeToolUse:
			flush()
			event := p.toolUse(line, block, taskID)
			event.EventID, event.Timestamp = entry.UUID, ts
			events = append(events, event)
		case ContentBlockTypeToolResult:
			flush()
			event := p.toolResult(block, taskID)
			event.EventID, event.Timestamp = entry.UUID, ts
			events = append(events, event)
		default:
			p.b.Diagnose(line, string(block.Type), "unknown content block kept as json")
			pending = append(pending, hail.JSON(rawBlock))
		}
	}
	flush()

	if len(events) == 0 {
		events = append(events, newEvent(messageType))
	}
	return p.attachUsage(events, msg), true
}

// attachUsage records token usage on the first event of a message. Claude
// Code repeats usage on every record of a streamed message, so each message
// id is counted once.
func (p *parser) attachUsage(events []hail.Event, msg messagePayload) []hail.Event {
	if msg.Usage == nil || len(events) == 0 {
		return events
	}
	if msg.ID != "" {
		if p.usageSeen[msg.ID] {
			return events
		}
		p.usageSeen[msg.ID] = true
	}
	events[0].SetAttr(hail.AttrInputTokens, msg.Usage.InputTokens)
	events[0].SetAttr(hail.AttrOutputTokens, msg.Usage.OutputTokens)
	if msg.Usage.CacheReadInputTokens > 0 {
		events[0].SetAttr("usage.cache_read_input_tokens", msg.Usage.CacheReadInputTokens)
	}
	if msg.Usage.CacheCreationInputTokens > 0 {
		events[0].SetAttr("usage.cache_creation_input_tokens", msg.Usage.CacheCreationInputTokens)
	}
	return events
}

func (p *parser) toolUse(line int, block contentBlock, taskID string) hail.Event {
	args, ok := adapter.DecodeRawArguments(block.Input)
	if !ok {
		p.b.Diagnose(line, string(block.Type), "undecodable input for "+block.Name)
		args = map[string]any{}
	}

	typ, kind := adapter.Classify(block.Name, args)
	callID := p.b.RegisterCall(block.ID, block.Name)

	event := adapter.CallEvent(time.Time{}, typ, kind, callID)
	if len(block.Input) > 0 {
		event.Content = []hail.ContentBlock{hail.JSON(block.Input)}
	}

	switch t := typ.(type) {
	case hail.TaskStart:
		p.taskCalls[callID] = true
		p.open = append(p.open, callID)
		event.TaskID = callID
		event.Content = hail.TextContent(adapter.ArgString(args, "prompt"))
		if taskID != "" {
			event.SetAttr(hail.AttrParentTask, taskID)
		}
		if agentType := adapter.ArgString(args, "subagent_type"); agentType != "" {
			event.SetAttr("task.agent_type", agentType)
		}
		return event
	case hail.FileCreate:
		if body, ok := args["content"].(string); ok {
			event.Content = []hail.ContentBlock{hail.FileBlock(t.Path, &body)}
		}
	}
	event.TaskID = taskID
	return event
}

func (p *parser) toolResult(block contentBlock, taskID string) hail.Event {
	content := resultContent(block.Content)

	if p.taskCalls[block.ToolUseID] {
		p.closeTask(block.ToolUseID)
		event := hail.Event{
			Type:    hail.TaskEnd{Summary: joinText(content)},
			TaskID:  block.ToolUseID,
			Content: content,
		}
		event.SetAttr(hail.AttrCallID, block.ToolUseID)
		if block.IsError {
			event.SetAttr("task.is_error", true)
		}
		return event
	}

	name, _ := p.b.CallName(block.ToolUseID)
	event := adapter.ResultEvent(time.Time{}, name, block.ToolUseID, block.IsError, content)
	event.TaskID = taskID
	return event
}

func (p *parser) closeTask(id string) {
	delete(p.taskCalls, id)
	for i := len(p.open) - 1; i >= 0; i-- {
		if p.open[i] == id {
			p.open = append(p.open[:i], p.open[i+1:]...)
			return
		}
	}
}

// resultContent decodes tool_result content, which is either a string or
// a list of text/image blocks.
func resultContent(raw json.RawMessage) []hail.ContentBlock {
	if len(raw) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return hail.TextContent(asString)
	}

	var nested []contentBlock
	if err := json.Unmarshal(raw, &nested); err != nil {
		return []hail.ContentBlock{hail.JSON(raw)}
	}
	out := make([]hail.ContentBlock, 0, len(nested))
	for _, block := range nested {
		switch block.Type {
		case ContentBlockTypeText:
			out = append(out, hail.Text(block.Text))
		case ContentBlockTypeImage:
			out = append(out, imageBlock(block.Source))
		}
	}
	return out
}

func imageBlock(src *imageSource) hail.ContentBlock {
	if src == nil {
		return hail.Media(hail.BlockImage, "", "")
	}
	url := src.URL
	if url == "" && src.Data != "" {
		url = "data:" + src.MediaType + ";base64," + src.Data
	}
	return hail.Media(hail.BlockImage, url, src.MediaType)
}

func joinText(blocks []hail.ContentBlock) string {
	var parts []string
	for _, block := range blocks {
		if block.Type == hail.BlockText && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, strings.TrimSpace(block.Text))
		}
	}
	return strings.Join(parts, "\n")
}

// textOf reads a string or a list of text blocks.
func textOf(raw json.RawMessage) string {
	return joinText(resultContent(raw))
}
