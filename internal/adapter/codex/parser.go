package codex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hailog/internal/adapter"
	"hailog/internal/hail"
)

type parser struct {
	b      *adapter.Builder
	result adapter.Result

	metaTime  time.Time
	lastTotal tokenUsage
}

// Parse converts a Codex rollout JSONL transcript, current or legacy
// shape, into canonical events.
func Parse(src adapter.Source) (adapter.Result, error) {
	p := &parser{b: adapter.NewBuilder(adapter.KindCodex, src, "codex")}
	p.result.Agent = hail.Agent{Provider: Provider, Tool: string(adapter.KindCodex)}
	p.result.Context.Attributes = make(map[string]any)

	err := adapter.EachLine(src.Data, func(line int, record []byte) error {
		p.handle(line, record)
		return nil
	})
	if err != nil {
		return adapter.Result{}, adapter.Fail(adapter.KindCodex, src, err)
	}

	res, err := p.b.Result(p.result)
	if err != nil {
		return adapter.Result{}, adapter.Fail(adapter.KindCodex, src, err)
	}
	return res, nil
}

func (p *parser) handle(line int, record []byte) {
	var rec rawRecord
	if err := json.Unmarshal(record, &rec); err != nil {
		p.b.EmitCustom(line, "invalid", "invalid_record", p.metaTime, []hail.ContentBlock{hail.JSON(record)})
		return
	}

	ts := p.metaTime
	if rec.Timestamp != "" {
		parsed, err := adapter.ParseTimestamp(rec.Timestamp)
		if err != nil {
			p.b.Diagnose(line, rec.Type, "invalid timestamp "+rec.Timestamp)
		} else {
			ts = parsed
		}
	}

	switch EntryType(rec.Type) {
	case EntryTypeSessionMeta:
		p.sessionMeta(line, ts, rec.Payload)
	case EntryTypeTurnContext:
		p.turnContext(line, ts, rec.Payload)
	case EntryTypeResponseItem:
		p.responseItem(line, rec.Type, ts, rec.Payload)
	case EntryTypeEventMsg:
		p.eventMsg(line, ts, rec.Payload)
	case EntryTypeCompacted:
		p.compacted(rec.Type, ts, rec.Payload)
	default:
		if len(rec.Payload) == 0 {
			p.legacyRecord(line, ts, rec, record)
			return
		}
		p.b.EmitCustom(line, rec.Type, rec.Type, ts, []hail.ContentBlock{hail.JSON(rec.Payload)})
	}
}

// compacted keeps the summary text of a compaction record, or the raw
// payload when it has no readable message.
func (p *parser) compacted(rawType string, ts time.Time, raw json.RawMessage) {
	var payload struct {
		Message string `json:"message"`
	}
	content := []hail.ContentBlock{hail.JSON(raw)}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		content = hail.TextContent(payload.Message)
	}
	p.b.Emit(rawType, hail.Event{Timestamp: ts, Type: hail.Custom{Name: rawType}, Content: content})
}

// legacyRecord handles rollouts written before the envelope format: a bare
// metadata object followed by bare response items.
func (p *parser) legacyRecord(line int, ts time.Time, rec rawRecord, record []byte) {
	p.b.SetSchema("codex-legacy")

	if rec.RecordType != "" {
		p.b.Emit(rec.RecordType, hail.Event{Timestamp: ts, Type: hail.Custom{Name: rec.RecordType}})
		return
	}

	if rec.Type == "" {
		var meta legacyMeta
		if err := json.Unmarshal(record, &meta); err == nil && meta.ID != "" {
			if p.result.SessionID == "" {
				p.result.SessionID = meta.ID
			}
			p.metaTime = ts
			p.setGit(meta.Git)
			return
		}
		p.b.EmitCustom(line, "unknown", "", ts, []hail.ContentBlock{hail.JSON(record)})
		return
	}

	p.responseItem(line, "", ts, record)
}

func (p *parser) sessionMeta(line int, ts time.Time, raw json.RawMessage) {
	var meta sessionMetaPayload
	if err := json.Unmarshal(raw, &meta); err != nil {
		p.b.EmitCustom(line, string(EntryTypeSessionMeta), string(EntryTypeSessionMeta), ts, []hail.ContentBlock{hail.JSON(raw)})
		return
	}

	if p.result.SessionID == "" {
		p.result.SessionID = meta.ID
	}
	if meta.CLIVersion != "" {
		p.b.SetSchema("codex@" + meta.CLIVersion)
		if p.result.Agent.ToolVersion == "" {
			p.result.Agent.ToolVersion = meta.CLIVersion
		}
	}
	if start, err := adapter.ParseTimestamp(meta.Timestamp); err == nil {
		p.metaTime = start
	} else {
		p.metaTime = ts
	}
	p.setAttr("cwd", meta.CWD)
	p.setAttr("originator", meta.Originator)
	p.setGit(meta.Git)
}

func (p *parser) setGit(git *gitInfo) {
	if git == nil {
		return
	}
	p.setAttr("git_branch", git.Branch)
	p.setAttr("git_commit", git.CommitHash)
	p.setAttr("git_repository", git.RepositoryURL)
}

func (p *parser) setAttr(key, value string) {
	if value == "" {
		return
	}
	if _, ok := p.result.Context.Attributes[key]; !ok {
		p.result.Context.Attributes[key] = value
	}
}

func (p *parser) turnContext(line int, ts time.Time, raw json.RawMessage) {
	var payload turnContextPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.b.EmitCustom(line, string(EntryTypeTurnContext), string(EntryTypeTurnContext), ts, []hail.ContentBlock{hail.JSON(raw)})
		return
	}
	if p.result.Agent.Model == "" {
		p.result.Agent.Model = payload.Model
	}
	p.setAttr("cwd", payload.CWD)

	var parts []string
	if payload.Model != "" {
		parts = append(parts, fmt.Sprintf("Model: %s", payload.Model))
	}
	if payload.Effort != "" {
		parts = append(parts, fmt.Sprintf("Effort: %s", payload.Effort))
	}
	if payload.CWD != "" {
		parts = append(parts, fmt.Sprintf("CWD: %s", payload.CWD))
	}
	event := hail.Event{Timestamp: ts, Type: hail.Custom{Name: string(EntryTypeTurnContext)}, Content: hail.TextContent(strings.Join(parts, ", "))}
	if payload.Model != "" {
		event.SetAttr("codex.model", payload.Model)
	}
	p.b.Emit(string(EntryTypeTurnContext), event)
}

func (p *parser) responseItem(line int, envelope string, ts time.Time, raw json.RawMessage) {
	var item responseItem
	if err := json.Unmarshal(raw, &item); err != nil {
		p.b.EmitCustom(line, envelope, envelope, ts, []hail.ContentBlock{hail.JSON(raw)})
		return
	}
	rawType := string(item.Type)
	if envelope != "" {
		rawType = envelope + "." + rawType
	}

	switch item.Type {
	case ResponseItemTypeMessage:
		content := decodeContent(item.Content)
		var typ hail.EventType
		switch item.Role {
		case PayloadRoleUser:
			typ = hail.UserMessage{}
			if injectedContext(content) {
				typ = hail.SystemMessage{}
			}
		case PayloadRoleAssistant:
			typ = hail.AgentMessage{}
		default:
			typ = hail.SystemMessage{}
		}
		p.b.Emit(rawType, hail.Event{EventID: item.ID, Timestamp: ts, Type: typ, Content: content})

	case ResponseItemTypeReasoning:
		content := decodeContent(item.Summary)
		if len(content) == 0 {
			content = decodeContent(item.Content)
		}
		p.b.Emit(rawType, hail.Event{EventID: item.ID, Timestamp: ts, Type: hail.Thinking{}, Content: content})

	case ResponseItemTypeFunctionCall:
		p.functionCall(line, rawType, ts, item)

	case ResponseItemTypeCustomToolCall:
		if item.Name == "apply_patch" {
			p.applyPatch(rawType, ts, item.Name, item.CallID, item.Input)
			return
		}
		args, ok := adapter.DecodeArguments(item.Input)
		if !ok {
			args = map[string]any{"input": item.Input}
		}
		p.emitCall(rawType, ts, item.Name, item.CallID, args, item.Input)

	case ResponseItemTypeLocalShellCall:
		args := map[string]any{}
		if item.Action != nil {
			command := make([]any, 0, len(item.Action.Command))
			for _, part := range item.Action.Command {
				command = append(command, part)
			}
			args["command"] = command
			if item.Action.WorkingDirectory != "" {
				args["workdir"] = item.Action.WorkingDirectory
			}
		}
		callID := item.CallID
		if callID == "" {
			callID = item.ID
		}
		p.emitCall(rawType, ts, string(item.Type), callID, args, "")

	case ResponseItemTypeWebSearchCall:
		args := map[string]any{}
		if item.Action != nil {
			args["query"] = item.Action.Query
			if item.Action.URL != "" {
				args["url"] = item.Action.URL
			}
		}
		p.emitCall(rawType, ts, string(item.Type), item.CallID, args, "")

	case ResponseItemTypeFunctionCallOutput, ResponseItemTypeCustomToolCallOutput:
		p.callOutput(rawType, ts, item)

	default:
		p.b.EmitCustom(line, rawType, string(item.Type), ts, []hail.ContentBlock{hail.JSON(raw)})
	}
}

func (p *parser) functionCall(line int, rawType string, ts time.Time, item responseItem) {
	args, ok := adapter.DecodeArguments(item.Arguments)
	if !ok {
		p.b.Diagnose(line, rawType, "undecodable arguments for "+item.Name)
		args = map[string]any{}
	}

	if item.Name == "apply_patch" {
		patch := adapter.ArgString(args, "input", "patch")
		if patch == "" {
			patch = item.Arguments
		}
		p.applyPatch(rawType, ts, item.Name, item.CallID, patch)
		return
	}

	if argv, ok := args["command"].([]any); ok && len(argv) >= 2 && fmt.Sprint(argv[0]) == "apply_patch" {
		p.applyPatch(rawType, ts, item.Name, item.CallID, fmt.Sprint(argv[1]))
		return
	}
	if adapter.ToolKindOf(item.Name) == adapter.ToolKindShell {
		if patch, ok := extractPatch(adapter.ShellCommandLine(args)); ok {
			p.applyPatch(rawType, ts, item.Name, item.CallID, patch)
			return
		}
	}

	p.emitCall(rawType, ts, item.Name, item.CallID, args, item.Arguments)
}

func (p *parser) emitCall(rawType string, ts time.Time, name, callID string, args map[string]any, rawArgs string) {
	typ, kind := adapter.Classify(name, args)
	if _, ok := typ.(hail.TaskStart); ok {
		// Codex has no sub-agent records to close a task with.
		typ, kind = hail.ToolCall{Name: name}, adapter.ToolKindGeneric
	}
	callID = p.b.RegisterCall(callID, name)
	event := adapter.CallEvent(ts, typ, kind, callID)
	if strings.TrimSpace(rawArgs) != "" {
		event.Content = []hail.ContentBlock{hail.JSON([]byte(rawArgs))}
	}
	p.b.Emit(rawType, event)
}

// applyPatch emits one file event per patched file. All of them share the
// call id so the single output record pairs with the group.
func (p *parser) applyPatch(rawType string, ts time.Time, name, callID, patch string) {
	callID = p.b.RegisterCall(callID, name)
	files := parsePatch(patch)
	if len(files) == 0 {
		event := adapter.CallEvent(ts, hail.ToolCall{Name: name}, adapter.ToolKindGeneric, callID)
		event.Content = hail.TextContent(patch)
		p.b.Emit(rawType, event)
		return
	}

	for _, file := range files {
		var event hail.Event
		switch file.op {
		case patchAdd:
			event = adapter.CallEvent(ts, hail.FileCreate{Path: file.path}, adapter.ToolKindFileCreate, callID)
			body := file.body()
			event.Content = []hail.ContentBlock{hail.FileBlock(file.path, &body)}
		case patchDelete:
			event = adapter.CallEvent(ts, hail.FileDelete{Path: file.path}, adapter.ToolKindFileDelete, callID)
		default:
			event = adapter.CallEvent(ts, hail.FileEdit{Path: file.path, Diff: file.diff()}, adapter.ToolKindFileEdit, callID)
		}
		if file.moveTo != "" {
			event.SetAttr("patch.move_to", file.moveTo)
		}
		p.b.Emit(rawType, event)
	}
}

func (p *parser) callOutput(rawType string, ts time.Time, item responseItem) {
	out := decodeOutput(item.Output)
	name, _ := p.b.CallName(item.CallID)

	event := adapter.ResultEvent(ts, name, item.CallID, out.isError, hail.TextContent(out.text))
	if out.duration > 0 {
		ms := int64(out.duration * 1000)
		event.DurationMS = &ms
	}
	if out.exitCode != nil {
		code := *out.exitCode
		event.SetAttr("shell.exit_code", code)
		p.b.UpdateCall(item.CallID, func(call *hail.Event) {
			if shell, ok := call.Type.(hail.ShellCommand); ok {
				shell.ExitCode = &code
				call.Type = shell
			}
		})
	}
	p.b.Emit(rawType, event)
}

func (p *parser) eventMsg(line int, ts time.Time, raw json.RawMessage) {
	var msg eventMsgPayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		p.b.EmitCustom(line, string(EntryTypeEventMsg), string(EntryTypeEventMsg), ts, []hail.ContentBlock{hail.JSON(raw)})
		return
	}
	rawType := string(EntryTypeEventMsg) + "." + string(msg.Type)

	if msg.Type == EventMsgTypeTokenCount {
		event := hail.Event{Timestamp: ts, Type: hail.Custom{Name: string(msg.Type)}}
		if usage, ok := p.turnUsage(msg.Info); ok {
			event.SetAttr(hail.AttrInputTokens, usage.InputTokens)
			event.SetAttr(hail.AttrOutputTokens, usage.OutputTokens)
			if usage.CachedInputTokens > 0 {
				event.SetAttr("usage.cached_input_tokens", usage.CachedInputTokens)
			}
			if usage.ReasoningTokens > 0 {
				event.SetAttr("usage.reasoning_output_tokens", usage.ReasoningTokens)
			}
		}
		p.b.Emit(rawType, event)
		return
	}

	label := rawType
	text := msg.Message
	if text == "" {
		text = msg.Text
	}
	if !knownEventMsgs[msg.Type] {
		p.b.EmitCustom(line, rawType, label, ts, []hail.ContentBlock{hail.JSON(raw)})
		return
	}
	p.b.Emit(rawType, hail.Event{Timestamp: ts, Type: hail.Custom{Name: label}, Content: hail.TextContent(text)})
}

// turnUsage returns the usage of the latest turn. Older rollouts only carry
// running totals, so the delta against the previous total is used.
func (p *parser) turnUsage(info *tokenCountInfo) (tokenUsage, bool) {
	if info == nil {
		return tokenUsage{}, false
	}
	total := info.TotalTokenUsage
	defer func() { p.lastTotal = total }()

	if info.LastTokenUsage != nil {
		return *info.LastTokenUsage, true
	}
	return tokenUsage{
		InputTokens:       total.InputTokens - p.lastTotal.InputTokens,
		CachedInputTokens: total.CachedInputTokens - p.lastTotal.CachedInputTokens,
		OutputTokens:      total.OutputTokens - p.lastTotal.OutputTokens,
		ReasoningTokens:   total.ReasoningTokens - p.lastTotal.ReasoningTokens,
		TotalTokens:       total.TotalTokens - p.lastTotal.TotalTokens,
	}, true
}

type toolOutput struct {
	text     string
	exitCode *int
	duration float64
	isError  bool
}

// decodeOutput reads a tool output that may be plain text, a JSON string
// holding an envelope, or an envelope object.
func decodeOutput(raw json.RawMessage) toolOutput {
	if len(raw) == 0 {
		return toolOutput{}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}

	var env outputEnvelope
	if err := json.Unmarshal([]byte(text), &env); err == nil && (env.Metadata != nil || env.Success != nil || env.Output != "" || env.Content != "") {
		out := toolOutput{text: env.Output}
		if out.text == "" {
			out.text = env.Content
		}
		if env.Metadata != nil {
			out.exitCode = env.Metadata.ExitCode
			out.duration = env.Metadata.DurationSeconds
		}
		if env.Success != nil && !*env.Success {
			out.isError = true
		}
		if out.exitCode != nil && *out.exitCode != 0 {
			out.isError = true
		}
		return out
	}

	out := toolOutput{text: text}
	if code, ok := plainExitCode(text); ok {
		out.exitCode = &code
		out.isError = code != 0
	}
	return out
}

// plainExitCode parses the "Exit code: N" preamble newer CLIs print.
func plainExitCode(text string) (int, bool) {
	first, _, _ := strings.Cut(text, "\n")
	value, ok := strings.CutPrefix(strings.TrimSpace(first), "Exit code:")
	if !ok {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	return code, true
}

func decodeContent(raw json.RawMessage) []hail.ContentBlock {
	if len(raw) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return hail.TextContent(asString)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []hail.ContentBlock{hail.JSON(raw)}
	}

	blocks := make([]hail.ContentBlock, 0, len(items))
	for _, item := range items {
		var block contentBlock
		if err := json.Unmarshal(item, &block); err != nil {
			blocks = append(blocks, hail.JSON(item))
			continue
		}
		switch block.Type {
		case "input_text", "output_text", "text", "summary_text", "reasoning_text":
			if block.Text != "" {
				blocks = append(blocks, hail.Text(block.Text))
			}
		case "input_image":
			blocks = append(blocks, hail.Media(hail.BlockImage, block.ImageURL, ""))
		default:
			blocks = append(blocks, hail.JSON(item))
		}
	}
	return blocks
}

// injectedContext reports whether a user-role message is harness context
// rather than something the user typed.
func injectedContext(blocks []hail.ContentBlock) bool {
	for _, block := range blocks {
		if block.Type != hail.BlockText {
			continue
		}
		text := strings.TrimSpace(block.Text)
		return strings.HasPrefix(text, "<environment_context>") ||
			strings.HasPrefix(text, "<user_instructions>") ||
			strings.HasPrefix(text, "# AGENTS.md instructions")
	}
	return false
}
