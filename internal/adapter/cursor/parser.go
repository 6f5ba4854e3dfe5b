package cursor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"hailog/internal/adapter"
	"hailog/internal/hail"
)

type parser struct {
	b      *adapter.Builder
	result adapter.Result
}

// Parse converts Cursor conversation state. Store snapshots arrive as rows;
// JSON exports and chat panel dumps arrive as data.
func Parse(src adapter.Source) (adapter.Result, error) {
	p := &parser{b: adapter.NewBuilder(adapter.KindCursor, src, "cursor-composer")}
	p.result.Agent = hail.Agent{Provider: Provider, Tool: string(adapter.KindCursor)}
	p.result.Context.Attributes = make(map[string]any)

	if len(src.Rows) > 0 {
		p.rows(src.Rows)
	} else if err := p.document(src.Data); err != nil {
		return adapter.Result{}, adapter.Fail(adapter.KindCursor, src, err)
	}

	res, err := p.b.Result(p.result)
	if err != nil {
		return adapter.Result{}, adapter.Fail(adapter.KindCursor, src, err)
	}
	return res, nil
}

// rows walks a key-value snapshot. Diagnostic line numbers are 1-based row
// positions.
func (p *parser) rows(rows []adapter.Row) {
	var (
		composers []composerData
		chat      []byte
		broken    []adapter.Row
	)
	bubbles := make(map[string]map[string]bubble)

	for i, row := range rows {
		switch {
		case strings.HasPrefix(row.Key, ComposerPrefix):
			var c composerData
			if err := json.Unmarshal(row.Value, &c); err != nil {
				p.b.Diagnose(i+1, "composerData", "undecodable composer row")
				broken = append(broken, row)
				continue
			}
			if c.ComposerID == "" {
				c.ComposerID = strings.TrimPrefix(row.Key, ComposerPrefix)
			}
			composers = append(composers, c)

		case strings.HasPrefix(row.Key, BubblePrefix):
			composerID, bubbleID, ok := strings.Cut(strings.TrimPrefix(row.Key, BubblePrefix), ":")
			var bb bubble
			if !ok || json.Unmarshal(row.Value, &bb) != nil {
				p.b.Diagnose(i+1, "bubbleId", "undecodable bubble row "+row.Key)
				broken = append(broken, row)
				continue
			}
			if bb.BubbleID == "" {
				bb.BubbleID = bubbleID
			}
			if bubbles[composerID] == nil {
				bubbles[composerID] = make(map[string]bubble)
			}
			bubbles[composerID][bubbleID] = bb

		case row.Key == ChatDataKey:
			chat = row.Value

		default:
			p.b.Diagnose(i+1, row.Key, "row is not part of a conversation")
		}
	}

	sort.SliceStable(composers, func(i, j int) bool {
		return adapter.FlexibleTime(composers[i].CreatedAt).Before(adapter.FlexibleTime(composers[j].CreatedAt))
	})
	for _, c := range composers {
		p.composer(c, bubbles[c.ComposerID])
		delete(bubbles, c.ComposerID)
	}

	// Bubbles whose composer header is missing still belong to the record.
	orphans := make([]string, 0, len(bubbles))
	for id := range bubbles {
		orphans = append(orphans, id)
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		p.b.Diagnose(0, "bubbleId", "bubbles without composer "+id)
		p.composer(composerData{ComposerID: id}, bubbles[id])
	}

	if chat != nil {
		var data chatData
		if err := json.Unmarshal(chat, &data); err != nil {
			p.b.Diagnose(0, ChatDataKey, "undecodable chat data")
			broken = append(broken, adapter.Row{Key: ChatDataKey, Value: chat})
		} else {
			p.tabs(data.Tabs)
		}
	}

	for _, row := range broken {
		event := hail.Event{Type: hail.Custom{Name: "cursor.row"}, Content: []hail.ContentBlock{hail.JSON(row.Value)}}
		event.SetAttr("cursor.key", row.Key)
		p.b.Emit(row.Key, event)
	}
}

func (p *parser) composer(c composerData, bubbles map[string]bubble) {
	p.b.SetSchema("cursor-composer")
	if p.result.SessionID == "" {
		p.result.SessionID = c.ComposerID
	}
	if p.result.Context.Title == "" {
		p.result.Context.Title = c.Name
	}
	if c.ModelConfig != nil && p.result.Agent.Model == "" {
		p.result.Agent.Model = c.ModelConfig.ModelName
	}
	base := adapter.FlexibleTime(c.CreatedAt)
	if p.result.Context.CreatedAt.IsZero() {
		p.result.Context.CreatedAt = base
	}

	ordered := make([]bubble, 0, len(bubbles)+len(c.Inline))
	seen := make(map[string]bool, len(bubbles))
	for _, h := range c.Headers {
		bb, ok := bubbles[h.BubbleID]
		if !ok {
			p.b.Diagnose(0, "composerData", "header without bubble "+h.BubbleID)
			continue
		}
		ordered = append(ordered, bb)
		seen[h.BubbleID] = true
	}

	var rest []bubble
	for id, bb := range bubbles {
		if !seen[id] {
			rest = append(rest, bb)
		}
	}
	for _, raw := range c.Inline {
		var bb bubble
		if err := json.Unmarshal(raw, &bb); err != nil {
			p.b.Diagnose(0, "conversation", "undecodable inline bubble")
			continue
		}
		if bb.BubbleID == "" || !seen[bb.BubbleID] {
			rest = append(rest, bb)
			seen[bb.BubbleID] = true
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		ti, tj := adapter.FlexibleTime(rest[i].CreatedAt), adapter.FlexibleTime(rest[j].CreatedAt)
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return rest[i].BubbleID < rest[j].BubbleID
	})
	ordered = append(ordered, rest...)

	for _, bb := range ordered {
		p.bubble(c.ComposerID, bb, base)
	}
}

func (p *parser) bubble(composerID string, bb bubble, base time.Time) {
	ts := adapter.FlexibleTime(bb.CreatedAt)
	if ts.IsZero() {
		ts = base
	}
	if bb.ModelInfo != nil && p.result.Agent.Model == "" {
		p.result.Agent.Model = bb.ModelInfo.ModelName
	}

	var events []hail.Event
	switch bb.Type {
	case BubbleTypeUser:
		events = append(events, hail.Event{Timestamp: ts, Type: hail.UserMessage{}, Content: hail.TextContent(bb.Text)})
	case BubbleTypeAssistant:
		if bb.Thinking != nil && bb.Thinking.Text != "" {
			events = append(events, hail.Event{Timestamp: ts, Type: hail.Thinking{}, Content: hail.TextContent(bb.Thinking.Text)})
		}
		if strings.TrimSpace(bb.Text) != "" {
			events = append(events, hail.Event{Timestamp: ts, Type: hail.AgentMessage{}, Content: hail.TextContent(bb.Text)})
		}
		if bb.ToolFormer != nil && bb.ToolFormer.Name != "" {
			events = append(events, p.tool(bb.ToolFormer, ts)...)
		}
		if len(events) == 0 {
			events = append(events, hail.Event{Timestamp: ts, Type: hail.Custom{Name: "bubble.empty"}})
		}
	default:
		p.b.EmitCustom(0, "bubble", fmt.Sprintf("bubble.type.%d", bb.Type), ts, hail.TextContent(bb.Text))
		return
	}

	if bb.TokenCount != nil && (bb.TokenCount.InputTokens > 0 || bb.TokenCount.OutputTokens > 0) {
		events[0].SetAttr(hail.AttrInputTokens, bb.TokenCount.InputTokens)
		events[0].SetAttr(hail.AttrOutputTokens, bb.TokenCount.OutputTokens)
	}
	for _, event := range events {
		event.EventID = bb.BubbleID
		event.SetAttr("cursor.composer_id", composerID)
		p.b.Emit("bubble", event)
	}
}

func (p *parser) tool(tf *toolFormer, ts time.Time) []hail.Event {
	rawArgs := tf.RawArgs
	if rawArgs == "" {
		rawArgs = tf.Params
	}
	args, ok := adapter.DecodeArguments(rawArgs)
	if !ok {
		p.b.Diagnose(0, "toolFormerData", "undecodable arguments for "+tf.Name)
		args = map[string]any{}
	}

	typ, kind := adapter.Classify(tf.Name, args)
	if _, ok := typ.(hail.TaskStart); ok {
		typ, kind = hail.ToolCall{Name: tf.Name}, adapter.ToolKindGeneric
	}
	callID := p.b.RegisterCall(tf.ToolCallID, tf.Name)

	call := adapter.CallEvent(ts, typ, kind, callID)
	if strings.TrimSpace(rawArgs) != "" {
		call.Content = []hail.ContentBlock{hail.JSON([]byte(rawArgs))}
	}
	if tf.Status == "" && tf.Result == "" {
		return []hail.Event{call}
	}

	var content []hail.ContentBlock
	if tf.Result != "" {
		if json.Valid([]byte(tf.Result)) {
			content = []hail.ContentBlock{hail.JSON([]byte(tf.Result))}
		} else {
			content = hail.TextContent(tf.Result)
		}
	}
	result := adapter.ResultEvent(ts, tf.Name, callID, tf.Status == "error", content)
	if tf.Status != "" {
		result.SetAttr("cursor.status", tf.Status)
	}
	return []hail.Event{call, result}
}

// tabs handles the legacy chat panel state.
func (p *parser) tabs(tabs []chatTab) {
	p.b.SetSchema("cursor-chatdata")
	for _, tab := range tabs {
		if p.result.SessionID == "" {
			p.result.SessionID = tab.TabID
		}
		if p.result.Context.Title == "" {
			p.result.Context.Title = tab.ChatTitle
		}
		base := adapter.FlexibleTime(tab.LastSendTime)

		for _, cb := range tab.Bubbles {
			text := cb.Text
			if text == "" {
				text = cb.RawText
			}
			ts := adapter.FlexibleTime(cb.Timestamp)
			if ts.IsZero() {
				ts = base
			}

			var typ hail.EventType
			switch cb.Type {
			case "user":
				typ = hail.UserMessage{}
			case "ai", "assistant":
				typ = hail.AgentMessage{}
				if p.result.Agent.Model == "" {
					p.result.Agent.Model = cb.ModelType
				}
			default:
				p.b.EmitCustom(0, "chatdata.bubble", "bubble."+cb.Type, ts, hail.TextContent(text))
				continue
			}
			event := hail.Event{EventID: cb.ID, Timestamp: ts, Type: typ, Content: hail.TextContent(text)}
			event.SetAttr("cursor.tab_id", tab.TabID)
			p.b.Emit("chatdata.bubble", event)
		}
	}
}

// document handles JSON exports: chat panel dumps, composer records or
// flat message lists.
func (p *parser) document(data []byte) error {
	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode conversation: %w", err)
	}

	if len(doc.Tabs) > 0 {
		p.tabs(doc.Tabs)
		return nil
	}

	if len(doc.Messages) == 0 {
		var c composerData
		if err := json.Unmarshal(data, &c); err == nil && len(c.Inline) > 0 {
			p.composer(c, nil)
		}
		return nil
	}

	p.b.SetSchema("cursor-export")
	for _, id := range []string{doc.ConversationID, doc.CamelID, doc.ComposerID} {
		if p.result.SessionID == "" {
			p.result.SessionID = id
		}
	}
	p.result.Context.Title = doc.Title

	for i, msg := range doc.Messages {
		text := msg.Content
		if text == "" {
			text = msg.Text
		}
		ts := adapter.FlexibleTime(msg.Timestamp)

		var typ hail.EventType
		switch msg.Role {
		case "user":
			typ = hail.UserMessage{}
		case "assistant", "ai":
			typ = hail.AgentMessage{}
		case "system":
			typ = hail.SystemMessage{}
		default:
			p.b.EmitCustom(i+1, "message", "message."+msg.Role, ts, hail.TextContent(text))
			continue
		}
		p.b.Emit("message", hail.Event{Timestamp: ts, Type: typ, Content: hail.TextContent(text)})
	}
	return nil
}
