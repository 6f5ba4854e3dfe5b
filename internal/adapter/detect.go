package adapter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
)

// Detect picks the adapter for src. Store snapshots always go to the
// Cursor adapter; otherwise an explicit hint wins, then the shape of the
// first JSON record or document, then the file extension.
func Detect(src Source) (Kind, error) {
	if len(src.Rows) > 0 {
		return KindCursor, nil
	}
	if src.Hint != "" {
		return src.Hint, nil
	}

	trimmed := bytes.TrimSpace(src.Data)
	if len(trimmed) == 0 {
		return "", ErrNoEvents
	}

	if kind, ok := sniffDocument(trimmed); ok {
		return kind, nil
	}
	if kind, ok := sniffRecord(firstLine(trimmed)); ok {
		return kind, nil
	}

	switch strings.ToLower(filepath.Ext(src.Name)) {
	case ".hail":
		return KindHAIL, nil
	}
	return "", ErrUnknownFormat
}

// sniffDocument recognizes single-document JSON shapes.
func sniffDocument(data []byte) (Kind, bool) {
	if data[0] != '{' || !json.Valid(data) {
		return "", false
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", false
	}
	if _, ok := doc["messages"]; ok {
		if _, ok := doc["info"]; ok {
			return KindOpenCode, true
		}
		if hasAny(doc, "conversation_id", "conversationId", "composerId", "tabs") {
			return KindCursor, true
		}
	}
	if _, ok := doc["tabs"]; ok {
		return KindCursor, true
	}
	return "", false
}

// sniffRecord recognizes the first record of a line-oriented transcript.
func sniffRecord(line []byte) (Kind, bool) {
	var rec map[string]json.RawMessage
	if err := json.Unmarshal(line, &rec); err != nil {
		return "", false
	}

	recType := stringField(rec, "type")
	switch recType {
	case "header":
		if strings.HasPrefix(stringField(rec, "version"), "hail") {
			return KindHAIL, true
		}
	case "session_meta", "response_item", "event_msg", "turn_context":
		return KindCodex, true
	case "user", "assistant", "summary", "system", "file-history-snapshot":
		return KindClaude, true
	}

	if hasAny(rec, "sessionId", "parentUuid", "leafUuid") {
		return KindClaude, true
	}
	// Legacy Codex rollouts open with a bare metadata object.
	if hasAny(rec, "id") && hasAny(rec, "timestamp") && hasAny(rec, "instructions", "git") {
		return KindCodex, true
	}
	return "", false
}

func firstLine(data []byte) []byte {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) > 0 {
			return line
		}
	}
	return nil
}

func hasAny(doc map[string]json.RawMessage, keys ...string) bool {
	for _, key := range keys {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	return false
}

func stringField(doc map[string]json.RawMessage, key string) string {
	raw, ok := doc[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}
