// Package codex converts Codex CLI rollout logs into canonical events.
package codex

import "encoding/json"

// EntryType represents the top-level "type" field values observed in Codex JSONL logs.
type EntryType string

const (
	EntryTypeSessionMeta  EntryType = "session_meta"
	EntryTypeResponseItem EntryType = "response_item"
	EntryTypeEventMsg     EntryType = "event_msg"
	EntryTypeTurnContext  EntryType = "turn_context"
	EntryTypeCompacted    EntryType = "compacted"
)

// ResponseItemType captures the "payload.type" values in response_item entries.
type ResponseItemType string

const (
	ResponseItemTypeMessage              ResponseItemType = "message"
	ResponseItemTypeReasoning            ResponseItemType = "reasoning"
	ResponseItemTypeFunctionCall         ResponseItemType = "function_call"
	ResponseItemTypeFunctionCallOutput   ResponseItemType = "function_call_output"
	ResponseItemTypeCustomToolCall       ResponseItemType = "custom_tool_call"
	ResponseItemTypeCustomToolCallOutput ResponseItemType = "custom_tool_call_output"
	ResponseItemTypeLocalShellCall       ResponseItemType = "local_shell_call"
	ResponseItemTypeWebSearchCall        ResponseItemType = "web_search_call"
)

// EventMsgType captures the "payload.type" values in event_msg entries.
type EventMsgType string

const (
	EventMsgTypeTokenCount     EventMsgType = "token_count"
	EventMsgTypeAgentReasoning EventMsgType = "agent_reasoning"
	EventMsgTypeUserMessage    EventMsgType = "user_message"
	EventMsgTypeAgentMessage   EventMsgType = "agent_message"
	EventMsgTypeTurnAborted    EventMsgType = "turn_aborted"
)

// knownEventMsgs are mirrored or bookkeeping event_msg payloads that carry
// nothing beyond what response_item records already hold.
var knownEventMsgs = map[EventMsgType]bool{
	"agent_reasoning":               true,
	"agent_reasoning_raw_content":   true,
	"agent_reasoning_section_break": true,
	"user_message":                  true,
	"agent_message":                 true,
	"turn_aborted":                  true,
	"task_started":                  true,
	"task_complete":                 true,
	"exec_command_begin":            true,
	"exec_command_end":              true,
	"patch_apply_begin":             true,
	"patch_apply_end":               true,
	"entered_review_mode":           true,
	"exited_review_mode":            true,
}

// PayloadRole captures the "payload.role" values observed in Codex response items.
type PayloadRole string

const (
	PayloadRoleUser      PayloadRole = "user"
	PayloadRoleAssistant PayloadRole = "assistant"
	PayloadRoleDeveloper PayloadRole = "developer"
	PayloadRoleSystem    PayloadRole = "system"
)

// Provider is recorded as the agent provider for every Codex session.
const Provider = "openai"

type rawRecord struct {
	Timestamp  string          `json:"timestamp"`
	Type       string          `json:"type"`
	RecordType string          `json:"record_type"`
	Payload    json.RawMessage `json:"payload"`
}

type sessionMetaPayload struct {
	ID           string   `json:"id"`
	Timestamp    string   `json:"timestamp"`
	CWD          string   `json:"cwd"`
	Originator   string   `json:"originator"`
	CLIVersion   string   `json:"cli_version"`
	Instructions *string  `json:"instructions"`
	Git          *gitInfo `json:"git"`
}

type gitInfo struct {
	CommitHash    string `json:"commit_hash"`
	Branch        string `json:"branch"`
	RepositoryURL string `json:"repository_url"`
}

type turnContextPayload struct {
	CWD            string `json:"cwd"`
	Model          string `json:"model"`
	Effort         string `json:"effort"`
	ApprovalPolicy string `json:"approval_policy"`
}

type responseItem struct {
	Type      ResponseItemType `json:"type"`
	Role      PayloadRole      `json:"role"`
	Name      string           `json:"name"`
	Arguments string           `json:"arguments"`
	Input     string           `json:"input"`
	CallID    string           `json:"call_id"`
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Output    json.RawMessage  `json:"output"`
	Content   json.RawMessage  `json:"content"`
	Summary   json.RawMessage  `json:"summary"`
	Action    *shellAction     `json:"action"`
}

type shellAction struct {
	Type             string   `json:"type"`
	Command          []string `json:"command"`
	WorkingDirectory string   `json:"working_directory"`
	Query            string   `json:"query"`
	URL              string   `json:"url"`
}

type contentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL string `json:"image_url"`
}

// outputEnvelope is the JSON shape function_call_output uses for shell
// results.
type outputEnvelope struct {
	Output   string `json:"output"`
	Content  string `json:"content"`
	Success  *bool  `json:"success"`
	Metadata *struct {
		ExitCode        *int    `json:"exit_code"`
		DurationSeconds float64 `json:"duration_seconds"`
	} `json:"metadata"`
}

type tokenUsage struct {
	InputTokens       int64 `json:"input_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
	ReasoningTokens   int64 `json:"reasoning_output_tokens"`
	TotalTokens       int64 `json:"total_tokens"`
}

type tokenCountInfo struct {
	TotalTokenUsage tokenUsage  `json:"total_token_usage"`
	LastTokenUsage  *tokenUsage `json:"last_token_usage"`
}

type eventMsgPayload struct {
	Type    EventMsgType    `json:"type"`
	Message string          `json:"message"`
	Text    string          `json:"text"`
	Info    *tokenCountInfo `json:"info"`
}

type legacyMeta struct {
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Git       *gitInfo `json:"git"`
}
