// Package cursor converts Cursor conversation state, read from its
// embedded key-value store, into canonical events.
package cursor

import "encoding/json"

// Key layout of Cursor's state database.
const (
	ComposerPrefix = "composerData:"
	BubblePrefix   = "bubbleId:"
	ChatDataKey    = "workbench.panel.aichat.view.aichat.chatdata"
)

// Bubble types used by the composer store.
const (
	BubbleTypeUser      = 1
	BubbleTypeAssistant = 2
)

// Provider is recorded as the agent provider for every Cursor session.
const Provider = "cursor"

type composerData struct {
	ComposerID  string            `json:"composerId"`
	Name        string            `json:"name"`
	CreatedAt   json.RawMessage   `json:"createdAt"`
	UpdatedAt   json.RawMessage   `json:"lastUpdatedAt"`
	Headers     []bubbleHeader    `json:"fullConversationHeadersOnly"`
	Inline      []json.RawMessage `json:"conversation"`
	ModelConfig *struct {
		ModelName string `json:"modelName"`
	} `json:"modelConfig"`
}

type bubbleHeader struct {
	BubbleID string `json:"bubbleId"`
	Type     int    `json:"type"`
}

type bubble struct {
	BubbleID   string          `json:"bubbleId"`
	Type       int             `json:"type"`
	Text       string          `json:"text"`
	CreatedAt  json.RawMessage `json:"createdAt"`
	Thinking   *thinking       `json:"thinking"`
	ToolFormer *toolFormer     `json:"toolFormerData"`
	TokenCount *tokenCount     `json:"tokenCount"`
	ModelInfo  *struct {
		ModelName string `json:"modelName"`
	} `json:"modelInfo"`
}

type thinking struct {
	Text string `json:"text"`
}

type toolFormer struct {
	Name       string `json:"name"`
	ToolCallID string `json:"toolCallId"`
	Status     string `json:"status"`
	RawArgs    string `json:"rawArgs"`
	Params     string `json:"params"`
	Result     string `json:"result"`
}

type tokenCount struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}

// chatData is the legacy chat panel state.
type chatData struct {
	Tabs []chatTab `json:"tabs"`
}

type chatTab struct {
	TabID        string          `json:"tabId"`
	ChatTitle    string          `json:"chatTitle"`
	LastSendTime json.RawMessage `json:"lastSendTime"`
	Bubbles      []chatBubble    `json:"bubbles"`
}

type chatBubble struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	RawText   string          `json:"rawText"`
	ModelType string          `json:"modelType"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// exportDocument is a single-conversation JSON export.
type exportDocument struct {
	ConversationID string          `json:"conversation_id"`
	CamelID        string          `json:"conversationId"`
	ComposerID     string          `json:"composerId"`
	Title          string          `json:"title"`
	Messages       []exportMessage `json:"messages"`
	Tabs           []chatTab       `json:"tabs"`
}

type exportMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Text      string          `json:"text"`
	Timestamp json.RawMessage `json:"timestamp"`
}
