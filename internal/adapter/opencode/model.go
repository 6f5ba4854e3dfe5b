// Package opencode converts exported OpenCode sessions into canonical
// events.
package opencode

import "encoding/json"

// PartType is the "type" field of a message part.
type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeReasoning  PartType = "reasoning"
	PartTypeTool       PartType = "tool"
	PartTypeFile       PartType = "file"
	PartTypeStepStart  PartType = "step-start"
	PartTypeStepFinish PartType = "step-finish"
	PartTypeSnapshot   PartType = "snapshot"
	PartTypePatch      PartType = "patch"
	PartTypeAgent      PartType = "agent"
	PartTypeCompaction PartType = "compaction"
)

// bookkeepingParts carry run metadata rather than conversation content.
var bookkeepingParts = map[PartType]bool{
	PartTypeStepStart:  true,
	PartTypeStepFinish: true,
	PartTypeSnapshot:   true,
	PartTypePatch:      true,
	PartTypeAgent:      true,
	PartTypeCompaction: true,
}

// ToolStatus is the lifecycle state of a tool part.
type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusError     ToolStatus = "error"
)

type document struct {
	Info     sessionInfo `json:"info"`
	Messages []message   `json:"messages"`
}

type sessionInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Version   string    `json:"version"`
	ProjectID string    `json:"projectID"`
	ParentID  string    `json:"parentID"`
	Directory string    `json:"directory"`
	Time      timeRange `json:"time"`
}

type timeRange struct {
	Created   int64 `json:"created"`
	Updated   int64 `json:"updated"`
	Completed int64 `json:"completed"`
	Start     int64 `json:"start"`
	End       int64 `json:"end"`
}

type message struct {
	Info  messageInfo       `json:"info"`
	Parts []json.RawMessage `json:"parts"`
}

type messageInfo struct {
	ID         string          `json:"id"`
	Role       string          `json:"role"`
	ModelID    string          `json:"modelID"`
	ProviderID string          `json:"providerID"`
	Mode       string          `json:"mode"`
	Time       timeRange       `json:"time"`
	Tokens     *tokens         `json:"tokens"`
	Cost       float64         `json:"cost"`
	Error      json.RawMessage `json:"error"`
}

type tokens struct {
	Input     int64 `json:"input"`
	Output    int64 `json:"output"`
	Reasoning int64 `json:"reasoning"`
	Cache     struct {
		Read  int64 `json:"read"`
		Write int64 `json:"write"`
	} `json:"cache"`
}

type part struct {
	ID        string     `json:"id"`
	Type      PartType   `json:"type"`
	Text      string     `json:"text"`
	Synthetic bool       `json:"synthetic"`
	CallID    string     `json:"callID"`
	Tool      string     `json:"tool"`
	State     *toolState `json:"state"`
	Mime      string     `json:"mime"`
	Filename  string     `json:"filename"`
	URL       string     `json:"url"`
	Name      string     `json:"name"`
	Time      *timeRange `json:"time"`
}

type toolState struct {
	Status   ToolStatus      `json:"status"`
	Input    json.RawMessage `json:"input"`
	Output   string          `json:"output"`
	Error    string          `json:"error"`
	Title    string          `json:"title"`
	Metadata json.RawMessage `json:"metadata"`
	Time     *timeRange      `json:"time"`
}
