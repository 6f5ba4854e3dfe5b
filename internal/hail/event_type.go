package hail

import (
	"encoding/json"
	"fmt"
)

// EventKind is the discriminant of an EventType.
type EventKind string

const (
	KindUserMessage   EventKind = "UserMessage"
	KindAgentMessage  EventKind = "AgentMessage"
	KindSystemMessage EventKind = "SystemMessage"
	KindThinking      EventKind = "Thinking"
	KindToolCall      EventKind = "ToolCall"
	KindToolResult    EventKind = "ToolResult"
	KindFileRead      EventKind = "FileRead"
	KindFileEdit      EventKind = "FileEdit"
	KindFileCreate    EventKind = "FileCreate"
	KindFileDelete    EventKind = "FileDelete"
	KindCodeSearch    EventKind = "CodeSearch"
	KindFileSearch    EventKind = "FileSearch"
	KindShellCommand  EventKind = "ShellCommand"
	KindWebSearch     EventKind = "WebSearch"
	KindWebFetch      EventKind = "WebFetch"
	KindImageGenerate EventKind = "ImageGenerate"
	KindVideoGenerate EventKind = "VideoGenerate"
	KindAudioGenerate EventKind = "AudioGenerate"
	KindTaskStart     EventKind = "TaskStart"
	KindTaskEnd       EventKind = "TaskEnd"
	KindCustom        EventKind = "Custom"
)

// EventType is the closed set of event variants. Only types in this file
// implement it.
type EventType interface {
	Kind() EventKind
	eventType()
}

type (
	UserMessage   struct{}
	AgentMessage  struct{}
	SystemMessage struct{}
	Thinking      struct{}

	ToolCall struct {
		Name string `json:"name"`
	}
	ToolResult struct {
		Name    string `json:"name"`
		IsError bool   `json:"is_error"`
		CallID  string `json:"call_id,omitempty"`
	}

	FileRead struct {
		Path string `json:"path"`
	}
	FileEdit struct {
		Path string `json:"path"`
		Diff string `json:"diff,omitempty"`
	}
	FileCreate struct {
		Path string `json:"path"`
	}
	FileDelete struct {
		Path string `json:"path"`
	}

	CodeSearch struct {
		Query string `json:"query"`
	}
	FileSearch struct {
		Pattern string `json:"pattern"`
	}
	ShellCommand struct {
		Command  string `json:"command"`
		ExitCode *int   `json:"exit_code,omitempty"`
	}
	WebSearch struct {
		Query string `json:"query"`
	}
	WebFetch struct {
		URL string `json:"url"`
	}

	ImageGenerate struct {
		Prompt string `json:"prompt"`
	}
	VideoGenerate struct {
		Prompt string `json:"prompt"`
	}
	AudioGenerate struct {
		Prompt string `json:"prompt"`
	}

	TaskStart struct {
		Title string `json:"title,omitempty"`
	}
	TaskEnd struct {
		Summary string `json:"summary,omitempty"`
	}

	// Custom holds anything an adapter could not map onto a specific variant.
	Custom struct {
		Name string `json:"kind"`
	}
)

func (UserMessage) Kind() EventKind   { return KindUserMessage }
func (AgentMessage) Kind() EventKind  { return KindAgentMessage }
func (SystemMessage) Kind() EventKind { return KindSystemMessage }
func (Thinking) Kind() EventKind      { return KindThinking }
func (ToolCall) Kind() EventKind      { return KindToolCall }
func (ToolResult) Kind() EventKind    { return KindToolResult }
func (FileRead) Kind() EventKind      { return KindFileRead }
func (FileEdit) Kind() EventKind      { return KindFileEdit }
func (FileCreate) Kind() EventKind    { return KindFileCreate }
func (FileDelete) Kind() EventKind    { return KindFileDelete }
func (CodeSearch) Kind() EventKind    { return KindCodeSearch }
func (FileSearch) Kind() EventKind    { return KindFileSearch }
func (ShellCommand) Kind() EventKind  { return KindShellCommand }
func (WebSearch) Kind() EventKind     { return KindWebSearch }
func (WebFetch) Kind() EventKind      { return KindWebFetch }
func (ImageGenerate) Kind() EventKind { return KindImageGenerate }
func (VideoGenerate) Kind() EventKind { return KindVideoGenerate }
func (AudioGenerate) Kind() EventKind { return KindAudioGenerate }
func (TaskStart) Kind() EventKind     { return KindTaskStart }
func (TaskEnd) Kind() EventKind       { return KindTaskEnd }
func (Custom) Kind() EventKind        { return KindCustom }

func (UserMessage) eventType()   {}
func (AgentMessage) eventType()  {}
func (SystemMessage) eventType() {}
func (Thinking) eventType()      {}
func (ToolCall) eventType()      {}
func (ToolResult) eventType()    {}
func (FileRead) eventType()      {}
func (FileEdit) eventType()      {}
func (FileCreate) eventType()    {}
func (FileDelete) eventType()    {}
func (CodeSearch) eventType()    {}
func (FileSearch) eventType()    {}
func (ShellCommand) eventType()  {}
func (WebSearch) eventType()     {}
func (WebFetch) eventType()      {}
func (ImageGenerate) eventType() {}
func (VideoGenerate) eventType() {}
func (AudioGenerate) eventType() {}
func (TaskStart) eventType()     {}
func (TaskEnd) eventType()       {}
func (Custom) eventType()        {}

// Path returns the file path carried by file-oriented variants.
func Path(t EventType) (string, bool) {
	switch v := t.(type) {
	case FileRead:
		return v.Path, true
	case FileEdit:
		return v.Path, true
	case FileCreate:
		return v.Path, true
	case FileDelete:
		return v.Path, true
	}
	return "", false
}

// IsMessage reports whether kind is a conversational message.
func IsMessage(kind EventKind) bool {
	switch kind {
	case KindUserMessage, KindAgentMessage, KindSystemMessage:
		return true
	}
	return false
}

// IsInvocation reports whether kind represents the agent invoking a tool.
func IsInvocation(kind EventKind) bool {
	switch kind {
	case KindToolCall, KindFileRead, KindFileEdit, KindFileCreate, KindFileDelete,
		KindCodeSearch, KindFileSearch, KindShellCommand, KindWebSearch, KindWebFetch,
		KindImageGenerate, KindVideoGenerate, KindAudioGenerate:
		return true
	}
	return false
}

type taggedType struct {
	Type EventKind       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func marshalEventType(t EventType) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("event type is nil")
	}
	tagged := taggedType{Type: t.Kind()}
	switch t.(type) {
	case UserMessage, AgentMessage, SystemMessage, Thinking:
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		tagged.Data = data
	}
	return json.Marshal(tagged)
}

func unmarshalEventType(raw []byte) (EventType, error) {
	var tagged taggedType
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, fmt.Errorf("unmarshal event type: %w", err)
	}

	var target EventType
	switch tagged.Type {
	case KindUserMessage:
		return UserMessage{}, nil
	case KindAgentMessage:
		return AgentMessage{}, nil
	case KindSystemMessage:
		return SystemMessage{}, nil
	case KindThinking:
		return Thinking{}, nil
	case KindToolCall:
		target = decodeData[ToolCall](tagged.Data)
	case KindToolResult:
		target = decodeData[ToolResult](tagged.Data)
	case KindFileRead:
		target = decodeData[FileRead](tagged.Data)
	case KindFileEdit:
		target = decodeData[FileEdit](tagged.Data)
	case KindFileCreate:
		target = decodeData[FileCreate](tagged.Data)
	case KindFileDelete:
		target = decodeData[FileDelete](tagged.Data)
	case KindCodeSearch:
		target = decodeData[CodeSearch](tagged.Data)
	case KindFileSearch:
		target = decodeData[FileSearch](tagged.Data)
	case KindShellCommand:
		target = decodeData[ShellCommand](tagged.Data)
	case KindWebSearch:
		target = decodeData[WebSearch](tagged.Data)
	case KindWebFetch:
		target = decodeData[WebFetch](tagged.Data)
	case KindImageGenerate:
		target = decodeData[ImageGenerate](tagged.Data)
	case KindVideoGenerate:
		target = decodeData[VideoGenerate](tagged.Data)
	case KindAudioGenerate:
		target = decodeData[AudioGenerate](tagged.Data)
	case KindTaskStart:
		target = decodeData[TaskStart](tagged.Data)
	case KindTaskEnd:
		target = decodeData[TaskEnd](tagged.Data)
	case KindCustom:
		target = decodeData[Custom](tagged.Data)
	default:
		return nil, fmt.Errorf("unknown event type %q", tagged.Type)
	}
	if target == nil {
		return nil, fmt.Errorf("invalid %s payload", tagged.Type)
	}
	return target, nil
}

// decodeData returns nil (as EventType) when data is present but malformed.
func decodeData[T EventType](data json.RawMessage) EventType {
	var value T
	if len(data) == 0 {
		return value
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil
	}
	return value
}
