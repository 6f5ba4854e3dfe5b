// Package adapter defines the contract shared by the per-tool transcript
// adapters and the helpers they use to emit canonical events.
package adapter

import (
	"errors"
	"fmt"

	"hailog/internal/hail"
)

// Kind identifies one adapter variant. The set is closed.
type Kind string

const (
	KindHAIL     Kind = "hail"
	KindClaude   Kind = "claude-code"
	KindCodex    Kind = "codex"
	KindOpenCode Kind = "opencode"
	KindCursor   Kind = "cursor"
)

// Kinds lists every adapter variant in dispatch order.
var Kinds = []Kind{KindHAIL, KindClaude, KindCodex, KindOpenCode, KindCursor}

// ParseKind resolves a user-supplied adapter name.
func ParseKind(value string) (Kind, error) {
	switch value {
	case "hail":
		return KindHAIL, nil
	case "claude", "claude-code":
		return KindClaude, nil
	case "codex":
		return KindCodex, nil
	case "opencode":
		return KindOpenCode, nil
	case "cursor":
		return KindCursor, nil
	}
	return "", fmt.Errorf("unknown source kind: %s", value)
}

var (
	// ErrNoEvents is returned when a transcript yields zero events.
	ErrNoEvents = errors.New("transcript produced no events")
	// ErrUnknownFormat is returned when no adapter recognizes the input.
	ErrUnknownFormat = errors.New("unrecognized transcript format")
)

// Row is one key/value pair read from an embedded store.
type Row struct {
	Key   string
	Value []byte
}

// Source is a raw transcript handed to an adapter. Data holds byte-stream
// transcripts; Rows holds snapshots of embedded key/value stores.
type Source struct {
	Name string
	Hint Kind
	Data []byte
	Rows []Row
}

// Diagnostic records something an adapter noticed but did not fail on.
type Diagnostic struct {
	Source  string
	Line    int
	RawType string
	Message string
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: %s (%s)", d.Source, d.Line, d.Message, d.RawType)
	}
	return fmt.Sprintf("%s: %s (%s)", d.Source, d.Message, d.RawType)
}

// Result is everything an adapter recovers from one source.
type Result struct {
	SessionID   string
	Agent       hail.Agent
	Context     hail.SessionContext
	Events      []hail.Event
	Diagnostics []Diagnostic
}

// ParseError reports an adapter failure for one transcript.
type ParseError struct {
	Adapter Kind
	Source  string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Adapter == "" {
		return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s adapter: parse %s: %v", e.Adapter, e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Fail wraps err as a ParseError for the given adapter and source.
func Fail(kind Kind, src Source, err error) error {
	return &ParseError{Adapter: kind, Source: src.Name, Err: err}
}
