package hail

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrMissingHeader is returned when a HAIL stream does not start with a header record.
var ErrMissingHeader = errors.New("hail stream has no header record")

const (
	recordHeader = "header"
	recordEvent  = "event"
	recordStats  = "stats"
)

type eventJSON struct {
	EventID    string          `json:"event_id"`
	Timestamp  time.Time       `json:"timestamp"`
	EventType  json.RawMessage `json:"event_type"`
	TaskID     string          `json:"task_id,omitempty"`
	Content    []ContentBlock  `json:"content"`
	DurationMS *int64          `json:"duration_ms,omitempty"`
	Attributes map[string]any  `json:"attributes"`
}

type headerRecord struct {
	Type      string         `json:"type"`
	Version   string         `json:"version"`
	SessionID string         `json:"session_id"`
	Agent     Agent          `json:"agent"`
	Context   SessionContext `json:"context"`
}

type eventRecord struct {
	Type string `json:"type"`
	eventJSON
}

type statsRecord struct {
	Type string `json:"type"`
	Stats
}

// MarshalJSON writes the event with its tagged type.
func (e Event) MarshalJSON() ([]byte, error) {
	doc, err := e.toJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads an event written by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var doc eventJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return e.fromJSON(doc)
}

func (e Event) toJSON() (eventJSON, error) {
	typ, err := marshalEventType(e.Type)
	if err != nil {
		return eventJSON{}, fmt.Errorf("event %s: %w", e.EventID, err)
	}
	content := e.Content
	if content == nil {
		content = []ContentBlock{}
	}
	attrs := e.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return eventJSON{
		EventID:    e.EventID,
		Timestamp:  e.Timestamp.UTC(),
		EventType:  typ,
		TaskID:     e.TaskID,
		Content:    content,
		DurationMS: e.DurationMS,
		Attributes: attrs,
	}, nil
}

func (e *Event) fromJSON(doc eventJSON) error {
	typ, err := unmarshalEventType(doc.EventType)
	if err != nil {
		return fmt.Errorf("event %s: %w", doc.EventID, err)
	}
	*e = Event{
		EventID:    doc.EventID,
		Timestamp:  doc.Timestamp,
		Type:       typ,
		TaskID:     doc.TaskID,
		Content:    doc.Content,
		DurationMS: doc.DurationMS,
		Attributes: doc.Attributes,
	}
	return nil
}

// WriteJSONL writes s in the line-oriented wire format: one header record,
// one record per event, and a trailing stats record. Output is byte-stable
// for semantically identical sessions.
func WriteJSONL(w io.Writer, s *Session) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	ctx := s.Context
	ctx.Tags = NormalizeTags(ctx.Tags)
	ctx.CreatedAt = ctx.CreatedAt.UTC()
	ctx.UpdatedAt = ctx.UpdatedAt.UTC()
	if ctx.Attributes == nil {
		ctx.Attributes = map[string]any{}
	}

	header := headerRecord{
		Type:      recordHeader,
		Version:   s.Version,
		SessionID: s.SessionID,
		Agent:     s.Agent,
		Context:   ctx,
	}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, event := range s.Events {
		doc, err := event.toJSON()
		if err != nil {
			return err
		}
		if err := enc.Encode(eventRecord{Type: recordEvent, eventJSON: doc}); err != nil {
			return fmt.Errorf("write event %s: %w", event.EventID, err)
		}
	}

	if err := enc.Encode(statsRecord{Type: recordStats, Stats: s.Stats}); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}

// ReadJSONL parses the wire format. A missing stats record is tolerated;
// the returned stats are then zero apart from EventCount.
func ReadJSONL(r io.Reader) (*Session, error) {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 16 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	var (
		session   *Session
		haveStats bool
		lineNo    int
	)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if session == nil && probe.Type != recordHeader {
			return nil, ErrMissingHeader
		}

		switch probe.Type {
		case recordHeader:
			if session != nil {
				return nil, fmt.Errorf("line %d: duplicate header", lineNo)
			}
			var header headerRecord
			if err := json.Unmarshal(line, &header); err != nil {
				return nil, fmt.Errorf("line %d: unmarshal header: %w", lineNo, err)
			}
			session = &Session{
				Version:   header.Version,
				SessionID: header.SessionID,
				Agent:     header.Agent,
				Context:   header.Context,
			}
		case recordEvent:
			var rec eventRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, fmt.Errorf("line %d: unmarshal event: %w", lineNo, err)
			}
			var event Event
			if err := event.fromJSON(rec.eventJSON); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			session.Events = append(session.Events, event)
		case recordStats:
			var rec statsRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, fmt.Errorf("line %d: unmarshal stats: %w", lineNo, err)
			}
			session.Stats = rec.Stats
			haveStats = true
		default:
			return nil, fmt.Errorf("line %d: unknown record type %q", lineNo, probe.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan hail stream: %w", err)
	}
	if session == nil {
		return nil, ErrMissingHeader
	}
	if !haveStats {
		session.Stats = Stats{EventCount: len(session.Events)}
	}
	return session, nil
}
