// Package normalize turns raw transcripts into a canonical session: it
// dispatches each source to its adapter, merges the streams, recovers call
// ids, balances task boundaries and computes stats.
package normalize

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"

	"hailog/internal/adapter"
	"hailog/internal/adapter/claude"
	"hailog/internal/adapter/codex"
	"hailog/internal/adapter/cursor"
	"hailog/internal/adapter/hailfile"
	"hailog/internal/adapter/opencode"
	"hailog/internal/hail"
)

// AttrSyntheticTaskEnds lists, in the session context, the task ids whose
// end marker was inserted by balancing.
const AttrSyntheticTaskEnds = "normalize.synthetic_task_ends"

// AttrOrphanTaskEnds lists the task ids whose unmatched end marker was
// demoted to an OrphanTaskEnd custom event.
const AttrOrphanTaskEnds = "normalize.orphan_task_ends"

// OrphanTaskEnd is the custom kind of a TaskEnd that closed no open task.
const OrphanTaskEnd = "orphan_task_end"

// ErrNoSources is returned when Normalize is called without input.
var ErrNoSources = errors.New("no transcript sources given")

const titleWidth = 80

var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("hailog:session"))

// Options tunes a normalization run.
type Options struct {
	Logger      *slog.Logger
	DefaultTags []string
}

// SourceReport describes what one adapter produced.
type SourceReport struct {
	Name        string
	Kind        adapter.Kind
	Events      int
	Diagnostics []adapter.Diagnostic
}

// Report summarizes the corrections a run applied.
type Report struct {
	Sources           []SourceReport
	SyntheticTaskEnds []string
	OrphanTaskEnds    []string
	RecoveredCallIDs  int
}

// Parse detects the adapter for src and runs it.
func Parse(src adapter.Source) (adapter.Result, adapter.Kind, error) {
	kind, err := adapter.Detect(src)
	if err != nil {
		return adapter.Result{}, "", adapter.Fail("", src, err)
	}

	var res adapter.Result
	switch kind {
	case adapter.KindHAIL:
		res, err = hailfile.Parse(src)
	case adapter.KindClaude:
		res, err = claude.Parse(src)
	case adapter.KindCodex:
		res, err = codex.Parse(src)
	case adapter.KindOpenCode:
		res, err = opencode.Parse(src)
	case adapter.KindCursor:
		res, err = cursor.Parse(src)
	default:
		return adapter.Result{}, kind, adapter.Fail(kind, src, adapter.ErrUnknownFormat)
	}
	if err != nil {
		return adapter.Result{}, kind, err
	}
	if len(res.Events) == 0 {
		return adapter.Result{}, kind, adapter.Fail(kind, src, adapter.ErrNoEvents)
	}
	return res, kind, nil
}

// Normalize builds one canonical session from sources given in arrival
// order. Any adapter failure aborts the run; no partial session is
// returned.
func Normalize(sources []adapter.Source, opts Options) (*hail.Session, Report, error) {
	if len(sources) == 0 {
		return nil, Report{}, ErrNoSources
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var report Report
	results := make([]adapter.Result, 0, len(sources))
	for _, src := range sources {
		res, kind, err := Parse(src)
		if err != nil {
			logger.Warn("adapter failed", "source", src.Name, "adapter", string(kind), "error", err)
			return nil, Report{}, err
		}
		for _, d := range res.Diagnostics {
			logger.Debug("adapter diagnostic",
				"source", src.Name, "line", d.Line, "raw_type", d.RawType, "message", d.Message)
		}
		logger.Debug("source parsed", "source", src.Name, "adapter", string(kind), "events", len(res.Events))
		report.Sources = append(report.Sources, SourceReport{
			Name:        src.Name,
			Kind:        kind,
			Events:      len(res.Events),
			Diagnostics: res.Diagnostics,
		})
		results = append(results, res)
	}

	streams := make([][]hail.Event, len(results))
	for i, res := range results {
		streams[i] = res.Events
	}
	events := mergeStreams(streams)
	events, synthetic, orphaned := balanceTasks(events)
	dedupeEventIDs(events)
	report.RecoveredCallIDs = recoverCallIDs(events)
	report.SyntheticTaskEnds = synthetic
	report.OrphanTaskEnds = orphaned

	for _, id := range synthetic {
		logger.Info("synthetic task end inserted", "task_id", id)
	}
	for _, id := range orphaned {
		logger.Info("unmatched task end demoted", "task_id", id)
	}
	if report.RecoveredCallIDs > 0 {
		logger.Debug("call ids recovered", "count", report.RecoveredCallIDs)
	}

	session := &hail.Session{
		Version: hail.Version,
		Events:  events,
	}
	mergeMetadata(session, results, sources, opts.DefaultTags)
	if len(synthetic) > 0 {
		session.Context.Attributes[AttrSyntheticTaskEnds] = synthetic
	}
	if len(orphaned) > 0 {
		session.Context.Attributes[AttrOrphanTaskEnds] = orphaned
	}
	session.Stats = hail.ComputeStats(events)
	return session, report, nil
}

// mergeMetadata fills the session header. For every field the first
// source that supplies a value wins.
func mergeMetadata(s *hail.Session, results []adapter.Result, sources []adapter.Source, defaultTags []string) {
	s.Context.Attributes = make(map[string]any)
	tags := append([]string(nil), defaultTags...)

	for _, res := range results {
		if s.SessionID == "" {
			s.SessionID = res.SessionID
		}
		firstNonEmpty(&s.Agent.Provider, res.Agent.Provider)
		firstNonEmpty(&s.Agent.Model, res.Agent.Model)
		firstNonEmpty(&s.Agent.Tool, res.Agent.Tool)
		firstNonEmpty(&s.Agent.ToolVersion, res.Agent.ToolVersion)
		firstNonEmpty(&s.Context.Title, res.Context.Title)
		firstNonEmpty(&s.Context.Description, res.Context.Description)
		tags = append(tags, res.Context.Tags...)
		for key, value := range res.Context.Attributes {
			if _, ok := s.Context.Attributes[key]; !ok {
				s.Context.Attributes[key] = value
			}
		}
		if !res.Context.CreatedAt.IsZero() && (s.Context.CreatedAt.IsZero() || res.Context.CreatedAt.Before(s.Context.CreatedAt)) {
			s.Context.CreatedAt = res.Context.CreatedAt
		}
		if res.Context.UpdatedAt.After(s.Context.UpdatedAt) {
			s.Context.UpdatedAt = res.Context.UpdatedAt
		}
	}
	// Recomputed by balancing; a re-ingested file must not carry a stale list.
	delete(s.Context.Attributes, AttrSyntheticTaskEnds)
	delete(s.Context.Attributes, AttrOrphanTaskEnds)
	s.Context.Tags = hail.NormalizeTags(tags)

	if s.SessionID == "" {
		s.SessionID = fallbackSessionID(sources)
	}
	if s.Context.Title == "" {
		s.Context.Title = titleFromEvents(s.Events)
	}

	for _, event := range s.Events {
		if event.Timestamp.IsZero() {
			continue
		}
		if s.Context.CreatedAt.IsZero() || event.Timestamp.Before(s.Context.CreatedAt) {
			s.Context.CreatedAt = event.Timestamp
		}
		if event.Timestamp.After(s.Context.UpdatedAt) {
			s.Context.UpdatedAt = event.Timestamp
		}
	}
	s.Context.CreatedAt = s.Context.CreatedAt.UTC()
	s.Context.UpdatedAt = s.Context.UpdatedAt.UTC()
}

func firstNonEmpty(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

// fallbackSessionID derives a stable UUIDv5 from the raw source content so
// the same input always yields the same id.
func fallbackSessionID(sources []adapter.Source) string {
	var buf []byte
	for _, src := range sources {
		buf = append(buf, src.Data...)
		for _, row := range src.Rows {
			buf = append(buf, row.Key...)
			buf = append(buf, 0)
			buf = append(buf, row.Value...)
		}
		buf = append(buf, 0)
	}
	return uuid.NewSHA1(sessionNamespace, buf).String()
}

func titleFromEvents(events []hail.Event) string {
	for _, event := range events {
		if event.Kind() != hail.KindUserMessage {
			continue
		}
		text := strings.TrimSpace(event.FirstText())
		if text == "" {
			continue
		}
		line, _, _ := strings.Cut(text, "\n")
		return runewidth.Truncate(strings.TrimSpace(line), titleWidth, "...")
	}
	return ""
}

func sortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
