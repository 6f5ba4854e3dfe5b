// Package store discovers transcript files on disk and loads them as
// adapter sources.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"hailog/internal/adapter"
	"hailog/internal/hail"
	"hailog/internal/normalize"
)

var errStop = errors.New("stop iteration")

// Summary describes one session found under a root.
type Summary struct {
	ID              string    `json:"session_id"`
	Path            string    `json:"path"`
	Tool            string    `json:"tool"`
	Model           string    `json:"model,omitempty"`
	Title           string    `json:"title"`
	StartedAt       time.Time `json:"started_at"`
	MessageCount    int       `json:"message_count"`
	TaskCount       int       `json:"task_count"`
	DurationSeconds int       `json:"duration_seconds"`
}

// ListOptions controls how sessions are enumerated.
type ListOptions struct {
	Root     string
	Tool     adapter.Kind
	After    *time.Time
	Before   *time.Time
	Limit    int
	MaxTitle int
}

// ListResult contains session summaries and non-fatal warnings.
type ListResult struct {
	Summaries []Summary
	Warnings  []error
}

// transcriptExts are the file extensions considered during a walk.
var transcriptExts = map[string]bool{
	".jsonl":  true,
	".json":   true,
	".hail":   true,
	".vscdb":  true,
	".sqlite": true,
}

// IsTranscript reports whether path looks like something LoadSource can read.
func IsTranscript(path string) bool {
	return transcriptExts[strings.ToLower(filepath.Ext(path))]
}

// ListSessions normalizes every transcript under Root and returns their
// summaries, newest first. Unreadable files become warnings.
func ListSessions(ctx context.Context, opts ListOptions) (ListResult, error) {
	root := opts.Root
	if root == "" {
		return ListResult{}, errors.New("root directory is required")
	}

	var result ListResult

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("walk %s: %w", path, walkErr))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsTranscript(path) {
			return nil
		}

		refs, err := expandRefs(ctx, path)
		if err != nil {
			result.Warnings = append(result.Warnings, err)
			return nil
		}
		for _, ref := range refs {
			summary, err := summarize(ctx, ref)
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Errorf("summarize %s: %w", ref, err))
				continue
			}
			if opts.Tool != "" && summary.Tool != string(opts.Tool) {
				continue
			}
			if opts.After != nil && summary.StartedAt.Before(*opts.After) {
				continue
			}
			if opts.Before != nil && summary.StartedAt.After(*opts.Before) {
				continue
			}
			if opts.MaxTitle > 0 {
				summary.Title = truncate(summary.Title, opts.MaxTitle)
			}
			result.Summaries = append(result.Summaries, summary)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	sort.SliceStable(result.Summaries, func(i, j int) bool {
		a, b := result.Summaries[i], result.Summaries[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.After(b.StartedAt)
		}
		return a.Path < b.Path
	})

	if opts.Limit > 0 && len(result.Summaries) > opts.Limit {
		result.Summaries = result.Summaries[:opts.Limit]
	}

	return result, nil
}

// expandRefs turns a Cursor database into one reference per composer.
// Other files are their own single reference.
func expandRefs(ctx context.Context, path string) ([]string, error) {
	if !isDatabase(path) {
		return []string{path}, nil
	}
	ids, err := ListComposers(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []string{path}, nil
	}
	refs := make([]string, len(ids))
	for i, id := range ids {
		refs[i] = path + refSeparator + id
	}
	return refs, nil
}

func summarize(ctx context.Context, ref string) (Summary, error) {
	src, err := LoadSource(ctx, ref)
	if err != nil {
		return Summary{}, err
	}
	session, _, err := normalize.Normalize([]adapter.Source{src}, normalize.Options{})
	if err != nil {
		return Summary{}, err
	}
	return Summarize(ref, session), nil
}

// Summarize derives a listing row from a normalized session.
func Summarize(path string, s *hail.Session) Summary {
	return Summary{
		ID:              s.SessionID,
		Path:            path,
		Tool:            s.Agent.Tool,
		Model:           s.Agent.Model,
		Title:           s.Context.Title,
		StartedAt:       s.Context.CreatedAt,
		MessageCount:    s.Stats.MessageCount,
		TaskCount:       s.Stats.TaskCount,
		DurationSeconds: durationSeconds(s.Context.CreatedAt, s.Context.UpdatedAt),
	}
}

func truncate(s string, maxWidth int) string {
	s = strings.Join(strings.Fields(s), " ")
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "…")
}

// FindSessionPath searches root for a transcript whose session id matches id.
func FindSessionPath(ctx context.Context, root, id string) (string, error) {
	if root == "" {
		return "", errors.New("root directory is required")
	}
	if id == "" {
		return "", errors.New("session id is required")
	}

	var matched string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() || !IsTranscript(path) {
			return nil
		}
		refs, err := expandRefs(ctx, path)
		if err != nil {
			return nil
		}
		for _, ref := range refs {
			if strings.HasSuffix(ref, refSeparator+id) {
				matched = ref
				return errStop
			}
			src, err := LoadSource(ctx, ref)
			if err != nil {
				continue
			}
			res, _, err := normalize.Parse(src)
			if err != nil {
				continue
			}
			if res.SessionID == id {
				matched = ref
				return errStop
			}
		}
		return nil
	})

	if matched != "" {
		return matched, nil
	}
	if err != nil && !errors.Is(err, errStop) {
		return "", err
	}
	return "", fmt.Errorf("session id %s not found under %s", id, root)
}

// Resolve maps a CLI argument to a transcript reference: an existing file
// or database reference is used as-is, then root/arg, then a session id
// search under root.
func Resolve(ctx context.Context, arg, root string) (string, error) {
	if arg == "" {
		return "", errors.New("session identifier is empty")
	}
	file, _ := splitRef(arg)
	if info, err := os.Stat(file); err == nil && !info.IsDir() {
		return arg, nil
	}
	if root == "" {
		return "", fmt.Errorf("session %s not found", arg)
	}
	candidate := filepath.Join(root, arg)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, nil
	}
	return FindSessionPath(ctx, root, arg)
}

func durationSeconds(start, end time.Time) int {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Seconds())
}
