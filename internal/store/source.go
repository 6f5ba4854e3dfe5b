package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hailog/internal/adapter"
)

// refSeparator joins a database path and a composer id, as in
// "state.vscdb#composer-id".
const refSeparator = "#"

func splitRef(ref string) (path, composerID string) {
	if i := strings.LastIndex(ref, refSeparator); i > 0 && isDatabase(ref[:i]) {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

func isDatabase(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vscdb", ".sqlite", ".db":
		return true
	}
	return false
}

// LoadSource reads a transcript reference into an adapter source. Plain
// files are read whole; Cursor databases are snapshotted row by row.
func LoadSource(ctx context.Context, ref string) (adapter.Source, error) {
	path, composerID := splitRef(ref)
	if isDatabase(path) {
		rows, err := ReadCursorRows(ctx, path, composerID)
		if err != nil {
			return adapter.Source{}, err
		}
		return adapter.Source{Name: ref, Hint: adapter.KindCursor, Rows: rows}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return adapter.Source{}, fmt.Errorf("read transcript: %w", err)
	}
	return adapter.Source{Name: path, Data: data}, nil
}

// LoadSources loads each reference in order.
func LoadSources(ctx context.Context, refs []string) ([]adapter.Source, error) {
	sources := make([]adapter.Source, 0, len(refs))
	for _, ref := range refs {
		src, err := LoadSource(ctx, ref)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
