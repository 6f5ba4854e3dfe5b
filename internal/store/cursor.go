package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"hailog/internal/adapter"
	"hailog/internal/adapter/cursor"
)

// ErrNoConversation is returned when a Cursor database holds no chat rows.
var ErrNoConversation = errors.New("cursor database has no conversation rows")

func openCursorDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open cursor db: %w", err)
	}
	return db, nil
}

func hasTable(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("inspect cursor db: %w", err)
	}
	return count > 0, nil
}

// ListComposers returns the composer ids stored in a Cursor global state
// database, in key order. Workspace databases without composer rows yield
// an empty list.
func ListComposers(ctx context.Context, path string) ([]string, error) {
	db, err := openCursorDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ok, err := hasTable(ctx, db, "cursorDiskKV")
	if err != nil || !ok {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT [key] FROM cursorDiskKV WHERE [key] LIKE ? ORDER BY [key]`, cursor.ComposerPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("query cursor db: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan cursor db: %w", err)
		}
		ids = append(ids, strings.TrimPrefix(key, cursor.ComposerPrefix))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan cursor db: %w", err)
	}
	return ids, nil
}

// ReadCursorRows snapshots the conversation rows of a Cursor database.
// With a composer id only that composer's header and bubbles are read;
// otherwise every composer row plus the legacy chat panel entry.
func ReadCursorRows(ctx context.Context, path, composerID string) ([]adapter.Row, error) {
	db, err := openCursorDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var out []adapter.Row

	ok, err := hasTable(ctx, db, "cursorDiskKV")
	if err != nil {
		return nil, err
	}
	if ok {
		composerKey, bubbleKey := cursor.ComposerPrefix+"%", cursor.BubblePrefix+"%"
		if composerID != "" {
			composerKey = cursor.ComposerPrefix + composerID
			bubbleKey = cursor.BubblePrefix + composerID + ":%"
		}
		rows, err := queryRows(ctx, db,
			`SELECT [key], value FROM cursorDiskKV WHERE [key] LIKE ? OR [key] LIKE ? ORDER BY rowid`,
			composerKey, bubbleKey)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}

	if composerID == "" {
		ok, err := hasTable(ctx, db, "ItemTable")
		if err != nil {
			return nil, err
		}
		if ok {
			rows, err := queryRows(ctx, db, `SELECT [key], value FROM ItemTable WHERE [key] = ?`, cursor.ChatDataKey)
			if err != nil {
				return nil, err
			}
			out = append(out, rows...)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoConversation)
	}
	return out, nil
}

func queryRows(ctx context.Context, db *sql.DB, query string, args ...any) ([]adapter.Row, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cursor db: %w", err)
	}
	defer rows.Close()

	var out []adapter.Row
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan cursor db: %w", err)
		}
		out = append(out, adapter.Row{Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan cursor db: %w", err)
	}
	return out, nil
}
