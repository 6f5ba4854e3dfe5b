// Package config loads hailog settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"hailog/internal/adapter"
	"hailog/internal/display"
)

// Environment variables read by Load.
const (
	EnvConfig      = "HAILOG_CONFIG"
	EnvLogLevel    = "HAILOG_LOG_LEVEL"
	EnvSessionsDir = "HAILOG_SESSIONS_DIR"
)

// Config is the full settings document.
type Config struct {
	LogLevel    string   `yaml:"log_level"`
	DefaultTags []string `yaml:"default_tags"`
	// SessionsDir, when set, replaces every per-tool location.
	SessionsDir string  `yaml:"sessions_dir"`
	Sources     Sources `yaml:"sources"`
	View        View    `yaml:"view"`
}

// Sources locates each tool's transcripts.
type Sources struct {
	ClaudeProjectsDir string `yaml:"claude_projects_dir"`
	CodexSessionsDir  string `yaml:"codex_sessions_dir"`
	OpenCodeDir       string `yaml:"opencode_dir"`
	CursorDBPath      string `yaml:"cursor_db_path"`
}

// View holds rendering defaults.
type View struct {
	Mode     string `yaml:"mode"`
	Taxonomy string `yaml:"taxonomy"`
	Wrap     int    `yaml:"wrap"`
}

// Default returns the settings used when no file exists.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		LogLevel: "warn",
		Sources: Sources{
			ClaudeProjectsDir: filepath.Join(home, ".claude", "projects"),
			CodexSessionsDir:  filepath.Join(home, ".codex", "sessions"),
			OpenCodeDir:       filepath.Join(home, ".local", "share", "opencode", "export"),
			CursorDBPath:      cursorStatePath(home),
		},
		View: View{Mode: "chronological", Taxonomy: "raw"},
	}
}

func cursorStatePath(home string) string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Cursor", "User", "globalStorage", "state.vscdb")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Cursor", "User", "globalStorage", "state.vscdb")
	default:
		return filepath.Join(home, ".config", "Cursor", "User", "globalStorage", "state.vscdb")
	}
}

// Path returns the config file location: $HAILOG_CONFIG, else
// ~/.hailog/config.yaml.
func Path() string {
	if path := os.Getenv(EnvConfig); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hailog", "config.yaml")
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.LogLevel = level
	}
	if dir := os.Getenv(EnvSessionsDir); dir != "" {
		cfg.SessionsDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the enumerated fields.
func (c Config) Validate() error {
	if _, err := display.ParseMode(c.View.Mode); err != nil {
		return err
	}
	if _, err := display.ParseTaxonomy(c.View.Taxonomy); err != nil {
		return err
	}
	if c.View.Wrap < 0 {
		return fmt.Errorf("view.wrap must not be negative: %d", c.View.Wrap)
	}
	return nil
}

// Roots returns the locations to search for kind. An empty kind means
// every native tool.
func (c Config) Roots(kind adapter.Kind) []string {
	if c.SessionsDir != "" {
		return []string{c.SessionsDir}
	}
	byKind := map[adapter.Kind]string{
		adapter.KindClaude:   c.Sources.ClaudeProjectsDir,
		adapter.KindCodex:    c.Sources.CodexSessionsDir,
		adapter.KindOpenCode: c.Sources.OpenCodeDir,
		adapter.KindCursor:   c.Sources.CursorDBPath,
	}
	if kind != "" {
		if root := byKind[kind]; root != "" {
			return []string{root}
		}
		return nil
	}
	var roots []string
	for _, k := range adapter.Kinds {
		if root := byKind[k]; root != "" {
			roots = append(roots, root)
		}
	}
	return roots
}
