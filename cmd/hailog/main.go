// Package main provides the hailog CLI for browsing AI agent sessions
// from several tools as one canonical event stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hailog/internal/adapter"
	"hailog/internal/config"
	"hailog/internal/format"
	"hailog/internal/hail"
	"hailog/internal/logging"
	"hailog/internal/normalize"
	"hailog/internal/store"
	"hailog/internal/view"
)

var version = "dev"

// app carries the settings resolved before any subcommand runs.
type app struct {
	configPath  string
	logLevel    string
	sessionsDir string
	source      string

	cfg    config.Config
	kind   adapter.Kind
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hailog: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "hailog",
		Short:         "Browse AI agent sessions as lanes of tasks and tool calls",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (env: HAILOG_CONFIG, default: ~/.hailog/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, or error (env: HAILOG_LOG_LEVEL)")
	flags.StringVar(&a.sessionsDir, "sessions-dir", "", "search this directory instead of the per-tool locations (env: HAILOG_SESSIONS_DIR)")
	flags.StringVar(&a.source, "source", "", "restrict to one tool: claude-code, codex, opencode, cursor, or hail")

	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newViewCmd(a))
	rootCmd.AddCommand(newInfoCmd(a))
	rootCmd.AddCommand(newTasksCmd(a))
	rootCmd.AddCommand(newExportCmd(a))

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.sessionsDir != "" {
		cfg.SessionsDir = a.sessionsDir
	}
	if a.source != "" {
		kind, err := adapter.ParseKind(a.source)
		if err != nil {
			return err
		}
		a.kind = kind
	}

	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel, cmd.ErrOrStderr())
	return nil
}

// roots returns the existing search locations. Missing per-tool defaults
// are skipped; a missing explicit sessions dir is an error.
func (a *app) roots() ([]string, error) {
	var out []string
	for _, root := range a.cfg.Roots(a.kind) {
		if _, err := os.Stat(root); err != nil {
			if a.cfg.SessionsDir != "" || !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			a.logger.Debug("skipping missing source location", "path", root)
			continue
		}
		out = append(out, root)
	}
	return out, nil
}

// resolve maps each argument to a transcript reference, searching every
// root for session ids.
func (a *app) resolve(ctx context.Context, args []string) ([]string, error) {
	roots, err := a.roots()
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		roots = []string{""}
	}

	refs := make([]string, 0, len(args))
	for _, arg := range args {
		var lastErr error
		found := ""
		for _, root := range roots {
			ref, err := store.Resolve(ctx, arg, root)
			if err == nil {
				found = ref
				break
			}
			lastErr = err
		}
		if found == "" {
			return nil, lastErr
		}
		refs = append(refs, found)
	}
	return refs, nil
}

func (a *app) load(ctx context.Context, args []string) (view.Loaded, []string, error) {
	refs, err := a.resolve(ctx, args)
	if err != nil {
		return view.Loaded{}, nil, err
	}
	loaded, err := view.Load(ctx, refs, normalize.Options{Logger: a.logger, DefaultTags: a.cfg.DefaultTags})
	if err != nil {
		return view.Loaded{}, nil, err
	}
	return loaded, refs, nil
}

func newListCmd(a *app) *cobra.Command {
	var (
		afterStr   string
		beforeStr  string
		limit      int
		formatFlag string
		noHeader   bool
		titleWidth int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions in reverse chronological order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			after, err := parseTimeFlag("after", afterStr)
			if err != nil {
				return err
			}
			before, err := parseTimeFlag("before", beforeStr)
			if err != nil {
				return err
			}

			roots, err := a.roots()
			if err != nil {
				return err
			}

			var summaries []store.Summary
			errs := cmd.ErrOrStderr()
			for _, root := range roots {
				result, err := store.ListSessions(cmd.Context(), store.ListOptions{
					Root:     root,
					Tool:     a.kind,
					After:    after,
					Before:   before,
					MaxTitle: titleWidth,
				})
				if err != nil {
					return err
				}
				for _, warn := range result.Warnings {
					fmt.Fprintf(errs, "warning: %v\n", warn) //nolint:errcheck
				}
				summaries = append(summaries, result.Summaries...)
			}

			sort.SliceStable(summaries, func(i, j int) bool {
				if !summaries[i].StartedAt.Equal(summaries[j].StartedAt) {
					return summaries[i].StartedAt.After(summaries[j].StartedAt)
				}
				return summaries[i].Path < summaries[j].Path
			})
			if limit > 0 && len(summaries) > limit {
				summaries = summaries[:limit]
			}

			return format.WriteSummaries(cmd.OutOrStdout(), summaries, !noHeader, strings.ToLower(formatFlag))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&afterStr, "after", "", "include sessions starting on/after the given RFC3339 timestamp")
	flags.StringVar(&beforeStr, "before", "", "include sessions starting on/before the given RFC3339 timestamp")
	flags.IntVar(&limit, "limit", 0, "limit number of sessions returned (0 means no limit)")
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, json, or jsonl")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row")
	flags.IntVar(&titleWidth, "title-width", 80, "maximum display width of the title column")

	return cmd
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	return &t, nil
}

func newViewCmd(a *app) *cobra.Command {
	var (
		formatFlag   string
		filter       string
		taxonomy     string
		mode         string
		collapse     []string
		wrap         int
		maxItems     int
		noBody       bool
		forceColor   bool
		forceNoColor bool
	)

	cmd := &cobra.Command{
		Use:   "view <session-id-or-path>...",
		Short: "Render a session as a lane graph; several transcripts are merged",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if forceColor && forceNoColor {
				return errors.New("--color and --no-color cannot be used together")
			}

			flags := cmd.Flags()
			if !flags.Changed("mode") {
				mode = a.cfg.View.Mode
			}
			if !flags.Changed("taxonomy") {
				taxonomy = a.cfg.View.Taxonomy
			}
			if !flags.Changed("wrap") {
				wrap = a.cfg.View.Wrap
			}

			refs, err := a.resolve(cmd.Context(), args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			outFile, _ := out.(*os.File)
			return view.Run(cmd.Context(), view.Options{
				Refs:         refs,
				Format:       formatFlag,
				Wrap:         wrap,
				MaxItems:     maxItems,
				Filter:       filter,
				FilterSet:    flags.Changed("filter"),
				Taxonomy:     taxonomy,
				Mode:         mode,
				Toggle:       collapse,
				Body:         !noBody,
				ForceColor:   forceColor,
				ForceNoColor: forceNoColor,
				DefaultTags:  a.cfg.DefaultTags,
				Logger:       a.logger,
				Out:          out,
				OutFile:      outFile,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "text", "output format: text, chat, jsonl, or raw")
	flags.StringVar(&filter, "filter", "", "comma-separated event keys to show; an empty list shows nothing")
	flags.StringVar(&taxonomy, "taxonomy", "raw", "filter keys: raw (event types) or semantic (buckets)")
	flags.StringVar(&mode, "mode", "chronological", "task display: chronological or summary-start")
	flags.StringSliceVar(&collapse, "collapse", nil, "task ids whose default display is flipped")
	flags.IntVar(&wrap, "wrap", 0, "cap lines at the given column width")
	flags.IntVar(&maxItems, "max", 0, "show only the most recent N items (0 means no limit)")
	flags.BoolVar(&noBody, "no-body", false, "print headlines only")
	flags.BoolVar(&forceColor, "color", false, "force-enable ANSI colors even when stdout is not a TTY")
	flags.BoolVar(&forceNoColor, "no-color", false, "disable ANSI colors regardless of terminal detection")

	return cmd
}

func newInfoCmd(a *app) *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "info <session-id-or-path>...",
		Short: "Show session metadata and statistics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, refs, err := a.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			info := format.NewInfo(strings.Join(refs, ", "), loaded.Session, loaded.Lanes, loaded.Report.SyntheticTaskEnds)
			return format.WriteInfo(cmd.OutOrStdout(), info, formatFlag)
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "text", "output format: text or json")

	return cmd
}

func newTasksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <session-id-or-path>...",
		Short: "List the sub-agent tasks of a session with their lanes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, _, err := a.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			return format.WriteTasks(cmd.OutOrStdout(), loaded.Lanes.OrderedTasks())
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <session-id-or-path>...",
		Short: "Write the canonical HAIL JSONL of one or more merged transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, _, err := a.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return hail.WriteJSONL(cmd.OutOrStdout(), loaded.Session)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := hail.WriteJSONL(f, loaded.Session); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")

	return cmd
}
